package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Ai       AIConfig
	Upload   UploadConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string
}

type DatabaseConfig struct {
	Connection string
}

type AIConfig struct {
	Provider      string // "ollama" or "huggingface"
	Model         string // e.g. "qwen2.5-coder:1.5b"
	OllamaBaseURL string
	ApiKey        string // huggingface only

	// Generation engine tuning
	ContextTokenBudget int
	MaxMessageChars    int
	StreamQueueSize    int
	TokenIdleTimeout   time.Duration
}

type UploadConfig struct {
	MaxFileBytes int64
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Ai: AIConfig{
			Provider:           getEnv("LLM_PROVIDER", "ollama"),
			Model:              getEnv("LLM_MODEL", "qwen2.5-coder:1.5b"),
			OllamaBaseURL:      getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			ApiKey:             getEnv("HF_API_KEY", ""),
			ContextTokenBudget: getEnvAsInt("CONTEXT_TOKEN_BUDGET", 8192),
			MaxMessageChars:    getEnvAsInt("MAX_MESSAGE_CHARS", 16384),
			StreamQueueSize:    getEnvAsInt("STREAM_QUEUE_SIZE", 32),
			TokenIdleTimeout:   getEnvAsDuration("TOKEN_IDLE_TIMEOUT", 60*time.Second),
		},
		Upload: UploadConfig{
			MaxFileBytes: int64(getEnvAsInt("MAX_FILE_BYTES", 512*1024)),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
