package bootstrap

import (
	"context"
	"log"

	"codeassist-be/internal/config"
	"codeassist-be/internal/constant"
	"codeassist-be/internal/controller"
	"codeassist-be/internal/handler"
	"codeassist-be/internal/pkg/logger"
	"codeassist-be/internal/pkg/serverutils"
	"codeassist-be/internal/repository/memory"
	"codeassist-be/internal/repository/unitofwork"
	"codeassist-be/internal/service"
	"codeassist-be/internal/websocket"
	"codeassist-be/pkg/events"
	"codeassist-be/pkg/llm/factory"
	pkgNats "codeassist-be/pkg/nats"
	"codeassist-be/pkg/prompt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	AuthController controller.IAuthController
	ChatController controller.IChatController

	// Background services (main.go runs these)
	ConsumerService service.IConsumerService

	// WebSockets
	NotificationHandler *handler.NotificationHandler
	WebSocketHub        *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Inference backend
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.Provider,
		cfg.Ai.Model,
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.ApiKey,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM provider: %v", err)
	}
	log.Printf("[INFO] Using LLM provider: %s (%s)", cfg.Ai.Provider, cfg.Ai.Model)

	promptBuilder := prompt.NewBuilder(constant.SystemPrompt, cfg.Ai.ContextTokenBudget)
	registry := memory.NewHandleRegistry()

	// 4. Infrastructure
	natsPub, err := pkgNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS publisher: %v", err)
	}
	natsSub, err := pkgNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS subscriber: %v", err)
	}

	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		rdb = nil
	}

	wsLogger := logger.NewIsolatedLogger("logs/websocket.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// Domain events from other instances go to the audit log.
	if natsSub != nil {
		if err := natsSub.Subscribe("events.>", "codeassist-audit", func(ctx context.Context, evt events.Event) error {
			sysLogger.Info("Events", "domain event", map[string]interface{}{
				"subject": evt.EventType(),
				"payload": evt.Payload(),
			})
			return nil
		}); err != nil {
			log.Printf("[WARN] Failed to subscribe to NATS events: %v", err)
		}
	}

	// 5. Services
	authService := service.NewAuthService(uowFactory, cfg, natsPub)
	sessionService := service.NewSessionService(uowFactory, registry, natsPub)
	fileService := service.NewFileService(uowFactory, promptBuilder, cfg)
	generationService := service.NewGenerationService(
		uowFactory,
		llmProvider,
		promptBuilder,
		registry,
		pubSub,
		natsPub,
		cfg,
		sysLogger,
	)
	consumerService := service.NewConsumerService(
		pubSub,
		constant.GenerationCompletedTopic,
		uowFactory,
		wsHub,
	)

	authCache := serverutils.NewAuthCache()

	// 6. Transport
	notifHandler := handler.NewNotificationHandler(authService, wsHub, wsLogger)

	return &Container{
		AuthController: controller.NewAuthController(authService),
		ChatController: controller.NewChatController(
			sessionService,
			fileService,
			generationService,
			authService,
			authCache,
			sysLogger,
		),
		ConsumerService:     consumerService,
		NotificationHandler: notifHandler,
		WebSocketHub:        wsHub,
	}
}
