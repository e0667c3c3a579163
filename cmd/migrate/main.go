package main

import (
	"log"
	"os"

	"codeassist-be/internal/model"
	"codeassist-be/pkg/database"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

func main() {
	// 1. Environment
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	color.Cyan("Starting GORM migration...")

	// 2. Extensions first; AutoMigrate cannot create these.
	color.Yellow("Step 1: Ensuring extensions...")
	setupSQL := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
	}
	for _, sql := range setupSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute setup SQL: %v. Continuing...", err)
		}
	}

	// 3. Schema
	color.Yellow("Step 2: Running AutoMigrate...")
	models := []interface{}{
		&model.User{},
		&model.ChatSession{},
		&model.ChatMessage{},
		&model.SessionFile{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		color.Red("Migration failed: %v", err)
		os.Exit(1)
	}

	color.Green("Migration complete: %d tables up to date.", len(models))
}
