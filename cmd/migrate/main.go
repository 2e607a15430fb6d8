package main

import (
	"log"

	"chat-relay/internal/config"
	"chat-relay/internal/database"
	"chat-relay/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	appLogger, err := logger.New(cfg.App.LogLevel, cfg.Development())
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting database migration...", "driver", cfg.Database.Driver)

	db, err := database.NewConnection(cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close(db)

	appLogger.Info("Running GORM auto-migration...")
	if err := database.AutoMigrate(db); err != nil {
		appLogger.Fatal("Migration failed", "error", err)
	}

	appLogger.Info("Database migration completed successfully!")
}
