package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"chat-relay/internal/config"
	"chat-relay/internal/database"
	"chat-relay/internal/models"
	"chat-relay/internal/repositories/postgres"
	"chat-relay/internal/websocket"
	"chat-relay/pkg/logger"

	"github.com/google/uuid"
)

// Demo data: one group room and one direct room with a short backlog.
var (
	groups = map[string][]string{
		"general": {"alice", "bob", "carol"},
		"random":  {"alice", "dave"},
	}
	sampleMessages = []struct {
		sender string
		room   string
		text   string
	}{
		{"alice", "general", "Welcome to #general!"},
		{"bob", "general", "Hi everyone"},
		{"carol", "general", "Hello there"},
		{"alice", websocket.RoomToken("alice", "bob"), "Hey Bob, got a minute?"},
		{"bob", websocket.RoomToken("alice", "bob"), "Sure, what's up?"},
	}
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

	appLogger.Info("Starting database seeding...")

	db, err := database.NewConnection(cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		appLogger.Fatal("Migration failed", "error", err)
	}

	ctx := context.Background()
	groupRepo := postgres.NewGroupRepository(db)
	messageRepo := postgres.NewMessageRepository(db)

	// Seed group memberships
	for groupID, members := range groups {
		for _, userID := range members {
			if err := groupRepo.AddMember(ctx, groupID, userID); err != nil {
				appLogger.Warn("Failed to add group member", "group", groupID, "user", userID, "error", err)
			}
		}
		appLogger.Info("Seeded group", "group", groupID, "members", len(members))
	}

	// Seed sample messages, one second apart so history order is stable
	if err := seedSampleMessages(ctx, messageRepo); err != nil {
		appLogger.Warn("Failed to seed sample messages", "error", err)
	} else {
		appLogger.Info("Sample messages created successfully", "count", len(sampleMessages))
	}

	appLogger.Info("Database seeding completed successfully!")
}

func seedSampleMessages(ctx context.Context, repo *postgres.MessageRepository) error {
	start := time.Now().UTC().Add(-time.Duration(len(sampleMessages)) * time.Second)
	for i, m := range sampleMessages {
		msg := &models.Message{
			ID:         uuid.New().String(),
			Sender:     m.sender,
			Room:       m.room,
			Text:       m.text,
			InsertedAt: start.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(ctx, msg); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}
