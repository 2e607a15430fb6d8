package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/internal/adapters/kafka"
	"chat-relay/internal/api/routes"
	"chat-relay/internal/config"
	"chat-relay/internal/database"
	"chat-relay/internal/repositories/postgres"
	"chat-relay/internal/services"
	"chat-relay/internal/websocket"
	"chat-relay/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
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

	appLogger.Info("Starting chat relay", "env", cfg.App.Env)

	// Initialize database connection
	db, err := database.NewConnection(cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "driver", cfg.Database.Driver, "error", err)
	}
	defer database.Close(db)

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			appLogger.Fatal("Failed to migrate database", "error", err)
		}
	}

	messageRepo := postgres.NewMessageRepository(db)
	groupRepo := postgres.NewGroupRepository(db)
	unreadRepo := postgres.NewUnreadRepository(db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := websocket.Dependencies{
		Messages: messageRepo,
		Members:  groupRepo,
		Unread:   unreadRepo,
		Metrics:  websocket.NewMetrics(reg),
		Logger:   appLogger,
	}

	// Redis is optional: presence last-seen, rate limiting and cross-instance fan-out
	var redisService *services.RedisService
	if cfg.Redis.URL != "" {
		redisClient, err := database.NewRedisConnection(cfg.Redis, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", "error", err)
		}
		defer redisClient.Close()

		redisService = services.NewRedisService(redisClient, appLogger)
		deps.Presence = redisService
	}

	var redisFanout *websocket.RedisFanout
	if cfg.Relay.RedisFanout {
		deps.WrapFanout = func(local *websocket.LocalFanout) websocket.Fanout {
			redisFanout = websocket.NewRedisFanout(redisService, local, cfg.Relay.FanoutChannel, appLogger)
			return redisFanout
		}
	}

	// Kafka is optional: message.created events
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.InitKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID, cfg.Relay.StorageTimeout)
		if err != nil {
			appLogger.Fatal("Failed to create Kafka producer", "brokers", cfg.Kafka.Brokers, "error", err)
		}
		publisher := kafka.NewMessagePublisher(producer, cfg.Kafka.Topic, appLogger)
		defer publisher.Close()
		deps.Events = publisher
	}

	hub := websocket.NewHub(deps, websocket.Options{
		HistoryLimit:   cfg.Relay.HistoryLimit,
		StorageTimeout: cfg.Relay.StorageTimeout,
		SendBufferSize: cfg.Relay.SendBufferSize,
	})

	routeDeps := routes.Deps{
		Hub:            hub,
		Upgrader:       websocket.NewUpgrader(cfg.Server.AllowedOrigins),
		Messages:       messageRepo,
		Unread:         unreadRepo,
		Gatherer:       reg,
		Logger:         appLogger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		HistoryLimit:   cfg.Relay.HistoryLimit,
		WSRateLimit:    cfg.Relay.WSRateLimit,
		WSRateWindow:   cfg.Relay.WSRateWindow,
	}
	if redisService != nil {
		routeDeps.Limiter = redisService
	}
	router := routes.NewRouter(routeDeps)
	router.SetupRoutes()

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if redisFanout != nil {
		ready := make(chan error, 1)
		g.Go(func() error { return redisFanout.Run(gctx, ready) })
		if err := <-ready; err != nil {
			appLogger.Fatal("Failed to start Redis fan-out", "error", err)
		}
	}

	g.Go(func() error {
		appLogger.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		hub.Shutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Server forced to shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Relay stopped with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Server stopped")
}
