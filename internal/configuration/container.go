package configuration

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"parley/internal/coord"
	"parley/internal/db"
	"parley/internal/handler"
	"parley/internal/hub"
	"parley/internal/model"
	"parley/internal/push"
	"parley/internal/repo"
)

type Container struct {
	HistoryHandler handler.HistoryHandler
	Coordinator    *coord.Coordinator
	Hub            *hub.Hub
	Config         Config
	Logger         *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
}

func BuildContainer(configPath string) (*Container, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, err
	}

	logger, _ := zap.NewProduction()

	messageRepo := repo.NewMessageRepository(
		db.NewRepository[model.Message](con, config.ChatDatabase.MessagesCollection), logger)
	callRepo := repo.NewCallRepository(
		db.NewRepository[model.Call](con, config.ChatDatabase.CallsCollection), logger)
	userRepo := repo.NewUserRepository(
		db.NewRepository[model.User](con, config.ChatDatabase.UsersCollection), logger)

	var notifier coord.Notifier
	if config.Push.Endpoint != "" {
		notifier = push.NewWebhookNotifier(config.Push.Endpoint, config.Push.ApiKey, logger)
	} else {
		notifier = push.NewLogNotifier(logger)
	}

	coordinator := coord.NewCoordinator(messageRepo, callRepo, userRepo, notifier, logger)
	wsHub := hub.NewHub(coordinator, config.Server.AllowedOrigins)
	historyHandler := handler.NewHistoryHandler(messageRepo, callRepo, coordinator)

	return &Container{
		HistoryHandler: historyHandler,
		Coordinator:    coordinator,
		Hub:            wsHub,
		Config:         *config,
		Logger:         logger,
		mongoClient:    con,
	}, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
