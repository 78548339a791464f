// Package internal contains core application functionality
package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"
	"github.com/redis/go-redis/v9"

	"funnelmetrics/internal/config"
	"funnelmetrics/internal/dashboard"
	"funnelmetrics/internal/database"
	"funnelmetrics/internal/period"
	"funnelmetrics/internal/pkg/keylock"
	"funnelmetrics/internal/settings"
)

// Application wraps cartridge.Application with the metrics engine components
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager // DB manager with migration methods
	Locker    keylock.Locker
	Logger    *slog.Logger

	config *config.Config
	redis  *redis.Client
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	return NewAppWithClock(cfg, period.SystemTimeProvider{})
}

// NewAppWithClock creates a new application whose periods resolve against clock
func NewAppWithClock(cfg *config.Config, clock period.TimeProvider) (*Application, error) {
	// Create logger
	logger := cartridge.NewLogger(cfg, nil)

	// Initialize database manager with migration methods
	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	client, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	locker := keylock.New(client, cfg.GetLockTTL(), cfg.GetLockRetryInterval())
	if client != nil {
		logger.Info("Using Redis record locks")
	}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		RouteMountFunc: func(srv *cartridge.Server) {
			MountRoutes(srv, locker, clock)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Locker:      locker,
		Logger:      logger,
		config:      cfg,
		redis:       client,
	}, nil
}

// Service returns a dashboard service sharing the application's locker
func (a *Application) Service(clock period.TimeProvider) (*dashboard.Service, *settings.FloorStore) {
	return dashboard.New(a.DBManager.GetConnection(), a.Logger, a.config, a.Locker, clock)
}

// Close releases the Redis client, if any
func (a *Application) Close() error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

func newRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
