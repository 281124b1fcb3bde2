package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/monigenomi/openpgx/internal/api"
	"github.com/monigenomi/openpgx/internal/config"
	"github.com/monigenomi/openpgx/internal/database"
	"github.com/monigenomi/openpgx/internal/domain"
	"github.com/monigenomi/openpgx/internal/repository"
	"github.com/monigenomi/openpgx/internal/service"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, cleanup, err := newSnapshotStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize snapshot store")
	}
	defer cleanup()

	db, err := store.Load(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load recommendation snapshot")
	}

	core := service.NewRecommendationService(db, logger)

	var redisClient *redis.Client
	if cfg.Cache.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("Invalid Redis URL")
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	engine, err := service.NewCachedEngine(core, service.CacheOptions{
		LocalSize: cfg.Cache.LocalSize,
		Redis:     redisClient,
		TTL:       cfg.Cache.DefaultTTL,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize recommendation cache")
	}

	server := api.NewServer(cfg, core, engine, store, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"host":  cfg.Server.Host,
		"port":  cfg.Server.Port,
		"store": cfg.Snapshot.Store,
		"drugs": len(db.Drugs()),
	}).Info("Starting recommendation server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

// newSnapshotStore builds the configured snapshot store. The returned
// cleanup releases any underlying connections.
func newSnapshotStore(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (domain.SnapshotStore, func(), error) {
	switch cfg.Snapshot.Store {
	case "file":
		return repository.NewFileStore(cfg.Snapshot.Path, logger), func() {}, nil

	case "sqlite":
		store, err := repository.NewSQLiteStore(cfg.Snapshot.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	case "postgres":
		dbCfg := database.Config{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			Database:    cfg.Database.Database,
			Username:    cfg.Database.Username,
			Password:    cfg.Database.Password,
			MaxConns:    int32(cfg.Database.MaxOpenConns),
			MinConns:    int32(cfg.Database.MaxIdleConns),
			MaxConnLife: cfg.Database.ConnMaxLifetime,
			SSLMode:     cfg.Database.SSLMode,
		}

		runner, err := database.NewMigrationRunner(dbCfg.URL(), cfg.Database.MigrationsPath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating migration runner: %w", err)
		}
		if err := runner.Up(); err != nil {
			runner.Close()
			return nil, nil, err
		}
		runner.Close()

		conn, err := database.NewConnection(ctx, dbCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresStore(conn.Pool, logger), conn.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown snapshot store: %s", cfg.Snapshot.Store)
	}
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	}

	return logger
}
