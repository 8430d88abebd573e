package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"grandgold-errcache/internal/config"
	"grandgold-errcache/internal/errorcache"
	"grandgold-errcache/internal/handler"
	"grandgold-errcache/internal/logging"
	"grandgold-errcache/internal/middleware"
	"grandgold-errcache/internal/repository"
	"grandgold-errcache/internal/router"
	"grandgold-errcache/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(os.Stderr, slog.LevelInfo)
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Setup(os.Stderr, cfg.App.SlogLevel())
	slog.Info("Starting error cache API", "app", cfg.App.Name, "version", cfg.App.Version, "env", cfg.App.Environment)

	store, storeType, closeStore := openStore(cfg)
	defer closeStore()

	cache := errorcache.New(store,
		errorcache.WithTTL(cfg.ErrorCache.TTL),
		errorcache.WithMaxRetries(cfg.ErrorCache.MaxRetries),
		errorcache.WithBaseRetryDelay(cfg.ErrorCache.RetryBaseDelay),
	)

	// Decision log (optional)
	var (
		decisionRepo repository.DecisionRepository
		recorder     *service.Recorder
		cleanup      *service.CleanupScheduler
	)
	if cfg.DecisionLog.Enabled() {
		decisionRepo, err = openDecisionLog(cfg.DecisionLog)
		if err != nil {
			slog.Error("Failed to initialize decision log", "type", cfg.DecisionLog.Type, "error", err)
			os.Exit(1)
		}
		defer decisionRepo.Close()

		recorder = service.NewRecorder(service.NewDecisionFlushFunc(decisionRepo), cfg.DecisionLog.FlushInterval)

		cleanup = service.NewCleanupScheduler(decisionRepo, service.CleanupConfig{
			Retention:       cfg.DecisionLog.Retention,
			CleanupInterval: cfg.DecisionLog.CleanupInterval,
		})
		cleanup.Start()
	}

	svc := service.NewSuppressionService(cache, recorder, decisionRepo, cfg.ErrorCache.Enabled)
	if !cfg.ErrorCache.Enabled {
		slog.Warn("Error display disabled, verdicts will never be visible")
	}

	r := router.New(router.Config{
		Handler:        handler.New(svc, cfg.App.Name, cfg.App.Version),
		ErrorsHandler:  handler.NewErrorsHandler(svc),
		AdminHandler:   handler.NewAdminHandler(svc, cleanup, storeType, cfg.DecisionLog.Type),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{APIKeys: cfg.Auth.APIKeys}),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("Server listening", "addr", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}

	if cleanup != nil {
		cleanup.Stop()
	}

	// Drain the recorder after the server stops accepting reports
	if recorder != nil {
		slog.Info("Flushing decision log...")
		_ = recorder.Close()
	}

	slog.Info("Server stopped")
}

// openStore selects the error cache backend. An unreachable Redis falls back
// to the in-memory store so the API keeps serving.
func openStore(cfg *config.Config) (errorcache.Store, string, func()) {
	if strings.ToLower(cfg.ErrorCache.Store) != "redis" {
		slog.Info("Error cache store initialized", "type", "memory")
		return errorcache.NewMemoryStore(), "memory", func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("Redis connection failed, using memory store", "addr", cfg.Redis.Address(), "error", err)
		_ = client.Close()
		return errorcache.NewMemoryStore(), "memory", func() {}
	}

	slog.Info("Error cache store initialized", "type", "redis", "addr", cfg.Redis.Address())
	return errorcache.NewRedisStore(client, cfg.ErrorCache.KeyPrefix), "redis", func() { _ = client.Close() }
}

// openDecisionLog opens the configured decision log backend.
func openDecisionLog(cfg config.DecisionLogConfig) (repository.DecisionRepository, error) {
	switch strings.ToLower(cfg.Type) {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return repository.NewSQLiteDecisionRepository(cfg.Path)
	case "postgres", "postgresql":
		return repository.NewPostgresDecisionRepository(cfg.DSN)
	case "mysql":
		return repository.NewMySQLDecisionRepository(cfg.DSN)
	case "mongodb", "mongo":
		return repository.NewMongoDBDecisionRepository(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	default:
		return nil, fmt.Errorf("unknown decision log type %q", cfg.Type)
	}
}
