package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/minseo/accountd/internal/config"
	"github.com/minseo/accountd/internal/lock"
	"github.com/minseo/accountd/internal/logging"
	"github.com/minseo/accountd/internal/server"
	"github.com/minseo/accountd/internal/service"
	"github.com/minseo/accountd/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	pg, err := store.NewPostgres(ctx, store.PostgresOptions{
		URL:      cfg.Postgres.URL,
		MaxConns: cfg.Postgres.MaxConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("closing redis client failed", "error", err)
		}
	}()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to reach lock backend", "error", err)
		os.Exit(1)
	}

	locks := lock.NewRedisManager(redisClient, lock.Options{
		WaitTimeout: cfg.Lock.WaitTimeout,
		LeaseTTL:    cfg.Lock.LeaseTTL,
		RetryDelay:  cfg.Lock.RetryDelay,
	})

	accounts := service.NewAccountService(pg, pg, pg)
	coordinator := service.NewCoordinator(locks, pg, pg, pg, logger)
	apiHandlers := server.NewAPIHandlers(logger, accounts, coordinator)

	router := server.NewRouter(logger, server.RouterDependencies{
		Health:           server.BackendHealth{Database: pg, LockBackend: locks},
		API:              apiHandlers,
		AllowedOrigins:   parseAllowedOrigins(cfg.HTTP.AllowedOriginsCSV),
		AllowCredentials: true,
	})

	srv := server.New(logger, cfg.HTTP, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("server stopped unexpectedly", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func parseAllowedOrigins(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	var origins []string
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}
