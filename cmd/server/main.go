package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/NAinfini/guildhall/internal/config"
	"github.com/NAinfini/guildhall/internal/logging"
	"github.com/NAinfini/guildhall/internal/push"
	"github.com/NAinfini/guildhall/internal/redis"
	"github.com/NAinfini/guildhall/internal/server"
	"github.com/NAinfini/guildhall/internal/version"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupStore picks the durable store. Without REDIS_URL the coordinator runs
// on the in-memory store: fine for development, but sequence counters and
// rate windows reset on restart.
func setupStore(ctx context.Context, cfg *config.Config) (push.Store, *goredis.Client) {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL not set, using in-memory store (state will not survive restarts)")
		return push.NewMemoryStore(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(connectCtx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return redis.NewPushStore(client), client
}

func runGracefulShutdown(srv *server.Server, coordinator *push.Coordinator) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		coordinator.Stop()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	build := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", build.Version, "commit", build.Commit)

	store, redisClient := setupStore(context.Background(), cfg)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	coordinator := push.NewCoordinator(store, clock, cfg.CleanupInterval)
	push.Register(push.DefaultCoordinatorName, coordinator)
	defer push.Unregister(push.DefaultCoordinatorName)

	srv := server.NewServer(cfg, coordinator, redisClient, clock)
	done := runGracefulShutdown(srv, coordinator)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
