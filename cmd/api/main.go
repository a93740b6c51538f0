package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/dunamismax/photoflow/internal/api"
	"github.com/dunamismax/photoflow/internal/codec"
	"github.com/dunamismax/photoflow/internal/config"
	"github.com/dunamismax/photoflow/internal/queue"
	"github.com/dunamismax/photoflow/internal/ratelimit"
	"github.com/dunamismax/photoflow/internal/storage"
	"github.com/dunamismax/photoflow/internal/store"
	"github.com/dunamismax/photoflow/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	if err := codec.Startup(); err != nil {
		logger.Fatalf("codec runtime startup failed: %v", err)
	}
	defer codec.Shutdown()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStartup()

	shutdownTracing, err := telemetry.SetupTracing(startupCtx, telemetry.FromConfig(telemetry.ServiceAPI, cfg.Tracing), logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	jobStore, closeStore := openJobStore(startupCtx, cfg.Database, logger)
	defer closeStore()

	opts := api.Options{
		QueueClient:           queueClient,
		JobStore:              jobStore,
		PresignTTL:            cfg.API.PresignExpiry,
		MaxBodyBytes:          cfg.API.MaxBodyBytes,
		MaxPixels:             cfg.API.MaxPixels,
		StaticDir:             cfg.API.StaticDir,
		LocalInputDir:         cfg.API.LocalInputDir,
		RateLimitUserIDHeader: cfg.API.RateLimit.UserIDHeader,
		Tracer:                otel.Tracer("photoflow/api"),
	}

	storageClient, err := storage.NewClient(storage.FromConfig(cfg.Storage))
	if err != nil {
		logger.Printf("object storage disabled err=%v", err)
	} else if err := storageClient.EnsureBucket(startupCtx); err != nil {
		logger.Printf("object storage disabled bucket=%s err=%v", cfg.Storage.Bucket, err)
	} else {
		opts.Storage = storageClient
	}

	if cfg.API.RateLimit.Enabled {
		limiter, closeLimiter := newRateLimiter(startupCtx, cfg, logger)
		defer closeLimiter()
		opts.RateLimiter = limiter
	}

	app := api.NewServer(logger, opts)

	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Printf("tracing shutdown failed: %v", err)
	}
}

func openJobStore(ctx context.Context, cfg config.DatabaseConfig, logger *log.Logger) (store.JobStore, func()) {
	if cfg.InMemory() {
		logger.Printf("using in-memory job store")
		return store.NewMemoryJobStore(), func() {}
	}

	pg, err := store.NewPostgresJobStore(ctx, cfg.DSN)
	if err != nil {
		logger.Fatalf("postgres job store: %v", err)
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			logger.Printf("postgres close error: %v", err)
		}
	}
}

// newRateLimiter shares buckets through Redis when it is reachable and
// falls back to per-process buckets otherwise.
func newRateLimiter(ctx context.Context, cfg config.Config, logger *log.Logger) (ratelimit.Limiter, func()) {
	rl := cfg.API.RateLimit
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	closeClient := func() {
		if err := client.Close(); err != nil {
			logger.Printf("rate limit redis close error: %v", err)
		}
	}

	if err := client.Ping(ctx).Err(); err == nil {
		limiter, err := ratelimit.NewRedisTokenBucket(client, rl.Requests, rl.Window, ratelimit.DefaultKeyPrefix)
		if err == nil {
			logger.Printf("rate limiting enabled backend=redis requests=%d window=%s", rl.Requests, rl.Window)
			return limiter, closeClient
		}
		logger.Printf("redis rate limiter rejected config err=%v", err)
	} else {
		logger.Printf("redis unreachable for rate limiting err=%v", err)
	}
	closeClient()

	limiter, err := ratelimit.NewLocalTokenBucket(rl.Requests, rl.Window)
	if err != nil {
		logger.Fatalf("rate limiter: %v", err)
	}
	logger.Printf("rate limiting enabled backend=local requests=%d window=%s", rl.Requests, rl.Window)
	return limiter, func() {}
}
