package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dunamismax/photoflow/internal/codec"
	"github.com/dunamismax/photoflow/internal/config"
	"github.com/dunamismax/photoflow/internal/pipeline"
	"github.com/dunamismax/photoflow/internal/storage"
	"github.com/dunamismax/photoflow/internal/store"
	"github.com/dunamismax/photoflow/internal/telemetry"
	"github.com/dunamismax/photoflow/internal/webhook"
	"github.com/dunamismax/photoflow/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	if err := codec.Startup(); err != nil {
		logger.Fatalf("codec runtime startup failed: %v", err)
	}
	defer codec.Shutdown()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStartup()

	shutdownTracing, err := telemetry.SetupTracing(startupCtx, telemetry.FromConfig(telemetry.ServiceWorker, cfg.Tracing), logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Printf("tracing shutdown failed: %v", err)
		}
	}()

	var objectStore pipeline.ObjectStore
	storageClient, err := storage.NewClient(storage.FromConfig(cfg.Storage))
	if err != nil {
		logger.Printf("object storage disabled err=%v", err)
	} else if err := storageClient.EnsureBucket(startupCtx); err != nil {
		logger.Printf("object storage disabled bucket=%s err=%v", cfg.Storage.Bucket, err)
	} else {
		objectStore = storageClient
	}

	var jobStore interface {
		store.JobStore
		store.UsageStore
	}
	if cfg.Database.InMemory() {
		logger.Printf("using in-memory job store; status updates are local to this process")
		jobStore = store.NewMemoryJobStore()
	} else {
		pg, err := store.NewPostgresJobStore(startupCtx, cfg.Database.DSN)
		if err != nil {
			logger.Fatalf("postgres job store: %v", err)
		}
		defer pg.Close()
		jobStore = pg
	}

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret:  cfg.Webhook.SigningSecret,
		Timeout:        cfg.Webhook.Timeout,
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		InitialBackoff: cfg.Webhook.InitialBackoff,
		MaxBackoff:     cfg.Webhook.MaxBackoff,
	})

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, objectStore, webhookClient, jobStore, jobStore)
	if err != nil {
		logger.Fatalf("worker init failed: %v", err)
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	logger.Printf(
		"starting worker concurrency=%d max_active_jobs=%d max_pixels=%d queue=%s redis=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveJobs,
		cfg.Worker.MaxPixels,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
	)

	// Run blocks until SIGINT/SIGTERM and drains in-flight tasks.
	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(ctx)
}
