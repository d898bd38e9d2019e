// Package main provides the conversion worker entrypoint. The worker
// consumes conversion triggers from Redis, runs the converters, and drives
// job records through the state machine. It also runs the stuck-job sweep.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/docmill/convertd/internal/blob"
	"github.com/docmill/convertd/internal/config"
	"github.com/docmill/convertd/internal/convert"
	"github.com/docmill/convertd/internal/lifecycle"
	"github.com/docmill/convertd/internal/observability"
	"github.com/docmill/convertd/internal/queue"
	"github.com/docmill/convertd/internal/storage"
	"github.com/docmill/convertd/internal/sweep"
	"github.com/docmill/convertd/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "convert-worker",
	})

	logger.Info().
		Int("concurrency", cfg.Worker.Concurrency).
		Str("queue_key", cfg.Queue.Key).
		Msg("starting conversion worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver := "postgres"
	opts := storage.OpenOptions{
		MaxOpenConns:    cfg.Database.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Database.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.Postgres.ConnMaxLifetime,
	}
	if cfg.Database.Driver == "sqlite" {
		driver = "sqlite3"
		opts = storage.OpenOptions{MaxOpenConns: cfg.Database.SQLite.MaxOpenConns}
	}
	db, err := storage.Open(ctx, driver, cfg.DatabaseDSN(), opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("open job record store")
	}
	defer db.Close()

	if err := storage.EnsureSchema(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("ensure schema")
	}

	blobs, err := blob.NewMinioStore(blob.MinioConfig{
		Endpoint:     cfg.Blob.Endpoint,
		AccessKey:    cfg.Blob.AccessKey,
		SecretKey:    cfg.Blob.SecretKey,
		UseSSL:       cfg.Blob.UseSSL,
		Region:       cfg.Blob.Region,
		Bucket:       cfg.Blob.Bucket,
		UploadExpiry: cfg.Blob.UploadExpiry,
		ResultExpiry: cfg.Blob.ResultExpiry,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect blob store")
	}

	triggers, err := queue.NewRedisQueue(ctx, queue.RedisConfig{
		Addr:        cfg.Queue.Addr,
		Password:    cfg.Queue.Password,
		DB:          cfg.Queue.DB,
		Key:         cfg.Queue.Key,
		PollTimeout: cfg.Queue.PollTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect trigger queue")
	}
	defer triggers.Close()

	repo := storage.NewJobRepository(db, logger)
	manager := lifecycle.NewManager(repo, blobs, triggers, logger)

	converter := convert.NewCommandConverter(convert.CommandConfig{
		PdftotextPath: cfg.Worker.PdftotextPath,
		TesseractPath: cfg.Worker.TesseractPath,
		Timeout:       cfg.Worker.CommandTimeout,
		MaxPages:      cfg.Worker.MaxPages,
	}, logger)

	adapter := worker.NewAdapter(blobs, converter, cfg.Worker.TempDir, logger)
	pool := worker.New(triggers, manager, adapter, cfg.Worker.Concurrency, logger)

	sweeper := sweep.New(repo, manager, sweep.Config{
		Interval:           cfg.Sweep.Interval,
		UploadDeadline:     cfg.Sweep.UploadDeadline,
		ProcessingDeadline: cfg.Sweep.ProcessingDeadline,
		BatchLimit:         cfg.Sweep.BatchLimit,
	}, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := pool.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("worker pool stopped")
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, draining")
	wg.Wait()
	logger.Info().Msg("worker stopped")
}
