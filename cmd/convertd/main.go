// Package main provides the convertd API server entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/docmill/convertd/internal/blob"
	"github.com/docmill/convertd/internal/config"
	"github.com/docmill/convertd/internal/lifecycle"
	"github.com/docmill/convertd/internal/observability"
	"github.com/docmill/convertd/internal/queue"
	"github.com/docmill/convertd/internal/storage"
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
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("blob_endpoint", cfg.Blob.Endpoint).
		Msg("starting convertd API")

	ctx := context.Background()

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

	router := NewRouter(logger, manager, cfg.Server.ReadTimeout)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	logger.Info().Msg("server stopped")
}
