package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"smartcrop/api/internal/cache"
	"smartcrop/api/internal/config"
	"smartcrop/api/internal/database"
	"smartcrop/api/internal/log"
	"smartcrop/api/internal/queue"
	"smartcrop/api/internal/repository"
	"smartcrop/api/internal/storage"
	"smartcrop/api/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, "smartcrop-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis, "smartcrop-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	processor := tasks.NewProcessor(
		repository.NewDiagnosisRepository(dbPool),
		objectStore,
		cfg.Diagnosis.Retention,
		logger,
	)
	consumer := queue.NewConsumer(
		client,
		cfg.Redis.Stream,
		cfg.Worker.Group,
		cfg.Worker.Consumer,
		cfg.Worker.ClaimInterval,
		logger,
		processor,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	logger.Info().
		Str("stream", cfg.Redis.Stream).
		Str("group", cfg.Worker.Group).
		Str("consumer", cfg.Worker.Consumer).
		Msg("worker started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
