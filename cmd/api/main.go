package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"smartcrop/api/internal/cache"
	"smartcrop/api/internal/config"
	"smartcrop/api/internal/database"
	"smartcrop/api/internal/handlers"
	"smartcrop/api/internal/jobs"
	"smartcrop/api/internal/log"
	"smartcrop/api/internal/queue"
	"smartcrop/api/internal/repository"
	"smartcrop/api/internal/roomtoken"
	"smartcrop/api/internal/server"
	"smartcrop/api/internal/service"
	"smartcrop/api/internal/storage"
	"smartcrop/api/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, "api")

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, "smartcrop-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if cfg.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, dbPool, logger); err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis, "smartcrop-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBuckets(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure buckets failed")
	}

	if cfg.Security.JWTSecret == "dev_secret_change_me" && cfg.Environment == "production" {
		logger.Warn().Msg("default session secret in production")
	}

	rooms := roomtoken.NewIssuer(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.DefaultRoom, cfg.LiveKit.GrantTTL)
	if !rooms.Configured() {
		logger.Warn().Msg("livekit credentials missing; /api/token will answer 500")
	}

	producer := queue.NewProducer(redisClient, cfg.Redis.Stream)
	users := repository.NewUserRepository(dbPool)
	diagnoses := repository.NewDiagnosisRepository(dbPool)

	handlerSet := handlers.NewHandlerSet(logger, cfg, handlers.Services{
		Auth: service.NewAuthService(users, cfg.Security.JWTSecret, cfg.Security.SessionTTL, logger),
		Chat: service.NewChatService(
			upstream.NewGenerativeClient(cfg.Chat.Endpoint, cfg.Chat.APIKey, cfg.Chat.Timeout),
			cache.NewAnswerCache(redisClient, cfg.Chat.CacheTTL),
			logger,
		),
		Diagnoses: service.NewDiagnosisService(
			upstream.NewInferenceClient(cfg.Diagnosis.Endpoint, cfg.Diagnosis.Timeout),
			objectStore,
			diagnoses,
			producer,
			service.DiagnosisOptions{
				Bucket:          cfg.Storage.BucketDiagnoses,
				SignatureSecret: cfg.Security.SignatureSecret,
				MaxUploadBytes:  cfg.Diagnosis.MaxUploadBytes,
			},
			logger,
		),
		Rooms: rooms,
		Health: handlers.HealthChecks{
			Database: dbPool.Ping,
			Cache:    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			Storage:  objectStore.Ping,
		},
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(producer, cfg.Diagnosis.CleanupSpec, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
