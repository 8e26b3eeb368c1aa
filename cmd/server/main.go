// Package main provides the entry point for the counseling-system server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tetonam/counseling-system/internal/api"
	"github.com/tetonam/counseling-system/internal/config"
	"github.com/tetonam/counseling-system/internal/counseling"
	"github.com/tetonam/counseling-system/internal/drawing"
	"github.com/tetonam/counseling-system/internal/idempotency"
	"github.com/tetonam/counseling-system/internal/lock"
	"github.com/tetonam/counseling-system/internal/logging"
	"github.com/tetonam/counseling-system/internal/metrics"
	"github.com/tetonam/counseling-system/internal/middleware"
	"github.com/tetonam/counseling-system/internal/user"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.LogPretty {
		logger = logging.NewPrettyLogger("counseling-system", cfg.LogLevel)
	} else {
		logger = logging.NewLogger("counseling-system", cfg.LogLevel)
	}

	ctx := context.Background()

	// Backing stores. An empty DATABASE_URL selects the in-memory stores,
	// which is only suitable for local development.
	var (
		users     user.Directory
		drawings  drawing.Store
		sessions  counseling.Store
		db        *pgxpool.Pool
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create database pool")
		}
		if err := pool.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		db = pool

		store := counseling.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure schema")
		}

		users = user.NewPostgresDirectory(pool)
		drawings = drawing.NewPostgresStore(pool)
		sessions = store
		logger.Info().Msg("using postgres stores")
	} else {
		users = user.NewMemoryDirectory()
		drawings = drawing.NewMemoryStore()
		sessions = counseling.NewMemoryStore()
		logger.Warn().Msg("DATABASE_URL not set, using in-memory stores")
	}

	// Lock coordinator. Redis gives cross-instance exclusion; the in-process
	// locker only covers a single instance.
	var (
		locker      lock.Locker
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to redis")
		}
		locker = lock.NewRedisLocker(redisClient)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis lock coordinator")
	} else {
		locker = lock.NewMemoryLocker()
		logger.Warn().Msg("REDIS_ADDR not set, using in-process locker")
	}

	svc := counseling.NewService(users, drawings, sessions, locker, logger,
		counseling.WithLockTimeouts(cfg.LockWaitTimeout, cfg.LockHoldTimeout))

	reaperOpts := []counseling.ReaperOption{}
	if redisClient != nil {
		reaperOpts = append(reaperOpts, counseling.WithSweepLock(locker))
	}
	reaper := counseling.NewReaper(sessions, cfg.ReaperInterval, cfg.ReaperGrace, logger, reaperOpts...)
	reaper.Start()

	// Idempotency store for booking submissions. Redis keys expire on their
	// own; the in-memory store runs its own cleanup loop.
	var idemStore idempotency.Store
	if redisClient != nil {
		idemStore = idempotency.NewRedisStore(redisClient)
	} else {
		memStore := idempotency.NewMemoryStore()
		defer memStore.Close()
		idemStore = memStore
	}
	idemCfg := idempotency.NewConfig(idemStore)
	idemCfg.TTL = cfg.IdempotencyTTL
	idemCfg.Logger = logger

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(logger))
	router.Use(metrics.GinMiddleware())
	router.Use(middleware.PayloadLimitErrorHandler(logger))
	router.Use(middleware.PayloadLimit(cfg.MaxPayloadSize, logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	metrics.RegisterMetricsEndpoint(router)

	apiV1 := router.Group("/api/v1")
	handler := api.NewHandler(svc, logger)
	handler.RegisterRoutes(apiV1, idempotency.Middleware(idemCfg))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	reaper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if db != nil {
		db.Close()
	}

	logger.Info().Msg("server exited properly")
}
