// Command server runs the channel chat backend: SQLite-backed durable log,
// idempotent write path, and the cache-backed read path behind a Gin HTTP
// API.
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
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-channel-backend/internal/cache"
	"github.com/tbourn/go-channel-backend/internal/config"
	httpapi "github.com/tbourn/go-channel-backend/internal/http"
	"github.com/tbourn/go-channel-backend/internal/observability"
	"github.com/tbourn/go-channel-backend/internal/repo"
	"github.com/tbourn/go-channel-backend/internal/services"
	"github.com/tbourn/go-channel-backend/internal/sysutil"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		sysutil.UsePrettyLogs()
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Warn().Err(err).Msg("db tracing not enabled")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	var msgCache cache.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		msgCache = cache.NewRedisCache(rdb, cfg.CacheCapacity)
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis message cache")
	} else {
		msgCache = cache.NewMemoryCache(cfg.CacheCapacity)
		log.Info().Int("capacity", cfg.CacheCapacity).Msg("using in-process message cache")
	}

	sweeper := &services.IdempotencyService{
		DB:            db,
		ProcessingTTL: cfg.ProcessingTTL,
		CompletedTTL:  cfg.CompletedTTL,
		FailedTTL:     cfg.FailedTTL,
	}
	sweeper.StartSweeper(ctx, cfg.SweepInterval)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, msgCache, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
}
