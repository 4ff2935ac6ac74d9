package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/oggyb/mood-buddy/internal/app"
	"github.com/oggyb/mood-buddy/internal/auth"
	"github.com/oggyb/mood-buddy/internal/cache"
	"github.com/oggyb/mood-buddy/internal/config"
	"github.com/oggyb/mood-buddy/internal/db"
	"github.com/oggyb/mood-buddy/internal/logger"
	"github.com/oggyb/mood-buddy/internal/middleware"
	"github.com/oggyb/mood-buddy/internal/server"
	"github.com/oggyb/mood-buddy/internal/service/buddy"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}
	if err := db.EnsureReservedAccounts(database, cfg.Matching.PlaceholderID, cfg.Matching.ReservedIDs); err != nil {
		log.Error("failed to create reserved accounts", "err", err)
		os.Exit(1)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	appCtx := app.New(cfg, database, redisCache, log)

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database, cfg.Matching.PlaceholderID, cfg.Matching.ReservedIDs); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	limiter := middleware.NewLimiterStore(cfg.RateLimit.MoodLogsPerMinute, cfg.RateLimit.Burst, time.Minute)
	defer limiter.Stop()

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			middleware.AuthUnaryInterceptor(jwtManager, nil),
			middleware.LoggingUnaryInterceptor(log),
			middleware.RateLimitUnaryInterceptor(limiter, buddy.RateLimitedMethods()),
		),
	}
	registrars := []server.Registrar{
		buddy.NewRegistrar(appCtx),
	}

	if err := server.StartGRPCServer(ctx, cfg, log, opts, registrars...); err != nil {
		log.Error("gRPC server stopped", "err", err)
	}
}
