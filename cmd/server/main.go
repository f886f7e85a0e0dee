package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/hello-counter/internal/config"
	"github.com/iliyamo/hello-counter/internal/database"
	"github.com/iliyamo/hello-counter/internal/handler"
	"github.com/iliyamo/hello-counter/internal/log"
	"github.com/iliyamo/hello-counter/internal/middleware"
	"github.com/iliyamo/hello-counter/internal/repository"
	"github.com/iliyamo/hello-counter/internal/router"
)

func main() {
	_ = godotenv.Load() // .env is optional

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}

	logger := log.Must(log.NewLogger(
		log.WithLogLevel(cfg.LogLevel),
		log.WithFile(cfg.LogFile),
	)).With(zap.String("env", cfg.Env))
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	counters, err := repository.NewCounterRepo(db, cfg.Database.Driver)
	if err != nil {
		return err
	}
	if err := counters.Initialize(ctx); err != nil {
		return err
	}
	logger.Info("counter store ready",
		zap.String("driver", cfg.Database.Driver),
		zap.String("path", cfg.Database.Path),
	)

	var rdb *redis.Client
	if cfg.RateLimit.Enabled {
		rdb, err = config.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unreachable, rate limiting disabled", zap.Error(err))
		} else {
			defer rdb.Close()
		}
	}

	e := router.New(router.Options{
		Counter:   handler.NewCounterHandler(counters, logger),
		Store:     db,
		Logger:    logger,
		Metrics:   cfg.MetricsEnabled,
		RateLimit: middleware.NewTokenBucket(cfg.RateLimit, rdb, logger),
	})

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr()))
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})
	return eg.Wait()
}
