package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/healthplusinnovation/storefront/internal/basket"
	"github.com/healthplusinnovation/storefront/internal/cron"
	"github.com/healthplusinnovation/storefront/pkg/config"
	"github.com/healthplusinnovation/storefront/pkg/db"
	"github.com/healthplusinnovation/storefront/pkg/instance"
	"github.com/healthplusinnovation/storefront/pkg/logger"
	"github.com/healthplusinnovation/storefront/pkg/metrics"
	"github.com/healthplusinnovation/storefront/pkg/migrate"
	"github.com/healthplusinnovation/storefront/pkg/redis"
)

const lockKeyFormat = "hpi:basket-janitor:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "basket-janitor"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "basket-janitor",
		Environment: cfg.App.Env,
		Instance:    instance.GetID(),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if cfg.Basket.Storage != config.BasketStorageSQL {
		logg.Info(context.Background(), "basket storage expires snapshots natively; janitor has nothing to do")
		return
	}

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRun(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run migrations", err)
		os.Exit(1)
	}

	storage, err := basket.NewSQLStorage(dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create basket storage", err)
		os.Exit(1)
	}

	var lock cron.Lock = &cron.LocalLock{}
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		lock, err = cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
		if err != nil {
			logg.Error(context.Background(), "failed to create janitor lock", err)
			os.Exit(1)
		}
	}

	maintenance := metrics.NewMaintenanceMetrics(prometheus.DefaultRegisterer)
	retention, err := cron.NewBasketRetentionJob(cron.BasketRetentionJobParams{
		Logger:     logg,
		Storage:    storage,
		StorageKey: cfg.Basket.StorageKey,
		Retention:  cfg.Basket.TTL,
		Metrics:    maintenance,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create retention job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(retention),
		Lock:     lock,
		Metrics:  maintenance,
		Interval: cfg.Basket.PruneInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create janitor service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"interval": cfg.Basket.PruneInterval.String(),
	})
	logg.Info(ctx, "starting basket janitor")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "basket janitor stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "basket janitor shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
