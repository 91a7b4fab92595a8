package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/healthplusinnovation/storefront/api/routes"
	"github.com/healthplusinnovation/storefront/internal/basket"
	"github.com/healthplusinnovation/storefront/internal/catalog"
	"github.com/healthplusinnovation/storefront/internal/checkout"
	"github.com/healthplusinnovation/storefront/internal/content"
	"github.com/healthplusinnovation/storefront/pkg/config"
	"github.com/healthplusinnovation/storefront/pkg/db"
	"github.com/healthplusinnovation/storefront/pkg/instance"
	"github.com/healthplusinnovation/storefront/pkg/logger"
	"github.com/healthplusinnovation/storefront/pkg/metrics"
	"github.com/healthplusinnovation/storefront/pkg/migrate"
	"github.com/healthplusinnovation/storefront/pkg/redis"
	"github.com/healthplusinnovation/storefront/pkg/square"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Environment: cfg.App.Env,
		Instance:    instance.GetID(),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "storefront stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i].Close())
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return fmt.Errorf("bootstrap redis: %w", err)
		}
		closers = append(closers, redisClient)
	} else {
		logg.Warn(ctx, "redis not configured; checkout idempotency replay and rate limiting are disabled")
	}

	var dbClient *db.Client
	if cfg.Basket.Storage == config.BasketStorageSQL {
		dbClient, err = db.New(ctx, cfg.DB, logg)
		if err != nil {
			return fmt.Errorf("bootstrap database: %w", err)
		}
		closers = append(closers, dbClient)
		if err := migrate.MaybeRun(ctx, cfg, logg, dbClient); err != nil {
			return fmt.Errorf("auto migrations: %w", err)
		}
	}

	storage, err := newBasketStorage(cfg, redisClient, dbClient)
	if err != nil {
		return err
	}

	products, err := catalog.Load(cfg.Content.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	pages := content.NewLibrary()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	baskets, err := basket.NewService(basket.ServiceOptions{
		Storage:    storage,
		StorageKey: cfg.Basket.StorageKey,
		CacheTTL:   cfg.Basket.CacheTTL,
		Logger:     logg,
		Metrics:    metrics.NewBasketMetrics(reg),
	})
	if err != nil {
		return fmt.Errorf("basket service: %w", err)
	}
	defer baskets.Close()

	gateway, err := newGateway(ctx, cfg, logg)
	if err != nil {
		return err
	}
	checkoutService, err := checkout.NewService(baskets, gateway, cfg.Checkout, logg, metrics.NewCheckoutMetrics(reg))
	if err != nil {
		return fmt.Errorf("checkout service: %w", err)
	}

	addr := ":" + cfg.App.Port
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, redisClient, reg, products, pages, baskets, checkoutService),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"addr":           addr,
		"basket_storage": cfg.Basket.Storage,
		"gateway":        gateway.Name(),
	})
	logg.Info(logCtx, "starting storefront server")

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down storefront server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newBasketStorage(cfg *config.Config, redisClient *redis.Client, dbClient *db.Client) (basket.Storage, error) {
	switch cfg.Basket.Storage {
	case config.BasketStorageRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis basket storage requires a redis connection")
		}
		return basket.NewRedisStorage(redisClient, cfg.Basket.TTL)
	case config.BasketStorageSQL:
		if dbClient == nil {
			return nil, fmt.Errorf("sql basket storage requires a database connection")
		}
		return basket.NewSQLStorage(dbClient)
	default:
		return basket.NewMemoryStorage(), nil
	}
}

// newGateway picks Square when credentials are configured and falls back to the demo gateway.
func newGateway(ctx context.Context, cfg *config.Config, logg *logger.Logger) (checkout.Gateway, error) {
	if !cfg.Square.Enabled() {
		if cfg.App.IsProd() {
			logg.Warn(ctx, "square not configured in production; using demo payment gateway")
		}
		return checkout.NewDemoGateway(cfg.Checkout, logg), nil
	}
	client, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		return nil, fmt.Errorf("square client: %w", err)
	}
	return checkout.NewSquareGateway(client)
}
