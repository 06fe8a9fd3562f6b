package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/viaentrega/viaentrega-backend/internal/corridas"
	"github.com/viaentrega/viaentrega-backend/internal/extorders"
	"github.com/viaentrega/viaentrega-backend/internal/ledger"
	"github.com/viaentrega/viaentrega-backend/internal/pricing"
	"github.com/viaentrega/viaentrega-backend/internal/routing"
	"github.com/viaentrega/viaentrega-backend/pkg/config"
	"github.com/viaentrega/viaentrega-backend/pkg/db"
	"github.com/viaentrega/viaentrega-backend/pkg/logger"
	"github.com/viaentrega/viaentrega-backend/pkg/maps"
	"github.com/viaentrega/viaentrega-backend/pkg/marketplace"
	"github.com/viaentrega/viaentrega-backend/pkg/metrics"
	"github.com/viaentrega/viaentrega-backend/pkg/migrate"
	"github.com/viaentrega/viaentrega-backend/pkg/outbox"
	"github.com/viaentrega/viaentrega-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sync-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sync-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sync-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

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

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

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

	estimator, err := newEstimator(cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create maps client", err)
		os.Exit(1)
	}

	marketplaceClient, err := marketplace.NewClient(
		cfg.Marketplace.BaseURL,
		cfg.Marketplace.AccessToken,
		marketplace.WithTimeout(cfg.Marketplace.Timeout),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create marketplace client", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	runner := db.NewRunner(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	ledgerService, err := ledger.NewService(ledger.NewRepository(conn), runner)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	corridasService, err := corridas.NewService(
		corridas.NewRepository(conn),
		ledgerService,
		pricing.NewEngine(cfg.Pricing),
		estimator,
		emitter,
		runner,
		cfg.Cancellation,
		cfg.Courier,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create corridas service", err)
		os.Exit(1)
	}

	ordersRepo := extorders.NewRepository(conn)
	ordersService, err := extorders.NewService(
		ordersRepo,
		marketplaceClient,
		corridasService,
		emitter,
		runner,
		cfg.Marketplace.MaxImportRetries,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create external orders service", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:    cfg,
		Logger:    logg,
		Merchants: ordersRepo,
		Syncer:    ordersService,
		Locker:    redisClient,
		Metrics:   metrics.NewWorkerMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sync worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sync worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sync worker shutting down gracefully")
}

// newEstimator builds the distance estimator. Imported orders usually carry
// marketplace coordinates, so the worker stays functional on the
// great-circle fallback when no routing key is configured.
func newEstimator(cfg *config.Config, logg *logger.Logger) (*routing.Estimator, error) {
	if cfg.Routing.APIKey == "" {
		logg.Warn(context.Background(), "routing api key missing, relying on great-circle distances")
		return routing.NewEstimator(nil, nil, logg), nil
	}

	var opts []maps.Option
	if cfg.Routing.DirectionsBaseURL != "" {
		opts = append(opts, maps.WithDirectionsBaseURL(cfg.Routing.DirectionsBaseURL))
	}
	if cfg.Routing.GeocodingBaseURL != "" {
		opts = append(opts, maps.WithGeocodingBaseURL(cfg.Routing.GeocodingBaseURL))
	}
	client, err := maps.NewClient(cfg.Routing.APIKey, opts...)
	if err != nil {
		return nil, err
	}
	return routing.NewEstimator(client, client, logg), nil
}
