package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/viaentrega/viaentrega-backend/api/routes"
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
	"github.com/viaentrega/viaentrega-backend/pkg/migrate"
	"github.com/viaentrega/viaentrega-backend/pkg/outbox"
	"github.com/viaentrega/viaentrega-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	corridasRepo := corridas.NewRepository(conn)
	corridasService, err := corridas.NewService(
		corridasRepo,
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

	ordersService, err := extorders.NewService(
		extorders.NewRepository(conn),
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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Corridas: corridasService,
			Ledger:   ledgerService,
			Orders:   ordersService,
			Accounts: corridasRepo,
			Releaser: ordersService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// newEstimator builds the distance estimator. Without an API key the
// estimator still resolves distances for waypoints that carry coordinates,
// via the great-circle fallback.
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
