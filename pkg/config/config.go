package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Pricing      PricingConfig
	Cancellation CancellationConfig
	Courier      CourierConfig
	Routing      RoutingConfig
	Marketplace  MarketplaceConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VIAENTREGA_APP_ENV" required:"true"`
	Port         string `envconfig:"VIAENTREGA_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"VIAENTREGA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VIAENTREGA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VIAENTREGA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN             string        `envconfig:"VIAENTREGA_DB_DSN" required:"true"`
	MaxOpenConns    int           `envconfig:"VIAENTREGA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VIAENTREGA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VIAENTREGA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VIAENTREGA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VIAENTREGA_REDIS_URL"`
	Address      string        `envconfig:"VIAENTREGA_REDIS_ADDR"`
	Password     string        `envconfig:"VIAENTREGA_REDIS_PASSWORD"`
	DB           int           `envconfig:"VIAENTREGA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VIAENTREGA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VIAENTREGA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VIAENTREGA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VIAENTREGA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VIAENTREGA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PricingConfig carries the corrida pricing table. Amounts are centavos.
type PricingConfig struct {
	MinValuePerPackageCents int64   `envconfig:"VIAENTREGA_PRICING_MIN_VALUE_PER_PACKAGE_CENTS" default:"1000"`
	BaseDistanceKm          float64 `envconfig:"VIAENTREGA_PRICING_BASE_DISTANCE_KM" default:"20"`
	ExtraKmRateCents        int64   `envconfig:"VIAENTREGA_PRICING_EXTRA_KM_RATE_CENTS" default:"150"`
}

// CancellationConfig governs the refund rules applied when a corrida is cancelled.
type CancellationConfig struct {
	FeeCents           int64         `envconfig:"VIAENTREGA_CANCELLATION_FEE_CENTS" default:"500"`
	MinWaitAfterAccept time.Duration `envconfig:"VIAENTREGA_CANCELLATION_MIN_WAIT_AFTER_ACCEPT" default:"5m"`
}

type CourierConfig struct {
	MaxActiveRoutes int `envconfig:"VIAENTREGA_COURIER_MAX_ACTIVE_ROUTES" default:"3"`
}

type RoutingConfig struct {
	APIKey            string        `envconfig:"VIAENTREGA_ROUTING_API_KEY"`
	DirectionsBaseURL string        `envconfig:"VIAENTREGA_ROUTING_DIRECTIONS_BASE_URL"`
	GeocodingBaseURL  string        `envconfig:"VIAENTREGA_ROUTING_GEOCODING_BASE_URL"`
	Timeout           time.Duration `envconfig:"VIAENTREGA_ROUTING_TIMEOUT" default:"10s"`
}

type MarketplaceConfig struct {
	BaseURL          string        `envconfig:"VIAENTREGA_MARKETPLACE_BASE_URL"`
	AccessToken      string        `envconfig:"VIAENTREGA_MARKETPLACE_ACCESS_TOKEN"`
	Timeout          time.Duration `envconfig:"VIAENTREGA_MARKETPLACE_TIMEOUT" default:"15s"`
	SyncInterval     time.Duration `envconfig:"VIAENTREGA_MARKETPLACE_SYNC_INTERVAL" default:"5m"`
	SyncWindow       time.Duration `envconfig:"VIAENTREGA_MARKETPLACE_SYNC_WINDOW" default:"24h"`
	MaxImportRetries int           `envconfig:"VIAENTREGA_MARKETPLACE_MAX_IMPORT_RETRIES" default:"3"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"VIAENTREGA_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"VIAENTREGA_PUBSUB_DOMAIN_TOPIC" default:"viaentrega-domain"`
	DomainSubscription string `envconfig:"VIAENTREGA_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"VIAENTREGA_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"VIAENTREGA_OUTBOX_POLL_INTERVAL_MS" default:"500"`
	MaxAttempts    int `envconfig:"VIAENTREGA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"VIAENTREGA_FEATURE_AUTO_MIGRATE" default:"false"`
}
