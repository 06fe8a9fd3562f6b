package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VIAENTREGA_APP_ENV", "dev")
	t.Setenv("VIAENTREGA_DB_DSN", "postgres://localhost:5432/viaentrega?sslmode=disable")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.App.IsDev() {
		t.Fatalf("expected dev environment, got %q", cfg.App.Env)
	}
	if cfg.Pricing.MinValuePerPackageCents != 1000 {
		t.Fatalf("unexpected min value per package: %d", cfg.Pricing.MinValuePerPackageCents)
	}
	if cfg.Pricing.BaseDistanceKm != 20 {
		t.Fatalf("unexpected base distance: %f", cfg.Pricing.BaseDistanceKm)
	}
	if cfg.Cancellation.FeeCents != 500 {
		t.Fatalf("unexpected cancellation fee: %d", cfg.Cancellation.FeeCents)
	}
	if cfg.Cancellation.MinWaitAfterAccept != 5*time.Minute {
		t.Fatalf("unexpected min wait: %s", cfg.Cancellation.MinWaitAfterAccept)
	}
	if cfg.Courier.MaxActiveRoutes != 3 {
		t.Fatalf("unexpected courier ceiling: %d", cfg.Courier.MaxActiveRoutes)
	}
	if cfg.Marketplace.MaxImportRetries != 3 {
		t.Fatalf("unexpected import retry ceiling: %d", cfg.Marketplace.MaxImportRetries)
	}
}

func TestLoadRequiresAppEnv(t *testing.T) {
	t.Setenv("VIAENTREGA_APP_ENV", "")
	os.Unsetenv("VIAENTREGA_APP_ENV")
	t.Setenv("VIAENTREGA_DB_DSN", "postgres://localhost:5432/viaentrega?sslmode=disable")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when VIAENTREGA_APP_ENV is missing")
	}
}
