package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/viaentrega/viaentrega-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir failed validation: %v", err)
	}
}

func TestCoreMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_core_tables.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no core tables migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE corridas",
		"CREATE TABLE delivery_stops",
		"CREATE TABLE ledger_entries",
		"REFERENCES corridas (id) ON DELETE CASCADE",
		"CONSTRAINT ux_delivery_stops_corrida_code UNIQUE (corrida_id, code)",
		"DROP TABLE ledger_entries",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestExternalOrdersMigrationKeysByMerchantAndOrder(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_external_orders_and_outbox.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no external orders migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "CONSTRAINT ux_external_orders_merchant_order UNIQUE (merchant_id, external_order_id)") {
		t.Error("external orders must be unique per merchant and external order id")
	}
	if !strings.Contains(content, "WHERE published_at IS NULL") {
		t.Error("outbox needs a partial index over unpublished rows")
	}
}
