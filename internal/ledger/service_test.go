package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/viaentrega/viaentrega-backend/pkg/db"
	"github.com/viaentrega/viaentrega-backend/pkg/db/models"
	"github.com/viaentrega/viaentrega-backend/pkg/enums"
	"github.com/viaentrega/viaentrega-backend/pkg/errors"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	accounts := `
CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  name TEXT NOT NULL,
  balance_cents INTEGER NOT NULL DEFAULT 0,
  courier_status TEXT NOT NULL DEFAULT 'offline',
  seller_ref TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	entries := `
CREATE TABLE IF NOT EXISTS ledger_entries (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  balance_before_cents INTEGER NOT NULL,
  balance_after_cents INTEGER NOT NULL,
  category TEXT NOT NULL,
  corrida_id TEXT,
  description TEXT,
  created_at DATETIME
);`
	require.NoError(t, conn.Exec(accounts).Error)
	require.NoError(t, conn.Exec(entries).Error)
	return conn
}

func seedAccount(t *testing.T, conn *gorm.DB, actorType enums.ActorType, balanceCents int64) uuid.UUID {
	t.Helper()

	account := models.Account{
		ID:           uuid.New(),
		Type:         actorType,
		Name:         "conta de teste",
		BalanceCents: balanceCents,
	}
	require.NoError(t, conn.Create(&account).Error)
	return account.ID
}

func newLedgerService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()

	svc, err := NewService(NewRepository(conn), db.NewRunner(conn))
	require.NoError(t, err)
	return svc
}

func TestApplyChainsBalances(t *testing.T) {
	conn := setupLedgerTestDB(t)
	svc := newLedgerService(t, conn)
	ctx := context.Background()

	accountID := seedAccount(t, conn, enums.ActorTypeLojista, 0)

	deltas := []struct {
		cents    int64
		category enums.LedgerCategory
	}{
		{5000, enums.LedgerCategoryDeposit},
		{-2000, enums.LedgerCategoryJobCharge},
		{2000, enums.LedgerCategoryRefund},
		{-500, enums.LedgerCategoryPenalty},
	}
	for _, d := range deltas {
		_, err := svc.Apply(ctx, ApplyInput{
			AccountID:  accountID,
			DeltaCents: d.cents,
			Category:   d.category,
		})
		require.NoError(t, err)
	}

	balance, err := svc.Balance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), balance)

	var entries []models.LedgerEntry
	require.NoError(t, conn.
		Where("account_id = ?", accountID).
		Order("created_at ASC, rowid ASC").
		Find(&entries).Error)
	require.Len(t, entries, 4)

	assert.Equal(t, int64(0), entries[0].BalanceBeforeCents)
	for i := 1; i < len(entries); i++ {
		assert.Equal(t, entries[i-1].BalanceAfterCents, entries[i].BalanceBeforeCents,
			"entry %d must chain from the previous balance", i)
	}
	last := entries[len(entries)-1]
	assert.Equal(t, balance, last.BalanceAfterCents)
}

func TestApplyInsufficientFunds(t *testing.T) {
	conn := setupLedgerTestDB(t)
	svc := newLedgerService(t, conn)
	ctx := context.Background()

	accountID := seedAccount(t, conn, enums.ActorTypeLojista, 1000)

	_, err := svc.Apply(ctx, ApplyInput{
		AccountID:  accountID,
		DeltaCents: -1500,
		Category:   enums.LedgerCategoryJobCharge,
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInsufficientFunds))

	// The rejected debit must leave no trace.
	balance, err := svc.Balance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	entries, err := svc.Statement(ctx, accountID, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApplyNonEnforcingDebitMayOverdraw(t *testing.T) {
	conn := setupLedgerTestDB(t)
	svc := newLedgerService(t, conn)
	ctx := context.Background()

	accountID := seedAccount(t, conn, enums.ActorTypeEntregador, 100)

	// Reversal categories are posted even past zero so audits can undo
	// earnings credited in error.
	entry, err := svc.Apply(ctx, ApplyInput{
		AccountID:  accountID,
		DeltaCents: -300,
		Category:   enums.LedgerCategoryJobEarning,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-200), entry.BalanceAfterCents)
}

func TestApplyTxPairConservesTotal(t *testing.T) {
	conn := setupLedgerTestDB(t)
	svc := newLedgerService(t, conn)
	ctx := context.Background()

	merchantID := seedAccount(t, conn, enums.ActorTypeLojista, 10000)
	courierID := seedAccount(t, conn, enums.ActorTypeEntregador, 0)
	corridaID := uuid.New()

	err := db.NewRunner(conn).WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := svc.ApplyTx(ctx, tx, ApplyInput{
			AccountID:  merchantID,
			DeltaCents: -2500,
			Category:   enums.LedgerCategoryJobCharge,
			CorridaID:  &corridaID,
		}); err != nil {
			return err
		}
		_, err := svc.ApplyTx(ctx, tx, ApplyInput{
			AccountID:  courierID,
			DeltaCents: 2500,
			Category:   enums.LedgerCategoryJobEarning,
			CorridaID:  &corridaID,
		})
		return err
	})
	require.NoError(t, err)

	entries, err := svc.EntriesForCorrida(ctx, corridaID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var sum int64
	for _, e := range entries {
		sum += e.AmountCents
	}
	assert.Equal(t, int64(0), sum, "paired movements must conserve the total")
}

func TestApplyTxRollsBackWithCallerTx(t *testing.T) {
	conn := setupLedgerTestDB(t)
	svc := newLedgerService(t, conn)
	ctx := context.Background()

	merchantID := seedAccount(t, conn, enums.ActorTypeLojista, 10000)
	courierID := seedAccount(t, conn, enums.ActorTypeEntregador, 0)

	err := db.NewRunner(conn).WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := svc.ApplyTx(ctx, tx, ApplyInput{
			AccountID:  merchantID,
			DeltaCents: -2500,
			Category:   enums.LedgerCategoryJobCharge,
		}); err != nil {
			return err
		}
		// Debiting a courier with no balance fails and aborts the pair.
		_, err := svc.ApplyTx(ctx, tx, ApplyInput{
			AccountID:  courierID,
			DeltaCents: -9999,
			Category:   enums.LedgerCategoryPenalty,
		})
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInsufficientFunds))

	balance, err := svc.Balance(ctx, merchantID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), balance, "merchant debit must roll back with the failed pair")
}

type contentiousRepo struct {
	Repository
	failSwaps int
	attempts  int
}

func (r *contentiousRepo) WithTx(tx *gorm.DB) Repository {
	return r
}

func (r *contentiousRepo) CompareAndSwapBalance(ctx context.Context, accountID uuid.UUID, before, after int64) (bool, error) {
	r.attempts++
	if r.attempts <= r.failSwaps {
		return false, nil
	}
	return r.Repository.CompareAndSwapBalance(ctx, accountID, before, after)
}

func TestApplyRetriesOnBalanceContention(t *testing.T) {
	conn := setupLedgerTestDB(t)
	ctx := context.Background()

	accountID := seedAccount(t, conn, enums.ActorTypeLojista, 1000)

	repo := &contentiousRepo{Repository: NewRepository(conn), failSwaps: 2}
	svc, err := NewService(repo, db.NewRunner(conn))
	require.NoError(t, err)

	entry, err := svc.Apply(ctx, ApplyInput{
		AccountID:  accountID,
		DeltaCents: 500,
		Category:   enums.LedgerCategoryDeposit,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, repo.attempts)
	assert.Equal(t, int64(1500), entry.BalanceAfterCents)
}

func TestApplyValidation(t *testing.T) {
	conn := setupLedgerTestDB(t)
	svc := newLedgerService(t, conn)
	ctx := context.Background()

	_, err := svc.Apply(ctx, ApplyInput{DeltaCents: 100, Category: enums.LedgerCategoryDeposit})
	assert.True(t, errors.HasCode(err, errors.CodeValidation))

	_, err = svc.Apply(ctx, ApplyInput{AccountID: uuid.New(), Category: enums.LedgerCategoryDeposit})
	assert.True(t, errors.HasCode(err, errors.CodeValidation))

	_, err = svc.Apply(ctx, ApplyInput{AccountID: uuid.New(), DeltaCents: 100, Category: "bogus"})
	assert.True(t, errors.HasCode(err, errors.CodeValidation))

	_, err = svc.Apply(ctx, ApplyInput{AccountID: uuid.New(), DeltaCents: 100, Category: enums.LedgerCategoryDeposit})
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}
