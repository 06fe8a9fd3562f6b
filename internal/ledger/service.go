package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/viaentrega/viaentrega-backend/pkg/db"
	"github.com/viaentrega/viaentrega-backend/pkg/db/models"
	"github.com/viaentrega/viaentrega-backend/pkg/enums"
	"github.com/viaentrega/viaentrega-backend/pkg/errors"
)

// casAttempts bounds the optimistic retry loop when two writers race on the
// same account balance.
const casAttempts = 5

// Service records balance changes as an append-only entry chain.
type Service interface {
	// Apply posts a single balance change in its own transaction.
	Apply(ctx context.Context, input ApplyInput) (*models.LedgerEntry, error)
	// ApplyTx posts a balance change inside the caller's transaction, so a
	// corrida transition and its ledger movements commit or roll back as one.
	ApplyTx(ctx context.Context, tx *gorm.DB, input ApplyInput) (*models.LedgerEntry, error)
	Statement(ctx context.Context, accountID uuid.UUID, limit int) ([]models.LedgerEntry, error)
	EntriesForCorrida(ctx context.Context, corridaID uuid.UUID) ([]models.LedgerEntry, error)
	Balance(ctx context.Context, accountID uuid.UUID) (int64, error)
}

// ApplyInput captures the immutable data one ledger entry requires.
type ApplyInput struct {
	AccountID   uuid.UUID
	DeltaCents  int64
	Category    enums.LedgerCategory
	CorridaID   *uuid.UUID
	Description string
}

type service struct {
	repo   Repository
	runner db.TxRunner
}

// NewService wires a ledger service with the provided repository and
// transaction runner.
func NewService(repo Repository, runner db.TxRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if runner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, runner: runner}, nil
}

func (s *service) Apply(ctx context.Context, input ApplyInput) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		posted, err := s.ApplyTx(ctx, tx, input)
		if err != nil {
			return err
		}
		entry = posted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) ApplyTx(ctx context.Context, tx *gorm.DB, input ApplyInput) (*models.LedgerEntry, error) {
	if input.AccountID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "account id is required")
	}
	if input.DeltaCents == 0 {
		return nil, errors.New(errors.CodeValidation, "amount must be non-zero")
	}
	if !input.Category.IsValid() {
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("invalid ledger category %q", input.Category))
	}

	repo := s.repo.WithTx(tx)

	// Per-account serialization via compare-and-swap on the stored balance.
	// A losing writer re-reads and retries, so concurrent entries for the
	// same account still chain balance_before to the prior balance_after.
	for attempt := 0; attempt < casAttempts; attempt++ {
		account, err := repo.GetAccount(ctx, input.AccountID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, errors.New(errors.CodeNotFound, "account not found")
			}
			return nil, errors.Wrap(errors.CodeInternal, err, "load account")
		}

		before := account.BalanceCents
		after := before + input.DeltaCents
		if input.DeltaCents < 0 && after < 0 && input.Category.EnforcesBalance() {
			return nil, errors.New(errors.CodeInsufficientFunds,
				fmt.Sprintf("balance %d insufficient for debit of %d", before, -input.DeltaCents))
		}

		swapped, err := repo.CompareAndSwapBalance(ctx, input.AccountID, before, after)
		if err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "update balance")
		}
		if !swapped {
			continue
		}

		entry := &models.LedgerEntry{
			ID:                 uuid.New(),
			AccountID:          input.AccountID,
			AmountCents:        input.DeltaCents,
			BalanceBeforeCents: before,
			BalanceAfterCents:  after,
			Category:           input.Category,
			CorridaID:          input.CorridaID,
		}
		if input.Description != "" {
			entry.Description = &input.Description
		}
		if err := repo.CreateEntry(ctx, entry); err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "record ledger entry")
		}
		return entry, nil
	}

	return nil, errors.New(errors.CodeInternal, "account balance contention not resolved")
}

func (s *service) Statement(ctx context.Context, accountID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	if accountID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "account id is required")
	}
	entries, err := s.repo.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "list ledger entries")
	}
	return entries, nil
}

func (s *service) EntriesForCorrida(ctx context.Context, corridaID uuid.UUID) ([]models.LedgerEntry, error) {
	if corridaID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "corrida id is required")
	}
	entries, err := s.repo.ListByCorrida(ctx, corridaID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "list ledger entries")
	}
	return entries, nil
}

func (s *service) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	if accountID == uuid.Nil {
		return 0, errors.New(errors.CodeValidation, "account id is required")
	}
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, errors.New(errors.CodeNotFound, "account not found")
		}
		return 0, errors.Wrap(errors.CodeInternal, err, "load account")
	}
	return account.BalanceCents, nil
}
