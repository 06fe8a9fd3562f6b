package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/viaentrega/viaentrega-backend/pkg/db/models"
)

// Repository manages persistence for accounts and ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	// CompareAndSwapBalance moves the account balance from `before` to
	// `after` only if the stored balance still equals `before`. It reports
	// whether the swap landed.
	CompareAndSwapBalance(ctx context.Context, accountID uuid.UUID, before, after int64) (bool, error)
	CreateEntry(ctx context.Context, entry *models.LedgerEntry) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]models.LedgerEntry, error)
	ListByCorrida(ctx context.Context, corridaID uuid.UUID) ([]models.LedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) CompareAndSwapBalance(ctx context.Context, accountID uuid.UUID, before, after int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND balance_cents = ?", accountID, before).
		Update("balance_cents", after)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	q := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListByCorrida(ctx context.Context, corridaID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("corrida_id = ?", corridaID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
