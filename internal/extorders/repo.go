package extorders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/viaentrega/viaentrega-backend/pkg/db/models"
	"github.com/viaentrega/viaentrega-backend/pkg/enums"
)

// Repository manages persistence for staged external orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.ExternalOrder) error
	Save(ctx context.Context, order *models.ExternalOrder) error
	GetByExternalID(ctx context.Context, merchantID uuid.UUID, externalOrderID string) (*models.ExternalOrder, error)
	Get(ctx context.Context, merchantID, orderID uuid.UUID) (*models.ExternalOrder, error)
	GetImportedByCorrida(ctx context.Context, corridaID uuid.UUID) (*models.ExternalOrder, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID, statuses []enums.ExternalOrderStatus) ([]models.ExternalOrder, error)
	ListStagedSelected(ctx context.Context, merchantID uuid.UUID) ([]models.ExternalOrder, error)
	// MarkImported flips a staged order to imported iff it is still staged.
	MarkImported(ctx context.Context, orderID, corridaID uuid.UUID, at time.Time) (bool, error)
	// Requeue returns an imported order to staged, bumping the retry
	// counter and clearing the corrida linkage.
	Requeue(ctx context.Context, orderID uuid.UUID) (bool, error)
	// MarkTerminal parks an imported order permanently.
	MarkTerminal(ctx context.Context, orderID uuid.UUID) (bool, error)
	SetSelected(ctx context.Context, merchantID, orderID uuid.UUID, selected bool) (bool, error)
	// ListConnectedMerchants returns the lojista accounts that carry a
	// marketplace seller reference, for the periodic sync worker.
	ListConnectedMerchants(ctx context.Context) ([]models.Account, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an external order repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.ExternalOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) Save(ctx context.Context, order *models.ExternalOrder) error {
	return r.db.WithContext(ctx).Save(order).Error
}

func (r *repository) GetByExternalID(ctx context.Context, merchantID uuid.UUID, externalOrderID string) (*models.ExternalOrder, error) {
	var order models.ExternalOrder
	err := r.db.WithContext(ctx).
		First(&order, "merchant_id = ? AND external_order_id = ?", merchantID, externalOrderID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) Get(ctx context.Context, merchantID, orderID uuid.UUID) (*models.ExternalOrder, error) {
	var order models.ExternalOrder
	err := r.db.WithContext(ctx).
		First(&order, "id = ? AND merchant_id = ?", orderID, merchantID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetImportedByCorrida(ctx context.Context, corridaID uuid.UUID) (*models.ExternalOrder, error) {
	var order models.ExternalOrder
	err := r.db.WithContext(ctx).
		First(&order, "corrida_id = ? AND status = ?", corridaID, enums.ExternalOrderStatusImported).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByMerchant(ctx context.Context, merchantID uuid.UUID, statuses []enums.ExternalOrderStatus) ([]models.ExternalOrder, error) {
	q := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var orders []models.ExternalOrder
	if err := q.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListStagedSelected(ctx context.Context, merchantID uuid.UUID) ([]models.ExternalOrder, error) {
	var orders []models.ExternalOrder
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND status = ? AND selected = ?", merchantID, enums.ExternalOrderStatusStaged, true).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) MarkImported(ctx context.Context, orderID, corridaID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ExternalOrder{}).
		Where("id = ? AND status = ?", orderID, enums.ExternalOrderStatusStaged).
		Updates(map[string]any{
			"status":      enums.ExternalOrderStatusImported,
			"corrida_id":  corridaID,
			"imported_at": at,
			"selected":    false,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Requeue(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ExternalOrder{}).
		Where("id = ? AND status = ?", orderID, enums.ExternalOrderStatusImported).
		Updates(map[string]any{
			"status":      enums.ExternalOrderStatusStaged,
			"retry_count": gorm.Expr("retry_count + 1"),
			"corrida_id":  nil,
			"imported_at": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkTerminal(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ExternalOrder{}).
		Where("id = ? AND status = ?", orderID, enums.ExternalOrderStatusImported).
		Updates(map[string]any{
			"status":   enums.ExternalOrderStatusTerminalCancelled,
			"selected": false,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetSelected(ctx context.Context, merchantID, orderID uuid.UUID, selected bool) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ExternalOrder{}).
		Where("id = ? AND merchant_id = ? AND status = ?", orderID, merchantID, enums.ExternalOrderStatusStaged).
		Update("selected", selected)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListConnectedMerchants(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.WithContext(ctx).
		Where("type = ?", enums.ActorTypeLojista).
		Where("seller_ref IS NOT NULL AND seller_ref <> ''").
		Order("created_at ASC").
		Find(&accounts).Error
	return accounts, err
}
