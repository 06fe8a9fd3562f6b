package corridas

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/viaentrega/viaentrega-backend/pkg/db/models"
	"github.com/viaentrega/viaentrega-backend/pkg/enums"
	"github.com/viaentrega/viaentrega-backend/pkg/pagination"
)

// Repository manages persistence for corridas and their stops.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, corrida *models.Corrida) error
	Get(ctx context.Context, id uuid.UUID) (*models.Corrida, error)
	// GetForUpdate loads the corrida holding its row lock for the rest of
	// the transaction. Must be called inside WithTx.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Corrida, error)
	// Claim assigns the courier iff the corrida is still aguardando. It
	// reports whether this caller won the row.
	Claim(ctx context.Context, corridaID, courierID uuid.UUID, acceptedAt time.Time) (bool, error)
	// Transition moves the corrida from one status to another iff it is
	// still in the source status, applying extra column updates atomically
	// with the flip.
	Transition(ctx context.Context, corridaID uuid.UUID, from, to enums.CorridaStatus, updates map[string]any) (bool, error)
	CountActiveForCourier(ctx context.Context, courierID uuid.UUID) (int64, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	// GetAccountForUpdate loads the account holding its row lock, so
	// concurrent claims by the same courier serialize on it.
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error)
	MarkStopDelivered(ctx context.Context, stopID uuid.UUID, deliveredAt time.Time) (bool, error)
	CountPendingStops(ctx context.Context, corridaID uuid.UUID) (int64, error)
	ListAwaiting(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.Corrida, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Corrida, error)
	ListByCourier(ctx context.Context, courierID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Corrida, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a corrida repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, corrida *models.Corrida) error {
	return r.db.WithContext(ctx).Create(corrida).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Corrida, error) {
	var corrida models.Corrida
	err := r.db.WithContext(ctx).
		Preload("Stops", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		First(&corrida, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &corrida, nil
}

func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Corrida, error) {
	var corrida models.Corrida
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Stops", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		First(&corrida, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &corrida, nil
}

func (r *repository) Claim(ctx context.Context, corridaID, courierID uuid.UUID, acceptedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Corrida{}).
		Where("id = ? AND status = ? AND courier_id IS NULL", corridaID, enums.CorridaStatusAguardando).
		Updates(map[string]any{
			"status":      enums.CorridaStatusAceita,
			"courier_id":  courierID,
			"accepted_at": acceptedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Transition(ctx context.Context, corridaID uuid.UUID, from, to enums.CorridaStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for column, value := range updates {
		values[column] = value
	}
	res := r.db.WithContext(ctx).
		Model(&models.Corrida{}).
		Where("id = ? AND status = ?", corridaID, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CountActiveForCourier(ctx context.Context, courierID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Corrida{}).
		Where("courier_id = ? AND status IN ?", courierID, []enums.CorridaStatus{
			enums.CorridaStatusAceita,
			enums.CorridaStatusColetando,
			enums.CorridaStatusEmEntrega,
		}).
		Count(&count).Error
	return count, err
}

func (r *repository) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&account, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) MarkStopDelivered(ctx context.Context, stopID uuid.UUID, deliveredAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.DeliveryStop{}).
		Where("id = ? AND status = ?", stopID, enums.StopStatusPendente).
		Updates(map[string]any{
			"status":       enums.StopStatusEntregue,
			"delivered_at": deliveredAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CountPendingStops(ctx context.Context, corridaID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DeliveryStop{}).
		Where("corrida_id = ? AND status = ?", corridaID, enums.StopStatusPendente).
		Count(&count).Error
	return count, err
}

func (r *repository) ListAwaiting(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.Corrida, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("status = ?", enums.CorridaStatusAguardando), cursor, limit)
}

func (r *repository) ListByMerchant(ctx context.Context, merchantID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Corrida, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("merchant_id = ?", merchantID), cursor, limit)
}

func (r *repository) ListByCourier(ctx context.Context, courierID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Corrida, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("courier_id = ?", courierID), cursor, limit)
}

func (r *repository) list(ctx context.Context, q *gorm.DB, cursor *pagination.Cursor, limit int) ([]models.Corrida, error) {
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var corridas []models.Corrida
	err := q.
		Preload("Stops", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&corridas).Error
	if err != nil {
		return nil, err
	}
	return corridas, nil
}
