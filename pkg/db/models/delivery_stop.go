package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/viaentrega/viaentrega-backend/pkg/enums"
	"github.com/viaentrega/viaentrega-backend/pkg/types"
)

// DeliveryStop is one drop-off of a corrida. Position preserves the order
// the lojista entered the stops in; the confirmation code is unique within
// the corrida.
type DeliveryStop struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	CorridaID     uuid.UUID        `gorm:"column:corrida_id;type:uuid;not null"`
	Position      int              `gorm:"column:position;not null"`
	Address       types.Address    `gorm:"column:address;type:jsonb;serializer:json"`
	Lat           float64          `gorm:"column:lat;not null"`
	Lng           float64          `gorm:"column:lng;not null"`
	PackageCount  int              `gorm:"column:package_count;not null"`
	Code          string           `gorm:"column:code;not null"`
	Status        enums.StopStatus `gorm:"column:status;type:text;not null;default:'pendente'"`
	DeliveredAt   *time.Time       `gorm:"column:delivered_at"`
	ReceiverName  *string          `gorm:"column:receiver_name"`
	ReceiverPhone *string          `gorm:"column:receiver_phone"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
