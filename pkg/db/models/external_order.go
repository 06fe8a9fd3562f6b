package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/viaentrega/viaentrega-backend/pkg/enums"
	"github.com/viaentrega/viaentrega-backend/pkg/types"
)

// ExternalOrder is a marketplace order staged for import into a corrida.
// Rows are never deleted; a cancelled import either returns to staged
// (retry counter incremented) or parks permanently in terminal_cancelled.
type ExternalOrder struct {
	ID                 uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	MerchantID         uuid.UUID                 `gorm:"column:merchant_id;type:uuid;not null;uniqueIndex:ux_external_orders_merchant_order,priority:1"`
	ExternalOrderID    string                    `gorm:"column:external_order_id;not null;uniqueIndex:ux_external_orders_merchant_order,priority:2"`
	ExternalShipmentID string                    `gorm:"column:external_shipment_id;not null"`
	Status             enums.ExternalOrderStatus `gorm:"column:status;type:text;not null;default:'staged'"`
	RetryCount         int                       `gorm:"column:retry_count;not null;default:0"`
	Selected           bool                      `gorm:"column:selected;not null;default:false"`
	CorridaID          *uuid.UUID                `gorm:"column:corrida_id;type:uuid"`
	ImportedAt         *time.Time                `gorm:"column:imported_at"`
	PackageCount       int                       `gorm:"column:package_count;not null;default:1"`
	ReceiverName       *string                   `gorm:"column:receiver_name"`
	ReceiverPhone      *string                   `gorm:"column:receiver_phone"`
	PickupAddress      types.Address             `gorm:"column:pickup_address;type:jsonb;serializer:json"`
	PickupLat          float64                   `gorm:"column:pickup_lat;not null;default:0"`
	PickupLng          float64                   `gorm:"column:pickup_lng;not null;default:0"`
	DeliveryAddress    types.Address             `gorm:"column:delivery_address;type:jsonb;serializer:json"`
	DeliveryLat        float64                   `gorm:"column:delivery_lat;not null;default:0"`
	DeliveryLng        float64                   `gorm:"column:delivery_lng;not null;default:0"`
	CreatedAt          time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
