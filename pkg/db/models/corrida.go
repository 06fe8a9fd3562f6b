package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/viaentrega/viaentrega-backend/pkg/enums"
	"github.com/viaentrega/viaentrega-backend/pkg/types"
)

// Corrida is a single delivery job: one pickup, one or more drop-offs.
// ReservedCents mirrors TotalCents at creation and is cleared to NULL only
// once the reservation has been resolved (refunded on cancellation or
// consumed at finalization).
type Corrida struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	MerchantID     uuid.UUID           `gorm:"column:merchant_id;type:uuid;not null"`
	CourierID      *uuid.UUID          `gorm:"column:courier_id;type:uuid"`
	PlatformOrigin string              `gorm:"column:platform_origin;not null;default:'app'"`
	Status         enums.CorridaStatus `gorm:"column:status;type:text;not null;default:'aguardando'"`
	TotalCents     int64               `gorm:"column:total_cents;not null"`
	ReservedCents  *int64              `gorm:"column:reserved_cents"`
	FreightCents   int64               `gorm:"column:freight_cents;not null;default:0"`
	PackageCount   int                 `gorm:"column:package_count;not null"`
	DistanceKm     float64             `gorm:"column:distance_km;not null"`
	PickupAddress  types.Address       `gorm:"column:pickup_address;type:jsonb;serializer:json"`
	PickupLat      float64             `gorm:"column:pickup_lat;not null"`
	PickupLng      float64             `gorm:"column:pickup_lng;not null"`
	PickupCode     string              `gorm:"column:pickup_code;not null"`
	WeightKg       *float64            `gorm:"column:weight_kg"`
	VolumeM3       *float64            `gorm:"column:volume_m3"`
	AcceptedAt     *time.Time          `gorm:"column:accepted_at"`
	CollectedAt    *time.Time          `gorm:"column:collected_at"`
	FinalizedAt    *time.Time          `gorm:"column:finalized_at"`
	CancelledAt    *time.Time          `gorm:"column:cancelled_at"`
	CancelReason   *string             `gorm:"column:cancel_reason"`
	Stops          []DeliveryStop      `gorm:"foreignKey:CorridaID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
