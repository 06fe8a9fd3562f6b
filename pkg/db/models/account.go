package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/viaentrega/viaentrega-backend/pkg/enums"
)

// Account is the balance-carrying identity of a lojista or entregador.
// Profile, documents and auth live in the out-of-scope identity system;
// the core only needs the actor type, the prepaid balance and, for
// entregadores, the availability flag.
type Account struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Type          enums.ActorType     `gorm:"column:type;type:text;not null"`
	Name          string              `gorm:"column:name;not null"`
	BalanceCents  int64               `gorm:"column:balance_cents;not null;default:0"`
	CourierStatus enums.CourierStatus `gorm:"column:courier_status;type:text;not null;default:'offline'"`
	SellerRef     *string             `gorm:"column:seller_ref"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
