package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/viaentrega/viaentrega-backend/pkg/enums"
)

// LedgerEntry records an immutable balance change for one account.
// Balance before and after are recorded, not derived, so the ledger is
// self-auditing: for a given account, entries ordered by creation form a
// chain where each balance_before equals the previous balance_after.
type LedgerEntry struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	AccountID          uuid.UUID            `gorm:"column:account_id;type:uuid;not null"`
	AmountCents        int64                `gorm:"column:amount_cents;not null"`
	BalanceBeforeCents int64                `gorm:"column:balance_before_cents;not null"`
	BalanceAfterCents  int64                `gorm:"column:balance_after_cents;not null"`
	Category           enums.LedgerCategory `gorm:"column:category;type:text;not null"`
	CorridaID          *uuid.UUID           `gorm:"column:corrida_id;type:uuid"`
	Description        *string              `gorm:"column:description"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"`
}
