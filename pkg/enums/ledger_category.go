package enums

import "fmt"

// LedgerCategory classifies a single balance change.
type LedgerCategory string

const (
	LedgerCategoryDeposit    LedgerCategory = "deposit"
	LedgerCategoryWithdrawal LedgerCategory = "withdrawal"
	LedgerCategoryJobCharge  LedgerCategory = "job_charge"
	LedgerCategoryJobEarning LedgerCategory = "job_earning"
	LedgerCategoryPenalty    LedgerCategory = "penalty"
	LedgerCategoryRefund     LedgerCategory = "refund"
)

var validLedgerCategories = []LedgerCategory{
	LedgerCategoryDeposit,
	LedgerCategoryWithdrawal,
	LedgerCategoryJobCharge,
	LedgerCategoryJobEarning,
	LedgerCategoryPenalty,
	LedgerCategoryRefund,
}

// String implements fmt.Stringer.
func (c LedgerCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known LedgerCategory.
func (c LedgerCategory) IsValid() bool {
	for _, candidate := range validLedgerCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// EnforcesBalance reports whether a negative delta in this category must be
// rejected when it would leave the actor's balance below zero. Deposits,
// earnings and refunds always land regardless of the current balance.
func (c LedgerCategory) EnforcesBalance() bool {
	switch c {
	case LedgerCategoryWithdrawal, LedgerCategoryJobCharge, LedgerCategoryPenalty:
		return true
	}
	return false
}

// ParseLedgerCategory converts raw input into a LedgerCategory.
func ParseLedgerCategory(value string) (LedgerCategory, error) {
	for _, candidate := range validLedgerCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger category %q", value)
}
