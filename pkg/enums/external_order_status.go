package enums

import "fmt"

// ExternalOrderStatus tracks the reconciliation state of a staged
// marketplace order.
type ExternalOrderStatus string

const (
	ExternalOrderStatusStaged            ExternalOrderStatus = "staged"
	ExternalOrderStatusImported          ExternalOrderStatus = "imported"
	ExternalOrderStatusTerminalCancelled ExternalOrderStatus = "terminal_cancelled"
)

var validExternalOrderStatuses = []ExternalOrderStatus{
	ExternalOrderStatusStaged,
	ExternalOrderStatusImported,
	ExternalOrderStatusTerminalCancelled,
}

// String implements fmt.Stringer.
func (s ExternalOrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ExternalOrderStatus.
func (s ExternalOrderStatus) IsValid() bool {
	for _, candidate := range validExternalOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseExternalOrderStatus converts raw input into an ExternalOrderStatus.
func ParseExternalOrderStatus(value string) (ExternalOrderStatus, error) {
	for _, candidate := range validExternalOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid external order status %q", value)
}
