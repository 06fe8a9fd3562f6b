package enums

import "fmt"

// StopStatus tracks the delivery state of a single drop-off.
type StopStatus string

const (
	StopStatusPendente StopStatus = "pendente"
	StopStatusEntregue StopStatus = "entregue"
	StopStatusProblema StopStatus = "problema"
)

var validStopStatuses = []StopStatus{
	StopStatusPendente,
	StopStatusEntregue,
	StopStatusProblema,
}

// String implements fmt.Stringer.
func (s StopStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StopStatus.
func (s StopStatus) IsValid() bool {
	for _, candidate := range validStopStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStopStatus converts raw input into a StopStatus.
func ParseStopStatus(value string) (StopStatus, error) {
	for _, candidate := range validStopStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stop status %q", value)
}
