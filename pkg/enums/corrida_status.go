package enums

import "fmt"

// CorridaStatus tracks the lifecycle of a corrida.
type CorridaStatus string

const (
	CorridaStatusAguardando CorridaStatus = "aguardando"
	CorridaStatusAceita     CorridaStatus = "aceita"
	CorridaStatusColetando  CorridaStatus = "coletando"
	CorridaStatusEmEntrega  CorridaStatus = "em_entrega"
	CorridaStatusFinalizada CorridaStatus = "finalizada"
	CorridaStatusCancelada  CorridaStatus = "cancelada"
)

var validCorridaStatuses = []CorridaStatus{
	CorridaStatusAguardando,
	CorridaStatusAceita,
	CorridaStatusColetando,
	CorridaStatusEmEntrega,
	CorridaStatusFinalizada,
	CorridaStatusCancelada,
}

// corridaTransitions encodes the state diagram. Terminal states have no
// outgoing edges; nothing ever re-enters an earlier state.
var corridaTransitions = map[CorridaStatus][]CorridaStatus{
	CorridaStatusAguardando: {CorridaStatusAceita, CorridaStatusCancelada},
	CorridaStatusAceita:     {CorridaStatusColetando, CorridaStatusCancelada},
	CorridaStatusColetando:  {CorridaStatusEmEntrega, CorridaStatusCancelada},
	CorridaStatusEmEntrega:  {CorridaStatusFinalizada},
}

// String implements fmt.Stringer.
func (s CorridaStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CorridaStatus.
func (s CorridaStatus) IsValid() bool {
	for _, candidate := range validCorridaStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s CorridaStatus) IsTerminal() bool {
	return s == CorridaStatusFinalizada || s == CorridaStatusCancelada
}

// IsActiveRoute reports whether a corrida in this status occupies one of the
// courier's simultaneous route slots.
func (s CorridaStatus) IsActiveRoute() bool {
	switch s {
	case CorridaStatusAceita, CorridaStatusColetando, CorridaStatusEmEntrega:
		return true
	}
	return false
}

// CanTransition reports whether the state diagram permits from → to.
func CanTransition(from, to CorridaStatus) bool {
	for _, next := range corridaTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseCorridaStatus converts raw input into a CorridaStatus.
func ParseCorridaStatus(value string) (CorridaStatus, error) {
	for _, candidate := range validCorridaStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid corrida status %q", value)
}
