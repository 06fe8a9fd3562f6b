package enums

import "fmt"

// ActorType distinguishes the two sides of the marketplace.
type ActorType string

const (
	ActorTypeLojista    ActorType = "lojista"
	ActorTypeEntregador ActorType = "entregador"
)

// String implements fmt.Stringer.
func (a ActorType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ActorType.
func (a ActorType) IsValid() bool {
	return a == ActorTypeLojista || a == ActorTypeEntregador
}

// ParseActorType converts raw input into an ActorType.
func ParseActorType(value string) (ActorType, error) {
	switch ActorType(value) {
	case ActorTypeLojista:
		return ActorTypeLojista, nil
	case ActorTypeEntregador:
		return ActorTypeEntregador, nil
	}
	return "", fmt.Errorf("invalid actor type %q", value)
}

// CourierStatus describes whether an entregador may claim corridas.
type CourierStatus string

const (
	CourierStatusOnline  CourierStatus = "online"
	CourierStatusOffline CourierStatus = "offline"
)

// IsValid reports whether the value is a known CourierStatus.
func (s CourierStatus) IsValid() bool {
	return s == CourierStatusOnline || s == CourierStatusOffline
}

// String implements fmt.Stringer.
func (s CourierStatus) String() string {
	return string(s)
}
