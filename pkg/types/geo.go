package types

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether the coordinate pair was never resolved.
func (p LatLng) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

// Address carries the human-entered address fields for a pickup or stop.
type Address struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code,omitempty"`
}

// Text renders the address as a single geocodable line.
func (a Address) Text() string {
	out := a.Street
	if a.Number != "" {
		out += ", " + a.Number
	}
	if a.Neighborhood != "" {
		out += ", " + a.Neighborhood
	}
	if a.City != "" {
		out += ", " + a.City
	}
	if a.State != "" {
		out += " - " + a.State
	}
	if a.PostalCode != "" {
		out += ", " + a.PostalCode
	}
	return out
}

// IsZero reports whether no address fields were filled in.
func (a Address) IsZero() bool {
	return a == Address{}
}
