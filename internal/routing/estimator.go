package routing

import (
	"context"
	"math"

	"github.com/viaentrega/viaentrega-backend/pkg/logger"
	"github.com/viaentrega/viaentrega-backend/pkg/types"
)

// RoutingProvider produces a driving distance through the waypoints in the
// order given.
type RoutingProvider interface {
	Route(ctx context.Context, origin types.LatLng, stops []types.LatLng) (float64, error)
}

// GeocodingProvider resolves a free-form address into coordinates.
type GeocodingProvider interface {
	Geocode(ctx context.Context, address string) (types.LatLng, error)
}

// Waypoint is a pickup or drop-off to be routed through. When Location is
// unset the estimator tries to geocode Address.
type Waypoint struct {
	Location types.LatLng
	Address  types.Address
}

// Estimator resolves the total route distance of a corrida. It prefers the
// external routing provider and falls back to a great-circle sum when the
// provider is unavailable. A zero result means the distance could not be
// resolved; callers must treat that as "pricing not computable", never as a
// free or minimum-fare route.
type Estimator struct {
	router   RoutingProvider
	geocoder GeocodingProvider
	logg     *logger.Logger
}

// NewEstimator wires an Estimator. Both providers are optional; with
// neither available only waypoints that already carry coordinates can be
// estimated.
func NewEstimator(router RoutingProvider, geocoder GeocodingProvider, logg *logger.Logger) *Estimator {
	return &Estimator{router: router, geocoder: geocoder, logg: logg}
}

// Estimate returns the route distance in kilometers for
// origin → stop1 → … → stopN, preserving the stop order as entered.
func (e *Estimator) Estimate(ctx context.Context, origin Waypoint, stops []Waypoint) (float64, error) {
	if len(stops) == 0 {
		return 0, nil
	}

	points := make([]types.LatLng, 0, len(stops)+1)
	resolved := true
	for _, wp := range append([]Waypoint{origin}, stops...) {
		p := e.resolve(ctx, wp)
		if p.IsZero() {
			resolved = false
			break
		}
		points = append(points, p)
	}
	if !resolved {
		return 0, nil
	}

	if e.router != nil {
		km, err := e.router.Route(ctx, points[0], points[1:])
		if err == nil && km > 0 {
			return km, nil
		}
		if err != nil && e.logg != nil {
			e.logg.Warn(ctx, "routing provider failed, falling back to great-circle estimate")
		}
	}

	total := 0.0
	for i := 1; i < len(points); i++ {
		total += haversineKm(points[i-1], points[i])
	}
	return total, nil
}

func (e *Estimator) resolve(ctx context.Context, wp Waypoint) types.LatLng {
	if !wp.Location.IsZero() {
		return wp.Location
	}
	if e.geocoder == nil || wp.Address.IsZero() {
		return types.LatLng{}
	}
	p, err := e.geocoder.Geocode(ctx, wp.Address.Text())
	if err != nil {
		return types.LatLng{}
	}
	return p
}

const earthRadiusKm = 6371.0

func haversineKm(a, b types.LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	dlat := (b.Lat - a.Lat) * math.Pi / 180.0
	dlng := (b.Lng - a.Lng) * math.Pi / 180.0
	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
