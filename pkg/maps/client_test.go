package maps

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/viaentrega/viaentrega-backend/pkg/types"
)

func TestRouteSumsLegs(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "OK",
			"routes": [{"legs": [
				{"distance": {"value": 4200}},
				{"distance": {"value": 5800}}
			]}]
		}`))
	}))
	defer server.Close()

	client, err := NewClient("test-key", WithDirectionsBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	km, err := client.Route(context.Background(), types.LatLng{Lat: -23.5, Lng: -46.6}, []types.LatLng{
		{Lat: -23.51, Lng: -46.61},
		{Lat: -23.52, Lng: -46.62},
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if km != 10.0 {
		t.Fatalf("expected 10km, got %f", km)
	}
	if gotQuery == "" || !contains(gotQuery, "mode=driving") {
		t.Fatalf("driving mode not requested: %s", gotQuery)
	}
	if contains(gotQuery, "optimize") {
		t.Fatalf("waypoints must not be re-optimized: %s", gotQuery)
	}
}

func TestRouteUnavailableStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "OVER_QUERY_LIMIT", "routes": []}`))
	}))
	defer server.Close()

	client, _ := NewClient("test-key", WithDirectionsBaseURL(server.URL))
	_, err := client.Route(context.Background(), types.LatLng{Lat: 1, Lng: 1}, []types.LatLng{{Lat: 2, Lng: 2}})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestGeocodeNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	}))
	defer server.Close()

	client, _ := NewClient("test-key", WithGeocodingBaseURL(server.URL))
	_, err := client.Geocode(context.Background(), "Rua Inexistente, 999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGeocodeReturnsLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"status": "OK",
			"results": [{"geometry": {"location": {"lat": -23.55, "lng": -46.63}}}]
		}`))
	}))
	defer server.Close()

	client, _ := NewClient("test-key", WithGeocodingBaseURL(server.URL))
	loc, err := client.Geocode(context.Background(), "Praça da Sé, São Paulo")
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if loc.Lat != -23.55 || loc.Lng != -46.63 {
		t.Fatalf("unexpected location: %+v", loc)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
