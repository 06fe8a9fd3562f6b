package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/viaentrega/viaentrega-backend/pkg/types"
)

const (
	defaultDirectionsBaseURL = "https://maps.googleapis.com/maps/api/directions"
	defaultGeocodingBaseURL  = "https://maps.googleapis.com/maps/api/geocode"
)

var (
	errAPIKeyRequired = errors.New("google maps api key is required")

	// ErrUnavailable signals the routing provider could not produce a route.
	ErrUnavailable = errors.New("routing provider unavailable")
	// ErrNotFound signals geocoding produced no result for the address.
	ErrNotFound = errors.New("address not found")
)

// Client wraps the Google Maps Directions and Geocoding APIs used to
// resolve corrida route distances.
type Client struct {
	httpClient        *http.Client
	directionsBaseURL string
	geocodingBaseURL  string
	apiKey            string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithDirectionsBaseURL overrides the Directions base URL.
func WithDirectionsBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.directionsBaseURL = trimmed
		}
	}
}

// WithGeocodingBaseURL overrides the Geocoding base URL.
func WithGeocodingBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.geocodingBaseURL = trimmed
		}
	}
}

// NewClient builds the Google Maps client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:            trimmedKey,
		directionsBaseURL: defaultDirectionsBaseURL,
		geocodingBaseURL:  defaultGeocodingBaseURL,
		httpClient:        &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

type directionsResponse struct {
	Status string `json:"status"`
	Routes []struct {
		Legs []struct {
			Distance struct {
				Value int `json:"value"`
			} `json:"distance"`
		} `json:"legs"`
	} `json:"routes"`
}

// Route asks the Directions API for a driving route through the waypoints
// exactly as ordered (no waypoint optimization: stop order carries the
// lojista's dispatch intent) and returns the total distance in kilometers.
func (c *Client) Route(ctx context.Context, origin types.LatLng, stops []types.LatLng) (float64, error) {
	if len(stops) == 0 {
		return 0, ErrUnavailable
	}

	destination := stops[len(stops)-1]
	params := url.Values{}
	params.Set("origin", formatLatLng(origin))
	params.Set("destination", formatLatLng(destination))
	params.Set("mode", "driving")
	params.Set("key", c.apiKey)
	if len(stops) > 1 {
		via := make([]string, 0, len(stops)-1)
		for _, s := range stops[:len(stops)-1] {
			via = append(via, formatLatLng(s))
		}
		params.Set("waypoints", strings.Join(via, "|"))
	}

	var payload directionsResponse
	if err := c.getJSON(ctx, c.directionsBaseURL+"/json?"+params.Encode(), &payload); err != nil {
		return 0, err
	}
	if payload.Status != "OK" || len(payload.Routes) == 0 {
		return 0, fmt.Errorf("%w: directions status %s", ErrUnavailable, payload.Status)
	}

	meters := 0
	for _, leg := range payload.Routes[0].Legs {
		meters += leg.Distance.Value
	}
	return float64(meters) / 1000.0, nil
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves a free-form address into coordinates.
func (c *Client) Geocode(ctx context.Context, address string) (types.LatLng, error) {
	if strings.TrimSpace(address) == "" {
		return types.LatLng{}, ErrNotFound
	}

	params := url.Values{}
	params.Set("address", address)
	params.Set("key", c.apiKey)

	var payload geocodeResponse
	if err := c.getJSON(ctx, c.geocodingBaseURL+"/json?"+params.Encode(), &payload); err != nil {
		return types.LatLng{}, err
	}
	if payload.Status == "ZERO_RESULTS" || len(payload.Results) == 0 {
		return types.LatLng{}, ErrNotFound
	}
	if payload.Status != "OK" {
		return types.LatLng{}, fmt.Errorf("%w: geocode status %s", ErrUnavailable, payload.Status)
	}

	loc := payload.Results[0].Geometry.Location
	return types.LatLng{Lat: loc.Lat, Lng: loc.Lng}, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	return nil
}

func formatLatLng(p types.LatLng) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
