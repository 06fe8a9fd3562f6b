package marketplace

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

const defaultBaseURL = "https://api.mercadolibre.com"

var (
	errBaseURLRequired = errors.New("marketplace base url is required")

	// ErrUnavailable signals the marketplace API could not be reached or
	// answered with a server error.
	ErrUnavailable = errors.New("marketplace unavailable")
	// ErrNotFound signals the requested shipment does not exist.
	ErrNotFound = errors.New("shipment not found")
)

// Order is one sellable order as returned by the marketplace search.
type Order struct {
	ExternalOrderID    string    `json:"id"`
	ExternalShipmentID string    `json:"shipment_id"`
	PackageCount       int       `json:"package_count"`
	ReceiverName       string    `json:"receiver_name"`
	ReceiverPhone      string    `json:"receiver_phone"`
	CreatedAt          time.Time `json:"date_created"`
}

// Shipment carries the delivery geography of one order.
type Shipment struct {
	ExternalShipmentID string        `json:"id"`
	PickupAddress      types.Address `json:"pickup_address"`
	PickupLocation     types.LatLng  `json:"pickup_location"`
	DeliveryAddress    types.Address `json:"delivery_address"`
	DeliveryLocation   types.LatLng  `json:"delivery_location"`
}

// Source is the read-only view the sync worker needs from the marketplace.
type Source interface {
	SearchRecentOrders(ctx context.Context, sellerRef string, since time.Time) ([]Order, error)
	FetchShipment(ctx context.Context, shipmentID string) (*Shipment, error)
}

// Client talks to the external marketplace orders API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
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

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a marketplace client. An empty baseURL falls back to the
// production endpoint.
func NewClient(baseURL, accessToken string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, errBaseURLRequired
	}

	client := &Client{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		baseURL:     strings.TrimRight(trimmed, "/"),
		accessToken: accessToken,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type searchResponse struct {
	Results []Order `json:"results"`
}

// SearchRecentOrders lists the seller's orders created at or after `since`.
func (c *Client) SearchRecentOrders(ctx context.Context, sellerRef string, since time.Time) ([]Order, error) {
	if strings.TrimSpace(sellerRef) == "" {
		return nil, fmt.Errorf("seller ref is required")
	}

	query := url.Values{}
	query.Set("seller", sellerRef)
	query.Set("order.date_created.from", since.UTC().Format(time.RFC3339))
	endpoint := fmt.Sprintf("%s/orders/search?%s", c.baseURL, query.Encode())

	var payload searchResponse
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Results, nil
}

// FetchShipment loads the delivery geography for one shipment.
func (c *Client) FetchShipment(ctx context.Context, shipmentID string) (*Shipment, error) {
	if strings.TrimSpace(shipmentID) == "" {
		return nil, fmt.Errorf("shipment id is required")
	}

	endpoint := fmt.Sprintf("%s/shipments/%s", c.baseURL, url.PathEscape(shipmentID))
	var payload Shipment
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build marketplace request: %w", err)
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("marketplace request failed with status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode marketplace response: %w", err)
	}
	return nil
}
