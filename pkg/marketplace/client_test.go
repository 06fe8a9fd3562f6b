package marketplace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSearchRecentOrders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/search" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("seller"); got != "SELLER123" {
			t.Fatalf("unexpected seller %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-abc" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		if r.URL.Query().Get("order.date_created.from") == "" {
			t.Fatal("missing date window")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"id":"ORD-1","shipment_id":"SHP-1","package_count":2,"receiver_name":"Maria"},
			{"id":"ORD-2","shipment_id":"SHP-2","package_count":1}
		]}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "token-abc")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	orders, err := client.SearchRecentOrders(context.Background(), "SELLER123", time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("SearchRecentOrders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].ExternalOrderID != "ORD-1" || orders[0].ExternalShipmentID != "SHP-1" {
		t.Fatalf("unexpected first order: %+v", orders[0])
	}
	if orders[0].ReceiverName != "Maria" {
		t.Fatalf("receiver name lost: %+v", orders[0])
	}
}

func TestFetchShipmentNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.FetchShipment(context.Background(), "SHP-404")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchShipment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/shipments/SHP-1" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"SHP-1",
			"pickup_location":{"lat":-23.55,"lng":-46.63},
			"delivery_location":{"lat":-23.56,"lng":-46.68},
			"delivery_address":{"street":"Rua Um","number":"1","city":"São Paulo","state":"SP"}
		}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	shipment, err := client.FetchShipment(context.Background(), "SHP-1")
	if err != nil {
		t.Fatalf("FetchShipment: %v", err)
	}
	if shipment.DeliveryLocation.Lat != -23.56 {
		t.Fatalf("unexpected delivery location: %+v", shipment.DeliveryLocation)
	}
	if shipment.DeliveryAddress.City != "São Paulo" {
		t.Fatalf("unexpected delivery address: %+v", shipment.DeliveryAddress)
	}
}

func TestServerErrorsMapToUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.SearchRecentOrders(context.Background(), "SELLER123", time.Now())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
