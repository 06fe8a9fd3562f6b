package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/viaentrega/viaentrega-backend/api/responses"
	"github.com/viaentrega/viaentrega-backend/api/validators"
	"github.com/viaentrega/viaentrega-backend/internal/extorders"
	"github.com/viaentrega/viaentrega-backend/pkg/db/models"
	"github.com/viaentrega/viaentrega-backend/pkg/enums"
	pkgerrors "github.com/viaentrega/viaentrega-backend/pkg/errors"
	"github.com/viaentrega/viaentrega-backend/pkg/logger"
	"github.com/viaentrega/viaentrega-backend/pkg/types"
)

// AccountDirectory resolves an actor to its account row. The sync endpoint
// needs it to find the merchant's marketplace seller reference.
type AccountDirectory interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

type syncOrdersRequest struct {
	// Window bounds how far back the sync looks. Empty means the
	// configured default window.
	WindowHours int `json:"window_hours,omitempty" validate:"omitempty,min=1,max=168"`
}

type selectOrderRequest struct {
	Selected bool `json:"selected"`
}

type externalOrderResponse struct {
	ID                 uuid.UUID     `json:"id"`
	ExternalOrderID    string        `json:"external_order_id"`
	ExternalShipmentID string        `json:"external_shipment_id,omitempty"`
	Status             string        `json:"status"`
	RetryCount         int           `json:"retry_count"`
	Selected           bool          `json:"selected"`
	CorridaID          *uuid.UUID    `json:"corrida_id,omitempty"`
	ImportedAt         *time.Time    `json:"imported_at,omitempty"`
	PackageCount       int           `json:"package_count"`
	ReceiverName       *string       `json:"receiver_name,omitempty"`
	ReceiverPhone      *string       `json:"receiver_phone,omitempty"`
	PickupAddress      types.Address `json:"pickup_address"`
	PickupLocation     types.LatLng  `json:"pickup_location"`
	DeliveryAddress    types.Address `json:"delivery_address"`
	DeliveryLocation   types.LatLng  `json:"delivery_location"`
	CreatedAt          time.Time     `json:"created_at"`
}

func newExternalOrderResponse(order *models.ExternalOrder) externalOrderResponse {
	return externalOrderResponse{
		ID:                 order.ID,
		ExternalOrderID:    order.ExternalOrderID,
		ExternalShipmentID: order.ExternalShipmentID,
		Status:             string(order.Status),
		RetryCount:         order.RetryCount,
		Selected:           order.Selected,
		CorridaID:          order.CorridaID,
		ImportedAt:         order.ImportedAt,
		PackageCount:       order.PackageCount,
		ReceiverName:       order.ReceiverName,
		ReceiverPhone:      order.ReceiverPhone,
		PickupAddress:      order.PickupAddress,
		PickupLocation:     types.LatLng{Lat: order.PickupLat, Lng: order.PickupLng},
		DeliveryAddress:    order.DeliveryAddress,
		DeliveryLocation:   types.LatLng{Lat: order.DeliveryLat, Lng: order.DeliveryLng},
		CreatedAt:          order.CreatedAt,
	}
}

type syncResultResponse struct {
	Fetched int `json:"fetched"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

type importResultResponse struct {
	OrderID   uuid.UUID  `json:"order_id"`
	CorridaID *uuid.UUID `json:"corrida_id,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ExternalOrderSync pulls the merchant's recent marketplace orders into the
// staging area.
func ExternalOrderSync(svc extorders.Service, accounts AccountDirectory, defaultWindow time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		merchantID, err := requireRole(ctx, enums.ActorTypeLojista)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req syncOrdersRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		account, err := accounts.GetAccount(ctx, merchantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if account.SellerRef == nil || *account.SellerRef == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "merchant has no marketplace seller reference"))
			return
		}

		window := defaultWindow
		if req.WindowHours > 0 {
			window = time.Duration(req.WindowHours) * time.Hour
		}

		result, err := svc.Sync(ctx, merchantID, *account.SellerRef, time.Now().Add(-window))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, syncResultResponse{
			Fetched: result.Fetched,
			Created: result.Created,
			Updated: result.Updated,
			Skipped: result.Skipped,
		})
	}
}

// ExternalOrderList returns the merchant's staged and reconciled orders.
func ExternalOrderList(svc extorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		merchantID, err := requireRole(ctx, enums.ActorTypeLojista)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var statuses []enums.ExternalOrderStatus
		for _, raw := range r.URL.Query()["status"] {
			status, err := enums.ParseExternalOrderStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			statuses = append(statuses, status)
		}

		orders, err := svc.List(ctx, merchantID, statuses)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		views := make([]externalOrderResponse, 0, len(orders))
		for i := range orders {
			views = append(views, newExternalOrderResponse(&orders[i]))
		}
		responses.WriteSuccess(w, map[string]any{"orders": views})
	}
}

// ExternalOrderSelect toggles a staged order's inclusion in the next import.
func ExternalOrderSelect(svc extorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		merchantID, err := requireRole(ctx, enums.ActorTypeLojista)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req selectOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.Select(ctx, merchantID, orderID, req.Selected)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, newExternalOrderResponse(order))
	}
}

// ExternalOrderImport turns every selected staged order into a corrida.
// Orders fail or succeed independently; partial success is a success.
func ExternalOrderImport(svc extorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		merchantID, err := requireRole(ctx, enums.ActorTypeLojista)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		results, err := svc.ImportSelected(ctx, merchantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		views := make([]importResultResponse, 0, len(results))
		for _, result := range results {
			view := importResultResponse{OrderID: result.OrderID, CorridaID: result.CorridaID}
			if result.Err != nil {
				view.Error = result.Err.Error()
			}
			views = append(views, view)
		}
		responses.WriteSuccess(w, map[string]any{"results": views})
	}
}
