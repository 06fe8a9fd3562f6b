package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/viaentrega/viaentrega-backend/api/middleware"
	"github.com/viaentrega/viaentrega-backend/api/responses"
	"github.com/viaentrega/viaentrega-backend/api/validators"
	"github.com/viaentrega/viaentrega-backend/internal/corridas"
	"github.com/viaentrega/viaentrega-backend/pkg/db/models"
	"github.com/viaentrega/viaentrega-backend/pkg/enums"
	pkgerrors "github.com/viaentrega/viaentrega-backend/pkg/errors"
	"github.com/viaentrega/viaentrega-backend/pkg/logger"
	"github.com/viaentrega/viaentrega-backend/pkg/pagination"
	"github.com/viaentrega/viaentrega-backend/pkg/types"
)

// OrderReleaser returns an externally-sourced order to the staging area
// after its corrida is cancelled. App-born corridas release to nothing.
type OrderReleaser interface {
	Release(ctx context.Context, corridaID uuid.UUID) (*models.ExternalOrder, error)
}

type createCorridaStopRequest struct {
	Address       types.Address `json:"address" validate:"required"`
	Location      types.LatLng  `json:"location"`
	PackageCount  int           `json:"package_count" validate:"required,min=1"`
	ReceiverName  string        `json:"receiver_name,omitempty"`
	ReceiverPhone string        `json:"receiver_phone,omitempty"`
}

type createCorridaRequest struct {
	PlatformOrigin string                     `json:"platform_origin,omitempty"`
	PickupAddress  types.Address              `json:"pickup_address" validate:"required"`
	PickupLocation types.LatLng               `json:"pickup_location"`
	Stops          []createCorridaStopRequest `json:"stops" validate:"required,min=1,dive"`
	WeightKg       *float64                   `json:"weight_kg,omitempty" validate:"omitempty,gt=0"`
	VolumeM3       *float64                   `json:"volume_m3,omitempty" validate:"omitempty,gt=0"`
}

func (r createCorridaRequest) toInput(merchantID uuid.UUID) corridas.CreateInput {
	stops := make([]corridas.StopInput, 0, len(r.Stops))
	for _, stop := range r.Stops {
		stops = append(stops, corridas.StopInput{
			Address:       stop.Address,
			Location:      stop.Location,
			PackageCount:  stop.PackageCount,
			ReceiverName:  stop.ReceiverName,
			ReceiverPhone: stop.ReceiverPhone,
		})
	}
	return corridas.CreateInput{
		MerchantID:     merchantID,
		PlatformOrigin: r.PlatformOrigin,
		PickupAddress:  r.PickupAddress,
		PickupLocation: r.PickupLocation,
		Stops:          stops,
		WeightKg:       r.WeightKg,
		VolumeM3:       r.VolumeM3,
	}
}

type confirmCodeRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

type cancelCorridaRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

type corridaStopResponse struct {
	ID            uuid.UUID     `json:"id"`
	Position      int           `json:"position"`
	Address       types.Address `json:"address"`
	Location      types.LatLng  `json:"location"`
	PackageCount  int           `json:"package_count"`
	Code          string        `json:"code,omitempty"`
	Status        string        `json:"status"`
	DeliveredAt   *time.Time    `json:"delivered_at,omitempty"`
	ReceiverName  *string       `json:"receiver_name,omitempty"`
	ReceiverPhone *string       `json:"receiver_phone,omitempty"`
}

type corridaResponse struct {
	ID             uuid.UUID             `json:"id"`
	MerchantID     uuid.UUID             `json:"merchant_id"`
	CourierID      *uuid.UUID            `json:"courier_id,omitempty"`
	PlatformOrigin string                `json:"platform_origin"`
	Status         string                `json:"status"`
	TotalCents     int64                 `json:"total_cents"`
	ReservedCents  *int64                `json:"reserved_cents,omitempty"`
	FreightCents   int64                 `json:"freight_cents"`
	PackageCount   int                   `json:"package_count"`
	DistanceKm     float64               `json:"distance_km"`
	PickupAddress  types.Address         `json:"pickup_address"`
	PickupLocation types.LatLng          `json:"pickup_location"`
	PickupCode     string                `json:"pickup_code,omitempty"`
	WeightKg       *float64              `json:"weight_kg,omitempty"`
	VolumeM3       *float64              `json:"volume_m3,omitempty"`
	AcceptedAt     *time.Time            `json:"accepted_at,omitempty"`
	CollectedAt    *time.Time            `json:"collected_at,omitempty"`
	FinalizedAt    *time.Time            `json:"finalized_at,omitempty"`
	CancelledAt    *time.Time            `json:"cancelled_at,omitempty"`
	CancelReason   *string               `json:"cancel_reason,omitempty"`
	Stops          []corridaStopResponse `json:"stops"`
	CreatedAt      time.Time             `json:"created_at"`
}

// newCorridaResponse maps a corrida for the requesting actor. Confirmation
// codes are shared secrets held by the lojista side, so only the owning
// merchant sees them in responses.
func newCorridaResponse(corrida *models.Corrida, viewerID uuid.UUID) corridaResponse {
	withCodes := corrida.MerchantID == viewerID

	stops := make([]corridaStopResponse, 0, len(corrida.Stops))
	for _, stop := range corrida.Stops {
		view := corridaStopResponse{
			ID:            stop.ID,
			Position:      stop.Position,
			Address:       stop.Address,
			Location:      types.LatLng{Lat: stop.Lat, Lng: stop.Lng},
			PackageCount:  stop.PackageCount,
			Status:        string(stop.Status),
			DeliveredAt:   stop.DeliveredAt,
			ReceiverName:  stop.ReceiverName,
			ReceiverPhone: stop.ReceiverPhone,
		}
		if withCodes {
			view.Code = stop.Code
		}
		stops = append(stops, view)
	}

	view := corridaResponse{
		ID:             corrida.ID,
		MerchantID:     corrida.MerchantID,
		CourierID:      corrida.CourierID,
		PlatformOrigin: corrida.PlatformOrigin,
		Status:         string(corrida.Status),
		TotalCents:     corrida.TotalCents,
		ReservedCents:  corrida.ReservedCents,
		FreightCents:   corrida.FreightCents,
		PackageCount:   corrida.PackageCount,
		DistanceKm:     corrida.DistanceKm,
		PickupAddress:  corrida.PickupAddress,
		PickupLocation: types.LatLng{Lat: corrida.PickupLat, Lng: corrida.PickupLng},
		WeightKg:       corrida.WeightKg,
		VolumeM3:       corrida.VolumeM3,
		AcceptedAt:     corrida.AcceptedAt,
		CollectedAt:    corrida.CollectedAt,
		FinalizedAt:    corrida.FinalizedAt,
		CancelledAt:    corrida.CancelledAt,
		CancelReason:   corrida.CancelReason,
		Stops:          stops,
		CreatedAt:      corrida.CreatedAt,
	}
	if withCodes {
		view.PickupCode = corrida.PickupCode
	}
	return view
}

type corridaListResponse struct {
	Corridas   []corridaResponse `json:"corridas"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func newCorridaListResponse(items []models.Corrida, nextCursor string, viewerID uuid.UUID) corridaListResponse {
	views := make([]corridaResponse, 0, len(items))
	for i := range items {
		views = append(views, newCorridaResponse(&items[i], viewerID))
	}
	return corridaListResponse{Corridas: views, NextCursor: nextCursor}
}

// CorridaCreate prices, reserves and persists a new delivery job for the
// authenticated lojista.
func CorridaCreate(svc corridas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		merchantID, err := requireRole(ctx, enums.ActorTypeLojista)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req createCorridaRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		corrida, err := svc.Create(ctx, req.toInput(merchantID))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCorridaResponse(corrida, merchantID))
	}
}

// CorridaGet returns one corrida, scoped to its merchant or assigned courier.
func CorridaGet(svc corridas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := middleware.ActorIDFromContext(ctx)

		corridaID, err := parseUUIDParam(r, "corridaId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		corrida, err := svc.Get(ctx, corridaID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if !actorSeesCorrida(corrida, actorID, middleware.ActorRoleFromContext(ctx)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "corrida not found"))
			return
		}

		responses.WriteSuccess(w, newCorridaResponse(corrida, actorID))
	}
}

// CorridaListAwaiting is the courier polling feed of unclaimed corridas.
func CorridaListAwaiting(svc corridas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		courierID, err := requireRole(ctx, enums.ActorTypeEntregador)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items, nextCursor, err := svc.ListAwaiting(ctx, pageParams(r))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCorridaListResponse(items, nextCursor, courierID))
	}
}

// CorridaListMine lists the actor's own corridas, newest first.
func CorridaListMine(svc corridas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := middleware.ActorIDFromContext(ctx)

		var (
			items      []models.Corrida
			nextCursor string
			err        error
		)
		switch middleware.ActorRoleFromContext(ctx) {
		case enums.ActorTypeLojista:
			items, nextCursor, err = svc.ListByMerchant(ctx, actorID, pageParams(r))
		case enums.ActorTypeEntregador:
			items, nextCursor, err = svc.ListByCourier(ctx, actorID, pageParams(r))
		default:
			err = pkgerrors.New(pkgerrors.CodeForbidden, "unknown actor role")
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCorridaListResponse(items, nextCursor, actorID))
	}
}

// CorridaAccept claims an aguardando corrida for the authenticated courier.
func CorridaAccept(svc corridas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		courierID, err := requireRole(ctx, enums.ActorTypeEntregador)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		corridaID, err := parseUUIDParam(r, "corridaId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		corrida, err := svc.Accept(ctx, courierID, corridaID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCorridaResponse(corrida, courierID))
	}
}

// CorridaStartPickup moves an accepted corrida into coletando.
func CorridaStartPickup(svc corridas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		courierID, err := requireRole(ctx, enums.ActorTypeEntregador)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		corridaID, err := parseUUIDParam(r, "corridaId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		corrida, err := svc.StartPickup(ctx, courierID, corridaID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCorridaResponse(corrida, courierID))
	}
}

// CorridaConfirmPickup verifies the pickup code and unlocks deliveries.
func CorridaConfirmPickup(svc corridas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		courierID, err := requireRole(ctx, enums.ActorTypeEntregador)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		corridaID, err := parseUUIDParam(r, "corridaId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req confirmCodeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		corrida, err := svc.ConfirmPickup(ctx, courierID, corridaID, req.Code)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCorridaResponse(corrida, courierID))
	}
}

// CorridaConfirmDelivery verifies one stop's code; delivering the last
// pendente stop finalizes the corrida and pays the courier.
func CorridaConfirmDelivery(svc corridas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		courierID, err := requireRole(ctx, enums.ActorTypeEntregador)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		corridaID, err := parseUUIDParam(r, "corridaId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		stopID, err := parseUUIDParam(r, "stopId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req confirmCodeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		corrida, err := svc.ConfirmDelivery(ctx, courierID, corridaID, stopID, req.Code)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCorridaResponse(corrida, courierID))
	}
}

// CorridaCancel terminates a corrida and settles the reservation. When the
// corrida was imported from the marketplace, the backing order is released
// back to staging after the cancellation commits.
func CorridaCancel(svc corridas.Service, releaser OrderReleaser, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := middleware.ActorIDFromContext(ctx)
		role := middleware.ActorRoleFromContext(ctx)

		corridaID, err := parseUUIDParam(r, "corridaId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req cancelCorridaRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		corrida, err := svc.Cancel(ctx, actorID, role, corridaID, req.Reason)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if releaser != nil {
			if _, err := releaser.Release(ctx, corridaID); err != nil && logg != nil {
				// The cancellation already committed; reconciliation retries
				// on the next sync pass.
				logg.Error(logg.WithCorridaID(ctx, corridaID.String()), "external order release failed", err)
			}
		}

		responses.WriteSuccess(w, newCorridaResponse(corrida, actorID))
	}
}

func actorSeesCorrida(corrida *models.Corrida, actorID uuid.UUID, role enums.ActorType) bool {
	if corrida.MerchantID == actorID {
		return true
	}
	if corrida.CourierID != nil && *corrida.CourierID == actorID {
		return true
	}
	// Any courier may inspect an unclaimed corrida before accepting it.
	return role == enums.ActorTypeEntregador && corrida.Status == enums.CorridaStatusAguardando
}

func requireRole(ctx context.Context, role enums.ActorType) (uuid.UUID, error) {
	if got := middleware.ActorRoleFromContext(ctx); got != role {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "operation restricted to "+role.String())
	}
	return middleware.ActorIDFromContext(ctx), nil
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}

func pageParams(r *http.Request) pagination.Params {
	query := r.URL.Query()
	// Bad limits silently fall back to the default page size.
	limit, _ := strconv.Atoi(query.Get("limit"))
	return pagination.Params{
		Limit:  pagination.NormalizeLimit(limit),
		Cursor: query.Get("cursor"),
	}
}
