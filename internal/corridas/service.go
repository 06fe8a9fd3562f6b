package corridas

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/viaentrega/viaentrega-backend/internal/ledger"
	"github.com/viaentrega/viaentrega-backend/internal/pricing"
	"github.com/viaentrega/viaentrega-backend/internal/routing"
	"github.com/viaentrega/viaentrega-backend/pkg/config"
	"github.com/viaentrega/viaentrega-backend/pkg/db"
	"github.com/viaentrega/viaentrega-backend/pkg/db/models"
	"github.com/viaentrega/viaentrega-backend/pkg/enums"
	"github.com/viaentrega/viaentrega-backend/pkg/errors"
	"github.com/viaentrega/viaentrega-backend/pkg/logger"
	"github.com/viaentrega/viaentrega-backend/pkg/outbox"
	"github.com/viaentrega/viaentrega-backend/pkg/pagination"
	"github.com/viaentrega/viaentrega-backend/pkg/types"
)

// DistanceEstimator resolves a route distance for an ordered set of stops.
type DistanceEstimator interface {
	Estimate(ctx context.Context, origin routing.Waypoint, stops []routing.Waypoint) (float64, error)
}

// Service drives a corrida through its lifecycle. Every transition that
// moves money posts its ledger entries in the same transaction as the
// status flip.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Corrida, error)
	Accept(ctx context.Context, courierID, corridaID uuid.UUID) (*models.Corrida, error)
	StartPickup(ctx context.Context, courierID, corridaID uuid.UUID) (*models.Corrida, error)
	ConfirmPickup(ctx context.Context, courierID, corridaID uuid.UUID, code string) (*models.Corrida, error)
	ConfirmDelivery(ctx context.Context, courierID, corridaID, stopID uuid.UUID, code string) (*models.Corrida, error)
	Cancel(ctx context.Context, actorID uuid.UUID, actorType enums.ActorType, corridaID uuid.UUID, reason string) (*models.Corrida, error)
	Get(ctx context.Context, corridaID uuid.UUID) (*models.Corrida, error)
	ListAwaiting(ctx context.Context, params pagination.Params) ([]models.Corrida, string, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID, params pagination.Params) ([]models.Corrida, string, error)
	ListByCourier(ctx context.Context, courierID uuid.UUID, params pagination.Params) ([]models.Corrida, string, error)
}

// StopInput is one drop-off as entered by the lojista. Order is meaningful
// and preserved end to end.
type StopInput struct {
	Address       types.Address
	Location      types.LatLng
	PackageCount  int
	ReceiverName  string
	ReceiverPhone string
}

// CreateInput captures everything Create needs to price, reserve and
// persist a new corrida.
type CreateInput struct {
	MerchantID     uuid.UUID
	PlatformOrigin string
	PickupAddress  types.Address
	PickupLocation types.LatLng
	Stops          []StopInput
	WeightKg       *float64
	VolumeM3       *float64
}

type service struct {
	repo      Repository
	ledgerSvc ledger.Service
	pricer    *pricing.Engine
	estimator DistanceEstimator
	emitter   *outbox.Service
	runner    db.TxRunner
	cancelCfg config.CancellationConfig
	maxRoutes int
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the corrida lifecycle with its collaborators.
func NewService(
	repo Repository,
	ledgerSvc ledger.Service,
	pricer *pricing.Engine,
	estimator DistanceEstimator,
	emitter *outbox.Service,
	runner db.TxRunner,
	cancelCfg config.CancellationConfig,
	courierCfg config.CourierConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("corrida repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if pricer == nil {
		return nil, fmt.Errorf("pricing engine required")
	}
	if estimator == nil {
		return nil, fmt.Errorf("distance estimator required")
	}
	if runner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:      repo,
		ledgerSvc: ledgerSvc,
		pricer:    pricer,
		estimator: estimator,
		emitter:   emitter,
		runner:    runner,
		cancelCfg: cancelCfg,
		maxRoutes: courierCfg.MaxActiveRoutes,
		logg:      logg,
		now:       time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Corrida, error) {
	if input.MerchantID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "merchant id is required")
	}
	if len(input.Stops) == 0 {
		return nil, errors.New(errors.CodeValidation, "at least one stop is required")
	}
	packageCount := 0
	for i, stop := range input.Stops {
		if stop.PackageCount <= 0 {
			return nil, errors.New(errors.CodeValidation, fmt.Sprintf("stop %d must carry at least one package", i+1))
		}
		packageCount += stop.PackageCount
	}

	origin := routing.Waypoint{Location: input.PickupLocation, Address: input.PickupAddress}
	waypoints := make([]routing.Waypoint, 0, len(input.Stops))
	for _, stop := range input.Stops {
		waypoints = append(waypoints, routing.Waypoint{Location: stop.Location, Address: stop.Address})
	}
	distanceKm, err := s.estimator.Estimate(ctx, origin, waypoints)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "estimate route distance")
	}
	if distanceKm <= 0 {
		return nil, errors.New(errors.CodeDistanceUnresolvable, "route distance could not be resolved")
	}

	totalCents := s.pricer.Price(packageCount, distanceKm)

	pickupCode, stopCodes, err := s.generateCodes(len(input.Stops))
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "generate confirmation codes")
	}

	platformOrigin := input.PlatformOrigin
	if platformOrigin == "" {
		platformOrigin = "app"
	}
	reserved := totalCents
	corrida := &models.Corrida{
		ID:             uuid.New(),
		MerchantID:     input.MerchantID,
		PlatformOrigin: platformOrigin,
		Status:         enums.CorridaStatusAguardando,
		TotalCents:     totalCents,
		ReservedCents:  &reserved,
		FreightCents:   totalCents,
		PackageCount:   packageCount,
		DistanceKm:     distanceKm,
		PickupAddress:  input.PickupAddress,
		PickupLat:      input.PickupLocation.Lat,
		PickupLng:      input.PickupLocation.Lng,
		PickupCode:     pickupCode,
		WeightKg:       input.WeightKg,
		VolumeM3:       input.VolumeM3,
	}
	for i, stop := range input.Stops {
		row := models.DeliveryStop{
			ID:           uuid.New(),
			CorridaID:    corrida.ID,
			Position:     i + 1,
			Address:      stop.Address,
			Lat:          stop.Location.Lat,
			Lng:          stop.Location.Lng,
			PackageCount: stop.PackageCount,
			Code:         stopCodes[i],
			Status:       enums.StopStatusPendente,
		}
		if stop.ReceiverName != "" {
			row.ReceiverName = &stop.ReceiverName
		}
		if stop.ReceiverPhone != "" {
			row.ReceiverPhone = &stop.ReceiverPhone
		}
		corrida.Stops = append(corrida.Stops, row)
	}

	err = s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, corrida); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "persist corrida")
		}
		// Corrida row first, merchant balance second. Cancel debits in the
		// same order, so the two paths cannot deadlock on each other.
		_, err := s.ledgerSvc.ApplyTx(ctx, tx, ledger.ApplyInput{
			AccountID:   input.MerchantID,
			DeltaCents:  -totalCents,
			Category:    enums.LedgerCategoryJobCharge,
			CorridaID:   &corrida.ID,
			Description: "reserva da corrida",
		})
		if err != nil {
			if errors.HasCode(err, errors.CodeInsufficientFunds) {
				return errors.New(errors.CodeInsufficientBalance,
					fmt.Sprintf("merchant balance below corrida price of %d centavos", totalCents))
			}
			return err
		}
		return s.emit(ctx, tx, enums.EventCorridaCreated, corrida.ID, input.MerchantID, enums.ActorTypeLojista, map[string]any{
			"total_cents":   totalCents,
			"package_count": packageCount,
			"distance_km":   distanceKm,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithCorridaID(ctx, corrida.ID.String())
		s.logg.Info(logCtx, "corrida created")
	}
	return s.repo.Get(ctx, corrida.ID)
}

func (s *service) Accept(ctx context.Context, courierID, corridaID uuid.UUID) (*models.Corrida, error) {
	if courierID == uuid.Nil || corridaID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "courier id and corrida id are required")
	}

	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// The courier row lock serializes concurrent accepts by the same
		// courier, so the active-route count below only ever sees
		// committed claims.
		courier, err := repo.GetAccountForUpdate(ctx, courierID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return errors.New(errors.CodeNotFound, "courier account not found")
			}
			return errors.Wrap(errors.CodeInternal, err, "load courier account")
		}
		if courier.Type != enums.ActorTypeEntregador {
			return errors.New(errors.CodeForbidden, "only entregadores accept corridas")
		}
		if courier.CourierStatus != enums.CourierStatusOnline {
			return errors.New(errors.CodeForbidden, "courier is offline")
		}

		active, err := repo.CountActiveForCourier(ctx, courierID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "count active routes")
		}
		if active >= int64(s.maxRoutes) {
			return errors.New(errors.CodeCapacityExceeded,
				fmt.Sprintf("courier already carries %d active routes", active))
		}

		claimed, err := repo.Claim(ctx, corridaID, courierID, s.now())
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "claim corrida")
		}
		if !claimed {
			if _, err := repo.Get(ctx, corridaID); err != nil {
				if err == gorm.ErrRecordNotFound {
					return errors.New(errors.CodeNotFound, "corrida not found")
				}
				return errors.Wrap(errors.CodeInternal, err, "load corrida")
			}
			return errors.New(errors.CodeAlreadyClaimed, "corrida was already claimed")
		}

		return s.emit(ctx, tx, enums.EventCorridaAccepted, corridaID, courierID, enums.ActorTypeEntregador, nil)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, corridaID)
}

func (s *service) StartPickup(ctx context.Context, courierID, corridaID uuid.UUID) (*models.Corrida, error) {
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		corrida, err := s.loadForCourier(ctx, repo, corridaID, courierID)
		if err != nil {
			return err
		}
		moved, err := repo.Transition(ctx, corrida.ID, enums.CorridaStatusAceita, enums.CorridaStatusColetando, nil)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "start pickup")
		}
		if !moved {
			return errors.New(errors.CodeInvalidTransition,
				fmt.Sprintf("cannot start pickup from status %q", corrida.Status))
		}
		return s.emit(ctx, tx, enums.EventCorridaPickupStarted, corridaID, courierID, enums.ActorTypeEntregador, nil)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, corridaID)
}

func (s *service) ConfirmPickup(ctx context.Context, courierID, corridaID uuid.UUID, code string) (*models.Corrida, error) {
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		corrida, err := s.loadForCourier(ctx, repo, corridaID, courierID)
		if err != nil {
			return err
		}
		if corrida.Status != enums.CorridaStatusColetando {
			return errors.New(errors.CodeInvalidTransition,
				fmt.Sprintf("cannot confirm pickup from status %q", corrida.Status))
		}
		if code != corrida.PickupCode {
			return errors.New(errors.CodeCodeMismatch, "pickup code does not match")
		}
		moved, err := repo.Transition(ctx, corrida.ID, enums.CorridaStatusColetando, enums.CorridaStatusEmEntrega, map[string]any{
			"collected_at": s.now(),
		})
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "confirm pickup")
		}
		if !moved {
			return errors.New(errors.CodeInvalidTransition, "corrida changed state during pickup confirmation")
		}
		return s.emit(ctx, tx, enums.EventCorridaPickupConfirmed, corridaID, courierID, enums.ActorTypeEntregador, nil)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, corridaID)
}

func (s *service) ConfirmDelivery(ctx context.Context, courierID, corridaID, stopID uuid.UUID, code string) (*models.Corrida, error) {
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		corrida, err := s.loadForCourier(ctx, repo, corridaID, courierID)
		if err != nil {
			return err
		}
		if corrida.Status != enums.CorridaStatusEmEntrega {
			return errors.New(errors.CodeInvalidTransition,
				fmt.Sprintf("cannot confirm delivery from status %q", corrida.Status))
		}

		var stop *models.DeliveryStop
		for i := range corrida.Stops {
			if corrida.Stops[i].ID == stopID {
				stop = &corrida.Stops[i]
				break
			}
		}
		if stop == nil {
			return errors.New(errors.CodeNotFound, "delivery stop not found on this corrida")
		}
		if stop.Status != enums.StopStatusPendente {
			return errors.New(errors.CodeInvalidTransition,
				fmt.Sprintf("stop is already %q", stop.Status))
		}
		// Each stop answers only to its own code. A code from a sibling
		// stop is a mismatch, not a delivery.
		if code != stop.Code {
			return errors.New(errors.CodeCodeMismatch, "delivery code does not match this stop")
		}

		delivered, err := repo.MarkStopDelivered(ctx, stop.ID, s.now())
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "mark stop delivered")
		}
		if !delivered {
			return errors.New(errors.CodeInvalidTransition, "stop changed state during delivery confirmation")
		}
		if err := s.emit(ctx, tx, enums.EventCorridaStopDelivered, corridaID, courierID, enums.ActorTypeEntregador, map[string]any{
			"stop_id":  stop.ID.String(),
			"position": stop.Position,
		}); err != nil {
			return err
		}

		pending, err := repo.CountPendingStops(ctx, corrida.ID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "count pending stops")
		}
		if pending > 0 {
			return nil
		}
		return s.finalize(ctx, tx, repo, corrida, courierID)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, corridaID)
}

// finalize flips em_entrega to finalizada once the last stop is delivered
// and credits the courier with the amount reserved at creation.
func (s *service) finalize(ctx context.Context, tx *gorm.DB, repo Repository, corrida *models.Corrida, courierID uuid.UUID) error {
	moved, err := repo.Transition(ctx, corrida.ID, enums.CorridaStatusEmEntrega, enums.CorridaStatusFinalizada, map[string]any{
		"finalized_at":   s.now(),
		"reserved_cents": nil,
	})
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "finalize corrida")
	}
	if !moved {
		return errors.New(errors.CodeInvalidTransition, "corrida changed state during finalization")
	}

	earning := corrida.TotalCents
	if corrida.ReservedCents != nil {
		earning = *corrida.ReservedCents
	}
	_, err = s.ledgerSvc.ApplyTx(ctx, tx, ledger.ApplyInput{
		AccountID:   courierID,
		DeltaCents:  earning,
		Category:    enums.LedgerCategoryJobEarning,
		CorridaID:   &corrida.ID,
		Description: "ganho da corrida",
	})
	if err != nil {
		return err
	}
	return s.emit(ctx, tx, enums.EventCorridaFinalized, corrida.ID, courierID, enums.ActorTypeEntregador, map[string]any{
		"earning_cents": earning,
	})
}

func (s *service) Cancel(ctx context.Context, actorID uuid.UUID, actorType enums.ActorType, corridaID uuid.UUID, reason string) (*models.Corrida, error) {
	if actorID == uuid.Nil || corridaID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "actor id and corrida id are required")
	}

	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		corrida, err := repo.Get(ctx, corridaID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return errors.New(errors.CodeNotFound, "corrida not found")
			}
			return errors.Wrap(errors.CodeInternal, err, "load corrida")
		}

		switch actorType {
		case enums.ActorTypeLojista:
			if corrida.MerchantID != actorID {
				return errors.New(errors.CodeNotFound, "corrida not found")
			}
		case enums.ActorTypeEntregador:
			if corrida.CourierID == nil || *corrida.CourierID != actorID {
				return errors.New(errors.CodeNotFound, "corrida not found")
			}
		default:
			return errors.New(errors.CodeValidation, "unknown actor type")
		}

		if !enums.CanTransition(corrida.Status, enums.CorridaStatusCancelada) {
			return errors.New(errors.CodeInvalidTransition,
				fmt.Sprintf("cannot cancel from status %q", corrida.Status))
		}

		feeCents := s.cancellationFee(corrida, actorType)

		updates := map[string]any{
			"cancelled_at":   s.now(),
			"reserved_cents": nil,
		}
		if reason != "" {
			updates["cancel_reason"] = reason
		}
		moved, err := repo.Transition(ctx, corrida.ID, corrida.Status, enums.CorridaStatusCancelada, updates)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "cancel corrida")
		}
		if !moved {
			return errors.New(errors.CodeInvalidTransition, "corrida changed state during cancellation")
		}

		if corrida.ReservedCents != nil {
			refund := *corrida.ReservedCents - feeCents
			if refund < 0 {
				refund = 0
			}
			if refund > 0 {
				_, err = s.ledgerSvc.ApplyTx(ctx, tx, ledger.ApplyInput{
					AccountID:   corrida.MerchantID,
					DeltaCents:  refund,
					Category:    enums.LedgerCategoryRefund,
					CorridaID:   &corrida.ID,
					Description: "estorno da corrida cancelada",
				})
				if err != nil {
					return err
				}
			}
		}

		return s.emit(ctx, tx, enums.EventCorridaCancelled, corrida.ID, actorID, actorType, map[string]any{
			"reason":    reason,
			"fee_cents": feeCents,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, corridaID)
}

// cancellationFee applies the two fee rules: a courier already en route to
// pickup always costs the fee, and a lojista yanking an accepted job before
// the minimum wait has elapsed costs the fee too. Cancelling while
// aguardando is always free.
func (s *service) cancellationFee(corrida *models.Corrida, actorType enums.ActorType) int64 {
	switch corrida.Status {
	case enums.CorridaStatusColetando:
		return s.cancelCfg.FeeCents
	case enums.CorridaStatusAceita:
		if actorType == enums.ActorTypeLojista && corrida.AcceptedAt != nil &&
			s.now().Sub(*corrida.AcceptedAt) < s.cancelCfg.MinWaitAfterAccept {
			return s.cancelCfg.FeeCents
		}
	}
	return 0
}

func (s *service) Get(ctx context.Context, corridaID uuid.UUID) (*models.Corrida, error) {
	corrida, err := s.repo.Get(ctx, corridaID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.New(errors.CodeNotFound, "corrida not found")
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "load corrida")
	}
	return corrida, nil
}

func (s *service) ListAwaiting(ctx context.Context, params pagination.Params) ([]models.Corrida, string, error) {
	return s.page(params, func(cursor *pagination.Cursor, limit int) ([]models.Corrida, error) {
		return s.repo.ListAwaiting(ctx, cursor, limit)
	})
}

func (s *service) ListByMerchant(ctx context.Context, merchantID uuid.UUID, params pagination.Params) ([]models.Corrida, string, error) {
	return s.page(params, func(cursor *pagination.Cursor, limit int) ([]models.Corrida, error) {
		return s.repo.ListByMerchant(ctx, merchantID, cursor, limit)
	})
}

func (s *service) ListByCourier(ctx context.Context, courierID uuid.UUID, params pagination.Params) ([]models.Corrida, string, error) {
	return s.page(params, func(cursor *pagination.Cursor, limit int) ([]models.Corrida, error) {
		return s.repo.ListByCourier(ctx, courierID, cursor, limit)
	})
}

func (s *service) page(params pagination.Params, fetch func(*pagination.Cursor, int) ([]models.Corrida, error)) ([]models.Corrida, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", errors.Wrap(errors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := fetch(cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, "", errors.Wrap(errors.CodeInternal, err, "list corridas")
	}
	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

// loadForCourier fetches a corrida and verifies the caller is its assigned
// courier. Unassigned or foreign corridas read as not found so callers
// cannot probe jobs that are not theirs.
func (s *service) loadForCourier(ctx context.Context, repo Repository, corridaID, courierID uuid.UUID) (*models.Corrida, error) {
	if courierID == uuid.Nil || corridaID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "courier id and corrida id are required")
	}
	// Lock the corrida row so courier-side transitions serialize.
	// Confirmations of sibling stops would otherwise each miss the
	// other's delivery and leave nobody to finalize.
	corrida, err := repo.GetForUpdate(ctx, corridaID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.New(errors.CodeNotFound, "corrida not found")
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "load corrida")
	}
	if corrida.CourierID == nil || *corrida.CourierID != courierID {
		return nil, errors.New(errors.CodeNotFound, "corrida not found")
	}
	return corrida, nil
}

func (s *service) generateCodes(stopCount int) (string, []string, error) {
	codes, err := newDistinctCodes(stopCount + 1)
	if err != nil {
		return "", nil, err
	}
	return codes[0], codes[1:], nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, corridaID, actorID uuid.UUID, role enums.ActorType, data map[string]any) error {
	if s.emitter == nil {
		return nil
	}
	return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateCorrida,
		AggregateID:   corridaID,
		Actor:         &outbox.ActorRef{ActorID: actorID, Role: role},
		Data:          data,
	})
}
