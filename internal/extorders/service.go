package extorders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/viaentrega/viaentrega-backend/internal/corridas"
	"github.com/viaentrega/viaentrega-backend/pkg/db"
	"github.com/viaentrega/viaentrega-backend/pkg/db/models"
	"github.com/viaentrega/viaentrega-backend/pkg/enums"
	"github.com/viaentrega/viaentrega-backend/pkg/errors"
	"github.com/viaentrega/viaentrega-backend/pkg/logger"
	"github.com/viaentrega/viaentrega-backend/pkg/marketplace"
	"github.com/viaentrega/viaentrega-backend/pkg/outbox"
	"github.com/viaentrega/viaentrega-backend/pkg/types"
)

const importOrigin = "mercadolivre"

// CorridaCreator is the one slice of the corrida lifecycle this package
// needs: converting a staged order into a live job.
type CorridaCreator interface {
	Create(ctx context.Context, input corridas.CreateInput) (*models.Corrida, error)
}

// SyncResult summarizes one sync pass for a merchant.
type SyncResult struct {
	Fetched int
	Created int
	Updated int
	Skipped int
}

// ImportResult reports the outcome of importing one selected order.
type ImportResult struct {
	OrderID   uuid.UUID
	CorridaID *uuid.UUID
	Err       error
}

// Service reconciles marketplace orders with the corrida lifecycle.
type Service interface {
	Sync(ctx context.Context, merchantID uuid.UUID, sellerRef string, since time.Time) (*SyncResult, error)
	Select(ctx context.Context, merchantID, orderID uuid.UUID, selected bool) (*models.ExternalOrder, error)
	ImportSelected(ctx context.Context, merchantID uuid.UUID) ([]ImportResult, error)
	// Release reacts to a cancelled corrida: the backing order returns to
	// staged while retries remain, and parks in terminal_cancelled after
	// the ceiling.
	Release(ctx context.Context, corridaID uuid.UUID) (*models.ExternalOrder, error)
	List(ctx context.Context, merchantID uuid.UUID, statuses []enums.ExternalOrderStatus) ([]models.ExternalOrder, error)
}

type service struct {
	repo       Repository
	source     marketplace.Source
	creator    CorridaCreator
	emitter    *outbox.Service
	runner     db.TxRunner
	maxRetries int
	logg       *logger.Logger
	now        func() time.Time
}

// NewService wires the reconciler with its collaborators.
func NewService(
	repo Repository,
	source marketplace.Source,
	creator CorridaCreator,
	emitter *outbox.Service,
	runner db.TxRunner,
	maxRetries int,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("external order repository required")
	}
	if creator == nil {
		return nil, fmt.Errorf("corrida creator required")
	}
	if runner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &service{
		repo:       repo,
		source:     source,
		creator:    creator,
		emitter:    emitter,
		runner:     runner,
		maxRetries: maxRetries,
		logg:       logg,
		now:        time.Now,
	}, nil
}

func (s *service) Sync(ctx context.Context, merchantID uuid.UUID, sellerRef string, since time.Time) (*SyncResult, error) {
	if merchantID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "merchant id is required")
	}
	if s.source == nil {
		return nil, errors.New(errors.CodeDependency, "marketplace source not configured")
	}

	orders, err := s.source.SearchRecentOrders(ctx, sellerRef, since)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "search marketplace orders")
	}

	result := &SyncResult{Fetched: len(orders)}
	for _, order := range orders {
		if err := s.syncOne(ctx, merchantID, order, result); err != nil {
			// One broken order never sinks the batch.
			result.Skipped++
			if s.logg != nil {
				logCtx := s.logg.WithFields(ctx, map[string]any{
					"external_order_id": order.ExternalOrderID,
				})
				s.logg.Error(logCtx, "sync external order", err)
			}
		}
	}
	return result, nil
}

func (s *service) syncOne(ctx context.Context, merchantID uuid.UUID, order marketplace.Order, result *SyncResult) error {
	existing, err := s.repo.GetByExternalID(ctx, merchantID, order.ExternalOrderID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return fmt.Errorf("load staged order: %w", err)
	}

	if existing != nil && existing.Status != enums.ExternalOrderStatusStaged {
		// Imported and terminal orders are owned elsewhere now.
		result.Skipped++
		return nil
	}

	var shipment *marketplace.Shipment
	if s.source != nil && order.ExternalShipmentID != "" {
		shipment, err = s.source.FetchShipment(ctx, order.ExternalShipmentID)
		if err != nil {
			return fmt.Errorf("fetch shipment %s: %w", order.ExternalShipmentID, err)
		}
	}

	if existing == nil {
		row := &models.ExternalOrder{
			ID:                 uuid.New(),
			MerchantID:         merchantID,
			ExternalOrderID:    order.ExternalOrderID,
			ExternalShipmentID: order.ExternalShipmentID,
			Status:             enums.ExternalOrderStatusStaged,
			PackageCount:       order.PackageCount,
		}
		if row.PackageCount <= 0 {
			row.PackageCount = 1
		}
		if order.ReceiverName != "" {
			row.ReceiverName = &order.ReceiverName
		}
		if order.ReceiverPhone != "" {
			row.ReceiverPhone = &order.ReceiverPhone
		}
		if shipment != nil {
			row.PickupAddress = shipment.PickupAddress
			row.PickupLat = shipment.PickupLocation.Lat
			row.PickupLng = shipment.PickupLocation.Lng
			row.DeliveryAddress = shipment.DeliveryAddress
			row.DeliveryLat = shipment.DeliveryLocation.Lat
			row.DeliveryLng = shipment.DeliveryLocation.Lng
		}
		err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
				if db.IsUniqueViolation(err, "ux_external_orders_merchant_order") {
					// A concurrent sync won the insert.
					return nil
				}
				return err
			}
			return s.emit(ctx, tx, enums.EventExternalOrderSynced, row.ID, merchantID)
		})
		if err != nil {
			return err
		}
		result.Created++
		return nil
	}

	// External data only fills fields the lojista has not touched yet.
	// Merchant corrections always win over a fresher marketplace payload.
	changed := false
	if existing.ReceiverName == nil && order.ReceiverName != "" {
		existing.ReceiverName = &order.ReceiverName
		changed = true
	}
	if existing.ReceiverPhone == nil && order.ReceiverPhone != "" {
		existing.ReceiverPhone = &order.ReceiverPhone
		changed = true
	}
	if existing.ExternalShipmentID == "" && order.ExternalShipmentID != "" {
		existing.ExternalShipmentID = order.ExternalShipmentID
		changed = true
	}
	if shipment != nil {
		if existing.PickupAddress.IsZero() && !shipment.PickupAddress.IsZero() {
			existing.PickupAddress = shipment.PickupAddress
			changed = true
		}
		if existing.PickupLat == 0 && existing.PickupLng == 0 && !shipment.PickupLocation.IsZero() {
			existing.PickupLat = shipment.PickupLocation.Lat
			existing.PickupLng = shipment.PickupLocation.Lng
			changed = true
		}
		if existing.DeliveryAddress.IsZero() && !shipment.DeliveryAddress.IsZero() {
			existing.DeliveryAddress = shipment.DeliveryAddress
			changed = true
		}
		if existing.DeliveryLat == 0 && existing.DeliveryLng == 0 && !shipment.DeliveryLocation.IsZero() {
			existing.DeliveryLat = shipment.DeliveryLocation.Lat
			existing.DeliveryLng = shipment.DeliveryLocation.Lng
			changed = true
		}
	}
	if !changed {
		result.Skipped++
		return nil
	}
	if err := s.repo.Save(ctx, existing); err != nil {
		return fmt.Errorf("update staged order: %w", err)
	}
	result.Updated++
	return nil
}

func (s *service) Select(ctx context.Context, merchantID, orderID uuid.UUID, selected bool) (*models.ExternalOrder, error) {
	if merchantID == uuid.Nil || orderID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "merchant id and order id are required")
	}
	updated, err := s.repo.SetSelected(ctx, merchantID, orderID, selected)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "toggle order selection")
	}
	if !updated {
		order, err := s.repo.Get(ctx, merchantID, orderID)
		if err != nil {
			return nil, errors.New(errors.CodeNotFound, "external order not found")
		}
		return nil, errors.New(errors.CodeInvalidTransition,
			fmt.Sprintf("order is %q, only staged orders can be selected", order.Status))
	}
	return s.repo.Get(ctx, merchantID, orderID)
}

func (s *service) ImportSelected(ctx context.Context, merchantID uuid.UUID) ([]ImportResult, error) {
	if merchantID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "merchant id is required")
	}

	orders, err := s.repo.ListStagedSelected(ctx, merchantID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "list selected orders")
	}

	// Each import stands alone. A failed Create reports on its own row and
	// never rolls back siblings already imported in this batch.
	results := make([]ImportResult, 0, len(orders))
	for _, order := range orders {
		corridaID, err := s.importOne(ctx, order)
		res := ImportResult{OrderID: order.ID, Err: err}
		if err == nil {
			res.CorridaID = &corridaID
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *service) importOne(ctx context.Context, order models.ExternalOrder) (uuid.UUID, error) {
	input := corridas.CreateInput{
		MerchantID:     order.MerchantID,
		PlatformOrigin: importOrigin,
		PickupAddress:  order.PickupAddress,
		PickupLocation: types.LatLng{Lat: order.PickupLat, Lng: order.PickupLng},
		Stops: []corridas.StopInput{
			{
				Address:      order.DeliveryAddress,
				Location:     types.LatLng{Lat: order.DeliveryLat, Lng: order.DeliveryLng},
				PackageCount: order.PackageCount,
			},
		},
	}
	if order.ReceiverName != nil {
		input.Stops[0].ReceiverName = *order.ReceiverName
	}
	if order.ReceiverPhone != nil {
		input.Stops[0].ReceiverPhone = *order.ReceiverPhone
	}

	corrida, err := s.creator.Create(ctx, input)
	if err != nil {
		return uuid.Nil, err
	}

	err = s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		marked, err := repo.MarkImported(ctx, order.ID, corrida.ID, s.now())
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "mark order imported")
		}
		if !marked {
			return errors.New(errors.CodeInvalidTransition, "order left staged state during import")
		}
		return s.emit(ctx, tx, enums.EventExternalOrderImported, order.ID, order.MerchantID)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return corrida.ID, nil
}

func (s *service) Release(ctx context.Context, corridaID uuid.UUID) (*models.ExternalOrder, error) {
	if corridaID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "corrida id is required")
	}

	order, err := s.repo.GetImportedByCorrida(ctx, corridaID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// Not every corrida is marketplace-born.
			return nil, nil
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "load imported order")
	}

	if order.RetryCount < s.maxRetries {
		requeued, err := s.repo.Requeue(ctx, order.ID)
		if err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "requeue order")
		}
		if !requeued {
			return nil, errors.New(errors.CodeInvalidTransition, "order left imported state during release")
		}
	} else {
		parked, err := s.repo.MarkTerminal(ctx, order.ID)
		if err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "park order")
		}
		if !parked {
			return nil, errors.New(errors.CodeInvalidTransition, "order left imported state during release")
		}
	}

	refreshed, err := s.repo.Get(ctx, order.MerchantID, order.ID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "reload order")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":    order.ID.String(),
			"status":      refreshed.Status,
			"retry_count": refreshed.RetryCount,
		})
		s.logg.Info(logCtx, "external order released")
	}
	return refreshed, nil
}

func (s *service) List(ctx context.Context, merchantID uuid.UUID, statuses []enums.ExternalOrderStatus) ([]models.ExternalOrder, error) {
	if merchantID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "merchant id is required")
	}
	orders, err := s.repo.ListByMerchant(ctx, merchantID, statuses)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "list external orders")
	}
	return orders, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, orderID, merchantID uuid.UUID) error {
	if s.emitter == nil {
		return nil
	}
	return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateExternalOrder,
		AggregateID:   orderID,
		Actor:         &outbox.ActorRef{ActorID: merchantID, Role: enums.ActorTypeLojista},
	})
}
