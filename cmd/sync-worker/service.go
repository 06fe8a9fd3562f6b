package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/viaentrega/viaentrega-backend/internal/extorders"
	"github.com/viaentrega/viaentrega-backend/pkg/config"
	"github.com/viaentrega/viaentrega-backend/pkg/db/models"
	"github.com/viaentrega/viaentrega-backend/pkg/instance"
	"github.com/viaentrega/viaentrega-backend/pkg/logger"
	"github.com/viaentrega/viaentrega-backend/pkg/metrics"
)

const (
	workerName          = "marketplace-sync"
	defaultSyncInterval = 5 * time.Minute
	defaultSyncWindow   = 24 * time.Hour
	lockTTLSlack        = 30 * time.Second
)

type merchantLister interface {
	ListConnectedMerchants(ctx context.Context) ([]models.Account, error)
}

type orderSyncer interface {
	Sync(ctx context.Context, merchantID uuid.UUID, sellerRef string, since time.Time) (*extorders.SyncResult, error)
}

type passLocker interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) error
}

type ServiceParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	Merchants merchantLister
	Syncer    orderSyncer
	Locker    passLocker
	Metrics   *metrics.WorkerMetrics
}

// Service drives the periodic marketplace sync. One instance at a time
// holds the redis lock; the others skip the pass instead of hammering the
// marketplace API with duplicate searches.
type Service struct {
	cfg       *config.Config
	logg      *logger.Logger
	merchants merchantLister
	syncer    orderSyncer
	locker    passLocker
	metrics   *metrics.WorkerMetrics
	owner     string
	interval  time.Duration
	window    time.Duration
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Merchants == nil {
		return nil, errors.New("merchant lister is required")
	}
	if params.Syncer == nil {
		return nil, errors.New("order syncer is required")
	}
	if params.Locker == nil {
		return nil, errors.New("locker is required")
	}

	interval := params.Config.Marketplace.SyncInterval
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	window := params.Config.Marketplace.SyncWindow
	if window <= 0 {
		window = defaultSyncWindow
	}

	return &Service{
		cfg:       params.Config,
		logg:      params.Logger,
		merchants: params.Merchants,
		syncer:    params.Syncer,
		locker:    params.Locker,
		metrics:   params.Metrics,
		owner:     instance.GetID() + ":" + uuid.NewString(),
		interval:  interval,
		window:    window,
		now:       time.Now,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// First pass immediately so a fresh deploy does not wait a full
	// interval before staging anything.
	if err := s.RunPass(ctx); err != nil {
		s.logg.Error(ctx, "sync pass failed", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "sync worker context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunPass(ctx); err != nil {
				s.logg.Error(ctx, "sync pass failed", err)
			}
		}
	}
}

// RunPass syncs every connected merchant once. Per-merchant failures are
// recorded and skipped; the pass itself fails only on infrastructure
// errors (lock, merchant listing).
func (s *Service) RunPass(ctx context.Context) error {
	acquired, err := s.locker.AcquireLock(ctx, workerName, s.owner, s.interval+lockTTLSlack)
	if err != nil {
		s.metrics.IncFailure(workerName)
		return fmt.Errorf("acquire sync lock: %w", err)
	}
	if !acquired {
		s.logg.Info(ctx, "sync lock held elsewhere, skipping pass")
		return nil
	}
	defer func() {
		if err := s.locker.ReleaseLock(ctx, workerName, s.owner); err != nil {
			s.logg.Error(ctx, "failed to release sync lock", err)
		}
	}()

	start := s.now()
	defer func() {
		s.metrics.ObserveDuration(workerName, s.now().Sub(start))
	}()

	merchants, err := s.merchants.ListConnectedMerchants(ctx)
	if err != nil {
		s.metrics.IncFailure(workerName)
		return fmt.Errorf("list connected merchants: %w", err)
	}

	since := start.Add(-s.window)
	staged, failed := 0, 0
	for _, merchant := range merchants {
		if merchant.SellerRef == nil || *merchant.SellerRef == "" {
			continue
		}

		mctx := s.logg.WithFields(ctx, map[string]any{
			"merchant_id": merchant.ID,
			"seller_ref":  *merchant.SellerRef,
		})

		result, err := s.syncer.Sync(ctx, merchant.ID, *merchant.SellerRef, since)
		if err != nil {
			failed++
			s.logg.Error(mctx, "merchant sync failed", err)
			continue
		}

		staged += result.Created
		s.logg.Info(s.logg.WithFields(mctx, map[string]any{
			"fetched": result.Fetched,
			"created": result.Created,
			"updated": result.Updated,
			"skipped": result.Skipped,
		}), "merchant sync complete")
	}

	s.metrics.AddItems(workerName, "staged", staged)
	s.metrics.AddItems(workerName, "failed", failed)
	if failed > 0 && failed == len(merchants) {
		s.metrics.IncFailure(workerName)
		return fmt.Errorf("all %d merchant syncs failed", failed)
	}
	s.metrics.IncSuccess(workerName)
	return nil
}
