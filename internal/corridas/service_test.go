package corridas

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/viaentrega/viaentrega-backend/internal/ledger"
	"github.com/viaentrega/viaentrega-backend/internal/pricing"
	"github.com/viaentrega/viaentrega-backend/internal/routing"
	"github.com/viaentrega/viaentrega-backend/pkg/config"
	"github.com/viaentrega/viaentrega-backend/pkg/db"
	"github.com/viaentrega/viaentrega-backend/pkg/db/models"
	"github.com/viaentrega/viaentrega-backend/pkg/enums"
	"github.com/viaentrega/viaentrega-backend/pkg/errors"
	"github.com/viaentrega/viaentrega-backend/pkg/outbox"
	"github.com/viaentrega/viaentrega-backend/pkg/pagination"
	"github.com/viaentrega/viaentrega-backend/pkg/types"
)

type fixedEstimator struct {
	km float64
}

func (f fixedEstimator) Estimate(ctx context.Context, origin routing.Waypoint, stops []routing.Waypoint) (float64, error) {
	return f.km, nil
}

func setupCorridasTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  name TEXT NOT NULL,
  balance_cents INTEGER NOT NULL DEFAULT 0,
  courier_status TEXT NOT NULL DEFAULT 'offline',
  seller_ref TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS corridas (
  id TEXT PRIMARY KEY,
  merchant_id TEXT NOT NULL,
  courier_id TEXT,
  platform_origin TEXT NOT NULL DEFAULT 'app',
  status TEXT NOT NULL DEFAULT 'aguardando',
  total_cents INTEGER NOT NULL,
  reserved_cents INTEGER,
  freight_cents INTEGER NOT NULL DEFAULT 0,
  package_count INTEGER NOT NULL,
  distance_km REAL NOT NULL,
  pickup_address TEXT,
  pickup_lat REAL NOT NULL,
  pickup_lng REAL NOT NULL,
  pickup_code TEXT NOT NULL,
  weight_kg REAL,
  volume_m3 REAL,
  accepted_at DATETIME,
  collected_at DATETIME,
  finalized_at DATETIME,
  cancelled_at DATETIME,
  cancel_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS delivery_stops (
  id TEXT PRIMARY KEY,
  corrida_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  address TEXT,
  lat REAL NOT NULL,
  lng REAL NOT NULL,
  package_count INTEGER NOT NULL,
  code TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pendente',
  delivered_at DATETIME,
  receiver_name TEXT,
  receiver_phone TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  balance_before_cents INTEGER NOT NULL,
  balance_after_cents INTEGER NOT NULL,
  category TEXT NOT NULL,
  corrida_id TEXT,
  description TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

func seedActor(t *testing.T, conn *gorm.DB, actorType enums.ActorType, balanceCents int64, status enums.CourierStatus) uuid.UUID {
	t.Helper()

	account := models.Account{
		ID:            uuid.New(),
		Type:          actorType,
		Name:          "conta de teste",
		BalanceCents:  balanceCents,
		CourierStatus: status,
	}
	require.NoError(t, conn.Create(&account).Error)
	return account.ID
}

func newCorridaService(t *testing.T, conn *gorm.DB, distanceKm float64) (Service, *service) {
	t.Helper()

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), db.NewRunner(conn))
	require.NoError(t, err)

	pricer := pricing.NewEngine(config.PricingConfig{
		MinValuePerPackageCents: 1000,
		BaseDistanceKm:          20,
		ExtraKmRateCents:        150,
	})
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)

	svc, err := NewService(
		NewRepository(conn),
		ledgerSvc,
		pricer,
		fixedEstimator{km: distanceKm},
		emitter,
		db.NewRunner(conn),
		config.CancellationConfig{FeeCents: 500, MinWaitAfterAccept: 5 * time.Minute},
		config.CourierConfig{MaxActiveRoutes: 3},
		nil,
	)
	require.NoError(t, err)
	return svc, svc.(*service)
}

func twoStopInput(merchantID uuid.UUID) CreateInput {
	return CreateInput{
		MerchantID:     merchantID,
		PickupAddress:  types.Address{Street: "Rua do Comercio", Number: "10", City: "São Paulo", State: "SP"},
		PickupLocation: types.LatLng{Lat: -23.5505, Lng: -46.6333},
		Stops: []StopInput{
			{
				Address:      types.Address{Street: "Rua Um", Number: "1", City: "São Paulo", State: "SP"},
				Location:     types.LatLng{Lat: -23.5614, Lng: -46.6823},
				PackageCount: 1,
			},
			{
				Address:      types.Address{Street: "Rua Dois", Number: "2", City: "São Paulo", State: "SP"},
				Location:     types.LatLng{Lat: -23.5522, Lng: -46.5963},
				PackageCount: 1,
			},
		},
	}
}

func merchantBalance(t *testing.T, conn *gorm.DB, id uuid.UUID) int64 {
	t.Helper()

	var account models.Account
	require.NoError(t, conn.First(&account, "id = ?", id).Error)
	return account.BalanceCents
}

func TestCreateReservesMerchantBalance(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	merchantID := seedActor(t, conn, enums.ActorTypeLojista, 10000, enums.CourierStatusOffline)

	corrida, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)

	assert.Equal(t, enums.CorridaStatusAguardando, corrida.Status)
	assert.Equal(t, int64(2000), corrida.TotalCents, "2 packages at 10.00 within base distance")
	require.NotNil(t, corrida.ReservedCents)
	assert.Equal(t, int64(2000), *corrida.ReservedCents)
	assert.Equal(t, 2, corrida.PackageCount)
	assert.Equal(t, int64(8000), merchantBalance(t, conn, merchantID))

	require.Len(t, corrida.Stops, 2)
	assert.Equal(t, 1, corrida.Stops[0].Position)
	assert.Equal(t, 2, corrida.Stops[1].Position)

	codes := map[string]struct{}{corrida.PickupCode: {}}
	for _, stop := range corrida.Stops {
		assert.Len(t, stop.Code, 6)
		for _, r := range stop.Code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r), "code %q uses ambiguous character %q", stop.Code, r)
		}
		codes[stop.Code] = struct{}{}
	}
	assert.Len(t, codes, 3, "pickup and stop codes must be distinct")

	var eventCount int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", corrida.ID, enums.EventCorridaCreated).
		Count(&eventCount).Error)
	assert.Equal(t, int64(1), eventCount)
}

func TestCreateInsufficientBalance(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	merchantID := seedActor(t, conn, enums.ActorTypeLojista, 1500, enums.CourierStatusOffline)

	_, err := svc.Create(ctx, twoStopInput(merchantID))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInsufficientBalance))

	assert.Equal(t, int64(1500), merchantBalance(t, conn, merchantID))

	var corridaCount int64
	require.NoError(t, conn.Model(&models.Corrida{}).
		Where("merchant_id = ?", merchantID).
		Count(&corridaCount).Error)
	assert.Zero(t, corridaCount, "failed reservation must not leave a corrida behind")
}

func TestCreateDistanceUnresolvable(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 0)
	ctx := context.Background()

	merchantID := seedActor(t, conn, enums.ActorTypeLojista, 10000, enums.CourierStatusOffline)

	_, err := svc.Create(ctx, twoStopInput(merchantID))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeDistanceUnresolvable))
	assert.Equal(t, int64(10000), merchantBalance(t, conn, merchantID))
}

func TestAcceptAssignsCourier(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	merchantID := seedActor(t, conn, enums.ActorTypeLojista, 10000, enums.CourierStatusOffline)
	courierID := seedActor(t, conn, enums.ActorTypeEntregador, 0, enums.CourierStatusOnline)

	created, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)

	accepted, err := svc.Accept(ctx, courierID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CorridaStatusAceita, accepted.Status)
	require.NotNil(t, accepted.CourierID)
	assert.Equal(t, courierID, *accepted.CourierID)
	assert.NotNil(t, accepted.AcceptedAt)
}

func TestAcceptSecondCourierObservesAlreadyClaimed(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	merchantID := seedActor(t, conn, enums.ActorTypeLojista, 10000, enums.CourierStatusOffline)
	winnerID := seedActor(t, conn, enums.ActorTypeEntregador, 0, enums.CourierStatusOnline)
	loserID := seedActor(t, conn, enums.ActorTypeEntregador, 0, enums.CourierStatusOnline)

	created, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)

	_, err = svc.Accept(ctx, winnerID, created.ID)
	require.NoError(t, err)

	_, err = svc.Accept(ctx, loserID, created.ID)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeAlreadyClaimed))

	final, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CorridaStatusAceita, final.Status)
	require.NotNil(t, final.CourierID)
	assert.Equal(t, winnerID, *final.CourierID)
}

func TestClaimIsSingleWriterAtomic(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	merchantID := seedActor(t, conn, enums.ActorTypeLojista, 10000, enums.CourierStatusOffline)
	created, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)

	repo := NewRepository(conn)
	won, err := repo.Claim(ctx, created.ID, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.True(t, won)

	// Any later conditional claim matches zero rows.
	won, err = repo.Claim(ctx, created.ID, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.False(t, won)
}

func TestAcceptOfflineCourier(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	merchantID := seedActor(t, conn, enums.ActorTypeLojista, 10000, enums.CourierStatusOffline)
	courierID := seedActor(t, conn, enums.ActorTypeEntregador, 0, enums.CourierStatusOffline)

	created, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)

	_, err = svc.Accept(ctx, courierID, created.ID)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))
}

func TestAcceptCapacityCeiling(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	merchantID := seedActor(t, conn, enums.ActorTypeLojista, 100000, enums.CourierStatusOffline)
	courierID := seedActor(t, conn, enums.ActorTypeEntregador, 0, enums.CourierStatusOnline)

	for i := 0; i < 3; i++ {
		created, err := svc.Create(ctx, twoStopInput(merchantID))
		require.NoError(t, err)
		_, err = svc.Accept(ctx, courierID, created.ID)
		require.NoError(t, err)
	}

	fourth, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)
	_, err = svc.Accept(ctx, courierID, fourth.ID)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeCapacityExceeded))
}

// serializeConns caps the pool at one connection so concurrent service
// calls run their transactions back to back, the way row locks order them
// on postgres.
func serializeConns(t *testing.T, conn *gorm.DB) {
	t.Helper()

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
}

func TestConcurrentAcceptsHonorCapacityCeiling(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	merchantID := seedActor(t, conn, enums.ActorTypeLojista, 100000, enums.CourierStatusOffline)
	courierID := seedActor(t, conn, enums.ActorTypeEntregador, 0, enums.CourierStatusOnline)

	// Two routes already in flight, one slot left under the ceiling of 3.
	for i := 0; i < 2; i++ {
		created, err := svc.Create(ctx, twoStopInput(merchantID))
		require.NoError(t, err)
		_, err = svc.Accept(ctx, courierID, created.ID)
		require.NoError(t, err)
	}
	first, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)
	second, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)

	serializeConns(t, conn)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		wg.Add(1)
		go func(corridaID uuid.UUID) {
			defer wg.Done()
			_, err := svc.Accept(ctx, courierID, corridaID)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	var wins, rejections int
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.HasCode(err, errors.CodeCapacityExceeded), "loser must be rejected on capacity, got %v", err)
		rejections++
	}
	assert.Equal(t, 1, wins, "exactly one of the competing accepts may claim the last slot")
	assert.Equal(t, 1, rejections)

	active, err := NewRepository(conn).CountActiveForCourier(ctx, courierID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), active, "the courier must never carry more than the ceiling")
}

func TestConcurrentSiblingDeliveriesFinalize(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	corrida, _, courierID := deliverToEmEntrega(t, svc, conn, 10)
	require.Len(t, corrida.Stops, 2)

	serializeConns(t, conn)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, stop := range corrida.Stops {
		wg.Add(1)
		go func(stopID uuid.UUID, code string) {
			defer wg.Done()
			_, err := svc.ConfirmDelivery(ctx, courierID, corrida.ID, stopID, code)
			errs <- err
		}(stop.ID, stop.Code)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	final, err := svc.Get(ctx, corrida.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CorridaStatusFinalizada, final.Status, "whichever confirmation lands last must finalize")
	assert.NotNil(t, final.FinalizedAt)
	assert.Nil(t, final.ReservedCents)
	for _, stop := range final.Stops {
		assert.Equal(t, enums.StopStatusEntregue, stop.Status)
	}

	var courier models.Account
	require.NoError(t, conn.First(&courier, "id = ?", courierID).Error)
	assert.Equal(t, int64(2000), courier.BalanceCents)

	var earnings int64
	require.NoError(t, conn.Model(&models.LedgerEntry{}).
		Where("corrida_id = ? AND category = ?", corrida.ID, enums.LedgerCategoryJobEarning).
		Count(&earnings).Error)
	assert.Equal(t, int64(1), earnings, "the courier is credited exactly once")
}

func TestCancelFromAguardandoRestoresBalance(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	merchantID := seedActor(t, conn, enums.ActorTypeLojista, 10000, enums.CourierStatusOffline)

	created, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)
	require.Equal(t, int64(8000), merchantBalance(t, conn, merchantID))

	cancelled, err := svc.Cancel(ctx, merchantID, enums.ActorTypeLojista, created.ID, "cliente desistiu")
	require.NoError(t, err)

	assert.Equal(t, enums.CorridaStatusCancelada, cancelled.Status)
	assert.Nil(t, cancelled.ReservedCents)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, int64(10000), merchantBalance(t, conn, merchantID), "fee-free cancel must restore the exact pre-create balance")
}

func TestCancelFromColetandoChargesFee(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	merchantID := seedActor(t, conn, enums.ActorTypeLojista, 10000, enums.CourierStatusOffline)
	courierID := seedActor(t, conn, enums.ActorTypeEntregador, 0, enums.CourierStatusOnline)

	created, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)
	_, err = svc.Accept(ctx, courierID, created.ID)
	require.NoError(t, err)
	_, err = svc.StartPickup(ctx, courierID, created.ID)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, merchantID, enums.ActorTypeLojista, created.ID, "loja fechou")
	require.NoError(t, err)

	assert.Equal(t, enums.CorridaStatusCancelada, cancelled.Status)
	assert.Nil(t, cancelled.ReservedCents)
	// Reserved 20.00 minus the 5.00 fee.
	assert.Equal(t, int64(9500), merchantBalance(t, conn, merchantID))

	var entries []models.LedgerEntry
	require.NoError(t, conn.Where("corrida_id = ?", created.ID).Find(&entries).Error)
	var sum int64
	for _, e := range entries {
		sum += e.AmountCents
	}
	assert.Equal(t, int64(-500), sum, "ledger must net to minus the retained fee")
}

func TestMerchantCancelAceitaHonorsMinimumWait(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, impl := newCorridaService(t, conn, 10)
	ctx := context.Background()

	merchantID := seedActor(t, conn, enums.ActorTypeLojista, 10000, enums.CourierStatusOffline)
	courierID := seedActor(t, conn, enums.ActorTypeEntregador, 0, enums.CourierStatusOnline)

	created, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)
	_, err = svc.Accept(ctx, courierID, created.ID)
	require.NoError(t, err)

	// Cancelling right after a courier committed costs the fee.
	_, err = svc.Cancel(ctx, merchantID, enums.ActorTypeLojista, created.ID, "mudou de ideia")
	require.NoError(t, err)
	assert.Equal(t, int64(9500), merchantBalance(t, conn, merchantID))

	// A second job cancelled after the wait window refunds in full.
	second, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)
	_, err = svc.Accept(ctx, courierID, second.ID)
	require.NoError(t, err)

	impl.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	_, err = svc.Cancel(ctx, merchantID, enums.ActorTypeLojista, second.ID, "mudou de ideia")
	require.NoError(t, err)
	assert.Equal(t, int64(9500-2000+2000), merchantBalance(t, conn, merchantID))
}

func TestConfirmPickupCodeMismatch(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	merchantID := seedActor(t, conn, enums.ActorTypeLojista, 10000, enums.CourierStatusOffline)
	courierID := seedActor(t, conn, enums.ActorTypeEntregador, 0, enums.CourierStatusOnline)

	created, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)
	_, err = svc.Accept(ctx, courierID, created.ID)
	require.NoError(t, err)
	_, err = svc.StartPickup(ctx, courierID, created.ID)
	require.NoError(t, err)

	_, err = svc.ConfirmPickup(ctx, courierID, created.ID, "WRONG1")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeCodeMismatch))

	still, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CorridaStatusColetando, still.Status)

	confirmed, err := svc.ConfirmPickup(ctx, courierID, created.ID, created.PickupCode)
	require.NoError(t, err)
	assert.Equal(t, enums.CorridaStatusEmEntrega, confirmed.Status)
	assert.NotNil(t, confirmed.CollectedAt)
}

func deliverToEmEntrega(t *testing.T, svc Service, conn *gorm.DB, distanceKm float64) (*models.Corrida, uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	merchantID := seedActor(t, conn, enums.ActorTypeLojista, 10000, enums.CourierStatusOffline)
	courierID := seedActor(t, conn, enums.ActorTypeEntregador, 0, enums.CourierStatusOnline)

	created, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)
	_, err = svc.Accept(ctx, courierID, created.ID)
	require.NoError(t, err)
	_, err = svc.StartPickup(ctx, courierID, created.ID)
	require.NoError(t, err)
	corrida, err := svc.ConfirmPickup(ctx, courierID, created.ID, created.PickupCode)
	require.NoError(t, err)
	return corrida, merchantID, courierID
}

func TestConfirmDeliveryWrongStopCode(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	corrida, _, courierID := deliverToEmEntrega(t, svc, conn, 10)
	require.Len(t, corrida.Stops, 2)

	// The sibling stop's code must not deliver this stop.
	_, err := svc.ConfirmDelivery(ctx, courierID, corrida.ID, corrida.Stops[0].ID, corrida.Stops[1].Code)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeCodeMismatch))

	reloaded, err := svc.Get(ctx, corrida.ID)
	require.NoError(t, err)
	for _, stop := range reloaded.Stops {
		assert.Equal(t, enums.StopStatusPendente, stop.Status, "a mismatch must leave every stop untouched")
	}
}

func TestDeliveryFinalizesAfterLastStop(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	corrida, _, courierID := deliverToEmEntrega(t, svc, conn, 10)

	after, err := svc.ConfirmDelivery(ctx, courierID, corrida.ID, corrida.Stops[0].ID, corrida.Stops[0].Code)
	require.NoError(t, err)
	assert.Equal(t, enums.CorridaStatusEmEntrega, after.Status, "a pendente stop must keep the corrida open")
	assert.Nil(t, after.FinalizedAt)

	final, err := svc.ConfirmDelivery(ctx, courierID, corrida.ID, corrida.Stops[1].ID, corrida.Stops[1].Code)
	require.NoError(t, err)
	assert.Equal(t, enums.CorridaStatusFinalizada, final.Status)
	assert.NotNil(t, final.FinalizedAt)
	assert.Nil(t, final.ReservedCents)

	var courier models.Account
	require.NoError(t, conn.First(&courier, "id = ?", courierID).Error)
	assert.Equal(t, int64(2000), courier.BalanceCents, "finalization credits the courier the full freight")

	var entries []models.LedgerEntry
	require.NoError(t, conn.Where("corrida_id = ?", corrida.ID).Find(&entries).Error)
	var sum int64
	for _, e := range entries {
		sum += e.AmountCents
	}
	assert.Zero(t, sum, "a completed corrida conserves money across both actors")
}

func TestStartPickupByForeignCourier(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	merchantID := seedActor(t, conn, enums.ActorTypeLojista, 10000, enums.CourierStatusOffline)
	courierID := seedActor(t, conn, enums.ActorTypeEntregador, 0, enums.CourierStatusOnline)
	intruderID := seedActor(t, conn, enums.ActorTypeEntregador, 0, enums.CourierStatusOnline)

	created, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)
	_, err = svc.Accept(ctx, courierID, created.ID)
	require.NoError(t, err)

	_, err = svc.StartPickup(ctx, intruderID, created.ID)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestCancelFromEmEntregaRejected(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	corrida, merchantID, _ := deliverToEmEntrega(t, svc, conn, 10)

	_, err := svc.Cancel(ctx, merchantID, enums.ActorTypeLojista, corrida.ID, "tarde demais")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidTransition))
}

func TestListAwaitingHidesClaimedCorridas(t *testing.T) {
	conn := setupCorridasTestDB(t)
	svc, _ := newCorridaService(t, conn, 10)
	ctx := context.Background()

	merchantID := seedActor(t, conn, enums.ActorTypeLojista, 100000, enums.CourierStatusOffline)
	courierID := seedActor(t, conn, enums.ActorTypeEntregador, 0, enums.CourierStatusOnline)

	first, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)
	second, err := svc.Create(ctx, twoStopInput(merchantID))
	require.NoError(t, err)

	_, err = svc.Accept(ctx, courierID, first.ID)
	require.NoError(t, err)

	rows, next, err := svc.ListAwaiting(ctx, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, next)

	ids := make(map[uuid.UUID]struct{}, len(rows))
	for _, row := range rows {
		ids[row.ID] = struct{}{}
	}
	_, hasFirst := ids[first.ID]
	_, hasSecond := ids[second.ID]
	assert.False(t, hasFirst, "a claimed corrida must not appear in the awaiting feed")
	assert.True(t, hasSecond)
}
