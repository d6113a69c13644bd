package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"backend/internal/config"
	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reloadProduct(t *testing.T, env *testEnv, id uuid.UUID) *model.Product {
	t.Helper()
	product, err := env.productRepo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return product
}

func TestReserveUpdatesCounters(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	product := env.createProduct(t, "SKU-RES", dec(t, "10"))

	require.NoError(t, env.ledger.Reserve(ctx, product.ID, dec(t, "4"), model.DocTypeSalesOrder, uuid.New()))

	got := reloadProduct(t, env, product.ID)
	assert.Equal(t, "10.00", got.StockQuantity.StringFixed(2))
	assert.Equal(t, "4.00", got.ReservedQuantity.StringFixed(2))
	assert.Equal(t, "6.00", got.AvailableQuantity.StringFixed(2))

	movements, total, err := env.movementRepo.ListByProduct(ctx, product.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, model.MovementReserve, movements[0].MovementType)
	assert.Equal(t, "6.00", movements[0].AvailableAfter.StringFixed(2))
}

func TestReserveBeyondStockClampsAvailable(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	product := env.createProduct(t, "SKU-OVER", dec(t, "5"))

	require.NoError(t, env.ledger.Reserve(ctx, product.ID, dec(t, "8"), model.DocTypeSalesOrder, uuid.New()))

	got := reloadProduct(t, env, product.ID)
	assert.Equal(t, "8.00", got.ReservedQuantity.StringFixed(2))
	assert.Equal(t, "0.00", got.AvailableQuantity.StringFixed(2))
}

func TestConcurrentReservationsAccumulate(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	product := env.createProduct(t, "SKU-RACE", dec(t, "10"))
	qty := dec(t, "5")

	// Both reservations land as single atomic UPDATEs, so neither can
	// overwrite the other's counter change.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- env.ledger.Reserve(ctx, product.ID, qty, model.DocTypeSalesOrder, uuid.New())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got := reloadProduct(t, env, product.ID)
	assert.Equal(t, "10.00", got.StockQuantity.StringFixed(2))
	assert.Equal(t, "10.00", got.ReservedQuantity.StringFixed(2))
	assert.Equal(t, "0.00", got.AvailableQuantity.StringFixed(2))

	_, total, err := env.movementRepo.ListByProduct(ctx, product.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestReleaseIsIdempotentAtZero(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	product := env.createProduct(t, "SKU-REL", dec(t, "10"))

	require.NoError(t, env.ledger.Reserve(ctx, product.ID, dec(t, "3"), model.DocTypeSalesOrder, uuid.New()))
	require.NoError(t, env.ledger.Release(ctx, product.ID, dec(t, "3"), model.DocTypeSalesOrder, uuid.New()))

	got := reloadProduct(t, env, product.ID)
	assert.Equal(t, "0.00", got.ReservedQuantity.StringFixed(2))
	assert.Equal(t, "10.00", got.AvailableQuantity.StringFixed(2))

	// Releasing again with nothing reserved clamps at zero and succeeds.
	require.NoError(t, env.ledger.Release(ctx, product.ID, dec(t, "5"), model.DocTypeSalesOrder, uuid.New()))
	got = reloadProduct(t, env, product.ID)
	assert.Equal(t, "0.00", got.ReservedQuantity.StringFixed(2))
	assert.Equal(t, "10.00", got.AvailableQuantity.StringFixed(2))
}

func TestConsumeBlocksOnShortage(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	product := env.createProduct(t, "SKU-SHORT", dec(t, "2"))

	_, err := env.ledger.Consume(ctx, product.ID, dec(t, "5"), model.DocTypeInvoice, uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	// Counters untouched, no movement recorded.
	got := reloadProduct(t, env, product.ID)
	assert.Equal(t, "2.00", got.StockQuantity.StringFixed(2))
	_, total, err := env.movementRepo.ListByProduct(ctx, product.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestConsumeAllowsNegativeStockWhenConfigured(t *testing.T) {
	env := newTestEnv(t, config.InventoryConfig{
		TrackingEnabled: true, ShortageWarnings: true, AllowNegativeStock: true,
	})
	ctx := context.Background()
	product := env.createProduct(t, "SKU-NEG", dec(t, "2"))

	note, err := env.ledger.Consume(ctx, product.ID, dec(t, "5"), model.DocTypeInvoice, uuid.New())
	require.NoError(t, err)
	assert.Contains(t, note, "Shortage")
	assert.Contains(t, note, "3.00")

	got := reloadProduct(t, env, product.ID)
	assert.Equal(t, "-3.00", got.StockQuantity.StringFixed(2))
}

func TestConsumeShortageNoteSuppressedWithoutWarnings(t *testing.T) {
	env := newTestEnv(t, config.InventoryConfig{
		TrackingEnabled: true, ShortageWarnings: false, AllowNegativeStock: true,
	})
	ctx := context.Background()
	product := env.createProduct(t, "SKU-QUIET", dec(t, "1"))

	note, err := env.ledger.Consume(ctx, product.ID, dec(t, "3"), model.DocTypeInvoice, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, note)
}

func TestConsumeReducesReservationAndStock(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	product := env.createProduct(t, "SKU-FLOW", dec(t, "10"))

	require.NoError(t, env.ledger.Reserve(ctx, product.ID, dec(t, "4"), model.DocTypeSalesOrder, uuid.New()))
	_, err := env.ledger.Consume(ctx, product.ID, dec(t, "4"), model.DocTypeInvoice, uuid.New())
	require.NoError(t, err)

	got := reloadProduct(t, env, product.ID)
	assert.Equal(t, "6.00", got.StockQuantity.StringFixed(2))
	assert.Equal(t, "0.00", got.ReservedQuantity.StringFixed(2))
	assert.Equal(t, "6.00", got.AvailableQuantity.StringFixed(2))
}

func TestTrackingDisabledIsNoOp(t *testing.T) {
	env := newTestEnv(t, config.InventoryConfig{TrackingEnabled: false})
	ctx := context.Background()
	product := env.createProduct(t, "SKU-OFF", dec(t, "10"))

	require.NoError(t, env.ledger.Reserve(ctx, product.ID, dec(t, "4"), model.DocTypeSalesOrder, uuid.New()))
	note, err := env.ledger.Consume(ctx, product.ID, dec(t, "100"), model.DocTypeInvoice, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, note)

	got := reloadProduct(t, env, product.ID)
	assert.Equal(t, "10.00", got.StockQuantity.StringFixed(2))
	assert.Equal(t, "0.00", got.ReservedQuantity.StringFixed(2))

	_, total, err := env.movementRepo.ListByProduct(ctx, product.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestAdjustStockRecordsMovement(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	product := env.createProduct(t, "SKU-ADJ", dec(t, "10"))

	require.NoError(t, env.ledger.AdjustStock(ctx, product.ID, dec(t, "-2.5")))

	got := reloadProduct(t, env, product.ID)
	assert.Equal(t, "7.50", got.StockQuantity.StringFixed(2))
	assert.Equal(t, "7.50", got.AvailableQuantity.StringFixed(2))

	movements, _, err := env.movementRepo.ListByProduct(ctx, product.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, model.MovementAdjust, movements[0].MovementType)
	assert.Nil(t, movements[0].DocumentID)
}

func TestLedgerNotFoundProduct(t *testing.T) {
	env := newTestEnv(t, trackingConfig())

	err := env.ledger.Reserve(context.Background(), uuid.New(), dec(t, "1"), model.DocTypeSalesOrder, uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}
