package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/fabric-ledger/ledger"
	"github.com/loomworks/fabric-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) (*ledger.Engine, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return ledger.NewEngine(store, zerolog.Nop()), store
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustCreateItem(t *testing.T, e *ledger.Engine, name string, stock string) ledger.Item {
	t.Helper()
	item, err := e.CreateItem(context.Background(), name, d(stock))
	require.NoError(t, err)
	return item
}

// =============================================================================
// ITEM TESTS
// =============================================================================

func TestEngine_CreateItem(t *testing.T) {
	// GIVEN: An empty ledger
	// WHEN: Creating an item with initial stock
	// THEN: The item exists with that stock and a positive ID

	engine, store := newTestEngine(t)
	ctx := context.Background()

	item, err := engine.CreateItem(ctx, "Silk", d("25"))
	require.NoError(t, err)
	assert.Positive(t, int64(item.ID))
	assert.Equal(t, "Silk", item.Name)
	assert.True(t, item.Stock.Equal(d("25")), "stock should equal initial stock")

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.Equal(d("25")))
}

func TestEngine_CreateItem_TrimsName(t *testing.T) {
	engine, _ := newTestEngine(t)

	item, err := engine.CreateItem(context.Background(), "  Cotton  ", decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "Cotton", item.Name)
}

func TestEngine_CreateItem_InvalidInput_Rejected(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateItem(ctx, "   ", decimal.Zero)
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument, "blank name should be rejected")

	_, err = engine.CreateItem(ctx, "Linen", d("-1"))
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument, "negative stock should be rejected")
}

func TestEngine_CreateItem_DuplicateName_Rejected(t *testing.T) {
	// GIVEN: An item named "Silk"
	// WHEN: Creating another item named "Silk"
	// THEN: Creation fails with DuplicateNameError

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	mustCreateItem(t, engine, "Silk", "0")

	_, err := engine.CreateItem(ctx, "Silk", decimal.Zero)
	assert.Error(t, err)
	var dupErr *ledger.DuplicateNameError
	assert.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "Silk", dupErr.Name)
}

func TestEngine_RenameItem(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	item := mustCreateItem(t, engine, "Silk", "0")

	err := engine.RenameItem(ctx, item.ID, "Raw Silk")
	require.NoError(t, err)

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Raw Silk", got.Name)
}

func TestEngine_RenameItem_ToOwnName_NoOp(t *testing.T) {
	engine, _ := newTestEngine(t)

	item := mustCreateItem(t, engine, "Silk", "0")
	err := engine.RenameItem(context.Background(), item.ID, "Silk")
	assert.NoError(t, err, "renaming to the current name should succeed")
}

func TestEngine_RenameItem_TakenName_Rejected(t *testing.T) {
	// GIVEN: Items "Silk" and "Cotton"
	// WHEN: Renaming "Cotton" to "Silk"
	// THEN: Rename fails with DuplicateNameError and the name is unchanged

	engine, store := newTestEngine(t)
	ctx := context.Background()

	mustCreateItem(t, engine, "Silk", "0")
	cotton := mustCreateItem(t, engine, "Cotton", "0")

	err := engine.RenameItem(ctx, cotton.ID, "Silk")
	var dupErr *ledger.DuplicateNameError
	assert.ErrorAs(t, err, &dupErr)

	got, err := store.GetItem(ctx, cotton.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cotton", got.Name)
}

func TestEngine_RenameItem_UnknownItem_NotFound(t *testing.T) {
	engine, _ := newTestEngine(t)

	err := engine.RenameItem(context.Background(), 999, "Anything")
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// PURCHASE TESTS
// =============================================================================

func TestEngine_RecordPurchase_IncreasesStock(t *testing.T) {
	// GIVEN: An item with zero stock
	// WHEN: Recording a purchase of 100 units
	// THEN: Stock becomes 100 and the purchase row is persisted

	engine, store := newTestEngine(t)
	ctx := context.Background()

	item := mustCreateItem(t, engine, "Silk", "0")

	purchase, err := engine.RecordPurchase(ctx, item.ID, d("100"), d("50"), time.Time{})
	require.NoError(t, err)
	assert.Positive(t, int64(purchase.ID))
	assert.False(t, purchase.OccurredAt.IsZero(), "zero timestamp should default to now")

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.Equal(d("100")), "stock should be 100, got %s", got.Stock)
}

func TestEngine_RecordPurchase_UnknownItem_NotFound(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.RecordPurchase(context.Background(), 42, d("10"), d("5"), time.Time{})
	assert.True(t, ledger.IsNotFound(err))
}

func TestEngine_RecordPurchase_InvalidInput_Rejected(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	item := mustCreateItem(t, engine, "Silk", "0")

	_, err := engine.RecordPurchase(ctx, item.ID, decimal.Zero, d("5"), time.Time{})
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument, "zero quantity should be rejected")

	_, err = engine.RecordPurchase(ctx, item.ID, d("-3"), d("5"), time.Time{})
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument, "negative quantity should be rejected")

	_, err = engine.RecordPurchase(ctx, item.ID, d("3"), d("-5"), time.Time{})
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument, "negative unit cost should be rejected")
}

func TestEngine_EditPurchase_AdjustsStockByDelta(t *testing.T) {
	// GIVEN: A purchase of 100 units (stock 100)
	// WHEN: Editing the purchase down to 60 units
	// THEN: Stock drops to 60 and the row reflects the new values

	engine, store := newTestEngine(t)
	ctx := context.Background()

	item := mustCreateItem(t, engine, "Silk", "0")
	purchase, err := engine.RecordPurchase(ctx, item.ID, d("100"), d("50"), time.Time{})
	require.NoError(t, err)

	err = engine.EditPurchase(ctx, purchase.ID, d("60"), d("55"), time.Time{})
	require.NoError(t, err)

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.Equal(d("60")), "stock should follow the purchase edit")

	edited, err := store.GetPurchase(ctx, purchase.ID)
	require.NoError(t, err)
	assert.True(t, edited.Quantity.Equal(d("60")))
	assert.True(t, edited.UnitCost.Equal(d("55")))
	assert.Equal(t, purchase.OccurredAt.Unix(), edited.OccurredAt.Unix(),
		"zero edit timestamp should keep the original")
}

func TestEngine_EditPurchase_ShrinkBelowSold_Rejected(t *testing.T) {
	// GIVEN: Purchased 100, sold 80 (stock 20)
	// WHEN: Editing the purchase down to 50 (would leave stock at -30)
	// THEN: Edit fails with InsufficientStockError and nothing changes

	engine, store := newTestEngine(t)
	ctx := context.Background()

	item := mustCreateItem(t, engine, "Silk", "0")
	purchase, err := engine.RecordPurchase(ctx, item.ID, d("100"), d("50"), time.Time{})
	require.NoError(t, err)
	_, err = engine.RecordSale(ctx, item.ID, d("80"), d("70"), time.Time{})
	require.NoError(t, err)

	err = engine.EditPurchase(ctx, purchase.ID, d("50"), d("50"), time.Time{})
	var stockErr *ledger.InsufficientStockError
	assert.ErrorAs(t, err, &stockErr)

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.Equal(d("20")), "failed edit must not move stock")

	unchanged, err := store.GetPurchase(ctx, purchase.ID)
	require.NoError(t, err)
	assert.True(t, unchanged.Quantity.Equal(d("100")), "failed edit must not change the row")
}

// =============================================================================
// SALE TESTS
// =============================================================================

func TestEngine_RecordSale_DecreasesStock(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	item := mustCreateItem(t, engine, "Silk", "0")
	_, err := engine.RecordPurchase(ctx, item.ID, d("100"), d("50"), time.Time{})
	require.NoError(t, err)

	sale, err := engine.RecordSale(ctx, item.ID, d("40"), d("80"), time.Time{})
	require.NoError(t, err)
	assert.Positive(t, int64(sale.ID))

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.Equal(d("60")), "stock should be purchases minus sales")
}

func TestEngine_RecordSale_Oversell_Rejected(t *testing.T) {
	// GIVEN: An item with 10 units in stock
	// WHEN: Selling 11 units
	// THEN: The sale fails with InsufficientStockError, no sale row is
	//       written, and stock is untouched

	engine, store := newTestEngine(t)
	ctx := context.Background()

	item := mustCreateItem(t, engine, "Silk", "10")

	_, err := engine.RecordSale(ctx, item.ID, d("11"), d("80"), time.Time{})
	assert.Error(t, err)
	var stockErr *ledger.InsufficientStockError
	assert.ErrorAs(t, err, &stockErr)
	assert.True(t, stockErr.Available.Equal(d("10")))
	assert.True(t, stockErr.Requested.Equal(d("11")))

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.Equal(d("10")), "failed sale must not move stock")

	sales, err := store.SalesByItem(ctx, item.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, sales, "failed sale must not leave a row behind")
}

func TestEngine_RecordSale_ExactStock_Allowed(t *testing.T) {
	// Selling exactly what is on hand drains stock to zero.
	engine, store := newTestEngine(t)
	ctx := context.Background()

	item := mustCreateItem(t, engine, "Silk", "10")

	_, err := engine.RecordSale(ctx, item.ID, d("10"), d("80"), time.Time{})
	require.NoError(t, err)

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.IsZero())
}

func TestEngine_EditSale_AdjustsStockByDelta(t *testing.T) {
	// GIVEN: Purchased 100, sold 40 (stock 60)
	// WHEN: Editing the sale down to 25
	// THEN: Stock rises to 75

	engine, store := newTestEngine(t)
	ctx := context.Background()

	item := mustCreateItem(t, engine, "Silk", "0")
	_, err := engine.RecordPurchase(ctx, item.ID, d("100"), d("50"), time.Time{})
	require.NoError(t, err)
	sale, err := engine.RecordSale(ctx, item.ID, d("40"), d("80"), time.Time{})
	require.NoError(t, err)

	err = engine.EditSale(ctx, sale.ID, d("25"), d("80"), time.Time{})
	require.NoError(t, err)

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.Equal(d("75")), "stock should follow the sale edit")
}

func TestEngine_EditSale_GrowBeyondStock_Rejected(t *testing.T) {
	// GIVEN: Purchased 100, sold 40 (stock 60)
	// WHEN: Editing the sale up to 101 (needs 61 more than on hand)
	// THEN: Edit fails and neither the row nor stock changes

	engine, store := newTestEngine(t)
	ctx := context.Background()

	item := mustCreateItem(t, engine, "Silk", "0")
	_, err := engine.RecordPurchase(ctx, item.ID, d("100"), d("50"), time.Time{})
	require.NoError(t, err)
	sale, err := engine.RecordSale(ctx, item.ID, d("40"), d("80"), time.Time{})
	require.NoError(t, err)

	err = engine.EditSale(ctx, sale.ID, d("101"), d("80"), time.Time{})
	var stockErr *ledger.InsufficientStockError
	assert.ErrorAs(t, err, &stockErr)

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.Equal(d("60")))

	unchanged, err := store.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, unchanged.Quantity.Equal(d("40")))
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestEngine_ConcurrentSales_NeverOversell(t *testing.T) {
	// GIVEN: An item with 100 units in stock
	// WHEN: Two goroutines each try to sell 60 units at the same time
	// THEN: Exactly one sale succeeds and stock ends at 40

	engine, store := newTestEngine(t)
	ctx := context.Background()

	item := mustCreateItem(t, engine, "Silk", "100")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.RecordSale(ctx, item.ID, d("60"), d("80"), time.Time{})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent sale should win")

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.Equal(d("40")), "stock should reflect the single winning sale")
}

func TestEngine_StockConservation(t *testing.T) {
	// After any mix of purchases, sales, and edits, stock equals
	// opening + purchased - sold.

	engine, store := newTestEngine(t)
	ctx := context.Background()

	item := mustCreateItem(t, engine, "Silk", "5")

	p1, err := engine.RecordPurchase(ctx, item.ID, d("100"), d("50"), time.Time{})
	require.NoError(t, err)
	_, err = engine.RecordPurchase(ctx, item.ID, d("20"), d("55"), time.Time{})
	require.NoError(t, err)
	s1, err := engine.RecordSale(ctx, item.ID, d("30"), d("80"), time.Time{})
	require.NoError(t, err)
	require.NoError(t, engine.EditPurchase(ctx, p1.ID, d("90"), d("50"), time.Time{}))
	require.NoError(t, engine.EditSale(ctx, s1.ID, d("35"), d("80"), time.Time{}))

	// 5 + 90 + 20 - 35 = 80
	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.Equal(d("80")), "stock should be opening + purchased - sold, got %s", got.Stock)
}
