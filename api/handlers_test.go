/*
handlers_test.go - HTTP-level tests for the fabric ledger API

Tests drive the full stack: router -> handlers -> engine -> sqlite, with an
in-memory database per test.
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/fabric-ledger/api"
	"github.com/loomworks/fabric-ledger/ledger"
	"github.com/loomworks/fabric-ledger/report"
	"github.com/loomworks/fabric-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testAPI struct {
	router *chi.Mux
	engine *ledger.Engine
}

func newTestAPI(t *testing.T) *testAPI {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := zerolog.Nop()
	engine := ledger.NewEngine(store, log)
	agg := ledger.NewAggregator(store)
	queries := ledger.NewQueries(store)
	rec := ledger.NewReconciler(store, log)
	reports := report.NewGenerator(agg, queries, t.TempDir(), log)

	handler := api.NewHandler(engine, agg, queries, rec, reports, log)
	return &testAPI{router: api.NewRouter(handler), engine: engine}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func (a *testAPI) mustItem(t *testing.T, name, stock string) ledger.Item {
	t.Helper()
	item, err := a.engine.CreateItem(context.Background(), name, decimal.RequireFromString(stock))
	require.NoError(t, err)
	return item
}

// =============================================================================
// ITEM ENDPOINT TESTS
// =============================================================================

func TestAPI_CreateItem(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, "POST", "/api/items", api.CreateItemRequest{
		Name:         "Silk",
		InitialStock: decimal.RequireFromString("25"),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	item := decode[ledger.Item](t, w)
	assert.Positive(t, int64(item.ID))
	assert.Equal(t, "Silk", item.Name)
	assert.True(t, item.Stock.Equal(decimal.RequireFromString("25")))
}

func TestAPI_CreateItem_DuplicateName_Conflict(t *testing.T) {
	a := newTestAPI(t)
	a.mustItem(t, "Silk", "0")

	w := a.do(t, "POST", "/api/items", api.CreateItemRequest{Name: "Silk"})
	assert.Equal(t, http.StatusConflict, w.Code)

	resp := decode[api.ErrorResponse](t, w)
	assert.Equal(t, "Duplicate name", resp.Error)
}

func TestAPI_CreateItem_BlankName_BadRequest(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, "POST", "/api/items", api.CreateItemRequest{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_GetItem_NotFound(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, "GET", "/api/items/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_ListItems_PrefixSearch(t *testing.T) {
	a := newTestAPI(t)
	a.mustItem(t, "Silk", "0")
	a.mustItem(t, "Silk Blend", "0")
	a.mustItem(t, "Cotton", "0")

	w := a.do(t, "GET", "/api/items?q=sil", nil)
	require.Equal(t, http.StatusOK, w.Code)

	items := decode[[]ledger.Item](t, w)
	assert.Len(t, items, 2)
}

func TestAPI_ListItems_ExactName(t *testing.T) {
	a := newTestAPI(t)
	a.mustItem(t, "Silk", "0")

	w := a.do(t, "GET", "/api/items?name=Silk", nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := decode[[]ledger.Item](t, w)
	require.Len(t, items, 1)
	assert.Equal(t, "Silk", items[0].Name)

	w = a.do(t, "GET", "/api/items?name=Wool", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_RenameItem(t *testing.T) {
	a := newTestAPI(t)
	item := a.mustItem(t, "Silk", "0")
	a.mustItem(t, "Cotton", "0")

	w := a.do(t, "PUT", fmt.Sprintf("/api/items/%d/name", item.ID), api.RenameItemRequest{Name: "Raw Silk"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Taken name -> 409
	w = a.do(t, "PUT", fmt.Sprintf("/api/items/%d/name", item.ID), api.RenameItemRequest{Name: "Cotton"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

// =============================================================================
// TRANSACTION ENDPOINT TESTS
// =============================================================================

func TestAPI_RecordPurchase_ThenStock(t *testing.T) {
	// GIVEN: A fresh item
	// WHEN: Recording a purchase of 100 @ 50 over HTTP
	// THEN: The stock endpoint reports 100 and average cost reports 50

	a := newTestAPI(t)
	item := a.mustItem(t, "Silk", "0")

	w := a.do(t, "POST", "/api/purchases", api.RecordPurchaseRequest{
		ItemID:     item.ID,
		Quantity:   decimal.RequireFromString("100"),
		UnitCost:   decimal.RequireFromString("50"),
		OccurredAt: "2025-06-01",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, "GET", fmt.Sprintf("/api/items/%d/stock", item.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	stock := decode[api.AmountResponse](t, w)
	assert.True(t, stock.Value.Equal(decimal.RequireFromString("100")))

	w = a.do(t, "GET", fmt.Sprintf("/api/items/%d/average-cost", item.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	avg := decode[api.AmountResponse](t, w)
	assert.True(t, avg.Value.Equal(decimal.RequireFromString("50")))
}

func TestAPI_RecordPurchase_UnknownItem_NotFound(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, "POST", "/api/purchases", api.RecordPurchaseRequest{
		ItemID:   42,
		Quantity: decimal.RequireFromString("1"),
		UnitCost: decimal.RequireFromString("1"),
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_RecordPurchase_BadTimestamp_BadRequest(t *testing.T) {
	a := newTestAPI(t)
	item := a.mustItem(t, "Silk", "0")

	w := a.do(t, "POST", "/api/purchases", api.RecordPurchaseRequest{
		ItemID:     item.ID,
		Quantity:   decimal.RequireFromString("1"),
		UnitCost:   decimal.RequireFromString("1"),
		OccurredAt: "June 1st",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_RecordSale_Oversell_Conflict(t *testing.T) {
	// GIVEN: An item with 10 in stock
	// WHEN: Selling 11 over HTTP
	// THEN: 409 with the insufficient-stock message, stock untouched

	a := newTestAPI(t)
	item := a.mustItem(t, "Silk", "10")

	w := a.do(t, "POST", "/api/sales", api.RecordSaleRequest{
		ItemID:    item.ID,
		Quantity:  decimal.RequireFromString("11"),
		UnitPrice: decimal.RequireFromString("80"),
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	resp := decode[api.ErrorResponse](t, w)
	assert.Equal(t, "Insufficient stock", resp.Error)

	w = a.do(t, "GET", fmt.Sprintf("/api/items/%d/stock", item.ID), nil)
	stock := decode[api.AmountResponse](t, w)
	assert.True(t, stock.Value.Equal(decimal.RequireFromString("10")))
}

func TestAPI_EditSale(t *testing.T) {
	a := newTestAPI(t)
	item := a.mustItem(t, "Silk", "100")

	w := a.do(t, "POST", "/api/sales", api.RecordSaleRequest{
		ItemID:     item.ID,
		Quantity:   decimal.RequireFromString("40"),
		UnitPrice:  decimal.RequireFromString("80"),
		OccurredAt: "2025-06-01",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	sale := decode[ledger.Sale](t, w)

	w = a.do(t, "PUT", fmt.Sprintf("/api/sales/%d", sale.ID), api.EditSaleRequest{
		Quantity:  decimal.RequireFromString("25"),
		UnitPrice: decimal.RequireFromString("85"),
	})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, "GET", fmt.Sprintf("/api/items/%d/stock", item.ID), nil)
	stock := decode[api.AmountResponse](t, w)
	assert.True(t, stock.Value.Equal(decimal.RequireFromString("75")))
}

func TestAPI_ListSales_RequiresRange(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, "GET", "/api/sales", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, "GET", "/api/sales?start=2025-06-01&end=2025-06-30", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// =============================================================================
// AGGREGATE ENDPOINT TESTS
// =============================================================================

func TestAPI_ProfitLoss_SingleDay(t *testing.T) {
	// Purchase 100 @ 50 and sale 40 @ 80 on June 1; [June 1, June 1] -> 1200

	a := newTestAPI(t)
	item := a.mustItem(t, "Silk", "0")

	w := a.do(t, "POST", "/api/purchases", api.RecordPurchaseRequest{
		ItemID: item.ID, Quantity: decimal.RequireFromString("100"),
		UnitCost: decimal.RequireFromString("50"), OccurredAt: "2025-06-01",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = a.do(t, "POST", "/api/sales", api.RecordSaleRequest{
		ItemID: item.ID, Quantity: decimal.RequireFromString("40"),
		UnitPrice: decimal.RequireFromString("80"), OccurredAt: "2025-06-01",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.do(t, "GET", fmt.Sprintf("/api/items/%d/profit-loss?start=2025-06-01&end=2025-06-01", item.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pl := decode[api.AmountResponse](t, w)
	assert.True(t, pl.Value.Equal(decimal.RequireFromString("1200")), "got %s", pl.Value)

	w = a.do(t, "GET", "/api/reports/profit-loss?start=2025-06-01&end=2025-06-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	total := decode[api.ProfitLossResponse](t, w)
	assert.True(t, total.Total.Equal(decimal.RequireFromString("1200")))
	require.Len(t, total.Rows, 1)
	assert.Equal(t, "Silk", total.Rows[0].ItemName)
}

func TestAPI_Projection(t *testing.T) {
	a := newTestAPI(t)
	item := a.mustItem(t, "Silk", "0")

	w := a.do(t, "POST", "/api/purchases", api.RecordPurchaseRequest{
		ItemID: item.ID, Quantity: decimal.RequireFromString("100"),
		UnitCost: decimal.RequireFromString("50"), OccurredAt: "2025-06-01",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = a.do(t, "POST", "/api/sales", api.RecordSaleRequest{
		ItemID: item.ID, Quantity: decimal.RequireFromString("40"),
		UnitPrice: decimal.RequireFromString("80"), OccurredAt: "2025-06-02",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// (80 - 50) x 10 = 300
	w = a.do(t, "GET", fmt.Sprintf("/api/items/%d/projection?quantity=10", item.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	projected := decode[api.AmountResponse](t, w)
	assert.True(t, projected.Value.Equal(decimal.RequireFromString("300")))
}

func TestAPI_TotalStock(t *testing.T) {
	a := newTestAPI(t)
	a.mustItem(t, "Silk", "10")
	a.mustItem(t, "Cotton", "5")

	w := a.do(t, "GET", "/api/stock/total", nil)
	require.Equal(t, http.StatusOK, w.Code)
	total := decode[api.AmountResponse](t, w)
	assert.True(t, total.Value.Equal(decimal.RequireFromString("15")))
}

// =============================================================================
// REPORT DOWNLOAD TESTS
// =============================================================================

func TestAPI_DownloadStockReport_CSV(t *testing.T) {
	a := newTestAPI(t)
	a.mustItem(t, "Silk", "10")

	w := a.do(t, "GET", "/api/reports/stock/download?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "stock_report.csv")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Item Name,Current Stock", lines[0])
	assert.Equal(t, "Silk,10", lines[1])
}

func TestAPI_DownloadSalesReport_RequiresRange(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, "GET", "/api/reports/sales/download", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_DownloadReport_UnknownName(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, "GET", "/api/reports/bogus/download", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_DownloadReport_BadFormat(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, "GET", "/api/reports/stock/download?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// RECONCILIATION ENDPOINT TESTS
// =============================================================================

func TestAPI_ReconciliationAudit_Clean(t *testing.T) {
	a := newTestAPI(t)
	a.mustItem(t, "Silk", "10")

	w := a.do(t, "GET", "/api/reconciliation/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[api.AuditResponse](t, w)
	assert.True(t, resp.Clean)
	assert.Empty(t, resp.Drifts)
	assert.False(t, resp.Repaired)
}

func TestAPI_ReconciliationRepair(t *testing.T) {
	a := newTestAPI(t)
	a.mustItem(t, "Silk", "10")

	w := a.do(t, "POST", "/api/reconciliation/repair", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[api.AuditResponse](t, w)
	assert.True(t, resp.Clean)
	assert.True(t, resp.Repaired)
}
