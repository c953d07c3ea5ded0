/*
handlers.go - HTTP API handlers for the fabric ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic. The core validates
  everything independently; nothing here trusts caller-side checks.

ENDPOINTS:
  Items:
    GET    /api/items                  List items (?q= for prefix search,
                                       ?name= for exact lookup)
    POST   /api/items                  Create item
    GET    /api/items/{id}             Get item
    PUT    /api/items/{id}/name        Rename item
    GET    /api/items/{id}/stock       Current stock
    GET    /api/items/{id}/average-cost    Weighted-average cost (?start&end)
    GET    /api/items/{id}/average-price   Weighted-average selling price
    GET    /api/items/{id}/profit-loss     Profit/loss over ?start&end
    GET    /api/items/{id}/projection      Projected profit for ?quantity=

  Transactions:
    POST   /api/purchases              Record purchase
    PUT    /api/purchases/{id}         Edit purchase
    GET    /api/purchases              Purchases in ?start&end, item names joined
    POST   /api/sales                  Record sale
    PUT    /api/sales/{id}             Edit sale
    GET    /api/sales                  Sales in ?start&end, item names joined

  Aggregates:
    GET    /api/stock/total            Total stock across items
    GET    /api/reports/profit-loss    Per-item P/L rows + portfolio total
    GET    /api/reports/sales-summary  Per-item sales totals
    GET    /api/reports/purchase-summary
    GET    /api/reports/{name}/download  Download stock, sales, purchases,
                                       or profit-loss as ?format=csv|xlsx

  Reconciliation:
    GET    /api/reconciliation/audit   Detect stock drift
    POST   /api/reconciliation/repair  Repair drift from the log

ERROR HANDLING:
  Errors map onto the ledger taxonomy:
  - 400: invalid argument (bad quantity, malformed date)
  - 404: item/purchase/sale not found
  - 409: duplicate name, insufficient stock
  - 500: storage failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/loomworks/fabric-ledger/ledger"
	"github.com/loomworks/fabric-ledger/report"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine     *ledger.Engine
	Aggregator *ledger.Aggregator
	Queries    *ledger.Queries
	Reconciler *ledger.Reconciler
	Reports    *report.Generator

	log zerolog.Logger
}

// NewHandler creates a handler over the ledger components.
func NewHandler(engine *ledger.Engine, agg *ledger.Aggregator, queries *ledger.Queries, rec *ledger.Reconciler, rep *report.Generator, log zerolog.Logger) *Handler {
	return &Handler{
		Engine:     engine,
		Aggregator: agg,
		Queries:    queries,
		Reconciler: rec,
		Reports:    rep,
		log:        log,
	}
}

// =============================================================================
// ITEM ENDPOINTS
// =============================================================================

// ListItems returns all items, or a filtered set when ?q= or ?name= is given.
// GET /api/items
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if name := r.URL.Query().Get("name"); name != "" {
		item, err := h.Queries.FindItemByName(ctx, name)
		if err != nil {
			h.writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, []ledger.Item{item})
		return
	}

	if q := r.URL.Query().Get("q"); q != "" {
		items, err := h.Queries.FindItemsByPrefix(ctx, q)
		if err != nil {
			h.writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
		return
	}

	items, err := h.Queries.ListItems(ctx)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// CreateItem creates a new item.
// POST /api/items
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	item, err := h.Engine.CreateItem(r.Context(), req.Name, req.InitialStock)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// GetItem returns an item by ID.
// GET /api/items/{id}
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item id", err)
		return
	}

	item, err := h.Queries.GetItem(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// RenameItem changes an item's name.
// PUT /api/items/{id}/name
func (h *Handler) RenameItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item id", err)
		return
	}

	var req RenameItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Engine.RenameItem(r.Context(), id, req.Name); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetItemStock returns an item's current stock.
// GET /api/items/{id}/stock
func (h *Handler) GetItemStock(w http.ResponseWriter, r *http.Request) {
	id, err := itemIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item id", err)
		return
	}

	stock, err := h.Aggregator.CurrentStock(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountResponse{Value: stock})
}

// GetAverageCost returns the weighted-average cost price, optionally
// windowed by ?start and ?end.
// GET /api/items/{id}/average-cost
func (h *Handler) GetAverageCost(w http.ResponseWriter, r *http.Request) {
	id, err := itemIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item id", err)
		return
	}
	rng, err := optionalRangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	avg, err := h.Aggregator.AverageCostPrice(r.Context(), id, rng)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountResponse{Value: avg})
}

// GetAveragePrice returns the weighted-average selling price.
// GET /api/items/{id}/average-price
func (h *Handler) GetAveragePrice(w http.ResponseWriter, r *http.Request) {
	id, err := itemIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item id", err)
		return
	}
	rng, err := optionalRangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	avg, err := h.Aggregator.AverageSellingPrice(r.Context(), id, rng)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountResponse{Value: avg})
}

// GetItemProfitLoss returns profit/loss for an item over [start, end].
// GET /api/items/{id}/profit-loss
func (h *Handler) GetItemProfitLoss(w http.ResponseWriter, r *http.Request) {
	id, err := itemIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item id", err)
		return
	}
	rng, err := requiredRangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	pl, err := h.Aggregator.ProfitLoss(r.Context(), id, rng)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountResponse{Value: pl})
}

// GetProjection returns the projected profit for selling ?quantity= units.
// GET /api/items/{id}/projection
func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	id, err := itemIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item id", err)
		return
	}
	qty, err := decimal.NewFromString(r.URL.Query().Get("quantity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity", err)
		return
	}

	projected, err := h.Aggregator.ProjectedProfit(r.Context(), id, qty)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountResponse{Value: projected})
}

// =============================================================================
// PURCHASE ENDPOINTS
// =============================================================================

// RecordPurchase records a purchase and bumps stock.
// POST /api/purchases
func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req RecordPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	at, err := parseTimestamp(req.OccurredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid occurred_at (use YYYY-MM-DD or YYYY-MM-DD HH:MM:SS)", err)
		return
	}

	purchase, err := h.Engine.RecordPurchase(r.Context(), req.ItemID, req.Quantity, req.UnitCost, at)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, purchase)
}

// EditPurchase overwrites a purchase and re-derives stock.
// PUT /api/purchases/{id}
func (h *Handler) EditPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid purchase id", err)
		return
	}

	var req EditPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	at, err := parseTimestamp(req.OccurredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid occurred_at", err)
		return
	}

	if err := h.Engine.EditPurchase(r.Context(), ledger.PurchaseID(id), req.Quantity, req.UnitCost, at); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPurchases returns purchases in [start, end] with item names joined.
// GET /api/purchases
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	rng, err := requiredRangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	records, err := h.Queries.PurchasesInRange(r.Context(), rng)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// =============================================================================
// SALE ENDPOINTS
// =============================================================================

// RecordSale records a sale, refusing to oversell.
// POST /api/sales
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req RecordSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	at, err := parseTimestamp(req.OccurredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid occurred_at (use YYYY-MM-DD or YYYY-MM-DD HH:MM:SS)", err)
		return
	}

	sale, err := h.Engine.RecordSale(r.Context(), req.ItemID, req.Quantity, req.UnitPrice, at)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

// EditSale overwrites a sale and re-derives stock.
// PUT /api/sales/{id}
func (h *Handler) EditSale(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid sale id", err)
		return
	}

	var req EditSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	at, err := parseTimestamp(req.OccurredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid occurred_at", err)
		return
	}

	if err := h.Engine.EditSale(r.Context(), ledger.SaleID(id), req.Quantity, req.UnitPrice, at); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSales returns sales in [start, end] with item names joined.
// GET /api/sales
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	rng, err := requiredRangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	records, err := h.Queries.SalesInRange(r.Context(), rng)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// =============================================================================
// AGGREGATE ENDPOINTS
// =============================================================================

// GetTotalStock returns the sum of stock across all items.
// GET /api/stock/total
func (h *Handler) GetTotalStock(w http.ResponseWriter, r *http.Request) {
	total, err := h.Aggregator.TotalStock(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountResponse{Value: total})
}

// GetTotalProfitLoss returns per-item P/L rows and the portfolio total.
// GET /api/reports/profit-loss
func (h *Handler) GetTotalProfitLoss(w http.ResponseWriter, r *http.Request) {
	rng, err := requiredRangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	rows, err := h.Aggregator.TotalProfitLoss(r.Context(), rng)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Profit)
	}
	writeJSON(w, http.StatusOK, ProfitLossResponse{Total: total, Rows: rows})
}

// GetSalesSummary returns per-item sales totals over [start, end].
// GET /api/reports/sales-summary
func (h *Handler) GetSalesSummary(w http.ResponseWriter, r *http.Request) {
	rng, err := requiredRangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	summaries, err := h.Aggregator.SalesSummary(r.Context(), rng)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// GetPurchaseSummary returns per-item purchase totals over [start, end].
// GET /api/reports/purchase-summary
func (h *Handler) GetPurchaseSummary(w http.ResponseWriter, r *http.Request) {
	rng, err := requiredRangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	summaries, err := h.Aggregator.PurchaseSummary(r.Context(), rng)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// DownloadReport streams a rendered report as a CSV or XLSX attachment.
// The stock report ignores the date range; the others require one.
// GET /api/reports/{name}/download?format=csv|xlsx
func (h *Handler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	name := chi.URLParam(r, "name")

	var table report.Table
	if name == "stock" {
		table, err = h.Reports.StockTable(r.Context())
	} else {
		rng, rerr := requiredRangeParams(r)
		if rerr != nil {
			writeError(w, http.StatusBadRequest, "Invalid date range", rerr)
			return
		}
		switch name {
		case "sales":
			table, err = h.Reports.SalesTable(r.Context(), rng)
		case "purchases":
			table, err = h.Reports.PurchaseTable(r.Context(), rng)
		case "profit-loss":
			table, err = h.Reports.ProfitLossTable(r.Context(), rng)
		default:
			writeError(w, http.StatusNotFound, "Unknown report", fmt.Errorf("no report named %q", name))
			return
		}
	}
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.%s", table.Name, format))
	if err := h.Reports.Write(w, table, format); err != nil {
		h.log.Error().Err(err).Str("report", table.Name).Msg("report export failed")
	}
}

// =============================================================================
// RECONCILIATION ENDPOINTS
// =============================================================================

// AuditStock reports items whose cached stock disagrees with the log.
// GET /api/reconciliation/audit
func (h *Handler) AuditStock(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.Reconciler.Audit(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuditResponse{Clean: len(drifts) == 0, Drifts: drifts})
}

// RepairStock rewrites cached stock from the transaction log.
// POST /api/reconciliation/repair
func (h *Handler) RepairStock(w http.ResponseWriter, r *http.Request) {
	repaired, err := h.Reconciler.Repair(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuditResponse{Clean: len(repaired) == 0, Drifts: repaired, Repaired: true})
}

// =============================================================================
// HELPERS
// =============================================================================

func itemIDParam(r *http.Request) (ledger.ItemID, error) {
	id, err := int64Param(r, "id")
	return ledger.ItemID(id), err
}

func int64Param(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// parseTimestamp accepts "YYYY-MM-DD HH:MM:SS" or "YYYY-MM-DD";
// empty means zero time (the engine substitutes now).
func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(ledger.TimestampLayout, s, time.Local); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.Local)
}

func requiredRangeParams(r *http.Request) (ledger.DateRange, error) {
	rng, err := optionalRangeParams(r)
	if err != nil {
		return ledger.DateRange{}, err
	}
	if rng == nil {
		return ledger.DateRange{}, fmt.Errorf("start and end are required")
	}
	return *rng, nil
}

func optionalRangeParams(r *http.Request) (*ledger.DateRange, error) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, fmt.Errorf("start and end must be given together")
	}
	from, err := parseTimestamp(start)
	if err != nil {
		return nil, err
	}
	to, err := parseTimestamp(end)
	if err != nil {
		return nil, err
	}
	return &ledger.DateRange{From: from, To: to}, nil
}

// writeLedgerError maps the ledger error taxonomy onto HTTP statuses.
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	if !ledger.IsClientError(err) {
		h.log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
		return
	}
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, ledger.ErrDuplicateName):
		writeError(w, http.StatusConflict, "Duplicate name", err)
	case errors.Is(err, ledger.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "Insufficient stock", err)
	default:
		writeError(w, http.StatusBadRequest, "Invalid argument", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
