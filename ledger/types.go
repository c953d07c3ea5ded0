/*
Package ledger provides the inventory and financial ledger core.

PURPOSE:
  This package contains the transactional data model (items, purchases, sales)
  and the operations that mutate and aggregate it. Stock is maintained as an
  eagerly-updated running total on the item row; every mutation that touches a
  purchase or sale quantity adjusts the owning item's stock in the same
  database transaction.

KEY CONCEPTS IN THIS FILE (types.go):
  - Item: A tradeable fabric type with a unique name and current stock
  - Purchase/Sale: Incoming/outgoing stock transactions
  - DateRange: An inclusive [From, To] window for range queries
  - ProfitRow / summary rows: Derived aggregation results

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for quantities and money, never float64
  2. Eager stock: Item.Stock is a materialized aggregate, not recomputed on read
  3. Type Safety: Distinct ID types prevent mixing item/purchase/sale IDs
  4. Soft-fail reads: Aggregations return zero for "no data", never an error

SEE ALSO:
  - engine.go: Mutating operations
  - aggregate.go: Derived read queries
  - store.go: Persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID int64
type PurchaseID int64
type SaleID int64

// =============================================================================
// ENTITIES
// =============================================================================

// Item is a tradeable fabric type. Stock is the running total of all
// purchase quantities minus all sale quantities, maintained transactionally
// by the Engine. Items are never deleted.
type Item struct {
	ID    ItemID          `json:"id"`
	Name  string          `json:"name"`
	Stock decimal.Decimal `json:"stock"`

	// Opening is the stock the item was created with. It is the baseline
	// the Reconciler audits against (derived = opening + purchases - sales)
	// and never changes after creation.
	Opening decimal.Decimal `json:"opening_stock"`
}

// Purchase is a single incoming stock transaction.
type Purchase struct {
	ID         PurchaseID      `json:"id"`
	ItemID     ItemID          `json:"item_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Value is the total cost of the purchase (quantity x unit cost).
func (p Purchase) Value() decimal.Decimal {
	return p.Quantity.Mul(p.UnitCost)
}

// Sale is a single outgoing stock transaction.
type Sale struct {
	ID         SaleID          `json:"id"`
	ItemID     ItemID          `json:"item_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Value is the revenue of the sale (quantity x unit price).
func (s Sale) Value() decimal.Decimal {
	return s.Quantity.Mul(s.UnitPrice)
}

// =============================================================================
// DATE RANGE - Inclusive [From, To] window
// =============================================================================

// TimestampLayout is the sortable text form timestamps take in the store.
const TimestampLayout = "2006-01-02 15:04:05"

// DateRange is an inclusive time window. An end bound with a zero clock
// covers its whole day, so [today, today] spans 00:00:00 to 23:59:59.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Day returns a range covering a single calendar day.
func Day(t time.Time) DateRange {
	return DateRange{From: t, To: t}
}

// Bounds returns the store-level string bounds of the range.
func (r DateRange) Bounds() (from, to string) {
	f := r.From
	t := r.To
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		t = time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
	}
	return f.Format(TimestampLayout), t.Format(TimestampLayout)
}

// Valid reports whether the range is well-formed (From not after To).
func (r DateRange) Valid() bool {
	from, to := r.Bounds()
	return from <= to
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	from, to := r.Bounds()
	s := t.Format(TimestampLayout)
	return s >= from && s <= to
}

// =============================================================================
// DERIVED ROWS - Aggregation and query results
// =============================================================================

// ProfitRow is one item's contribution to a total profit/loss aggregate.
type ProfitRow struct {
	ItemID   ItemID          `json:"item_id"`
	ItemName string          `json:"item_name"`
	Revenue  decimal.Decimal `json:"revenue"`
	Profit   decimal.Decimal `json:"profit"`
}

// SaleRecord is a sale joined with its item's name, for display and export.
type SaleRecord struct {
	Sale
	ItemName string `json:"item_name"`
}

// PurchaseRecord is a purchase joined with its item's name.
type PurchaseRecord struct {
	Purchase
	ItemName string `json:"item_name"`
}

// ItemSalesSummary is per-item sales totals over a range.
type ItemSalesSummary struct {
	ItemID     ItemID          `json:"item_id"`
	ItemName   string          `json:"item_name"`
	QtySold    decimal.Decimal `json:"qty_sold"`
	SalesValue decimal.Decimal `json:"sales_value"`
	ProfitLoss decimal.Decimal `json:"profit_loss"`
}

// ItemPurchaseSummary is per-item purchase totals over a range.
type ItemPurchaseSummary struct {
	ItemID       ItemID          `json:"item_id"`
	ItemName     string          `json:"item_name"`
	QtyPurchased decimal.Decimal `json:"qty_purchased"`
	CostValue    decimal.Decimal `json:"cost_value"`
}

// StockDrift reports an item whose cached stock disagrees with its
// purchase/sale log. Produced by the Reconciler.
type StockDrift struct {
	ItemID   ItemID          `json:"item_id"`
	ItemName string          `json:"item_name"`
	Cached   decimal.Decimal `json:"cached"`
	Derived  decimal.Decimal `json:"derived"`
}
