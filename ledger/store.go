/*
store.go - Persistence interface for the ledger

PURPOSE:
  Defines the interface between the domain logic and the database. The
  Engine, Aggregator, Queries, and Reconciler only talk to these interfaces;
  lock and transaction discipline is centralized there, never in callers.

KEY INTERFACES:
  Store:   Row-level reads and writes for items, purchases, and sales
  TxStore: Store plus WithTx for atomic multi-row operations

ATOMICITY CONTRACT:
  Every Engine mutation that touches more than one row (insert purchase +
  bump stock, insert sale + check-and-decrement stock, edit + re-derive
  stock delta) runs inside WithTx. Implementations must guarantee that the
  function either commits fully or leaves no trace, and that two concurrent
  WithTx calls never interleave their read-check-write sequences.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store (use ":memory:" in tests)

SEE ALSO:
  - engine.go: The only writer through this interface
  - store/sqlite/sqlite.go: Concrete implementation
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store handles persistence of items, purchases, and sales.
//
// Read methods return NotFoundError (or empty slices, for list shapes) for
// missing data and wrap everything else with ErrStorage. Write methods never
// enforce business rules beyond schema constraints; that is the Engine's job.
type Store interface {
	// --- Items ---

	// InsertItem persists a new item and returns it with its assigned ID.
	// Returns DuplicateNameError if the name is taken.
	InsertItem(ctx context.Context, name string, stock decimal.Decimal) (Item, error)

	// GetItem returns an item by ID.
	GetItem(ctx context.Context, id ItemID) (Item, error)

	// GetItemByName returns an item by exact (case-sensitive) name.
	GetItemByName(ctx context.Context, name string) (Item, error)

	// UpdateItemName overwrites an item's name.
	UpdateItemName(ctx context.Context, id ItemID, name string) error

	// AdjustStock adds delta (which may be negative) to an item's stock.
	AdjustStock(ctx context.Context, id ItemID, delta decimal.Decimal) error

	// ListItems returns all items in insertion (ID) order.
	ListItems(ctx context.Context) ([]Item, error)

	// ItemsByPrefix returns items whose name starts with prefix,
	// case-insensitively, in insertion order.
	ItemsByPrefix(ctx context.Context, prefix string) ([]Item, error)

	// TotalStock returns the sum of stock across all items, zero when empty.
	TotalStock(ctx context.Context) (decimal.Decimal, error)

	// --- Purchases ---

	// InsertPurchase persists a purchase row and returns it with its ID.
	InsertPurchase(ctx context.Context, p Purchase) (Purchase, error)

	// GetPurchase returns a purchase by ID.
	GetPurchase(ctx context.Context, id PurchaseID) (Purchase, error)

	// UpdatePurchase overwrites quantity, unit cost, and timestamp.
	UpdatePurchase(ctx context.Context, p Purchase) error

	// PurchasesByItem returns an item's purchases, oldest first.
	// A nil range means all time.
	PurchasesByItem(ctx context.Context, id ItemID, r *DateRange) ([]Purchase, error)

	// PurchasesInRange returns purchases joined with item names,
	// newest first.
	PurchasesInRange(ctx context.Context, r DateRange) ([]PurchaseRecord, error)

	// --- Sales ---

	// InsertSale persists a sale row and returns it with its ID.
	InsertSale(ctx context.Context, s Sale) (Sale, error)

	// GetSale returns a sale by ID.
	GetSale(ctx context.Context, id SaleID) (Sale, error)

	// UpdateSale overwrites quantity, unit price, and timestamp.
	UpdateSale(ctx context.Context, s Sale) error

	// SalesByItem returns an item's sales, oldest first.
	// A nil range means all time.
	SalesByItem(ctx context.Context, id ItemID, r *DateRange) ([]Sale, error)

	// SalesInRange returns sales joined with item names, newest first.
	SalesInRange(ctx context.Context, r DateRange) ([]SaleRecord, error)
}

// TxStore wraps Store with transaction support.
//
// WithTx executes fn against a Store view bound to a single database
// transaction. If fn returns an error the transaction is rolled back;
// otherwise it is committed. Concurrent WithTx calls are serialized so that
// a read-check-write inside fn always sees a consistent snapshot.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
