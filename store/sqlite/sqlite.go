/*
Package sqlite provides a SQLite-backed implementation of the ledger store.

PURPOSE:
  Implements ledger.Store and ledger.TxStore using SQLite. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  items:     One row per fabric type, with the cached stock aggregate
  purchases: Incoming stock transactions
  sales:     Outgoing stock transactions

NUMERIC STORAGE:
  Quantities and prices are stored as decimal strings and parsed with
  shopspring/decimal. Sums are computed in Go, never with SQL SUM over
  floats, so monetary aggregates stay exact.

TIMESTAMPS:
  Stored as sortable "YYYY-MM-DD HH:MM:SS" text. All range queries are
  inclusive on both bounds; ledger.DateRange.Bounds produces the string
  bounds used here.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole transaction, so the read-check-write sequence inside a sale cannot
  interleave with another writer. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) and foreign keys on.

USAGE:
  store, err := sqlite.New("./data/fabric.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store, logger)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/engine.go: Higher-level mutators using this store
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/loomworks/fabric-ledger/ledger"
	_ "github.com/mattn/go-sqlite3"
)

// Store implements ledger.Store and ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single pooled connection keeps ":memory:" to one database instance.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		stock TEXT NOT NULL DEFAULT '0',
		opening_stock TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS purchases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL REFERENCES items(id),
		quantity TEXT NOT NULL,
		unit_cost TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_purchases_item_date
		ON purchases(item_id, occurred_at);
	CREATE INDEX IF NOT EXISTS idx_purchases_date
		ON purchases(occurred_at);

	CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL REFERENCES items(id),
		quantity TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sales_item_date
		ON sales(item_id, occurred_at);
	CREATE INDEX IF NOT EXISTS idx_sales_date
		ON sales(occurred_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx abstracts *sql.DB and *sql.Tx so helpers run in either context.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ITEMS
// =============================================================================

// InsertItem persists a new item. Maps the UNIQUE constraint to
// DuplicateNameError.
func (s *Store) InsertItem(ctx context.Context, name string, stock decimal.Decimal) (ledger.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertItem(ctx, s.db, name, stock)
}

func insertItem(ctx context.Context, db dbtx, name string, stock decimal.Decimal) (ledger.Item, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO items (name, stock, opening_stock, created_at) VALUES (?, ?, ?, ?)`,
		name, stock.String(), stock.String(), now(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.Item{}, &ledger.DuplicateNameError{Name: name}
		}
		return ledger.Item{}, ledger.WrapStorage("insert item", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Item{}, ledger.WrapStorage("insert item", err)
	}
	return ledger.Item{ID: ledger.ItemID(id), Name: name, Stock: stock, Opening: stock}, nil
}

// GetItem returns an item by ID.
func (s *Store) GetItem(ctx context.Context, id ledger.ItemID) (ledger.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, db dbtx, id ledger.ItemID) (ledger.Item, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, name, stock, opening_stock FROM items WHERE id = ?`, id)
	return scanItem(row, &ledger.NotFoundError{Kind: "item", ID: int64(id)})
}

// GetItemByName returns an item by exact name.
func (s *Store) GetItemByName(ctx context.Context, name string) (ledger.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItemByName(ctx, s.db, name)
}

func getItemByName(ctx context.Context, db dbtx, name string) (ledger.Item, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, name, stock, opening_stock FROM items WHERE name = ?`, name)
	return scanItem(row, &ledger.NotFoundError{Kind: "item", Name: name})
}

func scanItem(row *sql.Row, notFound *ledger.NotFoundError) (ledger.Item, error) {
	var item ledger.Item
	var stock, opening string
	err := row.Scan(&item.ID, &item.Name, &stock, &opening)
	if err == sql.ErrNoRows {
		return ledger.Item{}, notFound
	}
	if err != nil {
		return ledger.Item{}, ledger.WrapStorage("scan item", err)
	}
	item.Stock = mustDecimal(stock)
	item.Opening = mustDecimal(opening)
	return item, nil
}

// UpdateItemName overwrites an item's name.
func (s *Store) UpdateItemName(ctx context.Context, id ledger.ItemID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateItemName(ctx, s.db, id, name)
}

func updateItemName(ctx context.Context, db dbtx, id ledger.ItemID, name string) error {
	res, err := db.ExecContext(ctx, `UPDATE items SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.DuplicateNameError{Name: name}
		}
		return ledger.WrapStorage("update item name", err)
	}
	return requireAffected(res, &ledger.NotFoundError{Kind: "item", ID: int64(id)})
}

// AdjustStock adds delta to an item's stock. The read and write run against
// the same dbtx, so inside WithTx the adjustment is snapshot-consistent.
func (s *Store) AdjustStock(ctx context.Context, id ledger.ItemID, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return adjustStock(ctx, s.db, id, delta)
}

func adjustStock(ctx context.Context, db dbtx, id ledger.ItemID, delta decimal.Decimal) error {
	item, err := getItem(ctx, db, id)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `UPDATE items SET stock = ? WHERE id = ?`,
		item.Stock.Add(delta).String(), id)
	if err != nil {
		return ledger.WrapStorage("adjust stock", err)
	}
	return nil
}

// ListItems returns all items in insertion order.
func (s *Store) ListItems(ctx context.Context) ([]ledger.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryItems(ctx, s.db,
		`SELECT id, name, stock, opening_stock FROM items ORDER BY id`)
}

// ItemsByPrefix returns items whose name starts with prefix,
// case-insensitively.
func (s *Store) ItemsByPrefix(ctx context.Context, prefix string) ([]ledger.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return itemsByPrefix(ctx, s.db, prefix)
}

func itemsByPrefix(ctx context.Context, db dbtx, prefix string) ([]ledger.Item, error) {
	// LIKE is case-insensitive for ASCII in SQLite; escape its wildcards so
	// the prefix is matched literally.
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return queryItems(ctx, db,
		`SELECT id, name, stock, opening_stock FROM items
		 WHERE name LIKE ? ESCAPE '\' ORDER BY id`,
		escaped+"%")
}

func queryItems(ctx context.Context, db dbtx, query string, args ...any) ([]ledger.Item, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledger.WrapStorage("query items", err)
	}
	defer rows.Close()

	items := []ledger.Item{}
	for rows.Next() {
		var item ledger.Item
		var stock, opening string
		if err := rows.Scan(&item.ID, &item.Name, &stock, &opening); err != nil {
			return nil, ledger.WrapStorage("scan item", err)
		}
		item.Stock = mustDecimal(stock)
		item.Opening = mustDecimal(opening)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.WrapStorage("query items", err)
	}
	return items, nil
}

// TotalStock sums stock across all items in Go to keep decimal precision.
func (s *Store) TotalStock(ctx context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return totalStock(ctx, s.db)
}

func totalStock(ctx context.Context, db dbtx) (decimal.Decimal, error) {
	rows, err := db.QueryContext(ctx, `SELECT stock FROM items`)
	if err != nil {
		return decimal.Zero, ledger.WrapStorage("total stock", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var stock string
		if err := rows.Scan(&stock); err != nil {
			return decimal.Zero, ledger.WrapStorage("total stock", err)
		}
		total = total.Add(mustDecimal(stock))
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, ledger.WrapStorage("total stock", err)
	}
	return total, nil
}

// =============================================================================
// PURCHASES
// =============================================================================

// InsertPurchase persists a purchase row.
func (s *Store) InsertPurchase(ctx context.Context, p ledger.Purchase) (ledger.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPurchase(ctx, s.db, p)
}

func insertPurchase(ctx context.Context, db dbtx, p ledger.Purchase) (ledger.Purchase, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO purchases (item_id, quantity, unit_cost, occurred_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ItemID, p.Quantity.String(), p.UnitCost.String(),
		p.OccurredAt.Format(ledger.TimestampLayout), now(),
	)
	if err != nil {
		return ledger.Purchase{}, ledger.WrapStorage("insert purchase", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Purchase{}, ledger.WrapStorage("insert purchase", err)
	}
	p.ID = ledger.PurchaseID(id)
	return p, nil
}

// GetPurchase returns a purchase by ID.
func (s *Store) GetPurchase(ctx context.Context, id ledger.PurchaseID) (ledger.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPurchase(ctx, s.db, id)
}

func getPurchase(ctx context.Context, db dbtx, id ledger.PurchaseID) (ledger.Purchase, error) {
	var p ledger.Purchase
	var quantity, unitCost, occurredAt string
	err := db.QueryRowContext(ctx,
		`SELECT id, item_id, quantity, unit_cost, occurred_at FROM purchases WHERE id = ?`, id,
	).Scan(&p.ID, &p.ItemID, &quantity, &unitCost, &occurredAt)
	if err == sql.ErrNoRows {
		return ledger.Purchase{}, &ledger.NotFoundError{Kind: "purchase", ID: int64(id)}
	}
	if err != nil {
		return ledger.Purchase{}, ledger.WrapStorage("get purchase", err)
	}
	p.Quantity = mustDecimal(quantity)
	p.UnitCost = mustDecimal(unitCost)
	p.OccurredAt = parseTimestamp(occurredAt)
	return p, nil
}

// UpdatePurchase overwrites quantity, unit cost, and timestamp.
func (s *Store) UpdatePurchase(ctx context.Context, p ledger.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePurchase(ctx, s.db, p)
}

func updatePurchase(ctx context.Context, db dbtx, p ledger.Purchase) error {
	res, err := db.ExecContext(ctx,
		`UPDATE purchases SET quantity = ?, unit_cost = ?, occurred_at = ? WHERE id = ?`,
		p.Quantity.String(), p.UnitCost.String(),
		p.OccurredAt.Format(ledger.TimestampLayout), p.ID,
	)
	if err != nil {
		return ledger.WrapStorage("update purchase", err)
	}
	return requireAffected(res, &ledger.NotFoundError{Kind: "purchase", ID: int64(p.ID)})
}

// PurchasesByItem returns an item's purchases, oldest first.
func (s *Store) PurchasesByItem(ctx context.Context, id ledger.ItemID, r *ledger.DateRange) ([]ledger.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return purchasesByItem(ctx, s.db, id, r)
}

func purchasesByItem(ctx context.Context, db dbtx, id ledger.ItemID, r *ledger.DateRange) ([]ledger.Purchase, error) {
	query := `SELECT id, item_id, quantity, unit_cost, occurred_at FROM purchases WHERE item_id = ?`
	args := []any{id}
	if r != nil {
		from, to := r.Bounds()
		query += ` AND occurred_at >= ? AND occurred_at <= ?`
		args = append(args, from, to)
	}
	query += ` ORDER BY occurred_at ASC, id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledger.WrapStorage("query purchases", err)
	}
	defer rows.Close()

	purchases := []ledger.Purchase{}
	for rows.Next() {
		var p ledger.Purchase
		var quantity, unitCost, occurredAt string
		if err := rows.Scan(&p.ID, &p.ItemID, &quantity, &unitCost, &occurredAt); err != nil {
			return nil, ledger.WrapStorage("scan purchase", err)
		}
		p.Quantity = mustDecimal(quantity)
		p.UnitCost = mustDecimal(unitCost)
		p.OccurredAt = parseTimestamp(occurredAt)
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.WrapStorage("query purchases", err)
	}
	return purchases, nil
}

// PurchasesInRange returns purchases joined with item names, newest first.
func (s *Store) PurchasesInRange(ctx context.Context, r ledger.DateRange) ([]ledger.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return purchasesInRange(ctx, s.db, r)
}

func purchasesInRange(ctx context.Context, db dbtx, r ledger.DateRange) ([]ledger.PurchaseRecord, error) {
	from, to := r.Bounds()
	rows, err := db.QueryContext(ctx,
		`SELECT p.id, p.item_id, p.quantity, p.unit_cost, p.occurred_at, i.name
		 FROM purchases p JOIN items i ON p.item_id = i.id
		 WHERE p.occurred_at >= ? AND p.occurred_at <= ?
		 ORDER BY p.occurred_at DESC, p.id DESC`,
		from, to)
	if err != nil {
		return nil, ledger.WrapStorage("query purchases in range", err)
	}
	defer rows.Close()

	records := []ledger.PurchaseRecord{}
	for rows.Next() {
		var rec ledger.PurchaseRecord
		var quantity, unitCost, occurredAt string
		if err := rows.Scan(&rec.ID, &rec.ItemID, &quantity, &unitCost, &occurredAt, &rec.ItemName); err != nil {
			return nil, ledger.WrapStorage("scan purchase record", err)
		}
		rec.Quantity = mustDecimal(quantity)
		rec.UnitCost = mustDecimal(unitCost)
		rec.OccurredAt = parseTimestamp(occurredAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.WrapStorage("query purchases in range", err)
	}
	return records, nil
}

// =============================================================================
// SALES
// =============================================================================

// InsertSale persists a sale row.
func (s *Store) InsertSale(ctx context.Context, sale ledger.Sale) (ledger.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertSale(ctx, s.db, sale)
}

func insertSale(ctx context.Context, db dbtx, sale ledger.Sale) (ledger.Sale, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO sales (item_id, quantity, unit_price, occurred_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sale.ItemID, sale.Quantity.String(), sale.UnitPrice.String(),
		sale.OccurredAt.Format(ledger.TimestampLayout), now(),
	)
	if err != nil {
		return ledger.Sale{}, ledger.WrapStorage("insert sale", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Sale{}, ledger.WrapStorage("insert sale", err)
	}
	sale.ID = ledger.SaleID(id)
	return sale, nil
}

// GetSale returns a sale by ID.
func (s *Store) GetSale(ctx context.Context, id ledger.SaleID) (ledger.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSale(ctx, s.db, id)
}

func getSale(ctx context.Context, db dbtx, id ledger.SaleID) (ledger.Sale, error) {
	var sale ledger.Sale
	var quantity, unitPrice, occurredAt string
	err := db.QueryRowContext(ctx,
		`SELECT id, item_id, quantity, unit_price, occurred_at FROM sales WHERE id = ?`, id,
	).Scan(&sale.ID, &sale.ItemID, &quantity, &unitPrice, &occurredAt)
	if err == sql.ErrNoRows {
		return ledger.Sale{}, &ledger.NotFoundError{Kind: "sale", ID: int64(id)}
	}
	if err != nil {
		return ledger.Sale{}, ledger.WrapStorage("get sale", err)
	}
	sale.Quantity = mustDecimal(quantity)
	sale.UnitPrice = mustDecimal(unitPrice)
	sale.OccurredAt = parseTimestamp(occurredAt)
	return sale, nil
}

// UpdateSale overwrites quantity, unit price, and timestamp.
func (s *Store) UpdateSale(ctx context.Context, sale ledger.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateSale(ctx, s.db, sale)
}

func updateSale(ctx context.Context, db dbtx, sale ledger.Sale) error {
	res, err := db.ExecContext(ctx,
		`UPDATE sales SET quantity = ?, unit_price = ?, occurred_at = ? WHERE id = ?`,
		sale.Quantity.String(), sale.UnitPrice.String(),
		sale.OccurredAt.Format(ledger.TimestampLayout), sale.ID,
	)
	if err != nil {
		return ledger.WrapStorage("update sale", err)
	}
	return requireAffected(res, &ledger.NotFoundError{Kind: "sale", ID: int64(sale.ID)})
}

// SalesByItem returns an item's sales, oldest first.
func (s *Store) SalesByItem(ctx context.Context, id ledger.ItemID, r *ledger.DateRange) ([]ledger.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return salesByItem(ctx, s.db, id, r)
}

func salesByItem(ctx context.Context, db dbtx, id ledger.ItemID, r *ledger.DateRange) ([]ledger.Sale, error) {
	query := `SELECT id, item_id, quantity, unit_price, occurred_at FROM sales WHERE item_id = ?`
	args := []any{id}
	if r != nil {
		from, to := r.Bounds()
		query += ` AND occurred_at >= ? AND occurred_at <= ?`
		args = append(args, from, to)
	}
	query += ` ORDER BY occurred_at ASC, id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledger.WrapStorage("query sales", err)
	}
	defer rows.Close()

	sales := []ledger.Sale{}
	for rows.Next() {
		var sale ledger.Sale
		var quantity, unitPrice, occurredAt string
		if err := rows.Scan(&sale.ID, &sale.ItemID, &quantity, &unitPrice, &occurredAt); err != nil {
			return nil, ledger.WrapStorage("scan sale", err)
		}
		sale.Quantity = mustDecimal(quantity)
		sale.UnitPrice = mustDecimal(unitPrice)
		sale.OccurredAt = parseTimestamp(occurredAt)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.WrapStorage("query sales", err)
	}
	return sales, nil
}

// SalesInRange returns sales joined with item names, newest first.
func (s *Store) SalesInRange(ctx context.Context, r ledger.DateRange) ([]ledger.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return salesInRange(ctx, s.db, r)
}

func salesInRange(ctx context.Context, db dbtx, r ledger.DateRange) ([]ledger.SaleRecord, error) {
	from, to := r.Bounds()
	rows, err := db.QueryContext(ctx,
		`SELECT s.id, s.item_id, s.quantity, s.unit_price, s.occurred_at, i.name
		 FROM sales s JOIN items i ON s.item_id = i.id
		 WHERE s.occurred_at >= ? AND s.occurred_at <= ?
		 ORDER BY s.occurred_at DESC, s.id DESC`,
		from, to)
	if err != nil {
		return nil, ledger.WrapStorage("query sales in range", err)
	}
	defer rows.Close()

	records := []ledger.SaleRecord{}
	for rows.Next() {
		var rec ledger.SaleRecord
		var quantity, unitPrice, occurredAt string
		if err := rows.Scan(&rec.ID, &rec.ItemID, &quantity, &unitPrice, &occurredAt, &rec.ItemName); err != nil {
			return nil, ledger.WrapStorage("scan sale record", err)
		}
		rec.Quantity = mustDecimal(quantity)
		rec.UnitPrice = mustDecimal(unitPrice)
		rec.OccurredAt = parseTimestamp(occurredAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.WrapStorage("query sales in range", err)
	}
	return records, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The write lock is held
// for the whole transaction, so concurrent read-check-write sequences are
// serialized and cannot jointly oversell an item.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.WrapStorage("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return ledger.WrapStorage("commit transaction", err)
	}
	return nil
}

// txStore is a Store view bound to one *sql.Tx. It calls the unexported
// helpers directly: the parent's lock is already held by WithTx.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) InsertItem(ctx context.Context, name string, stock decimal.Decimal) (ledger.Item, error) {
	return insertItem(ctx, t.tx, name, stock)
}

func (t *txStore) GetItem(ctx context.Context, id ledger.ItemID) (ledger.Item, error) {
	return getItem(ctx, t.tx, id)
}

func (t *txStore) GetItemByName(ctx context.Context, name string) (ledger.Item, error) {
	return getItemByName(ctx, t.tx, name)
}

func (t *txStore) UpdateItemName(ctx context.Context, id ledger.ItemID, name string) error {
	return updateItemName(ctx, t.tx, id, name)
}

func (t *txStore) AdjustStock(ctx context.Context, id ledger.ItemID, delta decimal.Decimal) error {
	return adjustStock(ctx, t.tx, id, delta)
}

func (t *txStore) ListItems(ctx context.Context) ([]ledger.Item, error) {
	return queryItems(ctx, t.tx,
		`SELECT id, name, stock, opening_stock FROM items ORDER BY id`)
}

func (t *txStore) ItemsByPrefix(ctx context.Context, prefix string) ([]ledger.Item, error) {
	return itemsByPrefix(ctx, t.tx, prefix)
}

func (t *txStore) TotalStock(ctx context.Context) (decimal.Decimal, error) {
	return totalStock(ctx, t.tx)
}

func (t *txStore) InsertPurchase(ctx context.Context, p ledger.Purchase) (ledger.Purchase, error) {
	return insertPurchase(ctx, t.tx, p)
}

func (t *txStore) GetPurchase(ctx context.Context, id ledger.PurchaseID) (ledger.Purchase, error) {
	return getPurchase(ctx, t.tx, id)
}

func (t *txStore) UpdatePurchase(ctx context.Context, p ledger.Purchase) error {
	return updatePurchase(ctx, t.tx, p)
}

func (t *txStore) PurchasesByItem(ctx context.Context, id ledger.ItemID, r *ledger.DateRange) ([]ledger.Purchase, error) {
	return purchasesByItem(ctx, t.tx, id, r)
}

func (t *txStore) PurchasesInRange(ctx context.Context, r ledger.DateRange) ([]ledger.PurchaseRecord, error) {
	return purchasesInRange(ctx, t.tx, r)
}

func (t *txStore) InsertSale(ctx context.Context, sale ledger.Sale) (ledger.Sale, error) {
	return insertSale(ctx, t.tx, sale)
}

func (t *txStore) GetSale(ctx context.Context, id ledger.SaleID) (ledger.Sale, error) {
	return getSale(ctx, t.tx, id)
}

func (t *txStore) UpdateSale(ctx context.Context, sale ledger.Sale) error {
	return updateSale(ctx, t.tx, sale)
}

func (t *txStore) SalesByItem(ctx context.Context, id ledger.ItemID, r *ledger.DateRange) ([]ledger.Sale, error) {
	return salesByItem(ctx, t.tx, id, r)
}

func (t *txStore) SalesInRange(ctx context.Context, r ledger.DateRange) ([]ledger.SaleRecord, error) {
	return salesInRange(ctx, t.tx, r)
}

// =============================================================================
// HELPERS
// =============================================================================

func now() string {
	return time.Now().Format(ledger.TimestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, _ := time.ParseInLocation(ledger.TimestampLayout, s, time.Local)
	return t
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func requireAffected(res sql.Result, notFound *ledger.NotFoundError) error {
	n, err := res.RowsAffected()
	if err != nil {
		return ledger.WrapStorage("rows affected", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
