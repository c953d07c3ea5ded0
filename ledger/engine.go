/*
engine.go - Mutating operations on the ledger

PURPOSE:
  The Engine is the only component that writes to the store. Every operation
  is an atomic unit: the transaction row and the owning item's cached stock
  change together or not at all.

CRITICAL INVARIANTS:
  1. Item.Stock always equals sum(purchase qty) - sum(sale qty)
  2. A sale never drives stock negative; the check and the decrement happen
     against the same transactional snapshot
  3. Failed operations leave the store untouched

EDIT SEMANTICS:
  Editing a purchase or sale overwrites the row AND adjusts the owning item's
  stock by the quantity delta, inside one transaction. An edit that would
  leave stock negative (shrinking a purchase below what has already been
  sold, or growing a sale beyond what is on hand) fails with
  InsufficientStockError.

SEE ALSO:
  - aggregate.go: Derived reads
  - store.go: Persistence contract the Engine relies on
*/
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Engine performs all ledger mutations.
type Engine struct {
	store TxStore
	log   zerolog.Logger
}

// NewEngine creates an Engine backed by the given store.
func NewEngine(store TxStore, log zerolog.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// =============================================================================
// ITEMS
// =============================================================================

// CreateItem adds a new item with the given name and initial stock.
// The name must be unique (case-sensitive exact match).
func (e *Engine) CreateItem(ctx context.Context, name string, initialStock decimal.Decimal) (Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Item{}, &InvalidArgumentError{Field: "name", Reason: "must not be empty"}
	}
	if initialStock.IsNegative() {
		return Item{}, &InvalidArgumentError{Field: "initial_stock", Reason: "must not be negative"}
	}

	item, err := e.store.InsertItem(ctx, name, initialStock)
	if err != nil {
		return Item{}, err
	}

	e.log.Info().Int64("item_id", int64(item.ID)).Str("name", name).Msg("item created")
	return item, nil
}

// RenameItem changes an item's name. The new name must not be held by
// another item.
func (e *Engine) RenameItem(ctx context.Context, id ItemID, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return &InvalidArgumentError{Field: "name", Reason: "must not be empty"}
	}

	return e.store.WithTx(ctx, func(tx Store) error {
		item, err := tx.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item.Name == newName {
			return nil
		}
		if existing, err := tx.GetItemByName(ctx, newName); err == nil && existing.ID != id {
			return &DuplicateNameError{Name: newName}
		} else if err != nil && !IsNotFound(err) {
			return err
		}
		return tx.UpdateItemName(ctx, id, newName)
	})
}

// =============================================================================
// PURCHASES
// =============================================================================

// RecordPurchase inserts a purchase row and increments the item's stock by
// its quantity, atomically. A zero `at` means now.
func (e *Engine) RecordPurchase(ctx context.Context, itemID ItemID, quantity, unitCost decimal.Decimal, at time.Time) (Purchase, error) {
	if err := validateQuantity(quantity); err != nil {
		return Purchase{}, err
	}
	if unitCost.IsNegative() {
		return Purchase{}, &InvalidArgumentError{Field: "unit_cost", Reason: "must not be negative"}
	}
	if at.IsZero() {
		at = time.Now()
	}

	var purchase Purchase
	err := e.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetItem(ctx, itemID); err != nil {
			return err
		}
		p, err := tx.InsertPurchase(ctx, Purchase{
			ItemID:     itemID,
			Quantity:   quantity,
			UnitCost:   unitCost,
			OccurredAt: at,
		})
		if err != nil {
			return err
		}
		purchase = p
		return tx.AdjustStock(ctx, itemID, quantity)
	})
	if err != nil {
		return Purchase{}, err
	}

	e.log.Info().
		Int64("item_id", int64(itemID)).
		Str("quantity", quantity.String()).
		Str("unit_cost", unitCost.String()).
		Msg("purchase recorded")
	return purchase, nil
}

// EditPurchase overwrites a purchase's quantity, unit cost, and timestamp,
// and adjusts the item's stock by the quantity delta in the same transaction.
func (e *Engine) EditPurchase(ctx context.Context, id PurchaseID, quantity, unitCost decimal.Decimal, at time.Time) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	if unitCost.IsNegative() {
		return &InvalidArgumentError{Field: "unit_cost", Reason: "must not be negative"}
	}

	return e.store.WithTx(ctx, func(tx Store) error {
		prev, err := tx.GetPurchase(ctx, id)
		if err != nil {
			return err
		}
		if at.IsZero() {
			at = prev.OccurredAt
		}

		// Shrinking a purchase below what has already been sold would make
		// stock negative.
		delta := quantity.Sub(prev.Quantity)
		if delta.IsNegative() {
			item, err := tx.GetItem(ctx, prev.ItemID)
			if err != nil {
				return err
			}
			if item.Stock.Add(delta).IsNegative() {
				return &InsufficientStockError{
					ItemID:    prev.ItemID,
					Available: item.Stock,
					Requested: delta.Neg(),
				}
			}
		}

		if err := tx.UpdatePurchase(ctx, Purchase{
			ID:         id,
			ItemID:     prev.ItemID,
			Quantity:   quantity,
			UnitCost:   unitCost,
			OccurredAt: at,
		}); err != nil {
			return err
		}
		if delta.IsZero() {
			return nil
		}
		return tx.AdjustStock(ctx, prev.ItemID, delta)
	})
}

// =============================================================================
// SALES
// =============================================================================

// RecordSale inserts a sale row and decrements the item's stock by its
// quantity, atomically. Fails with InsufficientStockError when the quantity
// exceeds the stock visible in the same transaction. A zero `at` means now.
func (e *Engine) RecordSale(ctx context.Context, itemID ItemID, quantity, unitPrice decimal.Decimal, at time.Time) (Sale, error) {
	if err := validateQuantity(quantity); err != nil {
		return Sale{}, err
	}
	if unitPrice.IsNegative() {
		return Sale{}, &InvalidArgumentError{Field: "unit_price", Reason: "must not be negative"}
	}
	if at.IsZero() {
		at = time.Now()
	}

	var sale Sale
	err := e.store.WithTx(ctx, func(tx Store) error {
		item, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if quantity.GreaterThan(item.Stock) {
			return &InsufficientStockError{
				ItemID:    itemID,
				Available: item.Stock,
				Requested: quantity,
			}
		}
		s, err := tx.InsertSale(ctx, Sale{
			ItemID:     itemID,
			Quantity:   quantity,
			UnitPrice:  unitPrice,
			OccurredAt: at,
		})
		if err != nil {
			return err
		}
		sale = s
		return tx.AdjustStock(ctx, itemID, quantity.Neg())
	})
	if err != nil {
		return Sale{}, err
	}

	e.log.Info().
		Int64("item_id", int64(itemID)).
		Str("quantity", quantity.String()).
		Str("unit_price", unitPrice.String()).
		Msg("sale recorded")
	return sale, nil
}

// EditSale overwrites a sale's quantity, unit price, and timestamp, and
// adjusts the item's stock by the quantity delta in the same transaction.
func (e *Engine) EditSale(ctx context.Context, id SaleID, quantity, unitPrice decimal.Decimal, at time.Time) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	if unitPrice.IsNegative() {
		return &InvalidArgumentError{Field: "unit_price", Reason: "must not be negative"}
	}

	return e.store.WithTx(ctx, func(tx Store) error {
		prev, err := tx.GetSale(ctx, id)
		if err != nil {
			return err
		}
		if at.IsZero() {
			at = prev.OccurredAt
		}

		// Selling more than before consumes the difference from stock.
		extra := quantity.Sub(prev.Quantity)
		if extra.IsPositive() {
			item, err := tx.GetItem(ctx, prev.ItemID)
			if err != nil {
				return err
			}
			if extra.GreaterThan(item.Stock) {
				return &InsufficientStockError{
					ItemID:    prev.ItemID,
					Available: item.Stock,
					Requested: extra,
				}
			}
		}

		if err := tx.UpdateSale(ctx, Sale{
			ID:         id,
			ItemID:     prev.ItemID,
			Quantity:   quantity,
			UnitPrice:  unitPrice,
			OccurredAt: at,
		}); err != nil {
			return err
		}
		if extra.IsZero() {
			return nil
		}
		return tx.AdjustStock(ctx, prev.ItemID, extra.Neg())
	})
}

func validateQuantity(q decimal.Decimal) error {
	if !q.IsPositive() {
		return &InvalidArgumentError{Field: "quantity", Reason: "must be positive"}
	}
	return nil
}
