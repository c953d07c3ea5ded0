// reconcile.go - Stock integrity audit.
//
// Item.Stock is a materialized aggregate of the purchase/sale log. Under
// normal operation the Engine keeps it consistent, but the Reconciler can
// recompute it from the log to detect drift (external edits, restored
// backups) and repair it.
package ledger

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Reconciler audits cached stock against the transaction log.
type Reconciler struct {
	store TxStore
	log   zerolog.Logger
}

// NewReconciler creates a Reconciler over the given store.
func NewReconciler(store TxStore, log zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, log: log}
}

// Audit recomputes each item's stock from its opening baseline and its
// purchase/sale log, then returns the items whose cached value disagrees.
// Empty slice means a clean ledger.
func (r *Reconciler) Audit(ctx context.Context) ([]StockDrift, error) {
	var drifts []StockDrift
	err := r.store.WithTx(ctx, func(tx Store) error {
		items, err := tx.ListItems(ctx)
		if err != nil {
			return err
		}
		drifts = []StockDrift{}
		for _, item := range items {
			derived, err := derivedStock(ctx, tx, item)
			if err != nil {
				return err
			}
			if !derived.Equal(item.Stock) {
				drifts = append(drifts, StockDrift{
					ItemID:   item.ID,
					ItemName: item.Name,
					Cached:   item.Stock,
					Derived:  derived,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, d := range drifts {
		r.log.Warn().
			Int64("item_id", int64(d.ItemID)).
			Str("cached", d.Cached.String()).
			Str("derived", d.Derived.String()).
			Msg("stock drift detected")
	}
	return drifts, nil
}

// Repair overwrites each drifted item's cached stock with the value derived
// from the log, in one transaction. Returns the drifts that were repaired.
func (r *Reconciler) Repair(ctx context.Context) ([]StockDrift, error) {
	var repaired []StockDrift
	err := r.store.WithTx(ctx, func(tx Store) error {
		items, err := tx.ListItems(ctx)
		if err != nil {
			return err
		}
		repaired = []StockDrift{}
		for _, item := range items {
			derived, err := derivedStock(ctx, tx, item)
			if err != nil {
				return err
			}
			if derived.Equal(item.Stock) {
				continue
			}
			if err := tx.AdjustStock(ctx, item.ID, derived.Sub(item.Stock)); err != nil {
				return err
			}
			repaired = append(repaired, StockDrift{
				ItemID:   item.ID,
				ItemName: item.Name,
				Cached:   item.Stock,
				Derived:  derived,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(repaired) > 0 {
		r.log.Info().Int("items", len(repaired)).Msg("stock repaired from transaction log")
	}
	return repaired, nil
}

func derivedStock(ctx context.Context, tx Store, item Item) (decimal.Decimal, error) {
	purchases, err := tx.PurchasesByItem(ctx, item.ID, nil)
	if err != nil {
		return decimal.Zero, err
	}
	sales, err := tx.SalesByItem(ctx, item.ID, nil)
	if err != nil {
		return decimal.Zero, err
	}
	stock := item.Opening
	for _, p := range purchases {
		stock = stock.Add(p.Quantity)
	}
	for _, s := range sales {
		stock = stock.Sub(s.Quantity)
	}
	return stock, nil
}
