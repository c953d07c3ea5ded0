/*
aggregate.go - Derived read queries over the ledger

PURPOSE:
  Computes stock levels, weighted-average prices, revenue, and profit/loss
  from the purchase/sale log. All aggregations are pure reads.

SOFT-FAIL POLICY:
  "No data" conditions never raise. An item with no purchases has an average
  cost of zero; a range with no sales has zero profit. This keeps reporting
  code free of error plumbing for sparse data. Storage failures are the
  exception: they propagate wrapped with ErrStorage.

COST BASIS:
  Profit/loss values quantity sold at the weighted-average unit cost over
  ALL purchases of the item (not just those inside the queried range). The
  range filters sales only. AverageCostPrice accepts an optional range for
  callers that want the windowed variant.

SEE ALSO:
  - engine.go: The mutations these reads are derived from
  - query.go: Row-level lookups for presentation layers
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Aggregator computes derived values from the transaction log.
type Aggregator struct {
	store Store
}

// NewAggregator creates an Aggregator reading from the given store.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// =============================================================================
// STOCK
// =============================================================================

// CurrentStock returns an item's cached stock level.
func (a *Aggregator) CurrentStock(ctx context.Context, id ItemID) (decimal.Decimal, error) {
	item, err := a.store.GetItem(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return item.Stock, nil
}

// TotalStock returns the sum of stock across all items, zero when the
// store is empty.
func (a *Aggregator) TotalStock(ctx context.Context) (decimal.Decimal, error) {
	return a.store.TotalStock(ctx)
}

// =============================================================================
// WEIGHTED AVERAGES
// =============================================================================

// AverageCostPrice returns the quantity-weighted mean unit cost over the
// item's purchases. A nil range means all time. Returns zero, not an error,
// when the item has no qualifying purchases.
func (a *Aggregator) AverageCostPrice(ctx context.Context, id ItemID, r *DateRange) (decimal.Decimal, error) {
	if _, err := a.store.GetItem(ctx, id); err != nil {
		return decimal.Zero, err
	}
	purchases, err := a.store.PurchasesByItem(ctx, id, r)
	if err != nil {
		return decimal.Zero, err
	}
	return weightedAverage(purchaseWeights(purchases)), nil
}

// AverageSellingPrice returns the quantity-weighted mean unit price over the
// item's sales. A nil range means all time. Zero when there are none.
func (a *Aggregator) AverageSellingPrice(ctx context.Context, id ItemID, r *DateRange) (decimal.Decimal, error) {
	if _, err := a.store.GetItem(ctx, id); err != nil {
		return decimal.Zero, err
	}
	sales, err := a.store.SalesByItem(ctx, id, r)
	if err != nil {
		return decimal.Zero, err
	}
	return weightedAverage(saleWeights(sales)), nil
}

// =============================================================================
// REVENUE AND PROFIT/LOSS
// =============================================================================

// Revenue returns the total sales value for an item over a range.
func (a *Aggregator) Revenue(ctx context.Context, id ItemID, r DateRange) (decimal.Decimal, error) {
	if _, err := a.store.GetItem(ctx, id); err != nil {
		return decimal.Zero, err
	}
	sales, err := a.store.SalesByItem(ctx, id, &r)
	if err != nil {
		return decimal.Zero, err
	}
	revenue := decimal.Zero
	for _, s := range sales {
		revenue = revenue.Add(s.Value())
	}
	return revenue, nil
}

// ProfitLoss returns revenue minus cost-basis-valued quantity sold for an
// item over a range. Cost basis is the all-time weighted-average unit cost.
// Returns zero when there are no qualifying sales.
func (a *Aggregator) ProfitLoss(ctx context.Context, id ItemID, r DateRange) (decimal.Decimal, error) {
	if _, err := a.store.GetItem(ctx, id); err != nil {
		return decimal.Zero, err
	}
	sales, err := a.store.SalesByItem(ctx, id, &r)
	if err != nil {
		return decimal.Zero, err
	}
	if len(sales) == 0 {
		return decimal.Zero, nil
	}
	purchases, err := a.store.PurchasesByItem(ctx, id, nil)
	if err != nil {
		return decimal.Zero, err
	}
	return profitOf(sales, purchases), nil
}

// TotalProfitLoss returns one row per item that has at least one sale in the
// range AND at least one recorded purchase ever. Items with sales but no
// purchase history carry no cost basis and are excluded, mirroring the
// aggregate's inner join. Rows come back in item insertion order; summing
// them gives the portfolio total.
func (a *Aggregator) TotalProfitLoss(ctx context.Context, r DateRange) ([]ProfitRow, error) {
	items, err := a.store.ListItems(ctx)
	if err != nil {
		return nil, err
	}

	rows := []ProfitRow{}
	for _, item := range items {
		sales, err := a.store.SalesByItem(ctx, item.ID, &r)
		if err != nil {
			return nil, err
		}
		if len(sales) == 0 {
			continue
		}
		purchases, err := a.store.PurchasesByItem(ctx, item.ID, nil)
		if err != nil {
			return nil, err
		}
		if len(purchases) == 0 {
			continue
		}

		revenue := decimal.Zero
		for _, s := range sales {
			revenue = revenue.Add(s.Value())
		}
		rows = append(rows, ProfitRow{
			ItemID:   item.ID,
			ItemName: item.Name,
			Revenue:  revenue,
			Profit:   profitOf(sales, purchases),
		})
	}
	return rows, nil
}

// ProjectedProfit estimates profit for selling a projected quantity at the
// item's historical average selling price against its average cost.
func (a *Aggregator) ProjectedProfit(ctx context.Context, id ItemID, projectedQty decimal.Decimal) (decimal.Decimal, error) {
	if projectedQty.IsNegative() {
		return decimal.Zero, &InvalidArgumentError{Field: "projected_quantity", Reason: "must not be negative"}
	}
	avgSell, err := a.AverageSellingPrice(ctx, id, nil)
	if err != nil {
		return decimal.Zero, err
	}
	avgCost, err := a.AverageCostPrice(ctx, id, nil)
	if err != nil {
		return decimal.Zero, err
	}
	return avgSell.Sub(avgCost).Mul(projectedQty), nil
}

// =============================================================================
// SUMMARIES - Per-item totals for reporting
// =============================================================================

// SalesSummary returns per-item quantity sold, sales value, and profit/loss
// over a range. Items with no sales in the range appear with zero totals.
func (a *Aggregator) SalesSummary(ctx context.Context, r DateRange) ([]ItemSalesSummary, error) {
	items, err := a.store.ListItems(ctx)
	if err != nil {
		return nil, err
	}

	summaries := []ItemSalesSummary{}
	for _, item := range items {
		sales, err := a.store.SalesByItem(ctx, item.ID, &r)
		if err != nil {
			return nil, err
		}
		qty, value := decimal.Zero, decimal.Zero
		for _, s := range sales {
			qty = qty.Add(s.Quantity)
			value = value.Add(s.Value())
		}

		profit := decimal.Zero
		if len(sales) > 0 {
			purchases, err := a.store.PurchasesByItem(ctx, item.ID, nil)
			if err != nil {
				return nil, err
			}
			profit = profitOf(sales, purchases)
		}

		summaries = append(summaries, ItemSalesSummary{
			ItemID:     item.ID,
			ItemName:   item.Name,
			QtySold:    qty,
			SalesValue: value,
			ProfitLoss: profit,
		})
	}
	return summaries, nil
}

// PurchaseSummary returns per-item quantity purchased and cost value over
// a range.
func (a *Aggregator) PurchaseSummary(ctx context.Context, r DateRange) ([]ItemPurchaseSummary, error) {
	items, err := a.store.ListItems(ctx)
	if err != nil {
		return nil, err
	}

	summaries := []ItemPurchaseSummary{}
	for _, item := range items {
		purchases, err := a.store.PurchasesByItem(ctx, item.ID, &r)
		if err != nil {
			return nil, err
		}
		qty, value := decimal.Zero, decimal.Zero
		for _, p := range purchases {
			qty = qty.Add(p.Quantity)
			value = value.Add(p.Value())
		}
		summaries = append(summaries, ItemPurchaseSummary{
			ItemID:       item.ID,
			ItemName:     item.Name,
			QtyPurchased: qty,
			CostValue:    value,
		})
	}
	return summaries, nil
}

// =============================================================================
// INTERNAL
// =============================================================================

type weighted struct {
	qty   decimal.Decimal
	price decimal.Decimal
}

func purchaseWeights(purchases []Purchase) []weighted {
	ws := make([]weighted, 0, len(purchases))
	for _, p := range purchases {
		ws = append(ws, weighted{qty: p.Quantity, price: p.UnitCost})
	}
	return ws
}

func saleWeights(sales []Sale) []weighted {
	ws := make([]weighted, 0, len(sales))
	for _, s := range sales {
		ws = append(ws, weighted{qty: s.Quantity, price: s.UnitPrice})
	}
	return ws
}

// weightedAverage computes sum(qty*price)/sum(qty), zero when total
// quantity is zero.
func weightedAverage(ws []weighted) decimal.Decimal {
	totalQty, totalValue := decimal.Zero, decimal.Zero
	for _, w := range ws {
		totalQty = totalQty.Add(w.qty)
		totalValue = totalValue.Add(w.qty.Mul(w.price))
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalValue.Div(totalQty)
}

// profitOf values the sold quantity at the all-time weighted-average cost.
func profitOf(sales []Sale, purchases []Purchase) decimal.Decimal {
	avgCost := weightedAverage(purchaseWeights(purchases))
	qtySold, revenue := decimal.Zero, decimal.Zero
	for _, s := range sales {
		qtySold = qtySold.Add(s.Quantity)
		revenue = revenue.Add(s.Value())
	}
	return revenue.Sub(qtySold.Mul(avgCost))
}
