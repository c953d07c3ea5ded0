// query.go - Lookup facade consumed by presentation and export layers.
//
// All operations here are pure reads with no side effects. List shapes
// return an empty slice (never nil) when nothing matches; FindItemByName is
// the one lookup that signals not-found explicitly.
package ledger

import "context"

// Queries provides parameterized lookups for presentation layers.
type Queries struct {
	store Store
}

// NewQueries creates a Queries facade reading from the given store.
func NewQueries(store Store) *Queries {
	return &Queries{store: store}
}

// GetItem returns an item by ID, or NotFoundError.
func (q *Queries) GetItem(ctx context.Context, id ItemID) (Item, error) {
	return q.store.GetItem(ctx, id)
}

// FindItemByName returns the item with the exact (case-sensitive) name,
// or NotFoundError.
func (q *Queries) FindItemByName(ctx context.Context, name string) (Item, error) {
	return q.store.GetItemByName(ctx, name)
}

// FindItemsByPrefix returns items whose name starts with the given text,
// case-insensitively. Empty slice when nothing matches.
func (q *Queries) FindItemsByPrefix(ctx context.Context, prefix string) ([]Item, error) {
	items, err := q.store.ItemsByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// ListItems returns all items in insertion order.
func (q *Queries) ListItems(ctx context.Context) ([]Item, error) {
	items, err := q.store.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// SalesInRange returns sales joined with item names, newest first.
func (q *Queries) SalesInRange(ctx context.Context, r DateRange) ([]SaleRecord, error) {
	if !r.Valid() {
		return nil, &InvalidArgumentError{Field: "range", Reason: "start after end"}
	}
	records, err := q.store.SalesInRange(ctx, r)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []SaleRecord{}
	}
	return records, nil
}

// PurchasesInRange returns purchases joined with item names, newest first.
func (q *Queries) PurchasesInRange(ctx context.Context, r DateRange) ([]PurchaseRecord, error) {
	if !r.Valid() {
		return nil, &InvalidArgumentError{Field: "range", Reason: "start after end"}
	}
	records, err := q.store.PurchasesInRange(ctx, r)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []PurchaseRecord{}
	}
	return records, nil
}
