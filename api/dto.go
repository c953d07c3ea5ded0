// dto.go - Data transfer objects for API requests and responses.
//
// DTOs are pure data carriers; validation happens in the handlers and the
// ledger core. Quantities and prices ride as JSON numbers and decode into
// decimal.Decimal without passing through float64.
package api

import (
	"github.com/shopspring/decimal"

	"github.com/loomworks/fabric-ledger/ledger"
)

// CreateItemRequest is the request to create an item.
type CreateItemRequest struct {
	Name         string          `json:"name"`
	InitialStock decimal.Decimal `json:"initial_stock"`
}

// RenameItemRequest is the request to rename an item.
type RenameItemRequest struct {
	Name string `json:"name"`
}

// RecordPurchaseRequest is the request to record a purchase.
// OccurredAt is "YYYY-MM-DD" or "YYYY-MM-DD HH:MM:SS"; empty means now.
type RecordPurchaseRequest struct {
	ItemID     ledger.ItemID   `json:"item_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	OccurredAt string          `json:"occurred_at,omitempty"`
}

// EditPurchaseRequest overwrites a purchase's fields.
type EditPurchaseRequest struct {
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	OccurredAt string          `json:"occurred_at,omitempty"`
}

// RecordSaleRequest is the request to record a sale.
type RecordSaleRequest struct {
	ItemID     ledger.ItemID   `json:"item_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	OccurredAt string          `json:"occurred_at,omitempty"`
}

// EditSaleRequest overwrites a sale's fields.
type EditSaleRequest struct {
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	OccurredAt string          `json:"occurred_at,omitempty"`
}

// AmountResponse wraps a single derived decimal value.
type AmountResponse struct {
	Value decimal.Decimal `json:"value"`
}

// ProfitLossResponse carries a total plus its per-item breakdown.
type ProfitLossResponse struct {
	Total decimal.Decimal    `json:"total"`
	Rows  []ledger.ProfitRow `json:"rows"`
}

// AuditResponse reports stock drift found (and optionally repaired).
type AuditResponse struct {
	Clean    bool                `json:"clean"`
	Drifts   []ledger.StockDrift `json:"drifts"`
	Repaired bool                `json:"repaired"`
}

// ErrorResponse is the JSON shape of all error replies.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
