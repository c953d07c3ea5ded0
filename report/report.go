/*
report.go - report generation and export

PURPOSE:
  Renders stock, sales, purchase, and profit/loss reports from the
  aggregation layer into tabular form, and exports them as CSV or
  XLSX files under a configured output directory or directly to a
  writer for HTTP download.

REPORTS:
  Stock:       item name, current stock
  Sales:       item name, quantity sold, sales value, profit/loss
  Purchases:   item name, quantity purchased, cost value
  Profit/Loss: item name, revenue, profit

FILE NAMING:
  <report>_<start>_to_<end>.<ext> for ranged reports,
  <report>.<ext> otherwise. Dates render as YYYY-MM-DD.

SEE ALSO:
  - ledger/aggregate.go: the numbers behind every report
  - api/handlers.go: download endpoints
*/
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/loomworks/fabric-ledger/ledger"
)

// Format selects an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Table is a rendered report ready for export.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// Generator builds report tables from ledger reads and exports them.
type Generator struct {
	agg     *ledger.Aggregator
	queries *ledger.Queries
	dir     string
	log     zerolog.Logger
}

// NewGenerator creates a Generator writing files under dir.
func NewGenerator(agg *ledger.Aggregator, queries *ledger.Queries, dir string, log zerolog.Logger) *Generator {
	return &Generator{
		agg:     agg,
		queries: queries,
		dir:     dir,
		log:     log.With().Str("component", "report").Logger(),
	}
}

// =============================================================================
// TABLE BUILDERS
// =============================================================================

// StockTable reports current stock per item, in insertion order.
func (g *Generator) StockTable(ctx context.Context) (Table, error) {
	items, err := g.queries.ListItems(ctx)
	if err != nil {
		return Table{}, err
	}
	t := Table{
		Name:    "stock_report",
		Headers: []string{"Item Name", "Current Stock"},
	}
	for _, item := range items {
		t.Rows = append(t.Rows, []string{item.Name, item.Stock.String()})
	}
	return t, nil
}

// SalesTable reports per-item quantity sold, sales value, and profit/loss
// over the range.
func (g *Generator) SalesTable(ctx context.Context, r ledger.DateRange) (Table, error) {
	rows, err := g.agg.SalesSummary(ctx, r)
	if err != nil {
		return Table{}, err
	}
	t := Table{
		Name:    rangedName("sales_report", r),
		Headers: []string{"Item Name", "Quantity Sold", "Sales Value", "Profit/Loss"},
	}
	for _, s := range rows {
		t.Rows = append(t.Rows, []string{
			s.ItemName, s.QtySold.String(), s.SalesValue.String(), s.ProfitLoss.String(),
		})
	}
	return t, nil
}

// PurchaseTable reports per-item quantity purchased and cost value over
// the range.
func (g *Generator) PurchaseTable(ctx context.Context, r ledger.DateRange) (Table, error) {
	rows, err := g.agg.PurchaseSummary(ctx, r)
	if err != nil {
		return Table{}, err
	}
	t := Table{
		Name:    rangedName("purchase_report", r),
		Headers: []string{"Item Name", "Quantity Purchased", "Cost Value"},
	}
	for _, p := range rows {
		t.Rows = append(t.Rows, []string{p.ItemName, p.QtyPurchased.String(), p.CostValue.String()})
	}
	return t, nil
}

// ProfitLossTable reports per-item revenue and profit over the range.
// Items with no cost basis are absent, matching the aggregate.
func (g *Generator) ProfitLossTable(ctx context.Context, r ledger.DateRange) (Table, error) {
	rows, err := g.agg.TotalProfitLoss(ctx, r)
	if err != nil {
		return Table{}, err
	}
	t := Table{
		Name:    rangedName("profit_loss_report", r),
		Headers: []string{"Item Name", "Revenue", "Profit/Loss"},
	}
	for _, p := range rows {
		t.Rows = append(t.Rows, []string{p.ItemName, p.Revenue.String(), p.Profit.String()})
	}
	return t, nil
}

// =============================================================================
// EXPORT
// =============================================================================

// Export writes the table to a file under the output directory and
// returns its path.
func (g *Generator) Export(t Table, format Format) (string, error) {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(g.dir, fmt.Sprintf("%s.%s", t.Name, format))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	if err := g.Write(f, t, format); err != nil {
		return "", err
	}
	g.log.Info().Str("path", path).Int("rows", len(t.Rows)).Msg("report exported")
	return path, nil
}

// Write encodes the table to w in the given format.
func (g *Generator) Write(w io.Writer, t Table, format Format) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, t)
	case FormatXLSX:
		return writeXLSX(w, t)
	default:
		return &ledger.InvalidArgumentError{Field: "format", Reason: fmt.Sprintf("unsupported format %q", format)}
	}
}

// ParseFormat maps a query-string value to a Format, defaulting to CSV.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return "", &ledger.InvalidArgumentError{Field: "format", Reason: fmt.Sprintf("unsupported format %q", s)}
	}
}

// ContentType returns the MIME type for HTTP downloads.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

func writeCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	for col, h := range t.Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for row, values := range t.Rows {
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func rangedName(base string, r ledger.DateRange) string {
	return fmt.Sprintf("%s_%s_to_%s", base,
		r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
}
