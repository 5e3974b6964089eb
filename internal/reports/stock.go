package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
)

// StockFilter narrows the stock balance report.
type StockFilter struct {
	From        *time.Time
	To          *time.Time
	MinCost     *decimal.Decimal
	MaxCost     *decimal.Decimal
	CategoryID  int64
	IncludeZero bool
}

// StockBalanceRow reconstructs one item's quantity over the period. Computed
// is opening + received - issued + adjusted; Balance is the stored running
// balance of the item's latest row in range.
type StockBalanceRow struct {
	ItemID     int64           `json:"item_id"`
	ItemName   string          `json:"item_name"`
	SKU        string          `json:"sku"`
	UOM        inventory.UOM   `json:"uom"`
	CategoryID int64           `json:"category_id"`
	Opening    decimal.Decimal `json:"opening"`
	Received   decimal.Decimal `json:"received"`
	Issued     decimal.Decimal `json:"issued"`
	Adjusted   decimal.Decimal `json:"adjusted"`
	Computed   decimal.Decimal `json:"computed"`
	Balance    decimal.Decimal `json:"balance"`
	AvgCost    decimal.Decimal `json:"avg_cost"`
	Value      decimal.Decimal `json:"value"`
	Divergent  bool            `json:"divergent"`
	// DivergentSeq is the first row whose stored balance disagrees with the
	// reconstruction.
	DivergentSeq int64 `json:"divergent_seq,omitempty"`
}

// StockTotals sums the report rows.
type StockTotals struct {
	Received  decimal.Decimal `json:"received"`
	Issued    decimal.Decimal `json:"issued"`
	Adjusted  decimal.Decimal `json:"adjusted"`
	Balance   decimal.Decimal `json:"balance"`
	Value     decimal.Decimal `json:"value"`
	Divergent int             `json:"divergent"`
}

// StockBalances is the stock balance report.
type StockBalances struct {
	From   *time.Time        `json:"from,omitempty"`
	To     *time.Time        `json:"to,omitempty"`
	Rows   []StockBalanceRow `json:"rows"`
	Totals StockTotals       `json:"totals"`
}

// BuildStockBalances aggregates ledger rows per item. rows must hold the
// full history of the items ordered by item and sequence; rows dated after
// To are ignored, rows dated before From fold into the opening quantity.
// Divergence is judged against the whole chain up to To so that a broken
// row before the period is still reported.
func BuildStockBalances(items []inventory.Item, rows []inventory.LedgerRow, filter StockFilter) StockBalances {
	byItem := make(map[int64][]inventory.LedgerRow, len(items))
	for _, r := range rows {
		byItem[r.ItemID] = append(byItem[r.ItemID], r)
	}
	report := StockBalances{
		From: filter.From,
		To:   filter.To,
		Rows: []StockBalanceRow{},
		Totals: StockTotals{
			Received: decimal.Zero,
			Issued:   decimal.Zero,
			Adjusted: decimal.Zero,
			Balance:  decimal.Zero,
			Value:    decimal.Zero,
		},
	}
	for _, item := range items {
		if filter.CategoryID != 0 && item.CategoryID != filter.CategoryID {
			continue
		}
		row := StockBalanceRow{
			ItemID:     item.ID,
			ItemName:   item.Name,
			SKU:        item.SKU,
			UOM:        item.UOM,
			CategoryID: item.CategoryID,
			Opening:    decimal.Zero,
			Received:   decimal.Zero,
			Issued:     decimal.Zero,
			Adjusted:   decimal.Zero,
			Balance:    decimal.Zero,
			AvgCost:    decimal.Zero,
		}
		running := decimal.Zero
		for _, r := range byItem[item.ID] {
			if filter.To != nil && r.DocDate.After(*filter.To) {
				continue
			}
			running = running.Add(r.ReceivedQty).Sub(r.IssuedQty).Add(r.AdjustQty)
			if !row.Divergent && !running.Equal(r.BalanceQty) {
				row.Divergent = true
				row.DivergentSeq = r.Seq
			}
			if filter.From != nil && r.DocDate.Before(*filter.From) {
				row.Opening = row.Opening.Add(r.ReceivedQty).Sub(r.IssuedQty).Add(r.AdjustQty)
			} else {
				row.Received = row.Received.Add(r.ReceivedQty)
				row.Issued = row.Issued.Add(r.IssuedQty)
				row.Adjusted = row.Adjusted.Add(r.AdjustQty)
			}
			row.Balance = r.BalanceQty
			row.AvgCost = r.BalanceAvgCost
		}
		row.Computed = row.Opening.Add(row.Received).Sub(row.Issued).Add(row.Adjusted)
		if !row.Computed.Equal(row.Balance) && !row.Divergent {
			row.Divergent = true
		}
		row.Value = row.Balance.Mul(row.AvgCost).Round(inventory.CostScale)

		if !filter.IncludeZero && row.Balance.IsZero() && row.Computed.IsZero() {
			continue
		}
		if filter.MinCost != nil && row.AvgCost.LessThan(*filter.MinCost) {
			continue
		}
		if filter.MaxCost != nil && row.AvgCost.GreaterThan(*filter.MaxCost) {
			continue
		}
		report.Rows = append(report.Rows, row)
		report.Totals.Received = report.Totals.Received.Add(row.Received)
		report.Totals.Issued = report.Totals.Issued.Add(row.Issued)
		report.Totals.Adjusted = report.Totals.Adjusted.Add(row.Adjusted)
		report.Totals.Balance = report.Totals.Balance.Add(row.Balance)
		report.Totals.Value = report.Totals.Value.Add(row.Value)
		if row.Divergent {
			report.Totals.Divergent++
		}
	}
	return report
}
