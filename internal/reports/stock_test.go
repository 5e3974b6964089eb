package reports

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(month time.Month, day int) time.Time {
	return time.Date(2025, month, day, 0, 0, 0, 0, time.UTC)
}

func ledgerRow(itemID, seq int64, on time.Time, received, issued, balance, avg string) inventory.LedgerRow {
	return inventory.LedgerRow{
		ItemID:         itemID,
		Seq:            seq,
		DocDate:        on,
		ReceivedQty:    d(received),
		IssuedQty:      d(issued),
		AdjustQty:      decimal.Zero,
		BalanceQty:     d(balance),
		BalanceAvgCost: d(avg),
	}
}

func stockFixture() ([]inventory.Item, []inventory.LedgerRow) {
	items := []inventory.Item{
		{ID: 1, Name: "Soap", SKU: "SOAP", CategoryID: 10},
		{ID: 2, Name: "Towel", SKU: "TWL", CategoryID: 20},
		{ID: 3, Name: "Candle", SKU: "CDL", CategoryID: 10},
	}
	rows := []inventory.LedgerRow{
		ledgerRow(1, 1, date(1, 5), "10", "0", "10", "2"),
		ledgerRow(1, 2, date(2, 3), "0", "4", "6", "2"),
		ledgerRow(1, 3, date(3, 1), "4", "0", "10", "2.5"),
		ledgerRow(2, 1, date(1, 10), "5", "0", "5", "4"),
		ledgerRow(2, 2, date(2, 10), "0", "1", "5", "4"),
	}
	return items, rows
}

func TestBuildStockBalancesPeriod(t *testing.T) {
	items, rows := stockFixture()
	from, to := date(2, 1), date(2, 28)

	report := BuildStockBalances(items, rows, StockFilter{From: &from, To: &to})
	require.Len(t, report.Rows, 2)

	soap := report.Rows[0]
	require.Equal(t, int64(1), soap.ItemID)
	require.True(t, soap.Opening.Equal(d("10")))
	require.True(t, soap.Issued.Equal(d("4")))
	require.True(t, soap.Received.IsZero())
	require.True(t, soap.Computed.Equal(d("6")))
	require.True(t, soap.Balance.Equal(d("6")))
	require.True(t, soap.Value.Equal(d("12")))
	require.False(t, soap.Divergent)

	towel := report.Rows[1]
	require.True(t, towel.Divergent)
	require.Equal(t, int64(2), towel.DivergentSeq)
	require.Equal(t, 1, report.Totals.Divergent)
	require.True(t, report.Totals.Balance.Equal(d("11")))
}

func TestBuildStockBalancesWholeHistory(t *testing.T) {
	items, rows := stockFixture()

	report := BuildStockBalances(items, rows, StockFilter{CategoryID: 10})
	require.Len(t, report.Rows, 1)
	soap := report.Rows[0]
	require.True(t, soap.Opening.IsZero())
	require.True(t, soap.Received.Equal(d("14")))
	require.True(t, soap.Balance.Equal(d("10")))
	require.True(t, soap.AvgCost.Equal(d("2.5")))
	require.True(t, soap.Value.Equal(d("25")))
}

func TestBuildStockBalancesIncludeZero(t *testing.T) {
	items, rows := stockFixture()

	report := BuildStockBalances(items, rows, StockFilter{IncludeZero: true})
	require.Len(t, report.Rows, 3)
	require.Equal(t, "Candle", report.Rows[2].ItemName)
	require.True(t, report.Rows[2].Balance.IsZero())
	require.False(t, report.Rows[2].Divergent)
}

func TestBuildStockBalancesCostBounds(t *testing.T) {
	items, rows := stockFixture()
	minCost, maxCost := d("3"), d("4")

	report := BuildStockBalances(items, rows, StockFilter{MinCost: &minCost, MaxCost: &maxCost})
	require.Len(t, report.Rows, 1)
	require.Equal(t, "Towel", report.Rows[0].ItemName)

	maxCost = d("2.5")
	report = BuildStockBalances(items, rows, StockFilter{MaxCost: &maxCost})
	require.Len(t, report.Rows, 1)
	require.Equal(t, "Soap", report.Rows[0].ItemName)
}
