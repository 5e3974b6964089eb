package reports

import (
	"testing"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	_ "github.com/odyssey-erp/odyssey-ledger/internal/testing/guard"
)

func TestBuildTrialBalance(t *testing.T) {
	accounts := []AccountTotal{
		{AccountID: 2, Code: "4000", Name: "Room Revenue", Type: accounting.AccountTypeRevenue, Credit: 10000},
		{AccountID: 1, Code: "1000", Name: "Cash", Type: accounting.AccountTypeAsset, Debit: 10000},
		{AccountID: 3, Code: "2000", Name: "Accounts Payable", Type: accounting.AccountTypeLiability},
	}

	tb := BuildTrialBalance(accounts)
	if len(tb.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(tb.Rows))
	}
	if tb.Rows[0].AccountName != "Accounts Payable" || tb.Rows[1].AccountName != "Cash" {
		t.Fatalf("rows not sorted by name: %+v", tb.Rows)
	}
	if tb.Rows[1].Balance != 10000 || tb.Rows[2].Balance != -10000 {
		t.Fatalf("unexpected balances: %v %v", tb.Rows[1].Balance, tb.Rows[2].Balance)
	}
	if tb.TotalDebit != 10000 || tb.TotalCredit != 10000 {
		t.Fatalf("unexpected totals: %v/%v", tb.TotalDebit, tb.TotalCredit)
	}
	if !tb.Balanced() {
		t.Fatalf("expected balanced trial balance, net %v", tb.Net)
	}
}

func TestBuildTrialBalanceUnbalanced(t *testing.T) {
	tb := BuildTrialBalance([]AccountTotal{
		{Code: "1000", Name: "Cash", Type: accounting.AccountTypeAsset, Debit: 500},
		{Code: "4000", Name: "Sales", Type: accounting.AccountTypeRevenue, Credit: 499},
	})
	if tb.Balanced() || tb.Net != 1 {
		t.Fatalf("expected net 1, got %v", tb.Net)
	}
}

func TestBuildIncomeStatement(t *testing.T) {
	accounts := []AccountTotal{
		{Code: "4000", Name: "Room Revenue", Type: accounting.AccountTypeRevenue, Debit: 100, Credit: 1300},
		{Code: "EXP-HK", Name: "Housekeeping", Type: accounting.AccountTypeExpense, Debit: 300},
		{Code: "5000", Name: "Utilities", Type: accounting.AccountTypeExpense, Debit: 250, Credit: 50},
		{Code: "1000", Name: "Cash", Type: accounting.AccountTypeAsset, Debit: 900},
	}

	is := BuildIncomeStatement(accounts)
	if is.Revenue.Total != 1200 {
		t.Fatalf("expected revenue 1200, got %v", is.Revenue.Total)
	}
	if is.Expenses.Total != 500 {
		t.Fatalf("expected expenses 500, got %v", is.Expenses.Total)
	}
	if is.NetIncome != 700 {
		t.Fatalf("expected net income 700, got %v", is.NetIncome)
	}
	if is.Expenses.Lines[0].Code != "5000" {
		t.Fatalf("expense lines not sorted by code: %+v", is.Expenses.Lines)
	}
}

func TestBuildBalanceSheetCarriesEarnings(t *testing.T) {
	asOf := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	accounts := []AccountTotal{
		{Code: "1000", Name: "Cash", Type: accounting.AccountTypeAsset, Subtype: accounting.SubtypeCash, Debit: 10000},
		{Code: "4000", Name: "Room Revenue", Type: accounting.AccountTypeRevenue, Credit: 10000},
	}

	bs := BuildBalanceSheet(accounts, asOf)
	if bs.TotalAssets != 10000 {
		t.Fatalf("expected assets 10000, got %v", bs.TotalAssets)
	}
	if bs.Earnings != 10000 || bs.TotalEquity != 10000 {
		t.Fatalf("expected earnings in equity, got earnings %v equity %v", bs.Earnings, bs.TotalEquity)
	}
	last := bs.Equity.Lines[len(bs.Equity.Lines)-1]
	if last.Name != CurrentEarningsLabel {
		t.Fatalf("expected %q as last equity line, got %q", CurrentEarningsLabel, last.Name)
	}
	if !bs.Balanced {
		t.Fatalf("expected balanced sheet: %v vs %v", bs.TotalAssets, bs.TotalLiabilitiesAndEquity)
	}
	if bs.Cash != 10000 {
		t.Fatalf("expected cash 10000, got %v", bs.Cash)
	}
}

func TestBuildBalanceSheetUnbalanced(t *testing.T) {
	bs := BuildBalanceSheet([]AccountTotal{
		{Code: "1000", Name: "Cash", Type: accounting.AccountTypeAsset, Debit: 100},
		{Code: "2000", Name: "Loan", Type: accounting.AccountTypeLiability, Credit: 90},
	}, time.Now())
	if bs.Balanced {
		t.Fatalf("expected unbalanced sheet")
	}
}

func TestBuildCashFlow(t *testing.T) {
	opening := BuildBalanceSheet([]AccountTotal{
		{Code: "1000", Name: "Cash", Type: accounting.AccountTypeAsset, Subtype: accounting.SubtypeCash, Debit: 1000},
		{Code: "3000", Name: "Capital", Type: accounting.AccountTypeEquity, Credit: 1000},
	}, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	closing := BuildBalanceSheet([]AccountTotal{
		{Code: "1000", Name: "Cash", Type: accounting.AccountTypeAsset, Subtype: accounting.SubtypeCash, Debit: 1800, Credit: 200},
		{Code: "1100", Name: "Receivables", Type: accounting.AccountTypeAsset, Debit: 100},
		{Code: "1500", Name: "Equipment", Type: accounting.AccountTypeAsset, Subtype: accounting.SubtypeFixedAsset, Debit: 200},
		{Code: "2000", Name: "Loan", Type: accounting.AccountTypeLiability, Credit: 300},
		{Code: "3000", Name: "Capital", Type: accounting.AccountTypeEquity, Credit: 1000},
		{Code: "4000", Name: "Room Revenue", Type: accounting.AccountTypeRevenue, Credit: 600},
	}, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC))
	if !closing.Balanced {
		t.Fatalf("closing sheet must balance")
	}

	cf := BuildCashFlow(opening, closing, 600)
	if cf.Operating != 800 {
		t.Fatalf("expected operating 800, got %v", cf.Operating)
	}
	if cf.Investing != -200 {
		t.Fatalf("expected investing -200, got %v", cf.Investing)
	}
	if cf.Financing != 0 {
		t.Fatalf("expected financing 0, got %v", cf.Financing)
	}
	if cf.NetCashFlow != cf.ClosingCash-cf.OpeningCash {
		t.Fatalf("net cash flow %v does not explain cash change %v -> %v", cf.NetCashFlow, cf.OpeningCash, cf.ClosingCash)
	}
}
