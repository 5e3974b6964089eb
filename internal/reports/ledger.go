// Package reports derives financial statements and stock balances from the
// journal and stock ledgers. Cached balance columns are never read.
package reports

import (
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// AccountTotal is the journal activity of one chart account over a period.
type AccountTotal struct {
	AccountID int64
	Code      string
	Name      string
	Type      accounting.AccountType
	Subtype   string
	Debit     accounting.Amount
	Credit    accounting.Amount
}

// Net returns debit minus credit.
func (a AccountTotal) Net() accounting.Amount {
	return a.Debit - a.Credit
}

// TrialBalanceRow is one account of the trial balance.
type TrialBalanceRow struct {
	AccountID   int64                  `json:"account_id"`
	Code        string                 `json:"code"`
	AccountName string                 `json:"account_name"`
	AccountType accounting.AccountType `json:"account_type"`
	Debit       accounting.Amount      `json:"debit"`
	Credit      accounting.Amount      `json:"credit"`
	Balance     accounting.Amount      `json:"balance"`
}

// TrialBalance lists every account with its net movement.
type TrialBalance struct {
	From        *time.Time        `json:"from,omitempty"`
	To          *time.Time        `json:"to,omitempty"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  accounting.Amount `json:"total_debit"`
	TotalCredit accounting.Amount `json:"total_credit"`
	Net         accounting.Amount `json:"net"`
}

// Balanced reports whether debits equal credits.
func (tb TrialBalance) Balanced() bool { return tb.Net == 0 }

// BuildTrialBalance converts account totals into trial balance rows sorted
// by account name.
func BuildTrialBalance(accounts []AccountTotal) TrialBalance {
	tb := TrialBalance{Rows: make([]TrialBalanceRow, 0, len(accounts))}
	for _, acc := range accounts {
		tb.Rows = append(tb.Rows, TrialBalanceRow{
			AccountID:   acc.AccountID,
			Code:        acc.Code,
			AccountName: acc.Name,
			AccountType: acc.Type,
			Debit:       acc.Debit,
			Credit:      acc.Credit,
			Balance:     acc.Net(),
		})
		tb.TotalDebit += acc.Debit
		tb.TotalCredit += acc.Credit
	}
	sort.SliceStable(tb.Rows, func(i, j int) bool {
		if tb.Rows[i].AccountName != tb.Rows[j].AccountName {
			return tb.Rows[i].AccountName < tb.Rows[j].AccountName
		}
		return tb.Rows[i].Code < tb.Rows[j].Code
	})
	tb.Net = tb.TotalDebit - tb.TotalCredit
	return tb
}

// StatementLine is an account amount inside a statement section.
type StatementLine struct {
	AccountID int64             `json:"account_id,omitempty"`
	Code      string            `json:"code"`
	Name      string            `json:"name"`
	Amount    accounting.Amount `json:"amount"`
}

// Section groups statement lines with their total.
type Section struct {
	Label string            `json:"label"`
	Lines []StatementLine   `json:"lines"`
	Total accounting.Amount `json:"total"`
}

func (s *Section) add(line StatementLine) {
	s.Lines = append(s.Lines, line)
	s.Total += line.Amount
}

func (s *Section) sort() {
	sort.Slice(s.Lines, func(i, j int) bool { return s.Lines[i].Code < s.Lines[j].Code })
}

// IncomeStatement reports revenue against expenses.
type IncomeStatement struct {
	From      *time.Time        `json:"from,omitempty"`
	To        *time.Time        `json:"to,omitempty"`
	Revenue   Section           `json:"revenue"`
	Expenses  Section           `json:"expenses"`
	NetIncome accounting.Amount `json:"net_income"`
}

// BuildIncomeStatement aggregates revenue (credit - debit) and expense
// (debit - credit) accounts.
func BuildIncomeStatement(accounts []AccountTotal) IncomeStatement {
	revenue := Section{Label: "Revenue", Lines: []StatementLine{}}
	expenses := Section{Label: "Expenses", Lines: []StatementLine{}}
	for _, acc := range accounts {
		line := StatementLine{AccountID: acc.AccountID, Code: acc.Code, Name: acc.Name}
		switch acc.Type {
		case accounting.AccountTypeRevenue:
			line.Amount = -acc.Net()
			revenue.add(line)
		case accounting.AccountTypeExpense:
			line.Amount = acc.Net()
			expenses.add(line)
		}
	}
	revenue.sort()
	expenses.sort()
	return IncomeStatement{Revenue: revenue, Expenses: expenses, NetIncome: revenue.Total - expenses.Total}
}

// CurrentEarningsLabel names the computed equity line carrying unclosed
// revenue and expense balances.
const CurrentEarningsLabel = "Current Earnings"

// BalanceSheet is the position as of a date.
type BalanceSheet struct {
	AsOf                      time.Time         `json:"as_of"`
	Assets                    Section           `json:"assets"`
	Liabilities               Section           `json:"liabilities"`
	Equity                    Section           `json:"equity"`
	TotalAssets               accounting.Amount `json:"total_assets"`
	TotalLiabilities          accounting.Amount `json:"total_liabilities"`
	TotalEquity               accounting.Amount `json:"total_equity"`
	TotalLiabilitiesAndEquity accounting.Amount `json:"total_liabilities_and_equity"`
	Balanced                  bool              `json:"balanced"`
	// Cash is the part of assets held in CASH or BANK accounts.
	Cash accounting.Amount `json:"cash"`
	// FixedAssets is the part of assets with the FIXED_ASSET subtype.
	FixedAssets accounting.Amount `json:"fixed_assets"`
	// Earnings is the computed current earnings line.
	Earnings accounting.Amount `json:"earnings"`
}

// BuildBalanceSheet aggregates cumulative totals into assets (debit -
// credit), liabilities and equity (credit - debit). Revenue and expense
// balances are carried into equity as current earnings so that a ledger
// built from balanced entries always balances.
func BuildBalanceSheet(accounts []AccountTotal, asOf time.Time) BalanceSheet {
	bs := BalanceSheet{
		AsOf:        asOf,
		Assets:      Section{Label: "Assets", Lines: []StatementLine{}},
		Liabilities: Section{Label: "Liabilities", Lines: []StatementLine{}},
		Equity:      Section{Label: "Equity", Lines: []StatementLine{}},
	}
	for _, acc := range accounts {
		line := StatementLine{AccountID: acc.AccountID, Code: acc.Code, Name: acc.Name}
		switch acc.Type {
		case accounting.AccountTypeAsset:
			line.Amount = acc.Net()
			bs.Assets.add(line)
			switch acc.Subtype {
			case accounting.SubtypeCash, accounting.SubtypeBank:
				bs.Cash += line.Amount
			case accounting.SubtypeFixedAsset:
				bs.FixedAssets += line.Amount
			}
		case accounting.AccountTypeLiability:
			line.Amount = -acc.Net()
			bs.Liabilities.add(line)
		case accounting.AccountTypeEquity:
			line.Amount = -acc.Net()
			bs.Equity.add(line)
		case accounting.AccountTypeRevenue, accounting.AccountTypeExpense:
			bs.Earnings -= acc.Net()
		}
	}
	bs.Assets.sort()
	bs.Liabilities.sort()
	bs.Equity.sort()
	bs.Equity.add(StatementLine{Name: CurrentEarningsLabel, Amount: bs.Earnings})

	bs.TotalAssets = bs.Assets.Total
	bs.TotalLiabilities = bs.Liabilities.Total
	bs.TotalEquity = bs.Equity.Total
	bs.TotalLiabilitiesAndEquity = bs.TotalLiabilities + bs.TotalEquity
	bs.Balanced = bs.TotalAssets == bs.TotalLiabilitiesAndEquity
	return bs
}

// CashFlow is an indirect-method cash flow statement.
type CashFlow struct {
	From        *time.Time        `json:"from,omitempty"`
	To          time.Time         `json:"to"`
	NetIncome   accounting.Amount `json:"net_income"`
	Operating   accounting.Amount `json:"operating"`
	Investing   accounting.Amount `json:"investing"`
	Financing   accounting.Amount `json:"financing"`
	NetCashFlow accounting.Amount `json:"net_cash_flow"`
	OpeningCash accounting.Amount `json:"opening_cash"`
	ClosingCash accounting.Amount `json:"closing_cash"`
}

// BuildCashFlow derives cash movement from two balance sheet snapshots:
// operating is net income plus the change in liabilities less the change
// in working assets, investing is the change in fixed assets, financing is
// the change in equity excluding earnings.
func BuildCashFlow(opening, closing BalanceSheet, netIncome accounting.Amount) CashFlow {
	workingAssets := func(bs BalanceSheet) accounting.Amount {
		return bs.TotalAssets - bs.Cash - bs.FixedAssets
	}
	contributed := func(bs BalanceSheet) accounting.Amount {
		return bs.TotalEquity - bs.Earnings
	}
	cf := CashFlow{
		To:          closing.AsOf,
		NetIncome:   netIncome,
		OpeningCash: opening.Cash,
		ClosingCash: closing.Cash,
	}
	cf.Operating = netIncome + (closing.TotalLiabilities - opening.TotalLiabilities) - (workingAssets(closing) - workingAssets(opening))
	cf.Investing = -(closing.FixedAssets - opening.FixedAssets)
	cf.Financing = contributed(closing) - contributed(opening)
	cf.NetCashFlow = cf.Operating + cf.Investing + cf.Financing
	return cf
}
