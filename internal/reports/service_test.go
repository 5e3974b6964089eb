package reports_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

const tenantID = int64(3)

func day(month time.Month, d int) time.Time {
	return time.Date(2025, month, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	store   *memory.Store
	ledger  *accounting.Service
	reports *reports.Service
}

func newFixture() fixture {
	store := memory.New()
	seq := sequence.NewGenerator(sequence.NewMemoryStore())
	return fixture{
		store:   store,
		ledger:  accounting.NewService(store.Accounting(), seq, store, nil),
		reports: reports.NewService(store, store.Inventory(), nil, nil).WithNow(func() time.Time { return day(12, 31) }),
	}
}

func (f fixture) post(t *testing.T, on time.Time, debit, credit accounting.Account, amount accounting.Amount) {
	t.Helper()
	_, err := f.ledger.CreateEntry(context.Background(), tenantID, accounting.EntryInput{
		Date: on,
		Lines: []accounting.LineInput{
			{AccountID: debit.ID, Debit: amount},
			{AccountID: credit.ID, Credit: amount},
		},
	})
	require.NoError(t, err)
}

func (f fixture) account(t *testing.T, name string, typ accounting.AccountType, subtype string) accounting.Account {
	t.Helper()
	acc, err := f.ledger.CreateAccount(context.Background(), tenantID, accounting.AccountInput{Name: name, Type: typ, Subtype: subtype})
	require.NoError(t, err)
	return acc
}

func TestFinancialStatements(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	cash := f.account(t, "Cash", accounting.AccountTypeAsset, accounting.SubtypeCash)
	capital := f.account(t, "Owner Capital", accounting.AccountTypeEquity, "")
	rooms := f.account(t, "Room Revenue", accounting.AccountTypeRevenue, "")
	laundry := f.account(t, "Laundry", accounting.AccountTypeExpense, "")

	f.post(t, day(1, 2), cash, capital, 50000)
	f.post(t, day(2, 5), cash, rooms, 10000)
	f.post(t, day(2, 20), laundry, cash, 2500)

	from, to := day(2, 1), day(2, 28)
	tb, err := f.reports.TrialBalance(ctx, tenantID, &from, &to)
	require.NoError(t, err)
	require.True(t, tb.Balanced())
	require.Equal(t, accounting.Amount(12500), tb.TotalDebit)
	require.Len(t, tb.Rows, 4)

	is, err := f.reports.IncomeStatement(ctx, tenantID, &from, &to)
	require.NoError(t, err)
	require.Equal(t, accounting.Amount(7500), is.NetIncome)

	bs, err := f.reports.BalanceSheet(ctx, tenantID, to)
	require.NoError(t, err)
	require.True(t, bs.Balanced)
	require.Equal(t, accounting.Amount(57500), bs.TotalAssets)
	require.Equal(t, accounting.Amount(7500), bs.Earnings)

	cf, err := f.reports.CashFlow(ctx, tenantID, &from, &to)
	require.NoError(t, err)
	require.Equal(t, accounting.Amount(50000), cf.OpeningCash)
	require.Equal(t, accounting.Amount(57500), cf.ClosingCash)
	require.Equal(t, accounting.Amount(7500), cf.Operating)
	require.Equal(t, accounting.Amount(7500), cf.NetCashFlow)
}

func TestReportsRejectInvertedRange(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	from, to := day(3, 1), day(2, 1)

	_, err := f.reports.TrialBalance(ctx, tenantID, &from, &to)
	require.Equal(t, shared.CodeInvalidDateRange, shared.CodeOf(err))
	_, err = f.reports.IncomeStatement(ctx, tenantID, &from, &to)
	require.Equal(t, shared.CodeInvalidDateRange, shared.CodeOf(err))
	_, err = f.reports.CashFlow(ctx, tenantID, &from, &to)
	require.Equal(t, shared.CodeInvalidDateRange, shared.CodeOf(err))
	_, err = f.reports.StockBalances(ctx, tenantID, reports.StockFilter{From: &from, To: &to})
	require.Equal(t, shared.CodeInvalidDateRange, shared.CodeOf(err))
}

func TestStockBalancesCostBounds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	negative, low, high := decimal.NewFromInt(-1), decimal.NewFromInt(2), decimal.NewFromInt(5)

	_, err := f.reports.StockBalances(ctx, tenantID, reports.StockFilter{MinCost: &negative})
	require.Equal(t, shared.CodeInvalidCostBounds, shared.CodeOf(err))
	_, err = f.reports.StockBalances(ctx, tenantID, reports.StockFilter{MinCost: &high, MaxCost: &low})
	require.Equal(t, shared.CodeInvalidCostBounds, shared.CodeOf(err))

	report, err := f.reports.StockBalances(ctx, tenantID, reports.StockFilter{MinCost: &low, MaxCost: &high})
	require.NoError(t, err)
	require.Empty(t, report.Rows)
}

func TestStockBalancesFromLedger(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	engine := inventory.NewEngine(nil, nil)
	items := inventory.NewService(f.store.Inventory(), engine, sequence.NewGenerator(sequence.NewMemoryStore()), f.store, nil)
	cat, err := items.CreateCategory(ctx, tenantID, "Amenities", nil, 1)
	require.NoError(t, err)
	soap, err := items.CreateItem(ctx, tenantID, inventory.ItemInput{Name: "Soap", UOM: inventory.UOMEach, CategoryID: cat.ID})
	require.NoError(t, err)

	post := func(m inventory.Movement) {
		t.Helper()
		m.TenantID, m.ItemID, m.DocNumber = tenantID, soap.ID, "SEED"
		err := f.store.Inventory().WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
			_, _, err := engine.Post(ctx, tx, m)
			return err
		})
		require.NoError(t, err)
	}
	post(inventory.Movement{DocType: inventory.DocGRN, DocDate: day(1, 3), Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(5)})
	post(inventory.Movement{DocType: inventory.DocGRN, DocDate: day(1, 9), Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(7)})
	post(inventory.Movement{DocType: inventory.DocIssue, DocDate: day(2, 2), Qty: decimal.NewFromInt(5)})

	report, err := f.reports.StockBalances(ctx, tenantID, reports.StockFilter{})
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	row := report.Rows[0]
	require.True(t, row.Received.Equal(decimal.NewFromInt(20)))
	require.True(t, row.Issued.Equal(decimal.NewFromInt(5)))
	require.True(t, row.Balance.Equal(decimal.NewFromInt(15)))
	require.True(t, row.AvgCost.Equal(decimal.NewFromInt(6)))
	require.True(t, row.Value.Equal(decimal.NewFromInt(90)))
	require.False(t, row.Divergent)
	require.Zero(t, report.Totals.Divergent)
}

// gatedLedger blocks AccountTotals until release is closed and records the
// state of the context the build ran under.
type gatedLedger struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu     sync.Mutex
	ctxErr error
}

func (g *gatedLedger) AccountTotals(ctx context.Context, _ int64, _, _ *time.Time) ([]reports.AccountTotal, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ctxErr = ctx.Err()
	if g.ctxErr != nil {
		return nil, g.ctxErr
	}
	return []reports.AccountTotal{
		{AccountID: 1, Code: "1000", Name: "Cash", Type: accounting.AccountTypeAsset, Debit: 500},
		{AccountID: 2, Code: "4000", Name: "Sales", Type: accounting.AccountTypeRevenue, Credit: 500},
	}, nil
}

func TestSharedBuildSurvivesCancelledCaller(t *testing.T) {
	src := &gatedLedger{started: make(chan struct{}), release: make(chan struct{})}
	svc := reports.NewService(src, memory.New().Inventory(), nil, nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.TrialBalance(ctxA, tenantID, nil, nil)
		errA <- err
	}()
	<-src.started

	type result struct {
		tb  reports.TrialBalance
		err error
	}
	resB := make(chan result, 1)
	go func() {
		tb, err := svc.TrialBalance(context.Background(), tenantID, nil, nil)
		resB <- result{tb, err}
	}()
	// let the second caller join the in-flight build
	time.Sleep(50 * time.Millisecond)

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)
	close(src.release)

	got := <-resB
	require.NoError(t, got.err)
	require.True(t, got.tb.Balanced())
	require.Len(t, got.tb.Rows, 2)

	src.mu.Lock()
	defer src.mu.Unlock()
	require.NoError(t, src.ctxErr)
}

func TestSharedBuildIsBounded(t *testing.T) {
	src := &gatedLedger{started: make(chan struct{}), release: make(chan struct{})}
	svc := reports.NewService(src, memory.New().Inventory(), nil, nil).WithBuildTimeout(20 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := svc.TrialBalance(context.Background(), tenantID, nil, nil)
		done <- err
	}()
	<-src.started
	time.Sleep(60 * time.Millisecond)
	close(src.release)
	require.ErrorIs(t, <-done, context.DeadlineExceeded)
}
