package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// LedgerSource aggregates journal lines per chart account.
type LedgerSource interface {
	// AccountTotals returns every chart account of the tenant with the sum of
	// its journal lines dated within [from, to]. Nil bounds are open.
	AccountTotals(ctx context.Context, tenantID int64, from, to *time.Time) ([]AccountTotal, error)
}

// StockSource reads items and their stock ledger.
type StockSource interface {
	ListItems(ctx context.Context, tenantID int64, filter inventory.ItemFilter) ([]inventory.Item, error)
	ListLedger(ctx context.Context, tenantID int64, filter inventory.LedgerFilter) ([]inventory.LedgerRow, error)
}

// DefaultBuildTimeout bounds a shared report build once it is detached from
// the callers that started it.
const DefaultBuildTimeout = 30 * time.Second

// Service builds reports on demand. Identical concurrent requests share one
// build.
type Service struct {
	ledger       LedgerSource
	stock        StockSource
	logger       *slog.Logger
	metrics      *observability.Metrics
	group        singleflight.Group
	now          func() time.Time
	buildTimeout time.Duration
}

// NewService constructs the reporting service.
func NewService(ledger LedgerSource, stock StockSource, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, stock: stock, logger: logger, metrics: metrics, now: time.Now, buildTimeout: DefaultBuildTimeout}
}

// WithBuildTimeout overrides DefaultBuildTimeout.
func (s *Service) WithBuildTimeout(d time.Duration) *Service {
	if d > 0 {
		s.buildTimeout = d
	}
	return s
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// coalesce runs fn once per key among concurrent callers. The build runs
// detached from the first caller's cancellation so a caller that gives up
// does not fail the others sharing the result. A caller joining late reads
// the in-flight build, which may predate writes committed after it started.
func (s *Service) coalesce(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.buildTimeout)
		defer cancel()
		return fn(bctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func checkRange(from, to *time.Time) error {
	if from != nil && to != nil && to.Before(*from) {
		return shared.Validation(shared.CodeInvalidDateRange, "reports: date range end before start")
	}
	return nil
}

func rangeKey(from, to *time.Time) string {
	f, t := "-", "-"
	if from != nil {
		f = from.UTC().Format(time.RFC3339Nano)
	}
	if to != nil {
		t = to.UTC().Format(time.RFC3339Nano)
	}
	return f + ":" + t
}

// TrialBalance lists per-account movement over the range. A non-zero net is
// logged as an integrity failure and returned as is.
func (s *Service) TrialBalance(ctx context.Context, tenantID int64, from, to *time.Time) (TrialBalance, error) {
	if err := checkRange(from, to); err != nil {
		return TrialBalance{}, err
	}
	v, err := s.coalesce(ctx, fmt.Sprintf("tb:%d:%s", tenantID, rangeKey(from, to)), func(ctx context.Context) (any, error) {
		totals, err := s.ledger.AccountTotals(ctx, tenantID, from, to)
		if err != nil {
			return nil, err
		}
		tb := BuildTrialBalance(totals)
		tb.From, tb.To = from, to
		if !tb.Balanced() {
			s.metrics.IntegrityFailure("trial_balance")
			s.logger.Error("trial balance does not net to zero",
				slog.Bool("integrity", true),
				slog.Int64("tenant_id", tenantID),
				slog.String("net", tb.Net.String()))
		}
		return tb, nil
	})
	if err != nil {
		return TrialBalance{}, err
	}
	return v.(TrialBalance), nil
}

// IncomeStatement reports revenue and expenses over the range.
func (s *Service) IncomeStatement(ctx context.Context, tenantID int64, from, to *time.Time) (IncomeStatement, error) {
	if err := checkRange(from, to); err != nil {
		return IncomeStatement{}, err
	}
	v, err := s.coalesce(ctx, fmt.Sprintf("is:%d:%s", tenantID, rangeKey(from, to)), func(ctx context.Context) (any, error) {
		return s.incomeStatement(ctx, tenantID, from, to)
	})
	if err != nil {
		return IncomeStatement{}, err
	}
	return v.(IncomeStatement), nil
}

func (s *Service) incomeStatement(ctx context.Context, tenantID int64, from, to *time.Time) (IncomeStatement, error) {
	totals, err := s.ledger.AccountTotals(ctx, tenantID, from, to)
	if err != nil {
		return IncomeStatement{}, err
	}
	is := BuildIncomeStatement(totals)
	is.From, is.To = from, to
	return is, nil
}

// BalanceSheet reports the position as of asOf. A zero asOf means now.
func (s *Service) BalanceSheet(ctx context.Context, tenantID int64, asOf time.Time) (BalanceSheet, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	v, err := s.coalesce(ctx, fmt.Sprintf("bs:%d:%s", tenantID, rangeKey(nil, &asOf)), func(ctx context.Context) (any, error) {
		return s.balanceSheet(ctx, tenantID, asOf)
	})
	if err != nil {
		return BalanceSheet{}, err
	}
	return v.(BalanceSheet), nil
}

func (s *Service) balanceSheet(ctx context.Context, tenantID int64, asOf time.Time) (BalanceSheet, error) {
	totals, err := s.ledger.AccountTotals(ctx, tenantID, nil, &asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	bs := BuildBalanceSheet(totals, asOf)
	if !bs.Balanced {
		s.metrics.IntegrityFailure("balance_sheet")
		s.logger.Error("balance sheet does not balance",
			slog.Bool("integrity", true),
			slog.Int64("tenant_id", tenantID),
			slog.String("assets", bs.TotalAssets.String()),
			slog.String("liabilities_and_equity", bs.TotalLiabilitiesAndEquity.String()))
	}
	return bs, nil
}

// CashFlow derives the cash movement over the range from balance sheets
// taken just before from and at to. The snapshots and the income statement
// are built concurrently.
func (s *Service) CashFlow(ctx context.Context, tenantID int64, from, to *time.Time) (CashFlow, error) {
	if err := checkRange(from, to); err != nil {
		return CashFlow{}, err
	}
	end := s.now()
	if to != nil {
		end = *to
	}
	v, err := s.coalesce(ctx, fmt.Sprintf("cf:%d:%s", tenantID, rangeKey(from, &end)), func(ctx context.Context) (any, error) {
		var (
			opening BalanceSheet
			closing BalanceSheet
			income  IncomeStatement
		)
		g, gctx := errgroup.WithContext(ctx)
		if from != nil {
			g.Go(func() error {
				var err error
				opening, err = s.balanceSheet(gctx, tenantID, from.Add(-time.Nanosecond))
				return err
			})
		}
		g.Go(func() error {
			var err error
			closing, err = s.balanceSheet(gctx, tenantID, end)
			return err
		})
		g.Go(func() error {
			var err error
			income, err = s.incomeStatement(gctx, tenantID, from, &end)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		cf := BuildCashFlow(opening, closing, income.NetIncome)
		cf.From = from
		return cf, nil
	})
	if err != nil {
		return CashFlow{}, err
	}
	return v.(CashFlow), nil
}

// StockBalances reconstructs per-item quantities and flags items whose
// stored running balance disagrees with the reconstruction.
func (s *Service) StockBalances(ctx context.Context, tenantID int64, filter StockFilter) (StockBalances, error) {
	if err := checkRange(filter.From, filter.To); err != nil {
		return StockBalances{}, err
	}
	if (filter.MinCost != nil && filter.MinCost.IsNegative()) || (filter.MaxCost != nil && filter.MaxCost.IsNegative()) {
		return StockBalances{}, shared.Validation(shared.CodeInvalidCostBounds, "reports: cost bounds must be >= 0")
	}
	if filter.MinCost != nil && filter.MaxCost != nil && filter.MinCost.GreaterThan(*filter.MaxCost) {
		return StockBalances{}, shared.Validation(shared.CodeInvalidCostBounds, "reports: minimum cost above maximum cost")
	}
	items, err := s.stock.ListItems(ctx, tenantID, inventory.ItemFilter{CategoryID: filter.CategoryID})
	if err != nil {
		return StockBalances{}, err
	}
	rows, err := s.stock.ListLedger(ctx, tenantID, inventory.LedgerFilter{})
	if err != nil {
		return StockBalances{}, err
	}
	report := BuildStockBalances(items, rows, filter)
	for _, r := range report.Rows {
		if !r.Divergent {
			continue
		}
		s.metrics.IntegrityFailure("stock_balance")
		s.logger.Error("stock ledger balance diverges from reconstruction",
			slog.Bool("integrity", true),
			slog.Int64("tenant_id", tenantID),
			slog.Int64("item_id", r.ItemID),
			slog.Int64("seq", r.DivergentSeq),
			slog.String("computed", r.Computed.String()),
			slog.String("stored", r.Balance.String()))
	}
	return report, nil
}
