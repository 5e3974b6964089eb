package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// HandleBalanceRefresh rebuilds the tenant's balance cache and reports the
// accounts whose cached value had drifted.
func (p *Processor) HandleBalanceRefresh(ctx context.Context, t *asynq.Task) error {
	return run(p, "balance_refresh", t, func(payload TenantPayload, logger *slog.Logger) error {
		if err := requireTenant("balance_refresh", payload.TenantID); err != nil {
			return err
		}
		stale, err := p.deps.Balances.RefreshBalanceCache(ctx, payload.TenantID)
		if err != nil {
			return err
		}
		p.deps.Metrics.AddDivergences("balance_cache", payload.TenantID, len(stale))
		for _, b := range stale {
			logger.Warn("cached balance corrected",
				slog.Int64("tenant_id", payload.TenantID),
				slog.Int64("account_id", b.Account.ID),
				slog.String("balance", b.Balance.String()))
		}
		return nil
	})
}

// HandleStockReconcile rebuilds stock balances from the ledger and fails the
// run when any stored running balance disagrees.
func (p *Processor) HandleStockReconcile(ctx context.Context, t *asynq.Task) error {
	return run(p, "stock_reconcile", t, func(payload TenantPayload, logger *slog.Logger) error {
		if err := requireTenant("stock_reconcile", payload.TenantID); err != nil {
			return err
		}
		report, err := p.deps.Reports.StockBalances(ctx, payload.TenantID, reports.StockFilter{IncludeZero: true})
		if err != nil {
			return err
		}
		p.deps.Metrics.AddDivergences("stock_balance", payload.TenantID, report.Totals.Divergent)
		if report.Totals.Divergent > 0 {
			err := shared.Integrity(shared.CodeBalanceDivergence,
				fmt.Sprintf("inventory: %d items diverge from their ledger", report.Totals.Divergent))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		logger.Info("stock reconciled", slog.Int64("tenant_id", payload.TenantID), slog.Int("items", len(report.Rows)))
		return nil
	})
}

// HandleIdempotencyCleanup drops idempotency keys past retention.
func (p *Processor) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) error {
	return run(p, "idempotency_cleanup", t, func(payload CleanupPayload, logger *slog.Logger) error {
		retention := p.deps.Retention
		if payload.RetentionHours > 0 {
			retention = time.Duration(payload.RetentionHours) * time.Hour
		}
		if err := p.deps.Keys.Cleanup(ctx, retention); err != nil {
			return err
		}
		logger.Debug("idempotency keys cleaned", slog.Duration("retention", retention))
		return nil
	})
}
