package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// HandleGLIntegrity runs RunGLIntegrityCheck for the task's tenant.
func (p *Processor) HandleGLIntegrity(ctx context.Context, t *asynq.Task) error {
	return run(p, "gl_integrity", t, func(payload TenantPayload, logger *slog.Logger) error {
		if err := requireTenant("gl_integrity", payload.TenantID); err != nil {
			return err
		}
		err := p.RunGLIntegrityCheck(ctx, payload.TenantID)
		if shared.IsIntegrity(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	})
}

// RunGLIntegrityCheck verifies that the tenant's trial balance nets to zero
// and that every item's stock ledger chain and cached balance agree.
// Violations are logged, counted and returned joined.
func (p *Processor) RunGLIntegrityCheck(ctx context.Context, tenantID int64) error {
	logger := p.deps.Logger.With(slog.String("job", "gl_integrity"), slog.Int64("tenant_id", tenantID))
	var violations []error

	tb, err := p.deps.Reports.TrialBalance(ctx, tenantID, nil, nil)
	if err != nil {
		return err
	}
	if !tb.Balanced() {
		p.deps.Metrics.AddDivergences("trial_balance", tenantID, 1)
		logger.Error("trial balance does not net to zero",
			slog.Bool("integrity", true),
			slog.String("debit", tb.TotalDebit.String()),
			slog.String("credit", tb.TotalCredit.String()))
		violations = append(violations, shared.Integrity(shared.CodeTrialBalanceNotZero,
			fmt.Sprintf("ledger: trial balance off by %s", tb.Net)))
	}

	items, err := p.deps.Items.ListItems(ctx, tenantID, inventory.ItemFilter{})
	if err != nil {
		return err
	}
	broken := 0
	for _, item := range items {
		err := p.deps.Items.VerifyItem(ctx, tenantID, item.ID)
		if err == nil {
			continue
		}
		if !shared.IsIntegrity(err) {
			return err
		}
		broken++
		logger.Error("stock ledger chain broken", slog.Bool("integrity", true), slog.Int64("item_id", item.ID), slog.Any("error", err))
		violations = append(violations, err)
	}
	p.deps.Metrics.AddDivergences("stock_chain", tenantID, broken)

	if len(violations) == 0 {
		logger.Info("ledger integrity verified", slog.Int("items", len(items)))
	}
	return errors.Join(violations...)
}
