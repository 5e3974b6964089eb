package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/stores"
)

// HandlePostGRN posts a goods receipt to the ledger. A missing document or
// account mapping is not retried; the ledger sync picks the receipt up once
// the mapping exists.
func (p *Processor) HandlePostGRN(ctx context.Context, t *asynq.Task) error {
	return run(p, "post_grn", t, func(evt procurement.GRNPostedEvent, logger *slog.Logger) error {
		if err := requireTenant("post_grn", evt.TenantID); err != nil {
			return err
		}
		err := p.deps.Poster.HandleGRNPosted(ctx, evt)
		if err != nil {
			logger.Warn("grn posting failed", slog.Int64("tenant_id", evt.TenantID), slog.String("grn", evt.Number), slog.Any("error", err))
		}
		return skipPermanent(err)
	})
}

// HandlePostIssue posts a store issue to the ledger.
func (p *Processor) HandlePostIssue(ctx context.Context, t *asynq.Task) error {
	return run(p, "post_issue", t, func(evt stores.IssuePostedEvent, logger *slog.Logger) error {
		if err := requireTenant("post_issue", evt.TenantID); err != nil {
			return err
		}
		err := p.deps.Poster.HandleIssuePosted(ctx, evt)
		if err != nil {
			logger.Warn("issue posting failed", slog.Int64("tenant_id", evt.TenantID), slog.String("issue", evt.Number), slog.Any("error", err))
		}
		return skipPermanent(err)
	})
}

// HandleLedgerSync posts documents inside the lookback window that have no
// journal entry yet.
func (p *Processor) HandleLedgerSync(ctx context.Context, t *asynq.Task) error {
	return run(p, "ledger_sync", t, func(payload LedgerSyncPayload, logger *slog.Logger) error {
		if err := requireTenant("ledger_sync", payload.TenantID); err != nil {
			return err
		}
		since := p.clock().Add(-p.deps.SyncLookback)
		if payload.Since != nil {
			since = *payload.Since
		}
		res, err := p.deps.Poster.SyncPending(ctx, payload.TenantID, since)
		p.deps.Metrics.AddDivergences("ledger_sync", payload.TenantID, res.Failed)
		if err != nil {
			logger.Warn("ledger sync incomplete",
				slog.Int64("tenant_id", payload.TenantID),
				slog.Int("failed", res.Failed),
				slog.Any("error", err))
		}
		return err
	})
}

// skipPermanent marks errors a retry cannot fix.
func skipPermanent(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	switch shared.KindOf(err) {
	case shared.KindForbidden, shared.KindIntegrity:
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
