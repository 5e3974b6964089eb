package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/stores"
)

// Poster posts operational documents to the general ledger.
type Poster interface {
	HandleGRNPosted(ctx context.Context, evt procurement.GRNPostedEvent) error
	HandleIssuePosted(ctx context.Context, evt stores.IssuePostedEvent) error
	SyncPending(ctx context.Context, tenantID int64, since time.Time) (integration.SyncResult, error)
}

// BalanceCache rebuilds cached account balances.
type BalanceCache interface {
	RefreshBalanceCache(ctx context.Context, tenantID int64) ([]accounting.AccountBalance, error)
}

// Reporter produces the statements integrity checks are judged on.
type Reporter interface {
	TrialBalance(ctx context.Context, tenantID int64, from, to *time.Time) (reports.TrialBalance, error)
	StockBalances(ctx context.Context, tenantID int64, filter reports.StockFilter) (reports.StockBalances, error)
}

// ItemVerifier checks each item's stock ledger chain.
type ItemVerifier interface {
	ListItems(ctx context.Context, tenantID int64, filter inventory.ItemFilter) ([]inventory.Item, error)
	VerifyItem(ctx context.Context, tenantID, itemID int64) error
}

// KeyCleaner drops expired idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// Deps collects what the task handlers operate on.
type Deps struct {
	Poster       Poster
	Balances     BalanceCache
	Reports      Reporter
	Items        ItemVerifier
	Keys         KeyCleaner
	Metrics      *jobmetrics.Metrics
	Logger       *slog.Logger
	SyncLookback time.Duration
	Retention    time.Duration
}

// Processor executes ledger background tasks.
type Processor struct {
	deps  Deps
	clock func() time.Time
}

// NewProcessor builds a Processor.
func NewProcessor(deps Deps) *Processor {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.SyncLookback <= 0 {
		deps.SyncLookback = 7 * 24 * time.Hour
	}
	if deps.Retention <= 0 {
		deps.Retention = 72 * time.Hour
	}
	return &Processor{deps: deps, clock: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source.
func (p *Processor) WithClock(clock func() time.Time) *Processor {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// Handlers lists every task type the processor serves.
func (p *Processor) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskPostGRN, Handler: p.HandlePostGRN},
		{Type: TaskPostIssue, Handler: p.HandlePostIssue},
		{Type: TaskLedgerSync, Handler: p.HandleLedgerSync},
		{Type: TaskGLIntegrity, Handler: p.HandleGLIntegrity},
		{Type: TaskBalanceRefresh, Handler: p.HandleBalanceRefresh},
		{Type: TaskStockReconcile, Handler: p.HandleStockReconcile},
		{Type: TaskIdempotencyCleanup, Handler: p.HandleIdempotencyCleanup},
	}
}

// Schedule defines the periodic tasks for the supplied tenants.
type Schedule struct {
	LedgerSync     string
	BalanceRefresh string
	GLIntegrity    string
	StockReconcile string
	KeyCleanup     string
}

// DefaultSchedule is the cron layout used when none is configured.
var DefaultSchedule = Schedule{
	LedgerSync:     "*/15 * * * *",
	BalanceRefresh: "5 * * * *",
	GLIntegrity:    "30 2 * * *",
	StockReconcile: "0 3 * * *",
	KeyCleanup:     "0 4 * * *",
}

// Cron builds cron registrations for every tenant in tenants.
func (p *Processor) Cron(schedule Schedule, tenants []int64) ([]CronRegistration, error) {
	var out []CronRegistration
	add := func(spec string, task *asynq.Task, err error) error {
		if err != nil {
			return err
		}
		if spec != "" {
			out = append(out, CronRegistration{Spec: spec, Task: task})
		}
		return nil
	}
	for _, tenantID := range tenants {
		task, err := NewLedgerSyncTask(LedgerSyncPayload{TenantID: tenantID})
		if err := add(schedule.LedgerSync, task, err); err != nil {
			return nil, err
		}
		task, err = NewBalanceRefreshTask(tenantID)
		if err := add(schedule.BalanceRefresh, task, err); err != nil {
			return nil, err
		}
		task, err = NewGLIntegrityTask(tenantID)
		if err := add(schedule.GLIntegrity, task, err); err != nil {
			return nil, err
		}
		task, err = NewStockReconcileTask(tenantID)
		if err := add(schedule.StockReconcile, task, err); err != nil {
			return nil, err
		}
	}
	task, err := NewIdempotencyCleanupTask(p.deps.Retention)
	if err := add(schedule.KeyCleanup, task, err); err != nil {
		return nil, err
	}
	return out, nil
}

// run decodes the payload and executes fn under a metrics tracker. Payloads
// that do not decode are never retried.
func run[T any](p *Processor, job string, t *asynq.Task, fn func(T, *slog.Logger) error) (err error) {
	var payload T
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		p.deps.Logger.Error("undecodable task payload", slog.String("job", job), slog.Any("error", err))
		return fmt.Errorf("%s: decode payload: %v: %w", job, err, asynq.SkipRetry)
	}
	tracker := p.deps.Metrics.Track(job)
	defer func() {
		err = tracker.End(err)
	}()
	return fn(payload, p.deps.Logger.With(slog.String("job", job)))
}

func requireTenant(job string, tenantID int64) error {
	if tenantID <= 0 {
		return fmt.Errorf("%s: tenant required: %w", job, asynq.SkipRetry)
	}
	return nil
}
