package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/stores"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries ledger postings ahead of maintenance work.
	QueueCritical = "critical"

	// TaskPostGRN posts a goods receipt to the general ledger.
	TaskPostGRN = "ledger:post_grn"
	// TaskPostIssue posts a store issue to the general ledger.
	TaskPostIssue = "ledger:post_issue"
	// TaskLedgerSync posts receipts and issues that have no journal entry yet.
	TaskLedgerSync = "ledger:sync"
	// TaskGLIntegrity checks the trial balance and every item's stock chain.
	TaskGLIntegrity = "ledger:integrity"
	// TaskBalanceRefresh rebuilds the account balance cache.
	TaskBalanceRefresh = "ledger:balance_refresh"
	// TaskStockReconcile compares stored stock balances with a reconstruction.
	TaskStockReconcile = "inventory:reconcile"
	// TaskIdempotencyCleanup drops expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// TenantPayload scopes a maintenance task to one tenant.
type TenantPayload struct {
	TenantID int64 `json:"tenant_id"`
}

// LedgerSyncPayload selects the documents a sync run looks at. A zero Since
// falls back to the worker's lookback window.
type LedgerSyncPayload struct {
	TenantID int64      `json:"tenant_id"`
	Since    *time.Time `json:"since,omitempty"`
}

// CleanupPayload configures idempotency key retention.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

func newTask(typ string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, data, opts...), nil
}

// NewPostGRNTask constructs the ledger posting task for a goods receipt. The
// task ID is derived from the receipt so duplicate publishes collapse.
func NewPostGRNTask(evt procurement.GRNPostedEvent) (*asynq.Task, error) {
	return newTask(TaskPostGRN, evt,
		asynq.Queue(QueueCritical),
		asynq.TaskID(taskID(TaskPostGRN, evt.TenantID, evt.GRNID)),
		asynq.MaxRetry(10))
}

// NewPostIssueTask constructs the ledger posting task for a store issue.
func NewPostIssueTask(evt stores.IssuePostedEvent) (*asynq.Task, error) {
	return newTask(TaskPostIssue, evt,
		asynq.Queue(QueueCritical),
		asynq.TaskID(taskID(TaskPostIssue, evt.TenantID, evt.IssueID)),
		asynq.MaxRetry(10))
}

// NewLedgerSyncTask constructs a catch-up sync task.
func NewLedgerSyncTask(payload LedgerSyncPayload) (*asynq.Task, error) {
	return newTask(TaskLedgerSync, payload, asynq.Queue(QueueDefault))
}

// NewGLIntegrityTask constructs the ledger integrity check.
func NewGLIntegrityTask(tenantID int64) (*asynq.Task, error) {
	return newTask(TaskGLIntegrity, TenantPayload{TenantID: tenantID}, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// NewBalanceRefreshTask constructs the balance cache refresh.
func NewBalanceRefreshTask(tenantID int64) (*asynq.Task, error) {
	return newTask(TaskBalanceRefresh, TenantPayload{TenantID: tenantID}, asynq.Queue(QueueDefault))
}

// NewStockReconcileTask constructs the stock reconciliation task.
func NewStockReconcileTask(tenantID int64) (*asynq.Task, error) {
	return newTask(TaskStockReconcile, TenantPayload{TenantID: tenantID}, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// NewIdempotencyCleanupTask constructs the key cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, CleanupPayload{RetentionHours: int(retention / time.Hour)}, asynq.Queue(QueueDefault))
}

func taskID(typ string, tenantID, docID int64) string {
	return typ + ":" + itoa64(tenantID) + ":" + itoa64(docID)
}
