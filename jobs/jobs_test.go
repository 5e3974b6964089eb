package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
	"github.com/odyssey-erp/odyssey-ledger/internal/stores"
)

const tenantID = int64(5)

var receivedOn = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

func TestClientPublishesPostingTasks(t *testing.T) {
	rec := &recordingEnqueuer{}
	client := newClient(rec, nil)
	ctx := context.Background()

	require.NoError(t, client.PublishGRNPosted(ctx, procurement.GRNPostedEvent{TenantID: tenantID, GRNID: 9, Number: "GRN-2025-0001"}))
	require.NoError(t, client.PublishIssuePosted(ctx, stores.IssuePostedEvent{TenantID: tenantID, IssueID: 4, DepartmentID: 2}))
	require.Len(t, rec.tasks, 2)
	require.Equal(t, TaskPostGRN, rec.tasks[0].Type())
	require.Equal(t, TaskPostIssue, rec.tasks[1].Type())

	var evt procurement.GRNPostedEvent
	require.NoError(t, json.Unmarshal(rec.tasks[0].Payload(), &evt))
	require.Equal(t, int64(9), evt.GRNID)

	rec.err = asynq.ErrTaskIDConflict
	require.NoError(t, client.PublishGRNPosted(ctx, procurement.GRNPostedEvent{TenantID: tenantID, GRNID: 9}))
	rec.err = errors.New("redis down")
	require.Error(t, client.PublishIssuePosted(ctx, stores.IssuePostedEvent{TenantID: tenantID, IssueID: 4}))
}

func TestTaskIDsAreStablePerDocument(t *testing.T) {
	require.Equal(t, "ledger:post_grn:5:9", taskID(TaskPostGRN, tenantID, 9))
	require.NotEqual(t, taskID(TaskPostGRN, tenantID, 9), taskID(TaskPostIssue, tenantID, 9))
}

type ledgerFixture struct {
	store     *memory.Store
	ledger    *accounting.Service
	items     *inventory.Service
	procure   *procurement.Service
	processor *Processor
	accounts  map[string]accounting.Account
}

func newLedgerFixture(t *testing.T) ledgerFixture {
	t.Helper()
	store := memory.New()
	seq := sequence.NewGenerator(sequence.NewMemoryStore())
	engine := inventory.NewEngine(nil, nil)
	ledger := accounting.NewService(store.Accounting(), seq, store, nil)
	items := inventory.NewService(store.Inventory(), engine, seq, store, nil)
	procure := procurement.NewService(store.Procurement(), engine, seq, store, nil)
	issues := stores.NewService(store.Stores(), engine, seq, store, nil)
	hooks := integration.NewHooks(ledger, store.Mappings(), procure, issues, nil)
	processor := NewProcessor(Deps{
		Poster:   hooks,
		Balances: ledger,
		Reports:  reports.NewService(store, store.Inventory(), nil, nil),
		Items:    items,
		Keys:     store,
		Metrics:  jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}).WithClock(func() time.Time { return receivedOn.AddDate(0, 0, 1) })
	f := ledgerFixture{store: store, ledger: ledger, items: items, procure: procure, processor: processor, accounts: map[string]accounting.Account{}}
	for _, in := range []accounting.AccountInput{
		{Name: "Inventory", Type: accounting.AccountTypeAsset, Subtype: accounting.SubtypeInventory},
		{Name: "GR/IR Clearing", Type: accounting.AccountTypeLiability},
	} {
		acc, err := ledger.CreateAccount(context.Background(), tenantID, in)
		require.NoError(t, err)
		f.accounts[in.Name] = acc
	}
	return f
}

func (f ledgerFixture) mapGRN(t *testing.T) {
	t.Helper()
	for key, name := range map[string]string{mappings.KeyGRNInventory: "Inventory", mappings.KeyGRNClearing: "GR/IR Clearing"} {
		require.NoError(t, f.store.Mappings().Upsert(context.Background(), mappings.AccountMapping{
			TenantID: tenantID, Module: mappings.ModuleGRN, Key: key, AccountID: f.accounts[name].ID,
		}))
	}
}

func (f ledgerFixture) receive(t *testing.T) procurement.GoodsReceipt {
	t.Helper()
	ctx := context.Background()
	cat, err := f.items.CreateCategory(ctx, tenantID, "Linen", nil, 1)
	require.NoError(t, err)
	item, err := f.items.CreateItem(ctx, tenantID, inventory.ItemInput{Name: "Bath Towel", UOM: inventory.UOMEach, CategoryID: cat.ID})
	require.NoError(t, err)
	sup, err := f.procure.CreateSupplier(ctx, tenantID, procurement.SupplierInput{Code: "LIN", Name: "Linen Wholesale"})
	require.NoError(t, err)
	po, err := f.procure.CreatePurchaseOrder(ctx, tenantID, procurement.POInput{
		SupplierID: sup.ID,
		Lines:      []procurement.POLineInput{{ItemID: item.ID, Qty: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(12)}},
	})
	require.NoError(t, err)
	grn, err := f.procure.CreateGRN(ctx, tenantID, procurement.GRNInput{
		POID:  po.ID,
		Date:  receivedOn,
		Lines: []procurement.GRNLineInput{{ItemID: item.ID, Qty: decimal.NewFromInt(4)}},
	})
	require.NoError(t, err)
	return grn
}

func (f ledgerFixture) entries(t *testing.T) []accounting.JournalEntry {
	t.Helper()
	entries, err := f.ledger.ListEntries(context.Background(), tenantID, accounting.EntryFilter{})
	require.NoError(t, err)
	return entries
}

func TestHandlePostGRN(t *testing.T) {
	f := newLedgerFixture(t)
	f.mapGRN(t)
	grn := f.receive(t)
	ctx := context.Background()

	task, err := NewPostGRNTask(procurement.GRNPostedEvent{TenantID: tenantID, GRNID: grn.ID, Number: grn.Number})
	require.NoError(t, err)
	require.NoError(t, f.processor.HandlePostGRN(ctx, task))
	require.NoError(t, f.processor.HandlePostGRN(ctx, task))
	entries := f.entries(t)
	require.Len(t, entries, 1)
	debit, credit := entries[0].Totals()
	require.Equal(t, accounting.Amount(4800), debit)
	require.Equal(t, debit, credit)

	bad := asynq.NewTask(TaskPostGRN, []byte("{"))
	require.ErrorIs(t, f.processor.HandlePostGRN(ctx, bad), asynq.SkipRetry)

	missing, err := NewPostGRNTask(procurement.GRNPostedEvent{TenantID: tenantID, GRNID: 999})
	require.NoError(t, err)
	require.ErrorIs(t, f.processor.HandlePostGRN(ctx, missing), asynq.SkipRetry)

	noTenant, err := NewPostGRNTask(procurement.GRNPostedEvent{GRNID: grn.ID})
	require.NoError(t, err)
	require.ErrorIs(t, f.processor.HandlePostGRN(ctx, noTenant), asynq.SkipRetry)
}

func TestLedgerSyncCatchesUpUnmappedReceipt(t *testing.T) {
	f := newLedgerFixture(t)
	grn := f.receive(t)
	ctx := context.Background()

	task, err := NewPostGRNTask(procurement.GRNPostedEvent{TenantID: tenantID, GRNID: grn.ID})
	require.NoError(t, err)
	err = f.processor.HandlePostGRN(ctx, task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, mappings.ErrMappingNotFound)
	require.Empty(t, f.entries(t))

	f.mapGRN(t)
	sync, err := NewLedgerSyncTask(LedgerSyncPayload{TenantID: tenantID})
	require.NoError(t, err)
	require.NoError(t, f.processor.HandleLedgerSync(ctx, sync))
	require.Len(t, f.entries(t), 1)
}

func TestGLIntegrityOnCleanLedger(t *testing.T) {
	f := newLedgerFixture(t)
	f.mapGRN(t)
	grn := f.receive(t)
	ctx := context.Background()
	task, err := NewPostGRNTask(procurement.GRNPostedEvent{TenantID: tenantID, GRNID: grn.ID})
	require.NoError(t, err)
	require.NoError(t, f.processor.HandlePostGRN(ctx, task))

	check, err := NewGLIntegrityTask(tenantID)
	require.NoError(t, err)
	require.NoError(t, f.processor.HandleGLIntegrity(ctx, check))

	refresh, err := NewBalanceRefreshTask(tenantID)
	require.NoError(t, err)
	require.NoError(t, f.processor.HandleBalanceRefresh(ctx, refresh))

	reconcile, err := NewStockReconcileTask(tenantID)
	require.NoError(t, err)
	require.NoError(t, f.processor.HandleStockReconcile(ctx, reconcile))
}

type brokenReports struct {
	net       accounting.Amount
	divergent int
}

func (b brokenReports) TrialBalance(context.Context, int64, *time.Time, *time.Time) (reports.TrialBalance, error) {
	return reports.TrialBalance{TotalDebit: 100 + b.net, TotalCredit: 100, Net: b.net}, nil
}

func (b brokenReports) StockBalances(context.Context, int64, reports.StockFilter) (reports.StockBalances, error) {
	return reports.StockBalances{Totals: reports.StockTotals{Divergent: b.divergent}}, nil
}

type brokenItems struct{}

func (brokenItems) ListItems(context.Context, int64, inventory.ItemFilter) ([]inventory.Item, error) {
	return []inventory.Item{{ID: 1}, {ID: 2}}, nil
}

func (brokenItems) VerifyItem(_ context.Context, _ int64, itemID int64) error {
	if itemID == 2 {
		return shared.Integrity(shared.CodeLedgerChainBroken, "inventory: chain broken at seq 3")
	}
	return nil
}

func TestIntegrityViolationsAreNotRetried(t *testing.T) {
	p := NewProcessor(Deps{Reports: brokenReports{net: 1, divergent: 2}, Items: brokenItems{}})
	ctx := context.Background()

	err := p.RunGLIntegrityCheck(ctx, tenantID)
	require.ErrorIs(t, err, shared.Integrity(shared.CodeTrialBalanceNotZero, ""))
	require.ErrorIs(t, err, shared.Integrity(shared.CodeLedgerChainBroken, ""))

	check, err := NewGLIntegrityTask(tenantID)
	require.NoError(t, err)
	require.ErrorIs(t, p.HandleGLIntegrity(ctx, check), asynq.SkipRetry)

	reconcile, err := NewStockReconcileTask(tenantID)
	require.NoError(t, err)
	err = p.HandleStockReconcile(ctx, reconcile)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Equal(t, shared.CodeBalanceDivergence, shared.CodeOf(err))
}

type keyCleaner struct{ retention time.Duration }

func (k *keyCleaner) Cleanup(_ context.Context, olderThan time.Duration) error {
	k.retention = olderThan
	return nil
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	keys := &keyCleaner{}
	p := NewProcessor(Deps{Keys: keys, Retention: 48 * time.Hour})
	ctx := context.Background()

	require.NoError(t, p.HandleIdempotencyCleanup(ctx, asynq.NewTask(TaskIdempotencyCleanup, []byte(`{}`))))
	require.Equal(t, 48*time.Hour, keys.retention)

	task, err := NewIdempotencyCleanupTask(6 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, p.HandleIdempotencyCleanup(ctx, task))
	require.Equal(t, 6*time.Hour, keys.retention)
}

func TestCronRegistrations(t *testing.T) {
	p := NewProcessor(Deps{})
	regs, err := p.Cron(DefaultSchedule, []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, regs, 9)
	require.Equal(t, TaskIdempotencyCleanup, regs[len(regs)-1].Task.Type())

	partial := DefaultSchedule
	partial.StockReconcile = ""
	regs, err = p.Cron(partial, []int64{1})
	require.NoError(t, err)
	require.Len(t, regs, 4)
	for _, r := range regs {
		require.NotEqual(t, TaskStockReconcile, r.Task.Type())
	}
	require.Len(t, p.Handlers(), 7)
}

type fakeInspector map[string]*asynq.QueueInfo

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := f[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthReportsQueues(t *testing.T) {
	h := &Handler{
		inspector: fakeInspector{QueueCritical: {Queue: QueueCritical, Pending: 3, Retry: 1}},
		logger:    nil,
	}
	r := chi.NewRouter()
	h.MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out []queueHealth
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Equal(t, []queueHealth{
		{Queue: QueueCritical, Pending: 3, Retry: 1},
		{Queue: QueueDefault},
	}, out)

	empty := NewHandler(nil, nil)
	rec = httptest.NewRecorder()
	empty.health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
