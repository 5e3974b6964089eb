package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
	"github.com/odyssey-erp/odyssey-ledger/internal/stores"
)

const tenantID = int64(8)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store       *memory.Store
	ledger      *accounting.Service
	items       *inventory.Service
	procurement *procurement.Service
	stores      *stores.Service
	hooks       *integration.Hooks
	accounts    map[string]accounting.Account
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	seq := sequence.NewGenerator(sequence.NewMemoryStore())
	engine := inventory.NewEngine(nil, nil)
	ledger := accounting.NewService(store.Accounting(), seq, store, nil)
	proc := procurement.NewService(store.Procurement(), engine, seq, store, nil)
	st := stores.NewService(store.Stores(), engine, seq, store, nil)
	hooks := integration.NewHooks(ledger, store.Mappings(), proc, st, nil)
	f := fixture{
		store:       store,
		ledger:      ledger,
		items:       inventory.NewService(store.Inventory(), engine, seq, store, nil),
		procurement: proc.WithPublisher(hooks),
		stores:      st.WithPublisher(hooks),
		hooks:       hooks,
		accounts:    map[string]accounting.Account{},
	}
	for _, in := range []accounting.AccountInput{
		{Name: "Inventory", Type: accounting.AccountTypeAsset, Subtype: accounting.SubtypeInventory},
		{Name: "GR/IR Clearing", Type: accounting.AccountTypeLiability},
		{Name: "Housekeeping Supplies", Type: accounting.AccountTypeExpense, DepartmentCode: "HK"},
		{Name: "General Supplies", Type: accounting.AccountTypeExpense},
	} {
		acc, err := ledger.CreateAccount(context.Background(), tenantID, in)
		require.NoError(t, err)
		f.accounts[in.Name] = acc
	}
	return f
}

func (f fixture) mapAccounts(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, m := range []mappings.AccountMapping{
		{Module: mappings.ModuleGRN, Key: mappings.KeyGRNInventory, AccountID: f.accounts["Inventory"].ID},
		{Module: mappings.ModuleGRN, Key: mappings.KeyGRNClearing, AccountID: f.accounts["GR/IR Clearing"].ID},
		{Module: mappings.ModuleIssue, Key: mappings.KeyIssueInventory, AccountID: f.accounts["Inventory"].ID},
		{Module: mappings.ModuleIssue, Key: mappings.KeyIssueExpense, AccountID: f.accounts["General Supplies"].ID},
	} {
		m.TenantID = tenantID
		require.NoError(t, f.store.Mappings().Upsert(ctx, m))
	}
}

func (f fixture) receive(t *testing.T, qty int64, price string) procurement.GoodsReceipt {
	t.Helper()
	ctx := context.Background()
	cat, err := f.items.CreateCategory(ctx, tenantID, "Amenities", nil, 1)
	require.NoError(t, err)
	item, err := f.items.CreateItem(ctx, tenantID, inventory.ItemInput{Name: "Shampoo", UOM: inventory.UOMEach, CategoryID: cat.ID})
	require.NoError(t, err)
	sup, err := f.procurement.CreateSupplier(ctx, tenantID, procurement.SupplierInput{Code: "HSK", Name: "Housekeeping Supply Co"})
	require.NoError(t, err)
	po, err := f.procurement.CreatePurchaseOrder(ctx, tenantID, procurement.POInput{
		SupplierID: sup.ID,
		Lines:      []procurement.POLineInput{{ItemID: item.ID, Qty: decimal.NewFromInt(qty), UnitPrice: decimal.RequireFromString(price)}},
	})
	require.NoError(t, err)
	grn, err := f.procurement.CreateGRN(ctx, tenantID, procurement.GRNInput{
		POID:  po.ID,
		Date:  epoch.AddDate(0, 0, 2),
		Lines: []procurement.GRNLineInput{{ItemID: item.ID, Qty: decimal.NewFromInt(qty)}},
	})
	require.NoError(t, err)
	return grn
}

func (f fixture) department(t *testing.T, code string) stores.Department {
	t.Helper()
	dep, err := f.stores.CreateDepartment(context.Background(), tenantID, stores.DepartmentInput{Code: code, Name: code})
	require.NoError(t, err)
	return dep
}

func (f fixture) balance(t *testing.T, name string) accounting.Amount {
	t.Helper()
	bal, err := f.ledger.AccountBalance(context.Background(), tenantID, f.accounts[name].ID)
	require.NoError(t, err)
	return bal.Balance
}

func TestGRNAndIssuesPostToLedger(t *testing.T) {
	f := newFixture(t)
	f.mapAccounts(t)
	ctx := context.Background()

	grn := f.receive(t, 10, "2.505")
	require.Equal(t, accounting.Amount(2505), f.balance(t, "Inventory"))
	require.Equal(t, accounting.Amount(-2505), f.balance(t, "GR/IR Clearing"))

	hk := f.department(t, "hk")
	fb := f.department(t, "FB")
	itemID := grn.Lines[0].ItemID
	_, err := f.stores.CreateIssue(ctx, tenantID, stores.IssueInput{
		DepartmentID: hk.ID,
		Date:         epoch.AddDate(0, 0, 3),
		Lines:        []stores.IssueLineInput{{ItemID: itemID, Qty: decimal.NewFromInt(4)}},
	})
	require.NoError(t, err)
	_, err = f.stores.CreateIssue(ctx, tenantID, stores.IssueInput{
		DepartmentID: fb.ID,
		Date:         epoch.AddDate(0, 0, 4),
		Lines:        []stores.IssueLineInput{{ItemID: itemID, Qty: decimal.NewFromInt(1)}},
	})
	require.NoError(t, err)

	require.Equal(t, accounting.Amount(1002), f.balance(t, "Housekeeping Supplies"))
	require.Equal(t, accounting.Amount(251), f.balance(t, "General Supplies"))
	require.Equal(t, accounting.Amount(2505-1002-251), f.balance(t, "Inventory"))

	res, err := f.hooks.SyncPending(ctx, tenantID, epoch)
	require.NoError(t, err)
	require.Equal(t, integration.SyncResult{Skipped: 3}, res)

	entries, err := f.ledger.ListEntries(ctx, tenantID, accounting.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		require.True(t, e.Locked())
	}
}

func TestSyncPendingCatchesUpAfterMissingMapping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grn := f.receive(t, 3, "5")
	err := f.hooks.HandleGRNPosted(ctx, procurement.GRNPostedEvent{TenantID: tenantID, GRNID: grn.ID})
	require.ErrorIs(t, err, mappings.ErrMappingNotFound)

	res, err := f.hooks.SyncPending(ctx, tenantID, epoch)
	require.Error(t, err)
	require.Equal(t, 1, res.Failed)

	f.mapAccounts(t)
	res, err = f.hooks.SyncPending(ctx, tenantID, epoch)
	require.NoError(t, err)
	require.Equal(t, integration.SyncResult{Posted: 1}, res)
	require.Equal(t, accounting.Amount(1500), f.balance(t, "Inventory"))

	res, err = f.hooks.SyncPending(ctx, tenantID, epoch)
	require.NoError(t, err)
	require.Equal(t, integration.SyncResult{Skipped: 1}, res)
}
