package stores_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
	"github.com/odyssey-erp/odyssey-ledger/internal/stores"
)

const tenantID = int64(5)

type recordingPublisher struct {
	events []stores.IssuePostedEvent
}

func (p *recordingPublisher) PublishIssuePosted(_ context.Context, evt stores.IssuePostedEvent) error {
	p.events = append(p.events, evt)
	return nil
}

type fixture struct {
	store     *memory.Store
	engine    *inventory.Engine
	items     *inventory.Service
	approvals *approval.Service
	svc       *stores.Service
	publisher *recordingPublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	seq := sequence.NewGenerator(sequence.NewMemoryStore())
	engine := inventory.NewEngine(nil, nil)
	pub := &recordingPublisher{}
	return fixture{
		store:     store,
		engine:    engine,
		items:     inventory.NewService(store.Inventory(), engine, seq, store, nil),
		approvals: approval.NewService(store.Approvals(), store, nil),
		svc: stores.NewService(store.Stores(), engine, seq, store, nil).
			WithApprovals(store.Approvals()).
			WithPublisher(pub).
			WithIdempotency(store),
		publisher: pub,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f fixture) stockedItem(t *testing.T, name, qty, cost string) inventory.Item {
	t.Helper()
	ctx := context.Background()
	cat, err := f.items.CreateCategory(ctx, tenantID, "Cat "+name, nil, 1)
	require.NoError(t, err)
	item, err := f.items.CreateItem(ctx, tenantID, inventory.ItemInput{Name: name, UOM: inventory.UOMEach, CategoryID: cat.ID})
	require.NoError(t, err)
	err = f.store.Inventory().WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		_, _, err := f.engine.Post(ctx, tx, inventory.Movement{
			TenantID: tenantID, ItemID: item.ID, DocType: inventory.DocGRN, DocNumber: "GRN-SEED",
			DocDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Qty: dec(qty), UnitCost: dec(cost),
		})
		return err
	})
	require.NoError(t, err)
	return item
}

func (f fixture) department(t *testing.T, code string) stores.Department {
	t.Helper()
	dept, err := f.svc.CreateDepartment(context.Background(), tenantID, stores.DepartmentInput{Code: code, Name: code + " dept"})
	require.NoError(t, err)
	return dept
}

func (f fixture) approvedRequisition(t *testing.T, deptID, itemID int64, qty string) stores.Requisition {
	t.Helper()
	ctx := context.Background()
	req, err := f.svc.CreateRequisition(ctx, tenantID, stores.RequisitionInput{
		DepartmentID: deptID,
		Lines:        []stores.RequisitionLineInput{{ItemID: itemID, Qty: dec(qty)}},
	})
	require.NoError(t, err)
	_, err = f.svc.SubmitRequisition(ctx, tenantID, req.ID, 1)
	require.NoError(t, err)
	for level := 1; level <= 3; level++ {
		_, err := f.approvals.Decide(ctx, tenantID, approval.KindRequisition, req.ID, shared.Actor{UserID: int64(10 + level), ApprovalLevel: level}, approval.DecisionApproved, "")
		require.NoError(t, err)
	}
	req, err = f.svc.GetRequisition(ctx, tenantID, req.ID)
	require.NoError(t, err)
	require.Equal(t, approval.StatusApproved, req.Status)
	require.Len(t, req.Approvals, 3)
	return req
}

func TestIssueAgainstApprovedRequisition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.stockedItem(t, "Detergent", "20", "6")
	dept := f.department(t, "hk")
	require.Equal(t, "HK", dept.Code)
	req := f.approvedRequisition(t, dept.ID, item.ID, "5")

	issue, err := f.svc.CreateIssue(ctx, tenantID, stores.IssueInput{
		DepartmentID:  dept.ID,
		RequisitionID: &req.ID,
		Lines:         []stores.IssueLineInput{{ItemID: item.ID, Qty: dec("5")}},
		ActorID:       1,
	})
	require.NoError(t, err)
	require.Equal(t, approval.StatusDraft, issue.Status)
	require.Len(t, issue.Lines, 1)
	require.Equal(t, "6", issue.Lines[0].UnitCost.String())
	require.Equal(t, "30", issue.Total().String())

	stocked, err := f.items.GetItem(ctx, tenantID, item.ID)
	require.NoError(t, err)
	require.Equal(t, "15", stocked.OnHandQty.String())
	require.Equal(t, "6", stocked.AvgCost.String())

	req, err = f.svc.GetRequisition(ctx, tenantID, req.ID)
	require.NoError(t, err)
	require.Equal(t, approval.StatusClosed, req.Status)
	require.Equal(t, []int64{issue.ID}, req.IssueIDs)

	allocs, err := f.svc.ListAllocations(ctx, tenantID, stores.AllocationFilter{DepartmentID: dept.ID})
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	require.Equal(t, "30", allocs[0].TotalCost.String())
	require.Equal(t, req.ID, *allocs[0].RequisitionID)

	require.Len(t, f.publisher.events, 1)
	require.Equal(t, issue.ID, f.publisher.events[0].IssueID)

	_, err = f.svc.CreateIssue(ctx, tenantID, stores.IssueInput{
		DepartmentID:  dept.ID,
		RequisitionID: &req.ID,
		Lines:         []stores.IssueLineInput{{ItemID: item.ID, Qty: dec("1")}},
	})
	require.Equal(t, shared.CodeInvalidState, shared.CodeOf(err))
}

func TestIssueRequiresApprovedRequisition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.stockedItem(t, "Bleach", "10", "2")
	dept := f.department(t, "LAUNDRY")
	req, err := f.svc.CreateRequisition(ctx, tenantID, stores.RequisitionInput{
		DepartmentID: dept.ID,
		Lines:        []stores.RequisitionLineInput{{ItemID: item.ID, Qty: dec("1")}},
	})
	require.NoError(t, err)
	require.Contains(t, req.Number, sequence.PrefixRequisition)

	_, err = f.svc.CreateIssue(ctx, tenantID, stores.IssueInput{
		DepartmentID:  dept.ID,
		RequisitionID: &req.ID,
		Lines:         []stores.IssueLineInput{{ItemID: item.ID, Qty: dec("1")}},
	})
	require.Equal(t, shared.KindConflict, shared.KindOf(err))
	require.Equal(t, shared.CodeInvalidState, shared.CodeOf(err))

	stocked, err := f.items.GetItem(ctx, tenantID, item.ID)
	require.NoError(t, err)
	require.Equal(t, "10", stocked.OnHandQty.String())
}

func TestIssueDepartmentMustMatchRequisition(t *testing.T) {
	f := newFixture(t)
	item := f.stockedItem(t, "Polish", "10", "2")
	fo := f.department(t, "FO")
	fb := f.department(t, "FB")
	req := f.approvedRequisition(t, fo.ID, item.ID, "1")

	_, err := f.svc.CreateIssue(context.Background(), tenantID, stores.IssueInput{
		DepartmentID:  fb.ID,
		RequisitionID: &req.ID,
		Lines:         []stores.IssueLineInput{{ItemID: item.ID, Qty: dec("1")}},
	})
	require.ErrorIs(t, err, stores.ErrDepartmentMismatch)
}

func TestShortLineRollsBackWholeIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plenty := f.stockedItem(t, "Sponge", "50", "1")
	scarce := f.stockedItem(t, "Gloves", "2", "3")
	dept := f.department(t, "HK")

	_, err := f.svc.CreateIssue(ctx, tenantID, stores.IssueInput{
		DepartmentID:   dept.ID,
		IdempotencyKey: "iss-1",
		Lines: []stores.IssueLineInput{
			{ItemID: plenty.ID, Qty: dec("10")},
			{ItemID: scarce.ID, Qty: dec("3")},
		},
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	var derr *shared.Error
	require.True(t, errors.As(err, &derr))
	require.Equal(t, 1, derr.Line)

	for _, it := range []inventory.Item{plenty, scarce} {
		rows, err := f.items.ListLedger(ctx, tenantID, inventory.LedgerFilter{ItemID: it.ID})
		require.NoError(t, err)
		require.Len(t, rows, 1)
	}
	got, err := f.items.GetItem(ctx, tenantID, plenty.ID)
	require.NoError(t, err)
	require.Equal(t, "50", got.OnHandQty.String())
	issues, err := f.svc.ListIssues(ctx, tenantID, stores.DocFilter{})
	require.NoError(t, err)
	require.Empty(t, issues)
	allocs, err := f.svc.ListAllocations(ctx, tenantID, stores.AllocationFilter{})
	require.NoError(t, err)
	require.Empty(t, allocs)
	require.Empty(t, f.publisher.events)

	_, err = f.svc.CreateIssue(ctx, tenantID, stores.IssueInput{
		DepartmentID:   dept.ID,
		IdempotencyKey: "iss-1",
		Lines:          []stores.IssueLineInput{{ItemID: plenty.ID, Qty: dec("10")}},
	})
	require.NoError(t, err)
}

func TestDepartmentCosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	towels := f.stockedItem(t, "Towels", "100", "4")
	soap := f.stockedItem(t, "Soap", "100", "0.5")
	hk := f.department(t, "HK")
	fb := f.department(t, "FB")
	f.department(t, "SPA")
	jan := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)

	issue := func(deptID int64, date time.Time, lines ...stores.IssueLineInput) {
		_, err := f.svc.CreateIssue(ctx, tenantID, stores.IssueInput{DepartmentID: deptID, Date: date, Lines: lines})
		require.NoError(t, err)
	}
	issue(hk.ID, jan, stores.IssueLineInput{ItemID: towels.ID, Qty: dec("10")}, stores.IssueLineInput{ItemID: soap.ID, Qty: dec("20")})
	issue(hk.ID, feb, stores.IssueLineInput{ItemID: towels.ID, Qty: dec("1")})
	issue(fb.ID, jan, stores.IssueLineInput{ItemID: soap.ID, Qty: dec("4")})

	costs, err := f.svc.DepartmentCosts(ctx, tenantID, nil, nil)
	require.NoError(t, err)
	require.Len(t, costs, 3)
	require.Equal(t, []string{"FB", "HK", "SPA"}, []string{costs[0].Code, costs[1].Code, costs[2].Code})
	require.Equal(t, "2", costs[0].TotalCost.String())
	require.Equal(t, 1, costs[0].Issues)
	require.Equal(t, "54", costs[1].TotalCost.String())
	require.Equal(t, 2, costs[1].Issues)
	require.True(t, costs[2].TotalCost.IsZero())
	require.Zero(t, costs[2].Issues)

	end := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	costs, err = f.svc.DepartmentCosts(ctx, tenantID, nil, &end)
	require.NoError(t, err)
	require.Equal(t, "50", costs[1].TotalCost.String())
	require.Equal(t, "30", costs[1].Qty.String())
	require.Equal(t, 1, costs[1].Issues)
}

func TestIssueSubmitAndApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.stockedItem(t, "Candles", "5", "1")
	dept := f.department(t, "FB")
	issue, err := f.svc.CreateIssue(ctx, tenantID, stores.IssueInput{DepartmentID: dept.ID, Lines: []stores.IssueLineInput{{ItemID: item.ID, Qty: dec("2")}}})
	require.NoError(t, err)

	submitted, err := f.svc.SubmitIssue(ctx, tenantID, issue.ID, 1)
	require.NoError(t, err)
	require.Equal(t, approval.StatusPendingLevel1, submitted.Status)
	_, err = f.svc.SubmitIssue(ctx, tenantID, issue.ID, 1)
	require.ErrorIs(t, err, stores.ErrInvalidState)

	_, err = f.approvals.Decide(ctx, tenantID, approval.KindIssue, issue.ID, shared.Actor{UserID: 9, ApprovalLevel: 2}, approval.DecisionApproved, "")
	require.ErrorIs(t, err, approval.ErrWrongLevel)
	_, err = f.approvals.Decide(ctx, tenantID, approval.KindIssue, issue.ID, shared.Actor{UserID: 9, ApprovalLevel: 1}, approval.DecisionRejected, "wrong items")
	require.NoError(t, err)

	got, err := f.svc.GetIssue(ctx, tenantID, issue.ID)
	require.NoError(t, err)
	require.Equal(t, approval.StatusRejected, got.Status)
	require.Len(t, got.Approvals, 1)
	require.Equal(t, "wrong items", got.Approvals[0].Remarks)
}

func TestRequisitionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.stockedItem(t, "Pens", "1", "1")
	dept := f.department(t, "ADM")

	_, err := f.svc.CreateRequisition(ctx, tenantID, stores.RequisitionInput{DepartmentID: dept.ID, Lines: []stores.RequisitionLineInput{{ItemID: item.ID, Qty: dec("0")}}})
	require.Equal(t, shared.CodeInvalidQuantity, shared.CodeOf(err))
	_, err = f.svc.CreateRequisition(ctx, tenantID, stores.RequisitionInput{DepartmentID: 999, Lines: []stores.RequisitionLineInput{{ItemID: item.ID, Qty: dec("1")}}})
	require.ErrorIs(t, err, stores.ErrDepartmentNotFound)
	_, err = f.svc.CreateRequisition(ctx, tenantID, stores.RequisitionInput{DepartmentID: dept.ID, Lines: []stores.RequisitionLineInput{{ItemID: 999, Qty: dec("1")}}})
	require.Equal(t, shared.CodeItemNotFound, shared.CodeOf(err))
	_, err = f.svc.CreateDepartment(ctx, tenantID, stores.DepartmentInput{Code: "adm", Name: "Again"})
	require.ErrorIs(t, err, stores.ErrDuplicateDepartment)
}
