package procurement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
	"github.com/odyssey-erp/odyssey-ledger/internal/stores"
)

const tenantID = int64(3)

type recordingPublisher struct {
	mu     sync.Mutex
	events []procurement.GRNPostedEvent
	err    error
}

func (p *recordingPublisher) PublishGRNPosted(_ context.Context, evt procurement.GRNPostedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

type fixture struct {
	store     *memory.Store
	engine    *inventory.Engine
	items     *inventory.Service
	svc       *procurement.Service
	publisher *recordingPublisher
	supplier  procurement.Supplier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	seq := sequence.NewGenerator(sequence.NewMemoryStore())
	engine := inventory.NewEngine(nil, nil)
	pub := &recordingPublisher{}
	svc := procurement.NewService(store.Procurement(), engine, seq, store, nil).
		WithApprovals(store.Approvals()).
		WithPublisher(pub).
		WithIdempotency(store)
	sup, err := svc.CreateSupplier(context.Background(), tenantID, procurement.SupplierInput{Code: "dry-01", Name: "Dry Goods Trading"})
	require.NoError(t, err)
	return fixture{
		store:     store,
		engine:    engine,
		items:     inventory.NewService(store.Inventory(), engine, seq, store, nil),
		svc:       svc,
		publisher: pub,
		supplier:  sup,
	}
}

func (f fixture) item(t *testing.T, name string) inventory.Item {
	t.Helper()
	ctx := context.Background()
	cat, err := f.items.CreateCategory(ctx, tenantID, "Cat "+name, nil, 1)
	require.NoError(t, err)
	item, err := f.items.CreateItem(ctx, tenantID, inventory.ItemInput{Name: name, UOM: inventory.UOMEach, CategoryID: cat.ID})
	require.NoError(t, err)
	return item
}

func (f fixture) order(t *testing.T, lines ...procurement.POLineInput) procurement.PurchaseOrder {
	t.Helper()
	po, err := f.svc.CreatePurchaseOrder(context.Background(), tenantID, procurement.POInput{SupplierID: f.supplier.ID, Lines: lines, ActorID: 1})
	require.NoError(t, err)
	return po
}

func qty(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func TestPartialThenFullReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Rice")
	po := f.order(t, procurement.POLineInput{ItemID: item.ID, Qty: qty(10), UnitPrice: qty(4)})
	require.Equal(t, approval.StatusDraft, po.Status)

	grn, err := f.svc.CreateGRN(ctx, tenantID, procurement.GRNInput{POID: po.ID, Lines: []procurement.GRNLineInput{{ItemID: item.ID, Qty: qty(6)}}, ActorID: 1})
	require.NoError(t, err)
	require.Len(t, grn.Lines, 1)
	require.NotZero(t, grn.Lines[0].LedgerRowID)
	require.Equal(t, "24", grn.Total().String())

	got, err := f.svc.GetPurchaseOrder(ctx, tenantID, po.ID)
	require.NoError(t, err)
	require.Equal(t, approval.StatusPartiallyReceived, got.Status)
	require.Equal(t, "6", got.Lines[0].ReceivedQty.String())

	_, err = f.svc.CreateGRN(ctx, tenantID, procurement.GRNInput{POID: po.ID, Lines: []procurement.GRNLineInput{{ItemID: item.ID, Qty: qty(4)}}})
	require.NoError(t, err)
	got, err = f.svc.GetPurchaseOrder(ctx, tenantID, po.ID)
	require.NoError(t, err)
	require.Equal(t, approval.StatusReceived, got.Status)

	_, err = f.svc.CreateGRN(ctx, tenantID, procurement.GRNInput{POID: po.ID, Lines: []procurement.GRNLineInput{{ItemID: item.ID, Qty: qty(1)}}})
	require.ErrorIs(t, err, procurement.ErrInvalidPOState)

	stocked, err := f.items.GetItem(ctx, tenantID, item.ID)
	require.NoError(t, err)
	require.Equal(t, "10", stocked.OnHandQty.String())
	require.Equal(t, "4", stocked.AvgCost.String())
	require.Len(t, f.publisher.events, 2)
}

func TestOverReceiptLeavesPOUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Oil")
	po := f.order(t, procurement.POLineInput{ItemID: item.ID, Qty: qty(10), UnitPrice: qty(2)})
	_, err := f.svc.CreateGRN(ctx, tenantID, procurement.GRNInput{POID: po.ID, Lines: []procurement.GRNLineInput{{ItemID: item.ID, Qty: qty(6)}}})
	require.NoError(t, err)

	_, err = f.svc.CreateGRN(ctx, tenantID, procurement.GRNInput{POID: po.ID, Lines: []procurement.GRNLineInput{{ItemID: item.ID, Qty: qty(5)}}})
	require.ErrorIs(t, err, procurement.ErrOverReceipt)
	var derr *shared.Error
	require.True(t, errors.As(err, &derr))
	require.Equal(t, 0, derr.Line)

	got, err := f.svc.GetPurchaseOrder(ctx, tenantID, po.ID)
	require.NoError(t, err)
	require.Equal(t, approval.StatusPartiallyReceived, got.Status)
	require.Equal(t, "6", got.Lines[0].ReceivedQty.String())
	grns, err := f.svc.ListGRNs(ctx, tenantID, procurement.GRNFilter{POID: po.ID})
	require.NoError(t, err)
	require.Len(t, grns, 1)
}

func TestCancelledPOCannotBeReceived(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Flour")
	po := f.order(t, procurement.POLineInput{ItemID: item.ID, Qty: qty(2), UnitPrice: qty(1)})

	submitted, err := f.svc.SubmitPurchaseOrder(ctx, tenantID, po.ID, 1)
	require.NoError(t, err)
	require.Equal(t, approval.StatusPendingLevel1, submitted.Status)
	_, err = f.svc.SubmitPurchaseOrder(ctx, tenantID, po.ID, 1)
	require.ErrorIs(t, err, procurement.ErrInvalidState)

	_, err = f.svc.CancelPurchaseOrder(ctx, tenantID, po.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.CreateGRN(ctx, tenantID, procurement.GRNInput{POID: po.ID, Lines: []procurement.GRNLineInput{{ItemID: item.ID, Qty: qty(1)}}})
	require.ErrorIs(t, err, procurement.ErrInvalidPOState)
	_, err = f.svc.CancelPurchaseOrder(ctx, tenantID, po.ID, 1)
	require.ErrorIs(t, err, procurement.ErrInvalidState)
}

func TestReceiptRejectsItemNotOnPO(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ordered := f.item(t, "Sugar")
	other := f.item(t, "Salt")
	po := f.order(t, procurement.POLineInput{ItemID: ordered.ID, Qty: qty(2), UnitPrice: qty(1)})

	_, err := f.svc.CreateGRN(ctx, tenantID, procurement.GRNInput{POID: po.ID, Lines: []procurement.GRNLineInput{
		{ItemID: ordered.ID, Qty: qty(1)},
		{ItemID: other.ID, Qty: qty(1)},
	}})
	require.ErrorIs(t, err, procurement.ErrItemNotOnPO)
	var derr *shared.Error
	require.True(t, errors.As(err, &derr))
	require.Equal(t, 1, derr.Line)
}

func TestFailedReceiptRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kept := f.item(t, "Beans")
	dropped := f.item(t, "Lentils")
	po := f.order(t,
		procurement.POLineInput{ItemID: kept.ID, Qty: qty(5), UnitPrice: qty(3)},
		procurement.POLineInput{ItemID: dropped.ID, Qty: qty(5), UnitPrice: qty(3)},
	)
	require.NoError(t, f.items.DeleteItem(ctx, tenantID, dropped.ID, 1))

	_, err := f.svc.CreateGRN(ctx, tenantID, procurement.GRNInput{POID: po.ID, IdempotencyKey: "grn-1", Lines: []procurement.GRNLineInput{
		{ItemID: kept.ID, Qty: qty(5)},
		{ItemID: dropped.ID, Qty: qty(5)},
	}})
	require.ErrorIs(t, err, inventory.ErrItemNotFound)

	rows, err := f.items.ListLedger(ctx, tenantID, inventory.LedgerFilter{ItemID: kept.ID})
	require.NoError(t, err)
	require.Empty(t, rows)
	got, err := f.svc.GetPurchaseOrder(ctx, tenantID, po.ID)
	require.NoError(t, err)
	require.Equal(t, approval.StatusDraft, got.Status)
	require.True(t, got.Lines[0].ReceivedQty.IsZero())
	require.Empty(t, f.publisher.events)

	// the key is released so the client may retry
	_, err = f.svc.CreateGRN(ctx, tenantID, procurement.GRNInput{POID: po.ID, IdempotencyKey: "grn-1", Lines: []procurement.GRNLineInput{{ItemID: kept.ID, Qty: qty(5)}}})
	require.NoError(t, err)
}

func TestDuplicateIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Milk")
	po := f.order(t, procurement.POLineInput{ItemID: item.ID, Qty: qty(10), UnitPrice: qty(1)})
	input := procurement.GRNInput{POID: po.ID, IdempotencyKey: "abc", Lines: []procurement.GRNLineInput{{ItemID: item.ID, Qty: qty(2)}}}

	_, err := f.svc.CreateGRN(ctx, tenantID, input)
	require.NoError(t, err)
	_, err = f.svc.CreateGRN(ctx, tenantID, input)
	require.Equal(t, shared.CodeDuplicateRequest, shared.CodeOf(err))

	stocked, err := f.items.GetItem(ctx, tenantID, item.ID)
	require.NoError(t, err)
	require.Equal(t, "2", stocked.OnHandQty.String())
}

func TestPublisherFailureDoesNotFailReceipt(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("queue down")
	item := f.item(t, "Tea")
	po := f.order(t, procurement.POLineInput{ItemID: item.ID, Qty: qty(1), UnitPrice: qty(9)})
	received := time.Date(2025, 4, 3, 10, 0, 0, 0, time.UTC)

	grn, err := f.svc.CreateGRN(context.Background(), tenantID, procurement.GRNInput{POID: po.ID, Date: received, ActorID: 5, Lines: []procurement.GRNLineInput{{ItemID: item.ID, Qty: qty(1)}}})
	require.NoError(t, err)
	require.Len(t, f.publisher.events, 1)
	require.Equal(t, grn.ID, f.publisher.events[0].GRNID)
	require.True(t, received.Equal(f.publisher.events[0].ReceivedAt))
}

func TestPurchaseOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Coffee")
	foreign, err := f.svc.CreateSupplier(ctx, tenantID+1, procurement.SupplierInput{Code: "dry-01", Name: "Dry Goods Trading"})
	require.NoError(t, err)
	cases := []struct {
		name  string
		input procurement.POInput
		code  shared.Code
		line  int
	}{
		{"no supplier", procurement.POInput{Lines: []procurement.POLineInput{{ItemID: item.ID, Qty: qty(1)}}}, shared.CodeInvalidInput, -1},
		{"no lines", procurement.POInput{SupplierID: 1}, shared.CodeInvalidInput, -1},
		{"zero qty", procurement.POInput{SupplierID: f.supplier.ID, Lines: []procurement.POLineInput{{ItemID: item.ID}}}, shared.CodeInvalidQuantity, 0},
		{"negative price", procurement.POInput{SupplierID: f.supplier.ID, Lines: []procurement.POLineInput{{ItemID: item.ID, Qty: qty(1), UnitPrice: qty(-1)}}}, shared.CodeInvalidCost, 0},
		{"duplicate item", procurement.POInput{SupplierID: f.supplier.ID, Lines: []procurement.POLineInput{{ItemID: item.ID, Qty: qty(1)}, {ItemID: item.ID, Qty: qty(1)}}}, shared.CodeInvalidInput, 1},
		{"unknown item", procurement.POInput{SupplierID: f.supplier.ID, Lines: []procurement.POLineInput{{ItemID: item.ID, Qty: qty(1)}, {ItemID: 999, Qty: qty(1)}}}, shared.CodeItemNotFound, 1},
		{"unknown supplier", procurement.POInput{SupplierID: 9999, Lines: []procurement.POLineInput{{ItemID: item.ID, Qty: qty(1)}}}, shared.CodeSupplierNotFound, -1},
		{"other tenant supplier", procurement.POInput{SupplierID: foreign.ID, Lines: []procurement.POLineInput{{ItemID: item.ID, Qty: qty(1)}}}, shared.CodeSupplierNotFound, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreatePurchaseOrder(ctx, tenantID, tc.input)
			var derr *shared.Error
			require.True(t, errors.As(err, &derr))
			require.Equal(t, tc.code, derr.Code)
			require.Equal(t, tc.line, derr.Line)
		})
	}
}

func TestApprovalHistoryIsAttached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Water")
	po := f.order(t, procurement.POLineInput{ItemID: item.ID, Qty: qty(1), UnitPrice: qty(1)})
	_, err := f.svc.SubmitPurchaseOrder(ctx, tenantID, po.ID, 1)
	require.NoError(t, err)

	approvals := approval.NewService(f.store.Approvals(), f.store, nil)
	res, err := approvals.Decide(ctx, tenantID, approval.KindPurchaseOrder, po.ID, shared.Actor{UserID: 2, ApprovalLevel: 1}, approval.DecisionApproved, "ok")
	require.NoError(t, err)
	require.Equal(t, approval.StatusPendingLevel2, res.Status)

	got, err := f.svc.GetPurchaseOrder(ctx, tenantID, po.ID)
	require.NoError(t, err)
	require.Equal(t, approval.StatusPendingLevel2, got.Status)
	require.Len(t, got.Approvals, 1)
	require.Equal(t, int64(2), got.Approvals[0].ActorID)

	pos, err := f.svc.ListPurchaseOrders(ctx, tenantID, procurement.POFilter{Status: approval.StatusPendingLevel2})
	require.NoError(t, err)
	require.Len(t, pos, 1)
}

func TestSuppliers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.Equal(t, "DRY-01", f.supplier.Code)
	_, err := f.svc.CreateSupplier(ctx, tenantID, procurement.SupplierInput{Code: " Dry-01 ", Name: "Another"})
	require.ErrorIs(t, err, procurement.ErrDuplicateSupplier)
	_, err = f.svc.CreateSupplier(ctx, tenantID, procurement.SupplierInput{Code: "X"})
	require.Equal(t, shared.CodeInvalidInput, shared.CodeOf(err))

	bakery, err := f.svc.CreateSupplier(ctx, tenantID, procurement.SupplierInput{Code: "bak", Name: "Morning Bakery", Phone: " 555-0101 "})
	require.NoError(t, err)
	require.Equal(t, "555-0101", bakery.Phone)

	list, err := f.svc.ListSuppliers(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "BAK", list[0].Code)

	got, err := f.svc.GetSupplier(ctx, tenantID, bakery.ID)
	require.NoError(t, err)
	require.Equal(t, "Morning Bakery", got.Name)
	_, err = f.svc.GetSupplier(ctx, tenantID+1, bakery.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	// a rejected order does not consume a number
	item := f.item(t, "Flour")
	_, err = f.svc.CreatePurchaseOrder(ctx, tenantID, procurement.POInput{SupplierID: 9999, Lines: []procurement.POLineInput{{ItemID: item.ID, Qty: qty(1)}}})
	require.ErrorIs(t, err, procurement.ErrUnknownSupplier)
	po := f.order(t, procurement.POLineInput{ItemID: item.ID, Qty: qty(1)})
	require.Equal(t, f.supplier.ID, po.SupplierID)
	require.Contains(t, po.Number, "0001")
}

func TestConcurrentReceiptsAndIssuesKeepChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Detergent")
	cheap := f.order(t, procurement.POLineInput{ItemID: item.ID, Qty: qty(200), UnitPrice: decimal.RequireFromString("4.10")})
	dear := f.order(t, procurement.POLineInput{ItemID: item.ID, Qty: qty(200), UnitPrice: decimal.RequireFromString("6.35")})
	// opening stock so issues never run dry
	_, err := f.svc.CreateGRN(ctx, tenantID, procurement.GRNInput{POID: cheap.ID, Lines: []procurement.GRNLineInput{{ItemID: item.ID, Qty: qty(100)}}})
	require.NoError(t, err)

	issues := stores.NewService(f.store.Stores(), f.engine, sequence.NewGenerator(sequence.NewMemoryStore()), f.store, nil)
	dept, err := issues.CreateDepartment(ctx, tenantID, stores.DepartmentInput{Code: "HK", Name: "Housekeeping"})
	require.NoError(t, err)

	const workers, rounds = 8, 5
	var wg sync.WaitGroup
	errs := make(chan error, 3*workers*rounds)
	for w := 0; w < workers; w++ {
		po := cheap
		if w%2 == 1 {
			po = dear
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				_, err := f.svc.CreateGRN(ctx, tenantID, procurement.GRNInput{POID: po.ID, Lines: []procurement.GRNLineInput{{ItemID: item.ID, Qty: qty(2)}}})
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				_, err := issues.CreateIssue(ctx, tenantID, stores.IssueInput{DepartmentID: dept.ID, Lines: []stores.IssueLineInput{{ItemID: item.ID, Qty: qty(1)}}})
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rows, err := f.items.ListLedger(ctx, tenantID, inventory.LedgerFilter{ItemID: item.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1+2*workers*rounds)
	require.NoError(t, inventory.VerifyChain(rows))

	last := rows[len(rows)-1]
	got, err := f.items.GetItem(ctx, tenantID, item.ID)
	require.NoError(t, err)
	require.True(t, got.OnHandQty.Equal(last.BalanceQty))
	require.True(t, got.AvgCost.Equal(last.BalanceAvgCost))
	require.Equal(t, "140", got.OnHandQty.String())
	require.NoError(t, f.items.VerifyItem(ctx, tenantID, item.ID))
}
