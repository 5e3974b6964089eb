package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
)

// ProcurementRepo implements procurement.RepositoryPort.
type ProcurementRepo struct{ s *Store }

// Procurement returns the purchase order and goods receipt repository.
func (s *Store) Procurement() *ProcurementRepo { return &ProcurementRepo{s: s} }

type procurementTx struct{ stockTx }

// WithTx runs fn atomically.
func (r *ProcurementRepo) WithTx(ctx context.Context, fn func(context.Context, procurement.TxRepository) error) error {
	return r.s.update(ctx, func(st *state) error {
		return fn(ctx, &procurementTx{stockTx{st: st}})
	})
}

func getSupplier(st *state, tenantID, id int64) (procurement.Supplier, error) {
	sup, ok := st.suppliers[id]
	if !ok || sup.TenantID != tenantID {
		return procurement.Supplier{}, procurement.ErrSupplierNotFound
	}
	return sup, nil
}

// GetSupplier loads one supplier.
func (r *ProcurementRepo) GetSupplier(_ context.Context, tenantID, id int64) (procurement.Supplier, error) {
	return getSupplier(r.s.snapshot(), tenantID, id)
}

// ListSuppliers returns suppliers ordered by code.
func (r *ProcurementRepo) ListSuppliers(_ context.Context, tenantID int64) ([]procurement.Supplier, error) {
	var out []procurement.Supplier
	for _, sup := range r.s.snapshot().suppliers {
		if sup.TenantID == tenantID {
			out = append(out, sup)
		}
	}
	slices.SortFunc(out, func(a, b procurement.Supplier) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func getPO(st *state, tenantID, id int64) (procurement.PurchaseOrder, error) {
	po, ok := st.pos[id]
	if !ok || po.TenantID != tenantID {
		return procurement.PurchaseOrder{}, procurement.ErrPONotFound
	}
	po.Lines = slices.Clone(po.Lines)
	return po, nil
}

// GetPO loads a purchase order with lines.
func (r *ProcurementRepo) GetPO(_ context.Context, tenantID, id int64) (procurement.PurchaseOrder, error) {
	return getPO(r.s.snapshot(), tenantID, id)
}

// ListPOs lists purchase orders newest first without lines.
func (r *ProcurementRepo) ListPOs(_ context.Context, tenantID int64, filter procurement.POFilter) ([]procurement.PurchaseOrder, error) {
	var out []procurement.PurchaseOrder
	for _, po := range r.s.snapshot().pos {
		if po.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && po.Status != filter.Status {
			continue
		}
		if filter.SupplierID != 0 && po.SupplierID != filter.SupplierID {
			continue
		}
		po.Lines = nil
		out = append(out, po)
	}
	slices.SortFunc(out, func(a, b procurement.PurchaseOrder) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return limit(out, filter.Limit), nil
}

func withSupplier(st *state, g procurement.GoodsReceipt) procurement.GoodsReceipt {
	g.SupplierID = st.pos[g.POID].SupplierID
	g.Lines = slices.Clone(g.Lines)
	return g
}

// GetGRN loads a goods receipt with lines.
func (r *ProcurementRepo) GetGRN(_ context.Context, tenantID, id int64) (procurement.GoodsReceipt, error) {
	st := r.s.snapshot()
	g, ok := st.grns[id]
	if !ok || g.TenantID != tenantID {
		return procurement.GoodsReceipt{}, procurement.ErrGRNNotFound
	}
	return withSupplier(st, g), nil
}

// ListGRNs lists goods receipts newest first.
func (r *ProcurementRepo) ListGRNs(_ context.Context, tenantID int64, filter procurement.GRNFilter) ([]procurement.GoodsReceipt, error) {
	st := r.s.snapshot()
	var out []procurement.GoodsReceipt
	for _, g := range st.grns {
		if g.TenantID != tenantID || !inRange(g.ReceivedAt, filter.From, filter.To) {
			continue
		}
		if filter.POID != 0 && g.POID != filter.POID {
			continue
		}
		out = append(out, withSupplier(st, g))
	}
	slices.SortFunc(out, func(a, b procurement.GoodsReceipt) int {
		if c := b.ReceivedAt.Compare(a.ReceivedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return limit(out, filter.Limit), nil
}

func (t *procurementTx) InsertSupplier(_ context.Context, sup procurement.Supplier) (procurement.Supplier, error) {
	for _, other := range t.st.suppliers {
		if other.TenantID == sup.TenantID && other.Code == sup.Code {
			return procurement.Supplier{}, procurement.ErrDuplicateSupplier
		}
	}
	sup.ID = t.st.id()
	t.st.suppliers[sup.ID] = sup
	return sup, nil
}

func (t *procurementTx) GetSupplier(_ context.Context, tenantID, id int64) (procurement.Supplier, error) {
	return getSupplier(t.st, tenantID, id)
}

func (t *procurementTx) ItemExists(_ context.Context, tenantID, itemID int64) (bool, error) {
	return itemExists(t.st, tenantID, itemID), nil
}

func (t *procurementTx) InsertPO(_ context.Context, po procurement.PurchaseOrder) (procurement.PurchaseOrder, error) {
	po.ID = t.st.id()
	lines := make([]procurement.POLine, len(po.Lines))
	for i, l := range po.Lines {
		l.ID = t.st.id()
		l.POID = po.ID
		lines[i] = l
	}
	po.Lines = lines
	po.Approvals = nil
	t.st.pos[po.ID] = po
	return getPO(t.st, po.TenantID, po.ID)
}

func (t *procurementTx) LockPO(_ context.Context, tenantID, id int64) (procurement.PurchaseOrder, error) {
	return getPO(t.st, tenantID, id)
}

func (t *procurementTx) UpdatePOStatus(_ context.Context, tenantID, id int64, status approval.Status, actorID int64) error {
	po, err := getPO(t.st, tenantID, id)
	if err != nil {
		return err
	}
	po.Status = status
	po.UpdatedBy = actorID
	t.st.pos[id] = po
	return nil
}

func (t *procurementTx) UpdatePOLineReceived(_ context.Context, lineID int64, received decimal.Decimal) error {
	for id, po := range t.st.pos {
		i := slices.IndexFunc(po.Lines, func(l procurement.POLine) bool { return l.ID == lineID })
		if i < 0 {
			continue
		}
		po.Lines = slices.Clone(po.Lines)
		po.Lines[i].ReceivedQty = received
		t.st.pos[id] = po
		return nil
	}
	return nil
}

func (t *procurementTx) InsertGRN(_ context.Context, g procurement.GoodsReceipt) (procurement.GoodsReceipt, error) {
	g.ID = t.st.id()
	g.Lines = nil
	t.st.grns[g.ID] = g
	return g, nil
}

func (t *procurementTx) InsertGRNLine(_ context.Context, l procurement.GRNLine) (procurement.GRNLine, error) {
	g, ok := t.st.grns[l.GRNID]
	if !ok {
		return procurement.GRNLine{}, procurement.ErrGRNNotFound
	}
	l.ID = t.st.id()
	g.Lines = append(slices.Clip(g.Lines), l)
	t.st.grns[g.ID] = g
	return l, nil
}
