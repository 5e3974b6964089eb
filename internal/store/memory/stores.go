package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
	"github.com/odyssey-erp/odyssey-ledger/internal/stores"
)

// StoresRepo implements stores.RepositoryPort.
type StoresRepo struct{ s *Store }

// Stores returns the department, requisition and issue repository.
func (s *Store) Stores() *StoresRepo { return &StoresRepo{s: s} }

type storesTx struct{ stockTx }

// WithTx runs fn atomically.
func (r *StoresRepo) WithTx(ctx context.Context, fn func(context.Context, stores.TxRepository) error) error {
	return r.s.update(ctx, func(st *state) error {
		return fn(ctx, &storesTx{stockTx{st: st}})
	})
}

// ListDepartments returns departments ordered by code.
func (r *StoresRepo) ListDepartments(_ context.Context, tenantID int64) ([]stores.Department, error) {
	var out []stores.Department
	for _, d := range r.s.snapshot().departments {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b stores.Department) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func docMatch(tenantID int64, filter stores.DocFilter, docTenant, deptID int64, status approval.Status, date time.Time) bool {
	if docTenant != tenantID || !inRange(date, filter.From, filter.To) {
		return false
	}
	if filter.DepartmentID != 0 && deptID != filter.DepartmentID {
		return false
	}
	return filter.Status == "" || status == filter.Status
}

func newestFirst(a, b time.Time, aID, bID int64) int {
	if c := b.Compare(a); c != 0 {
		return c
	}
	return cmp.Compare(bID, aID)
}

func getRequisition(st *state, tenantID, id int64) (stores.Requisition, error) {
	req, ok := st.requisitions[id]
	if !ok || req.TenantID != tenantID {
		return stores.Requisition{}, stores.ErrRequisitionNotFound
	}
	req.Lines = slices.Clone(req.Lines)
	req.IssueIDs = nil
	for _, issue := range st.issues {
		if issue.RequisitionID != nil && *issue.RequisitionID == id {
			req.IssueIDs = append(req.IssueIDs, issue.ID)
		}
	}
	slices.Sort(req.IssueIDs)
	return req, nil
}

// GetRequisition loads a requisition with lines and linked issues.
func (r *StoresRepo) GetRequisition(_ context.Context, tenantID, id int64) (stores.Requisition, error) {
	return getRequisition(r.s.snapshot(), tenantID, id)
}

// ListRequisitions lists requisitions without detail.
func (r *StoresRepo) ListRequisitions(_ context.Context, tenantID int64, filter stores.DocFilter) ([]stores.Requisition, error) {
	var out []stores.Requisition
	for _, req := range r.s.snapshot().requisitions {
		if !docMatch(tenantID, filter, req.TenantID, req.DepartmentID, req.Status, req.Date) {
			continue
		}
		req.Lines = nil
		out = append(out, req)
	}
	slices.SortFunc(out, func(a, b stores.Requisition) int { return newestFirst(a.Date, b.Date, a.ID, b.ID) })
	return limit(out, filter.Limit), nil
}

func getIssue(st *state, tenantID, id int64) (stores.Issue, error) {
	issue, ok := st.issues[id]
	if !ok || issue.TenantID != tenantID {
		return stores.Issue{}, stores.ErrIssueNotFound
	}
	issue.Lines = slices.Clone(issue.Lines)
	return issue, nil
}

// GetIssue loads an issue with lines.
func (r *StoresRepo) GetIssue(_ context.Context, tenantID, id int64) (stores.Issue, error) {
	return getIssue(r.s.snapshot(), tenantID, id)
}

// ListIssues lists issues with lines.
func (r *StoresRepo) ListIssues(_ context.Context, tenantID int64, filter stores.DocFilter) ([]stores.Issue, error) {
	var out []stores.Issue
	for _, issue := range r.s.snapshot().issues {
		if !docMatch(tenantID, filter, issue.TenantID, issue.DepartmentID, issue.Status, issue.Date) {
			continue
		}
		issue.Lines = slices.Clone(issue.Lines)
		out = append(out, issue)
	}
	slices.SortFunc(out, func(a, b stores.Issue) int { return newestFirst(a.Date, b.Date, a.ID, b.ID) })
	return limit(out, filter.Limit), nil
}

// ListAllocations lists allocations in issue date order.
func (r *StoresRepo) ListAllocations(_ context.Context, tenantID int64, filter stores.AllocationFilter) ([]stores.Allocation, error) {
	var out []stores.Allocation
	for _, a := range r.s.snapshot().allocations {
		if a.TenantID != tenantID || !inRange(a.IssueDate, filter.From, filter.To) {
			continue
		}
		if filter.DepartmentID != 0 && a.DepartmentID != filter.DepartmentID {
			continue
		}
		if filter.ItemID != 0 && a.ItemID != filter.ItemID {
			continue
		}
		out = append(out, a)
	}
	slices.SortStableFunc(out, func(a, b stores.Allocation) int {
		if c := a.IssueDate.Compare(b.IssueDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *storesTx) GetDepartment(_ context.Context, tenantID, id int64) (stores.Department, error) {
	d, ok := t.st.departments[id]
	if !ok || d.TenantID != tenantID {
		return stores.Department{}, stores.ErrDepartmentNotFound
	}
	return d, nil
}

func (t *storesTx) InsertDepartment(_ context.Context, d stores.Department) (stores.Department, error) {
	for _, other := range t.st.departments {
		if other.TenantID == d.TenantID && other.Code == d.Code {
			return stores.Department{}, stores.ErrDuplicateDepartment
		}
	}
	d.ID = t.st.id()
	t.st.departments[d.ID] = d
	return d, nil
}

func (t *storesTx) ItemExists(_ context.Context, tenantID, itemID int64) (bool, error) {
	return itemExists(t.st, tenantID, itemID), nil
}

func (t *storesTx) InsertRequisition(_ context.Context, req stores.Requisition) (stores.Requisition, error) {
	req.ID = t.st.id()
	lines := make([]stores.RequisitionLine, len(req.Lines))
	for i, l := range req.Lines {
		l.ID = t.st.id()
		l.RequisitionID = req.ID
		lines[i] = l
	}
	req.Lines = lines
	req.IssueIDs = nil
	req.Approvals = nil
	t.st.requisitions[req.ID] = req
	return getRequisition(t.st, req.TenantID, req.ID)
}

func (t *storesTx) LockRequisition(_ context.Context, tenantID, id int64) (stores.Requisition, error) {
	return getRequisition(t.st, tenantID, id)
}

func (t *storesTx) UpdateRequisitionStatus(_ context.Context, tenantID, id int64, status approval.Status, actorID int64) error {
	req, ok := t.st.requisitions[id]
	if !ok || req.TenantID != tenantID {
		return stores.ErrRequisitionNotFound
	}
	req.Status = status
	req.UpdatedBy = actorID
	t.st.requisitions[id] = req
	return nil
}

func (t *storesTx) InsertIssue(_ context.Context, issue stores.Issue) (stores.Issue, error) {
	issue.ID = t.st.id()
	issue.Lines = nil
	issue.Approvals = nil
	t.st.issues[issue.ID] = issue
	return issue, nil
}

func (t *storesTx) InsertIssueLine(_ context.Context, l stores.IssueLine) (stores.IssueLine, error) {
	issue, ok := t.st.issues[l.IssueID]
	if !ok {
		return stores.IssueLine{}, stores.ErrIssueNotFound
	}
	l.ID = t.st.id()
	issue.Lines = append(slices.Clip(issue.Lines), l)
	t.st.issues[issue.ID] = issue
	return l, nil
}

func (t *storesTx) LockIssue(_ context.Context, tenantID, id int64) (stores.Issue, error) {
	return getIssue(t.st, tenantID, id)
}

func (t *storesTx) UpdateIssueStatus(_ context.Context, tenantID, id int64, status approval.Status, actorID int64) error {
	issue, ok := t.st.issues[id]
	if !ok || issue.TenantID != tenantID {
		return stores.ErrIssueNotFound
	}
	issue.Status = status
	issue.UpdatedBy = actorID
	t.st.issues[id] = issue
	return nil
}

func (t *storesTx) InsertAllocation(_ context.Context, a stores.Allocation) (stores.Allocation, error) {
	a.ID = t.st.id()
	t.st.allocations = append(slices.Clip(t.st.allocations), a)
	return a, nil
}
