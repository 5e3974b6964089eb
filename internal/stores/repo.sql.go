package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL persistence for stores documents.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	inventory.StockTx
	tx pgx.Tx
}

// WithTx wraps callback in a DB transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{StockTx: inventory.Bind(tx), tx: tx})
	})
}

// ListDepartments lists departments by code.
func (r *Repository) ListDepartments(ctx context.Context, tenantID int64) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, code, name FROM departments WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Code, &d.Name); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// filterClause renders the shared document filter against a date column.
func filterClause(tenantID int64, filter DocFilter, dateCol string) (string, []any) {
	var (
		where = []string{"tenant_id = $1"}
		args  = []any{tenantID}
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.DepartmentID != 0 {
		add("department_id = $%d", filter.DepartmentID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.From != nil {
		add(dateCol+" >= $%d", *filter.From)
	}
	if filter.To != nil {
		add(dateCol+" <= $%d", *filter.To)
	}
	args = append(args, filter.Limit)
	return fmt.Sprintf("WHERE %s ORDER BY %s DESC, id DESC LIMIT $%d", strings.Join(where, " AND "), dateCol, len(args)), args
}

const reqColumns = `id, tenant_id, number, department_id, req_date, status, notes, created_by, updated_by`

func scanRequisition(row pgx.Row) (Requisition, error) {
	var r Requisition
	err := row.Scan(&r.ID, &r.TenantID, &r.Number, &r.DepartmentID, &r.Date, &r.Status, &r.Notes, &r.CreatedBy, &r.UpdatedBy)
	return r, err
}

func loadRequisitionDetail(ctx context.Context, q querier, req *Requisition) error {
	rows, err := q.Query(ctx, `SELECT id, requisition_id, item_id, qty, remark FROM requisition_lines WHERE requisition_id=$1 ORDER BY id`, req.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var l RequisitionLine
		if err := rows.Scan(&l.ID, &l.RequisitionID, &l.ItemID, &l.Qty, &l.Remark); err != nil {
			rows.Close()
			return err
		}
		req.Lines = append(req.Lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	ids, err := q.Query(ctx, `SELECT id FROM store_issues WHERE requisition_id=$1 ORDER BY id`, req.ID)
	if err != nil {
		return err
	}
	defer ids.Close()
	for ids.Next() {
		var id int64
		if err := ids.Scan(&id); err != nil {
			return err
		}
		req.IssueIDs = append(req.IssueIDs, id)
	}
	return ids.Err()
}

func getRequisition(ctx context.Context, q querier, tenantID, id int64, lock bool) (Requisition, error) {
	query := `SELECT ` + reqColumns + ` FROM requisitions WHERE tenant_id=$1 AND id=$2`
	if lock {
		query += ` FOR UPDATE`
	}
	req, err := scanRequisition(q.QueryRow(ctx, query, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Requisition{}, ErrRequisitionNotFound
	}
	if err != nil {
		return Requisition{}, err
	}
	return req, loadRequisitionDetail(ctx, q, &req)
}

// GetRequisition loads a requisition with lines and linked issues.
func (r *Repository) GetRequisition(ctx context.Context, tenantID, id int64) (Requisition, error) {
	return getRequisition(ctx, r.pool, tenantID, id, false)
}

// ListRequisitions lists requisitions without detail.
func (r *Repository) ListRequisitions(ctx context.Context, tenantID int64, filter DocFilter) ([]Requisition, error) {
	clause, args := filterClause(tenantID, filter, "req_date")
	rows, err := r.pool.Query(ctx, `SELECT `+reqColumns+` FROM requisitions `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Requisition
	for rows.Next() {
		req, err := scanRequisition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

const issueColumns = `id, tenant_id, number, department_id, requisition_id, issue_date, status, notes, created_by, updated_by`

func scanIssue(row pgx.Row) (Issue, error) {
	var i Issue
	err := row.Scan(&i.ID, &i.TenantID, &i.Number, &i.DepartmentID, &i.RequisitionID, &i.Date, &i.Status, &i.Notes, &i.CreatedBy, &i.UpdatedBy)
	return i, err
}

func loadIssueLines(ctx context.Context, q querier, issueID int64) ([]IssueLine, error) {
	rows, err := q.Query(ctx, `SELECT id, issue_id, item_id, qty, unit_cost, ledger_row_id FROM issue_lines WHERE issue_id=$1 ORDER BY id`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []IssueLine
	for rows.Next() {
		var l IssueLine
		if err := rows.Scan(&l.ID, &l.IssueID, &l.ItemID, &l.Qty, &l.UnitCost, &l.LedgerRowID); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func getIssue(ctx context.Context, q querier, tenantID, id int64, lock bool) (Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM store_issues WHERE tenant_id=$1 AND id=$2`
	if lock {
		query += ` FOR UPDATE`
	}
	issue, err := scanIssue(q.QueryRow(ctx, query, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Issue{}, ErrIssueNotFound
	}
	if err != nil {
		return Issue{}, err
	}
	issue.Lines, err = loadIssueLines(ctx, q, issue.ID)
	return issue, err
}

// GetIssue loads an issue with lines.
func (r *Repository) GetIssue(ctx context.Context, tenantID, id int64) (Issue, error) {
	return getIssue(ctx, r.pool, tenantID, id, false)
}

// ListIssues lists issues with lines.
func (r *Repository) ListIssues(ctx context.Context, tenantID int64, filter DocFilter) ([]Issue, error) {
	clause, args := filterClause(tenantID, filter, "issue_date")
	rows, err := r.pool.Query(ctx, `SELECT `+issueColumns+` FROM store_issues `+clause, args...)
	if err != nil {
		return nil, err
	}
	var out []Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, issue)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Lines, err = loadIssueLines(ctx, r.pool, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListAllocations lists allocations in issue date order.
func (r *Repository) ListAllocations(ctx context.Context, tenantID int64, filter AllocationFilter) ([]Allocation, error) {
	var (
		where = []string{"tenant_id = $1"}
		args  = []any{tenantID}
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.DepartmentID != 0 {
		add("department_id = $%d", filter.DepartmentID)
	}
	if filter.ItemID != 0 {
		add("item_id = $%d", filter.ItemID)
	}
	if filter.From != nil {
		add("issue_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("issue_date <= $%d", *filter.To)
	}
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, department_id, issue_id, requisition_id, item_id, qty, unit_cost, total_cost, issue_date
FROM department_allocations WHERE `+strings.Join(where, " AND ")+` ORDER BY issue_date, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.TenantID, &a.DepartmentID, &a.IssueID, &a.RequisitionID, &a.ItemID, &a.Qty, &a.UnitCost, &a.TotalCost, &a.IssueDate); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *txRepo) GetDepartment(ctx context.Context, tenantID, id int64) (Department, error) {
	var d Department
	err := t.tx.QueryRow(ctx, `SELECT id, tenant_id, code, name FROM departments WHERE tenant_id=$1 AND id=$2`, tenantID, id).
		Scan(&d.ID, &d.TenantID, &d.Code, &d.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Department{}, ErrDepartmentNotFound
	}
	return d, err
}

func (t *txRepo) InsertDepartment(ctx context.Context, d Department) (Department, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO departments (tenant_id, code, name) VALUES ($1,$2,$3) RETURNING id`, d.TenantID, d.Code, d.Name).Scan(&d.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Department{}, ErrDuplicateDepartment
	}
	return d, err
}

func (t *txRepo) ItemExists(ctx context.Context, tenantID, itemID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE tenant_id=$1 AND id=$2)`, tenantID, itemID).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertRequisition(ctx context.Context, req Requisition) (Requisition, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO requisitions (tenant_id, number, department_id, req_date, status, notes, created_by, updated_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		req.TenantID, req.Number, req.DepartmentID, req.Date, string(req.Status), req.Notes, req.CreatedBy, req.UpdatedBy).Scan(&req.ID)
	if err != nil {
		return Requisition{}, err
	}
	for i := range req.Lines {
		l := &req.Lines[i]
		l.RequisitionID = req.ID
		if err := t.tx.QueryRow(ctx, `INSERT INTO requisition_lines (requisition_id, item_id, qty, remark) VALUES ($1,$2,$3,$4) RETURNING id`,
			l.RequisitionID, l.ItemID, l.Qty, l.Remark).Scan(&l.ID); err != nil {
			return Requisition{}, err
		}
	}
	return req, nil
}

func (t *txRepo) LockRequisition(ctx context.Context, tenantID, id int64) (Requisition, error) {
	return getRequisition(ctx, t.tx, tenantID, id, true)
}

func (t *txRepo) UpdateRequisitionStatus(ctx context.Context, tenantID, id int64, status approval.Status, actorID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE requisitions SET status=$3, updated_by=$4 WHERE tenant_id=$1 AND id=$2`, tenantID, id, string(status), actorID)
	return err
}

func (t *txRepo) InsertIssue(ctx context.Context, issue Issue) (Issue, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO store_issues (tenant_id, number, department_id, requisition_id, issue_date, status, notes, created_by, updated_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		issue.TenantID, issue.Number, issue.DepartmentID, issue.RequisitionID, issue.Date, string(issue.Status), issue.Notes, issue.CreatedBy, issue.UpdatedBy).Scan(&issue.ID)
	return issue, err
}

func (t *txRepo) InsertIssueLine(ctx context.Context, l IssueLine) (IssueLine, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO issue_lines (issue_id, item_id, qty, unit_cost, ledger_row_id) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		l.IssueID, l.ItemID, l.Qty, l.UnitCost, l.LedgerRowID).Scan(&l.ID)
	return l, err
}

func (t *txRepo) LockIssue(ctx context.Context, tenantID, id int64) (Issue, error) {
	return getIssue(ctx, t.tx, tenantID, id, true)
}

func (t *txRepo) UpdateIssueStatus(ctx context.Context, tenantID, id int64, status approval.Status, actorID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE store_issues SET status=$3, updated_by=$4 WHERE tenant_id=$1 AND id=$2`, tenantID, id, string(status), actorID)
	return err
}

func (t *txRepo) InsertAllocation(ctx context.Context, a Allocation) (Allocation, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO department_allocations (tenant_id, department_id, issue_id, requisition_id, item_id, qty, unit_cost, total_cost, issue_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		a.TenantID, a.DepartmentID, a.IssueID, a.RequisitionID, a.ItemID, a.Qty, a.UnitCost, a.TotalCost, a.IssueDate).Scan(&a.ID)
	return a, err
}
