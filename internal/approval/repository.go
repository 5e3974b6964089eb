package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository stores approvals in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// Bind exposes approval writes on a transaction owned by a document module.
func Bind(tx pgx.Tx) Tx {
	return &txRepo{tx: tx}
}

func table(kind Kind) (string, error) {
	switch kind {
	case KindPurchaseOrder:
		return "purchase_orders", nil
	case KindRequisition:
		return "requisitions", nil
	case KindIssue:
		return "store_issues", nil
	}
	return "", fmt.Errorf("approval: unknown document kind %q", kind)
}

// WithTx runs fn in a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, Bind(tx))
	})
}

// History lists approvals oldest first.
func (r *Repository) History(ctx context.Context, tenantID int64, kind Kind, docID int64) ([]Approval, error) {
	return history(ctx, r.pool, tenantID, kind, docID)
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func history(ctx context.Context, q rowQuerier, tenantID int64, kind Kind, docID int64) ([]Approval, error) {
	rows, err := q.Query(ctx, `SELECT level, actor_id, decision, remarks, decided_at FROM approvals
WHERE tenant_id=$1 AND doc_kind=$2 AND doc_id=$3 ORDER BY id`, tenantID, string(kind), docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Approval
	for rows.Next() {
		var a Approval
		if err := rows.Scan(&a.Level, &a.ActorID, &a.Decision, &a.Remarks, &a.DecidedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// HistoryTx lists approvals inside tx.
func HistoryTx(ctx context.Context, tx pgx.Tx, tenantID int64, kind Kind, docID int64) ([]Approval, error) {
	return history(ctx, tx, tenantID, kind, docID)
}

func (t *txRepo) LockStatus(ctx context.Context, tenantID int64, kind Kind, docID int64) (Status, error) {
	tbl, err := table(kind)
	if err != nil {
		return "", err
	}
	var status Status
	err = t.tx.QueryRow(ctx, `SELECT status FROM `+tbl+` WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, docID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrDocumentNotFound
	}
	return status, err
}

func (t *txRepo) SetStatus(ctx context.Context, tenantID int64, kind Kind, docID int64, status Status, actorID int64) error {
	tbl, err := table(kind)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `UPDATE `+tbl+` SET status=$3, updated_by=$4 WHERE tenant_id=$1 AND id=$2`, tenantID, docID, string(status), actorID)
	return err
}

func (t *txRepo) AppendApproval(ctx context.Context, tenantID int64, kind Kind, docID int64, a Approval) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO approvals (tenant_id, doc_kind, doc_id, level, decision, actor_id, remarks, decided_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, tenantID, string(kind), docID, a.Level, string(a.Decision), a.ActorID, a.Remarks, a.DecidedAt)
	return err
}
