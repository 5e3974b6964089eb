package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides PostgreSQL persistence for procurement.
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

const supplierColumns = `id, tenant_id, code, name, email, phone, created_at`

func getSupplier(ctx context.Context, q querier, tenantID, id int64) (Supplier, error) {
	var s Supplier
	err := q.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE tenant_id=$1 AND id=$2`, tenantID, id).
		Scan(&s.ID, &s.TenantID, &s.Code, &s.Name, &s.Email, &s.Phone, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrSupplierNotFound
	}
	return s, err
}

// GetSupplier loads one supplier.
func (r *Repository) GetSupplier(ctx context.Context, tenantID, id int64) (Supplier, error) {
	return getSupplier(ctx, r.pool, tenantID, id)
}

// ListSuppliers lists suppliers by code.
func (r *Repository) ListSuppliers(ctx context.Context, tenantID int64) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Code, &s.Name, &s.Email, &s.Phone, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const poColumns = `id, tenant_id, number, supplier_id, order_date, status, notes, created_by, updated_by, created_at`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.TenantID, &po.Number, &po.SupplierID, &po.Date, &po.Status, &po.Notes, &po.CreatedBy, &po.UpdatedBy, &po.CreatedAt)
	return po, err
}

func loadPOLines(ctx context.Context, q querier, poID int64) ([]POLine, error) {
	rows, err := q.Query(ctx, `SELECT id, po_id, item_id, qty, unit_price, received_qty FROM po_lines WHERE po_id=$1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []POLine
	for rows.Next() {
		var l POLine
		if err := rows.Scan(&l.ID, &l.POID, &l.ItemID, &l.Qty, &l.UnitPrice, &l.ReceivedQty); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func getPO(ctx context.Context, q querier, tenantID, id int64, lock bool) (PurchaseOrder, error) {
	query := `SELECT ` + poColumns + ` FROM purchase_orders WHERE tenant_id=$1 AND id=$2`
	if lock {
		query += ` FOR UPDATE`
	}
	po, err := scanPO(q.QueryRow(ctx, query, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrPONotFound
	}
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Lines, err = loadPOLines(ctx, q, po.ID)
	return po, err
}

// GetPO loads a purchase order with lines.
func (r *Repository) GetPO(ctx context.Context, tenantID, id int64) (PurchaseOrder, error) {
	return getPO(ctx, r.pool, tenantID, id, false)
}

// ListPOs lists purchase orders newest first. Lines are not loaded.
func (r *Repository) ListPOs(ctx context.Context, tenantID int64, filter POFilter) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+poColumns+` FROM purchase_orders
WHERE tenant_id=$1 AND ($2 = '' OR status=$2) AND ($3 = 0 OR supplier_id=$3)
ORDER BY order_date DESC, id DESC LIMIT $4`, tenantID, string(filter.Status), filter.SupplierID, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

const grnColumns = `g.id, g.tenant_id, g.number, g.po_id, p.supplier_id, g.received_at, g.notes, g.created_by`

func scanGRN(row pgx.Row) (GoodsReceipt, error) {
	var g GoodsReceipt
	err := row.Scan(&g.ID, &g.TenantID, &g.Number, &g.POID, &g.SupplierID, &g.ReceivedAt, &g.Notes, &g.CreatedBy)
	return g, err
}

func loadGRNLines(ctx context.Context, q querier, grnID int64) ([]GRNLine, error) {
	rows, err := q.Query(ctx, `SELECT id, grn_id, item_id, qty, unit_cost, ledger_row_id FROM grn_lines WHERE grn_id=$1 ORDER BY id`, grnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []GRNLine
	for rows.Next() {
		var l GRNLine
		if err := rows.Scan(&l.ID, &l.GRNID, &l.ItemID, &l.Qty, &l.UnitCost, &l.LedgerRowID); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// GetGRN loads a goods receipt with lines.
func (r *Repository) GetGRN(ctx context.Context, tenantID, id int64) (GoodsReceipt, error) {
	g, err := scanGRN(r.pool.QueryRow(ctx, `SELECT `+grnColumns+` FROM goods_receipts g
JOIN purchase_orders p ON p.id = g.po_id WHERE g.tenant_id=$1 AND g.id=$2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return GoodsReceipt{}, ErrGRNNotFound
	}
	if err != nil {
		return GoodsReceipt{}, err
	}
	g.Lines, err = loadGRNLines(ctx, r.pool, g.ID)
	return g, err
}

// ListGRNs lists goods receipts newest first, lines included.
func (r *Repository) ListGRNs(ctx context.Context, tenantID int64, filter GRNFilter) ([]GoodsReceipt, error) {
	var (
		where = []string{"g.tenant_id = $1"}
		args  = []any{tenantID}
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.POID != 0 {
		add("g.po_id = $%d", filter.POID)
	}
	if filter.From != nil {
		add("g.received_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("g.received_at <= $%d", *filter.To)
	}
	args = append(args, filter.Limit)
	query := fmt.Sprintf(`SELECT %s FROM goods_receipts g JOIN purchase_orders p ON p.id = g.po_id
WHERE %s ORDER BY g.received_at DESC, g.id DESC LIMIT $%d`, grnColumns, strings.Join(where, " AND "), len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []GoodsReceipt
	for rows.Next() {
		g, err := scanGRN(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Lines, err = loadGRNLines(ctx, r.pool, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *txRepo) InsertSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO suppliers (tenant_id, code, name, email, phone, created_at) VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		s.TenantID, s.Code, s.Name, s.Email, s.Phone, s.CreatedAt).Scan(&s.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Supplier{}, ErrDuplicateSupplier
	}
	return s, err
}

// GetSupplier takes a share lock so the supplier outlives the transaction.
func (t *txRepo) GetSupplier(ctx context.Context, tenantID, id int64) (Supplier, error) {
	var s Supplier
	err := t.tx.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE tenant_id=$1 AND id=$2 FOR SHARE`, tenantID, id).
		Scan(&s.ID, &s.TenantID, &s.Code, &s.Name, &s.Email, &s.Phone, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrSupplierNotFound
	}
	return s, err
}

func (t *txRepo) ItemExists(ctx context.Context, tenantID, itemID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE tenant_id=$1 AND id=$2)`, tenantID, itemID).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertPO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (tenant_id, number, supplier_id, order_date, status, notes, created_by, updated_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		po.TenantID, po.Number, po.SupplierID, po.Date, string(po.Status), po.Notes, po.CreatedBy, po.UpdatedBy, po.CreatedAt).Scan(&po.ID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	for i := range po.Lines {
		l := &po.Lines[i]
		l.POID = po.ID
		if err := t.tx.QueryRow(ctx, `INSERT INTO po_lines (po_id, item_id, qty, unit_price, received_qty) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			l.POID, l.ItemID, l.Qty, l.UnitPrice, l.ReceivedQty).Scan(&l.ID); err != nil {
			return PurchaseOrder{}, err
		}
	}
	return po, nil
}

func (t *txRepo) LockPO(ctx context.Context, tenantID, id int64) (PurchaseOrder, error) {
	return getPO(ctx, t.tx, tenantID, id, true)
}

func (t *txRepo) UpdatePOStatus(ctx context.Context, tenantID, id int64, status approval.Status, actorID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status=$3, updated_by=$4 WHERE tenant_id=$1 AND id=$2`, tenantID, id, string(status), actorID)
	return err
}

func (t *txRepo) UpdatePOLineReceived(ctx context.Context, lineID int64, received decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE po_lines SET received_qty=$2 WHERE id=$1`, lineID, received)
	return err
}

func (t *txRepo) InsertGRN(ctx context.Context, g GoodsReceipt) (GoodsReceipt, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO goods_receipts (tenant_id, number, po_id, received_at, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, g.TenantID, g.Number, g.POID, g.ReceivedAt, g.Notes, g.CreatedBy).Scan(&g.ID)
	return g, err
}

func (t *txRepo) InsertGRNLine(ctx context.Context, l GRNLine) (GRNLine, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO grn_lines (grn_id, item_id, qty, unit_cost, ledger_row_id) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		l.GRNID, l.ItemID, l.Qty, l.UnitCost, l.LedgerRowID).Scan(&l.ID)
	return l, err
}
