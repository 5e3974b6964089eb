package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository persists inventory data in PostgreSQL.
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

// Bind exposes inventory operations on a transaction owned by another
// module so stock rows commit with that module's document.
func Bind(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, Bind(tx))
	})
}

const itemColumns = `id, tenant_id, name, sku, barcode, uom, category_id, cost_price, selling_price,
on_hand_qty, avg_cost, min_qty, reorder_qty, is_active, created_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.TenantID, &it.Name, &it.SKU, &it.Barcode, &it.UOM, &it.CategoryID,
		&it.CostPrice, &it.SellingPrice, &it.OnHandQty, &it.AvgCost, &it.MinQty, &it.ReorderQty, &it.IsActive, &it.CreatedAt)
	return it, err
}

func getItem(ctx context.Context, q querier, tenantID, id int64, lock bool) (Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE tenant_id=$1 AND id=$2`
	if lock {
		query += ` FOR UPDATE`
	}
	it, err := scanItem(q.QueryRow(ctx, query, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return it, err
}

// GetItem loads an item.
func (r *Repository) GetItem(ctx context.Context, tenantID, id int64) (Item, error) {
	return getItem(ctx, r.pool, tenantID, id, false)
}

// ListItems lists items ordered by name.
func (r *Repository) ListItems(ctx context.Context, tenantID int64, filter ItemFilter) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE tenant_id=$1 AND ($2 = 0 OR category_id=$2) AND (NOT $3 OR is_active) ORDER BY lower(name)`
	rows, err := r.pool.Query(ctx, query, tenantID, filter.CategoryID, filter.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListCategories lists all categories of the tenant.
func (r *Repository) ListCategories(ctx context.Context, tenantID int64) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, name, parent_id FROM categories WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.ParentID); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

const ledgerColumns = `id, tenant_id, item_id, seq, doc_type, doc_id, doc_number, doc_date, opening_qty,
received_qty, issued_qty, adjust_qty, unit_cost, total_cost, balance_qty, balance_avg_cost, created_by, created_at`

func scanLedgerRow(row pgx.Row) (LedgerRow, error) {
	var l LedgerRow
	err := row.Scan(&l.ID, &l.TenantID, &l.ItemID, &l.Seq, &l.DocType, &l.DocID, &l.DocNumber, &l.DocDate,
		&l.OpeningQty, &l.ReceivedQty, &l.IssuedQty, &l.AdjustQty, &l.UnitCost, &l.TotalCost,
		&l.BalanceQty, &l.BalanceAvgCost, &l.CreatedBy, &l.CreatedAt)
	return l, err
}

// ListLedger lists rows ordered by item and sequence.
func (r *Repository) ListLedger(ctx context.Context, tenantID int64, filter LedgerFilter) ([]LedgerRow, error) {
	var (
		where = []string{"tenant_id = $1"}
		args  = []any{tenantID}
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.ItemID != 0 {
		add("item_id = $%d", filter.ItemID)
	}
	if filter.DocType != "" {
		add("doc_type = $%d", string(filter.DocType))
	}
	if filter.From != nil {
		add("doc_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("doc_date <= $%d", *filter.To)
	}
	query := fmt.Sprintf(`SELECT %s FROM stock_ledger WHERE %s ORDER BY item_id, seq`, ledgerColumns, strings.Join(where, " AND "))
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerRow
	for rows.Next() {
		l, err := scanLedgerRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *txRepo) LockItem(ctx context.Context, tenantID, itemID int64) (Item, error) {
	return getItem(ctx, t.tx, tenantID, itemID, true)
}

func (t *txRepo) LastLedgerRow(ctx context.Context, tenantID, itemID int64) (LedgerRow, bool, error) {
	row, err := scanLedgerRow(t.tx.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM stock_ledger
WHERE tenant_id=$1 AND item_id=$2 ORDER BY seq DESC LIMIT 1`, tenantID, itemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LedgerRow{}, false, nil
		}
		return LedgerRow{}, false, err
	}
	return row, true, nil
}

func (t *txRepo) InsertLedgerRow(ctx context.Context, l LedgerRow) (LedgerRow, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_ledger (tenant_id, item_id, seq, doc_type, doc_id, doc_number, doc_date,
opening_qty, received_qty, issued_qty, adjust_qty, unit_cost, total_cost, balance_qty, balance_avg_cost, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17) RETURNING id`,
		l.TenantID, l.ItemID, l.Seq, string(l.DocType), l.DocID, l.DocNumber, l.DocDate,
		l.OpeningQty, l.ReceivedQty, l.IssuedQty, l.AdjustQty, l.UnitCost, l.TotalCost,
		l.BalanceQty, l.BalanceAvgCost, l.CreatedBy, l.CreatedAt).Scan(&l.ID)
	return l, err
}

func (t *txRepo) UpdateItemStock(ctx context.Context, tenantID, itemID int64, qty, avgCost decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE items SET on_hand_qty=$3, avg_cost=$4 WHERE tenant_id=$1 AND id=$2`, tenantID, itemID, qty, avgCost)
	return err
}

func (t *txRepo) GetCategory(ctx context.Context, tenantID, id int64) (Category, error) {
	var c Category
	err := t.tx.QueryRow(ctx, `SELECT id, tenant_id, name, parent_id FROM categories WHERE tenant_id=$1 AND id=$2`, tenantID, id).
		Scan(&c.ID, &c.TenantID, &c.Name, &c.ParentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, ErrCategoryNotFound
	}
	return c, err
}

func (t *txRepo) HasChildCategories(ctx context.Context, tenantID, id int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE tenant_id=$1 AND parent_id=$2)`, tenantID, id).Scan(&exists)
	return exists, err
}

func (t *txRepo) CountCategoryItems(ctx context.Context, tenantID, id int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM items WHERE tenant_id=$1 AND category_id=$2`, tenantID, id).Scan(&n)
	return n, err
}

func (t *txRepo) InsertCategory(ctx context.Context, c Category) (Category, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO categories (tenant_id, name, parent_id) VALUES ($1,$2,$3) RETURNING id`,
		c.TenantID, c.Name, c.ParentID).Scan(&c.ID)
	if db.IsUniqueViolation(err, "categories_name_key") {
		return Category{}, ErrDuplicateCategory
	}
	return c, err
}

func (t *txRepo) DeleteCategory(ctx context.Context, tenantID, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM categories WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return err
}

func mapItemConflict(err error) error {
	for _, name := range []string{"items_name_key", "items_sku_key", "items_barcode_key"} {
		if db.IsUniqueViolation(err, name) {
			return ErrDuplicateItem
		}
	}
	return err
}

func (t *txRepo) InsertItem(ctx context.Context, it Item) (Item, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO items (tenant_id, name, sku, barcode, uom, category_id, cost_price, selling_price,
min_qty, reorder_qty, is_active, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		it.TenantID, it.Name, it.SKU, it.Barcode, string(it.UOM), it.CategoryID, it.CostPrice, it.SellingPrice,
		it.MinQty, it.ReorderQty, it.IsActive, it.CreatedAt).Scan(&it.ID)
	if err != nil {
		return Item{}, mapItemConflict(err)
	}
	return it, nil
}

func (t *txRepo) UpdateItem(ctx context.Context, it Item) error {
	_, err := t.tx.Exec(ctx, `UPDATE items SET name=$3, sku=$4, barcode=$5, category_id=$6, cost_price=$7, selling_price=$8,
min_qty=$9, reorder_qty=$10, is_active=$11 WHERE tenant_id=$1 AND id=$2`,
		it.TenantID, it.ID, it.Name, it.SKU, it.Barcode, it.CategoryID, it.CostPrice, it.SellingPrice,
		it.MinQty, it.ReorderQty, it.IsActive)
	return mapItemConflict(err)
}

func (t *txRepo) DeleteItem(ctx context.Context, tenantID, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM items WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return err
}

func (t *txRepo) CountItemLedgerRows(ctx context.Context, tenantID, id int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM stock_ledger WHERE tenant_id=$1 AND item_id=$2`, tenantID, id).Scan(&n)
	return n, err
}
