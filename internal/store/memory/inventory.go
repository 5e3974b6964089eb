package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
)

// stockTx implements inventory.StockTx on a private state copy. The
// procurement and stores transactions embed it so stock rows commit with
// their documents.
type stockTx struct{ st *state }

func (t stockTx) LockItem(_ context.Context, tenantID, itemID int64) (inventory.Item, error) {
	return getItem(t.st, tenantID, itemID)
}

func (t stockTx) LastLedgerRow(_ context.Context, tenantID, itemID int64) (inventory.LedgerRow, bool, error) {
	rows := t.st.ledger[itemID]
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].TenantID == tenantID {
			return rows[i], true, nil
		}
	}
	return inventory.LedgerRow{}, false, nil
}

func (t stockTx) InsertLedgerRow(_ context.Context, row inventory.LedgerRow) (inventory.LedgerRow, error) {
	row.ID = t.st.id()
	t.st.ledger[row.ItemID] = append(slices.Clip(t.st.ledger[row.ItemID]), row)
	return row, nil
}

func (t stockTx) UpdateItemStock(_ context.Context, tenantID, itemID int64, qty, avgCost decimal.Decimal) error {
	item, err := getItem(t.st, tenantID, itemID)
	if err != nil {
		return err
	}
	item.OnHandQty = qty
	item.AvgCost = avgCost
	t.st.items[itemID] = item
	return nil
}

func getItem(st *state, tenantID, id int64) (inventory.Item, error) {
	item, ok := st.items[id]
	if !ok || item.TenantID != tenantID {
		return inventory.Item{}, inventory.ErrItemNotFound
	}
	return item, nil
}

func itemExists(st *state, tenantID, id int64) bool {
	_, err := getItem(st, tenantID, id)
	return err == nil
}

// InventoryRepo implements inventory.RepositoryPort.
type InventoryRepo struct{ s *Store }

// Inventory returns the item, category and stock ledger repository.
func (s *Store) Inventory() *InventoryRepo { return &InventoryRepo{s: s} }

type inventoryTx struct{ stockTx }

// WithTx runs fn atomically.
func (r *InventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.s.update(ctx, func(st *state) error {
		return fn(ctx, &inventoryTx{stockTx{st: st}})
	})
}

// GetItem loads one item.
func (r *InventoryRepo) GetItem(_ context.Context, tenantID, id int64) (inventory.Item, error) {
	return getItem(r.s.snapshot(), tenantID, id)
}

// ListItems lists items ordered by name.
func (r *InventoryRepo) ListItems(_ context.Context, tenantID int64, filter inventory.ItemFilter) ([]inventory.Item, error) {
	var out []inventory.Item
	for _, it := range r.s.snapshot().items {
		if it.TenantID != tenantID {
			continue
		}
		if filter.CategoryID != 0 && it.CategoryID != filter.CategoryID {
			continue
		}
		if filter.ActiveOnly && !it.IsActive {
			continue
		}
		out = append(out, it)
	}
	slices.SortFunc(out, func(a, b inventory.Item) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// ListCategories returns the tenant's categories.
func (r *InventoryRepo) ListCategories(_ context.Context, tenantID int64) ([]inventory.Category, error) {
	var out []inventory.Category
	for _, c := range r.s.snapshot().categories {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b inventory.Category) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// ListLedger returns stock rows ordered by item and sequence.
func (r *InventoryRepo) ListLedger(_ context.Context, tenantID int64, filter inventory.LedgerFilter) ([]inventory.LedgerRow, error) {
	st := r.s.snapshot()
	ids := make([]int64, 0, len(st.ledger))
	for id := range st.ledger {
		if filter.ItemID == 0 || id == filter.ItemID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	var out []inventory.LedgerRow
	for _, id := range ids {
		for _, row := range st.ledger[id] {
			if row.TenantID != tenantID || !inRange(row.DocDate, filter.From, filter.To) {
				continue
			}
			if filter.DocType != "" && row.DocType != filter.DocType {
				continue
			}
			out = append(out, row)
		}
	}
	return limit(out, filter.Limit), nil
}

func (t *inventoryTx) GetCategory(_ context.Context, tenantID, id int64) (inventory.Category, error) {
	c, ok := t.st.categories[id]
	if !ok || c.TenantID != tenantID {
		return inventory.Category{}, inventory.ErrCategoryNotFound
	}
	return c, nil
}

func (t *inventoryTx) HasChildCategories(_ context.Context, tenantID, id int64) (bool, error) {
	for _, c := range t.st.categories {
		if c.TenantID == tenantID && c.ParentID != nil && *c.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (t *inventoryTx) CountCategoryItems(_ context.Context, tenantID, id int64) (int, error) {
	n := 0
	for _, it := range t.st.items {
		if it.TenantID == tenantID && it.CategoryID == id {
			n++
		}
	}
	return n, nil
}

func (t *inventoryTx) InsertCategory(_ context.Context, c inventory.Category) (inventory.Category, error) {
	for _, existing := range t.st.categories {
		if existing.TenantID == c.TenantID && sameName(existing.Name, c.Name) {
			return inventory.Category{}, inventory.ErrDuplicateCategory
		}
	}
	c.ID = t.st.id()
	t.st.categories[c.ID] = c
	return c, nil
}

func (t *inventoryTx) DeleteCategory(_ context.Context, tenantID, id int64) error {
	if c, ok := t.st.categories[id]; ok && c.TenantID == tenantID {
		delete(t.st.categories, id)
	}
	return nil
}

func (t *inventoryTx) itemConflict(it inventory.Item) error {
	for _, other := range t.st.items {
		if other.TenantID != it.TenantID || other.ID == it.ID {
			continue
		}
		if sameName(other.Name, it.Name) ||
			(it.SKU != "" && other.SKU == it.SKU) ||
			(it.Barcode != "" && other.Barcode == it.Barcode) {
			return inventory.ErrDuplicateItem
		}
	}
	return nil
}

func (t *inventoryTx) InsertItem(_ context.Context, it inventory.Item) (inventory.Item, error) {
	if err := t.itemConflict(it); err != nil {
		return inventory.Item{}, err
	}
	it.ID = t.st.id()
	t.st.items[it.ID] = it
	return it, nil
}

func (t *inventoryTx) UpdateItem(_ context.Context, it inventory.Item) error {
	current, err := getItem(t.st, it.TenantID, it.ID)
	if err != nil {
		return err
	}
	if err := t.itemConflict(it); err != nil {
		return err
	}
	it.OnHandQty = current.OnHandQty
	it.AvgCost = current.AvgCost
	it.CreatedAt = current.CreatedAt
	t.st.items[it.ID] = it
	return nil
}

func (t *inventoryTx) DeleteItem(_ context.Context, tenantID, id int64) error {
	if itemExists(t.st, tenantID, id) {
		delete(t.st.items, id)
	}
	return nil
}

func (t *inventoryTx) CountItemLedgerRows(_ context.Context, tenantID, id int64) (int, error) {
	n := 0
	for _, row := range t.st.ledger[id] {
		if row.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}
