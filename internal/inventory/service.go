package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, tenantID, id int64) (Item, error)
	ListItems(ctx context.Context, tenantID int64, filter ItemFilter) ([]Item, error)
	ListCategories(ctx context.Context, tenantID int64) ([]Category, error)
	ListLedger(ctx context.Context, tenantID int64, filter LedgerFilter) ([]LedgerRow, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	StockTx
	GetCategory(ctx context.Context, tenantID, id int64) (Category, error)
	HasChildCategories(ctx context.Context, tenantID, id int64) (bool, error)
	CountCategoryItems(ctx context.Context, tenantID, id int64) (int, error)
	InsertCategory(ctx context.Context, c Category) (Category, error)
	DeleteCategory(ctx context.Context, tenantID, id int64) error
	InsertItem(ctx context.Context, item Item) (Item, error)
	UpdateItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, tenantID, id int64) error
	CountItemLedgerRows(ctx context.Context, tenantID, id int64) (int, error)
}

// SequencePort allocates document numbers.
type SequencePort interface {
	Next(ctx context.Context, tenantID int64, prefix string, resetYearly bool) (string, error)
}

// Service coordinates inventory operations.
type Service struct {
	repo   RepositoryPort
	engine *Engine
	seq    SequencePort
	audit  shared.AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, engine *Engine, seq SequencePort, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, engine: engine, seq: seq, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateCategory adds a category, optionally below a parent. A parent that
// already holds items cannot receive children since items must stay on leaves.
func (s *Service) CreateCategory(ctx context.Context, tenantID int64, name string, parentID *int64, actorID int64) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, shared.Validation(shared.CodeInvalidInput, "inventory: category name required")
	}
	var created Category
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if parentID != nil {
			if _, err := tx.GetCategory(ctx, tenantID, *parentID); err != nil {
				return err
			}
			n, err := tx.CountCategoryItems(ctx, tenantID, *parentID)
			if err != nil {
				return err
			}
			if n > 0 {
				return ErrCategoryInUse
			}
		}
		c, err := tx.InsertCategory(ctx, Category{TenantID: tenantID, Name: name, ParentID: parentID})
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return Category{}, err
	}
	s.record(ctx, tenantID, actorID, "category.create", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// ListCategories returns the tenant's categories ordered by name.
func (s *Service) ListCategories(ctx context.Context, tenantID int64) ([]Category, error) {
	cats, err := s.repo.ListCategories(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sort.Slice(cats, func(i, j int) bool { return strings.ToLower(cats[i].Name) < strings.ToLower(cats[j].Name) })
	return cats, nil
}

// DeleteCategory removes a category without children or items.
func (s *Service) DeleteCategory(ctx context.Context, tenantID, id, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetCategory(ctx, tenantID, id); err != nil {
			return err
		}
		children, err := tx.HasChildCategories(ctx, tenantID, id)
		if err != nil {
			return err
		}
		items, err := tx.CountCategoryItems(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if children || items > 0 {
			return ErrCategoryInUse
		}
		return tx.DeleteCategory(ctx, tenantID, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, tenantID, actorID, "category.delete", id, nil)
	return nil
}

func ensureLeaf(ctx context.Context, tx TxRepository, tenantID, categoryID int64) error {
	if _, err := tx.GetCategory(ctx, tenantID, categoryID); err != nil {
		return err
	}
	children, err := tx.HasChildCategories(ctx, tenantID, categoryID)
	if err != nil {
		return err
	}
	if children {
		return ErrNonLeafCategory
	}
	return nil
}

func validateItemPrices(item Item) error {
	if item.CostPrice.IsNegative() || item.SellingPrice.IsNegative() {
		return ErrInvalidUnitCost
	}
	if item.MinQty.IsNegative() || item.ReorderQty.IsNegative() {
		return ErrInvalidQuantity
	}
	return nil
}

// CreateItem adds an item with zero stock on a leaf category.
func (s *Service) CreateItem(ctx context.Context, tenantID int64, input ItemInput) (Item, error) {
	item := Item{
		TenantID:     tenantID,
		Name:         strings.TrimSpace(input.Name),
		SKU:          strings.TrimSpace(input.SKU),
		Barcode:      strings.TrimSpace(input.Barcode),
		UOM:          UOM(strings.ToUpper(string(input.UOM))),
		CategoryID:   input.CategoryID,
		CostPrice:    input.CostPrice,
		SellingPrice: input.SellingPrice,
		MinQty:       input.MinQty,
		ReorderQty:   input.ReorderQty,
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	if item.Name == "" {
		return Item{}, shared.Validation(shared.CodeInvalidInput, "inventory: item name required")
	}
	if !item.UOM.Valid() {
		return Item{}, shared.Validation(shared.CodeInvalidInput, fmt.Sprintf("inventory: unsupported unit %q", input.UOM))
	}
	if err := validateItemPrices(item); err != nil {
		return Item{}, err
	}
	var created Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := ensureLeaf(ctx, tx, tenantID, item.CategoryID); err != nil {
			return err
		}
		var err error
		created, err = tx.InsertItem(ctx, item)
		return err
	})
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, tenantID, input.ActorID, "item.create", created.ID, map[string]any{"name": created.Name, "sku": created.SKU})
	return created, nil
}

// UpdateItem changes item master data.
func (s *Service) UpdateItem(ctx context.Context, tenantID, id int64, patch ItemPatch) (Item, error) {
	var updated Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.LockItem(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			item.Name = strings.TrimSpace(*patch.Name)
			if item.Name == "" {
				return shared.Validation(shared.CodeInvalidInput, "inventory: item name required")
			}
		}
		if patch.SKU != nil {
			item.SKU = strings.TrimSpace(*patch.SKU)
		}
		if patch.Barcode != nil {
			item.Barcode = strings.TrimSpace(*patch.Barcode)
		}
		if patch.CategoryID != nil && *patch.CategoryID != item.CategoryID {
			if err := ensureLeaf(ctx, tx, tenantID, *patch.CategoryID); err != nil {
				return err
			}
			item.CategoryID = *patch.CategoryID
		}
		if patch.CostPrice != nil {
			item.CostPrice = *patch.CostPrice
		}
		if patch.SellingPrice != nil {
			item.SellingPrice = *patch.SellingPrice
		}
		if patch.MinQty != nil {
			item.MinQty = *patch.MinQty
		}
		if patch.ReorderQty != nil {
			item.ReorderQty = *patch.ReorderQty
		}
		if patch.IsActive != nil {
			item.IsActive = *patch.IsActive
		}
		if err := validateItemPrices(item); err != nil {
			return err
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, tenantID, patch.ActorID, "item.update", id, nil)
	return updated, nil
}

// DeleteItem removes an item that never moved.
func (s *Service) DeleteItem(ctx context.Context, tenantID, id, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockItem(ctx, tenantID, id); err != nil {
			return err
		}
		n, err := tx.CountItemLedgerRows(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrItemInUse
		}
		return tx.DeleteItem(ctx, tenantID, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, tenantID, actorID, "item.delete", id, nil)
	return nil
}

// GetItem returns an item.
func (s *Service) GetItem(ctx context.Context, tenantID, id int64) (Item, error) {
	return s.repo.GetItem(ctx, tenantID, id)
}

// ListItems returns items ordered by name.
func (s *Service) ListItems(ctx context.Context, tenantID int64, filter ItemFilter) ([]Item, error) {
	return s.repo.ListItems(ctx, tenantID, filter)
}

// ListReorderCandidates returns active items whose on-hand quantity has
// fallen to or below their minimum.
func (s *Service) ListReorderCandidates(ctx context.Context, tenantID int64) ([]Item, error) {
	items, err := s.repo.ListItems(ctx, tenantID, ItemFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	var out []Item
	for _, it := range items {
		if it.MinQty.IsPositive() && it.OnHandQty.LessThanOrEqual(it.MinQty) {
			out = append(out, it)
		}
	}
	return out, nil
}

// PostAdjustment records a signed stock correction valued at the current average.
func (s *Service) PostAdjustment(ctx context.Context, tenantID int64, input AdjustmentInput) (LedgerRow, error) {
	if input.ItemID == 0 {
		return LedgerRow{}, shared.Validation(shared.CodeItemNotFound, "inventory: item required")
	}
	if input.Qty.IsZero() {
		return LedgerRow{}, ErrInvalidQuantity
	}
	var row LedgerRow
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := s.seq.Next(ctx, tenantID, sequence.PrefixAdjustment, true)
		if err != nil {
			return err
		}
		row, _, err = s.engine.Post(ctx, tx, Movement{
			TenantID:  tenantID,
			ItemID:    input.ItemID,
			DocType:   DocAdjustment,
			DocNumber: number,
			DocDate:   input.Date,
			Qty:       input.Qty,
			ActorID:   input.ActorID,
		})
		return err
	})
	if err != nil {
		return LedgerRow{}, err
	}
	s.record(ctx, tenantID, input.ActorID, "stock.adjust", row.ID, map[string]any{
		"item_id": input.ItemID,
		"qty":     input.Qty.String(),
		"number":  row.DocNumber,
		"note":    input.Note,
	})
	return row, nil
}

// ListLedger returns ledger rows oldest first.
func (s *Service) ListLedger(ctx context.Context, tenantID int64, filter LedgerFilter) ([]LedgerRow, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, shared.Validation(shared.CodeInvalidDateRange, "inventory: date range end before start")
	}
	return s.repo.ListLedger(ctx, tenantID, filter)
}

// VerifyItem recomputes the item's ledger chain and compares the cached
// item balance with the latest row. Divergence is an integrity error.
func (s *Service) VerifyItem(ctx context.Context, tenantID, itemID int64) error {
	item, err := s.repo.GetItem(ctx, tenantID, itemID)
	if err != nil {
		return err
	}
	rows, err := s.repo.ListLedger(ctx, tenantID, LedgerFilter{ItemID: itemID})
	if err != nil {
		return err
	}
	if err := VerifyChain(rows); err != nil {
		return err
	}
	var last LedgerRow
	if len(rows) > 0 {
		last = rows[len(rows)-1]
	}
	if !last.BalanceQty.Equal(item.OnHandQty) || !last.BalanceAvgCost.Equal(item.AvgCost) {
		return &shared.Error{
			Kind: shared.KindIntegrity,
			Code: shared.CodeBalanceDivergence,
			Message: fmt.Sprintf("inventory: item %d cached %s @ %s, ledger %s @ %s", itemID,
				item.OnHandQty, item.AvgCost, last.BalanceQty, last.BalanceAvgCost),
			Line: -1,
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, tenantID, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   strings.SplitN(action, ".", 2)[0],
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
