package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// UOM enumerates units of measure.
type UOM string

const (
	UOMEach  UOM = "EA"
	UOMKilo  UOM = "KG"
	UOMLitre UOM = "LT"
	UOMMetre UOM = "M"
	UOMBox   UOM = "BOX"
	UOMPack  UOM = "PACK"
)

// Valid reports whether u is a supported unit.
func (u UOM) Valid() bool {
	switch u {
	case UOMEach, UOMKilo, UOMLitre, UOMMetre, UOMBox, UOMPack:
		return true
	}
	return false
}

// DocType identifies the source document of a stock ledger row.
type DocType string

const (
	DocGRN        DocType = "GRN"
	DocIssue      DocType = "ISSUE"
	DocAdjustment DocType = "ADJUSTMENT"
)

// Category groups items. Only leaf categories may hold items.
type Category struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// Item is a stock keeping unit. OnHandQty and AvgCost mirror the latest
// stock ledger row and are never authoritative.
type Item struct {
	ID           int64           `json:"id"`
	TenantID     int64           `json:"tenant_id"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku"`
	Barcode      string          `json:"barcode"`
	UOM          UOM             `json:"uom"`
	CategoryID   int64           `json:"category_id"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	OnHandQty    decimal.Decimal `json:"on_hand_qty"`
	AvgCost      decimal.Decimal `json:"avg_cost"`
	MinQty       decimal.Decimal `json:"min_qty"`
	ReorderQty   decimal.Decimal `json:"reorder_qty"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LedgerRow is one append-only stock movement. Exactly one of
// ReceivedQty, IssuedQty and AdjustQty is non-zero.
type LedgerRow struct {
	ID             int64           `json:"id"`
	TenantID       int64           `json:"tenant_id"`
	ItemID         int64           `json:"item_id"`
	Seq            int64           `json:"seq"`
	DocType        DocType         `json:"doc_type"`
	DocID          int64           `json:"doc_id"`
	DocNumber      string          `json:"doc_number"`
	DocDate        time.Time       `json:"doc_date"`
	OpeningQty     decimal.Decimal `json:"opening_qty"`
	ReceivedQty    decimal.Decimal `json:"received_qty"`
	IssuedQty      decimal.Decimal `json:"issued_qty"`
	AdjustQty      decimal.Decimal `json:"adjust_qty"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	BalanceQty     decimal.Decimal `json:"balance_qty"`
	BalanceAvgCost decimal.Decimal `json:"balance_avg_cost"`
	CreatedBy      int64           `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Movement is a request to the costing engine. Qty is positive for
// receipts and issues and signed for adjustments. UnitCost is only read
// for receipts.
type Movement struct {
	TenantID  int64
	ItemID    int64
	DocType   DocType
	DocID     int64
	DocNumber string
	DocDate   time.Time
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	ActorID   int64
}

// ItemInput creates an item.
type ItemInput struct {
	Name         string          `json:"name" validate:"required"`
	SKU          string          `json:"sku"`
	Barcode      string          `json:"barcode"`
	UOM          UOM             `json:"uom" validate:"required"`
	CategoryID   int64           `json:"category_id" validate:"required"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	MinQty       decimal.Decimal `json:"min_qty"`
	ReorderQty   decimal.Decimal `json:"reorder_qty"`
	ActorID      int64           `json:"-"`
}

// ItemPatch updates master data; stock fields are owned by the ledger.
type ItemPatch struct {
	Name         *string          `json:"name"`
	SKU          *string          `json:"sku"`
	Barcode      *string          `json:"barcode"`
	CategoryID   *int64           `json:"category_id"`
	CostPrice    *decimal.Decimal `json:"cost_price"`
	SellingPrice *decimal.Decimal `json:"selling_price"`
	MinQty       *decimal.Decimal `json:"min_qty"`
	ReorderQty   *decimal.Decimal `json:"reorder_qty"`
	IsActive     *bool            `json:"is_active"`
	ActorID      int64            `json:"-"`
}

// ItemFilter narrows item listings.
type ItemFilter struct {
	CategoryID int64
	ActiveOnly bool
}

// LedgerFilter narrows stock ledger listings.
type LedgerFilter struct {
	ItemID  int64
	DocType DocType
	From    *time.Time
	To      *time.Time
	Limit   int
}

// AdjustmentInput describes a manual stock correction.
type AdjustmentInput struct {
	ItemID  int64           `json:"item_id" validate:"required"`
	Qty     decimal.Decimal `json:"qty"`
	Date    time.Time       `json:"date"`
	Note    string          `json:"note"`
	ActorID int64           `json:"-"`
}

var (
	// ErrInsufficientStock rejects issues beyond the balance.
	ErrInsufficientStock = shared.Conflict(shared.CodeInsufficientStock, "inventory: insufficient stock")
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = shared.Validation(shared.CodeInvalidQuantity, "inventory: quantity must be positive")
	// ErrInvalidUnitCost indicates invalid cost value.
	ErrInvalidUnitCost = shared.Validation(shared.CodeInvalidCost, "inventory: unit cost must be >= 0")
	// ErrItemNotFound indicates a missing item.
	ErrItemNotFound = shared.NotFound("inventory: item not found")
	// ErrCategoryNotFound indicates a missing category.
	ErrCategoryNotFound = shared.NotFound("inventory: category not found")
	// ErrNonLeafCategory rejects items placed on a category with children.
	ErrNonLeafCategory = shared.Validation(shared.CodeNonLeafCategory, "inventory: items must belong to a leaf category")
	// ErrDuplicateItem indicates name, SKU or barcode collision.
	ErrDuplicateItem = shared.Conflict(shared.CodeDuplicate, "inventory: item name, sku or barcode already exists")
	// ErrDuplicateCategory indicates a category name collision.
	ErrDuplicateCategory = shared.Conflict(shared.CodeDuplicate, "inventory: category already exists")
	// ErrItemInUse blocks deleting items with ledger history.
	ErrItemInUse = shared.Conflict(shared.CodeItemInUse, "inventory: item has stock ledger rows")
	// ErrCategoryInUse blocks deleting categories with children or items.
	ErrCategoryInUse = shared.Conflict(shared.CodeCategoryInUse, "inventory: category has children or items")
	// ErrBalanceDivergence flags an item cache that disagrees with its ledger.
	ErrBalanceDivergence = shared.Integrity(shared.CodeBalanceDivergence, "inventory: item balance diverges from stock ledger")
	// ErrLedgerChainBroken flags a ledger row that does not follow its predecessor.
	ErrLedgerChainBroken = shared.Integrity(shared.CodeLedgerChainBroken, "inventory: stock ledger chain broken")
)
