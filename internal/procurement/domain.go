package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Supplier is a vendor purchase orders are placed with.
type Supplier struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SupplierInput registers a supplier.
type SupplierInput struct {
	Code    string `json:"code" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone"`
	ActorID int64  `json:"-"`
}

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID         int64               `json:"id"`
	TenantID   int64               `json:"tenant_id"`
	Number     string              `json:"number"`
	SupplierID int64               `json:"supplier_id"`
	Date       time.Time           `json:"date"`
	Status     approval.Status     `json:"status"`
	Notes      string              `json:"notes"`
	CreatedBy  int64               `json:"created_by"`
	UpdatedBy  int64               `json:"updated_by"`
	CreatedAt  time.Time           `json:"created_at"`
	Lines      []POLine            `json:"lines"`
	Approvals  []approval.Approval `json:"approvals,omitempty"`
}

// FullyReceived reports whether every line has been received in full.
func (po PurchaseOrder) FullyReceived() bool {
	for _, l := range po.Lines {
		if l.ReceivedQty.LessThan(l.Qty) {
			return false
		}
	}
	return true
}

// Total returns the ordered value of the PO.
func (po PurchaseOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range po.Lines {
		total = total.Add(l.Qty.Mul(l.UnitPrice))
	}
	return total
}

// POLine represents PO lines.
type POLine struct {
	ID          int64           `json:"id"`
	POID        int64           `json:"po_id"`
	ItemID      int64           `json:"item_id"`
	Qty         decimal.Decimal `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ReceivedQty decimal.Decimal `json:"received_qty"`
}

// GoodsReceipt domain model.
type GoodsReceipt struct {
	ID         int64     `json:"id"`
	TenantID   int64     `json:"tenant_id"`
	Number     string    `json:"number"`
	POID       int64     `json:"po_id"`
	SupplierID int64     `json:"supplier_id"`
	ReceivedAt time.Time `json:"received_at"`
	Notes      string    `json:"notes"`
	CreatedBy  int64     `json:"created_by"`
	Lines      []GRNLine `json:"lines"`
}

// Total returns the stock value received.
func (g GoodsReceipt) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range g.Lines {
		total = total.Add(l.Qty.Mul(l.UnitCost))
	}
	return total
}

// GRNLine describes received goods.
type GRNLine struct {
	ID          int64           `json:"id"`
	GRNID       int64           `json:"grn_id"`
	ItemID      int64           `json:"item_id"`
	Qty         decimal.Decimal `json:"qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	LedgerRowID int64           `json:"ledger_row_id"`
}

// POInput describes PO creation.
type POInput struct {
	SupplierID int64         `json:"supplier_id" validate:"required"`
	Date       time.Time     `json:"date"`
	Notes      string        `json:"notes"`
	Lines      []POLineInput `json:"lines" validate:"required,min=1,dive"`
	ActorID    int64         `json:"-"`
}

// POLineInput describes an ordered line.
type POLineInput struct {
	ItemID    int64           `json:"item_id" validate:"required"`
	Qty       decimal.Decimal `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// GRNInput describes a receipt against a PO.
type GRNInput struct {
	POID           int64          `json:"po_id" validate:"required"`
	Date           time.Time      `json:"date"`
	Notes          string         `json:"notes"`
	Lines          []GRNLineInput `json:"lines" validate:"required,min=1,dive"`
	IdempotencyKey string         `json:"-"`
	ActorID        int64          `json:"-"`
}

// GRNLineInput is the quantity received for one PO item.
type GRNLineInput struct {
	ItemID int64           `json:"item_id" validate:"required"`
	Qty    decimal.Decimal `json:"qty"`
}

// POFilter narrows PO listings.
type POFilter struct {
	Status     approval.Status
	SupplierID int64
	Limit      int
}

// GRNFilter narrows GRN listings.
type GRNFilter struct {
	POID  int64
	From  *time.Time
	To    *time.Time
	Limit int
}

// GRNPostedEvent captures details required to post a GRN to the ledger.
type GRNPostedEvent struct {
	TenantID   int64     `json:"tenant_id"`
	GRNID      int64     `json:"grn_id"`
	Number     string    `json:"number"`
	ReceivedAt time.Time `json:"received_at"`
	ActorID    int64     `json:"actor_id"`
}

var (
	// ErrSupplierNotFound indicates a missing supplier.
	ErrSupplierNotFound = shared.NotFound("procurement: supplier not found")
	// ErrUnknownSupplier rejects orders naming a supplier the tenant does not have.
	ErrUnknownSupplier = shared.Validation(shared.CodeSupplierNotFound, "procurement: supplier not found")
	// ErrDuplicateSupplier indicates a supplier code collision.
	ErrDuplicateSupplier = shared.Conflict(shared.CodeDuplicate, "procurement: supplier code already exists")
	// ErrPONotFound indicates missing purchase order.
	ErrPONotFound = shared.NotFound("procurement: purchase order not found")
	// ErrGRNNotFound indicates missing goods receipt.
	ErrGRNNotFound = shared.NotFound("procurement: goods receipt not found")
	// ErrInvalidPOState rejects receipts against closed orders.
	ErrInvalidPOState = shared.Conflict(shared.CodeInvalidPOState, "procurement: purchase order cannot be received")
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = shared.Conflict(shared.CodeInvalidState, "procurement: invalid state transition")
	// ErrItemNotOnPO rejects receipt lines for items the PO does not order.
	ErrItemNotOnPO = shared.Validation(shared.CodeItemNotFound, "procurement: item not found on purchase order")
	// ErrOverReceipt rejects receipts beyond the ordered quantity.
	ErrOverReceipt = shared.Conflict(shared.CodeOverReceipt, "procurement: received quantity exceeds ordered quantity")
)
