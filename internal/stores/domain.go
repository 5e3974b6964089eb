// Package stores handles department requisitions, store issues and the
// allocation of issued stock cost to departments.
package stores

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Department consumes stock.
type Department struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
}

// Requisition is a department's request for stock.
type Requisition struct {
	ID           int64               `json:"id"`
	TenantID     int64               `json:"tenant_id"`
	Number       string              `json:"number"`
	DepartmentID int64               `json:"department_id"`
	Date         time.Time           `json:"date"`
	Status       approval.Status     `json:"status"`
	Notes        string              `json:"notes"`
	CreatedBy    int64               `json:"created_by"`
	UpdatedBy    int64               `json:"updated_by"`
	Lines        []RequisitionLine   `json:"lines"`
	IssueIDs     []int64             `json:"issue_ids"`
	Approvals    []approval.Approval `json:"approvals,omitempty"`
}

// RequisitionLine is one requested item.
type RequisitionLine struct {
	ID            int64           `json:"id"`
	RequisitionID int64           `json:"requisition_id"`
	ItemID        int64           `json:"item_id"`
	Qty           decimal.Decimal `json:"qty"`
	Remark        string          `json:"remark"`
}

// Issue hands stock out to a department.
type Issue struct {
	ID            int64               `json:"id"`
	TenantID      int64               `json:"tenant_id"`
	Number        string              `json:"number"`
	DepartmentID  int64               `json:"department_id"`
	RequisitionID *int64              `json:"requisition_id,omitempty"`
	Date          time.Time           `json:"date"`
	Status        approval.Status     `json:"status"`
	Notes         string              `json:"notes"`
	CreatedBy     int64               `json:"created_by"`
	UpdatedBy     int64               `json:"updated_by"`
	Lines         []IssueLine         `json:"lines"`
	Approvals     []approval.Approval `json:"approvals,omitempty"`
}

// Total returns the cost of the issued stock.
func (i Issue) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range i.Lines {
		total = total.Add(l.Qty.Mul(l.UnitCost))
	}
	return total
}

// IssueLine is one issued item. UnitCost is the moving average at issue time.
type IssueLine struct {
	ID          int64           `json:"id"`
	IssueID     int64           `json:"issue_id"`
	ItemID      int64           `json:"item_id"`
	Qty         decimal.Decimal `json:"qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	LedgerRowID int64           `json:"ledger_row_id"`
}

// Allocation charges issued stock cost to a department.
type Allocation struct {
	ID            int64           `json:"id"`
	TenantID      int64           `json:"tenant_id"`
	DepartmentID  int64           `json:"department_id"`
	IssueID       int64           `json:"issue_id"`
	RequisitionID *int64          `json:"requisition_id,omitempty"`
	ItemID        int64           `json:"item_id"`
	Qty           decimal.Decimal `json:"qty"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	IssueDate     time.Time       `json:"issue_date"`
}

// DepartmentCost summarises allocations of one department.
type DepartmentCost struct {
	DepartmentID int64           `json:"department_id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Issues       int             `json:"issues"`
	Qty          decimal.Decimal `json:"qty"`
	TotalCost    decimal.Decimal `json:"total_cost"`
}

// DepartmentInput creates a department.
type DepartmentInput struct {
	Code    string `json:"code" validate:"required"`
	Name    string `json:"name" validate:"required"`
	ActorID int64  `json:"-"`
}

// RequisitionInput creates a requisition.
type RequisitionInput struct {
	DepartmentID int64                  `json:"department_id" validate:"required"`
	Date         time.Time              `json:"date"`
	Notes        string                 `json:"notes"`
	Lines        []RequisitionLineInput `json:"lines" validate:"required,min=1,dive"`
	ActorID      int64                  `json:"-"`
}

// RequisitionLineInput is a requested item.
type RequisitionLineInput struct {
	ItemID int64           `json:"item_id" validate:"required"`
	Qty    decimal.Decimal `json:"qty"`
	Remark string          `json:"remark"`
}

// IssueInput creates a store issue, optionally against a requisition.
type IssueInput struct {
	DepartmentID   int64            `json:"department_id" validate:"required"`
	RequisitionID  *int64           `json:"requisition_id"`
	Date           time.Time        `json:"date"`
	Notes          string           `json:"notes"`
	Lines          []IssueLineInput `json:"lines" validate:"required,min=1,dive"`
	IdempotencyKey string           `json:"-"`
	ActorID        int64            `json:"-"`
}

// IssueLineInput is an item to issue. Cost is always taken from the ledger.
type IssueLineInput struct {
	ItemID int64           `json:"item_id" validate:"required"`
	Qty    decimal.Decimal `json:"qty"`
}

// DocFilter narrows requisition and issue listings.
type DocFilter struct {
	DepartmentID int64
	Status       approval.Status
	From         *time.Time
	To           *time.Time
	Limit        int
}

// AllocationFilter narrows allocation listings.
type AllocationFilter struct {
	DepartmentID int64
	ItemID       int64
	From         *time.Time
	To           *time.Time
}

// IssuePostedEvent is published after an issue commits.
type IssuePostedEvent struct {
	TenantID     int64     `json:"tenant_id"`
	IssueID      int64     `json:"issue_id"`
	Number       string    `json:"number"`
	DepartmentID int64     `json:"department_id"`
	IssueDate    time.Time `json:"issue_date"`
	ActorID      int64     `json:"actor_id"`
}

var (
	// ErrDepartmentNotFound indicates a missing department.
	ErrDepartmentNotFound = shared.NotFound("stores: department not found")
	// ErrRequisitionNotFound indicates a missing requisition.
	ErrRequisitionNotFound = shared.NotFound("stores: requisition not found")
	// ErrIssueNotFound indicates a missing issue.
	ErrIssueNotFound = shared.NotFound("stores: issue not found")
	// ErrDuplicateDepartment indicates a department code collision.
	ErrDuplicateDepartment = shared.Conflict(shared.CodeDuplicate, "stores: department code already exists")
	// ErrRequisitionNotApproved blocks issuing against unapproved or closed requisitions.
	ErrRequisitionNotApproved = shared.Conflict(shared.CodeInvalidState, "stores: requisition is not approved for issue")
	// ErrDepartmentMismatch rejects issuing a requisition to another department.
	ErrDepartmentMismatch = shared.Validation(shared.CodeInvalidInput, "stores: requisition belongs to another department")
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = shared.Conflict(shared.CodeInvalidState, "stores: invalid state transition")
)
