// Package tenancy resolves which tenant accounts a user may operate on.
package tenancy

import "github.com/odyssey-erp/odyssey-ledger/internal/shared"

// Type classifies a tenant account.
type Type string

const (
	TypePersonal Type = "personal"
	TypeFamily   Type = "family"
	TypeBusiness Type = "business"
	TypeGroup    Type = "group"
	TypeHotel    Type = "hotel"
)

// Capability is a permission flag granted to employees of a tenant.
type Capability string

const (
	CapTransactions Capability = "transactions"
	CapReports      Capability = "reports"
	CapCategories   Capability = "categories"
	CapSettings     Capability = "settings"
	CapInventory    Capability = "inventory"
	CapProcurement  Capability = "procurement"
	CapStores       Capability = "stores"
)

// Role values for tenant members.
const (
	RoleCollaborator = "collaborator"
	RoleEmployee     = "employee"
)

// Employee is a member whose access is limited to granted capabilities.
type Employee struct {
	UserID        int64
	Role          string
	ApprovalLevel int
	Permissions   map[Capability]bool
}

// Account is a tenant: the unit of data isolation.
type Account struct {
	ID      int64
	Name    string
	Type    Type
	OwnerID int64
	Members []Employee
}

// Access describes what the verified user may do on the tenant.
type Access struct {
	TenantID      int64
	UserID        int64
	Owner         bool
	ApprovalLevel int
}

// Actor converts the access into the acting user carried by requests.
func (a Access) Actor() shared.Actor {
	return shared.Actor{UserID: a.UserID, ApprovalLevel: a.ApprovalLevel}
}

// member returns the membership record of userID.
func (a Account) member(userID int64) (Employee, bool) {
	for _, m := range a.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Employee{}, false
}

var (
	// ErrTenantNotFound indicates the tenant does not exist.
	ErrTenantNotFound = shared.NotFound("tenancy: tenant not found")
	// ErrNotMember rejects users without ownership or membership.
	ErrNotMember = &shared.Error{Kind: shared.KindForbidden, Code: shared.CodeAccessDenied, Message: "tenancy: not authorized for this tenant", Line: -1, Err: shared.ErrAccessDenied}
	// ErrTypeNotAllowed rejects tenants of a type the operation does not serve.
	ErrTypeNotAllowed = &shared.Error{Kind: shared.KindForbidden, Code: shared.CodeAccessDenied, Message: "tenancy: operation not available for this tenant type", Line: -1, Err: shared.ErrAccessDenied}
	// ErrCapabilityDenied rejects employees lacking the capability.
	ErrCapabilityDenied = &shared.Error{Kind: shared.KindForbidden, Code: shared.CodeAccessDenied, Message: "tenancy: missing permission", Line: -1, Err: shared.ErrAccessDenied}
)
