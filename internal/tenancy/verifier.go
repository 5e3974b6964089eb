package tenancy

import (
	"context"
	"slices"
)

// Store loads tenants.
type Store interface {
	GetTenant(ctx context.Context, id int64) (Account, error)
}

// Verifier checks tenant access.
type Verifier struct {
	store Store
}

// NewVerifier constructs a Verifier.
func NewVerifier(store Store) *Verifier {
	return &Verifier{store: store}
}

// VerifyAccess succeeds when userID owns or is a member of tenantID, the
// tenant type is one of allowed (any type when allowed is empty) and, for
// employees, capability is granted. An empty capability only checks
// membership.
func (v *Verifier) VerifyAccess(ctx context.Context, userID, tenantID int64, allowed []Type, capability Capability) (Access, error) {
	account, err := v.store.GetTenant(ctx, tenantID)
	if err != nil {
		return Access{}, err
	}
	access := Access{TenantID: account.ID, UserID: userID}
	member, isMember := account.member(userID)
	if isMember {
		access.ApprovalLevel = member.ApprovalLevel
	}
	access.Owner = account.OwnerID == userID
	if !access.Owner && !isMember {
		return Access{}, ErrNotMember
	}
	if len(allowed) > 0 && !slices.Contains(allowed, account.Type) {
		return Access{}, ErrTypeNotAllowed
	}
	if capability == "" || access.Owner || member.Role != RoleEmployee {
		return access, nil
	}
	if !member.Permissions[capability] {
		return Access{}, ErrCapabilityDenied
	}
	return access, nil
}
