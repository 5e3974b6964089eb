package httpx

import (
	"fmt"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Scope is the tenant and actor a request runs as.
type Scope struct {
	TenantID int64
	Actor    shared.Actor
}

// ScopeFrom reads the scope installed by the tenant middleware.
func ScopeFrom(r *http.Request) (Scope, error) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		return Scope{}, fmt.Errorf("%w: tenant not resolved", ErrBadRequest)
	}
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		return Scope{}, shared.Forbidden(shared.CodeAccessDenied, "actor not resolved")
	}
	return Scope{TenantID: tenantID, Actor: actor}, nil
}
