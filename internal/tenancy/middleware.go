package tenancy

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// UserHeader carries the authenticated user id set by the upstream gateway.
const UserHeader = "X-User-ID"

// Middleware wires tenant authorization helpers for HTTP handlers.
type Middleware struct {
	Verifier *Verifier
	Logger   *slog.Logger
}

// Tenant resolves the {tenantID} route parameter, verifies membership and
// stores tenant and actor in the request context.
func (m Middleware) Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := httpx.ParseID(chi.URLParam(r, "tenantID"))
		if err != nil {
			httpx.RespondError(w, m.Logger, err)
			return
		}
		userID, ok := currentUserID(r)
		if !ok {
			httpx.RespondError(w, m.Logger, ErrNotMember)
			return
		}
		access, err := m.Verifier.VerifyAccess(r.Context(), userID, tenantID, nil, "")
		if err != nil {
			m.deny(w, r, userID, tenantID, err)
			return
		}
		ctx := shared.ContextWithTenant(r.Context(), access.TenantID)
		ctx = shared.ContextWithActor(ctx, access.Actor())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require ensures the current user holds capability on the tenant and that
// the tenant is one of types (any type when none are given).
func (m Middleware) Require(capability Capability, types ...Type) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, ok := shared.TenantFromContext(r.Context())
			actor, okActor := shared.ActorFromContext(r.Context())
			if !ok || !okActor {
				httpx.RespondError(w, m.Logger, ErrNotMember)
				return
			}
			if _, err := m.Verifier.VerifyAccess(r.Context(), actor.UserID, tenantID, types, capability); err != nil {
				m.deny(w, r, actor.UserID, tenantID, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, userID, tenantID int64, err error) {
	if m.Logger != nil && shared.KindOf(err) == shared.KindForbidden {
		m.Logger.Warn("tenant access denied",
			slog.Int64("user_id", userID),
			slog.Int64("tenant_id", tenantID),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, m.Logger, err)
}

func currentUserID(r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get(UserHeader))
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
