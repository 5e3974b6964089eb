package tenancy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type stubStore map[int64]Account

func (s stubStore) GetTenant(_ context.Context, id int64) (Account, error) {
	a, ok := s[id]
	if !ok {
		return Account{}, ErrTenantNotFound
	}
	return a, nil
}

func hotelTenant() stubStore {
	return stubStore{1: {
		ID:      1,
		Name:    "Grand",
		Type:    TypeHotel,
		OwnerID: 10,
		Members: []Employee{
			{UserID: 11, Role: RoleCollaborator, ApprovalLevel: 2},
			{UserID: 12, Role: RoleEmployee, ApprovalLevel: 1, Permissions: map[Capability]bool{CapInventory: true}},
		},
	}}
}

func TestVerifyAccess(t *testing.T) {
	v := NewVerifier(hotelTenant())
	ctx := context.Background()

	access, err := v.VerifyAccess(ctx, 10, 1, []Type{TypeHotel}, CapReports)
	require.NoError(t, err)
	require.True(t, access.Owner)

	access, err = v.VerifyAccess(ctx, 11, 1, nil, CapSettings)
	require.NoError(t, err)
	require.Equal(t, 2, access.ApprovalLevel)

	_, err = v.VerifyAccess(ctx, 12, 1, nil, CapInventory)
	require.NoError(t, err)

	_, err = v.VerifyAccess(ctx, 12, 1, nil, CapReports)
	require.ErrorIs(t, err, ErrCapabilityDenied)
	require.True(t, errors.Is(err, shared.ErrAccessDenied))

	_, err = v.VerifyAccess(ctx, 99, 1, nil, "")
	require.ErrorIs(t, err, ErrNotMember)

	_, err = v.VerifyAccess(ctx, 10, 1, []Type{TypeBusiness}, "")
	require.ErrorIs(t, err, ErrTypeNotAllowed)

	_, err = v.VerifyAccess(ctx, 10, 2, nil, "")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMiddlewareInstallsScope(t *testing.T) {
	m := Middleware{Verifier: NewVerifier(hotelTenant())}
	r := chi.NewRouter()
	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Use(m.Tenant)
		r.With(m.Require(CapReports)).Get("/reports", func(w http.ResponseWriter, r *http.Request) {
			tenantID, ok := shared.TenantFromContext(r.Context())
			require.True(t, ok)
			require.Equal(t, int64(1), tenantID)
			actor, ok := shared.ActorFromContext(r.Context())
			require.True(t, ok)
			require.Equal(t, int64(11), actor.UserID)
			w.WriteHeader(http.StatusNoContent)
		})
	})

	cases := []struct {
		user   string
		path   string
		status int
	}{
		{"11", "/tenants/1/reports", http.StatusNoContent},
		{"12", "/tenants/1/reports", http.StatusForbidden},
		{"", "/tenants/1/reports", http.StatusForbidden},
		{"11", "/tenants/7/reports", http.StatusNotFound},
		{"11", "/tenants/x/reports", http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.user != "" {
			req.Header.Set(UserHeader, tc.user)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, tc.status, rec.Code, "user %q path %s", tc.user, tc.path)
	}
}
