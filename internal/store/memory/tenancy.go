package memory

import (
	"context"
	"slices"

	"github.com/odyssey-erp/odyssey-ledger/internal/tenancy"
)

// GetTenant implements tenancy.Store.
func (s *Store) GetTenant(_ context.Context, id int64) (tenancy.Account, error) {
	a, ok := s.snapshot().tenants[id]
	if !ok {
		return tenancy.Account{}, tenancy.ErrTenantNotFound
	}
	a.Members = slices.Clone(a.Members)
	return a, nil
}

// CreateTenant stores a tenant with its members.
func (s *Store) CreateTenant(ctx context.Context, a tenancy.Account) (tenancy.Account, error) {
	err := s.update(ctx, func(st *state) error {
		a.ID = st.id()
		a.Members = slices.Clone(a.Members)
		st.tenants[a.ID] = a
		return nil
	})
	return a, err
}
