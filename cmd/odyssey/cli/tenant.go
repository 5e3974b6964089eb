package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/tenancy"
)

// TenantCreator persists tenants.
type TenantCreator interface {
	CreateTenant(ctx context.Context, a tenancy.Account) (tenancy.Account, error)
}

// TenantOptions describes a tenant to create.
type TenantOptions struct {
	Name    string
	Type    string
	OwnerID int64
}

// CreateTenant validates opts and stores the tenant.
func CreateTenant(ctx context.Context, store TenantCreator, opts TenantOptions) (tenancy.Account, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return tenancy.Account{}, errors.New("tenant: name is required")
	}
	if opts.OwnerID <= 0 {
		return tenancy.Account{}, errors.New("tenant: owner must be positive")
	}
	typ := tenancy.Type(strings.ToLower(strings.TrimSpace(opts.Type)))
	switch typ {
	case "":
		typ = tenancy.TypeBusiness
	case tenancy.TypePersonal, tenancy.TypeFamily, tenancy.TypeBusiness, tenancy.TypeGroup, tenancy.TypeHotel:
	default:
		return tenancy.Account{}, fmt.Errorf("tenant: unknown type %q", opts.Type)
	}
	return store.CreateTenant(ctx, tenancy.Account{Name: name, Type: typ, OwnerID: opts.OwnerID})
}
