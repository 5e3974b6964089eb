package mappings

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository reads and writes account mappings.
type Repository interface {
	Get(ctx context.Context, tenantID int64, module, key string) (AccountMapping, error)
	Upsert(ctx context.Context, mapping AccountMapping) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the PostgreSQL mapping repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, tenantID int64, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, shared.Validation(shared.CodeInvalidInput, "accounting: module and key required")
	}
	normalized := strings.ToUpper(module)
	mapping := AccountMapping{TenantID: tenantID}
	err := r.db.QueryRow(ctx, `SELECT module, key, account_id FROM account_mappings WHERE tenant_id=$1 AND module=$2 AND key=$3`, tenantID, normalized, key).
		Scan(&mapping.Module, &mapping.Key, &mapping.AccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}

// Upsert stores or replaces a mapping.
func (r *repository) Upsert(ctx context.Context, m AccountMapping) error {
	if m.TenantID == 0 || m.Module == "" || m.Key == "" || m.AccountID == 0 {
		return shared.Validation(shared.CodeInvalidInput, "accounting: tenant, module, key and account required")
	}
	_, err := r.db.Exec(ctx, `INSERT INTO account_mappings (tenant_id, module, key, account_id) VALUES ($1,$2,$3,$4)
ON CONFLICT (tenant_id, module, key) DO UPDATE SET account_id = EXCLUDED.account_id`,
		m.TenantID, strings.ToUpper(m.Module), m.Key, m.AccountID)
	return err
}
