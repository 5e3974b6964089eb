package tenancy

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads tenants from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetTenant loads a tenant with its members.
func (r *Repository) GetTenant(ctx context.Context, id int64) (Account, error) {
	var a Account
	err := r.pool.QueryRow(ctx, `SELECT id, name, type, owner_id FROM tenants WHERE id=$1`, id).
		Scan(&a.ID, &a.Name, &a.Type, &a.OwnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrTenantNotFound
	}
	if err != nil {
		return Account{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT user_id, role, approval_level, permissions FROM tenant_members WHERE tenant_id=$1`, id)
	if err != nil {
		return Account{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m   Employee
			raw []byte
		)
		if err := rows.Scan(&m.UserID, &m.Role, &m.ApprovalLevel, &raw); err != nil {
			return Account{}, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &m.Permissions); err != nil {
				return Account{}, err
			}
		}
		a.Members = append(a.Members, m)
	}
	return a, rows.Err()
}

// CreateTenant inserts a tenant and its members.
func (r *Repository) CreateTenant(ctx context.Context, a Account) (Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Account{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := tx.QueryRow(ctx, `INSERT INTO tenants (name, type, owner_id) VALUES ($1,$2,$3) RETURNING id`,
		a.Name, string(a.Type), a.OwnerID).Scan(&a.ID); err != nil {
		return Account{}, err
	}
	for _, m := range a.Members {
		perms, err := json.Marshal(m.Permissions)
		if err != nil {
			return Account{}, err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO tenant_members (tenant_id, user_id, role, approval_level, permissions)
VALUES ($1,$2,$3,$4,$5)`, a.ID, m.UserID, m.Role, m.ApprovalLevel, perms); err != nil {
			return Account{}, err
		}
	}
	return a, tx.Commit(ctx)
}
