package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository aggregates journal lines in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the report repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AccountTotals sums journal lines per chart account. Accounts without
// activity are returned with zero totals.
func (r *Repository) AccountTotals(ctx context.Context, tenantID int64, from, to *time.Time) ([]AccountTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.code, a.name, a.type, a.subtype, COALESCE(t.debit, 0), COALESCE(t.credit, 0)
FROM chart_accounts a
LEFT JOIN (
    SELECT l.chart_account_id, SUM(l.debit)::bigint AS debit, SUM(l.credit)::bigint AS credit
    FROM journal_lines l
    JOIN journal_entries e ON e.id = l.entry_id
    WHERE e.tenant_id = $1
      AND ($2::timestamptz IS NULL OR e.entry_date >= $2)
      AND ($3::timestamptz IS NULL OR e.entry_date <= $3)
    GROUP BY l.chart_account_id
) t ON t.chart_account_id = a.id
WHERE a.tenant_id = $1
ORDER BY a.code`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountTotal
	for rows.Next() {
		var a AccountTotal
		if err := rows.Scan(&a.AccountID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.Debit, &a.Credit); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
