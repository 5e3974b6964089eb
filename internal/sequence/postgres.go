package sequence

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps counters in the sequences table. The upsert runs as a
// single statement so concurrent callers serialize on the row lock.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Increment implements Store.
func (s *PostgresStore) Increment(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `INSERT INTO sequences (key, seq) VALUES ($1, 1)
ON CONFLICT (key) DO UPDATE SET seq = sequences.seq + 1
RETURNING seq`, key).Scan(&n)
	return n, err
}
