package sequence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Store is the single query method the repository needs; both *pgxpool.Pool
// and pgx.Tx satisfy it.
type Store interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository hands out monotonically increasing sequence numbers per event
// partition. The catalog publisher partitions by checkout id, so consumers
// can order the events of one checkout without coordinating across checkouts.
type Repository struct {
	store Store
}

func NewRepository(store Store) *Repository {
	return &Repository{store: store}
}

// NextSequence returns the next number for partitionKey, starting at 1. The
// increment and read happen in one upsert, so concurrent publishers on the
// same partition never observe the same value.
func (r *Repository) NextSequence(ctx context.Context, partitionKey string) (int64, error) {
	var seq int64
	err := r.store.QueryRow(ctx, `
		INSERT INTO event_sequence (partition_key, last_sequence)
		VALUES ($1, 1)
		ON CONFLICT (partition_key)
		DO UPDATE SET last_sequence = event_sequence.last_sequence + 1, updated_at = now()
		RETURNING last_sequence
	`, partitionKey).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence for %q: %w", partitionKey, err)
	}
	return seq, nil
}
