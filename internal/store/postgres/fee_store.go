package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predictify/engine/internal/domain"
)

// FeeStore implements the append-only fee audit history on PostgreSQL.
type FeeStore struct {
	pool *pgxpool.Pool
}

// NewFeeStore creates a new FeeStore backed by the given pool.
func NewFeeStore(pool *pgxpool.Pool) *FeeStore {
	return &FeeStore{pool: pool}
}

var _ domain.FeeAuditStore = (*FeeStore)(nil)

// Append records one fee collection. Rows are never updated or deleted.
func (s *FeeStore) Append(ctx context.Context, fc *domain.FeeCollection) error {
	const query = `
		INSERT INTO fee_collections (id, market_id, amount, collected_by, collected_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query, fc.ID, fc.MarketID, fc.Amount, fc.CollectedBy, fc.CollectedAt)
	if err != nil {
		return fmt.Errorf("postgres: append fee collection %s: %w", fc.ID, err)
	}
	return nil
}

// ListByMarket returns the fee collections recorded for a market.
func (s *FeeStore) ListByMarket(ctx context.Context, marketID string) ([]*domain.FeeCollection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, amount, collected_by, collected_at
		 FROM fee_collections WHERE market_id = $1 ORDER BY collected_at`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fee collections for %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []*domain.FeeCollection
	for rows.Next() {
		var fc domain.FeeCollection
		if err := rows.Scan(&fc.ID, &fc.MarketID, &fc.Amount, &fc.CollectedBy, &fc.CollectedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan fee collection: %w", err)
		}
		out = append(out, &fc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list fee collections rows: %w", err)
	}
	return out, nil
}

// TotalCollected sums every fee ever collected.
func (s *FeeStore) TotalCollected(ctx context.Context) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM fee_collections").Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("postgres: total collected: %w", err)
	}
	return total, nil
}
