package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predictify/engine/internal/domain"
)

// DisputeStore implements domain.DisputeStore using PostgreSQL.
type DisputeStore struct {
	pool *pgxpool.Pool
}

// NewDisputeStore creates a new DisputeStore backed by the given pool.
func NewDisputeStore(pool *pgxpool.Pool) *DisputeStore {
	return &DisputeStore{pool: pool}
}

var _ domain.DisputeStore = (*DisputeStore)(nil)

// Create inserts a new dispute record.
func (s *DisputeStore) Create(ctx context.Context, d *domain.Dispute) error {
	const query = `
		INSERT INTO disputes (id, market_id, disputer, stake, reason, status, votes, created_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.MarketID, d.Disputer, d.Stake, d.Reason, string(d.Status), d.Votes, d.CreatedAt, d.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create dispute %s: %w", d.ID, err)
	}
	return nil
}

const disputeCols = `id, market_id, disputer, stake, reason, status, votes, created_at, closed_at`

func scanDispute(row pgx.Row) (*domain.Dispute, error) {
	var d domain.Dispute
	var status string
	err := row.Scan(&d.ID, &d.MarketID, &d.Disputer, &d.Stake, &d.Reason, &status, &d.Votes, &d.CreatedAt, &d.ClosedAt)
	if err != nil {
		return nil, err
	}
	d.Status = domain.DisputeStatus(status)
	if d.Votes == nil {
		d.Votes = make(map[string]domain.DisputeVote)
	}
	return &d, nil
}

// Get retrieves a dispute by ID.
func (s *DisputeStore) Get(ctx context.Context, id string) (*domain.Dispute, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+disputeCols+` FROM disputes WHERE id = $1`, id)
	d, err := scanDispute(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDisputeNotFound
		}
		return nil, fmt.Errorf("postgres: get dispute %s: %w", id, err)
	}
	return d, nil
}

// GetOpenByMarket returns the market's live dispute, if any.
func (s *DisputeStore) GetOpenByMarket(ctx context.Context, marketID string) (*domain.Dispute, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+disputeCols+` FROM disputes
		 WHERE market_id = $1 AND status IN ('active', 'escalated')
		 ORDER BY created_at DESC LIMIT 1`, marketID)
	d, err := scanDispute(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDisputeNotFound
		}
		return nil, fmt.Errorf("postgres: get open dispute for %s: %w", marketID, err)
	}
	return d, nil
}

// Update rewrites a dispute record.
func (s *DisputeStore) Update(ctx context.Context, d *domain.Dispute) error {
	const query = `
		UPDATE disputes SET status = $2, votes = $3, closed_at = $4
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, d.ID, string(d.Status), d.Votes, d.ClosedAt)
	if err != nil {
		return fmt.Errorf("postgres: update dispute %s: %w", d.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDisputeNotFound
	}
	return nil
}

// ListByMarket returns every dispute ever raised on a market.
func (s *DisputeStore) ListByMarket(ctx context.Context, marketID string) ([]*domain.Dispute, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+disputeCols+` FROM disputes WHERE market_id = $1 ORDER BY created_at`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list disputes for %s: %w", marketID, err)
	}
	defer rows.Close()

	var disputes []*domain.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan dispute: %w", err)
		}
		disputes = append(disputes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list disputes rows: %w", err)
	}
	return disputes, nil
}
