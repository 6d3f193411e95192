package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predictify/engine/internal/domain"
)

// ResolutionStore implements domain.ResolutionStore using PostgreSQL. Each
// market has at most one oracle resolution and one market resolution;
// saves are upserts so a dispute ruling can rewrite the final outcome.
type ResolutionStore struct {
	pool *pgxpool.Pool
}

// NewResolutionStore creates a new ResolutionStore backed by the given pool.
func NewResolutionStore(pool *pgxpool.Pool) *ResolutionStore {
	return &ResolutionStore{pool: pool}
}

var _ domain.ResolutionStore = (*ResolutionStore)(nil)

// SaveOracleResolution upserts the oracle fetch result for a market.
func (s *ResolutionStore) SaveOracleResolution(ctx context.Context, r *domain.OracleResolution) error {
	const query = `
		INSERT INTO oracle_resolutions (market_id, provider, feed_id, price, outcome, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (market_id) DO UPDATE SET
			provider   = EXCLUDED.provider,
			feed_id    = EXCLUDED.feed_id,
			price      = EXCLUDED.price,
			outcome    = EXCLUDED.outcome,
			fetched_at = EXCLUDED.fetched_at`

	_, err := s.pool.Exec(ctx, query,
		r.MarketID, string(r.Provider), r.FeedID, r.Price, r.Outcome, r.FetchedAt)
	if err != nil {
		return fmt.Errorf("postgres: save oracle resolution %s: %w", r.MarketID, err)
	}
	return nil
}

// GetOracleResolution returns the stored oracle result for a market.
func (s *ResolutionStore) GetOracleResolution(ctx context.Context, marketID string) (*domain.OracleResolution, error) {
	var r domain.OracleResolution
	var provider string
	err := s.pool.QueryRow(ctx,
		`SELECT market_id, provider, feed_id, price, outcome, fetched_at
		 FROM oracle_resolutions WHERE market_id = $1`, marketID,
	).Scan(&r.MarketID, &provider, &r.FeedID, &r.Price, &r.Outcome, &r.FetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMarketNotFound
		}
		return nil, fmt.Errorf("postgres: get oracle resolution %s: %w", marketID, err)
	}
	r.Provider = domain.OracleProvider(provider)
	return &r, nil
}

// SaveMarketResolution upserts the resolution audit record for a market.
func (s *ResolutionStore) SaveMarketResolution(ctx context.Context, r *domain.MarketResolution) error {
	const query = `
		INSERT INTO market_resolutions (market_id, final_outcome, oracle_outcome, community_outcome, method, confidence, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (market_id) DO UPDATE SET
			final_outcome     = EXCLUDED.final_outcome,
			oracle_outcome    = EXCLUDED.oracle_outcome,
			community_outcome = EXCLUDED.community_outcome,
			method            = EXCLUDED.method,
			confidence        = EXCLUDED.confidence,
			resolved_at       = EXCLUDED.resolved_at`

	_, err := s.pool.Exec(ctx, query,
		r.MarketID, r.FinalOutcome, r.OracleOutcome, r.CommunityOutcome,
		string(r.Method), r.Confidence, r.ResolvedAt)
	if err != nil {
		return fmt.Errorf("postgres: save market resolution %s: %w", r.MarketID, err)
	}
	return nil
}

// GetMarketResolution returns the stored resolution record for a market.
func (s *ResolutionStore) GetMarketResolution(ctx context.Context, marketID string) (*domain.MarketResolution, error) {
	var r domain.MarketResolution
	var method string
	err := s.pool.QueryRow(ctx,
		`SELECT market_id, final_outcome, oracle_outcome, community_outcome, method, confidence, resolved_at
		 FROM market_resolutions WHERE market_id = $1`, marketID,
	).Scan(&r.MarketID, &r.FinalOutcome, &r.OracleOutcome, &r.CommunityOutcome, &method, &r.Confidence, &r.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMarketNotFound
		}
		return nil, fmt.Errorf("postgres: get market resolution %s: %w", marketID, err)
	}
	r.Method = domain.ResolutionMethod(method)
	return &r, nil
}
