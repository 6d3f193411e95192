package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predictify/engine/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. The vote,
// stake, claim and dispute maps are stored as jsonb; writes go through a
// version compare-and-swap.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

var _ domain.MarketStore = (*MarketStore)(nil)

// Create inserts a new market record.
func (s *MarketStore) Create(ctx context.Context, m *domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, admin, question, outcomes, end_time, oracle_config, state,
			votes, stakes, claimed, dispute_stakes, total_staked,
			winning_outcome, fee_collected, total_extension_days, extensions,
			created_at, version
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18
		)`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Admin, m.Question, m.Outcomes, m.EndTime, m.OracleConfig, string(m.State),
		m.Votes, m.Stakes, m.Claimed, m.DisputeStakes, m.TotalStaked,
		m.WinningOutcome, m.FeeCollected, m.TotalExtensionDays, m.Extensions,
		m.CreatedAt, m.Version,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

const marketCols = `id, admin, question, outcomes, end_time, oracle_config, state,
	votes, stakes, claimed, dispute_stakes, total_staked,
	winning_outcome, fee_collected, total_extension_days, extensions,
	created_at, version`

func scanMarket(row pgx.Row) (*domain.Market, error) {
	var m domain.Market
	var state string
	err := row.Scan(
		&m.ID, &m.Admin, &m.Question, &m.Outcomes, &m.EndTime, &m.OracleConfig, &state,
		&m.Votes, &m.Stakes, &m.Claimed, &m.DisputeStakes, &m.TotalStaked,
		&m.WinningOutcome, &m.FeeCollected, &m.TotalExtensionDays, &m.Extensions,
		&m.CreatedAt, &m.Version,
	)
	if err != nil {
		return nil, err
	}
	m.State = domain.MarketState(state)
	return &m, nil
}

// Get retrieves a market by its primary key.
func (s *MarketStore) Get(ctx context.Context, id string) (*domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMarketNotFound
		}
		return nil, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// Update writes the market whole, guarded by the record version. A row
// whose stored version differs was modified concurrently and the write is
// rejected with ErrConflict.
func (s *MarketStore) Update(ctx context.Context, m *domain.Market) error {
	const query = `
		UPDATE markets SET
			end_time             = $2,
			state                = $3,
			votes                = $4,
			stakes               = $5,
			claimed              = $6,
			dispute_stakes       = $7,
			total_staked         = $8,
			winning_outcome      = $9,
			fee_collected        = $10,
			total_extension_days = $11,
			extensions           = $12,
			version              = version + 1
		WHERE id = $1 AND version = $13`

	tag, err := s.pool.Exec(ctx, query,
		m.ID, m.EndTime, string(m.State),
		m.Votes, m.Stakes, m.Claimed, m.DisputeStakes, m.TotalStaked,
		m.WinningOutcome, m.FeeCollected, m.TotalExtensionDays, m.Extensions,
		m.Version,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM markets WHERE id = $1)", m.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
		}
		if !exists {
			return domain.ErrMarketNotFound
		}
		return domain.ErrConflict
	}
	m.Version++
	return nil
}

// List returns markets, optionally filtered by state, newest first.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]*domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets`
	args := []any{}
	argIdx := 1

	if opts.State != "" {
		query += fmt.Sprintf(" WHERE state = $%d", argIdx)
		args = append(args, string(opts.State))
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []*domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Delete removes a market record, typically after archival.
func (s *MarketStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM markets WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: delete market %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMarketNotFound
	}
	return nil
}
