package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predictify/engine/internal/domain"
)

// ConfigStore persists the singleton system configuration row.
type ConfigStore struct {
	pool *pgxpool.Pool
}

// NewConfigStore creates a new ConfigStore backed by the given pool.
func NewConfigStore(pool *pgxpool.Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

var _ domain.SystemConfigStore = (*ConfigStore)(nil)

// Get returns the system configuration, or ErrConfigurationNotFound before
// bootstrap.
func (s *ConfigStore) Get(ctx context.Context) (*domain.SystemConfig, error) {
	var sc domain.SystemConfig
	err := s.pool.QueryRow(ctx,
		`SELECT admin, treasury, fees, extension_fees, dispute_base, max_total_ext_days, updated_at
		 FROM system_config WHERE singleton`,
	).Scan(&sc.Admin, &sc.Treasury, &sc.Fees, &sc.ExtensionFees, &sc.DisputeBase, &sc.MaxTotalExtDays, &sc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConfigurationNotFound
		}
		return nil, fmt.Errorf("postgres: get system config: %w", err)
	}
	return &sc, nil
}

// Put writes the system configuration, replacing any existing row.
func (s *ConfigStore) Put(ctx context.Context, sc *domain.SystemConfig) error {
	const query = `
		INSERT INTO system_config (singleton, admin, treasury, fees, extension_fees, dispute_base, max_total_ext_days, updated_at)
		VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (singleton) DO UPDATE SET
			admin              = EXCLUDED.admin,
			treasury           = EXCLUDED.treasury,
			fees               = EXCLUDED.fees,
			extension_fees     = EXCLUDED.extension_fees,
			dispute_base       = EXCLUDED.dispute_base,
			max_total_ext_days = EXCLUDED.max_total_ext_days,
			updated_at         = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		sc.Admin, sc.Treasury, sc.Fees, sc.ExtensionFees, sc.DisputeBase, sc.MaxTotalExtDays, sc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: put system config: %w", err)
	}
	return nil
}
