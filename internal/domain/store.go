package domain

import (
	"context"
	"time"
)

// ListOpts bounds list queries.
type ListOpts struct {
	State  MarketState
	Limit  int
	Offset int
}

// MarketStore persists market aggregates whole. Update is a compare-and-swap
// on Market.Version: it writes only when the stored version matches, bumps
// the version on success and returns ErrConflict otherwise.
type MarketStore interface {
	Create(ctx context.Context, m *Market) error
	Get(ctx context.Context, id string) (*Market, error)
	Update(ctx context.Context, m *Market) error
	List(ctx context.Context, opts ListOpts) ([]*Market, error)
	Delete(ctx context.Context, id string) error
}

// DisputeStore persists dispute records.
type DisputeStore interface {
	Create(ctx context.Context, d *Dispute) error
	Get(ctx context.Context, id string) (*Dispute, error)
	GetOpenByMarket(ctx context.Context, marketID string) (*Dispute, error)
	Update(ctx context.Context, d *Dispute) error
	ListByMarket(ctx context.Context, marketID string) ([]*Dispute, error)
}

// ResolutionStore persists resolution audit records, one of each kind per
// market, upserted.
type ResolutionStore interface {
	SaveOracleResolution(ctx context.Context, r *OracleResolution) error
	GetOracleResolution(ctx context.Context, marketID string) (*OracleResolution, error)
	SaveMarketResolution(ctx context.Context, r *MarketResolution) error
	GetMarketResolution(ctx context.Context, marketID string) (*MarketResolution, error)
}

// FeeAuditStore is the append-only fee collection history.
type FeeAuditStore interface {
	Append(ctx context.Context, fc *FeeCollection) error
	ListByMarket(ctx context.Context, marketID string) ([]*FeeCollection, error)
	TotalCollected(ctx context.Context) (int64, error)
}

// SystemConfig is the singleton engine configuration row written at
// bootstrap and updated only by the admin.
type SystemConfig struct {
	Admin           string             `json:"admin"`
	Treasury        string             `json:"treasury"`
	Fees            FeeConfig          `json:"fees"`
	ExtensionFees   ExtensionFeeConfig `json:"extension_fees"`
	DisputeBase     int64              `json:"dispute_base"`
	MaxTotalExtDays int                `json:"max_total_ext_days"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// SystemConfigStore persists the singleton SystemConfig. Get returns
// ErrConfigurationNotFound before bootstrap.
type SystemConfigStore interface {
	Get(ctx context.Context) (*SystemConfig, error)
	Put(ctx context.Context, sc *SystemConfig) error
}
