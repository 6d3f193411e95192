package domain

import (
	"context"
	"time"
)

// AssetLedger moves stake between accounts. The engine account addresses
// are plain strings; a market's escrow account is its market ID prefixed
// with "market:".
type AssetLedger interface {
	Balance(ctx context.Context, account string) (int64, error)
	Transfer(ctx context.Context, from, to string, amount int64) error
}

// EscrowAccount is the ledger account holding a market's pooled stakes.
func EscrowAccount(marketID string) string {
	return "market:" + marketID
}

// PriceOracle fetches the latest price for a feed. Implementations return
// ErrOracleDataStale when the quote is older than their staleness bound and
// ErrOracleUnavailable when the feed cannot be reached.
type PriceOracle interface {
	Price(ctx context.Context, provider OracleProvider, feedID string) (price int64, at time.Time, err error)
}

// EventBus publishes lifecycle events to interested consumers.
type EventBus interface {
	Publish(ctx context.Context, ev Event) error
}

// MarketCache is a read-through cache in front of the market store.
type MarketCache interface {
	Get(ctx context.Context, id string) (*Market, error)
	Set(ctx context.Context, m *Market) error
	Invalidate(ctx context.Context, id string) error
}

// RateLimiter gates mutating requests per caller.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LockManager serializes writers on a per-market key. Acquire returns an
// unlock function that releases only the caller's own lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, err error)
}

// BlobWriter writes archived records to object storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, body []byte) error
}
