// Package service implements the settlement engine: market lifecycle,
// voting, hybrid oracle/community resolution, disputes, fees and
// extensions. Services validate first, move funds second and write
// market state only after the transfer confirmed.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/predictify/engine/internal/domain"
	"github.com/predictify/engine/internal/reentrancy"
)

const (
	// casRetries bounds re-read attempts when a versioned market write
	// loses a race.
	casRetries = 3

	// marketLockTTL caps how long a crashed writer can hold a market lock.
	marketLockTTL = 10 * time.Second
)

// updateMarket applies fn to the stored market under compare-and-swap,
// re-reading and re-applying on version conflicts. fn must re-validate on
// every attempt; it sees fresh state each time.
func updateMarket(ctx context.Context, store domain.MarketStore, id string, fn func(*domain.Market) error) (*domain.Market, error) {
	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		m, err := store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(m); err != nil {
			return nil, err
		}
		if err := store.Update(ctx, m); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("service: market %s update contended: %w", id, lastErr)
}

// guardedSection serializes ledger-crossing operations: the process-wide
// reentrancy guard plus a per-market distributed lock.
type guardedSection struct {
	guard  *reentrancy.Guard
	locks  domain.LockManager
	logger *slog.Logger
}

func (g *guardedSection) run(ctx context.Context, marketID string, fn func() error) error {
	unlock, err := g.locks.Acquire(ctx, "market:"+marketID, marketLockTTL)
	if err != nil {
		return fmt.Errorf("service: acquire market lock %s: %w", marketID, err)
	}
	defer func() {
		if err := unlock(ctx); err != nil {
			g.logger.WarnContext(ctx, "service: unlock failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return g.guard.Protect(fn)
}

// publisher fans lifecycle events out to the bus. Publishing is
// best-effort: state changes are already durable when events fire.
type publisher struct {
	bus    domain.EventBus
	logger *slog.Logger
}

func (p *publisher) publish(ctx context.Context, ev domain.Event) {
	if err := p.bus.Publish(ctx, ev); err != nil {
		p.logger.WarnContext(ctx, "service: event publish failed",
			slog.String("type", string(ev.Type)),
			slog.String("market_id", ev.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

// invalidate drops a cached market after a write, logging on failure. The
// cache entry expires on its own if the invalidate is lost.
func invalidate(ctx context.Context, cache domain.MarketCache, logger *slog.Logger, id string) {
	if err := cache.Invalidate(ctx, id); err != nil {
		logger.WarnContext(ctx, "service: cache invalidate failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}
