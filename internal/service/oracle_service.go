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

// OracleService fetches price-feed results for ended markets and records
// them as oracle resolutions.
type OracleService struct {
	markets     domain.MarketStore
	cache       domain.MarketCache
	resolutions domain.ResolutionStore
	oracle      domain.PriceOracle
	pub         *publisher
	section     *guardedSection
	logger      *slog.Logger
	now         func() time.Time
}

// NewOracleService creates an OracleService with all required dependencies.
func NewOracleService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	resolutions domain.ResolutionStore,
	oracle domain.PriceOracle,
	bus domain.EventBus,
	locks domain.LockManager,
	guard *reentrancy.Guard,
	logger *slog.Logger,
) *OracleService {
	return &OracleService{
		markets:     markets,
		cache:       cache,
		resolutions: resolutions,
		oracle:      oracle,
		pub:         &publisher{bus: bus, logger: logger},
		section:     &guardedSection{guard: guard, locks: locks, logger: logger},
		logger:      logger,
		now:         time.Now,
	}
}

// FetchResult pulls the market's price feed, maps the price to an outcome
// and stores the oracle resolution. The market must be past its deadline;
// markets with more than two outcomes have no feed mapping and must go
// through manual resolution instead.
func (s *OracleService) FetchResult(ctx context.Context, marketID string) (*domain.OracleResolution, error) {
	var res *domain.OracleResolution
	err := s.section.run(ctx, marketID, func() error {
		m, err := s.markets.Get(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Terminal() || m.State == domain.MarketStateResolved {
			return fmt.Errorf("oracle_service: market %s state %s: %w", marketID, m.State, domain.ErrMarketAlreadyResolved)
		}
		if !m.Ended(s.now()) {
			return fmt.Errorf("oracle_service: market %s still open: %w", marketID, domain.ErrMarketClosed)
		}
		if len(m.Outcomes) != 2 {
			return fmt.Errorf("oracle_service: market %s has %d outcomes: %w", marketID, len(m.Outcomes), domain.ErrInvalidOracleFeed)
		}
		if existing, err := s.resolutions.GetOracleResolution(ctx, marketID); err == nil && existing != nil {
			return fmt.Errorf("oracle_service: result already fetched: %w", domain.ErrMarketAlreadyResolved)
		}

		price, at, err := s.oracle.Price(ctx, m.OracleConfig.Provider, m.OracleConfig.FeedID)
		if err != nil {
			return fmt.Errorf("oracle_service: fetch price: %w", err)
		}
		outcome, err := m.OracleConfig.Outcome(price, m.Outcomes)
		if err != nil {
			return fmt.Errorf("oracle_service: map outcome: %w", err)
		}

		res = &domain.OracleResolution{
			MarketID:  marketID,
			Provider:  m.OracleConfig.Provider,
			FeedID:    m.OracleConfig.FeedID,
			Price:     price,
			Outcome:   outcome,
			FetchedAt: at,
		}
		if err := s.resolutions.SaveOracleResolution(ctx, res); err != nil {
			return fmt.Errorf("oracle_service: save resolution: %w", err)
		}

		// Past-deadline markets move to Ended alongside the first fetch.
		if m.State == domain.MarketStateActive {
			if _, err := updateMarket(ctx, s.markets, marketID, func(m *domain.Market) error {
				if m.State == domain.MarketStateActive {
					m.State = domain.MarketStateEnded
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, s.logger, marketID)
	s.pub.publish(ctx, domain.Event{
		Type:     domain.EventOracleResult,
		MarketID: marketID,
		At:       s.now(),
		Data:     map[string]any{"price": res.Price, "outcome": res.Outcome},
	})
	s.logger.InfoContext(ctx, "oracle_service: result fetched",
		slog.String("market_id", marketID),
		slog.Int64("price", res.Price),
		slog.String("outcome", res.Outcome),
	)
	return res, nil
}

// Result returns the stored oracle resolution for a market.
func (s *OracleService) Result(ctx context.Context, marketID string) (*domain.OracleResolution, error) {
	res, err := s.resolutions.GetOracleResolution(ctx, marketID)
	if err != nil {
		if errors.Is(err, domain.ErrMarketNotFound) {
			return nil, fmt.Errorf("oracle_service: no result for %s: %w", marketID, domain.ErrOracleResultRequired)
		}
		return nil, fmt.Errorf("oracle_service: get result: %w", err)
	}
	return res, nil
}
