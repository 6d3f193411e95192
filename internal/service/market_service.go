package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/predictify/engine/internal/domain"
	"github.com/predictify/engine/internal/reentrancy"
)

// MarketService handles market lifecycle: creation, reads, cancellation and
// duration extensions.
type MarketService struct {
	markets domain.MarketStore
	cache   domain.MarketCache
	ledger  domain.AssetLedger
	config  domain.SystemConfigStore
	pub     *publisher
	section *guardedSection
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	ledger domain.AssetLedger,
	config domain.SystemConfigStore,
	bus domain.EventBus,
	locks domain.LockManager,
	guard *reentrancy.Guard,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets: markets,
		cache:   cache,
		ledger:  ledger,
		config:  config,
		pub:     &publisher{bus: bus, logger: logger},
		section: &guardedSection{guard: guard, locks: locks, logger: logger},
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// CreateMarketParams are the admin-supplied inputs for a new market.
type CreateMarketParams struct {
	Admin        string
	Question     string
	Outcomes     []string
	DurationDays int
	Oracle       domain.OracleConfig
}

// CreateMarket charges the creation fee and opens a new Active market.
func (s *MarketService) CreateMarket(ctx context.Context, p CreateMarketParams) (*domain.Market, error) {
	sc, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: get config: %w", err)
	}
	if !sameAddress(p.Admin, sc.Admin) {
		return nil, fmt.Errorf("market_service: create by %s: %w", p.Admin, domain.ErrUnauthorized)
	}
	if p.DurationDays < 1 || p.DurationDays > domain.MaxMarketDurationDays {
		return nil, fmt.Errorf("market_service: duration %d days: %w", p.DurationDays, domain.ErrInvalidInput)
	}

	now := s.now()
	endTime := now.Add(time.Duration(p.DurationDays) * 24 * time.Hour)
	m, err := domain.NewMarket(s.newID(), p.Admin, p.Question, p.Outcomes, endTime, p.Oracle, now)
	if err != nil {
		return nil, fmt.Errorf("market_service: create: %w", err)
	}

	err = s.section.run(ctx, m.ID, func() error {
		if sc.Fees.CreationFee > 0 {
			if err := s.ledger.Transfer(ctx, p.Admin, sc.Treasury, sc.Fees.CreationFee); err != nil {
				return fmt.Errorf("market_service: creation fee: %w", err)
			}
		}
		if err := s.markets.Create(ctx, m); err != nil {
			// Fee already left the admin account; give it back.
			if sc.Fees.CreationFee > 0 {
				if refundErr := s.ledger.Transfer(ctx, sc.Treasury, p.Admin, sc.Fees.CreationFee); refundErr != nil {
					s.logger.ErrorContext(ctx, "market_service: creation fee refund failed",
						slog.String("market_id", m.ID),
						slog.String("error", refundErr.Error()),
					)
				}
			}
			return fmt.Errorf("market_service: persist market: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.pub.publish(ctx, domain.Event{
		Type:     domain.EventMarketCreated,
		MarketID: m.ID,
		Actor:    p.Admin,
		At:       now,
		Data:     map[string]any{"question": m.Question, "end_time": m.EndTime},
	})
	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", m.ID),
		slog.Time("end_time", m.EndTime),
	)
	return m, nil
}

// GetMarket retrieves a market by ID, checking the cache first and falling
// back to the persistent store on a cache miss.
func (s *MarketService) GetMarket(ctx context.Context, id string) (*domain.Market, error) {
	if m, err := s.cache.Get(ctx, id); err == nil {
		return m, nil
	}

	m, err := s.markets.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("market_service: get %q: %w", id, err)
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	return m, nil
}

// ListMarkets returns markets from the persistent store.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]*domain.Market, error) {
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// CancelMarket moves an Active market to Cancelled. Stakes stay in escrow
// and become refundable through the claim path.
func (s *MarketService) CancelMarket(ctx context.Context, caller, id string) error {
	sc, err := s.config.Get(ctx)
	if err != nil {
		return fmt.Errorf("market_service: get config: %w", err)
	}
	if !sameAddress(caller, sc.Admin) {
		return fmt.Errorf("market_service: cancel by %s: %w", caller, domain.ErrUnauthorized)
	}

	m, err := updateMarket(ctx, s.markets, id, func(m *domain.Market) error {
		if m.State != domain.MarketStateActive {
			return fmt.Errorf("market_service: cancel in state %s: %w", m.State, domain.ErrInvalidState)
		}
		m.State = domain.MarketStateCancelled
		return nil
	})
	if err != nil {
		return err
	}

	invalidate(ctx, s.cache, s.logger, id)
	s.pub.publish(ctx, domain.Event{
		Type:     domain.EventMarketCancelled,
		MarketID: id,
		Actor:    caller,
		At:       s.now(),
		Data:     map[string]any{"total_staked": m.TotalStaked},
	})
	return nil
}

// ExtendMarket pushes an Active market's deadline out by additionalDays,
// charging the admin the extension fee.
func (s *MarketService) ExtendMarket(ctx context.Context, caller, id string, additionalDays int, reason string) (*domain.Market, error) {
	sc, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: get config: %w", err)
	}
	if !sameAddress(caller, sc.Admin) {
		return nil, fmt.Errorf("market_service: extend by %s: %w", caller, domain.ErrUnauthorized)
	}

	ext := domain.MarketExtension{
		Timestamp:      s.now(),
		AdditionalDays: additionalDays,
		Admin:          caller,
		Reason:         reason,
		FeePaid:        sc.ExtensionFees.Fee(additionalDays),
	}
	if err := ext.Validate(sc.ExtensionFees.MaxDays); err != nil {
		return nil, fmt.Errorf("market_service: extension: %w", err)
	}

	var updated *domain.Market
	err = s.section.run(ctx, id, func() error {
		if err := s.ledger.Transfer(ctx, caller, sc.Treasury, ext.FeePaid); err != nil {
			return fmt.Errorf("market_service: extension fee: %w", err)
		}
		var updateErr error
		updated, updateErr = updateMarket(ctx, s.markets, id, func(m *domain.Market) error {
			if m.State != domain.MarketStateActive {
				return fmt.Errorf("market_service: extend in state %s: %w", m.State, domain.ErrInvalidState)
			}
			if m.TotalExtensionDays+additionalDays > sc.MaxTotalExtDays {
				return fmt.Errorf("market_service: extension budget exhausted: %w", domain.ErrInvalidInput)
			}
			m.EndTime = m.EndTime.Add(time.Duration(additionalDays) * 24 * time.Hour)
			m.TotalExtensionDays += additionalDays
			m.Extensions = append(m.Extensions, ext)
			return nil
		})
		if updateErr != nil {
			// Fee already paid; give it back before surfacing the error.
			if refundErr := s.ledger.Transfer(ctx, sc.Treasury, caller, ext.FeePaid); refundErr != nil {
				s.logger.ErrorContext(ctx, "market_service: extension fee refund failed",
					slog.String("market_id", id),
					slog.String("error", refundErr.Error()),
				)
			}
			return updateErr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, s.logger, id)
	s.pub.publish(ctx, domain.Event{
		Type:     domain.EventMarketExtended,
		MarketID: id,
		Actor:    caller,
		At:       ext.Timestamp,
		Data:     map[string]any{"additional_days": additionalDays, "fee_paid": ext.FeePaid},
	})
	return updated, nil
}

// MarketAnalytics is the read-side summary of a market's activity.
type MarketAnalytics struct {
	MarketID          string             `json:"market_id"`
	State             domain.MarketState `json:"state"`
	VoteCount         int                `json:"vote_count"`
	TotalStaked       int64              `json:"total_staked"`
	OutcomeTotals     map[string]int64   `json:"outcome_totals"`
	TotalDisputeStake int64              `json:"total_dispute_stake"`
	ExtensionDays     int                `json:"extension_days"`
}

// Analytics computes per-outcome stake totals and activity counts.
func (s *MarketService) Analytics(ctx context.Context, id string) (*MarketAnalytics, error) {
	m, err := s.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	return &MarketAnalytics{
		MarketID:          m.ID,
		State:             m.State,
		VoteCount:         len(m.Votes),
		TotalStaked:       m.TotalStaked,
		OutcomeTotals:     m.OutcomeTotals(),
		TotalDisputeStake: m.TotalDisputeStake(),
		ExtensionDays:     m.TotalExtensionDays,
	}, nil
}
