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

// FeeService collects platform fees from settled markets and serves the
// fee audit history. Collection follows the same discipline as claims:
// validate, move funds, record, and only then mark the market collected.
type FeeService struct {
	markets domain.MarketStore
	cache   domain.MarketCache
	ledger  domain.AssetLedger
	audit   domain.FeeAuditStore
	config  domain.SystemConfigStore
	pub     *publisher
	section *guardedSection
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewFeeService creates a FeeService with all required dependencies.
func NewFeeService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	ledger domain.AssetLedger,
	audit domain.FeeAuditStore,
	config domain.SystemConfigStore,
	bus domain.EventBus,
	locks domain.LockManager,
	guard *reentrancy.Guard,
	logger *slog.Logger,
) *FeeService {
	return &FeeService{
		markets: markets,
		cache:   cache,
		ledger:  ledger,
		audit:   audit,
		config:  config,
		pub:     &publisher{bus: bus, logger: logger},
		section: &guardedSection{guard: guard, locks: locks, logger: logger},
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Collect sweeps the platform fee from a resolved market's escrow to the
// treasury. At most once per market; pools below the collection threshold
// cannot be swept, since the minimum-fee clamp would take more than the
// percentage withheld from payouts.
func (s *FeeService) Collect(ctx context.Context, caller, marketID string) (int64, error) {
	sc, err := s.config.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("fee_service: get config: %w", err)
	}
	if !sameAddress(caller, sc.Admin) {
		return 0, fmt.Errorf("fee_service: collect by %s: %w", caller, domain.ErrUnauthorized)
	}

	var fee int64
	err = s.section.run(ctx, marketID, func() error {
		m, err := s.markets.Get(ctx, marketID)
		if err != nil {
			return err
		}
		if err := collectable(m); err != nil {
			return err
		}

		if m.TotalStaked == 0 {
			return fmt.Errorf("fee_service: market %s: %w", marketID, domain.ErrNoFeesToCollect)
		}
		if m.TotalStaked < sc.Fees.CollectionThreshold {
			return fmt.Errorf("fee_service: market %s pool %d below threshold %d: %w",
				marketID, m.TotalStaked, sc.Fees.CollectionThreshold, domain.ErrInsufficientStake)
		}
		fee = sc.Fees.CollectionFee(m.TotalStaked)
		if fee <= 0 {
			return fmt.Errorf("fee_service: market %s: %w", marketID, domain.ErrNoFeesToCollect)
		}

		escrow := domain.EscrowAccount(marketID)
		if err := s.ledger.Transfer(ctx, escrow, sc.Treasury, fee); err != nil {
			return fmt.Errorf("fee_service: fee transfer: %w", err)
		}
		if err := s.audit.Append(ctx, &domain.FeeCollection{
			ID:          s.newID(),
			MarketID:    marketID,
			Amount:      fee,
			CollectedBy: caller,
			CollectedAt: s.now(),
		}); err != nil {
			return fmt.Errorf("fee_service: audit append: %w", err)
		}
		// Mark collected last, per the write-after-confirm discipline.
		if _, err := updateMarket(ctx, s.markets, marketID, func(m *domain.Market) error {
			if err := collectable(m); err != nil {
				return err
			}
			m.FeeCollected = true
			return nil
		}); err != nil {
			if refundErr := s.ledger.Transfer(ctx, sc.Treasury, escrow, fee); refundErr != nil {
				s.logger.ErrorContext(ctx, "fee_service: fee unwind failed",
					slog.String("market_id", marketID),
					slog.String("error", refundErr.Error()),
				)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	invalidate(ctx, s.cache, s.logger, marketID)
	s.pub.publish(ctx, domain.Event{
		Type:     domain.EventFeesCollected,
		MarketID: marketID,
		Actor:    caller,
		At:       s.now(),
		Data:     map[string]any{"amount": fee},
	})
	s.logger.InfoContext(ctx, "fee_service: fees collected",
		slog.String("market_id", marketID),
		slog.Int64("amount", fee),
	)
	return fee, nil
}

func collectable(m *domain.Market) error {
	if m.State != domain.MarketStateResolved && m.State != domain.MarketStateClosed {
		return fmt.Errorf("fee_service: market %s state %s: %w", m.ID, m.State, domain.ErrMarketNotResolved)
	}
	if m.FeeCollected {
		return fmt.Errorf("fee_service: market %s: %w", m.ID, domain.ErrFeeAlreadyCollected)
	}
	return nil
}

// Breakdown returns the fee analysis for a market's current pool.
func (s *FeeService) Breakdown(ctx context.Context, marketID string) (*domain.FeeBreakdown, error) {
	sc, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("fee_service: get config: %w", err)
	}
	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("fee_service: get market: %w", err)
	}
	b := sc.Fees.Breakdown(m)
	return &b, nil
}

// History lists fee collections recorded for a market.
func (s *FeeService) History(ctx context.Context, marketID string) ([]*domain.FeeCollection, error) {
	list, err := s.audit.ListByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("fee_service: list history: %w", err)
	}
	return list, nil
}

// TotalCollected returns the running total of fees ever collected.
func (s *FeeService) TotalCollected(ctx context.Context) (int64, error) {
	total, err := s.audit.TotalCollected(ctx)
	if err != nil {
		return 0, fmt.Errorf("fee_service: total collected: %w", err)
	}
	return total, nil
}
