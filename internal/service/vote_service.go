package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/predictify/engine/internal/domain"
	"github.com/predictify/engine/internal/reentrancy"
)

// VoteService handles stake-weighted voting and winnings claims. Both
// operations move funds before recording state, and unwind the transfer
// when the record write fails.
type VoteService struct {
	markets domain.MarketStore
	cache   domain.MarketCache
	ledger  domain.AssetLedger
	config  domain.SystemConfigStore
	pub     *publisher
	section *guardedSection
	logger  *slog.Logger
	now     func() time.Time
}

// NewVoteService creates a VoteService with all required dependencies.
func NewVoteService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	ledger domain.AssetLedger,
	config domain.SystemConfigStore,
	bus domain.EventBus,
	locks domain.LockManager,
	guard *reentrancy.Guard,
	logger *slog.Logger,
) *VoteService {
	return &VoteService{
		markets: markets,
		cache:   cache,
		ledger:  ledger,
		config:  config,
		pub:     &publisher{bus: bus, logger: logger},
		section: &guardedSection{guard: guard, locks: locks, logger: logger},
		logger:  logger,
		now:     time.Now,
	}
}

// Vote stakes on an outcome of an active market. One vote per voter; a
// vote is immutable once recorded.
func (s *VoteService) Vote(ctx context.Context, voter, marketID, outcome string, stake int64) error {
	if voter == "" || outcome == "" {
		return fmt.Errorf("vote_service: vote: %w", domain.ErrInvalidInput)
	}
	if stake <= 0 {
		return fmt.Errorf("vote_service: stake %d: %w", stake, domain.ErrInsufficientStake)
	}

	validate := func(m *domain.Market) error {
		if m.State != domain.MarketStateActive {
			return fmt.Errorf("vote_service: market %s state %s: %w", marketID, m.State, domain.ErrMarketClosed)
		}
		if m.Ended(s.now()) {
			return fmt.Errorf("vote_service: market %s past deadline: %w", marketID, domain.ErrMarketClosed)
		}
		if !m.HasOutcome(outcome) {
			return fmt.Errorf("vote_service: outcome %q: %w", outcome, domain.ErrInvalidOutcome)
		}
		if _, voted := m.Votes[voter]; voted {
			return fmt.Errorf("vote_service: voter %s: %w", voter, domain.ErrAlreadyVoted)
		}
		return nil
	}

	err := s.section.run(ctx, marketID, func() error {
		m, err := s.markets.Get(ctx, marketID)
		if err != nil {
			return err
		}
		if err := validate(m); err != nil {
			return err
		}

		escrow := domain.EscrowAccount(marketID)
		if err := s.ledger.Transfer(ctx, voter, escrow, stake); err != nil {
			return fmt.Errorf("vote_service: stake transfer: %w", err)
		}
		if _, err := updateMarket(ctx, s.markets, marketID, func(m *domain.Market) error {
			if err := validate(m); err != nil {
				return err
			}
			m.Votes[voter] = outcome
			m.Stakes[voter] = stake
			m.TotalStaked += stake
			return nil
		}); err != nil {
			// Stake already in escrow; send it back.
			if refundErr := s.ledger.Transfer(ctx, escrow, voter, stake); refundErr != nil {
				s.logger.ErrorContext(ctx, "vote_service: stake refund failed",
					slog.String("market_id", marketID),
					slog.String("voter", voter),
					slog.String("error", refundErr.Error()),
				)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	invalidate(ctx, s.cache, s.logger, marketID)
	s.pub.publish(ctx, domain.Event{
		Type:     domain.EventVoteCast,
		MarketID: marketID,
		Actor:    voter,
		At:       s.now(),
		Data:     map[string]any{"outcome": outcome, "stake": stake},
	})
	return nil
}

// Claim pays out a winning voter's share of the pool, or refunds the full
// stake on a cancelled market. At most one claim per voter.
func (s *VoteService) Claim(ctx context.Context, caller, marketID string) (int64, error) {
	sc, err := s.config.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("vote_service: get config: %w", err)
	}

	var payout int64
	err = s.section.run(ctx, marketID, func() error {
		m, err := s.markets.Get(ctx, marketID)
		if err != nil {
			return err
		}
		payout, err = claimAmount(m, sc.Fees, caller)
		if err != nil {
			return err
		}

		escrow := domain.EscrowAccount(marketID)
		if payout > 0 {
			if err := s.ledger.Transfer(ctx, escrow, caller, payout); err != nil {
				return fmt.Errorf("vote_service: payout transfer: %w", err)
			}
		}
		if _, err := updateMarket(ctx, s.markets, marketID, func(m *domain.Market) error {
			// Recompute against fresh state; a concurrent claim by the
			// same caller must not pay twice.
			if _, err := claimAmount(m, sc.Fees, caller); err != nil {
				return err
			}
			m.Claimed[caller] = true
			return nil
		}); err != nil {
			if payout > 0 {
				if refundErr := s.ledger.Transfer(ctx, caller, escrow, payout); refundErr != nil {
					s.logger.ErrorContext(ctx, "vote_service: payout unwind failed",
						slog.String("market_id", marketID),
						slog.String("caller", caller),
						slog.String("error", refundErr.Error()),
					)
				}
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
		Type:     domain.EventWinningsClaimed,
		MarketID: marketID,
		Actor:    caller,
		At:       s.now(),
		Data:     map[string]any{"payout": payout},
	})
	s.logger.InfoContext(ctx, "vote_service: winnings claimed",
		slog.String("market_id", marketID),
		slog.String("caller", caller),
		slog.Int64("payout", payout),
	)
	return payout, nil
}

// claimAmount validates a claim and computes the payout. Cancelled markets
// refund the raw stake; resolved markets pay the pro-rata pool share with
// the platform fee deducted.
func claimAmount(m *domain.Market, fees domain.FeeConfig, caller string) (int64, error) {
	if m.Claimed[caller] {
		return 0, fmt.Errorf("vote_service: caller %s: %w", caller, domain.ErrAlreadyClaimed)
	}

	if m.State == domain.MarketStateCancelled {
		stake := m.Stakes[caller]
		if stake == 0 {
			return 0, fmt.Errorf("vote_service: caller %s: %w", caller, domain.ErrNothingToClaim)
		}
		return stake, nil
	}

	if m.State != domain.MarketStateResolved && m.State != domain.MarketStateClosed {
		return 0, fmt.Errorf("vote_service: market %s state %s: %w", m.ID, m.State, domain.ErrMarketNotResolved)
	}

	outcome, voted := m.Votes[caller]
	if !voted || outcome != m.WinningOutcome {
		return 0, fmt.Errorf("vote_service: caller %s: %w", caller, domain.ErrNothingToClaim)
	}

	winningTotal := m.WinningTotal()
	if winningTotal == 0 {
		return 0, fmt.Errorf("vote_service: empty winning pool: %w", domain.ErrNothingToClaim)
	}
	gross := domain.GrossPayout(m.Stakes[caller], winningTotal, m.TotalStaked)
	return fees.PayoutAfterFees(gross), nil
}
