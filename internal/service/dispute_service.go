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

// DisputeService handles challenges to resolved markets: opening disputes,
// weighted voting, escalation and the admin-gated final ruling.
type DisputeService struct {
	markets     domain.MarketStore
	disputes    domain.DisputeStore
	resolutions domain.ResolutionStore
	cache       domain.MarketCache
	ledger      domain.AssetLedger
	config      domain.SystemConfigStore
	pub         *publisher
	section     *guardedSection
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

// NewDisputeService creates a DisputeService with all required dependencies.
func NewDisputeService(
	markets domain.MarketStore,
	disputes domain.DisputeStore,
	resolutions domain.ResolutionStore,
	cache domain.MarketCache,
	ledger domain.AssetLedger,
	config domain.SystemConfigStore,
	bus domain.EventBus,
	locks domain.LockManager,
	guard *reentrancy.Guard,
	logger *slog.Logger,
) *DisputeService {
	return &DisputeService{
		markets:     markets,
		disputes:    disputes,
		resolutions: resolutions,
		cache:       cache,
		ledger:      ledger,
		config:      config,
		pub:         &publisher{bus: bus, logger: logger},
		section:     &guardedSection{guard: guard, locks: locks, logger: logger},
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Open challenges a resolved market. The required stake scales with market
// size and activity; the market moves to Disputed while the challenge is
// live.
func (s *DisputeService) Open(ctx context.Context, caller, marketID string, stake int64, reason string) (*domain.Dispute, error) {
	if reason == "" {
		return nil, fmt.Errorf("dispute_service: open: %w", domain.ErrInvalidInput)
	}
	sc, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispute_service: get config: %w", err)
	}
	thresholds := domain.DisputeThresholds{Base: sc.DisputeBase}

	var d *domain.Dispute
	err = s.section.run(ctx, marketID, func() error {
		m, err := s.markets.Get(ctx, marketID)
		if err != nil {
			return err
		}
		if m.State != domain.MarketStateResolved {
			return fmt.Errorf("dispute_service: market %s state %s: %w", marketID, m.State, domain.ErrInvalidState)
		}
		if _, disputed := m.DisputeStakes[caller]; disputed {
			return fmt.Errorf("dispute_service: caller %s: %w", caller, domain.ErrAlreadyDisputed)
		}
		if required := thresholds.RequiredDisputeStake(m); stake < required {
			return fmt.Errorf("dispute_service: stake %d below threshold %d: %w", stake, required, domain.ErrInsufficientStake)
		}

		escrow := domain.EscrowAccount(marketID)
		if err := s.ledger.Transfer(ctx, caller, escrow, stake); err != nil {
			return fmt.Errorf("dispute_service: stake transfer: %w", err)
		}
		if _, err := updateMarket(ctx, s.markets, marketID, func(m *domain.Market) error {
			if m.State != domain.MarketStateResolved {
				return fmt.Errorf("dispute_service: market %s state %s: %w", marketID, m.State, domain.ErrInvalidState)
			}
			if _, disputed := m.DisputeStakes[caller]; disputed {
				return fmt.Errorf("dispute_service: caller %s: %w", caller, domain.ErrAlreadyDisputed)
			}
			m.DisputeStakes[caller] = stake
			m.State = domain.MarketStateDisputed
			return nil
		}); err != nil {
			if refundErr := s.ledger.Transfer(ctx, escrow, caller, stake); refundErr != nil {
				s.logger.ErrorContext(ctx, "dispute_service: stake refund failed",
					slog.String("market_id", marketID),
					slog.String("error", refundErr.Error()),
				)
			}
			return err
		}

		d = &domain.Dispute{
			ID:        s.newID(),
			MarketID:  marketID,
			Disputer:  caller,
			Stake:     stake,
			Reason:    reason,
			Status:    domain.DisputeStatusActive,
			Votes:     make(map[string]domain.DisputeVote),
			CreatedAt: s.now(),
		}
		if err := s.disputes.Create(ctx, d); err != nil {
			return fmt.Errorf("dispute_service: persist dispute: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, s.logger, marketID)
	s.pub.publish(ctx, domain.Event{
		Type:     domain.EventMarketDisputed,
		MarketID: marketID,
		Actor:    caller,
		At:       d.CreatedAt,
		Data:     map[string]any{"dispute_id": d.ID, "stake": stake, "reason": reason},
	})
	s.logger.InfoContext(ctx, "dispute_service: dispute opened",
		slog.String("market_id", marketID),
		slog.String("dispute_id", d.ID),
		slog.Int64("stake", stake),
	)
	return d, nil
}

// Vote casts a weighted vote on the open dispute. A repeat vote replaces
// the earlier one entirely: the old stake is refunded and the new stake
// escrowed.
func (s *DisputeService) Vote(ctx context.Context, voter, marketID string, approve bool, stake int64) error {
	if stake <= 0 {
		return fmt.Errorf("dispute_service: vote stake %d: %w", stake, domain.ErrInsufficientStake)
	}

	err := s.section.run(ctx, marketID, func() error {
		d, err := s.disputes.GetOpenByMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if !d.Open() {
			return fmt.Errorf("dispute_service: dispute %s closed: %w", d.ID, domain.ErrInvalidState)
		}

		prev, revote := d.Votes[voter]

		escrow := domain.EscrowAccount(marketID)
		if err := s.ledger.Transfer(ctx, voter, escrow, stake); err != nil {
			return fmt.Errorf("dispute_service: vote stake transfer: %w", err)
		}

		d.Votes[voter] = domain.DisputeVote{
			Voter:   voter,
			Approve: approve,
			Stake:   stake,
			CastAt:  s.now(),
		}
		if err := s.disputes.Update(ctx, d); err != nil {
			if refundErr := s.ledger.Transfer(ctx, escrow, voter, stake); refundErr != nil {
				s.logger.ErrorContext(ctx, "dispute_service: vote stake unwind failed",
					slog.String("market_id", marketID),
					slog.String("error", refundErr.Error()),
				)
			}
			return fmt.Errorf("dispute_service: persist vote: %w", err)
		}
		// The replaced stake leaves escrow only once the new vote is durable;
		// a failed refund here leaves funds in escrow rather than losing them.
		if revote {
			if err := s.ledger.Transfer(ctx, escrow, voter, prev.Stake); err != nil {
				s.logger.ErrorContext(ctx, "dispute_service: previous stake refund failed",
					slog.String("market_id", marketID),
					slog.String("voter", voter),
					slog.Int64("stake", prev.Stake),
					slog.String("error", err.Error()),
				)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.pub.publish(ctx, domain.Event{
		Type:     domain.EventDisputeVote,
		MarketID: marketID,
		Actor:    voter,
		At:       s.now(),
		Data:     map[string]any{"approve": approve, "stake": stake},
	})
	return nil
}

// Escalate flags the dispute for admin review. Only the disputer or the
// platform admin may escalate.
func (s *DisputeService) Escalate(ctx context.Context, caller, marketID string) error {
	sc, err := s.config.Get(ctx)
	if err != nil {
		return fmt.Errorf("dispute_service: get config: %w", err)
	}
	d, err := s.disputes.GetOpenByMarket(ctx, marketID)
	if err != nil {
		return err
	}
	if !sameAddress(caller, d.Disputer) && !sameAddress(caller, sc.Admin) {
		return fmt.Errorf("dispute_service: escalate by %s: %w", caller, domain.ErrUnauthorized)
	}
	if d.Status != domain.DisputeStatusActive {
		return fmt.Errorf("dispute_service: dispute %s status %s: %w", d.ID, d.Status, domain.ErrInvalidState)
	}
	d.Status = domain.DisputeStatusEscalated
	if err := s.disputes.Update(ctx, d); err != nil {
		return fmt.Errorf("dispute_service: persist escalation: %w", err)
	}
	s.logger.InfoContext(ctx, "dispute_service: dispute escalated",
		slog.String("market_id", marketID),
		slog.String("dispute_id", d.ID),
	)
	return nil
}

// Resolve rules on the open dispute. The vote tally decides: the dispute is
// approved when approval stake strictly outweighs rejection stake. On
// approval the market's outcome becomes the community consensus recorded at
// resolution time and the disputer's stake is refunded; on rejection the
// stake is forfeited to the treasury. Either way the losing side's vote
// stakes are split pro rata among the winning voters.
func (s *DisputeService) Resolve(ctx context.Context, caller, marketID string) (*domain.Dispute, error) {
	sc, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispute_service: get config: %w", err)
	}
	if !sameAddress(caller, sc.Admin) {
		return nil, fmt.Errorf("dispute_service: resolve by %s: %w", caller, domain.ErrUnauthorized)
	}

	var d *domain.Dispute
	err = s.section.run(ctx, marketID, func() error {
		var err error
		d, err = s.disputes.GetOpenByMarket(ctx, marketID)
		if err != nil {
			return err
		}
		m, err := s.markets.Get(ctx, marketID)
		if err != nil {
			return err
		}
		if m.State != domain.MarketStateDisputed {
			return fmt.Errorf("dispute_service: market %s state %s: %w", marketID, m.State, domain.ErrInvalidState)
		}

		approveStake, rejectStake := d.Tally()
		approved := approveStake > rejectStake

		finalOutcome := m.WinningOutcome
		if approved {
			res, err := s.resolutions.GetMarketResolution(ctx, marketID)
			if err != nil {
				return fmt.Errorf("dispute_service: get resolution: %w", err)
			}
			if res.CommunityOutcome != "" {
				finalOutcome = res.CommunityOutcome
			}
			res.FinalOutcome = finalOutcome
			res.Method = domain.ResolutionMethodDispute
			res.ResolvedAt = s.now()
			if err := s.resolutions.SaveMarketResolution(ctx, res); err != nil {
				return fmt.Errorf("dispute_service: update resolution: %w", err)
			}
		}

		if err := s.settleDisputeFunds(ctx, m, d, sc, approved); err != nil {
			return err
		}

		now := s.now()
		if approved {
			d.Status = domain.DisputeStatusApproved
		} else {
			d.Status = domain.DisputeStatusRejected
		}
		d.ClosedAt = &now
		if err := s.disputes.Update(ctx, d); err != nil {
			return fmt.Errorf("dispute_service: persist ruling: %w", err)
		}

		if _, err := updateMarket(ctx, s.markets, marketID, func(m *domain.Market) error {
			if m.State != domain.MarketStateDisputed {
				return fmt.Errorf("dispute_service: market %s state %s: %w", marketID, m.State, domain.ErrInvalidState)
			}
			m.WinningOutcome = finalOutcome
			m.State = domain.MarketStateResolved
			return nil
		}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, s.logger, marketID)
	s.pub.publish(ctx, domain.Event{
		Type:     domain.EventDisputeResolved,
		MarketID: marketID,
		Actor:    caller,
		At:       s.now(),
		Data:     map[string]any{"dispute_id": d.ID, "status": string(d.Status)},
	})
	s.logger.InfoContext(ctx, "dispute_service: dispute resolved",
		slog.String("market_id", marketID),
		slog.String("dispute_id", d.ID),
		slog.String("status", string(d.Status)),
	)
	return d, nil
}

// settleDisputeFunds pays out the dispute stakes. The disputer's stake is
// refunded on approval and forfeited to the treasury on rejection. Losing
// voters' stakes are split among winning voters pro rata to their vote
// stakes; truncation dust stays in escrow until archival.
func (s *DisputeService) settleDisputeFunds(ctx context.Context, m *domain.Market, d *domain.Dispute, sc *domain.SystemConfig, approved bool) error {
	escrow := domain.EscrowAccount(m.ID)

	disputerDest := sc.Treasury
	if approved {
		disputerDest = d.Disputer
	}
	if err := s.ledger.Transfer(ctx, escrow, disputerDest, d.Stake); err != nil {
		return fmt.Errorf("dispute_service: disputer stake payout: %w", err)
	}

	var winPool, losePool int64
	for _, v := range d.Votes {
		if v.Approve == approved {
			winPool += v.Stake
		} else {
			losePool += v.Stake
		}
	}
	if losePool == 0 {
		return nil
	}
	if winPool == 0 {
		// Nobody on the winning side; forfeited stakes go to the treasury.
		if err := s.ledger.Transfer(ctx, escrow, sc.Treasury, losePool); err != nil {
			return fmt.Errorf("dispute_service: forfeited stakes: %w", err)
		}
		return nil
	}
	for _, v := range d.Votes {
		if v.Approve != approved {
			continue
		}
		// Winner gets stake back plus a pro-rata share of the losing pool.
		share := v.Stake + v.Stake*losePool/winPool
		if err := s.ledger.Transfer(ctx, escrow, v.Voter, share); err != nil {
			return fmt.Errorf("dispute_service: voter payout: %w", err)
		}
	}
	return nil
}

// Stats summarizes a market's disputes.
type DisputeStats struct {
	MarketID     string            `json:"market_id"`
	Disputes     []*domain.Dispute `json:"disputes"`
	ApproveStake int64             `json:"approve_stake"`
	RejectStake  int64             `json:"reject_stake"`
}

// Stats returns the dispute history and the open tally for a market.
func (s *DisputeService) Stats(ctx context.Context, marketID string) (*DisputeStats, error) {
	list, err := s.disputes.ListByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("dispute_service: list disputes: %w", err)
	}
	stats := &DisputeStats{MarketID: marketID, Disputes: list}
	for _, d := range list {
		if d.Open() {
			approve, reject := d.Tally()
			stats.ApproveStake += approve
			stats.RejectStake += reject
		}
	}
	return stats, nil
}
