package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/predictify/engine/internal/domain"
)

// ResolutionService combines the oracle result with community consensus to
// settle markets. The oracle wins disagreements; the community reading is
// kept in the audit record so an approved dispute can fall back to it.
type ResolutionService struct {
	markets     domain.MarketStore
	cache       domain.MarketCache
	resolutions domain.ResolutionStore
	config      domain.SystemConfigStore
	pub         *publisher
	logger      *slog.Logger
	now         func() time.Time
}

// NewResolutionService creates a ResolutionService with all required
// dependencies.
func NewResolutionService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	resolutions domain.ResolutionStore,
	config domain.SystemConfigStore,
	bus domain.EventBus,
	logger *slog.Logger,
) *ResolutionService {
	return &ResolutionService{
		markets:     markets,
		cache:       cache,
		resolutions: resolutions,
		config:      config,
		pub:         &publisher{bus: bus, logger: logger},
		logger:      logger,
		now:         time.Now,
	}
}

// Resolve settles an ended market from its stored oracle result and the
// community's stake-weighted consensus.
func (s *ResolutionService) Resolve(ctx context.Context, marketID string) (*domain.MarketResolution, error) {
	oracleRes, err := s.resolutions.GetOracleResolution(ctx, marketID)
	if err != nil {
		if errors.Is(err, domain.ErrMarketNotFound) {
			return nil, fmt.Errorf("resolution_service: market %s: %w", marketID, domain.ErrOracleResultRequired)
		}
		return nil, fmt.Errorf("resolution_service: get oracle result: %w", err)
	}

	var res *domain.MarketResolution
	m, err := updateMarket(ctx, s.markets, marketID, func(m *domain.Market) error {
		if m.State == domain.MarketStateResolved || m.Terminal() {
			return fmt.Errorf("resolution_service: market %s state %s: %w", marketID, m.State, domain.ErrMarketAlreadyResolved)
		}
		if !m.Ended(s.now()) {
			return fmt.Errorf("resolution_service: market %s still open: %w", marketID, domain.ErrMarketClosed)
		}

		community := m.CommunityConsensus()
		method := domain.ResolutionMethodHybridAgreement
		switch {
		case community == "":
			method = domain.ResolutionMethodOracleOnly
		case community != oracleRes.Outcome:
			method = domain.ResolutionMethodHybridOverride
		}

		res = &domain.MarketResolution{
			MarketID:         marketID,
			FinalOutcome:     oracleRes.Outcome,
			OracleOutcome:    oracleRes.Outcome,
			CommunityOutcome: community,
			Method:           method,
			Confidence:       domain.ResolutionConfidence(m, oracleRes.Outcome, community),
			ResolvedAt:       s.now(),
		}
		m.WinningOutcome = oracleRes.Outcome
		m.State = domain.MarketStateResolved
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.resolutions.SaveMarketResolution(ctx, res); err != nil {
		return nil, fmt.Errorf("resolution_service: save resolution: %w", err)
	}

	invalidate(ctx, s.cache, s.logger, marketID)
	s.publishResolved(ctx, m, res)
	return res, nil
}

// ResolveManual lets the admin settle a market directly. This is the only
// resolution path for markets with more than two outcomes.
func (s *ResolutionService) ResolveManual(ctx context.Context, caller, marketID, outcome string) (*domain.MarketResolution, error) {
	sc, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolution_service: get config: %w", err)
	}
	if !sameAddress(caller, sc.Admin) {
		return nil, fmt.Errorf("resolution_service: manual resolve by %s: %w", caller, domain.ErrUnauthorized)
	}

	var res *domain.MarketResolution
	m, err := updateMarket(ctx, s.markets, marketID, func(m *domain.Market) error {
		if m.State == domain.MarketStateResolved || m.Terminal() {
			return fmt.Errorf("resolution_service: market %s state %s: %w", marketID, m.State, domain.ErrMarketAlreadyResolved)
		}
		if !m.Ended(s.now()) {
			return fmt.Errorf("resolution_service: market %s still open: %w", marketID, domain.ErrMarketClosed)
		}
		if !m.HasOutcome(outcome) {
			return fmt.Errorf("resolution_service: outcome %q: %w", outcome, domain.ErrInvalidOutcome)
		}

		res = &domain.MarketResolution{
			MarketID:         marketID,
			FinalOutcome:     outcome,
			CommunityOutcome: m.CommunityConsensus(),
			Method:           domain.ResolutionMethodManual,
			Confidence:       100,
			ResolvedAt:       s.now(),
		}
		m.WinningOutcome = outcome
		m.State = domain.MarketStateResolved
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.resolutions.SaveMarketResolution(ctx, res); err != nil {
		return nil, fmt.Errorf("resolution_service: save resolution: %w", err)
	}

	invalidate(ctx, s.cache, s.logger, marketID)
	s.publishResolved(ctx, m, res)
	return res, nil
}

// Resolution returns the stored resolution audit record for a market.
func (s *ResolutionService) Resolution(ctx context.Context, marketID string) (*domain.MarketResolution, error) {
	res, err := s.resolutions.GetMarketResolution(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("resolution_service: get resolution: %w", err)
	}
	return res, nil
}

func (s *ResolutionService) publishResolved(ctx context.Context, m *domain.Market, res *domain.MarketResolution) {
	s.pub.publish(ctx, domain.Event{
		Type:     domain.EventMarketResolved,
		MarketID: m.ID,
		At:       res.ResolvedAt,
		Data: map[string]any{
			"outcome":    res.FinalOutcome,
			"method":     string(res.Method),
			"confidence": res.Confidence,
		},
	})
	s.logger.InfoContext(ctx, "resolution_service: market resolved",
		slog.String("market_id", m.ID),
		slog.String("outcome", res.FinalOutcome),
		slog.String("method", string(res.Method)),
		slog.Int64("confidence", res.Confidence),
	)
}
