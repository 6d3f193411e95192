package s3blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/predictify/engine/internal/domain"
)

// defaultRetention is how long a settled market stays hot before the
// archiver moves it to object storage and closes it.
const defaultRetention = 30 * 24 * time.Hour

// sweepBatchSize bounds how many candidates a single sweep examines.
const sweepBatchSize = 200

// marketSnapshot is the archived JSON document for a settled market: the
// full aggregate plus its resolution records and fee history, so the hot
// row can be reduced to a closed tombstone.
type marketSnapshot struct {
	Market           *domain.Market           `json:"market"`
	Resolution       *domain.MarketResolution `json:"resolution,omitempty"`
	OracleResolution *domain.OracleResolution `json:"oracle_resolution,omitempty"`
	Disputes         []*domain.Dispute        `json:"disputes,omitempty"`
	FeeHistory       []*domain.FeeCollection  `json:"fee_history,omitempty"`
	ArchivedAt       time.Time                `json:"archived_at"`
}

// Archiver moves settled markets to object storage. A market qualifies
// once it is resolved, its platform fee has been collected, and its
// resolution has aged past the retention window. Archived markets are
// flipped to the closed state; claims stay available from the closed row.
type Archiver struct {
	markets     domain.MarketStore
	disputes    domain.DisputeStore
	resolutions domain.ResolutionStore
	fees        domain.FeeAuditStore
	writer      domain.BlobWriter
	pub         domain.EventBus
	logger      *slog.Logger
	retention   time.Duration
	now         func() time.Time
}

// NewArchiver creates an Archiver. retention <= 0 selects the default
// 30-day window.
func NewArchiver(
	markets domain.MarketStore,
	disputes domain.DisputeStore,
	resolutions domain.ResolutionStore,
	fees domain.FeeAuditStore,
	writer domain.BlobWriter,
	pub domain.EventBus,
	logger *slog.Logger,
	retention time.Duration,
) *Archiver {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Archiver{
		markets:     markets,
		disputes:    disputes,
		resolutions: resolutions,
		fees:        fees,
		writer:      writer,
		pub:         pub,
		logger:      logger,
		retention:   retention,
		now:         time.Now,
	}
}

// Run sweeps on the given interval until the context is cancelled.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := a.Sweep(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archiver: sweep failed",
					slog.String("error", err.Error()),
				)
			} else if n > 0 {
				a.logger.InfoContext(ctx, "archiver: sweep complete",
					slog.Int("archived", n),
				)
			}
		}
	}
}

// Sweep archives every qualifying market once and returns how many it
// moved. Individual failures are logged and skipped so one bad market
// cannot wedge the sweep.
func (a *Archiver) Sweep(ctx context.Context) (int, error) {
	candidates, err := a.markets.List(ctx, domain.ListOpts{
		State: domain.MarketStateResolved,
		Limit: sweepBatchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: list archive candidates: %w", err)
	}

	archived := 0
	for _, m := range candidates {
		if !a.eligible(m) {
			continue
		}
		if err := a.archiveMarket(ctx, m); err != nil {
			a.logger.WarnContext(ctx, "archiver: market skipped",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		archived++
	}
	return archived, nil
}

// eligible reports whether a resolved market is old enough and fully
// settled. Markets with uncollected fees stay hot so the treasury sweep
// can still run; empty markets have nothing to collect and qualify as-is.
func (a *Archiver) eligible(m *domain.Market) bool {
	if m.State != domain.MarketStateResolved {
		return false
	}
	if !m.FeeCollected && m.TotalStaked > 0 {
		return false
	}
	return a.now().Sub(m.EndTime) >= a.retention
}

// archiveMarket uploads the snapshot first and closes the row only after
// the upload succeeded, so a failed upload leaves the market untouched.
func (a *Archiver) archiveMarket(ctx context.Context, m *domain.Market) error {
	snap := marketSnapshot{
		Market:     m,
		ArchivedAt: a.now().UTC(),
	}

	if res, err := a.resolutions.GetMarketResolution(ctx, m.ID); err == nil {
		snap.Resolution = res
	} else if !errors.Is(err, domain.ErrMarketNotFound) {
		return fmt.Errorf("s3blob: load resolution: %w", err)
	}
	if ores, err := a.resolutions.GetOracleResolution(ctx, m.ID); err == nil {
		snap.OracleResolution = ores
	} else if !errors.Is(err, domain.ErrMarketNotFound) {
		return fmt.Errorf("s3blob: load oracle resolution: %w", err)
	}

	disputes, err := a.disputes.ListByMarket(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("s3blob: load disputes: %w", err)
	}
	snap.Disputes = disputes

	history, err := a.fees.ListByMarket(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("s3blob: load fee history: %w", err)
	}
	snap.FeeHistory = history

	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("s3blob: marshal snapshot %s: %w", m.ID, err)
	}

	key := archiveKey(m)
	if err := a.writer.Put(ctx, key, body); err != nil {
		return fmt.Errorf("s3blob: upload snapshot %s: %w", m.ID, err)
	}

	m.State = domain.MarketStateClosed
	if err := a.markets.Update(ctx, m); err != nil {
		return fmt.Errorf("s3blob: close market %s: %w", m.ID, err)
	}

	if a.pub != nil {
		ev := domain.Event{
			Type:     domain.EventMarketArchived,
			MarketID: m.ID,
			At:       a.now().UTC(),
			Data:     map[string]any{"key": key},
		}
		if err := a.pub.Publish(ctx, ev); err != nil {
			a.logger.WarnContext(ctx, "archiver: event publish failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	a.logger.InfoContext(ctx, "archiver: market archived",
		slog.String("market_id", m.ID),
		slog.String("key", key),
	)
	return nil
}

// archiveKey builds the S3 key for a market snapshot, partitioned by the
// year-month of its deadline:
//
//	archive/markets/2025-06/<id>.json
func archiveKey(m *domain.Market) string {
	return fmt.Sprintf("archive/markets/%s/%s.json", m.EndTime.Format("2006-01"), m.ID)
}
