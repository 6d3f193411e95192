package s3blob

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictify/engine/internal/domain"
)

type memMarkets struct {
	byID map[string]*domain.Market
}

func (s *memMarkets) Create(ctx context.Context, m *domain.Market) error {
	s.byID[m.ID] = m
	return nil
}

func (s *memMarkets) Get(ctx context.Context, id string) (*domain.Market, error) {
	m, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return m, nil
}

func (s *memMarkets) Update(ctx context.Context, m *domain.Market) error {
	s.byID[m.ID] = m
	return nil
}

func (s *memMarkets) List(ctx context.Context, opts domain.ListOpts) ([]*domain.Market, error) {
	var out []*domain.Market
	for _, m := range s.byID {
		if opts.State == "" || m.State == opts.State {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMarkets) Delete(ctx context.Context, id string) error {
	delete(s.byID, id)
	return nil
}

type memResolutions struct {
	market map[string]*domain.MarketResolution
	oracle map[string]*domain.OracleResolution
}

func (s *memResolutions) SaveOracleResolution(ctx context.Context, r *domain.OracleResolution) error {
	s.oracle[r.MarketID] = r
	return nil
}

func (s *memResolutions) GetOracleResolution(ctx context.Context, marketID string) (*domain.OracleResolution, error) {
	r, ok := s.oracle[marketID]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return r, nil
}

func (s *memResolutions) SaveMarketResolution(ctx context.Context, r *domain.MarketResolution) error {
	s.market[r.MarketID] = r
	return nil
}

func (s *memResolutions) GetMarketResolution(ctx context.Context, marketID string) (*domain.MarketResolution, error) {
	r, ok := s.market[marketID]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return r, nil
}

type memDisputes struct{}

func (memDisputes) Create(ctx context.Context, d *domain.Dispute) error { return nil }
func (memDisputes) Get(ctx context.Context, id string) (*domain.Dispute, error) {
	return nil, domain.ErrDisputeNotFound
}
func (memDisputes) GetOpenByMarket(ctx context.Context, marketID string) (*domain.Dispute, error) {
	return nil, domain.ErrDisputeNotFound
}
func (memDisputes) Update(ctx context.Context, d *domain.Dispute) error { return nil }
func (memDisputes) ListByMarket(ctx context.Context, marketID string) ([]*domain.Dispute, error) {
	return nil, nil
}

type memFees struct{}

func (memFees) Append(ctx context.Context, fc *domain.FeeCollection) error { return nil }
func (memFees) ListByMarket(ctx context.Context, marketID string) ([]*domain.FeeCollection, error) {
	return nil, nil
}
func (memFees) TotalCollected(ctx context.Context) (int64, error) { return 0, nil }

type memWriter struct {
	objects map[string][]byte
}

func (w *memWriter) Put(ctx context.Context, key string, body []byte) error {
	w.objects[key] = body
	return nil
}

type memBus struct {
	events []domain.Event
}

func (b *memBus) Publish(ctx context.Context, ev domain.Event) error {
	b.events = append(b.events, ev)
	return nil
}

func newTestArchiver(t *testing.T) (*Archiver, *memMarkets, *memWriter, *memBus) {
	t.Helper()
	markets := &memMarkets{byID: make(map[string]*domain.Market)}
	writer := &memWriter{objects: make(map[string][]byte)}
	bus := &memBus{}
	resolutions := &memResolutions{
		market: make(map[string]*domain.MarketResolution),
		oracle: make(map[string]*domain.OracleResolution),
	}

	a := NewArchiver(markets, memDisputes{}, resolutions, memFees{}, writer, bus,
		slog.New(slog.NewJSONHandler(io.Discard, nil)), 0)
	a.now = func() time.Time { return time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC) }
	return a, markets, writer, bus
}

func settledMarket(id string, endTime time.Time) *domain.Market {
	return &domain.Market{
		ID:           id,
		Question:     "Will BTC exceed 50k?",
		Outcomes:     []string{"yes", "no"},
		State:        domain.MarketStateResolved,
		EndTime:      endTime,
		TotalStaked:  150_000_000,
		FeeCollected: true,
		Version:      3,
	}
}

func TestSweepArchivesSettledMarket(t *testing.T) {
	a, markets, writer, bus := newTestArchiver(t)

	old := settledMarket("m-old", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	markets.byID[old.ID] = old

	n, err := a.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, domain.MarketStateClosed, markets.byID["m-old"].State)

	raw, ok := writer.objects["archive/markets/2025-06/m-old.json"]
	require.True(t, ok, "snapshot must be uploaded under the deadline month")

	var snap marketSnapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, "m-old", snap.Market.ID)
	assert.False(t, snap.ArchivedAt.IsZero())

	require.Len(t, bus.events, 1)
	assert.Equal(t, domain.EventMarketArchived, bus.events[0].Type)
}

func TestSweepSkipsRecentAndUnsettledMarkets(t *testing.T) {
	a, markets, writer, _ := newTestArchiver(t)

	recent := settledMarket("m-recent", time.Date(2025, 7, 20, 0, 0, 0, 0, time.UTC))
	markets.byID[recent.ID] = recent

	unswept := settledMarket("m-fees-due", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	unswept.FeeCollected = false
	markets.byID[unswept.ID] = unswept

	n, err := a.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.objects)
	assert.Equal(t, domain.MarketStateResolved, markets.byID["m-recent"].State)
	assert.Equal(t, domain.MarketStateResolved, markets.byID["m-fees-due"].State)
}

func TestSweepArchivesEmptyMarketWithoutFees(t *testing.T) {
	a, markets, _, _ := newTestArchiver(t)

	empty := settledMarket("m-empty", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	empty.TotalStaked = 0
	empty.FeeCollected = false
	markets.byID[empty.ID] = empty

	n, err := a.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.MarketStateClosed, markets.byID["m-empty"].State)
}
