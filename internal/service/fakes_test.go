package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/predictify/engine/internal/domain"
	"github.com/predictify/engine/internal/reentrancy"
)

// In-memory fakes for the port interfaces, shared by the service tests.

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func cloneMarket(m *domain.Market) *domain.Market {
	raw, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	var out domain.Market
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return &out
}

type memMarketStore struct {
	mu      sync.Mutex
	markets map[string]*domain.Market
}

func newMemMarketStore() *memMarketStore {
	return &memMarketStore{markets: make(map[string]*domain.Market)}
}

func (s *memMarketStore) Create(_ context.Context, m *domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return domain.ErrInvalidState
	}
	s.markets[m.ID] = cloneMarket(m)
	return nil
}

func (s *memMarketStore) Get(_ context.Context, id string) (*domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return cloneMarket(m), nil
}

func (s *memMarketStore) Update(_ context.Context, m *domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.markets[m.ID]
	if !ok {
		return domain.ErrMarketNotFound
	}
	if cur.Version != m.Version {
		return domain.ErrConflict
	}
	next := cloneMarket(m)
	next.Version++
	s.markets[m.ID] = next
	m.Version = next.Version
	return nil
}

func (s *memMarketStore) List(_ context.Context, opts domain.ListOpts) ([]*domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Market
	for _, m := range s.markets {
		if opts.State != "" && m.State != opts.State {
			continue
		}
		out = append(out, cloneMarket(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memMarketStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markets, id)
	return nil
}

type memDisputeStore struct {
	mu       sync.Mutex
	disputes map[string]*domain.Dispute

	// failUpdate, when set, makes the next Update calls fail with it.
	failUpdate error
}

func newMemDisputeStore() *memDisputeStore {
	return &memDisputeStore{disputes: make(map[string]*domain.Dispute)}
}

func cloneDispute(d *domain.Dispute) *domain.Dispute {
	raw, _ := json.Marshal(d)
	var out domain.Dispute
	_ = json.Unmarshal(raw, &out)
	return &out
}

func (s *memDisputeStore) Create(_ context.Context, d *domain.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disputes[d.ID] = cloneDispute(d)
	return nil
}

func (s *memDisputeStore) Get(_ context.Context, id string) (*domain.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disputes[id]
	if !ok {
		return nil, domain.ErrDisputeNotFound
	}
	return cloneDispute(d), nil
}

func (s *memDisputeStore) GetOpenByMarket(_ context.Context, marketID string) (*domain.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.disputes {
		if d.MarketID == marketID && d.Open() {
			return cloneDispute(d), nil
		}
	}
	return nil, domain.ErrDisputeNotFound
}

func (s *memDisputeStore) Update(_ context.Context, d *domain.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return s.failUpdate
	}
	if _, ok := s.disputes[d.ID]; !ok {
		return domain.ErrDisputeNotFound
	}
	s.disputes[d.ID] = cloneDispute(d)
	return nil
}

func (s *memDisputeStore) ListByMarket(_ context.Context, marketID string) ([]*domain.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Dispute
	for _, d := range s.disputes {
		if d.MarketID == marketID {
			out = append(out, cloneDispute(d))
		}
	}
	return out, nil
}

type memResolutionStore struct {
	mu     sync.Mutex
	oracle map[string]*domain.OracleResolution
	market map[string]*domain.MarketResolution
}

func newMemResolutionStore() *memResolutionStore {
	return &memResolutionStore{
		oracle: make(map[string]*domain.OracleResolution),
		market: make(map[string]*domain.MarketResolution),
	}
}

func (s *memResolutionStore) SaveOracleResolution(_ context.Context, r *domain.OracleResolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.oracle[r.MarketID] = &cp
	return nil
}

func (s *memResolutionStore) GetOracleResolution(_ context.Context, marketID string) (*domain.OracleResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.oracle[marketID]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memResolutionStore) SaveMarketResolution(_ context.Context, r *domain.MarketResolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.market[r.MarketID] = &cp
	return nil
}

func (s *memResolutionStore) GetMarketResolution(_ context.Context, marketID string) (*domain.MarketResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.market[marketID]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	cp := *r
	return &cp, nil
}

type memFeeAudit struct {
	mu      sync.Mutex
	entries []*domain.FeeCollection
}

func newMemFeeAudit() *memFeeAudit { return &memFeeAudit{} }

func (s *memFeeAudit) Append(_ context.Context, fc *domain.FeeCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *fc
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *memFeeAudit) ListByMarket(_ context.Context, marketID string) ([]*domain.FeeCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.FeeCollection
	for _, fc := range s.entries {
		if fc.MarketID == marketID {
			cp := *fc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memFeeAudit) TotalCollected(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, fc := range s.entries {
		total += fc.Amount
	}
	return total, nil
}

type memConfigStore struct {
	mu sync.Mutex
	sc *domain.SystemConfig
}

func newMemConfigStore() *memConfigStore { return &memConfigStore{} }

func (s *memConfigStore) Get(_ context.Context) (*domain.SystemConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sc == nil {
		return nil, domain.ErrConfigurationNotFound
	}
	cp := *s.sc
	return &cp, nil
}

func (s *memConfigStore) Put(_ context.Context, sc *domain.SystemConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sc
	s.sc = &cp
	return nil
}

// memLedger is a strict in-memory asset ledger: transfers fail when the
// source account lacks funds.
type memLedger struct {
	mu       sync.Mutex
	balances map[string]int64
}

func newMemLedger() *memLedger {
	return &memLedger{balances: make(map[string]int64)}
}

func (l *memLedger) fund(account string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

func (l *memLedger) Balance(_ context.Context, account string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}

func (l *memLedger) Transfer(_ context.Context, from, to string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount <= 0 {
		return domain.ErrInvalidInput
	}
	if l.balances[from] < amount {
		return fmt.Errorf("ledger: %s has %d, needs %d: %w", from, l.balances[from], amount, domain.ErrTransferFailed)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// total sums every balance, for conservation checks.
func (l *memLedger) total() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum int64
	for _, b := range l.balances {
		sum += b
	}
	return sum
}

type memBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func newMemBus() *memBus { return &memBus{} }

func (b *memBus) Publish(_ context.Context, ev domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *memBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Type
	}
	return out
}

// noopCache always misses so tests exercise the store path.
type noopCache struct{}

func (noopCache) Get(context.Context, string) (*domain.Market, error) {
	return nil, domain.ErrMarketNotFound
}
func (noopCache) Set(context.Context, *domain.Market) error { return nil }
func (noopCache) Invalidate(context.Context, string) error  { return nil }

type noopLocks struct{}

func (noopLocks) Acquire(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

// staticOracle returns a fixed price.
type staticOracle struct {
	price int64
	at    time.Time
	err   error
}

func (o *staticOracle) Price(context.Context, domain.OracleProvider, string) (int64, time.Time, error) {
	if o.err != nil {
		return 0, time.Time{}, o.err
	}
	return o.price, o.at, nil
}

// engineFixture wires every service over shared in-memory fakes.
type engineFixture struct {
	markets     *memMarketStore
	disputes    *memDisputeStore
	resolutions *memResolutionStore
	audit       *memFeeAudit
	config      *memConfigStore
	ledger      *memLedger
	bus         *memBus
	oracle      *staticOracle
	guard       *reentrancy.Guard

	admin      *AdminService
	market     *MarketService
	vote       *VoteService
	oracleSvc  *OracleService
	resolution *ResolutionService
	dispute    *DisputeService
	fee        *FeeService

	now time.Time
}

const (
	testAdmin    = "GADMIN"
	testTreasury = "GTREASURY"
)

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		markets:     newMemMarketStore(),
		disputes:    newMemDisputeStore(),
		resolutions: newMemResolutionStore(),
		audit:       newMemFeeAudit(),
		config:      newMemConfigStore(),
		ledger:      newMemLedger(),
		bus:         newMemBus(),
		oracle:      &staticOracle{},
		guard:       reentrancy.NewGuard(),
		now:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	logger := testLogger()
	cache := noopCache{}
	locks := noopLocks{}
	clock := func() time.Time { return f.now }

	f.admin = NewAdminService(f.config, logger)
	f.admin.now = clock
	f.market = NewMarketService(f.markets, cache, f.ledger, f.config, f.bus, locks, f.guard, logger)
	f.market.now = clock
	f.vote = NewVoteService(f.markets, cache, f.ledger, f.config, f.bus, locks, f.guard, logger)
	f.vote.now = clock
	f.oracleSvc = NewOracleService(f.markets, cache, f.resolutions, f.oracle, f.bus, locks, f.guard, logger)
	f.oracleSvc.now = clock
	f.resolution = NewResolutionService(f.markets, cache, f.resolutions, f.config, f.bus, logger)
	f.resolution.now = clock
	f.dispute = NewDisputeService(f.markets, f.disputes, f.resolutions, cache, f.ledger, f.config, f.bus, locks, f.guard, logger)
	f.dispute.now = clock
	f.fee = NewFeeService(f.markets, cache, f.ledger, f.audit, f.config, f.bus, locks, f.guard, logger)
	f.fee.now = clock

	if _, err := f.admin.Bootstrap(context.Background(), testAdmin, testTreasury); err != nil {
		panic(err)
	}
	f.ledger.fund(testAdmin, 10_000_000_000)
	return f
}

// advance moves the fixture clock forward.
func (f *engineFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *engineFixture) defaultOracle() domain.OracleConfig {
	return domain.OracleConfig{
		Provider:   domain.OracleProviderReflector,
		FeedID:     "BTC/USD",
		Threshold:  50_000,
		Comparison: domain.ComparisonGT,
	}
}

// createMarket opens a standard yes/no market seven days out.
func (f *engineFixture) createMarket() *domain.Market {
	m, err := f.market.CreateMarket(context.Background(), CreateMarketParams{
		Admin:        testAdmin,
		Question:     "Will BTC close above $50k?",
		Outcomes:     []string{"yes", "no"},
		DurationDays: 7,
		Oracle:       f.defaultOracle(),
	})
	if err != nil {
		panic(err)
	}
	return m
}

// voteAs funds the voter and stakes on an outcome.
func (f *engineFixture) voteAs(voter, marketID, outcome string, stake int64) error {
	f.ledger.fund(voter, stake)
	return f.vote.Vote(context.Background(), voter, marketID, outcome, stake)
}
