package domain

import (
	"strings"
	"time"
)

// MarketState is the lifecycle state of a market.
type MarketState string

const (
	MarketStateActive    MarketState = "active"
	MarketStateEnded     MarketState = "ended"
	MarketStateDisputed  MarketState = "disputed"
	MarketStateResolved  MarketState = "resolved"
	MarketStateClosed    MarketState = "closed"
	MarketStateCancelled MarketState = "cancelled"
)

// OracleProvider identifies an external price-feed provider.
type OracleProvider string

const (
	OracleProviderReflector OracleProvider = "reflector"
	OracleProviderPyth      OracleProvider = "pyth"
	OracleProviderBand      OracleProvider = "band"
	OracleProviderDIA       OracleProvider = "dia"
)

// Supported reports whether the engine can fetch results from the provider.
func (p OracleProvider) Supported() bool {
	return p == OracleProviderReflector || p == OracleProviderPyth
}

// Comparison is the operator applied between the fetched price and the
// oracle threshold to decide the outcome.
type Comparison string

const (
	ComparisonGT Comparison = "gt"
	ComparisonLT Comparison = "lt"
	ComparisonEQ Comparison = "eq"
)

// ParseComparison validates a comparison operator string.
func ParseComparison(s string) (Comparison, error) {
	switch c := Comparison(strings.ToLower(s)); c {
	case ComparisonGT, ComparisonLT, ComparisonEQ:
		return c, nil
	default:
		return "", ErrInvalidInput
	}
}

// OracleConfig describes how a market's outcome is derived from a price feed.
type OracleConfig struct {
	Provider   OracleProvider `json:"provider"`
	FeedID     string         `json:"feed_id"`
	Threshold  int64          `json:"threshold"`
	Comparison Comparison     `json:"comparison"`
}

// Validate checks provider support and feed shape.
func (c OracleConfig) Validate() error {
	if !c.Provider.Supported() {
		return ErrInvalidOracleFeed
	}
	if c.FeedID == "" || c.Threshold <= 0 {
		return ErrInvalidOracleFeed
	}
	if _, err := ParseComparison(string(c.Comparison)); err != nil {
		return ErrInvalidOracleFeed
	}
	return nil
}

// Outcome decides which market outcome a fetched price maps to. The first
// listed outcome is taken as the affirmative side of the comparison.
func (c OracleConfig) Outcome(price int64, outcomes []string) (string, error) {
	if len(outcomes) != 2 {
		return "", ErrInvalidOracleFeed
	}
	var hit bool
	switch c.Comparison {
	case ComparisonGT:
		hit = price > c.Threshold
	case ComparisonLT:
		hit = price < c.Threshold
	case ComparisonEQ:
		hit = price == c.Threshold
	default:
		return "", ErrInvalidOracleFeed
	}
	if hit {
		return outcomes[0], nil
	}
	return outcomes[1], nil
}

// MarketExtension is one applied end-time extension, kept for audit.
type MarketExtension struct {
	Timestamp      time.Time `json:"timestamp"`
	AdditionalDays int       `json:"additional_days"`
	Admin          string    `json:"admin"`
	Reason         string    `json:"reason"`
	FeePaid        int64     `json:"fee_paid"`
}

// Validate enforces the extension bounds.
func (e MarketExtension) Validate(maxDays int) error {
	if e.AdditionalDays < 1 || e.AdditionalDays > maxDays {
		return ErrInvalidInput
	}
	if e.Reason == "" {
		return ErrInvalidInput
	}
	return nil
}

// Market is the settlement aggregate. Votes, stakes, claims and dispute
// stakes live inside the record; stores persist it whole and guard
// concurrent writers with the Version field (compare-and-swap).
type Market struct {
	ID                 string            `json:"id"`
	Admin              string            `json:"admin"`
	Question           string            `json:"question"`
	Outcomes           []string          `json:"outcomes"`
	EndTime            time.Time         `json:"end_time"`
	OracleConfig       OracleConfig      `json:"oracle_config"`
	State              MarketState       `json:"state"`
	Votes              map[string]string `json:"votes"`
	Stakes             map[string]int64  `json:"stakes"`
	Claimed            map[string]bool   `json:"claimed"`
	DisputeStakes      map[string]int64  `json:"dispute_stakes"`
	TotalStaked        int64             `json:"total_staked"`
	WinningOutcome     string            `json:"winning_outcome,omitempty"`
	FeeCollected       bool              `json:"fee_collected"`
	TotalExtensionDays int               `json:"total_extension_days"`
	Extensions         []MarketExtension `json:"extensions,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	Version            int64             `json:"version"`
}

// MaxMarketDurationDays caps how far out a market deadline may be set.
const MaxMarketDurationDays = 365

// NewMarket builds an Active market with initialized vote maps.
func NewMarket(id, admin, question string, outcomes []string, endTime time.Time, oc OracleConfig, now time.Time) (*Market, error) {
	if question == "" || len(outcomes) < 2 {
		return nil, ErrInvalidInput
	}
	seen := make(map[string]struct{}, len(outcomes))
	for _, o := range outcomes {
		if o == "" {
			return nil, ErrInvalidOutcome
		}
		if _, dup := seen[o]; dup {
			return nil, ErrInvalidOutcome
		}
		seen[o] = struct{}{}
	}
	if !endTime.After(now) {
		return nil, ErrInvalidInput
	}
	if endTime.After(now.Add(MaxMarketDurationDays * 24 * time.Hour)) {
		return nil, ErrInvalidInput
	}
	if err := oc.Validate(); err != nil {
		return nil, err
	}
	return &Market{
		ID:            id,
		Admin:         admin,
		Question:      question,
		Outcomes:      outcomes,
		EndTime:       endTime,
		OracleConfig:  oc,
		State:         MarketStateActive,
		Votes:         make(map[string]string),
		Stakes:        make(map[string]int64),
		Claimed:       make(map[string]bool),
		DisputeStakes: make(map[string]int64),
		CreatedAt:     now,
		Version:       1,
	}, nil
}

// HasOutcome reports whether o is one of the market's listed outcomes.
func (m *Market) HasOutcome(o string) bool {
	for _, candidate := range m.Outcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// Ended reports whether the voting deadline has passed.
func (m *Market) Ended(now time.Time) bool {
	return !now.Before(m.EndTime)
}

// Terminal reports whether the market can no longer change outcome.
func (m *Market) Terminal() bool {
	switch m.State {
	case MarketStateClosed, MarketStateCancelled:
		return true
	}
	return false
}

// OutcomeTotals sums stakes per outcome.
func (m *Market) OutcomeTotals() map[string]int64 {
	totals := make(map[string]int64, len(m.Outcomes))
	for voter, outcome := range m.Votes {
		totals[outcome] += m.Stakes[voter]
	}
	return totals
}

// WinningTotal is the summed stake on the winning outcome.
func (m *Market) WinningTotal() int64 {
	var total int64
	for voter, outcome := range m.Votes {
		if outcome == m.WinningOutcome {
			total += m.Stakes[voter]
		}
	}
	return total
}

// CommunityConsensus returns the outcome carrying the largest summed stake.
// Ties break toward the earlier entry in the market's outcome list; the
// empty string is returned when no one has voted.
func (m *Market) CommunityConsensus() string {
	totals := m.OutcomeTotals()
	var best string
	var bestTotal int64 = -1
	for _, o := range m.Outcomes {
		if t := totals[o]; t > bestTotal {
			best, bestTotal = o, t
		}
	}
	if bestTotal <= 0 {
		return ""
	}
	return best
}

// TotalDisputeStake sums all posted dispute stakes.
func (m *Market) TotalDisputeStake() int64 {
	var total int64
	for _, s := range m.DisputeStakes {
		total += s
	}
	return total
}
