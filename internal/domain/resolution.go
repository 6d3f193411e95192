package domain

import "time"

// ResolutionMethod records how a market's final outcome was produced.
type ResolutionMethod string

const (
	ResolutionMethodOracleOnly      ResolutionMethod = "oracle_only"
	ResolutionMethodCommunityOnly   ResolutionMethod = "community_only"
	ResolutionMethodHybridAgreement ResolutionMethod = "hybrid_agreement"
	ResolutionMethodHybridOverride  ResolutionMethod = "hybrid_override"
	ResolutionMethodManual          ResolutionMethod = "manual"
	ResolutionMethodDispute         ResolutionMethod = "dispute"
)

// OracleResolution is the stored result of a single oracle fetch.
type OracleResolution struct {
	MarketID  string         `json:"market_id"`
	Provider  OracleProvider `json:"provider"`
	FeedID    string         `json:"feed_id"`
	Price     int64          `json:"price"`
	Outcome   string         `json:"outcome"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// MarketResolution is the audit record written when a market resolves. The
// community fields survive disputes: an approved dispute rewrites the
// market's winning outcome to CommunityOutcome.
type MarketResolution struct {
	MarketID         string           `json:"market_id"`
	FinalOutcome     string           `json:"final_outcome"`
	OracleOutcome    string           `json:"oracle_outcome,omitempty"`
	CommunityOutcome string           `json:"community_outcome,omitempty"`
	Method           ResolutionMethod `json:"method"`
	Confidence       int64            `json:"confidence"`
	ResolvedAt       time.Time        `json:"resolved_at"`
}

// ResolutionConfidence scores a hybrid resolution on a 0-100 scale. Stronger
// winning margins score higher; oracle/community disagreement always scores
// below 50.
func ResolutionConfidence(m *Market, oracleOutcome, communityOutcome string) int64 {
	if m.TotalStaked == 0 {
		return 50
	}
	totals := m.OutcomeTotals()
	if communityOutcome == "" || oracleOutcome == communityOutcome {
		share := totals[oracleOutcome] * 100 / m.TotalStaked
		return 50 + share/2
	}
	communityShare := totals[communityOutcome] * 100 / m.TotalStaked
	return 50 - communityShare/2
}
