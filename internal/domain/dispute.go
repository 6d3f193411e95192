package domain

import "time"

// DisputeStatus tracks a dispute through its own small lifecycle.
type DisputeStatus string

const (
	DisputeStatusActive    DisputeStatus = "active"
	DisputeStatusEscalated DisputeStatus = "escalated"
	DisputeStatusApproved  DisputeStatus = "approved"
	DisputeStatusRejected  DisputeStatus = "rejected"
)

// DisputeVote is one weighted vote on an open dispute. A voter re-voting
// replaces their earlier vote entirely, stake included.
type DisputeVote struct {
	Voter   string    `json:"voter"`
	Approve bool      `json:"approve"`
	Stake   int64     `json:"stake"`
	CastAt  time.Time `json:"cast_at"`
}

// Dispute is the record opened when a voter challenges a resolution.
type Dispute struct {
	ID        string                 `json:"id"`
	MarketID  string                 `json:"market_id"`
	Disputer  string                 `json:"disputer"`
	Stake     int64                  `json:"stake"`
	Reason    string                 `json:"reason"`
	Status    DisputeStatus          `json:"status"`
	Votes     map[string]DisputeVote `json:"votes"`
	CreatedAt time.Time              `json:"created_at"`
	ClosedAt  *time.Time             `json:"closed_at,omitempty"`
}

// Open reports whether the dispute still accepts votes.
func (d *Dispute) Open() bool {
	return d.Status == DisputeStatusActive || d.Status == DisputeStatusEscalated
}

// Tally sums the stake for and against overturning the resolution.
func (d *Dispute) Tally() (approve, reject int64) {
	for _, v := range d.Votes {
		if v.Approve {
			approve += v.Stake
		} else {
			reject += v.Stake
		}
	}
	return approve, reject
}

// DisputeThresholds holds the tunable inputs of RequiredDisputeStake.
type DisputeThresholds struct {
	Base int64
}

// RequiredDisputeStake is the minimum stake to open a dispute on a market.
// The base threshold scales with market size and activity so that disputes
// on large or busy markets carry proportionate weight:
//
//	size:     < 100 XLM ×1, < 1_000 XLM ×2, < 10_000 XLM ×3, else ×5
//	activity: < 10 voters +0%, < 50 +25%, < 100 +50%, else +100%
func (t DisputeThresholds) RequiredDisputeStake(m *Market) int64 {
	threshold := t.Base
	switch {
	case m.TotalStaked < 100_000_000:
	case m.TotalStaked < 1_000_000_000:
		threshold *= 2
	case m.TotalStaked < 10_000_000_000:
		threshold *= 3
	default:
		threshold *= 5
	}
	switch voters := len(m.Votes); {
	case voters < 10:
	case voters < 50:
		threshold += threshold / 4
	case voters < 100:
		threshold += threshold / 2
	default:
		threshold *= 2
	}
	return threshold
}
