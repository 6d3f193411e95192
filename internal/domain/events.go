package domain

import "time"

// EventType names a market lifecycle edge.
type EventType string

const (
	EventMarketCreated   EventType = "market_created"
	EventVoteCast        EventType = "vote_cast"
	EventOracleResult    EventType = "oracle_result"
	EventMarketResolved  EventType = "market_resolved"
	EventMarketDisputed  EventType = "market_disputed"
	EventDisputeVote     EventType = "dispute_vote"
	EventDisputeResolved EventType = "dispute_resolved"
	EventFeesCollected   EventType = "fees_collected"
	EventMarketExtended  EventType = "market_extended"
	EventMarketCancelled EventType = "market_cancelled"
	EventWinningsClaimed EventType = "winnings_claimed"
	EventMarketArchived  EventType = "market_archived"
)

// Event is published on every lifecycle edge and fanned out to the event
// bus, the websocket hub and the notifiers.
type Event struct {
	Type     EventType      `json:"type"`
	MarketID string         `json:"market_id"`
	Actor    string         `json:"actor,omitempty"`
	At       time.Time      `json:"at"`
	Data     map[string]any `json:"data,omitempty"`
}
