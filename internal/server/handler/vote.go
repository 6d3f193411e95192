package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/predictify/engine/internal/server/middleware"
)

// VoteService defines the staking operations the vote handler requires.
type VoteService interface {
	Vote(ctx context.Context, voter, marketID, outcome string, stake int64) error
	Claim(ctx context.Context, caller, marketID string) (int64, error)
}

// VoteHandler serves staking and payout endpoints.
type VoteHandler struct {
	votes  VoteService
	logger *slog.Logger
}

// NewVoteHandler creates a VoteHandler with the given service and logger.
func NewVoteHandler(votes VoteService, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{
		votes:  votes,
		logger: logger,
	}
}

type voteRequest struct {
	Outcome string `json:"outcome"`
	Stake   int64  `json:"stake"`
}

// Vote stakes the caller on an outcome of an active market. One vote per
// address per market.
// POST /api/markets/{id}/vote
func (h *VoteHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}

	id := pathParam(r, "id")
	if err := h.votes.Vote(r.Context(), middleware.Caller(r.Context()), id, req.Outcome, req.Stake); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"outcome":   req.Outcome,
		"stake":     req.Stake,
	})
}

// claimResponse reports the payout transferred to the caller.
type claimResponse struct {
	MarketID string `json:"market_id"`
	Payout   int64  `json:"payout"`
}

// Claim pays out the caller's winnings (or refund, for cancelled markets).
// POST /api/markets/{id}/claim
func (h *VoteHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	payout, err := h.votes.Claim(r.Context(), middleware.Caller(r.Context()), id)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{MarketID: id, Payout: payout})
}
