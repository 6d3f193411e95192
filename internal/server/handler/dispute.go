package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/predictify/engine/internal/domain"
	"github.com/predictify/engine/internal/server/middleware"
	"github.com/predictify/engine/internal/service"
)

// DisputeService defines the dispute operations the handler requires.
type DisputeService interface {
	Open(ctx context.Context, caller, marketID string, stake int64, reason string) (*domain.Dispute, error)
	Vote(ctx context.Context, voter, marketID string, approve bool, stake int64) error
	Escalate(ctx context.Context, caller, marketID string) error
	Resolve(ctx context.Context, caller, marketID string) (*domain.Dispute, error)
	Stats(ctx context.Context, marketID string) (*service.DisputeStats, error)
}

// DisputeHandler serves dispute lifecycle endpoints.
type DisputeHandler struct {
	disputes DisputeService
	logger   *slog.Logger
}

// NewDisputeHandler creates a DisputeHandler.
func NewDisputeHandler(disputes DisputeService, logger *slog.Logger) *DisputeHandler {
	return &DisputeHandler{
		disputes: disputes,
		logger:   logger,
	}
}

type openDisputeRequest struct {
	Stake  int64  `json:"stake"`
	Reason string `json:"reason"`
}

// Open challenges a resolved market's outcome. The caller escrows a stake
// scaled to the market's size and activity.
// POST /api/markets/{id}/dispute
func (h *DisputeHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}

	d, err := h.disputes.Open(r.Context(), middleware.Caller(r.Context()), pathParam(r, "id"), req.Stake, req.Reason)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

type disputeVoteRequest struct {
	Approve bool  `json:"approve"`
	Stake   int64 `json:"stake"`
}

// Vote casts a weighted vote on the open dispute. A repeat vote replaces
// the previous one and refunds its stake.
// POST /api/markets/{id}/dispute/vote
func (h *DisputeHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req disputeVoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}

	id := pathParam(r, "id")
	if err := h.disputes.Vote(r.Context(), middleware.Caller(r.Context()), id, req.Approve, req.Stake); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"approve":   req.Approve,
		"stake":     req.Stake,
	})
}

// Escalate marks the open dispute for manual review. Only the disputer or
// the admin may escalate.
// POST /api/markets/{id}/dispute/escalate
func (h *DisputeHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.disputes.Escalate(r.Context(), middleware.Caller(r.Context()), id); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "escalated", "market_id": id})
}

// Resolve closes the open dispute, settles vote stakes, and re-finalises
// the market. Admin only.
// POST /api/markets/{id}/dispute/resolve
func (h *DisputeHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	d, err := h.disputes.Resolve(r.Context(), middleware.Caller(r.Context()), pathParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Stats returns vote tallies for the market's open disputes.
// GET /api/markets/{id}/disputes
func (h *DisputeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.disputes.Stats(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
