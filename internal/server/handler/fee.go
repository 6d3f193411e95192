package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/predictify/engine/internal/domain"
	"github.com/predictify/engine/internal/server/middleware"
)

// FeeService defines the fee operations the handler requires.
type FeeService interface {
	Collect(ctx context.Context, caller, marketID string) (int64, error)
	Breakdown(ctx context.Context, marketID string) (*domain.FeeBreakdown, error)
	History(ctx context.Context, marketID string) ([]*domain.FeeCollection, error)
	TotalCollected(ctx context.Context) (int64, error)
}

// FeeHandler serves platform fee endpoints.
type FeeHandler struct {
	fees   FeeService
	logger *slog.Logger
}

// NewFeeHandler creates a FeeHandler.
func NewFeeHandler(fees FeeService, logger *slog.Logger) *FeeHandler {
	return &FeeHandler{
		fees:   fees,
		logger: logger,
	}
}

// collectResponse reports the amount moved to the treasury.
type collectResponse struct {
	MarketID string `json:"market_id"`
	Amount   int64  `json:"amount"`
}

// Collect sweeps the platform fee from a resolved market's escrow to the
// treasury. Admin only, once per market.
// POST /api/markets/{id}/fees/collect
func (h *FeeHandler) Collect(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	amount, err := h.fees.Collect(r.Context(), middleware.Caller(r.Context()), id)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, collectResponse{MarketID: id, Amount: amount})
}

// feesResponse combines the computed breakdown with the audit history.
type feesResponse struct {
	Breakdown *domain.FeeBreakdown    `json:"breakdown"`
	History   []*domain.FeeCollection `json:"history"`
}

// Fees returns the fee breakdown and collection history for a market.
// GET /api/markets/{id}/fees
func (h *FeeHandler) Fees(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	breakdown, err := h.fees.Breakdown(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	history, err := h.fees.History(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	if history == nil {
		history = []*domain.FeeCollection{}
	}
	writeJSON(w, http.StatusOK, feesResponse{Breakdown: breakdown, History: history})
}

// TotalCollected returns the platform-wide sum of collected fees.
// GET /api/fees/total
func (h *FeeHandler) TotalCollected(w http.ResponseWriter, r *http.Request) {
	total, err := h.fees.TotalCollected(r.Context())
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"total_collected": total})
}
