package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/predictify/engine/internal/domain"
	"github.com/predictify/engine/internal/server/middleware"
)

// OracleService defines the oracle operations the resolution handler needs.
type OracleService interface {
	FetchResult(ctx context.Context, marketID string) (*domain.OracleResolution, error)
	Result(ctx context.Context, marketID string) (*domain.OracleResolution, error)
}

// ResolutionService defines the resolution operations the handler needs.
type ResolutionService interface {
	Resolve(ctx context.Context, marketID string) (*domain.MarketResolution, error)
	ResolveManual(ctx context.Context, caller, marketID, outcome string) (*domain.MarketResolution, error)
	Resolution(ctx context.Context, marketID string) (*domain.MarketResolution, error)
}

// ResolutionHandler serves oracle-result and market-resolution endpoints.
type ResolutionHandler struct {
	oracle     OracleService
	resolution ResolutionService
	logger     *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler.
func NewResolutionHandler(oracle OracleService, resolution ResolutionService, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{
		oracle:     oracle,
		resolution: resolution,
		logger:     logger,
	}
}

// FetchOracleResult pulls the price feed for an ended market and records
// the oracle's outcome. Callable by anyone once the deadline has passed.
// POST /api/markets/{id}/oracle-result
func (h *ResolutionHandler) FetchOracleResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.oracle.FetchResult(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetOracleResult returns the recorded oracle resolution for a market.
// GET /api/markets/{id}/oracle-resolution
func (h *ResolutionHandler) GetOracleResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.oracle.Result(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type resolveRequest struct {
	// Outcome forces a manual resolution to the given outcome. Admin only.
	// When empty, the market resolves through the hybrid oracle+community
	// path.
	Outcome string `json:"outcome,omitempty"`
}

// Resolve finalises an ended market. Without a body outcome it combines the
// recorded oracle result with the community consensus; with one, the admin
// overrides both.
// POST /api/markets/{id}/resolve
func (h *ResolutionHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeEngineError(w, r, h.logger, err)
			return
		}
	}

	id := pathParam(r, "id")

	var (
		res *domain.MarketResolution
		err error
	)
	if req.Outcome != "" {
		res, err = h.resolution.ResolveManual(r.Context(), middleware.Caller(r.Context()), id, req.Outcome)
	} else {
		res, err = h.resolution.Resolve(r.Context(), id)
	}
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetResolution returns the recorded final resolution for a market.
// GET /api/markets/{id}/resolution
func (h *ResolutionHandler) GetResolution(w http.ResponseWriter, r *http.Request) {
	res, err := h.resolution.Resolution(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
