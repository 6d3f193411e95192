package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/predictify/engine/internal/domain"
	"github.com/predictify/engine/internal/server/middleware"
	"github.com/predictify/engine/internal/service"
)

// MarketService defines the methods that the market handler requires from
// the service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, p service.CreateMarketParams) (*domain.Market, error)
	GetMarket(ctx context.Context, id string) (*domain.Market, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]*domain.Market, error)
	CancelMarket(ctx context.Context, caller, id string) error
	ExtendMarket(ctx context.Context, caller, id string, additionalDays int, reason string) (*domain.Market, error)
	Analytics(ctx context.Context, id string) (*service.MarketAnalytics, error)
}

// MarketHandler serves market lifecycle endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

type createMarketRequest struct {
	Question     string              `json:"question"`
	Outcomes     []string            `json:"outcomes"`
	DurationDays int                 `json:"duration_days"`
	Oracle       domain.OracleConfig `json:"oracle"`
}

// CreateMarket creates a new market. The caller must be the configured
// admin and pays the creation fee.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}

	m, err := h.markets.CreateMarket(r.Context(), service.CreateMarketParams{
		Admin:        middleware.Caller(r.Context()),
		Question:     req.Question,
		Outcomes:     req.Outcomes,
		DurationDays: req.DurationDays,
		Oracle:       req.Oracle,
	})
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// listMarketsResponse wraps the list endpoint output with paging metadata.
type listMarketsResponse struct {
	Markets []*domain.Market `json:"markets"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// ListMarkets returns markets, optionally filtered by state.
// GET /api/markets?state=active&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.ListMarkets(r.Context(), opts)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	if markets == nil {
		markets = []*domain.Market{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.GetMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CancelMarket cancels an active market so stakers can reclaim their funds.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) CancelMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.markets.CancelMarket(r.Context(), middleware.Caller(r.Context()), id); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "market_id": id})
}

type extendMarketRequest struct {
	AdditionalDays int    `json:"additional_days"`
	Reason         string `json:"reason"`
}

// ExtendMarket pushes out the voting deadline of an active market. The
// caller pays the per-day extension fee.
// POST /api/markets/{id}/extend
func (h *MarketHandler) ExtendMarket(w http.ResponseWriter, r *http.Request) {
	var req extendMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}

	m, err := h.markets.ExtendMarket(r.Context(), middleware.Caller(r.Context()), pathParam(r, "id"), req.AdditionalDays, req.Reason)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// marketExtensionsResponse lists the recorded extensions for a market.
type marketExtensionsResponse struct {
	MarketID   string                   `json:"market_id"`
	EndTime    time.Time                `json:"end_time"`
	TotalDays  int                      `json:"total_extension_days"`
	Extensions []domain.MarketExtension `json:"extensions"`
}

// ListExtensions returns the extension history of a market.
// GET /api/markets/{id}/extensions
func (h *MarketHandler) ListExtensions(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.GetMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	exts := m.Extensions
	if exts == nil {
		exts = []domain.MarketExtension{}
	}
	writeJSON(w, http.StatusOK, marketExtensionsResponse{
		MarketID:   m.ID,
		EndTime:    m.EndTime,
		TotalDays:  m.TotalExtensionDays,
		Extensions: exts,
	})
}

// Analytics returns aggregate stake and participation figures for a market.
// GET /api/markets/{id}/analytics
func (h *MarketHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.markets.Analytics(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
