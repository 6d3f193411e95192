package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/predictify/engine/internal/domain"
)

// EventReplayer reads back persisted engine events from the event stream.
type EventReplayer interface {
	Replay(ctx context.Context, lastID string, count int) ([]domain.Event, string, error)
}

// EventHandler serves the engine event history.
type EventHandler struct {
	events EventReplayer
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(events EventReplayer, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		events: events,
		logger: logger,
	}
}

type eventsResponse struct {
	Events []domain.Event `json:"events"`
	// NextID is the stream cursor to pass as after on the next request.
	NextID string `json:"next_id"`
}

// List returns persisted events after the given stream cursor.
// GET /api/events?after=<id>&limit=<n>
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 1000 {
		limit = 1000
	}

	events, nextID, err := h.events.Replay(r.Context(), after, limit)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events, NextID: nextID})
}
