package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and dependency checks.
type HealthHandler struct {
	db        Pinger
	cache     Pinger
	logger    *slog.Logger
	startedAt time.Time
}

// NewHealthHandler creates a HealthHandler. Either pinger may be nil, in
// which case that dependency is reported as "disabled".
func NewHealthHandler(db, cache Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		db:        db,
		cache:     cache,
		logger:    logger,
		startedAt: time.Now().UTC(),
	}
}

type healthResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Dependencies  map[string]string `json:"dependencies"`
}

// HealthCheck reports process liveness and dependency reachability.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := map[string]string{
		"postgres": h.check(ctx, h.db),
		"redis":    h.check(ctx, h.cache),
	}

	status := "ok"
	code := http.StatusOK
	for _, s := range deps {
		if s == "unreachable" {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, healthResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Dependencies:  deps,
	})
}

func (h *HealthHandler) check(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "handler: dependency unreachable",
			slog.String("error", err.Error()),
		)
		return "unreachable"
	}
	return "ok"
}
