package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/predictify/engine/internal/domain"
	"github.com/predictify/engine/internal/server/middleware"
)

// AdminService defines the system configuration operations the handler
// requires.
type AdminService interface {
	Bootstrap(ctx context.Context, admin, treasury string) (*domain.SystemConfig, error)
	Config(ctx context.Context) (*domain.SystemConfig, error)
	UpdateAdmin(ctx context.Context, caller, newAdmin string) error
	UpdateFees(ctx context.Context, caller string, fees domain.FeeConfig) error
}

// AdminHandler serves system bootstrap and configuration endpoints.
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger,
	}
}

type bootstrapRequest struct {
	Admin    string `json:"admin"`
	Treasury string `json:"treasury"`
}

// Bootstrap initialises the system configuration. Rejected once configured.
// POST /api/admin/bootstrap
func (h *AdminHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	var req bootstrapRequest
	if err := decodeBody(r, &req); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}

	sc, err := h.admin.Bootstrap(r.Context(), req.Admin, req.Treasury)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

// Config returns the current system configuration.
// GET /api/admin/config
func (h *AdminHandler) Config(w http.ResponseWriter, r *http.Request) {
	sc, err := h.admin.Config(r.Context())
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

type updateAdminRequest struct {
	NewAdmin string `json:"new_admin"`
}

// UpdateAdmin hands the admin role to a new address. Current admin only.
// PUT /api/admin
func (h *AdminHandler) UpdateAdmin(w http.ResponseWriter, r *http.Request) {
	var req updateAdminRequest
	if err := decodeBody(r, &req); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}

	if err := h.admin.UpdateAdmin(r.Context(), middleware.Caller(r.Context()), req.NewAdmin); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"admin": req.NewAdmin})
}

// UpdateFees replaces the fee configuration. Admin only.
// PUT /api/admin/fees
func (h *AdminHandler) UpdateFees(w http.ResponseWriter, r *http.Request) {
	var fees domain.FeeConfig
	if err := decodeBody(r, &fees); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}

	if err := h.admin.UpdateFees(r.Context(), middleware.Caller(r.Context()), fees); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}
