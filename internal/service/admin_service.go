package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/predictify/engine/internal/domain"
)

// AdminService owns the singleton system configuration: bootstrap, admin
// handover and fee parameter updates.
type AdminService struct {
	config domain.SystemConfigStore
	logger *slog.Logger
	now    func() time.Time
}

// NewAdminService creates an AdminService.
func NewAdminService(config domain.SystemConfigStore, logger *slog.Logger) *AdminService {
	return &AdminService{
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Bootstrap writes the initial system configuration. It fails with
// ErrInvalidState when the engine is already initialized.
func (s *AdminService) Bootstrap(ctx context.Context, admin, treasury string) (*domain.SystemConfig, error) {
	if admin == "" || treasury == "" {
		return nil, fmt.Errorf("admin_service: bootstrap: %w", domain.ErrInvalidInput)
	}
	if _, err := s.config.Get(ctx); err == nil {
		return nil, fmt.Errorf("admin_service: already initialized: %w", domain.ErrInvalidState)
	} else if !errors.Is(err, domain.ErrConfigurationNotFound) {
		return nil, fmt.Errorf("admin_service: bootstrap read: %w", err)
	}

	sc := &domain.SystemConfig{
		Admin:           admin,
		Treasury:        treasury,
		Fees:            domain.DefaultFeeConfig(),
		ExtensionFees:   domain.DefaultExtensionFeeConfig(),
		DisputeBase:     10_000_000,
		MaxTotalExtDays: 30,
		UpdatedAt:       s.now(),
	}
	if err := s.config.Put(ctx, sc); err != nil {
		return nil, fmt.Errorf("admin_service: bootstrap write: %w", err)
	}

	s.logger.InfoContext(ctx, "admin_service: engine initialized",
		slog.String("admin", admin),
		slog.String("treasury", treasury),
	)
	return sc, nil
}

// Config returns the current system configuration.
func (s *AdminService) Config(ctx context.Context) (*domain.SystemConfig, error) {
	sc, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin_service: get config: %w", err)
	}
	return sc, nil
}

// UpdateAdmin hands platform administration to a new address.
func (s *AdminService) UpdateAdmin(ctx context.Context, caller, newAdmin string) error {
	if newAdmin == "" {
		return fmt.Errorf("admin_service: update admin: %w", domain.ErrInvalidInput)
	}
	sc, err := s.requireAdmin(ctx, caller)
	if err != nil {
		return err
	}
	sc.Admin = newAdmin
	sc.UpdatedAt = s.now()
	if err := s.config.Put(ctx, sc); err != nil {
		return fmt.Errorf("admin_service: update admin: %w", err)
	}
	s.logger.InfoContext(ctx, "admin_service: admin updated",
		slog.String("old", caller),
		slog.String("new", newAdmin),
	)
	return nil
}

// UpdateFees replaces the platform fee parameters.
func (s *AdminService) UpdateFees(ctx context.Context, caller string, fees domain.FeeConfig) error {
	if err := fees.Validate(); err != nil {
		return fmt.Errorf("admin_service: update fees: %w", err)
	}
	sc, err := s.requireAdmin(ctx, caller)
	if err != nil {
		return err
	}
	sc.Fees = fees
	sc.UpdatedAt = s.now()
	if err := s.config.Put(ctx, sc); err != nil {
		return fmt.Errorf("admin_service: update fees: %w", err)
	}
	s.logger.InfoContext(ctx, "admin_service: fee config updated",
		slog.Int64("percent", fees.PlatformFeePercent),
	)
	return nil
}

// requireAdmin loads the system config and verifies caller is the admin.
func (s *AdminService) requireAdmin(ctx context.Context, caller string) (*domain.SystemConfig, error) {
	sc, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin_service: get config: %w", err)
	}
	if !sameAddress(caller, sc.Admin) {
		return nil, fmt.Errorf("admin_service: caller %s is not admin: %w", caller, domain.ErrUnauthorized)
	}
	return sc, nil
}

// sameAddress compares account addresses case-insensitively: hex addresses
// arrive in mixed checksum casing.
func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
