package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/predictify/engine/internal/domain"
)

func TestBootstrapOnce(t *testing.T) {
	f := newEngineFixture() // fixture already bootstraps

	_, err := f.admin.Bootstrap(context.Background(), "GOTHER", "GT2")
	require.ErrorIs(t, err, domain.ErrInvalidState)

	sc, err := f.admin.Config(context.Background())
	require.NoError(t, err)
	require.Equal(t, testAdmin, sc.Admin)
	require.Equal(t, int64(2), sc.Fees.PlatformFeePercent)
}

func TestUpdateAdmin(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	require.ErrorIs(t, f.admin.UpdateAdmin(ctx, "GMALLORY", "GNEW"), domain.ErrUnauthorized)
	require.NoError(t, f.admin.UpdateAdmin(ctx, testAdmin, "GNEW"))

	sc, err := f.admin.Config(ctx)
	require.NoError(t, err)
	require.Equal(t, "GNEW", sc.Admin)

	// The old admin lost its privileges.
	require.ErrorIs(t, f.admin.UpdateAdmin(ctx, testAdmin, "GX"), domain.ErrUnauthorized)
}

func TestUpdateFees(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	fees := domain.DefaultFeeConfig()
	fees.PlatformFeePercent = 5
	require.NoError(t, f.admin.UpdateFees(ctx, testAdmin, fees))

	sc, err := f.admin.Config(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), sc.Fees.PlatformFeePercent)

	fees.PlatformFeePercent = 200
	require.ErrorIs(t, f.admin.UpdateFees(ctx, testAdmin, fees), domain.ErrInvalidConfig)
}

func TestAdminAddressComparisonIsCaseInsensitive(t *testing.T) {
	f := newEngineFixture()
	require.NoError(t, f.admin.UpdateAdmin(context.Background(), "gadmin", "GNEW"))
}
