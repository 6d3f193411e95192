package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlatformFee(t *testing.T) {
	fees := DefaultFeeConfig()
	require.Equal(t, int64(20_000_000), fees.PlatformFee(1_000_000_000))
	require.Equal(t, int64(0), fees.PlatformFee(0))
	// Truncation toward zero.
	require.Equal(t, int64(1), fees.PlatformFee(99))
}

func TestFeeBreakdown(t *testing.T) {
	fees := DefaultFeeConfig()
	m := &Market{ID: "m1", TotalStaked: 1_000_000_000}
	b := fees.Breakdown(m)
	require.Equal(t, int64(20_000_000), b.PlatformFee)
	require.Equal(t, int64(16_000_000), b.DiscountedFee)
	require.Equal(t, int64(980_000_000), b.UserPayouts)
	require.False(t, b.Collected)
	require.True(t, b.Collectible)

	small := &Market{ID: "m2", TotalStaked: 10_000_000}
	require.False(t, fees.Breakdown(small).Collectible)
}

func TestCollectionFeeClamps(t *testing.T) {
	fees := DefaultFeeConfig()
	// Straight 2% inside the bounds.
	require.Equal(t, int64(3_000_000), fees.CollectionFee(150_000_000))
	// Floored at the minimum on small pools.
	require.Equal(t, fees.MinFeeAmount, fees.CollectionFee(10_000_000))
	// Capped at the maximum on huge pools.
	require.Equal(t, fees.MaxFeeAmount, fees.CollectionFee(1_000_000_000_000))
}

func TestGrossPayoutLargePool(t *testing.T) {
	// stake * pool overflows int64; the result must still be exact.
	got := GrossPayout(1_000_000_000, 5_000_000_000, 10_000_000_000)
	require.Equal(t, int64(2_000_000_000), got)
}

func TestPayoutAfterFees(t *testing.T) {
	fees := DefaultFeeConfig()
	gross := GrossPayout(1_000_000_000, 5_000_000_000, 10_000_000_000)
	require.Equal(t, int64(1_960_000_000), fees.PayoutAfterFees(gross))
}

func TestGrossPayoutZeroWinningTotal(t *testing.T) {
	require.Equal(t, int64(0), GrossPayout(100, 0, 1_000))
}

func TestDynamicFeeTiers(t *testing.T) {
	fees := DefaultFeeConfig()
	tests := []struct {
		name  string
		total int64
		want  int64
	}{
		{"large pool discounted to 80%", 1_000_000_000, 16_000_000},
		{"medium pool discounted to 90%", 100_000_000, 1_800_000},
		{"small pool pays full rate but floors at min", 10_000_000, 1_000_000},
		{"tiny pool floors at min", 100, 1_000_000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, fees.DynamicFee(tc.total))
		})
	}
}

func TestDynamicFeeCappedAtMax(t *testing.T) {
	fees := DefaultFeeConfig()
	// 2% of a huge pool, discounted to 80%, still exceeds the cap.
	require.Equal(t, fees.MaxFeeAmount, fees.DynamicFee(1_000_000_000_000))
}

func TestExtensionFee(t *testing.T) {
	ext := DefaultExtensionFeeConfig()
	require.Equal(t, int64(110_000_000), ext.Fee(1))
	require.Equal(t, int64(400_000_000), ext.Fee(30))
	// Clamped to the ceiling for absurd requests.
	require.Equal(t, ext.MaxFee, ext.Fee(500))
}

func TestFeeConfigValidate(t *testing.T) {
	fees := DefaultFeeConfig()
	require.NoError(t, fees.Validate())

	bad := fees
	bad.PlatformFeePercent = 101
	require.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = fees
	bad.MaxFeeAmount = bad.MinFeeAmount - 1
	require.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}
