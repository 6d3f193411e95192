package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/predictify/engine/internal/domain"
)

func TestCollectFeesOnce(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	m := f.createMarket()

	require.NoError(t, f.voteAs("GALICE", m.ID, "yes", 100_000_000))
	require.NoError(t, f.voteAs("GBOB", m.ID, "no", 50_000_000))
	f.resolveMarket(t, m.ID, 60_000)

	treasuryBefore, err := f.ledger.Balance(ctx, testTreasury)
	require.NoError(t, err)

	fee, err := f.fee.Collect(ctx, testAdmin, m.ID)
	require.NoError(t, err)
	// 2% of the 150M pool, inside the clamp bounds.
	require.Equal(t, int64(3_000_000), fee)

	treasuryAfter, err := f.ledger.Balance(ctx, testTreasury)
	require.NoError(t, err)
	require.Equal(t, fee, treasuryAfter-treasuryBefore)

	_, err = f.fee.Collect(ctx, testAdmin, m.ID)
	require.ErrorIs(t, err, domain.ErrFeeAlreadyCollected)

	// Exactly one audit record.
	history, err := f.fee.History(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, fee, history[0].Amount)

	total, err := f.fee.TotalCollected(ctx)
	require.NoError(t, err)
	require.Equal(t, fee, total)
}

func TestCollectFeesRequiresAdmin(t *testing.T) {
	f := newEngineFixture()
	m := f.createMarket()

	_, err := f.fee.Collect(context.Background(), "GMALLORY", m.ID)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCollectFeesRequiresResolvedMarket(t *testing.T) {
	f := newEngineFixture()
	m := f.createMarket()

	_, err := f.fee.Collect(context.Background(), testAdmin, m.ID)
	require.ErrorIs(t, err, domain.ErrMarketNotResolved)
}

func TestCollectFeesEmptyPool(t *testing.T) {
	f := newEngineFixture()
	m := f.createMarket()
	f.resolveMarket(t, m.ID, 60_000)

	_, err := f.fee.Collect(context.Background(), testAdmin, m.ID)
	require.ErrorIs(t, err, domain.ErrNoFeesToCollect)
}

// A pool below the collection threshold cannot be swept: the minimum-fee
// clamp would take more from escrow than payouts withhold, leaving winners
// short when they claim.
func TestCollectFeesBelowThreshold(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	m := f.createMarket()

	require.NoError(t, f.voteAs("GALICE", m.ID, "yes", 10_000_000))
	f.resolveMarket(t, m.ID, 60_000)

	treasuryBefore, err := f.ledger.Balance(ctx, testTreasury)
	require.NoError(t, err)

	_, err = f.fee.Collect(ctx, testAdmin, m.ID)
	require.ErrorIs(t, err, domain.ErrInsufficientStake)

	treasuryAfter, err := f.ledger.Balance(ctx, testTreasury)
	require.NoError(t, err)
	require.Equal(t, treasuryBefore, treasuryAfter)

	// The escrow is untouched, so the winner's claim pays in full.
	payout, err := f.vote.Claim(ctx, "GALICE", m.ID)
	require.NoError(t, err)
	require.Equal(t, int64(9_800_000), payout)
}

func TestFeeBreakdown(t *testing.T) {
	f := newEngineFixture()
	m := f.createMarket()
	require.NoError(t, f.voteAs("GALICE", m.ID, "yes", 1_000_000_000))

	b, err := f.fee.Breakdown(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, int64(20_000_000), b.PlatformFee)
	// Large-pool tier: 80% of the base fee.
	require.Equal(t, int64(16_000_000), b.DiscountedFee)
	require.Equal(t, int64(980_000_000), b.UserPayouts)
	require.False(t, b.Collected)
	require.True(t, b.Collectible)
}

func TestFeeBreakdownBelowThreshold(t *testing.T) {
	f := newEngineFixture()
	m := f.createMarket()
	require.NoError(t, f.voteAs("GALICE", m.ID, "yes", 10_000_000))

	b, err := f.fee.Breakdown(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, int64(200_000), b.PlatformFee)
	require.False(t, b.Collectible)
}
