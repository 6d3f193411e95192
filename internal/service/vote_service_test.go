package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/predictify/engine/internal/domain"
)

func TestVoteRecordsStakes(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	m := f.createMarket()

	require.NoError(t, f.voteAs("GALICE", m.ID, "yes", 100_000_000))
	require.NoError(t, f.voteAs("GBOB", m.ID, "no", 50_000_000))

	got, err := f.markets.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, int64(150_000_000), got.TotalStaked)
	require.Equal(t, "yes", got.Votes["GALICE"])
	require.Equal(t, "no", got.Votes["GBOB"])
	require.Equal(t, int64(100_000_000), got.Stakes["GALICE"])

	// Stakes sit in the market escrow account.
	escrow, err := f.ledger.Balance(ctx, domain.EscrowAccount(m.ID))
	require.NoError(t, err)
	require.Equal(t, int64(150_000_000), escrow)
}

func TestVoteImmutable(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	m := f.createMarket()

	require.NoError(t, f.voteAs("GALICE", m.ID, "yes", 100_000_000))

	f.ledger.fund("GALICE", 50_000_000)
	err := f.vote.Vote(ctx, "GALICE", m.ID, "no", 50_000_000)
	require.ErrorIs(t, err, domain.ErrAlreadyVoted)

	got, err := f.markets.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, "yes", got.Votes["GALICE"])
	require.Equal(t, int64(100_000_000), got.TotalStaked)
}

func TestVoteValidation(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	m := f.createMarket()

	err := f.vote.Vote(ctx, "GALICE", m.ID, "yes", 0)
	require.ErrorIs(t, err, domain.ErrInsufficientStake)

	f.ledger.fund("GALICE", 1_000_000)
	err = f.vote.Vote(ctx, "GALICE", m.ID, "maybe", 1_000_000)
	require.ErrorIs(t, err, domain.ErrInvalidOutcome)

	err = f.vote.Vote(ctx, "GALICE", "nope", "yes", 1_000_000)
	require.ErrorIs(t, err, domain.ErrMarketNotFound)
}

func TestVoteDeadline(t *testing.T) {
	f := newEngineFixture()
	m := f.createMarket()

	f.advance(7 * 24 * time.Hour)
	err := f.voteAs("GALICE", m.ID, "yes", 1_000_000)
	require.ErrorIs(t, err, domain.ErrMarketClosed)
}

func TestVoteInsufficientFundsLeavesNoTrace(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	m := f.createMarket()

	// GALICE has no balance; the ledger rejects the transfer.
	err := f.vote.Vote(ctx, "GALICE", m.ID, "yes", 1_000_000)
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	got, err := f.markets.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Empty(t, got.Votes)
	require.Zero(t, got.TotalStaked)
}

func TestVoteBlockedWhileGuardHeld(t *testing.T) {
	f := newEngineFixture()
	m := f.createMarket()

	require.NoError(t, f.guard.Enter())
	err := f.voteAs("GALICE", m.ID, "yes", 1_000_000)
	require.ErrorIs(t, err, domain.ErrReentrancyAttack)
	require.NoError(t, f.guard.Exit(false))

	// Guard released; the same call now goes through.
	require.NoError(t, f.voteAs("GALICE", m.ID, "yes", 1_000_000))
}

// resolveMarket drives a market through fetch + resolve after its deadline.
func (f *engineFixture) resolveMarket(t *testing.T, marketID string, price int64) *domain.MarketResolution {
	t.Helper()
	f.advance(8 * 24 * time.Hour)
	f.oracle.price = price
	f.oracle.at = f.now
	_, err := f.oracleSvc.FetchResult(context.Background(), marketID)
	require.NoError(t, err)
	res, err := f.resolution.Resolve(context.Background(), marketID)
	require.NoError(t, err)
	return res
}

func TestClaimPaysWinnerOnce(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	m := f.createMarket()

	require.NoError(t, f.voteAs("GALICE", m.ID, "yes", 100_000_000))
	require.NoError(t, f.voteAs("GBOB", m.ID, "no", 50_000_000))
	f.resolveMarket(t, m.ID, 60_000) // above threshold: "yes" wins

	payout, err := f.vote.Claim(ctx, "GALICE", m.ID)
	require.NoError(t, err)
	// gross = 100M * 150M / 100M = 150M, minus 2% = 147M
	require.Equal(t, int64(147_000_000), payout)

	balance, err := f.ledger.Balance(ctx, "GALICE")
	require.NoError(t, err)
	require.Equal(t, int64(147_000_000), balance)

	_, err = f.vote.Claim(ctx, "GALICE", m.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	// Balance unchanged by the failed second claim.
	balance, err = f.ledger.Balance(ctx, "GALICE")
	require.NoError(t, err)
	require.Equal(t, int64(147_000_000), balance)
}

func TestClaimLoserGetsNothing(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	m := f.createMarket()

	require.NoError(t, f.voteAs("GALICE", m.ID, "yes", 100_000_000))
	require.NoError(t, f.voteAs("GBOB", m.ID, "no", 50_000_000))
	f.resolveMarket(t, m.ID, 60_000)

	_, err := f.vote.Claim(ctx, "GBOB", m.ID)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)

	_, err = f.vote.Claim(ctx, "GCHARLIE", m.ID)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestClaimBeforeResolution(t *testing.T) {
	f := newEngineFixture()
	m := f.createMarket()
	require.NoError(t, f.voteAs("GALICE", m.ID, "yes", 100_000_000))

	_, err := f.vote.Claim(context.Background(), "GALICE", m.ID)
	require.ErrorIs(t, err, domain.ErrMarketNotResolved)
}

func TestClaimRefundsOnCancelledMarket(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	m := f.createMarket()

	require.NoError(t, f.voteAs("GALICE", m.ID, "yes", 100_000_000))
	require.NoError(t, f.market.CancelMarket(ctx, testAdmin, m.ID))

	payout, err := f.vote.Claim(ctx, "GALICE", m.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100_000_000), payout)

	_, err = f.vote.Claim(ctx, "GALICE", m.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestPayoutConservation(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	m := f.createMarket()

	require.NoError(t, f.voteAs("GALICE", m.ID, "yes", 100_000_000))
	require.NoError(t, f.voteAs("GBOB", m.ID, "yes", 50_000_000))
	require.NoError(t, f.voteAs("GCHARLIE", m.ID, "no", 60_000_000))

	totalBefore := f.ledger.total()
	f.resolveMarket(t, m.ID, 60_000)

	var paid int64
	for _, winner := range []string{"GALICE", "GBOB"} {
		payout, err := f.vote.Claim(ctx, winner, m.ID)
		require.NoError(t, err)
		paid += payout
	}

	fee, err := f.fee.Collect(ctx, testAdmin, m.ID)
	require.NoError(t, err)

	// Every unit is accounted for: payouts + fee + dust left in escrow
	// equals the staked pool, and the ledger total never changed.
	escrow, err := f.ledger.Balance(ctx, domain.EscrowAccount(m.ID))
	require.NoError(t, err)
	require.Equal(t, int64(210_000_000), paid+fee+escrow)
	require.Equal(t, totalBefore, f.ledger.total())

	// Truncation dust is bounded by a couple of units per winner.
	flatFee := domain.DefaultFeeConfig().PlatformFee(210_000_000)
	require.LessOrEqual(t, escrow-(flatFee-fee), int64(2*2))
}
