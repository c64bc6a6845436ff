package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/parimutuel/internal/domain"
)

// resolveHome places bets for alice (home) and bob (away) and resolves the
// market as a home win. Gross stakes: alice 703_517, bob 301_507 -- chosen so
// the 50 bps fee leaves round net pools of 700_000 and 300_000.
func resolveHome(t *testing.T, e *env) domain.Market {
	t.Helper()
	m := e.createMarket(t, "ars-che")
	e.fundUser("alice", 1_000_000)
	e.fundUser("bob", 1_000_000)

	_, err := e.bettingSvc.PlaceBet(context.Background(), m.ID, "alice", domain.OutcomeHome, 703_517)
	require.NoError(t, err)
	_, err = e.bettingSvc.PlaceBet(context.Background(), m.ID, "bob", domain.OutcomeAway, 301_507)
	require.NoError(t, err)

	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(700_000), got.Pools.Home)
	require.Equal(t, uint64(300_000), got.Pools.Away)

	e.oracle.results[m.OracleFeed] = domain.MatchResult{FeedID: m.OracleFeed, Value: domain.RawResultHome}
	e.setNow(got.ResolutionTime)
	resolved, err := e.resolutionSvc.Resolve(context.Background(), m.ID)
	require.NoError(t, err)
	return resolved
}

func TestClaim_ProportionalPayout(t *testing.T) {
	e := newEnv(t)
	m := resolveHome(t, e)

	// Alice holds the entire winning pool and receives the combined pool.
	paid, err := e.settlementSvc.Claim(context.Background(), m.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), paid)

	bal, err := e.escrow.Balance(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000-703_517+1_000_000), bal)

	// The winning stake is zeroed; fees remain in escrow.
	pos, err := e.positions.Get(context.Background(), m.ID, "alice")
	require.NoError(t, err)
	assert.Zero(t, pos.Stakes.Home)

	escrowBal, err := e.escrow.Balance(context.Background(), domain.EscrowAccount(m.ID))
	require.NoError(t, err)
	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, got.FeesCollected, escrowBal)
}

func TestClaim_Idempotent(t *testing.T) {
	e := newEnv(t)
	m := resolveHome(t, e)

	paid, err := e.settlementSvc.Claim(context.Background(), m.ID, "alice")
	require.NoError(t, err)
	require.NotZero(t, paid)

	_, err = e.settlementSvc.Claim(context.Background(), m.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrNoWinningsToClaim)

	// Total paid equals the single-call amount.
	bal, err := e.escrow.Balance(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000-703_517)+paid, bal)
}

func TestClaim_LoserHasNoWinnings(t *testing.T) {
	e := newEnv(t)
	m := resolveHome(t, e)

	_, err := e.settlementSvc.Claim(context.Background(), m.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrNoWinningsToClaim)
}

func TestClaim_BeforeResolution(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.fundUser("alice", 1_000_000)
	_, err := e.bettingSvc.PlaceBet(context.Background(), m.ID, "alice", domain.OutcomeHome, 100_000)
	require.NoError(t, err)

	_, err = e.settlementSvc.Claim(context.Background(), m.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)
}

func TestClaim_UnknownPosition(t *testing.T) {
	e := newEnv(t)
	m := resolveHome(t, e)

	_, err := e.settlementSvc.Claim(context.Background(), m.ID, "stranger")
	assert.ErrorIs(t, err, domain.ErrNoWinningsToClaim)
}

func TestClaim_SplitWinnersShareThePool(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.fundUser("alice", 1_000_000)
	e.fundUser("bob", 1_000_000)
	e.fundUser("carol", 1_000_000)

	_, err := e.bettingSvc.PlaceBet(context.Background(), m.ID, "alice", domain.OutcomeHome, 703_517)
	require.NoError(t, err)
	_, err = e.bettingSvc.PlaceBet(context.Background(), m.ID, "bob", domain.OutcomeHome, 703_517)
	require.NoError(t, err)
	_, err = e.bettingSvc.PlaceBet(context.Background(), m.ID, "carol", domain.OutcomeAway, 603_015)
	require.NoError(t, err)

	e.oracle.results["feed-ars-che"] = domain.MatchResult{FeedID: "feed-ars-che", Value: domain.RawResultHome}
	e.setNow(m.ResolutionTime)
	_, err = e.resolutionSvc.Resolve(context.Background(), m.ID)
	require.NoError(t, err)

	// home pool 1_400_000, away pool 600_000: each winner gets their stake
	// scaled by total/winning = 2_000_000/1_400_000.
	alicePaid, err := e.settlementSvc.Claim(context.Background(), m.ID, "alice")
	require.NoError(t, err)
	bobPaid, err := e.settlementSvc.Claim(context.Background(), m.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), alicePaid)
	assert.Equal(t, bobPaid, alicePaid)

	// Payouts never exceed the combined pool; rounding dust stays in escrow
	// alongside the uncollected fees.
	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	escrowBal, err := e.escrow.Balance(context.Background(), domain.EscrowAccount(m.ID))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, escrowBal, got.FeesCollected)
}

func TestClaim_VoidMarketRefundsStakes(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.fundUser("alice", 1_000_000)
	e.fundUser("bob", 1_000_000)

	// Nobody bets on home; home wins.
	_, err := e.bettingSvc.PlaceBet(context.Background(), m.ID, "alice", domain.OutcomeAway, 200_000)
	require.NoError(t, err)
	_, err = e.bettingSvc.PlaceBet(context.Background(), m.ID, "bob", domain.OutcomeDraw, 100_000)
	require.NoError(t, err)

	e.oracle.results[m.OracleFeed] = domain.MatchResult{FeedID: m.OracleFeed, Value: domain.RawResultHome}
	e.setNow(m.ResolutionTime)
	_, err = e.resolutionSvc.Resolve(context.Background(), m.ID)
	require.NoError(t, err)

	// Each bettor is refunded their net stake; the protocol keeps the fee.
	aliceNet, _, err := domain.NetAndFee(200_000, 50)
	require.NoError(t, err)
	paid, err := e.settlementSvc.Claim(context.Background(), m.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, aliceNet, paid)

	// Refund is just as idempotent as a claim.
	_, err = e.settlementSvc.Claim(context.Background(), m.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrNoWinningsToClaim)

	bobNet, _, err := domain.NetAndFee(100_000, 50)
	require.NoError(t, err)
	paid, err = e.settlementSvc.Claim(context.Background(), m.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, bobNet, paid)

	// Only the fees remain escrowed.
	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	escrowBal, err := e.escrow.Balance(context.Background(), domain.EscrowAccount(m.ID))
	require.NoError(t, err)
	assert.Equal(t, got.FeesCollected, escrowBal)
}

func TestClaim_TransferFailureLeavesStake(t *testing.T) {
	e := newEnv(t)
	m := resolveHome(t, e)

	e.escrow.failNext = domain.ErrInsufficientFunds
	_, err := e.settlementSvc.Claim(context.Background(), m.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// The stake zeroing was not persisted; the claim can be retried.
	pos, err := e.positions.Get(context.Background(), m.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(700_000), pos.Stakes.Home)

	paid, err := e.settlementSvc.Claim(context.Background(), m.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), paid)
}

func TestClaim_PositionWriteFailureClawsBackPayout(t *testing.T) {
	e := newEnv(t)
	m := resolveHome(t, e)

	before, err := e.escrow.Balance(context.Background(), domain.EscrowAccount(m.ID))
	require.NoError(t, err)

	e.positions.failNext = errors.New("write conflict")
	_, err = e.settlementSvc.Claim(context.Background(), m.ID, "alice")
	require.Error(t, err)

	after, err := e.escrow.Balance(context.Background(), domain.EscrowAccount(m.ID))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	pos, err := e.positions.Get(context.Background(), m.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(700_000), pos.Stakes.Home)
}

func TestCollectFees_Unauthorized(t *testing.T) {
	e := newEnv(t)
	m := resolveHome(t, e)
	e.escrow.fund("treasury", "usdc", 0)

	_, err := e.settlementSvc.CollectFees(context.Background(), m.ID, "mallory", "treasury")
	assert.ErrorIs(t, err, domain.ErrUnauthorizedFeeCollector)

	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.NotZero(t, got.FeesCollected)
}

func TestCollectFees_WrongReceiverAsset(t *testing.T) {
	e := newEnv(t)
	m := resolveHome(t, e)
	e.escrow.fund("eth-treasury", "weth", 0)

	_, err := e.settlementSvc.CollectFees(context.Background(), m.ID, "authority-1", "eth-treasury")
	assert.ErrorIs(t, err, domain.ErrInvalidReceiver)
}

func TestCollectFees_UnknownReceiver(t *testing.T) {
	e := newEnv(t)
	m := resolveHome(t, e)

	_, err := e.settlementSvc.CollectFees(context.Background(), m.ID, "authority-1", "nobody")
	assert.ErrorIs(t, err, domain.ErrInvalidReceiver)
}

func TestCollectFees_FullWithdrawalThenEmpty(t *testing.T) {
	e := newEnv(t)
	m := resolveHome(t, e)
	e.escrow.fund("treasury", "usdc", 0)

	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	wantFees := got.FeesCollected
	require.NotZero(t, wantFees)

	collected, err := e.settlementSvc.CollectFees(context.Background(), m.ID, "authority-1", "treasury")
	require.NoError(t, err)
	assert.Equal(t, wantFees, collected)

	treasuryBal, err := e.escrow.Balance(context.Background(), "treasury")
	require.NoError(t, err)
	assert.Equal(t, wantFees, treasuryBal)

	got, err = e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FeesCollected)
	e.requireEscrowConservation(t, m.ID)

	// No partial collection and nothing left to collect.
	_, err = e.settlementSvc.CollectFees(context.Background(), m.ID, "authority-1", "treasury")
	assert.ErrorIs(t, err, domain.ErrNoFeesToCollect)
}
