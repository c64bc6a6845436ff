package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/parimutuel/internal/domain"
)

// env wires every service against the in-memory fakes with a controllable
// clock.
type env struct {
	markets   *memMarketStore
	positions *memPositionStore
	ledger    *memBetLedger
	escrow    *memEscrow
	locks     *memLocks
	bus       *memBus
	audit     *memAudit
	oracle    *stubOracle
	archiver  *stubArchiver

	marketSvc     *MarketService
	bettingSvc    *BettingService
	resolutionSvc *ResolutionService
	settlementSvc *SettlementService

	mu  sync.Mutex
	now time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		markets:   newMemMarketStore(),
		positions: newMemPositionStore(),
		escrow:    newMemEscrow(),
		locks:     newMemLocks(),
		bus:       &memBus{},
		audit:     &memAudit{},
		oracle:    &stubOracle{results: make(map[string]domain.MatchResult)},
		archiver:  &stubArchiver{},
		now:       time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
	}
	e.ledger = &memBetLedger{markets: e.markets, positions: e.positions}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.now
	}

	e.marketSvc = NewMarketService(e.markets, nopCache{}, e.escrow, e.locks, e.audit, logger)
	e.marketSvc.clock = clock
	e.bettingSvc = NewBettingService(e.markets, e.positions, e.ledger, e.escrow, e.locks, e.bus, e.audit, logger)
	e.bettingSvc.clock = clock
	e.resolutionSvc = NewResolutionService(e.markets, e.positions, e.oracle, e.locks, nopCache{}, e.bus, e.audit, e.archiver, logger)
	e.resolutionSvc.clock = clock
	e.settlementSvc = NewSettlementService(e.markets, e.positions, e.escrow, e.locks, nopCache{}, e.bus, e.audit, logger)
	e.settlementSvc.clock = clock

	return e
}

func (e *env) setNow(now time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

// createMarket creates a standard test market starting one hour from now,
// resolving three hours from now.
func (e *env) createMarket(t *testing.T, gameKey string) domain.Market {
	t.Helper()
	m, err := e.marketSvc.CreateMarket(context.Background(), CreateMarketParams{
		Authority:      "authority-1",
		Question:       "Who wins?",
		HomeTeam:       "Arsenal",
		AwayTeam:       "Chelsea",
		GameKey:        gameKey,
		OracleFeed:     "feed-" + gameKey,
		Asset:          "usdc",
		StartTime:      e.now.Add(time.Hour),
		EndTime:        e.now.Add(2 * time.Hour),
		ResolutionTime: e.now.Add(3 * time.Hour),
		FeeBps:         50,
	})
	require.NoError(t, err)
	return m
}

// fundUser opens a usdc account for user with the given balance.
func (e *env) fundUser(user string, amount uint64) {
	e.escrow.fund(user, "usdc", amount)
}

// requireEscrowConservation asserts invariant I1: the escrow balance equals
// the sum of all pools plus uncollected fees.
func (e *env) requireEscrowConservation(t *testing.T, marketID string) {
	t.Helper()
	m, err := e.markets.GetByID(context.Background(), marketID)
	require.NoError(t, err)
	total, err := m.TotalPool()
	require.NoError(t, err)
	bal, err := e.escrow.Balance(context.Background(), domain.EscrowAccount(marketID))
	require.NoError(t, err)
	require.Equal(t, total+m.FeesCollected, bal, "escrow balance must equal pools plus fees")
}

func TestPlaceBet_FeeSplitAndPools(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.fundUser("alice", 2_000_000)

	pos, err := e.bettingSvc.PlaceBet(context.Background(), m.ID, "alice", domain.OutcomeHome, 1_000_000)
	require.NoError(t, err)

	// 50 bps: fee=5000, net=995000.
	assert.Equal(t, uint64(995_000), pos.Stakes.Home)

	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(995_000), got.Pools.Home)
	assert.Equal(t, uint64(5_000), got.FeesCollected)

	aliceBal, err := e.escrow.Balance(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), aliceBal)

	e.requireEscrowConservation(t, m.ID)
}

func TestPlaceBet_AccumulatesStakes(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.fundUser("alice", 5_000_000)

	_, err := e.bettingSvc.PlaceBet(context.Background(), m.ID, "alice", domain.OutcomeHome, 1_000_000)
	require.NoError(t, err)
	pos, err := e.bettingSvc.PlaceBet(context.Background(), m.ID, "alice", domain.OutcomeDraw, 400_000)
	require.NoError(t, err)

	assert.Equal(t, uint64(995_000), pos.Stakes.Home)
	assert.Equal(t, uint64(398_000), pos.Stakes.Draw)

	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, pos.Stakes.Home, got.Pools.Home, "stake must mirror pool")
	assert.Equal(t, pos.Stakes.Draw, got.Pools.Draw)
	e.requireEscrowConservation(t, m.ID)
}

func TestPlaceBet_ZeroAmount(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.fundUser("alice", 1_000)

	_, err := e.bettingSvc.PlaceBet(context.Background(), m.ID, "alice", domain.OutcomeHome, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAmounts{}, got.Pools)
	assert.Zero(t, got.FeesCollected)
}

func TestPlaceBet_InvalidOutcome(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")

	_, err := e.bettingSvc.PlaceBet(context.Background(), m.ID, "alice", domain.Outcome("both"), 100)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
}

func TestPlaceBet_TimingGate(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.fundUser("alice", 1_000_000)

	// now == start_time: gate shut.
	e.setNow(m.StartTime)
	_, err := e.bettingSvc.PlaceBet(context.Background(), m.ID, "alice", domain.OutcomeAway, 1_000)
	assert.ErrorIs(t, err, domain.ErrMarketAlreadyStarted)

	// One second before start: open.
	e.setNow(m.StartTime.Add(-time.Second))
	_, err = e.bettingSvc.PlaceBet(context.Background(), m.ID, "alice", domain.OutcomeAway, 1_000)
	require.NoError(t, err)
}

func TestPlaceBet_InsufficientFundsMutatesNothing(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.fundUser("alice", 100)

	_, err := e.bettingSvc.PlaceBet(context.Background(), m.ID, "alice", domain.OutcomeHome, 1_000)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAmounts{}, got.Pools)
	assert.Zero(t, got.FeesCollected)

	_, err = e.positions.Get(context.Background(), m.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPlaceBet_LedgerFailureRefundsTransfer(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.fundUser("alice", 1_000_000)
	e.ledger.failNext = errors.New("write conflict")

	_, err := e.bettingSvc.PlaceBet(context.Background(), m.ID, "alice", domain.OutcomeHome, 1_000_000)
	require.Error(t, err)

	// The escrow transfer was compensated; all state is as before the call.
	aliceBal, err := e.escrow.Balance(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), aliceBal)

	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAmounts{}, got.Pools)
	e.requireEscrowConservation(t, m.ID)
}

func TestPlaceBet_ResolvedMarket(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.fundUser("alice", 1_000_000)

	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	require.NoError(t, got.SetOutcome(domain.OutcomeDraw, domain.RawResultDraw))
	require.NoError(t, e.markets.Update(context.Background(), got))

	_, err = e.bettingSvc.PlaceBet(context.Background(), m.ID, "alice", domain.OutcomeHome, 1_000)
	assert.ErrorIs(t, err, domain.ErrMarketResolved)
}

func TestPlaceBet_ConcurrentBetsLoseNoUpdates(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")

	const bettors = 16
	const stake = 100_000

	var wg sync.WaitGroup
	for i := 0; i < bettors; i++ {
		user := "user-" + string(rune('a'+i))
		e.fundUser(user, stake)
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := e.bettingSvc.PlaceBet(context.Background(), m.ID, user, domain.OutcomeHome, stake)
			assert.NoError(t, err)
		}(user)
	}
	wg.Wait()

	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	net, fee, err := domain.NetAndFee(stake, got.FeeBps)
	require.NoError(t, err)
	assert.Equal(t, uint64(bettors)*net, got.Pools.Home)
	assert.Equal(t, uint64(bettors)*fee, got.FeesCollected)
	e.requireEscrowConservation(t, m.ID)
}

func TestCreateMarket_Duplicate(t *testing.T) {
	e := newEnv(t)
	e.createMarket(t, "ars-che")

	_, err := e.marketSvc.CreateMarket(context.Background(), CreateMarketParams{
		Authority:      "authority-2",
		Question:       "Who wins?",
		HomeTeam:       "Arsenal",
		AwayTeam:       "Chelsea",
		GameKey:        "ars-che",
		OracleFeed:     "feed-other",
		Asset:          "usdc",
		StartTime:      e.now.Add(time.Hour),
		EndTime:        e.now.Add(2 * time.Hour),
		ResolutionTime: e.now.Add(3 * time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateMarket)
}

func TestUpdateFeed(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")

	err := e.marketSvc.UpdateFeed(context.Background(), m.ID, "mallory", "feed-new")
	assert.ErrorIs(t, err, domain.ErrUnauthorizedFeedUpdater)

	require.NoError(t, e.marketSvc.UpdateFeed(context.Background(), m.ID, "authority-1", "feed-new"))

	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, "feed-new", got.OracleFeed)

	// Feed updates are refused once the market is resolved.
	require.NoError(t, got.SetOutcome(domain.OutcomeHome, domain.RawResultHome))
	require.NoError(t, e.markets.Update(context.Background(), got))
	err = e.marketSvc.UpdateFeed(context.Background(), m.ID, "authority-1", "feed-newer")
	assert.ErrorIs(t, err, domain.ErrMarketAlreadyResolved)
}
