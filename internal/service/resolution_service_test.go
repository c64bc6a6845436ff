package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/parimutuel/internal/domain"
)

func TestResolve_MapsRawResult(t *testing.T) {
	cases := []struct {
		raw  int64
		want domain.Outcome
	}{
		{domain.RawResultAway, domain.OutcomeAway},
		{domain.RawResultHome, domain.OutcomeHome},
		{domain.RawResultDraw, domain.OutcomeDraw},
	}

	for _, tc := range cases {
		e := newEnv(t)
		m := e.createMarket(t, "ars-che")
		e.oracle.results[m.OracleFeed] = domain.MatchResult{FeedID: m.OracleFeed, Value: tc.raw}
		e.setNow(m.ResolutionTime)

		resolved, err := e.resolutionSvc.Resolve(context.Background(), m.ID)
		require.NoError(t, err)
		assert.True(t, resolved.Resolved)
		assert.Equal(t, tc.want, resolved.Outcome)
		assert.Equal(t, tc.raw, resolved.FinalRawResult)
	}
}

func TestResolve_TooEarly(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.oracle.results[m.OracleFeed] = domain.MatchResult{FeedID: m.OracleFeed, Value: domain.RawResultHome}
	e.setNow(m.ResolutionTime.Add(-time.Minute))

	_, err := e.resolutionSvc.Resolve(context.Background(), m.ID)
	assert.ErrorIs(t, err, domain.ErrTooEarlyToResolve)

	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.False(t, got.Resolved)
}

func TestResolve_Finality(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.oracle.results[m.OracleFeed] = domain.MatchResult{FeedID: m.OracleFeed, Value: domain.RawResultHome}
	e.setNow(m.ResolutionTime)

	_, err := e.resolutionSvc.Resolve(context.Background(), m.ID)
	require.NoError(t, err)

	// Flip the oracle; the second resolve must fail without remapping.
	e.oracle.results[m.OracleFeed] = domain.MatchResult{FeedID: m.OracleFeed, Value: domain.RawResultAway}
	_, err = e.resolutionSvc.Resolve(context.Background(), m.ID)
	assert.ErrorIs(t, err, domain.ErrMarketAlreadyResolved)

	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeHome, got.Outcome)
}

func TestResolve_FeedSubstitutionRejected(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.oracle.results[m.OracleFeed] = domain.MatchResult{FeedID: "feed-imposter", Value: domain.RawResultHome}
	e.setNow(m.ResolutionTime)

	_, err := e.resolutionSvc.Resolve(context.Background(), m.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidFeed)

	got, err := e.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.False(t, got.Resolved)
}

func TestResolve_OracleUnavailable(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.oracle.err = domain.ErrOracleUnavailable
	e.setNow(m.ResolutionTime)

	_, err := e.resolutionSvc.Resolve(context.Background(), m.ID)
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
}

func TestResolve_MatchNotFinished(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.oracle.results[m.OracleFeed] = domain.MatchResult{FeedID: m.OracleFeed, Value: domain.RawResultPending}
	e.setNow(m.ResolutionTime)

	_, err := e.resolutionSvc.Resolve(context.Background(), m.ID)
	assert.ErrorIs(t, err, domain.ErrMatchNotFinished)
}

func TestResolve_MalformedRawValue(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.oracle.results[m.OracleFeed] = domain.MatchResult{FeedID: m.OracleFeed, Value: 9}
	e.setNow(m.ResolutionTime)

	_, err := e.resolutionSvc.Resolve(context.Background(), m.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidOracleData)
}

func TestResolve_ArchivesSettlementReport(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, "ars-che")
	e.fundUser("alice", 1_000_000)
	_, err := e.bettingSvc.PlaceBet(context.Background(), m.ID, "alice", domain.OutcomeHome, 1_000_000)
	require.NoError(t, err)

	e.oracle.results[m.OracleFeed] = domain.MatchResult{FeedID: m.OracleFeed, Value: domain.RawResultHome}
	e.setNow(m.ResolutionTime)
	_, err = e.resolutionSvc.Resolve(context.Background(), m.ID)
	require.NoError(t, err)

	require.Len(t, e.archiver.reports, 1)
	report := e.archiver.reports[0]
	assert.Equal(t, m.ID, report.MarketID)
	assert.Equal(t, domain.OutcomeHome, report.Outcome)
	assert.Equal(t, uint64(995_000), report.Pools.Home)
	require.Len(t, report.Positions, 1)
	assert.Equal(t, "alice", report.Positions[0].User)
}
