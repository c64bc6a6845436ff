package domain

import (
	"time"
)

// Outcome identifies one of the three results of a football match.
type Outcome string

const (
	OutcomeHome Outcome = "home"
	OutcomeAway Outcome = "away"
	OutcomeDraw Outcome = "draw"
)

// Raw oracle discriminants published by the result feed.
const (
	RawResultPending int64 = -1
	RawResultAway    int64 = 0
	RawResultHome    int64 = 1
	RawResultDraw    int64 = 2
)

// OutcomeFromRaw maps a raw oracle discriminant to an Outcome. A pending
// value (-1) means the match has not finished; anything outside {-1,0,1,2}
// is malformed feed data.
func OutcomeFromRaw(v int64) (Outcome, error) {
	switch v {
	case RawResultAway:
		return OutcomeAway, nil
	case RawResultHome:
		return OutcomeHome, nil
	case RawResultDraw:
		return OutcomeDraw, nil
	case RawResultPending:
		return "", ErrMatchNotFinished
	default:
		return "", ErrInvalidOracleData
	}
}

// Valid reports whether o is one of the three defined outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeHome, OutcomeAway, OutcomeDraw:
		return true
	}
	return false
}

// OutcomeAmounts holds one non-negative integer accumulator per outcome.
// It is used both for a market's pools and for a position's stakes.
type OutcomeAmounts struct {
	Home uint64 `json:"home"`
	Away uint64 `json:"away"`
	Draw uint64 `json:"draw"`
}

// Get returns the accumulator for the given outcome.
func (a OutcomeAmounts) Get(o Outcome) uint64 {
	switch o {
	case OutcomeHome:
		return a.Home
	case OutcomeAway:
		return a.Away
	case OutcomeDraw:
		return a.Draw
	}
	return 0
}

// Add increases the accumulator for the given outcome, failing on overflow.
func (a *OutcomeAmounts) Add(o Outcome, amount uint64) error {
	cur := a.Get(o)
	next, err := CheckedAdd(cur, amount)
	if err != nil {
		return err
	}
	a.set(o, next)
	return nil
}

// Zero resets the accumulator for the given outcome.
func (a *OutcomeAmounts) Zero(o Outcome) {
	a.set(o, 0)
}

func (a *OutcomeAmounts) set(o Outcome, v uint64) {
	switch o {
	case OutcomeHome:
		a.Home = v
	case OutcomeAway:
		a.Away = v
	case OutcomeDraw:
		a.Draw = v
	}
}

// Total returns the checked sum of all three accumulators.
func (a OutcomeAmounts) Total() (uint64, error) {
	sum, err := CheckedAdd(a.Home, a.Away)
	if err != nil {
		return 0, err
	}
	return CheckedAdd(sum, a.Draw)
}

// Market is a pari-mutuel betting market on a single football match.
// Created and Closed states are not stored: betting is gated purely by the
// current time relative to StartTime.
type Market struct {
	ID             string    `json:"id"`
	GameKey        string    `json:"game_key"`
	Authority      string    `json:"authority"`
	Question       string    `json:"question"`
	HomeTeam       string    `json:"home_team"`
	AwayTeam       string    `json:"away_team"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	ResolutionTime time.Time `json:"resolution_time"`
	FeeBps         uint64    `json:"fee_bps"`

	// Pools accumulate net-of-fee stakes per outcome. They only grow until
	// resolution, then freeze.
	Pools OutcomeAmounts `json:"pools"`

	// FeesCollected grows on every bet and resets to zero on a full fee
	// withdrawal.
	FeesCollected uint64 `json:"fees_collected"`

	Resolved       bool    `json:"resolved"`
	Outcome        Outcome `json:"outcome,omitempty"` // empty until resolved
	FinalRawResult int64   `json:"final_raw_result"`  // raw oracle discriminant, set at resolution

	OracleFeed string `json:"oracle_feed"`
	Asset      string `json:"asset"` // escrow denomination

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarketID derives the opaque market key from a human-readable game key,
// e.g. "epl-2026-08-29-ars-che".
func MarketID(gameKey string) string {
	return "market:" + gameKey
}

// EscrowAccount derives the escrow account key holding a market's pooled
// balance.
func EscrowAccount(marketID string) string {
	return "escrow:" + marketID
}

// NewMarket validates the creation parameters and returns an unresolved
// market with empty pools. Uniqueness of the ID is enforced by the store
// at persistence time.
func NewMarket(authority, question, homeTeam, awayTeam, gameKey, oracleFeed, asset string, start, end, resolution time.Time, feeBps uint64, now time.Time) (Market, error) {
	if !start.Before(end) || end.After(resolution) {
		return Market{}, ErrInvalidTimes
	}
	if feeBps >= BasisPointDivisor {
		return Market{}, ErrInvalidAmount
	}
	if feeBps == 0 {
		feeBps = DefaultFeeBps
	}
	return Market{
		ID:             MarketID(gameKey),
		GameKey:        gameKey,
		Authority:      authority,
		Question:       question,
		HomeTeam:       homeTeam,
		AwayTeam:       awayTeam,
		StartTime:      start,
		EndTime:        end,
		ResolutionTime: resolution,
		FeeBps:         feeBps,
		OracleFeed:     oracleFeed,
		Asset:          asset,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// AcceptBet applies the net/fee split of one bet to the market's pools and
// fee accumulator. It enforces the timing gate and resolution gate and
// mutates nothing on failure.
func (m *Market) AcceptBet(outcome Outcome, net, fee uint64, now time.Time) error {
	if !now.Before(m.StartTime) {
		return ErrMarketAlreadyStarted
	}
	if m.Resolved {
		return ErrMarketResolved
	}
	nextFees, err := CheckedAdd(m.FeesCollected, fee)
	if err != nil {
		return err
	}
	if err := m.Pools.Add(outcome, net); err != nil {
		return err
	}
	m.FeesCollected = nextFees
	return nil
}

// CanResolve reports whether resolution is admissible at the given instant.
func (m *Market) CanResolve(now time.Time) error {
	if m.Resolved {
		return ErrMarketAlreadyResolved
	}
	if now.Before(m.ResolutionTime) {
		return ErrTooEarlyToResolve
	}
	return nil
}

// SetOutcome finalizes the market. The transition is terminal: a second
// call fails and mutates nothing.
func (m *Market) SetOutcome(o Outcome, raw int64) error {
	if m.Resolved {
		return ErrMarketAlreadyResolved
	}
	if !o.Valid() {
		return ErrInvalidOracleData
	}
	m.Outcome = o
	m.FinalRawResult = raw
	m.Resolved = true
	return nil
}

// WinningPool returns the pool of the resolved outcome.
func (m Market) WinningPool() uint64 {
	return m.Pools.Get(m.Outcome)
}

// TotalPool returns the checked sum of all three pools.
func (m Market) TotalPool() (uint64, error) {
	return m.Pools.Total()
}
