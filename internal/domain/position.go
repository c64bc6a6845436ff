package domain

import "time"

// Position is the per-user per-market stake ledger. It is created lazily on
// the user's first bet and persists after a claim; once the winning stake is
// zeroed the position is permanently inert for payout purposes but remains
// queryable.
type Position struct {
	MarketID string `json:"market_id"`
	User     string `json:"user"`

	// Stakes accumulate the user's net-of-fee bets per outcome. Every stake
	// increment is mirrored by an equal pool increment in the same atomic
	// step, so per outcome the sum of all stakes equals the pool.
	Stakes OutcomeAmounts `json:"stakes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PositionID derives the opaque position key for a (market, user) pair.
func PositionID(marketID, user string) string {
	return "position:" + marketID + ":" + user
}

// NewPosition returns an empty position for the given market and user.
func NewPosition(marketID, user string, now time.Time) Position {
	return Position{
		MarketID:  marketID,
		User:      user,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddStake records a net-of-fee bet on the given outcome.
func (p *Position) AddStake(outcome Outcome, net uint64) error {
	return p.Stakes.Add(outcome, net)
}

// TotalStaked returns the checked sum of the user's stakes across all
// outcomes.
func (p Position) TotalStaked() (uint64, error) {
	return p.Stakes.Total()
}
