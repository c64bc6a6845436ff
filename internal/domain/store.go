package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists market aggregates.
type MarketStore interface {
	// Create inserts a new market, failing with ErrDuplicateMarket if the
	// ID is already taken.
	Create(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	// Update replaces all mutable fields of a market.
	Update(ctx context.Context, market Market) error
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// PositionStore persists per-user per-market stake ledgers.
type PositionStore interface {
	// Get returns the position for (marketID, user), or ErrNotFound if the
	// user has never bet on the market.
	Get(ctx context.Context, marketID, user string) (Position, error)
	Upsert(ctx context.Context, pos Position) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Position, error)
}

// BetLedger applies the joint market-and-position mutation of one bet as a
// single atomic write: either both rows commit or neither does. Required so
// a failure between the two updates can never break the stake-equals-pool
// invariant.
type BetLedger interface {
	ApplyBet(ctx context.Context, market Market, pos Position) error
}

// AuditEntry is a single append-only audit log row.
type AuditEntry struct {
	ID        string
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of settlement activity.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
