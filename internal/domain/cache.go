package domain

import (
	"context"
	"time"
)

// LockManager serializes operations on a single aggregate. Every market and
// every position is an independent unit of concurrency control: two
// concurrent bets on the same market, or two concurrent claims on the same
// position, must not interleave.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL and returns an
	// unlock function, or ErrLockHeld if another holder has it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// MarketCache caches read-side market snapshots.
type MarketCache interface {
	Get(ctx context.Context, id string) (Market, bool, error)
	Set(ctx context.Context, market Market) error
	Invalidate(ctx context.Context, id string) error
}

// SignalBus publishes settlement events (bets placed, markets resolved,
// winnings claimed) to interested subscribers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan BusMessage, func(), error)
}

// BusMessage is a single message delivered by the SignalBus.
type BusMessage struct {
	Channel string
	Payload []byte
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under a sliding
	// window of at most limit requests per window. Allowed requests are
	// counted against the window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
