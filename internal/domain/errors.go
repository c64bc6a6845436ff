package domain

import "errors"

// Validation errors: rejected before any state is touched.
var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidOutcome  = errors.New("invalid outcome")
	ErrInvalidTimes    = errors.New("invalid market times")
	ErrDuplicateMarket = errors.New("market already exists")
)

// State errors: operation attempted out of order relative to the market
// lifecycle.
var (
	ErrMarketAlreadyStarted  = errors.New("market has already started")
	ErrMarketResolved        = errors.New("market has been resolved")
	ErrMarketNotResolved     = errors.New("market is not yet resolved")
	ErrMarketAlreadyResolved = errors.New("market has already been resolved")
	ErrTooEarlyToResolve     = errors.New("too early to resolve market")
)

// Authorization errors.
var (
	ErrUnauthorizedFeeCollector = errors.New("unauthorized to collect fees")
	ErrUnauthorizedFeedUpdater  = errors.New("unauthorized to update oracle feed")
)

// Economic errors.
var (
	ErrNoWinningsToClaim  = errors.New("no winnings to claim")
	ErrNoFeesToCollect    = errors.New("no fees to collect")
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)

// Collaborator errors: failures surfaced by the oracle and escrow
// collaborators. None are retried internally; retry policy belongs to the
// caller.
var (
	ErrInvalidFeed       = errors.New("oracle feed does not match market")
	ErrMatchNotFinished  = errors.New("match not finished according to oracle")
	ErrInvalidOracleData = errors.New("invalid oracle data")
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAssetMismatch     = errors.New("account asset mismatch")
	ErrInvalidReceiver   = errors.New("invalid fee receiver")
)

// Infrastructure errors.
var (
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")
)
