package domain

import "context"

// Escrow is the fungible-value transfer primitive. Accounts are denominated
// in a single asset; a transfer either moves the full amount or fails with
// no effect.
//
// Implementations return ErrInsufficientFunds when the source balance is
// too small, ErrAssetMismatch when source and destination are denominated
// in different assets, and ErrNotFound for unknown accounts.
type Escrow interface {
	Transfer(ctx context.Context, from, to string, amount uint64) error
	Balance(ctx context.Context, account string) (uint64, error)
	// Asset returns the denomination of an account, for receiver checks.
	Asset(ctx context.Context, account string) (string, error)
	// Open creates an account with the given denomination if it does not
	// already exist.
	Open(ctx context.Context, account, asset string) error
}
