package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitchside/parimutuel/internal/domain"
)

// EscrowStore implements domain.Escrow as a balance ledger in PostgreSQL.
// A transfer debits and credits inside one transaction with both rows
// locked, so the full amount moves or nothing does.
type EscrowStore struct {
	pool *pgxpool.Pool
}

// NewEscrowStore creates a new EscrowStore backed by the given connection pool.
func NewEscrowStore(pool *pgxpool.Pool) *EscrowStore {
	return &EscrowStore{pool: pool}
}

// Open creates an account with the given denomination if it does not exist.
func (s *EscrowStore) Open(ctx context.Context, account, asset string) error {
	const query = `
		INSERT INTO escrow_accounts (account, asset, balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (account) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query, account, asset); err != nil {
		return fmt.Errorf("postgres: open escrow account %s: %w", account, err)
	}
	return nil
}

// Transfer moves amount from one account to another. It fails with
// domain.ErrInsufficientFunds when the source balance is too small,
// domain.ErrAssetMismatch when the accounts are denominated differently,
// and domain.ErrNotFound when either account is unknown.
func (s *EscrowStore) Transfer(ctx context.Context, from, to string, amount uint64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin transfer tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock both rows in a stable order so concurrent opposite transfers
	// cannot deadlock.
	const lockQuery = `
		SELECT account, asset, balance FROM escrow_accounts
		WHERE account = ANY($1)
		ORDER BY account
		FOR UPDATE`

	rows, err := tx.Query(ctx, lockQuery, []string{from, to})
	if err != nil {
		return fmt.Errorf("postgres: lock escrow accounts: %w", err)
	}

	assets := make(map[string]string, 2)
	balances := make(map[string]int64, 2)
	for rows.Next() {
		var account, asset string
		var balance int64
		if err := rows.Scan(&account, &asset, &balance); err != nil {
			rows.Close()
			return fmt.Errorf("postgres: scan escrow account: %w", err)
		}
		assets[account] = asset
		balances[account] = balance
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: lock escrow accounts: %w", err)
	}

	if _, ok := assets[from]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := assets[to]; !ok {
		return domain.ErrNotFound
	}
	if assets[from] != assets[to] {
		return domain.ErrAssetMismatch
	}
	if balances[from] < 0 || uint64(balances[from]) < amount {
		return domain.ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx,
		`UPDATE escrow_accounts SET balance = balance - $2, updated_at = NOW() WHERE account = $1`,
		from, int64(amount),
	); err != nil {
		return fmt.Errorf("postgres: debit %s: %w", from, err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE escrow_accounts SET balance = balance + $2, updated_at = NOW() WHERE account = $1`,
		to, int64(amount),
	); err != nil {
		return fmt.Errorf("postgres: credit %s: %w", to, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit transfer tx: %w", err)
	}
	return nil
}

// Balance returns the balance of an account.
func (s *EscrowStore) Balance(ctx context.Context, account string) (uint64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM escrow_accounts WHERE account = $1`, account,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("postgres: escrow balance %s: %w", account, err)
	}
	return uint64(balance), nil
}

// Asset returns the denomination of an account.
func (s *EscrowStore) Asset(ctx context.Context, account string) (string, error) {
	var asset string
	err := s.pool.QueryRow(ctx,
		`SELECT asset FROM escrow_accounts WHERE account = $1`, account,
	).Scan(&asset)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("postgres: escrow asset %s: %w", account, err)
	}
	return asset, nil
}

// Compile-time interface check.
var _ domain.Escrow = (*EscrowStore)(nil)
