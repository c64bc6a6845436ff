package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitchside/parimutuel/internal/domain"
)

// LedgerStore implements domain.BetLedger: the joint market-and-position
// write of one bet runs in a single transaction, so the stake-equals-pool
// invariant can never be broken by a partial failure.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// ApplyBet commits the market's updated pools and fee accumulator together
// with the bettor's updated stake ledger.
func (s *LedgerStore) ApplyBet(ctx context.Context, m domain.Market, p domain.Position) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin bet tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const marketQuery = `
		UPDATE markets SET
			pool_home      = $2,
			pool_away      = $3,
			pool_draw      = $4,
			fees_collected = $5,
			updated_at     = $6
		WHERE id = $1 AND resolved = FALSE`

	tag, err := tx.Exec(ctx, marketQuery,
		m.ID,
		int64(m.Pools.Home), int64(m.Pools.Away), int64(m.Pools.Draw),
		int64(m.FeesCollected),
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: apply bet market update %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if _, err := tx.Exec(ctx, positionUpsertQuery,
		p.MarketID, p.User,
		int64(p.Stakes.Home), int64(p.Stakes.Away), int64(p.Stakes.Draw),
		p.CreatedAt, p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("postgres: apply bet position upsert %s/%s: %w", p.MarketID, p.User, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit bet tx: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BetLedger = (*LedgerStore)(nil)
