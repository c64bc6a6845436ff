package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitchside/parimutuel/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `id, game_key, authority, question, home_team, away_team,
	start_time, end_time, resolution_time, fee_bps,
	pool_home, pool_away, pool_draw, fees_collected,
	resolved, outcome, final_raw_result, oracle_feed, asset,
	created_at, updated_at`

func scanMarketRow(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var feeBps, poolHome, poolAway, poolDraw, fees int64
	var outcome string

	err := row.Scan(
		&m.ID, &m.GameKey, &m.Authority, &m.Question, &m.HomeTeam, &m.AwayTeam,
		&m.StartTime, &m.EndTime, &m.ResolutionTime, &feeBps,
		&poolHome, &poolAway, &poolDraw, &fees,
		&m.Resolved, &outcome, &m.FinalRawResult, &m.OracleFeed, &m.Asset,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.FeeBps = uint64(feeBps)
	m.Pools = domain.OutcomeAmounts{
		Home: uint64(poolHome),
		Away: uint64(poolAway),
		Draw: uint64(poolDraw),
	}
	m.FeesCollected = uint64(fees)
	m.Outcome = domain.Outcome(outcome)
	return m, nil
}

func marketArgs(m domain.Market) []any {
	return []any{
		m.ID, m.GameKey, m.Authority, m.Question, m.HomeTeam, m.AwayTeam,
		m.StartTime, m.EndTime, m.ResolutionTime, int64(m.FeeBps),
		int64(m.Pools.Home), int64(m.Pools.Away), int64(m.Pools.Draw), int64(m.FeesCollected),
		m.Resolved, string(m.Outcome), m.FinalRawResult, m.OracleFeed, m.Asset,
		m.CreatedAt, m.UpdatedAt,
	}
}

// Create inserts a new market, returning domain.ErrDuplicateMarket if the
// ID or game key is already taken.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, game_key, authority, question, home_team, away_team,
			start_time, end_time, resolution_time, fee_bps,
			pool_home, pool_away, pool_draw, fees_collected,
			resolved, outcome, final_raw_result, oracle_feed, asset,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17, $18, $19,
			$20, $21
		)`

	_, err := s.pool.Exec(ctx, query, marketArgs(m)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateMarket
		}
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID retrieves a single market.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE id = $1`, id)

	m, err := scanMarketRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// Update replaces all mutable fields of a market.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			pool_home        = $2,
			pool_away        = $3,
			pool_draw        = $4,
			fees_collected   = $5,
			resolved         = $6,
			outcome          = $7,
			final_raw_result = $8,
			oracle_feed      = $9,
			updated_at       = $10
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		m.ID,
		int64(m.Pools.Home), int64(m.Pools.Away), int64(m.Pools.Draw),
		int64(m.FeesCollected),
		m.Resolved, string(m.Outcome), m.FinalRawResult, m.OracleFeed,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns markets ordered by start time, newest first.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets ORDER BY start_time DESC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarketRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	return markets, nil
}

// Count returns the number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
