package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pitchside/parimutuel/internal/domain"
)

// MarketService manages market creation, lookup, and oracle feed
// administration.
type MarketService struct {
	markets domain.MarketStore
	cache   domain.MarketCache
	escrow  domain.Escrow
	locks   domain.LockManager
	audit   domain.AuditStore
	logger  *slog.Logger

	clock func() time.Time
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	escrow domain.Escrow,
	locks domain.LockManager,
	audit domain.AuditStore,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets: markets,
		cache:   cache,
		escrow:  escrow,
		locks:   locks,
		audit:   audit,
		logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateMarketParams are the caller-supplied creation parameters.
type CreateMarketParams struct {
	Authority      string
	Question       string
	HomeTeam       string
	AwayTeam       string
	GameKey        string
	OracleFeed     string
	Asset          string
	StartTime      time.Time
	EndTime        time.Time
	ResolutionTime time.Time
	FeeBps         uint64
}

// CreateMarket validates the parameters, opens the market's escrow account,
// and persists the market. Creation fails with domain.ErrDuplicateMarket if
// the game key is already taken and with domain.ErrInvalidTimes if the
// start/end/resolution ordering is violated.
func (s *MarketService) CreateMarket(ctx context.Context, p CreateMarketParams) (domain.Market, error) {
	now := s.clock()

	m, err := domain.NewMarket(
		p.Authority, p.Question, p.HomeTeam, p.AwayTeam, p.GameKey,
		p.OracleFeed, p.Asset,
		p.StartTime, p.EndTime, p.ResolutionTime,
		p.FeeBps, now,
	)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: validate market: %w", err)
	}

	// Open the escrow account before the market row exists. Open is
	// idempotent, so a duplicate-market failure below leaves nothing to
	// clean up.
	if err := s.escrow.Open(ctx, domain.EscrowAccount(m.ID), m.Asset); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: open escrow account: %w", err)
	}

	if err := s.markets.Create(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create market %s: %w", m.ID, err)
	}

	if err := s.cache.Set(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}

	if auditErr := s.audit.Log(ctx, "market_created", map[string]any{
		"market_id": m.ID,
		"game_key":  m.GameKey,
		"authority": m.Authority,
		"fee_bps":   m.FeeBps,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("market_id", m.ID),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", m.ID),
		slog.String("home_team", m.HomeTeam),
		slog.String("away_team", m.AwayTeam),
		slog.Time("start_time", m.StartTime),
	)

	return m, nil
}

// GetMarket returns a market by ID, preferring the cache.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	if m, ok, err := s.cache.Get(ctx, id); err == nil && ok {
		return m, nil
	}

	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %q: %w", id, err)
	}

	if err := s.cache.Set(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
	return m, nil
}

// ListMarkets returns markets with pagination.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}
	return markets, nil
}

// Count returns the number of markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	n, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count markets: %w", err)
	}
	return n, nil
}

// UpdateFeed replaces the oracle feed a market resolves from. Only the
// recorded authority may do so, and only while the market is unresolved.
func (s *MarketService) UpdateFeed(ctx context.Context, marketID, caller, newFeedID string) error {
	unlock, err := s.locks.Acquire(ctx, marketID, lockTTL)
	if err != nil {
		return fmt.Errorf("market_service: lock market %s: %w", marketID, err)
	}
	defer unlock()

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("market_service: get market %q: %w", marketID, err)
	}
	if caller != m.Authority {
		return domain.ErrUnauthorizedFeedUpdater
	}
	if m.Resolved {
		return domain.ErrMarketAlreadyResolved
	}

	oldFeed := m.OracleFeed
	m.OracleFeed = newFeedID
	m.UpdatedAt = s.clock()

	if err := s.markets.Update(ctx, m); err != nil {
		return fmt.Errorf("market_service: update market %s: %w", marketID, err)
	}

	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	if auditErr := s.audit.Log(ctx, "oracle_feed_updated", map[string]any{
		"market_id": marketID,
		"old_feed":  oldFeed,
		"new_feed":  newFeedID,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("market_id", marketID),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "market_service: oracle feed updated",
		slog.String("market_id", marketID),
		slog.String("new_feed", newFeedID),
	)
	return nil
}
