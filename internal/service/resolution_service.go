package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pitchside/parimutuel/internal/domain"
)

// ResolutionService finalizes markets from the oracle collaborator. The
// transition is terminal: once an outcome is recorded it never reverts,
// even if the feed is later discovered wrong.
type ResolutionService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	oracle    domain.Oracle
	locks     domain.LockManager
	cache     domain.MarketCache
	bus       domain.SignalBus
	audit     domain.AuditStore
	archiver  domain.ReportArchiver // optional
	logger    *slog.Logger

	clock func() time.Time
}

// NewResolutionService creates a ResolutionService. archiver may be nil when
// settlement report archival is disabled.
func NewResolutionService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	oracle domain.Oracle,
	locks domain.LockManager,
	cache domain.MarketCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	archiver domain.ReportArchiver,
	logger *slog.Logger,
) *ResolutionService {
	return &ResolutionService{
		markets:   markets,
		positions: positions,
		oracle:    oracle,
		locks:     locks,
		cache:     cache,
		bus:       bus,
		audit:     audit,
		archiver:  archiver,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Resolve queries the oracle for the market's feed, validates the feed
// identity, maps the raw result to an outcome, and finalizes the market.
// A second call always fails with domain.ErrMarketAlreadyResolved.
func (s *ResolutionService) Resolve(ctx context.Context, marketID string) (domain.Market, error) {
	unlock, err := s.locks.Acquire(ctx, marketID, lockTTL)
	if err != nil {
		return domain.Market{}, fmt.Errorf("resolution_service: lock market %s: %w", marketID, err)
	}
	defer unlock()

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("resolution_service: get market %q: %w", marketID, err)
	}

	now := s.clock()
	if err := m.CanResolve(now); err != nil {
		return domain.Market{}, fmt.Errorf("resolution_service: resolve %s: %w", marketID, err)
	}

	res, err := s.oracle.Result(ctx, m.OracleFeed)
	if err != nil {
		return domain.Market{}, fmt.Errorf("resolution_service: query oracle feed %s: %w", m.OracleFeed, err)
	}
	// Defend against feed substitution: the result must carry the identity
	// recorded at market creation.
	if res.FeedID != m.OracleFeed {
		return domain.Market{}, fmt.Errorf("resolution_service: feed %q returned for %q: %w", res.FeedID, m.OracleFeed, domain.ErrInvalidFeed)
	}

	outcome, err := domain.OutcomeFromRaw(res.Value)
	if err != nil {
		return domain.Market{}, fmt.Errorf("resolution_service: map result %d: %w", res.Value, err)
	}

	if err := m.SetOutcome(outcome, res.Value); err != nil {
		return domain.Market{}, fmt.Errorf("resolution_service: finalize %s: %w", marketID, err)
	}
	m.UpdatedAt = now

	if err := s.markets.Update(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("resolution_service: update market %s: %w", marketID, err)
	}

	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "resolution_service: cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":     "market_resolved",
		"market_id": marketID,
		"outcome":   string(outcome),
		"raw_value": res.Value,
	})
	if pubErr := s.bus.Publish(ctx, "markets", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "resolution_service: publish event failed",
			slog.String("market_id", marketID),
			slog.String("error", pubErr.Error()),
		)
	}

	if auditErr := s.audit.Log(ctx, "market_resolved", map[string]any{
		"market_id": marketID,
		"outcome":   string(outcome),
		"raw_value": res.Value,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "resolution_service: audit log failed",
			slog.String("market_id", marketID),
			slog.String("error", auditErr.Error()),
		)
	}

	s.archiveReport(ctx, m)

	s.logger.InfoContext(ctx, "resolution_service: market resolved",
		slog.String("market_id", marketID),
		slog.String("outcome", string(outcome)),
		slog.Int64("raw_value", res.Value),
	)

	return m, nil
}

// archiveReport uploads the frozen settlement state of a resolved market.
// Archival is advisory: a failure is logged, never surfaced to the caller.
func (s *ResolutionService) archiveReport(ctx context.Context, m domain.Market) {
	if s.archiver == nil {
		return
	}

	positions, err := s.positions.ListByMarket(ctx, m.ID, domain.ListOpts{})
	if err != nil {
		s.logger.WarnContext(ctx, "resolution_service: list positions for report failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	path, err := s.archiver.ArchiveSettlement(ctx, domain.SettlementReport{
		MarketID:       m.ID,
		GameKey:        m.GameKey,
		Question:       m.Question,
		Outcome:        m.Outcome,
		FinalRawResult: m.FinalRawResult,
		Pools:          m.Pools,
		FeesCollected:  m.FeesCollected,
		Positions:      positions,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "resolution_service: archive settlement report failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.InfoContext(ctx, "resolution_service: settlement report archived",
		slog.String("market_id", m.ID),
		slog.String("path", path),
	)
}
