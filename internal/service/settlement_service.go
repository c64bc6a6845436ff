package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pitchside/parimutuel/internal/domain"
)

// SettlementService pays winners their pari-mutuel share and lets the
// market authority withdraw accumulated fees. Both operations preserve the
// escrow invariant: the escrowed balance always equals the sum of all
// outstanding pools plus uncollected fees.
type SettlementService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	escrow    domain.Escrow
	locks     domain.LockManager
	cache     domain.MarketCache
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger

	clock func() time.Time
}

// NewSettlementService creates a SettlementService with all required
// dependencies.
func NewSettlementService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	escrow domain.Escrow,
	locks domain.LockManager,
	cache domain.MarketCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		markets:   markets,
		positions: positions,
		escrow:    escrow,
		locks:     locks,
		cache:     cache,
		bus:       bus,
		audit:     audit,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Claim pays user their share of a resolved market and zeroes the claimed
// stake, so a second call always fails with domain.ErrNoWinningsToClaim.
//
// If nobody bet on the winning outcome the market is void: the user is
// refunded their full net stake across all outcomes instead, so no value is
// trapped in escrow. Fees already collected are retained.
func (s *SettlementService) Claim(ctx context.Context, marketID, user string) (uint64, error) {
	unlock, err := s.locks.Acquire(ctx, domain.PositionID(marketID, user), lockTTL)
	if err != nil {
		return 0, fmt.Errorf("settlement_service: lock position %s/%s: %w", marketID, user, err)
	}
	defer unlock()

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("settlement_service: get market %q: %w", marketID, err)
	}
	if !m.Resolved {
		return 0, domain.ErrMarketNotResolved
	}

	pos, err := s.positions.Get(ctx, marketID, user)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, domain.ErrNoWinningsToClaim
		}
		return 0, fmt.Errorf("settlement_service: get position %s/%s: %w", marketID, user, err)
	}

	var paid uint64
	event := "winnings_claimed"
	if m.WinningPool() == 0 {
		// Void market: nobody bet on the actual winner.
		paid, err = pos.TotalStaked()
		if err != nil {
			return 0, fmt.Errorf("settlement_service: sum stakes: %w", err)
		}
		if paid == 0 {
			return 0, domain.ErrNoWinningsToClaim
		}
		pos.Stakes = domain.OutcomeAmounts{}
		event = "stakes_refunded"
	} else {
		total, err := m.TotalPool()
		if err != nil {
			return 0, fmt.Errorf("settlement_service: total pool: %w", err)
		}
		paid, err = domain.Payout(pos.Stakes.Get(m.Outcome), m.WinningPool(), total)
		if err != nil {
			return 0, fmt.Errorf("settlement_service: compute payout: %w", err)
		}
		pos.Stakes.Zero(m.Outcome)
	}
	pos.UpdatedAt = s.clock()

	// Pay out first, then persist the zeroed stake. If persistence fails
	// the payout is compensated, so either both effects land or neither.
	escrowAcct := domain.EscrowAccount(m.ID)
	if err := s.escrow.Transfer(ctx, escrowAcct, user, paid); err != nil {
		return 0, fmt.Errorf("settlement_service: transfer payout: %w", err)
	}

	if err := s.positions.Upsert(ctx, pos); err != nil {
		if clawErr := s.escrow.Transfer(ctx, user, escrowAcct, paid); clawErr != nil {
			s.logger.ErrorContext(ctx, "settlement_service: payout clawback after failed position write",
				slog.String("market_id", marketID),
				slog.String("user", user),
				slog.Uint64("amount", paid),
				slog.String("error", clawErr.Error()),
			)
		}
		return 0, fmt.Errorf("settlement_service: persist claimed position: %w", err)
	}

	s.publish(ctx, "settlements", map[string]any{
		"event":     event,
		"market_id": marketID,
		"user":      user,
		"amount":    paid,
	})

	if auditErr := s.audit.Log(ctx, event, map[string]any{
		"market_id": marketID,
		"user":      user,
		"amount":    paid,
		"outcome":   string(m.Outcome),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "settlement_service: audit log failed",
			slog.String("market_id", marketID),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "settlement_service: claim paid",
		slog.String("market_id", marketID),
		slog.String("user", user),
		slog.Uint64("amount", paid),
	)

	return paid, nil
}

// CollectFees transfers the full accumulated fee balance from escrow to
// receiver and resets the accumulator. Only the market's recorded authority
// may collect; partial collection is not supported.
func (s *SettlementService) CollectFees(ctx context.Context, marketID, caller, receiver string) (uint64, error) {
	unlock, err := s.locks.Acquire(ctx, marketID, lockTTL)
	if err != nil {
		return 0, fmt.Errorf("settlement_service: lock market %s: %w", marketID, err)
	}
	defer unlock()

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("settlement_service: get market %q: %w", marketID, err)
	}
	if caller != m.Authority {
		return 0, domain.ErrUnauthorizedFeeCollector
	}
	if m.FeesCollected == 0 {
		return 0, domain.ErrNoFeesToCollect
	}

	// The receiver must be denominated in the market's escrow asset.
	asset, err := s.escrow.Asset(ctx, receiver)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, domain.ErrInvalidReceiver
		}
		return 0, fmt.Errorf("settlement_service: receiver asset: %w", err)
	}
	if asset != m.Asset {
		return 0, domain.ErrInvalidReceiver
	}

	fees := m.FeesCollected
	m.FeesCollected = 0
	m.UpdatedAt = s.clock()

	escrowAcct := domain.EscrowAccount(m.ID)
	if err := s.escrow.Transfer(ctx, escrowAcct, receiver, fees); err != nil {
		return 0, fmt.Errorf("settlement_service: transfer fees: %w", err)
	}

	if err := s.markets.Update(ctx, m); err != nil {
		if clawErr := s.escrow.Transfer(ctx, receiver, escrowAcct, fees); clawErr != nil {
			s.logger.ErrorContext(ctx, "settlement_service: fee clawback after failed market write",
				slog.String("market_id", marketID),
				slog.Uint64("amount", fees),
				slog.String("error", clawErr.Error()),
			)
		}
		return 0, fmt.Errorf("settlement_service: persist fee reset: %w", err)
	}

	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	s.publish(ctx, "settlements", map[string]any{
		"event":     "fees_collected",
		"market_id": marketID,
		"receiver":  receiver,
		"amount":    fees,
	})

	if auditErr := s.audit.Log(ctx, "fees_collected", map[string]any{
		"market_id": marketID,
		"receiver":  receiver,
		"amount":    fees,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "settlement_service: audit log failed",
			slog.String("market_id", marketID),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "settlement_service: fees collected",
		slog.String("market_id", marketID),
		slog.String("receiver", receiver),
		slog.Uint64("amount", fees),
	)

	return fees, nil
}

func (s *SettlementService) publish(ctx context.Context, channel string, payload map[string]any) {
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
