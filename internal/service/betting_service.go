// Package service implements the settlement accounting engine: betting,
// resolution, claims, and fee collection against the store, escrow, and
// oracle collaborators. Every public operation is atomic per market or per
// position: it either fully applies its state mutations and the associated
// escrow transfer, or leaves everything untouched.
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

// lockTTL bounds how long an aggregate lock may be held by a crashed
// process before it expires.
const lockTTL = 10 * time.Second

// BettingService accepts stakes into a market's outcome pools.
type BettingService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	ledger    domain.BetLedger
	escrow    domain.Escrow
	locks     domain.LockManager
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger

	clock func() time.Time
}

// NewBettingService creates a BettingService with all required dependencies.
func NewBettingService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	ledger domain.BetLedger,
	escrow domain.Escrow,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *BettingService {
	return &BettingService{
		markets:   markets,
		positions: positions,
		ledger:    ledger,
		escrow:    escrow,
		locks:     locks,
		bus:       bus,
		audit:     audit,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// PlaceBet stakes amount on the given outcome for user. The gross amount is
// split into a net stake (credited to the pool and the user's position) and
// a protocol fee (credited to the market's fee accumulator); the full gross
// amount moves user -> escrow. The market mutation, position mutation, and
// transfer apply all-or-nothing.
func (s *BettingService) PlaceBet(ctx context.Context, marketID, user string, outcome domain.Outcome, amount uint64) (domain.Position, error) {
	if amount == 0 {
		return domain.Position{}, domain.ErrInvalidAmount
	}
	if !outcome.Valid() {
		return domain.Position{}, domain.ErrInvalidOutcome
	}

	unlock, err := s.locks.Acquire(ctx, marketID, lockTTL)
	if err != nil {
		return domain.Position{}, fmt.Errorf("betting_service: lock market %s: %w", marketID, err)
	}
	defer unlock()

	now := s.clock()

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("betting_service: get market %q: %w", marketID, err)
	}

	pos, err := s.positions.Get(ctx, marketID, user)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Position{}, fmt.Errorf("betting_service: get position %s/%s: %w", marketID, user, err)
		}
		pos = domain.NewPosition(marketID, user, now)
	}

	net, fee, err := domain.NetAndFee(amount, m.FeeBps)
	if err != nil {
		return domain.Position{}, fmt.Errorf("betting_service: split fee: %w", err)
	}

	if err := m.AcceptBet(outcome, net, fee, now); err != nil {
		return domain.Position{}, fmt.Errorf("betting_service: accept bet on %s: %w", marketID, err)
	}
	if err := pos.AddStake(outcome, net); err != nil {
		return domain.Position{}, fmt.Errorf("betting_service: add stake: %w", err)
	}
	m.UpdatedAt = now
	pos.UpdatedAt = now

	// Move the gross stake into escrow before the bookkeeping is persisted.
	// If persistence then fails, the transfer is compensated, so no state in
	// which escrow holds unaccounted value is ever visible.
	escrowAcct := domain.EscrowAccount(m.ID)
	if err := s.escrow.Transfer(ctx, user, escrowAcct, amount); err != nil {
		return domain.Position{}, fmt.Errorf("betting_service: transfer stake to escrow: %w", err)
	}

	if err := s.ledger.ApplyBet(ctx, m, pos); err != nil {
		if refundErr := s.escrow.Transfer(ctx, escrowAcct, user, amount); refundErr != nil {
			s.logger.ErrorContext(ctx, "betting_service: stake refund after failed bet write",
				slog.String("market_id", marketID),
				slog.String("user", user),
				slog.Uint64("amount", amount),
				slog.String("error", refundErr.Error()),
			)
		}
		return domain.Position{}, fmt.Errorf("betting_service: apply bet: %w", err)
	}

	s.publish(ctx, "bets", map[string]any{
		"event":     "bet_placed",
		"market_id": marketID,
		"user":      user,
		"outcome":   string(outcome),
		"net":       net,
		"fee":       fee,
	})

	if auditErr := s.audit.Log(ctx, "bet_placed", map[string]any{
		"market_id": marketID,
		"user":      user,
		"outcome":   string(outcome),
		"amount":    amount,
		"net":       net,
		"fee":       fee,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "betting_service: audit log failed",
			slog.String("market_id", marketID),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "betting_service: bet placed",
		slog.String("market_id", marketID),
		slog.String("user", user),
		slog.String("outcome", string(outcome)),
		slog.Uint64("net", net),
		slog.Uint64("fee", fee),
	)

	return pos, nil
}

// GetPosition returns the stake ledger for (marketID, user).
func (s *BettingService) GetPosition(ctx context.Context, marketID, user string) (domain.Position, error) {
	pos, err := s.positions.Get(ctx, marketID, user)
	if err != nil {
		return domain.Position{}, fmt.Errorf("betting_service: get position %s/%s: %w", marketID, user, err)
	}
	return pos, nil
}

func (s *BettingService) publish(ctx context.Context, channel string, payload map[string]any) {
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "betting_service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
