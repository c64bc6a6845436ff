package service

import (
	"context"
	"sync"
	"time"

	"github.com/pitchside/parimutuel/internal/domain"
)

// In-memory collaborator fakes. They mirror the transactional behavior the
// postgres and redis implementations provide, so the services can be tested
// without infrastructure.

type memMarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

func newMemMarketStore() *memMarketStore {
	return &memMarketStore{markets: make(map[string]domain.Market)}
}

func (s *memMarketStore) Create(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return domain.ErrDuplicateMarket
	}
	s.markets[m.ID] = m
	return nil
}

func (s *memMarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarketStore) Update(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; !ok {
		return domain.ErrNotFound
	}
	s.markets[m.ID] = m
	return nil
}

func (s *memMarketStore) List(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	return out, nil
}

func (s *memMarketStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

type memPositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
	failNext  error // injected fault for the next Upsert
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{positions: make(map[string]domain.Position)}
}

func (s *memPositionStore) Get(_ context.Context, marketID, user string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[domain.PositionID(marketID, user)]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memPositionStore) Upsert(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	s.positions[domain.PositionID(p.MarketID, p.User)] = p
	return nil
}

func (s *memPositionStore) ListByMarket(_ context.Context, marketID string, _ domain.ListOpts) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.MarketID == marketID {
			out = append(out, p)
		}
	}
	return out, nil
}

// memBetLedger applies the joint market+position write against the two
// in-memory stores, all-or-nothing like the postgres transaction.
type memBetLedger struct {
	markets   *memMarketStore
	positions *memPositionStore
	failNext  error
}

func (l *memBetLedger) ApplyBet(ctx context.Context, m domain.Market, p domain.Position) error {
	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return err
	}
	if err := l.markets.Update(ctx, m); err != nil {
		return err
	}
	return l.positions.Upsert(ctx, p)
}

// memEscrow is a single-asset-per-account balance ledger.
type memEscrow struct {
	mu       sync.Mutex
	balances map[string]uint64
	assets   map[string]string
	failNext error
}

func newMemEscrow() *memEscrow {
	return &memEscrow{
		balances: make(map[string]uint64),
		assets:   make(map[string]string),
	}
}

func (e *memEscrow) fund(account, asset string, amount uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assets[account] = asset
	e.balances[account] += amount
}

func (e *memEscrow) Open(_ context.Context, account, asset string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.assets[account]; !ok {
		e.assets[account] = asset
	}
	return nil
}

func (e *memEscrow) Transfer(_ context.Context, from, to string, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failNext != nil {
		err := e.failNext
		e.failNext = nil
		return err
	}
	fromAsset, ok := e.assets[from]
	if !ok {
		return domain.ErrNotFound
	}
	toAsset, ok := e.assets[to]
	if !ok {
		return domain.ErrNotFound
	}
	if fromAsset != toAsset {
		return domain.ErrAssetMismatch
	}
	if e.balances[from] < amount {
		return domain.ErrInsufficientFunds
	}
	e.balances[from] -= amount
	e.balances[to] += amount
	return nil
}

func (e *memEscrow) Balance(_ context.Context, account string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.assets[account]; !ok {
		return 0, domain.ErrNotFound
	}
	return e.balances[account], nil
}

func (e *memEscrow) Asset(_ context.Context, account string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	asset, ok := e.assets[account]
	if !ok {
		return "", domain.ErrNotFound
	}
	return asset, nil
}

// memLocks serializes per key with real mutexes so concurrent test bets
// exercise the same discipline as the Redis lock manager.
type memLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMemLocks() *memLocks {
	return &memLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	km, ok := l.locks[key]
	if !ok {
		km = &sync.Mutex{}
		l.locks[key] = km
	}
	l.mu.Unlock()
	km.Lock()
	return km.Unlock, nil
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (domain.Market, bool, error) {
	return domain.Market{}, false, nil
}
func (nopCache) Set(context.Context, domain.Market) error    { return nil }
func (nopCache) Invalidate(context.Context, string) error    { return nil }

type memBus struct {
	mu       sync.Mutex
	messages []domain.BusMessage
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, domain.BusMessage{Channel: channel, Payload: payload})
	return nil
}

func (b *memBus) Subscribe(context.Context, ...string) (<-chan domain.BusMessage, func(), error) {
	ch := make(chan domain.BusMessage)
	return ch, func() { close(ch) }, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, domain.AuditEntry{Event: event, Detail: detail})
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AuditEntry(nil), a.entries...), nil
}

// stubOracle returns a canned result per feed ID.
type stubOracle struct {
	results map[string]domain.MatchResult
	err     error
}

func (o *stubOracle) Result(_ context.Context, feedID string) (domain.MatchResult, error) {
	if o.err != nil {
		return domain.MatchResult{}, o.err
	}
	res, ok := o.results[feedID]
	if !ok {
		return domain.MatchResult{}, domain.ErrOracleUnavailable
	}
	return res, nil
}

type stubArchiver struct {
	mu      sync.Mutex
	reports []domain.SettlementReport
}

func (a *stubArchiver) ArchiveSettlement(_ context.Context, r domain.SettlementReport) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, r)
	return "reports/" + r.MarketID + ".json", nil
}
