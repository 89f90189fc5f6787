// Package memory implements the domain store interfaces with in-process
// maps. It backs tests and the standalone development mode; transactions are
// serialized by a single mutex and rolled back by snapshotting state, which
// also gives the memory store the same locking semantics the postgres store
// gets from row-level write locks.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/updownhq/updown/internal/domain"
)

type state struct {
	markets map[string]domain.Market
	rounds  map[string]domain.Round
	bets    map[string]domain.Bet
	users   map[string]domain.User
}

func newState() *state {
	return &state{
		markets: make(map[string]domain.Market),
		rounds:  make(map[string]domain.Round),
		bets:    make(map[string]domain.Bet),
		users:   make(map[string]domain.User),
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.markets {
		c.markets[k] = v
	}
	for k, v := range st.rounds {
		c.rounds[k] = v
	}
	for k, v := range st.bets {
		c.bets[k] = v
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	return c
}

// Store implements domain.Store in memory.
type Store struct {
	mu   sync.Mutex
	data *state
	now  func() time.Time
	inTx bool
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{data: newState(), now: time.Now}
}

func (s *Store) Markets() domain.MarketStore { return &marketStore{s: s} }
func (s *Store) Rounds() domain.RoundStore   { return &roundStore{s: s} }
func (s *Store) Bets() domain.BetStore       { return &betStore{s: s} }
func (s *Store) Users() domain.UserStore     { return &userStore{s: s} }

// InTx runs fn against a scratch copy of the state under the store mutex.
// The copy replaces the live state only when fn succeeds, so a failing fn
// observes full rollback. Holding the mutex for the whole transaction
// serializes concurrent callers the way row locks do in postgres.
func (s *Store) InTx(ctx context.Context, fn func(domain.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := &Store{data: s.data.clone(), now: s.now, inTx: true}
	if err := fn(work); err != nil {
		return err
	}
	s.data = work.data
	return nil
}

// lock acquires the store mutex. Inside a transaction the scratch store is
// private to the caller and the parent mutex is already held, so sub-store
// operations run lock-free.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// --- markets ---

type marketStore struct{ s *Store }

func (m *marketStore) Create(_ context.Context, mk domain.Market) error {
	defer m.s.lock()()
	for _, existing := range m.s.data.markets {
		if existing.Symbol == strings.ToUpper(mk.Symbol) {
			return domain.ErrAlreadyExists
		}
	}
	mk.Symbol = strings.ToUpper(mk.Symbol)
	mk.CreatedAt = m.s.now()
	mk.UpdatedAt = mk.CreatedAt
	m.s.data.markets[mk.ID] = mk
	return nil
}

func (m *marketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	defer m.s.lock()()
	mk, ok := m.s.data.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return mk, nil
}

func (m *marketStore) GetBySymbol(_ context.Context, symbol string) (domain.Market, error) {
	defer m.s.lock()()
	symbol = strings.ToUpper(symbol)
	for _, mk := range m.s.data.markets {
		if mk.Symbol == symbol {
			return mk, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (m *marketStore) ListActive(_ context.Context) ([]domain.Market, error) {
	defer m.s.lock()()
	var markets []domain.Market
	for _, mk := range m.s.data.markets {
		if mk.Active {
			markets = append(markets, mk)
		}
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].Symbol < markets[j].Symbol })
	return markets, nil
}

// --- rounds ---

type roundStore struct{ s *Store }

func (r *roundStore) Create(_ context.Context, rd domain.Round) error {
	defer r.s.lock()()
	for _, existing := range r.s.data.rounds {
		if existing.MarketID == rd.MarketID && existing.Number == rd.Number {
			return domain.ErrAlreadyExists
		}
	}
	rd.CreatedAt = r.s.now()
	r.s.data.rounds[rd.ID] = rd
	return nil
}

func (r *roundStore) Update(_ context.Context, rd domain.Round) error {
	defer r.s.lock()()
	if _, ok := r.s.data.rounds[rd.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.data.rounds[rd.ID] = rd
	return nil
}

func (r *roundStore) GetByID(_ context.Context, id string) (domain.Round, error) {
	defer r.s.lock()()
	rd, ok := r.s.data.rounds[id]
	if !ok {
		return domain.Round{}, domain.ErrNotFound
	}
	return rd, nil
}

func (r *roundStore) GetForUpdate(ctx context.Context, id string) (domain.Round, error) {
	return r.GetByID(ctx, id)
}

func (r *roundStore) CurrentRound(_ context.Context, marketID string) (domain.Round, error) {
	defer r.s.lock()()
	var (
		best  domain.Round
		found bool
	)
	for _, rd := range r.s.data.rounds {
		if rd.MarketID == marketID && rd.Current() && (!found || rd.Number > best.Number) {
			best = rd
			found = true
		}
	}
	if !found {
		return domain.Round{}, domain.ErrNotFound
	}
	return best, nil
}

func (r *roundStore) LastNumber(_ context.Context, marketID string) (int64, error) {
	defer r.s.lock()()
	var last int64
	for _, rd := range r.s.data.rounds {
		if rd.MarketID == marketID && rd.Number > last {
			last = rd.Number
		}
	}
	return last, nil
}

func (r *roundStore) ListToLock(_ context.Context, now time.Time) ([]domain.Round, error) {
	defer r.s.lock()()
	var rounds []domain.Round
	for _, rd := range r.s.data.rounds {
		if rd.Status == domain.RoundStatusOpen && !rd.BettingEndsAt.After(now) {
			rounds = append(rounds, rd)
		}
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].BettingEndsAt.Before(rounds[j].BettingEndsAt) })
	return rounds, nil
}

func (r *roundStore) ListToSettle(_ context.Context, now time.Time) ([]domain.Round, error) {
	defer r.s.lock()()
	var rounds []domain.Round
	for _, rd := range r.s.data.rounds {
		if rd.Status == domain.RoundStatusLocked && !rd.SettlesAt.After(now) {
			rounds = append(rounds, rd)
		}
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].SettlesAt.Before(rounds[j].SettlesAt) })
	return rounds, nil
}

func (r *roundStore) ListByMarket(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.Round, error) {
	defer r.s.lock()()
	var rounds []domain.Round
	for _, rd := range r.s.data.rounds {
		if rd.MarketID == marketID {
			rounds = append(rounds, rd)
		}
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].Number > rounds[j].Number })
	return paginate(rounds, opts.Limit, opts.Offset, 10), nil
}

func (r *roundStore) ListSettledBefore(_ context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.Round, error) {
	defer r.s.lock()()
	var rounds []domain.Round
	for _, rd := range r.s.data.rounds {
		if rd.Status == domain.RoundStatusSettled && rd.SettledAt != nil && rd.SettledAt.Before(cutoff) {
			rounds = append(rounds, rd)
		}
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].SettledAt.Before(*rounds[j].SettledAt) })
	return paginate(rounds, opts.Limit, opts.Offset, 500), nil
}

// --- bets ---

type betStore struct{ s *Store }

func (b *betStore) Create(_ context.Context, bt domain.Bet) error {
	defer b.s.lock()()
	for _, existing := range b.s.data.bets {
		if existing.UserID == bt.UserID && existing.RoundID == bt.RoundID {
			return domain.ErrDuplicateBet
		}
	}
	bt.CreatedAt = b.s.now()
	b.s.data.bets[bt.ID] = bt
	return nil
}

func (b *betStore) Update(_ context.Context, bt domain.Bet) error {
	defer b.s.lock()()
	if _, ok := b.s.data.bets[bt.ID]; !ok {
		return domain.ErrNotFound
	}
	b.s.data.bets[bt.ID] = bt
	return nil
}

func (b *betStore) GetByID(_ context.Context, id string) (domain.Bet, error) {
	defer b.s.lock()()
	bt, ok := b.s.data.bets[id]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return bt, nil
}

func (b *betStore) GetByUserAndRound(_ context.Context, userID, roundID string) (domain.Bet, error) {
	defer b.s.lock()()
	for _, bt := range b.s.data.bets {
		if bt.UserID == userID && bt.RoundID == roundID {
			return bt, nil
		}
	}
	return domain.Bet{}, domain.ErrNotFound
}

func (b *betStore) ListPendingByRound(_ context.Context, roundID string) ([]domain.Bet, error) {
	defer b.s.lock()()
	var bets []domain.Bet
	for _, bt := range b.s.data.bets {
		if bt.RoundID == roundID && bt.Status == domain.BetStatusPending {
			bets = append(bets, bt)
		}
	}
	sortByCreated(bets)
	return bets, nil
}

func (b *betStore) ListByRound(_ context.Context, roundID string) ([]domain.Bet, error) {
	defer b.s.lock()()
	var bets []domain.Bet
	for _, bt := range b.s.data.bets {
		if bt.RoundID == roundID {
			bets = append(bets, bt)
		}
	}
	sortByCreated(bets)
	return bets, nil
}

func (b *betStore) ListByUser(_ context.Context, userID string, opts domain.BetListOpts) ([]domain.Bet, error) {
	defer b.s.lock()()
	var bets []domain.Bet
	for _, bt := range b.s.data.bets {
		if bt.UserID != userID {
			continue
		}
		if opts.Status != "" && bt.Status != opts.Status {
			continue
		}
		bets = append(bets, bt)
	}
	sort.Slice(bets, func(i, j int) bool { return bets[i].CreatedAt.After(bets[j].CreatedAt) })
	return paginate(bets, opts.Limit, opts.Offset, 20), nil
}

// --- users ---

type userStore struct{ s *Store }

func (u *userStore) Create(_ context.Context, usr domain.User) error {
	defer u.s.lock()()
	for _, existing := range u.s.data.users {
		if existing.WalletAddress == usr.WalletAddress {
			return domain.ErrAlreadyExists
		}
	}
	usr.CreatedAt = u.s.now()
	usr.UpdatedAt = usr.CreatedAt
	u.s.data.users[usr.ID] = usr
	return nil
}

func (u *userStore) GetByID(_ context.Context, id string) (domain.User, error) {
	defer u.s.lock()()
	usr, ok := u.s.data.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return usr, nil
}

func (u *userStore) GetForUpdate(ctx context.Context, id string) (domain.User, error) {
	return u.GetByID(ctx, id)
}

func (u *userStore) UpdateBalance(_ context.Context, id string, balance decimal.Decimal) error {
	defer u.s.lock()()
	usr, ok := u.s.data.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	usr.Balance = balance
	usr.UpdatedAt = u.s.now()
	u.s.data.users[id] = usr
	return nil
}

func (u *userStore) UpdateStatus(_ context.Context, id string, status domain.UserStatus) error {
	defer u.s.lock()()
	usr, ok := u.s.data.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	usr.Status = status
	usr.UpdatedAt = u.s.now()
	u.s.data.users[id] = usr
	return nil
}

// --- helpers ---

func sortByCreated(bets []domain.Bet) {
	sort.Slice(bets, func(i, j int) bool { return bets[i].CreatedAt.Before(bets[j].CreatedAt) })
}

func paginate[T any](items []T, limit, offset, defaultLimit int) []T {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// Compile-time interface check.
var _ domain.Store = (*Store)(nil)
