package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/updownhq/updown/internal/domain"
	"github.com/updownhq/updown/internal/store/memory"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubPrices serves scripted prices per symbol.
type stubPrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
}

func newStubPrices() *stubPrices {
	return &stubPrices{prices: make(map[string]decimal.Decimal)}
}

func (p *stubPrices) set(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	p.prices[symbol] = price
	p.mu.Unlock()
}

func (p *stubPrices) GetCurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return decimal.Decimal{}, p.err
	}
	price, ok := p.prices[symbol]
	if !ok {
		return decimal.Decimal{}, domain.ErrPriceUnavailable
	}
	return price, nil
}

// recordingBus captures published events in order.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

func (b *recordingBus) ofType(t domain.EventType) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, e := range b.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// fixture wires the services over the in-memory store with a fake clock and
// scripted prices.
type fixture struct {
	store  *memory.Store
	clock  *fakeClock
	prices *stubPrices
	bus    *recordingBus

	markets    *MarketService
	users      *UserService
	bets       *BetService
	rounds     *RoundService
	settlement *SettlementService
	scheduler  *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	prices := newStubPrices()
	bus := &recordingBus{}

	timing := Timing{
		RoundDuration:         15 * time.Minute,
		LockWindow:            3 * time.Minute,
		DailyBettingCloseHour: 23,
		DailySettleHour:       9,
		Location:              time.UTC,
	}

	rounds := NewRoundService(store, prices, bus, clock, timing, logger)
	settlement := NewSettlementService(store, prices, bus, clock, logger)

	return &fixture{
		store:      store,
		clock:      clock,
		prices:     prices,
		bus:        bus,
		markets:    NewMarketService(store, bus, logger),
		users:      NewUserService(store, logger),
		bets:       NewBetService(store, bus, clock, logger),
		rounds:     rounds,
		settlement: settlement,
		scheduler:  NewScheduler(store, rounds, settlement, clock, 10*time.Second, logger),
	}
}

func (f *fixture) createMarket(t *testing.T, symbol string, marketType domain.MarketType) domain.Market {
	t.Helper()
	market, err := f.markets.CreateMarket(context.Background(), CreateMarketParams{
		Symbol:   symbol,
		Name:     symbol + " up/down",
		Category: domain.AssetCrypto,
		Type:     marketType,
		MinBet:   decimal.NewFromInt(1),
		MaxBet:   decimal.NewFromInt(10000),
		FeeRate:  decimal.RequireFromString("0.03"),
	})
	require.NoError(t, err)
	return market
}

func (f *fixture) createUser(t *testing.T, wallet string, balance int64) domain.User {
	t.Helper()
	user, err := f.users.Register(context.Background(), wallet, decimal.NewFromInt(balance))
	require.NoError(t, err)
	return user
}

func (f *fixture) openRound(t *testing.T, market domain.Market, startPrice string) domain.Round {
	t.Helper()
	f.prices.set(market.Symbol, decimal.RequireFromString(startPrice))
	round, err := f.rounds.CreateNext(context.Background(), market)
	require.NoError(t, err)
	return round
}

// wallet addresses used across the service tests.
const (
	walletAlice = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
	walletBob   = "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045"
	walletCarol = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
)
