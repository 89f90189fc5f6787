package price

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updownhq/updown/internal/domain"
)

// fakeProvider is a scripted provider for chain tests.
type fakeProvider struct {
	name     string
	supports map[string]bool
	price    decimal.Decimal
	err      error
	calls    int
}

func (p *fakeProvider) Name() string                     { return p.name }
func (p *fakeProvider) Supports(symbol string) bool      { return p.supports[symbol] }
func (p *fakeProvider) IsAvailable(context.Context) bool { return p.err == nil }
func (p *fakeProvider) GetPrice(_ context.Context, symbol string) (domain.PriceQuote, error) {
	p.calls++
	if p.err != nil {
		return domain.PriceQuote{}, p.err
	}
	return domain.PriceQuote{
		Symbol:    symbol,
		Price:     p.price,
		Timestamp: time.Now().UTC(),
		Source:    p.name,
	}, nil
}

// mapCache is an in-memory domain.PriceCache.
type mapCache struct {
	mu     sync.Mutex
	quotes map[string]domain.PriceQuote
}

func newMapCache() *mapCache {
	return &mapCache{quotes: make(map[string]domain.PriceQuote)}
}

func (c *mapCache) Get(_ context.Context, symbol string) (domain.PriceQuote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	quote, ok := c.quotes[symbol]
	if !ok {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	return quote, nil
}

func (c *mapCache) Set(_ context.Context, quote domain.PriceQuote) error {
	c.mu.Lock()
	c.quotes[quote.Symbol] = quote
	c.mu.Unlock()
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOracle_ProviderPriorityOrder(t *testing.T) {
	primary := &fakeProvider{name: "primary", supports: map[string]bool{"BTC": true}, price: decimal.NewFromInt(65000)}
	fallback := &fakeProvider{name: "fallback", supports: map[string]bool{"BTC": true}, price: decimal.NewFromInt(64999)}

	o := NewOracle([]domain.PriceProvider{primary, fallback}, nil, nil, time.Second, testLogger())

	got, err := o.GetCurrentPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(65000)))
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)
}

func TestOracle_FallsThroughOnProviderError(t *testing.T) {
	broken := &fakeProvider{name: "broken", supports: map[string]bool{"BTC": true}, err: errors.New("boom")}
	healthy := &fakeProvider{name: "healthy", supports: map[string]bool{"BTC": true}, price: decimal.NewFromInt(64999)}

	o := NewOracle([]domain.PriceProvider{broken, healthy}, nil, nil, time.Second, testLogger())

	got, err := o.GetCurrentPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(64999)))
	assert.Equal(t, 1, broken.calls)
}

func TestOracle_SkipsUnsupportingProviders(t *testing.T) {
	cryptoOnly := &fakeProvider{name: "crypto", supports: map[string]bool{"BTC": true}, price: decimal.NewFromInt(65000)}
	equities := &fakeProvider{name: "equities", supports: map[string]bool{"SPX": true}, price: decimal.NewFromInt(5400)}

	o := NewOracle([]domain.PriceProvider{cryptoOnly, equities}, nil, nil, time.Second, testLogger())

	got, err := o.GetCurrentPrice(context.Background(), "SPX")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(5400)))
	assert.Equal(t, 0, cryptoOnly.calls)
}

func TestOracle_CacheHitSkipsProviders(t *testing.T) {
	provider := &fakeProvider{name: "p", supports: map[string]bool{"BTC": true}, price: decimal.NewFromInt(65000)}
	cache := newMapCache()

	o := NewOracle([]domain.PriceProvider{provider}, cache, nil, time.Second, testLogger())

	// First call fills the cache, second is served from it.
	_, err := o.GetCurrentPrice(context.Background(), "BTC")
	require.NoError(t, err)
	_, err = o.GetCurrentPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
}

func TestOracle_DailySymbolSharesBaseAssetCache(t *testing.T) {
	provider := &fakeProvider{name: "p", supports: map[string]bool{"BTC": true}, price: decimal.NewFromInt(65000)}
	cache := newMapCache()

	o := NewOracle([]domain.PriceProvider{provider}, cache, nil, time.Second, testLogger())

	_, err := o.GetCurrentPrice(context.Background(), "BTC")
	require.NoError(t, err)

	// The daily variant does not support-match any provider here, but the
	// cached base asset quote serves it.
	quote, err := o.GetQuote(context.Background(), "BTC-DAILY")
	require.NoError(t, err)
	assert.Equal(t, "BTC-DAILY", quote.Symbol)
	assert.True(t, quote.Price.Equal(decimal.NewFromInt(65000)))
	assert.Equal(t, 1, provider.calls)
}

func TestOracle_LastKnownPriceOnOutage(t *testing.T) {
	provider := &fakeProvider{name: "p", supports: map[string]bool{"BTC": true}, price: decimal.NewFromInt(65000)}

	o := NewOracle([]domain.PriceProvider{provider}, nil, nil, time.Second, testLogger())

	_, err := o.GetCurrentPrice(context.Background(), "BTC")
	require.NoError(t, err)

	provider.err = errors.New("upstream down")
	got, err := o.GetCurrentPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(65000)))
}

func TestOracle_MockFallbackWhenEnabled(t *testing.T) {
	broken := &fakeProvider{name: "broken", supports: map[string]bool{"BTC": true}, err: errors.New("down")}

	withMock := NewOracle([]domain.PriceProvider{broken}, nil, NewMockProvider(), time.Second, testLogger())
	quote, err := withMock.GetQuote(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "mock", quote.Source)
	assert.True(t, quote.Price.IsPositive())

	withoutMock := NewOracle([]domain.PriceProvider{broken}, nil, nil, time.Second, testLogger())
	_, err = withoutMock.GetCurrentPrice(context.Background(), "BTC")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestOracle_WarmCacheServesFollowingReads(t *testing.T) {
	cache := newMapCache()
	o := NewOracle(nil, cache, nil, time.Second, testLogger())

	o.WarmCache(context.Background(), domain.PriceQuote{
		Symbol:    "ETH",
		Price:     decimal.NewFromInt(3200),
		Timestamp: time.Now().UTC(),
		Source:    "binance_ws",
	})

	got, err := o.GetCurrentPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(3200)))
}

// fakeHistoryProvider records the requested window and serves fixed candles.
type fakeHistoryProvider struct {
	fakeProvider
	candles    []domain.Candle
	histErr    error
	gotFrom    time.Time
	gotTo      time.Time
	gotBarSize string
}

func (p *fakeHistoryProvider) HistoricalPrices(_ context.Context, _ string, from, to time.Time, interval string) ([]domain.Candle, error) {
	p.gotFrom, p.gotTo, p.gotBarSize = from, to, interval
	return p.candles, p.histErr
}

func TestOracle_TWAPAveragesCloses(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	provider := &fakeHistoryProvider{
		fakeProvider: fakeProvider{name: "p", supports: map[string]bool{"BTC": true}},
		candles: []domain.Candle{
			{Close: decimal.NewFromInt(64900)},
			{Close: decimal.NewFromInt(65100)},
			{Close: decimal.NewFromInt(65300)},
		},
	}

	o := NewOracle([]domain.PriceProvider{provider}, nil, nil, time.Second, testLogger())
	o.now = func() time.Time { return at }

	got, err := o.GetTWAP(context.Background(), "BTC", 15*time.Minute, "1m")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(65100)), "twap %s", got)
	assert.Equal(t, at, provider.gotTo)
	assert.Equal(t, at.Add(-15*time.Minute), provider.gotFrom)
	assert.Equal(t, "1m", provider.gotBarSize)
}

func TestOracle_TWAPFallsBackToSpot(t *testing.T) {
	provider := &fakeHistoryProvider{
		fakeProvider: fakeProvider{name: "p", supports: map[string]bool{"BTC": true}, price: decimal.NewFromInt(65000)},
	}

	o := NewOracle([]domain.PriceProvider{provider}, nil, nil, time.Second, testLogger())
	o.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	// No candles in the window: the spot price serves.
	got, err := o.GetTWAP(context.Background(), "BTC", 15*time.Minute, "1m")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(65000)))
}

func TestMockProvider_Deterministic(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := NewMockProvider()
	a.now = func() time.Time { return at }
	b := NewMockProvider()
	b.now = func() time.Time { return at }

	qa, err := a.GetPrice(context.Background(), "BTC")
	require.NoError(t, err)
	qb, err := b.GetPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, qa.Price.Equal(qb.Price))

	// Unknown symbols get a stable synthetic base.
	qu1, err := a.GetPrice(context.Background(), "WIDGET")
	require.NoError(t, err)
	qu2, err := b.GetPrice(context.Background(), "WIDGET")
	require.NoError(t, err)
	assert.True(t, qu1.Price.Equal(qu2.Price))
	assert.True(t, qu1.Price.IsPositive())
}
