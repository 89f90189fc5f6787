// Package price implements the price oracle: a shared cache in front of a
// prioritized chain of upstream providers, with a last-known-price buffer and
// an optional deterministic mock as terminal fallbacks.
package price

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/updownhq/updown/internal/domain"
)

// Oracle resolves spot prices for market symbols. Resolution order:
//
//  1. the shared short-TTL cache (skipped when no cache is configured)
//  2. each provider that Supports the symbol, in registration order
//  3. the in-memory last-known price from a previous successful fetch
//  4. the deterministic mock, when enabled
//
// A provider error is logged and falls through to the next source.
type Oracle struct {
	providers []domain.PriceProvider
	cache     domain.PriceCache
	mock      domain.PriceProvider
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.RWMutex
	lastKnown map[string]domain.PriceQuote
}

// NewOracle creates an Oracle over the given provider chain. cache may be
// nil; mock may be nil to disable the terminal fallback.
func NewOracle(providers []domain.PriceProvider, cache domain.PriceCache, mock domain.PriceProvider, timeout time.Duration, logger *slog.Logger) *Oracle {
	return &Oracle{
		providers: providers,
		cache:     cache,
		mock:      mock,
		timeout:   timeout,
		logger:    logger.With(slog.String("component", "price_oracle")),
		now:       time.Now,
		lastKnown: make(map[string]domain.PriceQuote),
	}
}

// GetCurrentPrice returns the current price for symbol.
func (o *Oracle) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	quote, err := o.GetQuote(ctx, symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return quote.Price, nil
}

// GetQuote returns the current quote for symbol, including its source.
func (o *Oracle) GetQuote(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	// Daily variants share their base asset's price, so "BTC-DAILY" reuses
	// a cached "BTC" quote.
	key := baseAsset(symbol)

	if o.cache != nil {
		quote, err := o.cache.Get(ctx, key)
		if err == nil {
			quote.Symbol = symbol
			return quote, nil
		}
	}

	for _, p := range o.providers {
		if !p.Supports(symbol) {
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, o.timeout)
		quote, err := p.GetPrice(pctx, symbol)
		cancel()
		if err != nil {
			o.logger.WarnContext(ctx, "provider fetch failed",
				slog.String("provider", p.Name()),
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			continue
		}

		o.remember(quote)
		if o.cache != nil {
			cached := quote
			cached.Symbol = key
			if err := o.cache.Set(ctx, cached); err != nil {
				o.logger.WarnContext(ctx, "cache update failed",
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
			}
		}
		return quote, nil
	}

	o.mu.RLock()
	last, ok := o.lastKnown[key]
	o.mu.RUnlock()
	if ok {
		o.logger.WarnContext(ctx, "serving last known price",
			slog.String("symbol", symbol),
			slog.Time("as_of", last.Timestamp),
		)
		last.Symbol = symbol
		return last, nil
	}

	if o.mock != nil {
		return o.mock.GetPrice(ctx, symbol)
	}

	return domain.PriceQuote{}, fmt.Errorf("price: %w: %s", domain.ErrPriceUnavailable, symbol)
}

// GetTWAP returns the time-weighted average of closing prices over the window
// ending now. It falls back to the spot price when no provider can serve
// history for the symbol or the window yields no bars.
func (o *Oracle) GetTWAP(ctx context.Context, symbol string, window time.Duration, interval string) (decimal.Decimal, error) {
	to := o.now().UTC()
	from := to.Add(-window)

	for _, p := range o.providers {
		hp, ok := p.(domain.HistoricalPriceProvider)
		if !ok || !hp.Supports(symbol) {
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, o.timeout)
		candles, err := hp.HistoricalPrices(pctx, symbol, from, to, interval)
		cancel()
		if err != nil {
			o.logger.WarnContext(ctx, "historical fetch failed",
				slog.String("provider", p.Name()),
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(candles) == 0 {
			continue
		}

		sum := decimal.Zero
		for _, c := range candles {
			sum = sum.Add(c.Close)
		}
		return sum.Div(decimal.NewFromInt(int64(len(candles)))), nil
	}

	return o.GetCurrentPrice(ctx, symbol)
}

// WarmCache pushes an externally sourced quote (for example from the
// exchange websocket feed) into the shared cache and last-known buffer.
func (o *Oracle) WarmCache(ctx context.Context, quote domain.PriceQuote) {
	o.remember(quote)
	if o.cache == nil {
		return
	}
	if err := o.cache.Set(ctx, quote); err != nil {
		o.logger.WarnContext(ctx, "cache warm failed",
			slog.String("symbol", quote.Symbol),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Oracle) remember(quote domain.PriceQuote) {
	o.mu.Lock()
	o.lastKnown[baseAsset(quote.Symbol)] = quote
	o.mu.Unlock()
}
