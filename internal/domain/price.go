package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is a point-in-time price for a symbol, tagged with the provider
// that produced it.
type PriceQuote struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
	Source    string
}

// Candle is a single historical OHLC bar.
type Candle struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// PriceProvider is one upstream price source. Providers declare symbol
// support statically via Supports; the oracle tries supporting providers in
// priority order and treats any GetPrice error as a signal to fall through.
type PriceProvider interface {
	Name() string
	Supports(symbol string) bool
	GetPrice(ctx context.Context, symbol string) (PriceQuote, error)
	IsAvailable(ctx context.Context) bool
}

// HistoricalPriceProvider is implemented by providers that can serve OHLC
// history, used for time-weighted average prices. Interval is a provider
// bar size such as "1m", "5m", "15m", "1h", or "1d".
type HistoricalPriceProvider interface {
	PriceProvider
	HistoricalPrices(ctx context.Context, symbol string, from, to time.Time, interval string) ([]Candle, error)
}

// PriceCache is a short-lived shared cache in front of the providers, so a
// burst of lock/settle operations across markets reuses one upstream fetch.
type PriceCache interface {
	Get(ctx context.Context, symbol string) (PriceQuote, error)
	Set(ctx context.Context, quote PriceQuote) error
}
