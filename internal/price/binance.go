package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/updownhq/updown/internal/domain"
)

// binanceSymbols lists the crypto assets the Binance provider serves. Daily
// variants ("BTC-DAILY") map to the same trading pair as their spot symbol.
var binanceSymbols = map[string]bool{
	"BTC":  true,
	"ETH":  true,
	"SOL":  true,
	"BNB":  true,
	"XRP":  true,
	"DOGE": true,
	"ADA":  true,
}

// BinanceProvider serves crypto spot prices and klines from the Binance
// public REST API.
type BinanceProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewBinanceProvider creates a Binance REST provider.
//
// baseURL is the API root, e.g. "https://api.binance.com"; timeout bounds
// each request.
func NewBinanceProvider(baseURL string, timeout time.Duration) *BinanceProvider {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &BinanceProvider{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (b *BinanceProvider) Name() string { return "binance" }

// Supports reports whether the symbol maps to a Binance trading pair.
func (b *BinanceProvider) Supports(symbol string) bool {
	return binanceSymbols[baseAsset(symbol)]
}

// GetPrice returns the current spot price for a supported symbol.
func (b *BinanceProvider) GetPrice(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	params := url.Values{}
	params.Set("symbol", toBinancePair(symbol))

	body, err := b.doGet(ctx, "/api/v3/ticker/price?"+params.Encode())
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("binance: get price %s: %w", symbol, err)
	}

	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("binance: decode ticker: %w", err)
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("binance: parse price %q: %w", ticker.Price, err)
	}

	return domain.PriceQuote{
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now().UTC(),
		Source:    b.Name(),
	}, nil
}

// HistoricalPrices returns OHLC bars for the symbol between from and to.
// interval is a Binance kline interval such as "1m", "5m", "15m", "1h" or "1d".
func (b *BinanceProvider) HistoricalPrices(ctx context.Context, symbol string, from, to time.Time, interval string) ([]domain.Candle, error) {
	params := url.Values{}
	params.Set("symbol", toBinancePair(symbol))
	params.Set("interval", interval)
	params.Set("startTime", fmt.Sprintf("%d", from.UnixMilli()))
	params.Set("endTime", fmt.Sprintf("%d", to.UnixMilli()))
	params.Set("limit", "1000")

	body, err := b.doGet(ctx, "/api/v3/klines?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("binance: get klines %s: %w", symbol, err)
	}

	// Klines arrive as positional arrays:
	// [openTime, open, high, low, close, volume, closeTime, ...]
	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("binance: decode klines: %w", err)
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		var openMs int64
		if err := json.Unmarshal(k[0], &openMs); err != nil {
			return nil, fmt.Errorf("binance: decode kline open time: %w", err)
		}
		c := domain.Candle{Time: time.UnixMilli(openMs).UTC()}
		for i, dst := range []*decimal.Decimal{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
			var s string
			if err := json.Unmarshal(k[i+1], &s); err != nil {
				return nil, fmt.Errorf("binance: decode kline field: %w", err)
			}
			d, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("binance: parse kline field %q: %w", s, err)
			}
			*dst = d
		}
		candles = append(candles, c)
	}

	return candles, nil
}

// IsAvailable pings the exchange.
func (b *BinanceProvider) IsAvailable(ctx context.Context) bool {
	_, err := b.doGet(ctx, "/api/v3/ping")
	return err == nil
}

func (b *BinanceProvider) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	return body, nil
}

// baseAsset strips the market-type suffix ("BTC-DAILY" -> "BTC").
func baseAsset(symbol string) string {
	base, _, _ := strings.Cut(strings.ToUpper(symbol), "-")
	return base
}

// toBinancePair maps an engine symbol to its USDT trading pair.
func toBinancePair(symbol string) string {
	return baseAsset(symbol) + "USDT"
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Compile-time interface check.
var _ domain.HistoricalPriceProvider = (*BinanceProvider)(nil)
