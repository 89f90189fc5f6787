package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/updownhq/updown/internal/domain"
)

// yahooTickers maps engine symbols to Yahoo Finance tickers. Crypto symbols
// are included so Yahoo can serve as a fallback when the exchange is down.
var yahooTickers = map[string]string{
	"SPX":    "^GSPC",
	"NDX":    "^NDX",
	"DJI":    "^DJI",
	"KOSPI":  "^KS11",
	"NIKKEI": "^N225",
	"BTC":    "BTC-USD",
	"ETH":    "ETH-USD",
	"SOL":    "SOL-USD",
}

// YahooProvider serves equity-index quotes (and crypto fallbacks) from the
// unauthenticated Yahoo Finance chart API.
type YahooProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewYahooProvider creates a Yahoo Finance provider.
func NewYahooProvider(baseURL string, timeout time.Duration) *YahooProvider {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	return &YahooProvider{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (y *YahooProvider) Name() string { return "yahoo" }

// Supports reports whether the symbol has a known Yahoo ticker.
func (y *YahooProvider) Supports(symbol string) bool {
	_, ok := yahooTickers[baseAsset(symbol)]
	return ok
}

// GetPrice returns the latest regular-market price for the symbol.
func (y *YahooProvider) GetPrice(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	ticker, ok := yahooTickers[baseAsset(symbol)]
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("yahoo: %w: %s", domain.ErrPriceUnavailable, symbol)
	}

	path := "/v8/finance/chart/" + url.PathEscape(ticker) + "?interval=1m&range=1d"
	body, err := y.doGet(ctx, path)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("yahoo: get price %s: %w", symbol, err)
	}

	var chart struct {
		Chart struct {
			Result []struct {
				Meta struct {
					RegularMarketPrice float64 `json:"regularMarketPrice"`
					RegularMarketTime  int64   `json:"regularMarketTime"`
				} `json:"meta"`
			} `json:"result"`
			Error *struct {
				Description string `json:"description"`
			} `json:"error"`
		} `json:"chart"`
	}
	if err := json.Unmarshal(body, &chart); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("yahoo: decode chart: %w", err)
	}
	if chart.Chart.Error != nil {
		return domain.PriceQuote{}, fmt.Errorf("yahoo: %s: %s", symbol, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return domain.PriceQuote{}, fmt.Errorf("yahoo: %w: %s", domain.ErrPriceUnavailable, symbol)
	}

	meta := chart.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return domain.PriceQuote{}, fmt.Errorf("yahoo: %w: %s", domain.ErrPriceUnavailable, symbol)
	}

	return domain.PriceQuote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(meta.RegularMarketPrice),
		Timestamp: time.Unix(meta.RegularMarketTime, 0).UTC(),
		Source:    y.Name(),
	}, nil
}

// IsAvailable probes the chart API with a known ticker.
func (y *YahooProvider) IsAvailable(ctx context.Context) bool {
	_, err := y.doGet(ctx, "/v8/finance/chart/%5EGSPC?interval=1d&range=1d")
	return err == nil
}

func (y *YahooProvider) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	// The chart API rejects requests without a browser-like user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; updown/1.0)")

	resp, err := y.httpClient.Do(req)
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

// Compile-time interface check.
var _ domain.PriceProvider = (*YahooProvider)(nil)
