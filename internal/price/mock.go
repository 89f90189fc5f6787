package price

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/updownhq/updown/internal/domain"
)

// mockBasePrices anchors the simulated walk to plausible magnitudes per asset.
var mockBasePrices = map[string]float64{
	"BTC":    65000,
	"ETH":    3200,
	"SOL":    150,
	"BNB":    580,
	"XRP":    0.55,
	"DOGE":   0.12,
	"ADA":    0.45,
	"SPX":    5400,
	"NDX":    19000,
	"DJI":    39000,
	"KOSPI":  2700,
	"NIKKEI": 38500,
}

// MockProvider generates deterministic pseudo-prices: a slow sine drift plus
// a faster oscillation around a per-symbol base price. The same symbol at the
// same second always yields the same price, which keeps development runs and
// tests reproducible without an upstream.
type MockProvider struct {
	now func() time.Time
}

// NewMockProvider creates a deterministic mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{now: time.Now}
}

func (m *MockProvider) Name() string { return "mock" }

// Supports always reports true; the mock is the terminal fallback.
func (m *MockProvider) Supports(string) bool { return true }

// GetPrice returns the simulated price for the symbol at the current second.
func (m *MockProvider) GetPrice(_ context.Context, symbol string) (domain.PriceQuote, error) {
	now := m.now().UTC()
	return domain.PriceQuote{
		Symbol:    symbol,
		Price:     m.priceAt(symbol, now),
		Timestamp: now,
		Source:    m.Name(),
	}, nil
}

// IsAvailable always reports true.
func (m *MockProvider) IsAvailable(context.Context) bool { return true }

func (m *MockProvider) priceAt(symbol string, at time.Time) decimal.Decimal {
	base, ok := mockBasePrices[baseAsset(symbol)]
	if !ok {
		// Derive a stable base in [100, 10100) for unknown symbols.
		h := fnv.New32a()
		_, _ = h.Write([]byte(baseAsset(symbol)))
		base = 100 + float64(h.Sum32()%10000)
	}

	t := float64(at.Unix())
	drift := math.Sin(t/3600) * 0.01   // +-1% over the hour
	wobble := math.Sin(t/60) * 0.002   // +-0.2% minute noise
	price := base * (1 + drift + wobble)

	return decimal.NewFromFloat(price).Round(8)
}

// Compile-time interface check.
var _ domain.PriceProvider = (*MockProvider)(nil)
