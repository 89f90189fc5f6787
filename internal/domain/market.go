package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetCategory classifies the underlying asset of a market.
type AssetCategory string

const (
	AssetCrypto      AssetCategory = "crypto"
	AssetEquityIndex AssetCategory = "equity-index"
)

// MarketType selects how round deadlines are derived. Interval markets run
// back-to-back fixed-duration rounds; daily markets close betting at a fixed
// wall-clock hour and settle the next morning.
type MarketType string

const (
	MarketTypeInterval MarketType = "interval"
	MarketTypeDaily    MarketType = "daily"
)

// Market is a tradable up/down prediction market on a single symbol.
// Markets are created and edited by the external admin surface; the engine
// treats them as read-only configuration.
type Market struct {
	ID        string
	Symbol    string // unique, uppercase, e.g. "BTC" or "KOSPI-DAILY"
	Name      string
	Category  AssetCategory
	Type      MarketType
	MinBet    decimal.Decimal
	MaxBet    decimal.Decimal
	FeeRate   decimal.Decimal // fraction of the total pool, e.g. 0.03
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
