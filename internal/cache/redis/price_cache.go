package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/updownhq/updown/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each symbol's quote is stored as a hash at key "price:{symbol}" with fields
// "price", "ts" (Unix nanosecond timestamp) and "source", expiring after TTL
// so stale quotes fall through to the providers.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. Entries
// expire after ttl.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.rdb, ttl: ttl}
}

func priceKey(symbol string) string {
	return "price:" + symbol
}

// Set stores the latest quote for a symbol.
func (pc *PriceCache) Set(ctx context.Context, quote domain.PriceQuote) error {
	key := priceKey(quote.Symbol)
	fields := map[string]interface{}{
		"price":  quote.Price.String(),
		"ts":     strconv.FormatInt(quote.Timestamp.UnixNano(), 10),
		"source": quote.Source,
	}
	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, pc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", quote.Symbol, err)
	}
	return nil
}

// Get retrieves the latest quote for a symbol.
// It returns domain.ErrNotFound when the key does not exist or has expired.
func (pc *PriceCache) Get(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(symbol)).Result()
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get price %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.PriceQuote{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse price %s: %w", symbol, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
	}

	return domain.PriceQuote{
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Unix(0, tsNano),
		Source:    vals["source"],
	}, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
