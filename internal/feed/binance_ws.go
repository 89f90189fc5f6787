// Package feed streams live exchange prices into the price cache so lock and
// settle sweeps hit a warm cache instead of a cold REST round trip.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/updownhq/updown/internal/domain"
)

// QuoteSink receives streamed quotes. Satisfied by *price.Oracle.
type QuoteSink interface {
	WarmCache(ctx context.Context, quote domain.PriceQuote)
}

// BinanceWSFeed subscribes to Binance miniTicker streams for the configured
// symbols and pushes every tick into the sink. It reconnects with backoff on
// disconnect.
type BinanceWSFeed struct {
	wsURL   string
	symbols []string
	sink    QuoteSink
	logger  *slog.Logger
}

// NewBinanceWSFeed creates a feed for the given engine symbols.
//
// wsURL is the stream root, e.g. "wss://stream.binance.com:9443".
func NewBinanceWSFeed(wsURL string, symbols []string, sink QuoteSink, logger *slog.Logger) *BinanceWSFeed {
	return &BinanceWSFeed{
		wsURL:   wsURL,
		symbols: symbols,
		sink:    sink,
		logger:  logger.With(slog.String("component", "binance_ws_feed")),
	}
}

// Run connects and consumes ticks until ctx is cancelled. Reconnects with
// backoff on disconnect. Call in a goroutine.
func (f *BinanceWSFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to stream, exiting")
		return nil
	}

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("binance ws disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *BinanceWSFeed) runConnection(ctx context.Context) error {
	streams := make([]string, 0, len(f.symbols))
	for _, s := range f.symbols {
		streams = append(streams, strings.ToLower(toStreamPair(s))+"@miniTicker")
	}
	url := f.wsURL + "/stream?streams=" + strings.Join(streams, "/")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context is cancelled.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	f.logger.Info("binance ws connected", slog.Int("streams", len(streams)))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		f.handleMessage(ctx, msg)
	}
}

// miniTickerMessage is the combined-stream envelope around a 24h miniTicker.
type miniTickerMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		EventTime int64  `json:"E"`
		Symbol    string `json:"s"`
		Close     string `json:"c"`
	} `json:"data"`
}

func (f *BinanceWSFeed) handleMessage(ctx context.Context, msg []byte) {
	var tick miniTickerMessage
	if err := json.Unmarshal(msg, &tick); err != nil {
		f.logger.Debug("unparseable message", slog.String("error", err.Error()))
		return
	}
	if tick.Data.Symbol == "" {
		return
	}

	price, err := decimal.NewFromString(tick.Data.Close)
	if err != nil {
		f.logger.Debug("unparseable price",
			slog.String("symbol", tick.Data.Symbol),
			slog.String("close", tick.Data.Close),
		)
		return
	}

	f.sink.WarmCache(ctx, domain.PriceQuote{
		Symbol:    fromStreamPair(tick.Data.Symbol),
		Price:     price,
		Timestamp: time.UnixMilli(tick.Data.EventTime).UTC(),
		Source:    "binance_ws",
	})
}

// toStreamPair maps an engine symbol to its USDT trading pair
// ("BTC-DAILY" -> "BTCUSDT").
func toStreamPair(symbol string) string {
	base, _, _ := strings.Cut(strings.ToUpper(symbol), "-")
	return base + "USDT"
}

// fromStreamPair maps a trading pair back to the engine's base symbol
// ("BTCUSDT" -> "BTC").
func fromStreamPair(pair string) string {
	return strings.TrimSuffix(strings.ToUpper(pair), "USDT")
}
