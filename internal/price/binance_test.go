package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinanceProvider_GetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"65000.12000000"}`))
	}))
	defer srv.Close()

	p := NewBinanceProvider(srv.URL, time.Second)

	quote, err := p.GetPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "BTC", quote.Symbol)
	assert.Equal(t, "binance", quote.Source)
	assert.True(t, quote.Price.Equal(decimal.RequireFromString("65000.12")))
}

func TestBinanceProvider_DailySymbolMapsToSpotPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"65000"}`))
	}))
	defer srv.Close()

	p := NewBinanceProvider(srv.URL, time.Second)

	quote, err := p.GetPrice(context.Background(), "BTC-DAILY")
	require.NoError(t, err)
	assert.Equal(t, "BTC-DAILY", quote.Symbol)
}

func TestBinanceProvider_GetPriceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	p := NewBinanceProvider(srv.URL, time.Second)

	_, err := p.GetPrice(context.Background(), "BTC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 418")
}

func TestBinanceProvider_HistoricalPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		w.Write([]byte(`[
			[1717243200000,"65000.0","65100.0","64900.0","65050.0","12.5",1717243259999,"0",0,"0","0","0"],
			[1717243260000,"65050.0","65200.0","65000.0","65150.0","8.1",1717243319999,"0",0,"0","0","0"]
		]`))
	}))
	defer srv.Close()

	p := NewBinanceProvider(srv.URL, time.Second)

	from := time.UnixMilli(1717243200000).UTC()
	candles, err := p.HistoricalPrices(context.Background(), "BTC", from, from.Add(2*time.Minute), "1m")
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, from, candles[0].Time)
	assert.True(t, candles[0].Close.Equal(decimal.RequireFromString("65050")))
	assert.True(t, candles[1].High.Equal(decimal.RequireFromString("65200")))
	assert.True(t, candles[1].Volume.Equal(decimal.RequireFromString("8.1")))
}

func TestBinanceProvider_Supports(t *testing.T) {
	p := NewBinanceProvider("", time.Second)

	assert.True(t, p.Supports("BTC"))
	assert.True(t, p.Supports("eth"))
	assert.True(t, p.Supports("SOL-DAILY"))
	assert.False(t, p.Supports("SPX"))
	assert.False(t, p.Supports("KOSPI"))
}
