package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pumpradar/internal/data/interfaces"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			[1700000000000,"100.0","110.0","95.0","105.0","1200.5",1700000299999,"126052.5",42,"0","0","0"],
			[1700000300000,"105.0","106.0","101.0","102.0","800.0",1700000599999,"81600.0",30,"0","0","0"]
		]`))
	})
	mux.HandleFunc("/api/v3/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSDT","lastPrice":"102.5","priceChangePercent":"-1.25","quoteVolume":"5000000.5"}`))
	})
	mux.HandleFunc("/api/v3/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING","quoteAsset":"USDT","isSpotTradingAllowed":true},
			{"symbol":"ETHBTC","status":"TRADING","quoteAsset":"BTC","isSpotTradingAllowed":true},
			{"symbol":"OLDUSDT","status":"BREAK","quoteAsset":"USDT","isSpotTradingAllowed":true},
			{"symbol":"SOLUSDT","status":"TRADING","quoteAsset":"USDT","isSpotTradingAllowed":true}
		]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetCandles(t *testing.T) {
	srv := newTestServer(t)
	a := NewAdapter(srv.URL, "test", 5*time.Second)

	candles, err := a.GetCandles(context.Background(), "btc/usdt", "5m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, 100.0, candles[0].Open)
	assert.Equal(t, 110.0, candles[0].High)
	assert.Equal(t, 95.0, candles[0].Low)
	assert.Equal(t, 105.0, candles[0].Close)
	assert.Equal(t, 1200.5, candles[0].Volume)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), candles[0].OpenTime)
	assert.True(t, candles[0].OpenTime.Before(candles[1].OpenTime))
}

func TestGetCandlesDropsFormingBucket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			[1700000000000,"100.0","101.0","99.0","100.5","1000.0",1700000299999,"0",10,"0","0","0"],
			[1700000300000,"100.5","102.0","100.0","101.5","1000.0",1700000599999,"0",10,"0","0","0"],
			[1700000600000,"101.5","101.6","101.4","101.5","10.0",1700000899999,"0",1,"0","0","0"]
		]`))
	}))
	defer srv.Close()

	now := time.UnixMilli(1700000650000).UTC()
	a := NewAdapter(srv.URL, "test", 5*time.Second, WithClock(func() time.Time { return now }))

	candles, err := a.GetCandles(context.Background(), "BTCUSDT", "5m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	last := candles[len(candles)-1]
	assert.False(t, last.CloseTime.After(now))
	assert.Equal(t, 1000.0, last.Volume)
	assert.Equal(t, time.UnixMilli(1700000300000).UTC(), last.OpenTime)
}

func TestClosedOnlyTrimsToLimit(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]interfaces.Candle, 4)
	for i := range candles {
		candles[i] = interfaces.Candle{
			OpenTime:  base.Add(time.Duration(i) * 5 * time.Minute),
			CloseTime: base.Add(time.Duration(i+1)*5*time.Minute - time.Millisecond),
		}
	}

	got := closedOnly(candles, base.Add(time.Hour), 3)
	require.Len(t, got, 3)
	assert.Equal(t, candles[3].OpenTime, got[2].OpenTime)

	got = closedOnly(candles, base.Add(17*time.Minute), 3)
	require.Len(t, got, 3)
	assert.Equal(t, candles[2].OpenTime, got[2].OpenTime)
}

func TestGetTicker24h(t *testing.T) {
	srv := newTestServer(t)
	a := NewAdapter(srv.URL, "test", 5*time.Second)

	tk, err := a.GetTicker24h(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 102.5, tk.LastPrice)
	assert.Equal(t, -1.25, tk.PriceChangePercent)
	assert.Equal(t, 5000000.5, tk.QuoteVolume)
}

func TestListSymbolsFiltersQuoteAndStatus(t *testing.T) {
	srv := newTestServer(t)
	a := NewAdapter(srv.URL, "test", 5*time.Second)

	symbols, err := a.ListSymbols(context.Background(), "USDT")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, symbols)
}

func TestAPIErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "BUSY":
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
		}
	}))
	defer srv.Close()
	a := NewAdapter(srv.URL, "", time.Second)

	_, err := a.GetCandles(context.Background(), "BUSY", "1h", 10)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Temporary())
	assert.Equal(t, -1003, apiErr.Code)

	_, err = a.GetCandles(context.Background(), "NOPE", "1h", 10)
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.Temporary())
	assert.Contains(t, err.Error(), "Invalid symbol.")
}
