package interfaces

import (
	"context"
	"fmt"
	"time"
)

// Market data types and source interfaces shared across packages

// Candle is one OHLCV bucket for a symbol and timeframe.
type Candle struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool {
	return c.Close > c.Open
}

// ChangePct is the open-to-close change in percent.
func (c Candle) ChangePct() float64 {
	if c.Open == 0 {
		return 0
	}
	return (c.Close - c.Open) / c.Open * 100
}

// Ticker24h is a rolling 24h snapshot for a symbol.
type Ticker24h struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"last_price"`
	PriceChangePercent float64 `json:"price_change_percent"`
	QuoteVolume        float64 `json:"quote_volume"`
}

// MarketDataSource supplies candles and tickers. Implementations must be safe
// for concurrent use; errors are per call.
type MarketDataSource interface {
	GetCandles(ctx context.Context, symbol string, timeframe Timeframe, limit int) ([]Candle, error)
	GetTicker24h(ctx context.Context, symbol string) (Ticker24h, error)
}

// SymbolLister enumerates tradeable symbols quoted in the given asset.
type SymbolLister interface {
	ListSymbols(ctx context.Context, quoteAsset string) ([]string, error)
}

// Timeframe is a candle interval such as "5m" or "4h".
type Timeframe string

var timeframeDurations = map[Timeframe]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
}

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the bucket length, or zero for unknown timeframes.
func (t Timeframe) Duration() time.Duration {
	return timeframeDurations[t]
}

func (t Timeframe) String() string {
	return string(t)
}
