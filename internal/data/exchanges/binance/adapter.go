package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sawpanic/pumpradar/internal/data/interfaces"
)

// Adapter implements MarketDataSource and SymbolLister over the Binance spot REST API
type Adapter struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	now        func() time.Time
}

// Option configures an Adapter
type Option func(*Adapter)

// WithClock injects the time source used to detect the forming kline
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// NewAdapter creates a new Binance REST adapter
func NewAdapter(baseURL, userAgent string, timeout time.Duration, opts ...Option) *Adapter {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	a := &Adapter{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// APIError is a non-2xx response from the exchange.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Msg        string `json:"msg"`
}

func (e *APIError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("binance: http %d code %d: %s", e.StatusCode, e.Code, e.Msg)
	}
	return fmt.Sprintf("binance: http %d", e.StatusCode)
}

// Temporary reports whether the request may succeed on retry: throttling
// (429, 418) and server-side failures.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusTeapot ||
		e.StatusCode >= 500
}

// GetCandles fetches the last limit closed klines in ascending open-time
// order. The exchange always appends the bucket still forming; it is dropped
// so the latest candle never carries partial volume.
func (a *Adapter) GetCandles(ctx context.Context, symbol string, timeframe interfaces.Timeframe, limit int) ([]interfaces.Candle, error) {
	if limit <= 0 {
		limit = 100
	}

	q := url.Values{}
	q.Set("symbol", normalizeSymbol(symbol))
	q.Set("interval", timeframe.String())
	q.Set("limit", strconv.Itoa(limit+1))

	var raw [][]interface{}
	if err := a.get(ctx, "/api/v3/klines", q, &raw); err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, timeframe, err)
	}

	candles := make([]interfaces.Candle, 0, len(raw))
	for _, row := range raw {
		c, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("klines %s %s: %w", symbol, timeframe, err)
		}
		candles = append(candles, c)
	}
	return closedOnly(candles, a.now(), limit), nil
}

// closedOnly drops a trailing candle whose bucket has not closed at now and
// keeps at most limit candles.
func closedOnly(candles []interfaces.Candle, now time.Time, limit int) []interfaces.Candle {
	if n := len(candles); n > 0 && candles[n-1].CloseTime.After(now) {
		candles = candles[:n-1]
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles
}

// GetTicker24h fetches the rolling 24h statistics for a symbol
func (a *Adapter) GetTicker24h(ctx context.Context, symbol string) (interfaces.Ticker24h, error) {
	q := url.Values{}
	q.Set("symbol", normalizeSymbol(symbol))

	var raw struct {
		Symbol             string `json:"symbol"`
		LastPrice          string `json:"lastPrice"`
		PriceChangePercent string `json:"priceChangePercent"`
		QuoteVolume        string `json:"quoteVolume"`
	}
	if err := a.get(ctx, "/api/v3/ticker/24hr", q, &raw); err != nil {
		return interfaces.Ticker24h{}, fmt.Errorf("ticker %s: %w", symbol, err)
	}

	t := interfaces.Ticker24h{Symbol: raw.Symbol}
	var err error
	if t.LastPrice, err = strconv.ParseFloat(raw.LastPrice, 64); err != nil {
		return interfaces.Ticker24h{}, fmt.Errorf("ticker %s lastPrice: %w", symbol, err)
	}
	if t.PriceChangePercent, err = strconv.ParseFloat(raw.PriceChangePercent, 64); err != nil {
		return interfaces.Ticker24h{}, fmt.Errorf("ticker %s priceChangePercent: %w", symbol, err)
	}
	if t.QuoteVolume, err = strconv.ParseFloat(raw.QuoteVolume, 64); err != nil {
		return interfaces.Ticker24h{}, fmt.Errorf("ticker %s quoteVolume: %w", symbol, err)
	}
	return t, nil
}

// ListSymbols returns trading spot symbols quoted in quoteAsset, in exchange order
func (a *Adapter) ListSymbols(ctx context.Context, quoteAsset string) ([]string, error) {
	var info struct {
		Symbols []struct {
			Symbol               string `json:"symbol"`
			Status               string `json:"status"`
			QuoteAsset           string `json:"quoteAsset"`
			IsSpotTradingAllowed bool   `json:"isSpotTradingAllowed"`
		} `json:"symbols"`
	}
	if err := a.get(ctx, "/api/v3/exchangeInfo", nil, &info); err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}

	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || !s.IsSpotTradingAllowed {
			continue
		}
		if quoteAsset != "" && !strings.EqualFold(s.QuoteAsset, quoteAsset) {
			continue
		}
		symbols = append(symbols, s.Symbol)
	}
	return symbols, nil
}

func (a *Adapter) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	u := a.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseKline converts a raw kline row:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume, trades, ...]
func parseKline(row []interface{}) (interfaces.Candle, error) {
	if len(row) < 7 {
		return interfaces.Candle{}, fmt.Errorf("kline row has %d fields", len(row))
	}

	openMs, ok := row[0].(float64)
	if !ok {
		return interfaces.Candle{}, fmt.Errorf("invalid open time %v", row[0])
	}
	closeMs, ok := row[6].(float64)
	if !ok {
		return interfaces.Candle{}, fmt.Errorf("invalid close time %v", row[6])
	}

	var vals [5]float64
	for i := range vals {
		s, ok := row[i+1].(string)
		if !ok {
			return interfaces.Candle{}, fmt.Errorf("invalid field %d: %v", i+1, row[i+1])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return interfaces.Candle{}, fmt.Errorf("invalid field %d: %w", i+1, err)
		}
		vals[i] = v
	}

	return interfaces.Candle{
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
		OpenTime:  time.UnixMilli(int64(openMs)).UTC(),
		CloseTime: time.UnixMilli(int64(closeMs)).UTC(),
	}, nil
}

func normalizeSymbol(symbol string) string {
	s := strings.ToUpper(symbol)
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}
