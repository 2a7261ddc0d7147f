package fake

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pumpradar/internal/data/interfaces"
)

// Adapter is a deterministic in-memory market data source. Scripted series take
// precedence; otherwise candles are generated from a random walk seeded by the
// symbol name, so the same symbol always yields the same history.
type Adapter struct {
	mu       sync.RWMutex
	symbols  []string
	candles  map[string][]interfaces.Candle // key: symbol|timeframe
	tickers  map[string]interfaces.Ticker24h
	errs     map[string]error
	generate bool
	anchor   time.Time

	calls atomic.Int64
}

// NewAdapter creates an empty scripted adapter
func NewAdapter(symbols ...string) *Adapter {
	return &Adapter{
		symbols: symbols,
		candles: make(map[string][]interfaces.Candle),
		tickers: make(map[string]interfaces.Ticker24h),
		errs:    make(map[string]error),
		anchor:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// NewGeneratingAdapter creates an adapter that synthesizes data for unknown symbols
func NewGeneratingAdapter(symbols ...string) *Adapter {
	a := NewAdapter(symbols...)
	a.generate = true
	log.Info().Int("symbols", len(symbols)).Msg("Created deterministic fake market data source")
	return a
}

func key(symbol string, tf interfaces.Timeframe) string {
	return strings.ToUpper(symbol) + "|" + string(tf)
}

// SetCandles scripts the series returned for symbol and timeframe
func (a *Adapter) SetCandles(symbol string, tf interfaces.Timeframe, candles []interfaces.Candle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.candles[key(symbol, tf)] = candles
}

// SetTicker scripts the 24h ticker for symbol
func (a *Adapter) SetTicker(t interfaces.Ticker24h) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tickers[strings.ToUpper(t.Symbol)] = t
}

// SetError makes every call for symbol fail with err. A nil err clears it.
func (a *Adapter) SetError(symbol string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.errs, strings.ToUpper(symbol))
		return
	}
	a.errs[strings.ToUpper(symbol)] = err
}

// SetSymbols replaces the listed symbols
func (a *Adapter) SetSymbols(symbols []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.symbols = append([]string(nil), symbols...)
}

// Calls returns how many data calls have been served
func (a *Adapter) Calls() int64 {
	return a.calls.Load()
}

// GetCandles returns the last limit candles for symbol and timeframe
func (a *Adapter) GetCandles(ctx context.Context, symbol string, tf interfaces.Timeframe, limit int) ([]interfaces.Candle, error) {
	a.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	err := a.errs[strings.ToUpper(symbol)]
	series, scripted := a.candles[key(symbol, tf)]
	a.mu.RUnlock()

	if err != nil {
		return nil, err
	}
	if !scripted {
		if !a.generate {
			return nil, nil
		}
		series = a.synthesize(symbol, tf, limit)
	}
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	out := make([]interfaces.Candle, len(series))
	copy(out, series)
	return out, nil
}

// GetTicker24h returns the scripted ticker, or one derived from generated candles
func (a *Adapter) GetTicker24h(ctx context.Context, symbol string) (interfaces.Ticker24h, error) {
	a.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return interfaces.Ticker24h{}, err
	}

	a.mu.RLock()
	err := a.errs[strings.ToUpper(symbol)]
	t, ok := a.tickers[strings.ToUpper(symbol)]
	a.mu.RUnlock()

	if err != nil {
		return interfaces.Ticker24h{}, err
	}
	if ok {
		return t, nil
	}
	if !a.generate {
		return interfaces.Ticker24h{Symbol: strings.ToUpper(symbol)}, nil
	}

	day := a.synthesize(symbol, "1h", 24)
	first, last := day[0], day[len(day)-1]
	var quoteVol float64
	for _, c := range day {
		quoteVol += c.Volume * c.Close
	}
	return interfaces.Ticker24h{
		Symbol:             strings.ToUpper(symbol),
		LastPrice:          last.Close,
		PriceChangePercent: (last.Close - first.Open) / first.Open * 100,
		QuoteVolume:        quoteVol,
	}, nil
}

// ListSymbols returns the configured symbols ending in quoteAsset
func (a *Adapter) ListSymbols(ctx context.Context, quoteAsset string) ([]string, error) {
	a.calls.Add(1)
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, 0, len(a.symbols))
	for _, s := range a.symbols {
		if quoteAsset == "" || strings.HasSuffix(strings.ToUpper(s), strings.ToUpper(quoteAsset)) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (a *Adapter) synthesize(symbol string, tf interfaces.Timeframe, limit int) []interfaces.Candle {
	if limit <= 0 {
		limit = 100
	}
	step := tf.Duration()
	if step == 0 {
		step = time.Hour
	}

	seed := xxhash.Sum64String(key(symbol, tf))
	rng := rand.New(rand.NewSource(int64(seed)))

	price := 1 + float64(seed%10_000)/100
	baseVol := 1_000 + float64(seed%5_000)
	out := make([]interfaces.Candle, limit)
	for i := range out {
		drift := rng.NormFloat64() * 0.01
		open := price
		closePrice := math.Max(open*(1+drift), 1e-8)
		high := math.Max(open, closePrice) * (1 + rng.Float64()*0.005)
		low := math.Min(open, closePrice) * (1 - rng.Float64()*0.005)
		openTime := a.anchor.Add(time.Duration(i) * step)
		out[i] = interfaces.Candle{
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    baseVol * (0.5 + rng.Float64()),
			OpenTime:  openTime,
			CloseTime: openTime.Add(step - time.Millisecond),
		}
		price = closePrice
	}
	return out
}
