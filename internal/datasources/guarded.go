package datasources

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/pumpradar/internal/config"
	"github.com/sawpanic/pumpradar/internal/data/interfaces"
	"github.com/sawpanic/pumpradar/internal/net/ratelimit"
)

// Observer receives the outcome of every guarded fetch.
type Observer func(op string, elapsed time.Duration, err error)

// GuardedSource wraps a MarketDataSource with the shared rate limiter, a
// circuit breaker and bounded exponential retry. Every attempt, retries
// included, acquires a token from the limiter.
type GuardedSource struct {
	source   interfaces.MarketDataSource
	limiter  *ratelimit.Limiter
	breaker  *gobreaker.CircuitBreaker
	backoff  config.BackoffConfig
	observer Observer
}

// NewGuardedSource builds the fetch guard for a provider
func NewGuardedSource(source interfaces.MarketDataSource, limiter *ratelimit.Limiter, cfg config.ProviderConfig) *GuardedSource {
	circuit := cfg.Circuit
	st := gobreaker.Settings{
		Name:     cfg.Name,
		Interval: circuit.Interval,
		Timeout:  circuit.OpenTimeout,
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= uint32(circuit.ConsecutiveFailures) {
			return true
		}
		if counts.Requests < uint32(circuit.MinRequests) {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= circuit.FailureRatio
	}
	// Only transient failures count against the provider; a bad symbol is not an outage.
	st.IsSuccessful = func(err error) bool {
		return err == nil || !IsTransient(err)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().
			Str("provider", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Circuit breaker state changed")
	}

	return &GuardedSource{
		source:  source,
		limiter: limiter,
		breaker: gobreaker.NewCircuitBreaker(st),
		backoff: cfg.Backoff,
	}
}

// SetObserver registers a callback for fetch latency and outcome
func (g *GuardedSource) SetObserver(fn Observer) {
	g.observer = fn
}

// BreakerState returns the current circuit state name
func (g *GuardedSource) BreakerState() string {
	return g.breaker.State().String()
}

// GetCandles fetches candles through the guard
func (g *GuardedSource) GetCandles(ctx context.Context, symbol string, tf interfaces.Timeframe, limit int) ([]interfaces.Candle, error) {
	var out []interfaces.Candle
	err := g.do(ctx, "candles", symbol, tf, func(ctx context.Context) error {
		candles, err := g.source.GetCandles(ctx, symbol, tf, limit)
		out = candles
		return err
	})
	return out, err
}

// GetTicker24h fetches a ticker through the guard
func (g *GuardedSource) GetTicker24h(ctx context.Context, symbol string) (interfaces.Ticker24h, error) {
	var out interfaces.Ticker24h
	err := g.do(ctx, "ticker", symbol, "", func(ctx context.Context) error {
		t, err := g.source.GetTicker24h(ctx, symbol)
		out = t
		return err
	})
	return out, err
}

// CandlesAtLeast fetches limit candles and fails with DataInsufficientError
// when fewer than need come back.
func (g *GuardedSource) CandlesAtLeast(ctx context.Context, symbol string, tf interfaces.Timeframe, limit, need int) ([]interfaces.Candle, error) {
	candles, err := g.GetCandles(ctx, symbol, tf, limit)
	if err != nil {
		return nil, err
	}
	if len(candles) < need {
		return nil, &DataInsufficientError{Symbol: symbol, Timeframe: tf, Have: len(candles), Need: need}
	}
	return candles, nil
}

func (g *GuardedSource) do(ctx context.Context, op, symbol string, tf interfaces.Timeframe, fn func(context.Context) error) error {
	start := time.Now()
	attempts := 0

	operation := func() error {
		attempts++
		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		_, err := g.breaker.Execute(func() (interface{}, error) {
			return nil, fn(ctx)
		})
		if err == nil {
			return nil
		}
		if classify(ctx, err) != KindTransient {
			return backoff.Permanent(err)
		}
		log.Debug().Err(err).Str("op", op).Str("symbol", symbol).Int("attempt", attempts).Msg("Transient fetch failure")
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.backoff.Initial
	b.MaxInterval = g.backoff.Max
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(g.backoff.MaxRetries)), ctx)

	err := backoff.Retry(operation, policy)
	if g.observer != nil {
		g.observer(op, time.Since(start), err)
	}
	if err == nil {
		return nil
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{
		Op:        op,
		Symbol:    symbol,
		Timeframe: tf,
		Kind:      classify(ctx, err),
		Attempts:  attempts,
		Err:       err,
	}
}
