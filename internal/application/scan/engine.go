package scan

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/pumpradar/internal/alerts"
	"github.com/sawpanic/pumpradar/internal/candidates"
	"github.com/sawpanic/pumpradar/internal/data/interfaces"
	"github.com/sawpanic/pumpradar/internal/domain/pump"
	"github.com/sawpanic/pumpradar/internal/domain/volume"
)

// CandleSource is the rate-limited fetch path shared by every scan
type CandleSource interface {
	CandlesAtLeast(ctx context.Context, symbol string, tf interfaces.Timeframe, limit, need int) ([]interfaces.Candle, error)
}

// SymbolSource yields the current universe snapshot
type SymbolSource interface {
	Symbols() []string
}

// AlertGate is the only route to alert sinks
type AlertGate interface {
	TryAlert(ctx context.Context, symbol string, kind alerts.DetectorKind, p alerts.Payload) bool
}

// Scorer scores a candle window without blocking
type Scorer interface {
	MinCandles() int
	Score(symbol string, candles []interfaces.Candle) (pump.LayerResult, error)
}

// ContextScorer scores a candle window and may call out to collaborators
type ContextScorer interface {
	MinCandles() int
	Score(ctx context.Context, symbol string, candles []interfaces.Candle) (pump.LayerResult, error)
}

// Recorder observes finished ticks
type Recorder interface {
	TickCompleted(rep TickReport)
}

// LayerFetch is the timeframe and window fetched for one layer
type LayerFetch struct {
	Timeframe interfaces.Timeframe
	Candles   int
}

// Deps wires an Engine
type Deps struct {
	Source     CandleSource
	Universe   SymbolSource
	Store      *candidates.Store
	Gate       AlertGate
	Aggregator *pump.Aggregator
	Layer1     Scorer
	Layer2     ContextScorer
	Layer3     Scorer
	Detector   *volume.Detector
	Profile    volume.Profile

	Fetch            [3]LayerFetch
	VolumeTimeframes []interfaces.Timeframe
	Workers          int
	Recorder         Recorder
	Now              func() time.Time
}

// Engine runs the per-layer batches and the volume pipeline. It keeps no
// per-tick scratch state, so manual scans may run alongside periodic ones.
type Engine struct {
	source     CandleSource
	universe   SymbolSource
	store      *candidates.Store
	gate       AlertGate
	aggregator *pump.Aggregator
	layer1     Scorer
	layer2     ContextScorer
	layer3     Scorer
	detector   *volume.Detector
	profile    atomic.Pointer[volume.Profile]

	fetch     [3]LayerFetch
	volumeTFs []interfaces.Timeframe
	workers   int
	recorder  Recorder
	now       func() time.Time
}

// NewEngine validates deps and builds an engine
func NewEngine(d Deps) (*Engine, error) {
	switch {
	case d.Source == nil:
		return nil, errors.New("scan: candle source is required")
	case d.Universe == nil:
		return nil, errors.New("scan: symbol source is required")
	case d.Store == nil:
		return nil, errors.New("scan: candidate store is required")
	case d.Gate == nil:
		return nil, errors.New("scan: alert gate is required")
	case d.Aggregator == nil:
		return nil, errors.New("scan: aggregator is required")
	case d.Layer1 == nil || d.Layer2 == nil || d.Layer3 == nil:
		return nil, errors.New("scan: all three layer scorers are required")
	case d.Detector == nil:
		return nil, errors.New("scan: volume detector is required")
	}

	e := &Engine{
		source:     d.Source,
		universe:   d.Universe,
		store:      d.Store,
		gate:       d.Gate,
		aggregator: d.Aggregator,
		layer1:     d.Layer1,
		layer2:     d.Layer2,
		layer3:     d.Layer3,
		detector:   d.Detector,
		fetch:      d.Fetch,
		volumeTFs:  d.VolumeTimeframes,
		workers:    d.Workers,
		recorder:   d.Recorder,
		now:        d.Now,
	}
	if e.workers <= 0 {
		e.workers = 1
	}
	if e.now == nil {
		e.now = time.Now
	}
	if err := e.SetProfile(d.Profile); err != nil {
		return nil, err
	}
	return e, nil
}

// Profile returns the active volume sensitivity profile
func (e *Engine) Profile() volume.Profile {
	return *e.profile.Load()
}

// SetProfile swaps the volume sensitivity profile. Ticks in flight keep the
// profile they started with.
func (e *Engine) SetProfile(p volume.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Lookback < e.detector.MinCandles()-1 {
		return errors.New("scan: profile lookback is shorter than the minimum sample count")
	}
	e.profile.Store(&p)
	return nil
}

// Store exposes the candidate store for read-only views
func (e *Engine) Store() *candidates.Store {
	return e.store
}

// forEach runs fn for every symbol on a bounded worker pool. fn must handle
// its own failures; a symbol never aborts the batch.
func (e *Engine) forEach(ctx context.Context, symbols []string, fn func(ctx context.Context, symbol string)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, sym := range symbols {
		if gctx.Err() != nil {
			break
		}
		sym := sym
		g.Go(func() error {
			fn(gctx, sym)
			return nil
		})
	}
	_ = g.Wait()
}

// finish closes a tick. The error is non-nil only when ctx ended the batch
// early.
func (e *Engine) finish(ctx context.Context, t *tally) (TickReport, error) {
	out := t.report(e.now())
	if e.recorder != nil {
		e.recorder.TickCompleted(out)
	}
	return out, ctx.Err()
}
