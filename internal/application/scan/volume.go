package scan

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/pumpradar/internal/alerts"
	"github.com/sawpanic/pumpradar/internal/domain/volume"
)

// RunVolume evaluates every symbol on each configured timeframe and alerts
// once per symbol with all flagged timeframes attached.
func (e *Engine) RunVolume(ctx context.Context) (TickReport, error) {
	t := newTally(JobVolume, e.now())
	profile := e.Profile()
	symbols := e.universe.Symbols()

	e.forEach(ctx, symbols, func(ctx context.Context, symbol string) {
		evals, err := e.evaluateVolume(ctx, profile, symbol)
		if len(evals) == 0 {
			t.skip(fetchSkipReason(ctx, err))
			log.Debug().Err(err).Str("symbol", symbol).Msg("Volume fetch skipped")
			return
		}
		t.scanned()

		report, flagged := e.detector.Summarize(profile, symbol, evals)
		if !flagged {
			return
		}
		p := alerts.Payload{
			Anomalies:      report.Anomalies,
			Classification: string(report.Classification),
			Strength:       string(report.Strength),
		}
		if e.gate.TryAlert(ctx, symbol, alerts.DetectorVolumeAnomaly, p) {
			t.add(func(r *TickReport) { r.Alerts++ })
		}
	})

	rep, err := e.finish(ctx, t)
	logTick(rep, len(symbols))
	return rep, err
}

// evaluateVolume fetches every timeframe concurrently. Timeframes that fail
// are left out; the returned error is the first failure and only matters
// when nothing could be evaluated.
func (e *Engine) evaluateVolume(ctx context.Context, p volume.Profile, symbol string) ([]volume.Anomaly, error) {
	var (
		mu       sync.Mutex
		evals    []volume.Anomaly
		firstErr error
	)
	limit := e.detector.CandlesNeeded(p)
	need := e.detector.MinCandles()

	var g errgroup.Group
	for _, tf := range e.volumeTFs {
		tf := tf
		g.Go(func() error {
			candles, err := e.source.CandlesAtLeast(ctx, symbol, tf, limit, need)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			evals = append(evals, e.detector.Evaluate(p, symbol, tf, candles))
			return nil
		})
	}
	_ = g.Wait()
	return evals, firstErr
}
