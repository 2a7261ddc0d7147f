package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/pumpradar/internal/candidates"
	"github.com/sawpanic/pumpradar/internal/domain/pump"
	"github.com/sawpanic/pumpradar/internal/domain/volume"
)

// ErrNothingScored is returned when no layer of a manual scan produced a result
var ErrNothingScored = errors.New("manual scan produced no result")

// ManualResult is the immediate layered view of one symbol
type ManualResult struct {
	Symbol     string                `json:"symbol"`
	Layer1     *pump.LayerResult     `json:"layer1,omitempty"`
	Layer2     *pump.LayerResult     `json:"layer2,omitempty"`
	Layer3     *pump.LayerResult     `json:"layer3,omitempty"`
	FinalScore *float64              `json:"final_score,omitempty"` // only when all three layers scored
	WouldAlert bool                  `json:"would_alert"`
	Volume     []volume.Anomaly      `json:"volume,omitempty"`
	Report     *volume.Report        `json:"volume_report,omitempty"`
	Candidate  *candidates.Candidate `json:"candidate,omitempty"`
	Errors     map[string]string     `json:"errors,omitempty"`
}

// ManualScan scores one symbol through every layer and the volume detector.
// It shares the rate-limited fetch path with periodic scans but never
// mutates the candidate store or emits alerts.
func (e *Engine) ManualScan(ctx context.Context, symbol string) (ManualResult, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return ManualResult{}, errors.New("symbol is required")
	}

	res := ManualResult{Symbol: symbol, Errors: make(map[string]string)}
	var mu sync.Mutex
	fail := func(part string, err error) {
		mu.Lock()
		res.Errors[part] = err.Error()
		mu.Unlock()
	}
	profile := e.Profile()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f := e.fetch[0]
		candles, err := e.source.CandlesAtLeast(gctx, symbol, f.Timeframe, f.Candles, e.layer1.MinCandles())
		if err == nil {
			var r pump.LayerResult
			if r, err = e.layer1.Score(symbol, candles); err == nil {
				mu.Lock()
				res.Layer1 = &r
				mu.Unlock()
			}
		}
		if err != nil {
			fail(string(JobLayer1), err)
		}
		return nil
	})
	g.Go(func() error {
		f := e.fetch[1]
		candles, err := e.source.CandlesAtLeast(gctx, symbol, f.Timeframe, f.Candles, e.layer2.MinCandles())
		if err == nil {
			var r pump.LayerResult
			if r, err = e.layer2.Score(gctx, symbol, candles); err == nil {
				mu.Lock()
				res.Layer2 = &r
				mu.Unlock()
			}
		}
		if err != nil {
			fail(string(JobLayer2), err)
		}
		return nil
	})
	g.Go(func() error {
		f := e.fetch[2]
		candles, err := e.source.CandlesAtLeast(gctx, symbol, f.Timeframe, f.Candles, e.layer3.MinCandles())
		if err == nil {
			var r pump.LayerResult
			if r, err = e.layer3.Score(symbol, candles); err == nil {
				mu.Lock()
				res.Layer3 = &r
				mu.Unlock()
			}
		}
		if err != nil {
			fail(string(JobLayer3), err)
		}
		return nil
	})
	g.Go(func() error {
		evals, err := e.evaluateVolume(gctx, profile, symbol)
		if len(evals) == 0 {
			if err == nil {
				err = errors.New("no volume timeframes configured")
			}
			fail(string(JobVolume), err)
			return nil
		}
		mu.Lock()
		res.Volume = evals
		if report, ok := e.detector.Summarize(profile, symbol, evals); ok {
			res.Report = &report
		}
		mu.Unlock()
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}

	if res.Layer1 != nil && res.Layer2 != nil && res.Layer3 != nil {
		final := e.aggregator.Final(res.Layer1.Score, res.Layer2.Score, res.Layer3.Score)
		res.FinalScore = &final
		res.WouldAlert = res.Layer1.Passed && res.Layer2.Passed && res.Layer3.Passed && e.aggregator.ShouldAlert(final)
	}
	if c, ok := e.store.Get(symbol); ok {
		res.Candidate = &c
	}
	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	if res.Layer1 == nil && res.Layer2 == nil && res.Layer3 == nil && res.Volume == nil {
		return res, fmt.Errorf("%s: %w", symbol, ErrNothingScored)
	}
	return res, nil
}
