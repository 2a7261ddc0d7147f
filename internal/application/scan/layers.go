package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pumpradar/internal/alerts"
	"github.com/sawpanic/pumpradar/internal/candidates"
	"github.com/sawpanic/pumpradar/internal/domain/pump"
)

// RunLayer1 scans the whole universe on the fast timeframe. Passing symbols
// become (or refresh) Layer1Detected candidates; weak scans never touch an
// existing candidate.
func (e *Engine) RunLayer1(ctx context.Context) (TickReport, error) {
	t := newTally(JobLayer1, e.now())
	symbols := e.universe.Symbols()
	fetch := e.fetch[0]

	e.forEach(ctx, symbols, func(ctx context.Context, symbol string) {
		candles, err := e.source.CandlesAtLeast(ctx, symbol, fetch.Timeframe, fetch.Candles, e.layer1.MinCandles())
		if err != nil {
			t.skip(fetchSkipReason(ctx, err))
			log.Debug().Err(err).Str("symbol", symbol).Msg("Layer1 fetch skipped")
			return
		}
		res, err := e.layer1.Score(symbol, candles)
		if err != nil {
			t.skip(scoreSkipReason(ctx, err))
			return
		}
		t.scanned()
		if !res.Passed {
			return
		}
		if _, created := e.store.Upsert(symbol, res.Score); created {
			t.add(func(r *TickReport) { r.Promoted++ })
			log.Info().Str("symbol", symbol).Float64("score", res.Score).Msg("Layer1 candidate detected")
		}
	})

	rep, err := e.finish(ctx, t)
	logTick(rep, len(symbols))
	return rep, err
}

// RunLayer2 confirms Layer1Detected candidates on the medium timeframe
func (e *Engine) RunLayer2(ctx context.Context) (TickReport, error) {
	t := newTally(JobLayer2, e.now())
	swept := len(e.store.Sweep())
	t.add(func(r *TickReport) { r.Expired += swept })

	pending := symbolsOf(e.store.List(candidates.Layer1Detected))
	fetch := e.fetch[1]

	e.forEach(ctx, pending, func(ctx context.Context, symbol string) {
		candles, err := e.source.CandlesAtLeast(ctx, symbol, fetch.Timeframe, fetch.Candles, e.layer2.MinCandles())
		if err != nil {
			t.skip(fetchSkipReason(ctx, err))
			log.Debug().Err(err).Str("symbol", symbol).Msg("Layer2 fetch skipped")
			return
		}
		res, err := e.layer2.Score(ctx, symbol, candles)
		if err != nil {
			t.skip(scoreSkipReason(ctx, err))
			return
		}
		t.scanned()
		e.settle(t, symbol, candidates.Layer1Detected, res)
	})

	rep, err := e.finish(ctx, t)
	logTick(rep, len(pending))
	return rep, err
}

// RunLayer3 validates Layer2Confirmed candidates on the long timeframe. A
// validated candidate is aggregated, offered to the alert gate once, and
// then expired whatever the outcome.
func (e *Engine) RunLayer3(ctx context.Context) (TickReport, error) {
	t := newTally(JobLayer3, e.now())
	swept := len(e.store.Sweep())
	t.add(func(r *TickReport) { r.Expired += swept })

	pending := symbolsOf(e.store.List(candidates.Layer2Confirmed))
	fetch := e.fetch[2]

	e.forEach(ctx, pending, func(ctx context.Context, symbol string) {
		candles, err := e.source.CandlesAtLeast(ctx, symbol, fetch.Timeframe, fetch.Candles, e.layer3.MinCandles())
		if err != nil {
			t.skip(fetchSkipReason(ctx, err))
			log.Debug().Err(err).Str("symbol", symbol).Msg("Layer3 fetch skipped")
			return
		}
		res, err := e.layer3.Score(symbol, candles)
		if err != nil {
			t.skip(scoreSkipReason(ctx, err))
			return
		}
		t.scanned()

		c, ok := e.settle(t, symbol, candidates.Layer2Confirmed, res)
		if !ok {
			return
		}
		e.evaluate(ctx, t, c, res)
	})

	rep, err := e.finish(ctx, t)
	logTick(rep, len(pending))
	return rep, err
}

// settle applies a layer result to a candidate waiting at from. A pass
// advances it; a miss expires it only once its stage timeout has elapsed.
func (e *Engine) settle(t *tally, symbol string, from candidates.Stage, res pump.LayerResult) (candidates.Candidate, bool) {
	if !res.Passed {
		if _, expired := e.store.ExpireIfStale(symbol, from); expired {
			t.add(func(r *TickReport) { r.Expired++ })
		}
		return candidates.Candidate{}, false
	}

	c, err := e.store.Advance(symbol, from, from+1, res.Score)
	if err != nil {
		// expired or moved by a concurrent sweep while fetching
		if !errors.Is(err, candidates.ErrNotFound) && !errors.Is(err, candidates.ErrStageMismatch) {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Candidate advance failed")
		}
		return candidates.Candidate{}, false
	}
	t.add(func(r *TickReport) { r.Promoted++ })
	log.Info().Str("symbol", symbol).Str("stage", c.Stage.String()).Float64("score", res.Score).Msg("Candidate promoted")
	return c, true
}

func (e *Engine) evaluate(ctx context.Context, t *tally, c candidates.Candidate, layer3 pump.LayerResult) {
	final := e.aggregator.Final(c.Layer1Score, c.Layer2Score, c.Layer3Score)
	t.add(func(r *TickReport) { r.Evaluated++ })

	if e.aggregator.ShouldAlert(final) {
		classification, strength := pumpLabels(final)
		p := alerts.Payload{
			FinalScore:     final,
			Classification: classification,
			Strength:       strength,
			LayerBreakdown: map[string]float64{
				"layer1": c.Layer1Score,
				"layer2": c.Layer2Score,
				"layer3": c.Layer3Score,
			},
			Components:     prefixed("layer3", layer3.Components),
		}
		if e.gate.TryAlert(ctx, c.Symbol, alerts.DetectorPump, p) {
			t.add(func(r *TickReport) { r.Alerts++ })
		}
	}

	if _, ok := e.store.Expire(c.Symbol, candidates.Layer3Validated, "evaluated"); ok {
		t.add(func(r *TickReport) { r.Expired++ })
	}
	log.Info().
		Str("symbol", c.Symbol).
		Float64("final_score", final).
		Float64("alert_threshold", e.aggregator.AlertThreshold()).
		Msg("Candidate evaluated")
}

// pumpLabels tags a pump alert; a final score of 90 or more is strong
func pumpLabels(final float64) (classification, strength string) {
	if final >= 90 {
		return "pump", "strong"
	}
	return "pump", "moderate"
}

func symbolsOf(cs []candidates.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Symbol
	}
	return out
}

func prefixed(prefix string, m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[fmt.Sprintf("%s.%s", prefix, k)] = v
	}
	return out
}

func logTick(rep TickReport, batch int) {
	log.Info().
		Str("job", string(rep.Job)).
		Int("batch", batch).
		Int("scanned", rep.Scanned).
		Int("promoted", rep.Promoted).
		Int("expired", rep.Expired).
		Int("alerts", rep.Alerts).
		Int("skipped", rep.SkippedTotal()).
		Dur("elapsed", rep.Elapsed).
		Msg("Scan tick complete")
}
