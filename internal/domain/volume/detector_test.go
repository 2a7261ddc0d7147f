package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pumpradar/internal/data/interfaces"
)

// window builds n baseline candles alternating mean±spread, then a current
// candle with the given volume and open→close change.
func window(n int, mean, spread, current, changePct float64) []interfaces.Candle {
	out := make([]interfaces.Candle, 0, n+1)
	for i := 0; i < n; i++ {
		v := mean + spread
		if i%2 == 1 {
			v = mean - spread
		}
		out = append(out, interfaces.Candle{Open: 10, Close: 10, High: 10.1, Low: 9.9, Volume: v})
	}
	closePrice := 10 * (1 + changePct/100)
	out = append(out, interfaces.Candle{Open: 10, Close: closePrice, High: closePrice + 0.1, Low: 9.9, Volume: current})
	return out
}

func balanced(t *testing.T) Profile {
	t.Helper()
	p, ok := ProfileByName("balanced")
	require.True(t, ok)
	return p
}

func TestPresets(t *testing.T) {
	names := []string{}
	for _, p := range Presets() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"conservative", "balanced", "aggressive"}, names)

	_, ok := ProfileByName("reckless")
	assert.False(t, ok)
}

func TestBalancedScenarioFlagsBullishBreakout(t *testing.T) {
	d := NewDetector(DefaultConfig())
	p := balanced(t)

	// mean 100, stddev 220/4.5 → current 320 gives ratio 3.2, +220%, z 4.5
	a := d.Evaluate(p, "AAAUSDT", "5m", window(20, 100, 220/4.5, 320, 3.5))

	assert.Equal(t, 20, a.SampleCount)
	assert.InDelta(t, 3.2, a.Ratio, 1e-9)
	assert.InDelta(t, 220.0, a.IncreasePct, 1e-9)
	assert.InDelta(t, 4.5, a.ZScore, 1e-9)
	assert.True(t, a.Flagged)
	assert.Equal(t, BullishBreakout, a.Classification)

	assert.True(t, d.Flag(p, 3.2, 220, 4.5))
	assert.Equal(t, BullishBreakout, d.Classify(3.5))
}

func TestAllThreeConditionsMustHold(t *testing.T) {
	d := NewDetector(DefaultConfig())
	p := balanced(t)

	assert.False(t, d.Flag(p, 2.4, 220, 4.5), "ratio below multiplier")
	assert.False(t, d.Flag(p, 3.2, 140, 4.5), "increase below minimum")
	assert.False(t, d.Flag(p, 3.2, 220, 1.9), "z-score below 2")
	assert.True(t, d.Flag(p, 2.5, 150, 2.0), "boundaries are inclusive")
}

func TestHighRatioWithNoisyBaselineIsNotFlagged(t *testing.T) {
	d := NewDetector(DefaultConfig())
	// mean 100, stddev 90 → 300 is 3x but z ≈ 2.2; 250 is 2.5x but z ≈ 1.67
	a := d.Evaluate(balanced(t), "NOISY", "15m", window(20, 100, 90, 250, 0))
	assert.False(t, a.Flagged)
	assert.Equal(t, "below_threshold", a.Reason)
}

func TestColdStartNeverFlags(t *testing.T) {
	d := NewDetector(DefaultConfig())
	a := d.Evaluate(balanced(t), "NEWUSDT", "1h", window(9, 100, 10, 100_000, 10))
	assert.False(t, a.Flagged)
	assert.Equal(t, 9, a.SampleCount)
	assert.Equal(t, "insufficient_samples", a.Reason)
}

func TestZeroVarianceIsNotFlagged(t *testing.T) {
	d := NewDetector(DefaultConfig())
	a := d.Evaluate(balanced(t), "FLAT", "5m", window(20, 100, 0, 1000, 0))
	assert.False(t, a.Flagged)
	assert.Equal(t, "zero_variance", a.Reason)
}

func TestLatestBucketIsExcludedFromBaseline(t *testing.T) {
	d := NewDetector(DefaultConfig())
	a := d.Evaluate(balanced(t), "AAAUSDT", "5m", window(30, 100, 20, 900, 0))
	assert.Equal(t, 20, a.SampleCount, "lookback trims history")
	assert.InDelta(t, 100.0, a.RollingMean, 1e-9)
	assert.InDelta(t, 20.0, a.RollingStddev, 1e-9)
}

func TestClassify(t *testing.T) {
	d := NewDetector(DefaultConfig())
	assert.Equal(t, BearishBreakdown, d.Classify(-2.5))
	assert.Equal(t, NeutralSpike, d.Classify(1.9))
	assert.Equal(t, NeutralSpike, d.Classify(-2.0))
	assert.Equal(t, BullishBreakout, d.Classify(2.01))
}

func TestSummarizeStrength(t *testing.T) {
	d := NewDetector(DefaultConfig())
	p := balanced(t)

	evals := []Anomaly{
		{Baseline: Baseline{Timeframe: "5m"}, Flagged: true, ZScore: 3, Classification: NeutralSpike},
		{Baseline: Baseline{Timeframe: "15m"}, Flagged: false},
		{Baseline: Baseline{Timeframe: "1h"}, Flagged: true, ZScore: 5, Classification: BearishBreakdown},
	}
	r, ok := d.Summarize(p, "AAAUSDT", evals)
	require.True(t, ok)
	assert.Equal(t, Strong, r.Strength)
	assert.Equal(t, BearishBreakdown, r.Classification)
	assert.Equal(t, interfaces.Timeframe("1h"), r.Anomalies[0].Timeframe)
	assert.Len(t, r.Anomalies, 2)

	r, ok = d.Summarize(p, "AAAUSDT", evals[:2])
	require.True(t, ok)
	assert.Equal(t, Moderate, r.Strength)

	_, ok = d.Summarize(p, "AAAUSDT", evals[1:2])
	assert.False(t, ok)
}
