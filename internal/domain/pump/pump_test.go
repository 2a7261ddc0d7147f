package pump

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pumpradar/internal/data/interfaces"
)

// series builds candles from per-candle percent moves, each with the given volume.
func series(start float64, moves []float64, volumes []float64) []interfaces.Candle {
	out := make([]interfaces.Candle, len(moves))
	price := start
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, m := range moves {
		open := price
		closePrice := open * (1 + m/100)
		hi, lo := open, closePrice
		if lo > hi {
			hi, lo = lo, hi
		}
		out[i] = interfaces.Candle{
			Open:     open,
			High:     hi * 1.001,
			Low:      lo * 0.999,
			Close:    closePrice,
			Volume:   volumes[i],
			OpenTime: t0.Add(time.Duration(i) * 5 * time.Minute),
		}
		price = closePrice
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func chop(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = 0.3
		} else {
			out[i] = -0.3
		}
	}
	return out
}

func pumpingCandles() []interfaces.Candle {
	moves := append(chop(34), -0.3, 1.5, 1.5, 1.5, 1.5, 1.5)
	vols := constant(40, 100)
	vols[39] = 600
	return series(10, moves, vols)
}

func TestBands(t *testing.T) {
	b := Bands{
		{Min: 5, Max: posInf, Points: 30},
		{Min: 3, Max: 5, Points: 22},
	}
	assert.Equal(t, 30.0, b.Score(5))
	assert.Equal(t, 22.0, b.Score(4.999))
	assert.Equal(t, 22.0, b.Score(3))
	assert.Equal(t, 0.0, b.Score(2.99))
	assert.Equal(t, 30.0, b.MaxPoints())
}

func TestDefaultLayer1TablesMaxOutAt100(t *testing.T) {
	cfg := DefaultLayer1Config()
	total := cfg.VolumeBands.MaxPoints() + cfg.MomentumBands.MaxPoints() +
		cfg.StreakBands.MaxPoints() + cfg.RSIDeltaBands.MaxPoints()
	assert.Equal(t, 100.0, total)
}

func TestLayer1DetectsPump(t *testing.T) {
	s := NewLayer1Scorer(DefaultLayer1Config())
	res, err := s.Score("PUMPUSDT", pumpingCandles())
	require.NoError(t, err)

	assert.Equal(t, 30.0, res.Components["volume_spike"])
	assert.Equal(t, 25.0, res.Components["momentum"])
	assert.Equal(t, 20.0, res.Components["streak"])
	assert.InDelta(t, 6.0, res.Metrics["volume_ratio"], 1e-9)
	assert.Equal(t, 5.0, res.Metrics["consecutive_bullish"])

	var sum float64
	for _, p := range res.Components {
		sum += p
	}
	assert.Equal(t, sum, res.Score)
	assert.True(t, res.Passed)
	assert.GreaterOrEqual(t, res.Score, 75.0)
}

func TestLayer1ExtremeRSIContributesZero(t *testing.T) {
	moves := constant(40, 1.0)
	s := NewLayer1Scorer(DefaultLayer1Config())
	res, err := s.Score("UPONLY", series(10, moves, constant(40, 100)))
	require.NoError(t, err)

	assert.Equal(t, 100.0, res.Metrics["rsi"])
	assert.Equal(t, 0.0, res.Components["rsi_momentum"])
}

func TestLayer1QuietMarketScoresLow(t *testing.T) {
	s := NewLayer1Scorer(DefaultLayer1Config())
	res, err := s.Score("FLAT", series(10, chop(40), constant(40, 100)))
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Less(t, res.Score, 20.0)
}

func TestLayer1InsufficientCandles(t *testing.T) {
	s := NewLayer1Scorer(DefaultLayer1Config())
	_, err := s.Score("NEW", series(10, chop(5), constant(5, 100)))
	assert.ErrorIs(t, err, ErrInsufficientCandles)
	assert.Equal(t, 21, s.MinCandles())
}

type stubActivity struct {
	score float64
	err   error
}

func (s stubActivity) Score(context.Context, string, []interfaces.Candle) (float64, error) {
	return s.score, s.err
}

func TestLayer2ActivityBands(t *testing.T) {
	candles := series(10, chop(60), constant(60, 100))
	cases := []struct {
		name     string
		activity ActivityScorer
		want     float64
	}{
		{"moderate activity peaks", stubActivity{score: 45}, 25},
		{"elevated activity", stubActivity{score: 65}, 12},
		{"bot-like activity penalized", stubActivity{score: 90}, -15},
		{"low activity", stubActivity{score: 20}, 10},
		{"organic", stubActivity{score: 5}, 0},
		{"scorer failure contributes zero", stubActivity{err: errors.New("offline")}, 0},
		{"no scorer", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewLayer2Scorer(DefaultLayer2Config(), tc.activity)
			res, err := s.Score(context.Background(), "AAAUSDT", candles)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Components["activity"])
		})
	}
}

func TestLayer2HealthyConfirmation(t *testing.T) {
	// steady grind up with mixed candles keeps RSI in the healthy band
	moves := make([]float64, 60)
	for i := range moves {
		if i%3 == 2 {
			moves[i] = -0.5
		} else {
			moves[i] = 0.5
		}
	}
	vols := constant(60, 100)
	for i := 56; i < 60; i++ {
		vols[i] = 200
	}
	s := NewLayer2Scorer(DefaultLayer2Config(), stubActivity{score: 40})
	res, err := s.Score(context.Background(), "AAAUSDT", series(10, moves, vols))
	require.NoError(t, err)

	assert.Equal(t, 4.0, res.Metrics["sustained_volume"])
	assert.Equal(t, 25.0, res.Components["sustained_volume"])
	assert.Equal(t, 30.0, res.Components["rsi_band"], "rsi %.2f", res.Metrics["rsi"])
	assert.True(t, res.Passed)
}

func TestLayer2OverboughtIsPenalized(t *testing.T) {
	s := NewLayer2Scorer(DefaultLayer2Config(), nil)
	res, err := s.Score(context.Background(), "HOT", series(10, constant(60, 2), constant(60, 100)))
	require.NoError(t, err)

	assert.Equal(t, -20.0, res.Components["rsi_band"])
	assert.Equal(t, -10.0, res.Components["mfi_band"])
	assert.Equal(t, 0.0, res.Score, "score is clamped at zero")
	assert.False(t, res.Passed)
}

func TestLayer3RejectsNegativeTrend(t *testing.T) {
	moves := append(constant(30, -1), chop(30)...)
	s := NewLayer3Scorer(DefaultLayer3Config())
	res, err := s.Score("DUMP", series(10, moves, constant(60, 100)))
	require.NoError(t, err)

	assert.Less(t, res.Metrics["trend_pct"], 0.0)
	assert.Equal(t, "negative_trend", res.Rejected)
	assert.Equal(t, 0.0, res.Score)
	assert.False(t, res.Passed)
}

func TestLayer3ModerateTrendValidates(t *testing.T) {
	// +0.5% a candle for 42 candles then a pullback: trend ~10%, low in range
	moves := append(chop(10), constant(38, 0.5)...)
	moves = append(moves, -2, -2, -2, -2, -0.5, 0.3, -0.3, 0.3, -0.3, 0.3, -0.3, 0.3)
	s := NewLayer3Scorer(DefaultLayer3Config())
	res, err := s.Score("GRIND", series(10, moves, constant(60, 100)))
	require.NoError(t, err)

	trend := res.Metrics["trend_pct"]
	require.Greater(t, trend, 5.0)
	require.Less(t, trend, 20.0)
	assert.Equal(t, 25.0, res.Components["trend"])
	assert.Empty(t, res.Rejected)

	var sum float64
	for _, p := range res.Components {
		sum += p
	}
	assert.Equal(t, sum, res.Score)
}

func TestCandleActivityScorer(t *testing.T) {
	s := NewCandleActivityScorer()

	metered := series(10, chop(20), constant(20, 100))
	a, err := s.Score(context.Background(), "BOT", metered)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, a, 1e-9)

	_, err = s.Score(context.Background(), "NEW", metered[:3])
	assert.ErrorIs(t, err, ErrInsufficientCandles)
}

func TestAggregator(t *testing.T) {
	agg, err := NewAggregator(Weights{Layer1: 0.3, Layer2: 0.4, Layer3: 0.3}, 80)
	require.NoError(t, err)

	final := agg.Final(80, 90, 70)
	assert.InDelta(t, 81.0, final, 1e-9)
	assert.True(t, agg.ShouldAlert(final))

	assert.False(t, agg.ShouldAlert(79))
	assert.Equal(t, agg.Final(80, 90, 70), final, "deterministic")

	_, err = NewAggregator(Weights{Layer1: 0.5, Layer2: 0.5, Layer3: 0.5}, 80)
	assert.Error(t, err)
}
