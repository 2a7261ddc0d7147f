package pump

import (
	"context"
	"math"

	"github.com/sawpanic/pumpradar/internal/data/interfaces"
	"github.com/sawpanic/pumpradar/internal/domain/indicators"
)

// CandleActivityScorer estimates artificial activity from candles alone.
// Evenly metered volume and churn candles (heavy volume, almost no body)
// both read as bot-like.
type CandleActivityScorer struct {
	MinCandles    int
	ChurnBodyFrac float64
}

// NewCandleActivityScorer returns the default heuristic
func NewCandleActivityScorer() *CandleActivityScorer {
	return &CandleActivityScorer{MinCandles: 10, ChurnBodyFrac: 0.1}
}

// Score returns 60·(1−min(cv,1)) + 40·churn, in [0,100]
func (s *CandleActivityScorer) Score(_ context.Context, _ string, window []interfaces.Candle) (float64, error) {
	if len(window) < s.MinCandles {
		return 0, ErrInsufficientCandles
	}

	mean, std := indicators.MeanStd(indicators.Volumes(window))
	if mean == 0 {
		return 0, nil
	}
	cv := std / mean

	churn := 0
	for _, c := range window {
		rng := c.High - c.Low
		if rng <= 0 || c.Volume <= mean {
			continue
		}
		if math.Abs(c.Close-c.Open) < s.ChurnBodyFrac*rng {
			churn++
		}
	}
	churnFrac := float64(churn) / float64(len(window))

	return clamp(60*(1-math.Min(cv, 1))+40*churnFrac, 0, 100), nil
}
