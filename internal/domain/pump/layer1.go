package pump

import (
	"github.com/sawpanic/pumpradar/internal/data/interfaces"
	"github.com/sawpanic/pumpradar/internal/domain/indicators"
)

// Layer1Config holds the fast detector's signal tables
type Layer1Config struct {
	Threshold       float64 `yaml:"threshold"`
	VolumeBaseline  int     `yaml:"volume_baseline"`
	MomentumPeriods int     `yaml:"momentum_periods"`
	RSIPeriod       int     `yaml:"rsi_period"`
	RSIDeltaPeriods int     `yaml:"rsi_delta_periods"`
	RSIExtreme      float64 `yaml:"rsi_extreme"` // at or above this, RSI momentum is ambiguous and scores zero

	VolumeBands   Bands `yaml:"volume_bands"`
	MomentumBands Bands `yaml:"momentum_bands"`
	StreakBands   Bands `yaml:"streak_bands"`
	RSIDeltaBands Bands `yaml:"rsi_delta_bands"`
}

// DefaultLayer1Config returns the production fast-detector tables (max 100 points)
func DefaultLayer1Config() Layer1Config {
	return Layer1Config{
		Threshold:       60,
		VolumeBaseline:  20,
		MomentumPeriods: 5,
		RSIPeriod:       14,
		RSIDeltaPeriods: 3,
		RSIExtreme:      80,
		VolumeBands: Bands{
			{Min: 5, Max: posInf, Points: 30},
			{Min: 3, Max: 5, Points: 22},
			{Min: 2, Max: 3, Points: 15},
			{Min: 1.5, Max: 2, Points: 8},
		},
		MomentumBands: Bands{
			{Min: 5, Max: posInf, Points: 25},
			{Min: 3, Max: 5, Points: 18},
			{Min: 1.5, Max: 3, Points: 10},
			{Min: 0.5, Max: 1.5, Points: 5},
		},
		StreakBands: Bands{
			{Min: 5, Max: posInf, Points: 20},
			{Min: 4, Max: 5, Points: 15},
			{Min: 3, Max: 4, Points: 10},
			{Min: 2, Max: 3, Points: 5},
		},
		RSIDeltaBands: Bands{
			{Min: 15, Max: posInf, Points: 25},
			{Min: 10, Max: 15, Points: 18},
			{Min: 5, Max: 10, Points: 10},
			{Min: 2, Max: 5, Points: 5},
		},
	}
}

// Layer1Scorer is the fast detector. It is stateless and safe for concurrent use.
type Layer1Scorer struct {
	cfg Layer1Config
}

// NewLayer1Scorer creates a fast detector
func NewLayer1Scorer(cfg Layer1Config) *Layer1Scorer {
	return &Layer1Scorer{cfg: cfg}
}

// Threshold returns the promotion threshold
func (s *Layer1Scorer) Threshold() float64 {
	return s.cfg.Threshold
}

// MinCandles is the shortest window Score accepts
func (s *Layer1Scorer) MinCandles() int {
	need := s.cfg.VolumeBaseline + 1
	if n := s.cfg.RSIPeriod + 1 + s.cfg.RSIDeltaPeriods; n > need {
		need = n
	}
	if n := s.cfg.MomentumPeriods + 1; n > need {
		need = n
	}
	return need
}

// Score computes layer1Score from short-timeframe candles
func (s *Layer1Scorer) Score(symbol string, candles []interfaces.Candle) (LayerResult, error) {
	if need := s.MinCandles(); len(candles) < need {
		return LayerResult{}, insufficient(1, len(candles), need)
	}
	r := newResult(1, symbol, s.cfg.Threshold)

	volRatio := indicators.VolumeRatio(candles, s.cfg.VolumeBaseline)
	momentum := indicators.MomentumPct(candles, s.cfg.MomentumPeriods)
	streak := indicators.ConsecutiveBullish(candles)
	rsi := indicators.CalculateRSIDelta(indicators.Closes(candles), s.cfg.RSIPeriod, s.cfg.RSIDeltaPeriods)

	r.Metrics["volume_ratio"] = volRatio
	r.Metrics["momentum_pct"] = momentum
	r.Metrics["consecutive_bullish"] = float64(streak)
	r.Metrics["rsi"] = rsi.Current
	r.Metrics["rsi_delta"] = rsi.Delta

	r.add("volume_spike", s.cfg.VolumeBands.Score(volRatio))
	r.add("momentum", s.cfg.MomentumBands.Score(momentum))
	r.add("streak", s.cfg.StreakBands.Score(float64(streak)))

	rsiPoints := 0.0
	if rsi.Current < s.cfg.RSIExtreme {
		rsiPoints = s.cfg.RSIDeltaBands.Score(rsi.Delta)
	}
	r.add("rsi_momentum", rsiPoints)

	r.finish()
	return r, nil
}
