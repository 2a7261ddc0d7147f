package pump

import (
	"github.com/sawpanic/pumpradar/internal/data/interfaces"
	"github.com/sawpanic/pumpradar/internal/domain/indicators"
)

// Layer3Config holds the trend validator's tables
type Layer3Config struct {
	Threshold    float64 `yaml:"threshold"`
	RSIPeriod    int     `yaml:"rsi_period"`
	MFIPeriod    int     `yaml:"mfi_period"`
	RangePeriods int     `yaml:"range_periods"`
	TrendPeriods int     `yaml:"trend_periods"`

	RSIBands   Bands `yaml:"rsi_bands"`
	RangeBands Bands `yaml:"range_bands"`
	TrendBands Bands `yaml:"trend_bands"`
	MFIBands   Bands `yaml:"mfi_bands"`
}

// DefaultLayer3Config returns the production validation tables. Range and
// trend span 42 candles, seven days of 4h buckets.
func DefaultLayer3Config() Layer3Config {
	return Layer3Config{
		Threshold:    60,
		RSIPeriod:    14,
		MFIPeriod:    14,
		RangePeriods: 42,
		TrendPeriods: 42,
		RSIBands: Bands{
			{Min: negInf, Max: 50, Points: 30},
			{Min: 50, Max: 60, Points: 25},
			{Min: 60, Max: 70, Points: 15},
			{Min: 70, Max: 75, Points: 5},
		},
		RangeBands: Bands{
			{Min: negInf, Max: 0.3, Points: 25},
			{Min: 0.3, Max: 0.5, Points: 20},
			{Min: 0.5, Max: 0.7, Points: 12},
			{Min: 0.7, Max: 0.85, Points: 5},
		},
		TrendBands: Bands{
			{Min: 0, Max: 5, Points: 15},
			{Min: 5, Max: 20, Points: 25},
			{Min: 20, Max: 40, Points: 10},
			{Min: 40, Max: posInf, Points: -10},
		},
		MFIBands: Bands{
			{Min: 40, Max: 70, Points: 20},
			{Min: 70, Max: 80, Points: 8},
			{Min: negInf, Max: 40, Points: 5},
		},
	}
}

// Layer3Scorer is the long-timeframe trend validator
type Layer3Scorer struct {
	cfg Layer3Config
}

// NewLayer3Scorer creates a trend validator
func NewLayer3Scorer(cfg Layer3Config) *Layer3Scorer {
	return &Layer3Scorer{cfg: cfg}
}

// Threshold returns the validation threshold
func (s *Layer3Scorer) Threshold() float64 {
	return s.cfg.Threshold
}

// MinCandles is the shortest window Score accepts
func (s *Layer3Scorer) MinCandles() int {
	need := s.cfg.TrendPeriods + 1
	for _, n := range []int{s.cfg.RangePeriods, s.cfg.RSIPeriod + 1, s.cfg.MFIPeriod + 1} {
		if n > need {
			need = n
		}
	}
	return need
}

// Score computes layer3Score. A negative multi-day trend rejects the symbol
// outright with a zero score.
func (s *Layer3Scorer) Score(symbol string, candles []interfaces.Candle) (LayerResult, error) {
	if need := s.MinCandles(); len(candles) < need {
		return LayerResult{}, insufficient(3, len(candles), need)
	}
	r := newResult(3, symbol, s.cfg.Threshold)

	rsi := indicators.CalculateRSI(indicators.Closes(candles), s.cfg.RSIPeriod).Value
	pos := indicators.RangePosition(candles, s.cfg.RangePeriods)
	trend := indicators.MomentumPct(candles, s.cfg.TrendPeriods)
	mfi := indicators.CalculateMFI(candles, s.cfg.MFIPeriod).Value

	r.Metrics["rsi"] = rsi
	r.Metrics["range_position"] = pos
	r.Metrics["trend_pct"] = trend
	r.Metrics["mfi"] = mfi

	if trend < 0 {
		r.Rejected = "negative_trend"
		r.finish()
		return r, nil
	}

	r.add("rsi_headroom", s.cfg.RSIBands.Score(rsi))
	r.add("range_position", s.cfg.RangeBands.Score(pos))
	r.add("trend", s.cfg.TrendBands.Score(trend))
	r.add("mfi_band", s.cfg.MFIBands.Score(mfi))

	r.finish()
	return r, nil
}
