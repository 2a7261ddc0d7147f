package pump

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pumpradar/internal/data/interfaces"
	"github.com/sawpanic/pumpradar/internal/domain/indicators"
)

// ActivityScorer rates how artificial recent trading looks, from 0 (organic)
// to 100 (scripted). Implementations must be safe for concurrent use.
type ActivityScorer interface {
	Score(ctx context.Context, symbol string, window []interfaces.Candle) (float64, error)
}

// Layer2Config holds the confirmer's healthy bands
type Layer2Config struct {
	Threshold       float64 `yaml:"threshold"`
	RSIPeriod       int     `yaml:"rsi_period"`
	MFIPeriod       int     `yaml:"mfi_period"`
	SustainedRecent int     `yaml:"sustained_recent"`
	SustainedBase   int     `yaml:"sustained_baseline"`
	SustainedFactor float64 `yaml:"sustained_factor"`
	ActivityWindow  int     `yaml:"activity_window"`

	RSIBands       Bands `yaml:"rsi_bands"`
	MFIBands       Bands `yaml:"mfi_bands"`
	SustainedBands Bands `yaml:"sustained_bands"`
	ActivityBands  Bands `yaml:"activity_bands"`
}

// DefaultLayer2Config returns the production confirmation tables
func DefaultLayer2Config() Layer2Config {
	return Layer2Config{
		Threshold:       60,
		RSIPeriod:       14,
		MFIPeriod:       14,
		SustainedRecent: 5,
		SustainedBase:   20,
		SustainedFactor: 1.5,
		ActivityWindow:  24,
		RSIBands: Bands{
			{Min: 50, Max: 70, Points: 30},
			{Min: 45, Max: 50, Points: 15},
			{Min: 70, Max: 80, Points: -10},
			{Min: 80, Max: posInf, Points: -20},
		},
		MFIBands: Bands{
			{Min: 50, Max: 75, Points: 20},
			{Min: 40, Max: 50, Points: 10},
			{Min: 75, Max: 85, Points: 5},
			{Min: 85, Max: posInf, Points: -10},
		},
		SustainedBands: Bands{
			{Min: 4, Max: posInf, Points: 25},
			{Min: 3, Max: 4, Points: 18},
			{Min: 2, Max: 3, Points: 10},
		},
		ActivityBands: Bands{
			{Min: 30, Max: 60, Points: 25},
			{Min: 60, Max: 80, Points: 12},
			{Min: 80, Max: posInf, Points: -15},
			{Min: 15, Max: 30, Points: 10},
		},
	}
}

// Layer2Scorer is the confirmer
type Layer2Scorer struct {
	cfg      Layer2Config
	activity ActivityScorer
}

// NewLayer2Scorer creates a confirmer. A nil activity scorer contributes nothing.
func NewLayer2Scorer(cfg Layer2Config, activity ActivityScorer) *Layer2Scorer {
	return &Layer2Scorer{cfg: cfg, activity: activity}
}

// Threshold returns the confirmation threshold
func (s *Layer2Scorer) Threshold() float64 {
	return s.cfg.Threshold
}

// MinCandles is the shortest window Score accepts
func (s *Layer2Scorer) MinCandles() int {
	need := s.cfg.SustainedRecent + s.cfg.SustainedBase
	if n := s.cfg.RSIPeriod + 1; n > need {
		need = n
	}
	if n := s.cfg.MFIPeriod + 1; n > need {
		need = n
	}
	return need
}

// Score computes layer2Score from medium-timeframe candles
func (s *Layer2Scorer) Score(ctx context.Context, symbol string, candles []interfaces.Candle) (LayerResult, error) {
	if need := s.MinCandles(); len(candles) < need {
		return LayerResult{}, insufficient(2, len(candles), need)
	}
	r := newResult(2, symbol, s.cfg.Threshold)

	rsi := indicators.CalculateRSI(indicators.Closes(candles), s.cfg.RSIPeriod).Value
	mfi := indicators.CalculateMFI(candles, s.cfg.MFIPeriod).Value
	sustained := indicators.ElevatedVolumeCount(candles, s.cfg.SustainedRecent, s.cfg.SustainedBase, s.cfg.SustainedFactor)

	r.Metrics["rsi"] = rsi
	r.Metrics["mfi"] = mfi
	r.Metrics["sustained_volume"] = float64(sustained)

	r.add("rsi_band", s.cfg.RSIBands.Score(rsi))
	r.add("mfi_band", s.cfg.MFIBands.Score(mfi))
	r.add("sustained_volume", s.cfg.SustainedBands.Score(float64(sustained)))

	activityPoints := 0.0
	if s.activity != nil {
		window := candles
		if s.cfg.ActivityWindow > 0 && len(window) > s.cfg.ActivityWindow {
			window = window[len(window)-s.cfg.ActivityWindow:]
		}
		a, err := s.activity.Score(ctx, symbol, window)
		if err != nil {
			if ctx.Err() != nil {
				return LayerResult{}, ctx.Err()
			}
			log.Debug().Err(err).Str("symbol", symbol).Msg("Activity scorer failed, contributing zero")
		} else {
			r.Metrics["activity"] = a
			activityPoints = s.cfg.ActivityBands.Score(a)
		}
	}
	r.add("activity", activityPoints)

	r.finish()
	return r, nil
}
