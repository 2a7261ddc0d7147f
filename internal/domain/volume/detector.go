package volume

import (
	"sort"

	"github.com/sawpanic/pumpradar/internal/data/interfaces"
	"github.com/sawpanic/pumpradar/internal/domain/indicators"
)

// Classification describes the price action accompanying a volume anomaly
type Classification string

const (
	BullishBreakout  Classification = "bullish_breakout"
	BearishBreakdown Classification = "bearish_breakdown"
	NeutralSpike     Classification = "neutral_spike"
)

// Strength tags how many timeframes flagged at once. Informational only.
type Strength string

const (
	Strong   Strength = "strong"
	Moderate Strength = "moderate"
)

// Config holds profile-independent detector settings
type Config struct {
	ZMin         float64 `json:"z_min"`
	MinSamples   int     `json:"min_samples"`
	PriceMovePct float64 `json:"price_move_pct"`
}

// DefaultConfig returns the production detector settings
func DefaultConfig() Config {
	return Config{ZMin: 2.0, MinSamples: 10, PriceMovePct: 2.0}
}

// Baseline is the rolling volume statistic for one symbol and timeframe
type Baseline struct {
	Symbol        string               `json:"symbol"`
	Timeframe     interfaces.Timeframe `json:"timeframe"`
	RollingMean   float64              `json:"rolling_mean"`
	RollingStddev float64              `json:"rolling_stddev"`
	SampleCount   int                  `json:"sample_count"`
}

// Anomaly is the evaluation of the current bucket against its baseline
type Anomaly struct {
	Baseline
	CurrentVolume  float64        `json:"current_volume"`
	Ratio          float64        `json:"ratio"`
	IncreasePct    float64        `json:"increase_pct"`
	ZScore         float64        `json:"z_score"`
	PriceChangePct float64        `json:"price_change_pct"`
	Flagged        bool           `json:"flagged"`
	Classification Classification `json:"classification,omitempty"`
	Reason         string         `json:"reason,omitempty"` // why an evaluation was not flagged
}

// Report summarizes one symbol's anomalies across timeframes
type Report struct {
	Symbol         string         `json:"symbol"`
	Profile        string         `json:"profile"`
	Anomalies      []Anomaly      `json:"anomalies"` // flagged only, highest z first
	Strength       Strength       `json:"strength"`
	Classification Classification `json:"classification"`
}

// Detector evaluates volume anomalies. It holds no per-symbol state; baselines
// are rebuilt from candles on every call.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// CandlesNeeded is the fetch size for a profile: the lookback plus the current bucket
func (d *Detector) CandlesNeeded(p Profile) int {
	return p.Lookback + 1
}

// MinCandles is the shortest window that can produce a valid z-score
func (d *Detector) MinCandles() int {
	return d.cfg.MinSamples + 1
}

// Flag applies the three independent conditions
func (d *Detector) Flag(p Profile, ratio, increasePct, z float64) bool {
	return ratio >= p.Multiplier && increasePct >= p.MinIncreasePct && z >= d.cfg.ZMin
}

// Classify maps the concurrent price change to a directional label
func (d *Detector) Classify(priceChangePct float64) Classification {
	switch {
	case priceChangePct > d.cfg.PriceMovePct:
		return BullishBreakout
	case priceChangePct < -d.cfg.PriceMovePct:
		return BearishBreakdown
	default:
		return NeutralSpike
	}
}

// Evaluate compares the latest candle's volume with the trailing window that
// precedes it. Fewer samples than the configured minimum never flag.
func (d *Detector) Evaluate(p Profile, symbol string, tf interfaces.Timeframe, candles []interfaces.Candle) Anomaly {
	a := Anomaly{Baseline: Baseline{Symbol: symbol, Timeframe: tf}}
	if len(candles) == 0 {
		a.Reason = "no_data"
		return a
	}

	current := candles[len(candles)-1]
	history := candles[:len(candles)-1]
	if p.Lookback > 0 && len(history) > p.Lookback {
		history = history[len(history)-p.Lookback:]
	}

	a.SampleCount = len(history)
	a.CurrentVolume = current.Volume
	a.PriceChangePct = current.ChangePct()

	if a.SampleCount < d.cfg.MinSamples {
		a.Reason = "insufficient_samples"
		return a
	}

	a.RollingMean, a.RollingStddev = indicators.MeanStd(indicators.Volumes(history))
	if a.RollingMean <= 0 {
		a.Reason = "zero_baseline"
		return a
	}
	z, ok := indicators.ZScore(current.Volume, a.RollingMean, a.RollingStddev)
	if !ok {
		a.Reason = "zero_variance"
		return a
	}

	a.ZScore = z
	a.Ratio = current.Volume / a.RollingMean
	a.IncreasePct = (current.Volume - a.RollingMean) / a.RollingMean * 100
	a.Flagged = d.Flag(p, a.Ratio, a.IncreasePct, a.ZScore)
	if a.Flagged {
		a.Classification = d.Classify(a.PriceChangePct)
	} else {
		a.Reason = "below_threshold"
	}
	return a
}

// Summarize builds a report from per-timeframe evaluations. It returns false
// when nothing flagged.
func (d *Detector) Summarize(p Profile, symbol string, evaluations []Anomaly) (Report, bool) {
	flagged := make([]Anomaly, 0, len(evaluations))
	for _, a := range evaluations {
		if a.Flagged {
			flagged = append(flagged, a)
		}
	}
	if len(flagged) == 0 {
		return Report{}, false
	}
	sort.SliceStable(flagged, func(i, j int) bool { return flagged[i].ZScore > flagged[j].ZScore })

	r := Report{
		Symbol:         symbol,
		Profile:        p.Name,
		Anomalies:      flagged,
		Strength:       Moderate,
		Classification: flagged[0].Classification,
	}
	if len(flagged) >= 2 {
		r.Strength = Strong
	}
	return r, true
}
