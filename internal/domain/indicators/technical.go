package indicators

import (
	"math"

	"github.com/sawpanic/pumpradar/internal/data/interfaces"
)

// RSIResult represents the result of RSI calculation
type RSIResult struct {
	Value     float64 `json:"value"`
	Period    int     `json:"period"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateRSI computes Wilder's Relative Strength Index over closing prices.
// Insufficient data yields a neutral, invalid 50.
func CalculateRSI(prices []float64, period int) RSIResult {
	res := RSIResult{Value: 50, Period: period, DataCount: len(prices)}
	if period <= 0 || len(prices) < period+1 {
		return res
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := split(prices[i] - prices[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(prices); i++ {
		gain, loss := split(prices[i] - prices[i-1])
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	res.IsValid = true
	switch {
	case avgLoss == 0 && avgGain == 0:
		res.Value = 50
	case avgLoss == 0:
		res.Value = 100
	default:
		res.Value = 100 - 100/(1+avgGain/avgLoss)
	}
	return res
}

func split(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

// RSIDelta is the change in RSI between lookback periods ago and now.
type RSIDelta struct {
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
	Delta    float64 `json:"delta"`
	IsValid  bool    `json:"is_valid"`
}

// CalculateRSIDelta compares RSI on the full series with RSI on the series
// truncated by lookback candles.
func CalculateRSIDelta(prices []float64, period, lookback int) RSIDelta {
	if lookback <= 0 || len(prices) < period+1+lookback {
		return RSIDelta{Current: CalculateRSI(prices, period).Value, Previous: 50}
	}
	cur := CalculateRSI(prices, period)
	prev := CalculateRSI(prices[:len(prices)-lookback], period)
	return RSIDelta{
		Current:  cur.Value,
		Previous: prev.Value,
		Delta:    cur.Value - prev.Value,
		IsValid:  cur.IsValid && prev.IsValid,
	}
}

// MFIResult represents the result of a Money Flow Index calculation
type MFIResult struct {
	Value     float64 `json:"value"`
	Period    int     `json:"period"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateMFI computes the Money Flow Index from typical price and volume.
func CalculateMFI(candles []interfaces.Candle, period int) MFIResult {
	res := MFIResult{Value: 50, Period: period, DataCount: len(candles)}
	if period <= 0 || len(candles) < period+1 {
		return res
	}

	window := candles[len(candles)-period-1:]
	var pos, neg float64
	prevTP := typicalPrice(window[0])
	for _, c := range window[1:] {
		tp := typicalPrice(c)
		flow := tp * c.Volume
		switch {
		case tp > prevTP:
			pos += flow
		case tp < prevTP:
			neg += flow
		}
		prevTP = tp
	}

	res.IsValid = true
	switch {
	case neg == 0 && pos == 0:
		res.Value = 50
	case neg == 0:
		res.Value = 100
	default:
		res.Value = 100 - 100/(1+pos/neg)
	}
	return res
}

func typicalPrice(c interfaces.Candle) float64 {
	return (c.High + c.Low + c.Close) / 3
}

// Closes extracts closing prices
func Closes(candles []interfaces.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts base volumes
func Volumes(candles []interfaces.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// MomentumPct is the percent change from the close periods candles back to
// the latest close.
func MomentumPct(candles []interfaces.Candle, periods int) float64 {
	if periods <= 0 || len(candles) < periods+1 {
		return 0
	}
	base := candles[len(candles)-1-periods].Close
	if base == 0 {
		return 0
	}
	return (candles[len(candles)-1].Close - base) / base * 100
}

// ConsecutiveBullish counts bullish candles ending at the latest one.
func ConsecutiveBullish(candles []interfaces.Candle) int {
	n := 0
	for i := len(candles) - 1; i >= 0 && candles[i].Bullish(); i-- {
		n++
	}
	return n
}

// RangePosition returns where the latest close sits in the high/low range of
// the last periods candles: 0 at the low, 1 at the high. A flat range is 0.5.
func RangePosition(candles []interfaces.Candle, periods int) float64 {
	if len(candles) == 0 {
		return 0.5
	}
	if periods <= 0 || periods > len(candles) {
		periods = len(candles)
	}
	window := candles[len(candles)-periods:]
	high, low := window[0].High, window[0].Low
	for _, c := range window[1:] {
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}
	if high <= low {
		return 0.5
	}
	pos := (candles[len(candles)-1].Close - low) / (high - low)
	return math.Max(0, math.Min(1, pos))
}

// MeanStd returns the mean and population standard deviation of values.
func MeanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(values)))
}

// ZScore returns how many standard deviations x lies from mean. The second
// result is false when std is zero.
func ZScore(x, mean, std float64) (float64, bool) {
	if std == 0 {
		return 0, false
	}
	return (x - mean) / std, true
}

// VolumeRatio divides the latest candle's volume by the mean volume of the
// baseline candles preceding it.
func VolumeRatio(candles []interfaces.Candle, baseline int) float64 {
	if len(candles) < 2 {
		return 0
	}
	prior := candles[:len(candles)-1]
	if baseline > 0 && len(prior) > baseline {
		prior = prior[len(prior)-baseline:]
	}
	mean, _ := MeanStd(Volumes(prior))
	if mean == 0 {
		return 0
	}
	return candles[len(candles)-1].Volume / mean
}

// ElevatedVolumeCount counts how many of the last recent candles have volume
// of at least factor times the mean of the baseline candles before them.
func ElevatedVolumeCount(candles []interfaces.Candle, recent, baseline int, factor float64) int {
	if recent <= 0 || len(candles) <= recent {
		return 0
	}
	prior := candles[:len(candles)-recent]
	if baseline > 0 && len(prior) > baseline {
		prior = prior[len(prior)-baseline:]
	}
	mean, _ := MeanStd(Volumes(prior))
	if mean == 0 {
		return 0
	}
	n := 0
	for _, c := range candles[len(candles)-recent:] {
		if c.Volume >= factor*mean {
			n++
		}
	}
	return n
}
