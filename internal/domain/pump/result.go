package pump

import (
	"errors"
	"fmt"
)

// ErrInsufficientCandles is returned when a scorer receives a shorter window
// than it needs.
var ErrInsufficientCandles = errors.New("insufficient candles")

func insufficient(layer, have, need int) error {
	return fmt.Errorf("layer%d: %w: have %d, need %d", layer, ErrInsufficientCandles, have, need)
}

// LayerResult is the outcome of scoring one symbol at one layer
type LayerResult struct {
	Layer      int                `json:"layer"`
	Symbol     string             `json:"symbol"`
	Score      float64            `json:"score"`
	Threshold  float64            `json:"threshold"`
	Passed     bool               `json:"passed"`
	Components map[string]float64 `json:"components"` // point contribution per signal
	Metrics    map[string]float64 `json:"metrics"`    // raw indicator values
	Rejected   string             `json:"rejected,omitempty"`
}

func newResult(layer int, symbol string, threshold float64) LayerResult {
	return LayerResult{
		Layer:      layer,
		Symbol:     symbol,
		Threshold:  threshold,
		Components: make(map[string]float64),
		Metrics:    make(map[string]float64),
	}
}

func (r *LayerResult) add(component string, points float64) {
	r.Components[component] = points
	r.Score += points
}

func (r *LayerResult) finish() {
	r.Score = clamp(r.Score, 0, 100)
	r.Passed = r.Rejected == "" && r.Score >= r.Threshold
}
