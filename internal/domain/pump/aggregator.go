package pump

import (
	"fmt"
	"math"
)

// Weights combine the three layer scores. They must sum to 1.
type Weights struct {
	Layer1 float64 `json:"layer1"`
	Layer2 float64 `json:"layer2"`
	Layer3 float64 `json:"layer3"`
}

// Validate checks the weights are non-negative and sum to 1
func (w Weights) Validate() error {
	if w.Layer1 < 0 || w.Layer2 < 0 || w.Layer3 < 0 {
		return fmt.Errorf("negative weight in %+v", w)
	}
	if sum := w.Layer1 + w.Layer2 + w.Layer3; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("weights sum to %.6f, want 1", sum)
	}
	return nil
}

// Aggregator computes the final confidence score of a validated candidate
type Aggregator struct {
	weights        Weights
	alertThreshold float64
}

// NewAggregator validates the weights
func NewAggregator(weights Weights, alertThreshold float64) (*Aggregator, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{weights: weights, alertThreshold: alertThreshold}, nil
}

// Final returns w1·l1 + w2·l2 + w3·l3
func (a *Aggregator) Final(layer1, layer2, layer3 float64) float64 {
	return a.weights.Layer1*layer1 + a.weights.Layer2*layer2 + a.weights.Layer3*layer3
}

// ShouldAlert reports whether a final score reaches the alert threshold
func (a *Aggregator) ShouldAlert(final float64) bool {
	return final >= a.alertThreshold
}

// AlertThreshold returns the configured alert threshold
func (a *Aggregator) AlertThreshold() float64 {
	return a.alertThreshold
}

// Weights returns the configured weights
func (a *Aggregator) Weights() Weights {
	return a.weights
}
