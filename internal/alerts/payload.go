package alerts

import (
	"context"
	"time"

	"github.com/sawpanic/pumpradar/internal/domain/volume"
)

// DetectorKind names the pipeline raising an alert. Cooldowns are tracked per
// symbol and kind, so pipelines never suppress each other.
type DetectorKind string

const (
	DetectorPump          DetectorKind = "pump"
	DetectorVolumeAnomaly DetectorKind = "volume_anomaly"
)

// Payload is the structured alert handed to sinks
type Payload struct {
	ID             string             `json:"id"`
	Symbol         string             `json:"symbol"`
	DetectorKind   DetectorKind       `json:"detector_kind"`
	FinalScore     float64            `json:"final_score,omitempty"`
	LayerBreakdown map[string]float64 `json:"layer_breakdown,omitempty"`
	Components     map[string]float64 `json:"components,omitempty"`
	Anomalies      []volume.Anomaly   `json:"anomalies,omitempty"`
	Classification string             `json:"classification,omitempty"`
	Strength       string             `json:"strength,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Sink delivers alerts downstream. Retries and delivery guarantees are the
// sink's concern.
type Sink interface {
	Deliver(ctx context.Context, p Payload) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, p Payload) error

// Deliver calls f
func (f SinkFunc) Deliver(ctx context.Context, p Payload) error {
	return f(ctx, p)
}
