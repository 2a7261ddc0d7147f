package alerts

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	core "github.com/sawpanic/pumpradar/internal/alerts"
)

// LogSink writes alerts to the structured log
type LogSink struct {
	level zerolog.Level
}

// NewLogSink creates a sink logging at Info
func NewLogSink() *LogSink {
	return &LogSink{level: zerolog.InfoLevel}
}

func (s *LogSink) Deliver(_ context.Context, p core.Payload) error {
	ev := log.WithLevel(s.level).
		Str("alert_id", p.ID).
		Str("symbol", p.Symbol).
		Str("kind", string(p.DetectorKind)).
		Time("at", p.Timestamp)

	switch p.DetectorKind {
	case core.DetectorPump:
		ev = ev.Float64("final_score", p.FinalScore)
		for _, layer := range sortedKeys(p.LayerBreakdown) {
			ev = ev.Float64(layer, p.LayerBreakdown[layer])
		}
	case core.DetectorVolumeAnomaly:
		ev = ev.Str("classification", p.Classification).
			Str("strength", p.Strength).
			Int("timeframes", len(p.Anomalies))
	}

	ev.Msg("alert")
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
