package alerts

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	core "github.com/sawpanic/pumpradar/internal/alerts"
)

// NamedSink labels a sink for logging
type NamedSink struct {
	Name string
	Sink core.Sink
}

// MultiSink fans an alert out to every sink. A failing sink never stops
// delivery to the others.
type MultiSink struct {
	sinks []NamedSink
}

// NewMultiSink creates a fan-out sink
func NewMultiSink(sinks ...NamedSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Add appends a sink
func (m *MultiSink) Add(name string, sink core.Sink) {
	m.sinks = append(m.sinks, NamedSink{Name: name, Sink: sink})
}

// Len returns the number of sinks
func (m *MultiSink) Len() int { return len(m.sinks) }

func (m *MultiSink) Deliver(ctx context.Context, p core.Payload) error {
	var errs []error
	for _, ns := range m.sinks {
		if err := m.deliverOne(ctx, ns, p); err != nil {
			log.Warn().Err(err).
				Str("sink", ns.Name).
				Str("symbol", p.Symbol).
				Str("kind", string(p.DetectorKind)).
				Msg("alert sink failed")
			errs = append(errs, fmt.Errorf("%s: %w", ns.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) deliverOne(ctx context.Context, ns NamedSink, p core.Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return ns.Sink.Deliver(ctx, p)
}
