package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sawpanic/pumpradar/internal/datasources"
	"github.com/sawpanic/pumpradar/internal/domain/pump"
)

// Job names a periodic scan
type Job string

const (
	JobLayer1   Job = "layer1"
	JobLayer2   Job = "layer2"
	JobLayer3   Job = "layer3"
	JobVolume   Job = "volume"
	JobUniverse Job = "universe"
)

// TickReport summarizes one batch
type TickReport struct {
	Job       Job            `json:"job"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   time.Duration  `json:"elapsed"`
	Scanned   int            `json:"scanned"`
	Promoted  int            `json:"promoted"`
	Expired   int            `json:"expired"`
	Evaluated int            `json:"evaluated"` // reached the aggregator
	Alerts    int            `json:"alerts"`
	Skipped   map[string]int `json:"skipped,omitempty"`
}

// SkippedTotal sums skips across reasons
func (r TickReport) SkippedTotal() int {
	n := 0
	for _, v := range r.Skipped {
		n += v
	}
	return n
}

// tally accumulates a report from concurrent workers
type tally struct {
	mu  sync.Mutex
	rep TickReport
}

func newTally(job Job, start time.Time) *tally {
	return &tally{rep: TickReport{Job: job, StartedAt: start, Skipped: make(map[string]int)}}
}

func (t *tally) add(fn func(r *TickReport)) {
	t.mu.Lock()
	fn(&t.rep)
	t.mu.Unlock()
}

func (t *tally) scanned() { t.add(func(r *TickReport) { r.Scanned++ }) }

func (t *tally) skip(reason string) {
	t.add(func(r *TickReport) { r.Skipped[reason]++ })
}

func (t *tally) report(now time.Time) TickReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.rep
	out.Elapsed = now.Sub(out.StartedAt)
	out.Skipped = make(map[string]int, len(t.rep.Skipped))
	for k, v := range t.rep.Skipped {
		out.Skipped[k] = v
	}
	return out
}

func fetchSkipReason(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return datasources.SkipCanceled
	}
	return datasources.SkipReason(err)
}

func scoreSkipReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return datasources.SkipCanceled
	case errors.Is(err, pump.ErrInsufficientCandles):
		return datasources.SkipInsufficientData
	}
	return datasources.SkipScoringError
}
