package application

import (
	"time"

	"github.com/sawpanic/pumpradar/internal/alerts"
	"github.com/sawpanic/pumpradar/internal/application/scan"
	"github.com/sawpanic/pumpradar/internal/candidates"
	"github.com/sawpanic/pumpradar/internal/domain/volume"
	"github.com/sawpanic/pumpradar/internal/net/ratelimit"
	"github.com/sawpanic/pumpradar/internal/scheduler"
)

// Status is the observable state of the watcher
type Status struct {
	Running               bool                         `json:"running"`
	StartedAt             time.Time                    `json:"started_at,omitempty"`
	Intervals             map[string]string            `json:"intervals"`
	TrackedCandidateCount int                          `json:"tracked_candidate_count"`
	CandidatesByStage     map[candidates.Stage]int     `json:"candidates_by_stage"`
	LastScanTimestamps    map[string]time.Time         `json:"last_scan_timestamps"`
	LastReports           map[scan.Job]scan.TickReport `json:"last_reports"`
	SkippedSymbols        map[string]int64             `json:"skipped_symbols"`
	FailedRuns            int64                        `json:"failed_runs"`
	UniverseSize          int                          `json:"universe_size"`
	UniverseRefreshedAt   time.Time                    `json:"universe_refreshed_at"`
	Profile               volume.Profile               `json:"profile"`
	RateLimiter           ratelimit.LimiterStats       `json:"rate_limiter"`
	CircuitBreaker        string                       `json:"circuit_breaker"`
	Alerts                alerts.GateStats             `json:"alerts"`
	Jobs                  []scheduler.JobStatus        `json:"jobs"`
}

// Status returns a point-in-time snapshot
func (w *Watcher) Status() Status {
	sched := w.sched.GetStatus()
	snap := w.universe.Snapshot()
	counts := w.store.Counts()

	st := Status{
		Running:             sched.Running,
		StartedAt:           sched.StartedAt,
		Intervals:           w.intervals(),
		CandidatesByStage:   counts,
		LastScanTimestamps:  w.sched.LastRuns(),
		UniverseSize:        len(snap.Symbols),
		UniverseRefreshedAt: snap.RefreshedAt,
		Profile:             w.engine.Profile(),
		RateLimiter:         w.limiter.Stats(),
		CircuitBreaker:      w.source.BreakerState(),
		Alerts:              w.gate.Stats(),
		Jobs:                sched.Jobs,
	}
	for _, n := range counts {
		st.TrackedCandidateCount += n
	}

	w.mu.Lock()
	st.FailedRuns = w.failed
	st.SkippedSymbols = make(map[string]int64, len(w.skipped))
	for k, v := range w.skipped {
		st.SkippedSymbols[k] = v
	}
	st.LastReports = make(map[scan.Job]scan.TickReport, len(w.reports))
	for k, v := range w.reports {
		st.LastReports[k] = v
	}
	w.mu.Unlock()

	return st
}

func (w *Watcher) intervals() map[string]string {
	return map[string]string{
		string(scan.JobLayer1):   w.cfg.Layer1.Interval.String(),
		string(scan.JobLayer2):   w.cfg.Layer2.Interval.String(),
		string(scan.JobLayer3):   w.cfg.Layer3.Interval.String(),
		string(scan.JobVolume):   w.cfg.Volume.Interval.String(),
		string(scan.JobUniverse): w.cfg.Universe.RefreshInterval.String(),
	}
}
