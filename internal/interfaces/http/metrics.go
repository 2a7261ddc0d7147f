package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sawpanic/pumpradar/internal/alerts"
	"github.com/sawpanic/pumpradar/internal/application/scan"
	"github.com/sawpanic/pumpradar/internal/candidates"
	"github.com/sawpanic/pumpradar/internal/scheduler"
)

// MetricsRegistry holds all Prometheus metrics for pumpradar. It uses its own
// registry so tests can build as many as they like.
type MetricsRegistry struct {
	registry *prometheus.Registry

	// Scan tick metrics
	TickDuration   *prometheus.HistogramVec
	SymbolsScanned *prometheus.CounterVec
	SymbolsSkipped *prometheus.CounterVec
	Promotions     *prometheus.CounterVec
	Expirations    *prometheus.CounterVec

	// Candidate lifecycle
	Transitions *prometheus.CounterVec

	// Alert gate decisions
	AlertDecisions *prometheus.CounterVec

	// Data fetching
	FetchDuration *prometheus.HistogramVec
	LimiterWait   prometheus.Histogram

	// Scheduler
	JobRuns *prometheus.CounterVec
}

// NewMetricsRegistry creates a registry with every pumpradar metric
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		TickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pumpradar_tick_duration_seconds",
				Help:    "Duration of each scan tick in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"job"},
		),

		SymbolsScanned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pumpradar_symbols_scanned_total",
				Help: "Symbols scored per job",
			},
			[]string{"job"},
		),

		SymbolsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pumpradar_symbols_skipped_total",
				Help: "Symbols skipped per job and reason",
			},
			[]string{"job", "reason"},
		),

		Promotions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pumpradar_candidate_promotions_total",
				Help: "Candidates created or advanced per job",
			},
			[]string{"job"},
		),

		Expirations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pumpradar_candidate_expirations_total",
				Help: "Candidates expired per job",
			},
			[]string{"job"},
		),

		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pumpradar_candidate_transitions_total",
				Help: "Candidate stage transitions",
			},
			[]string{"to", "reason"},
		),

		AlertDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pumpradar_alerts_total",
				Help: "Alert gate decisions by detector kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pumpradar_fetch_duration_seconds",
				Help:    "Market data fetch latency including retries",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"op", "result"},
		),

		LimiterWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pumpradar_rate_limiter_wait_seconds",
				Help:    "Time spent waiting for a request token",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
		),

		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pumpradar_job_runs_total",
				Help: "Scheduler job runs by outcome",
			},
			[]string{"job", "result"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TickDuration,
		m.SymbolsScanned,
		m.SymbolsSkipped,
		m.Promotions,
		m.Expirations,
		m.Transitions,
		m.AlertDecisions,
		m.FetchDuration,
		m.LimiterWait,
		m.JobRuns,
	)
	return m
}

// Registry exposes the underlying registry
func (m *MetricsRegistry) Registry() *prometheus.Registry {
	return m.registry
}

// GaugeSource supplies point-in-time values read at scrape time
type GaugeSource interface {
	CandidateCounts() map[candidates.Stage]int
	UniverseSize() int
}

// RegisterGauges adds scrape-time gauges backed by src
func (m *MetricsRegistry) RegisterGauges(src GaugeSource) {
	for _, stage := range candidates.Stages() {
		if stage == candidates.Expired {
			continue
		}
		stage := stage
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        "pumpradar_candidates",
				Help:        "Tracked candidates by stage",
				ConstLabels: prometheus.Labels{"stage": stage.String()},
			},
			func() float64 { return float64(src.CandidateCounts()[stage]) },
		))
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "pumpradar_universe_symbols",
			Help: "Symbols in the current universe snapshot",
		},
		func() float64 { return float64(src.UniverseSize()) },
	))
}

// TickCompleted records a finished scan tick
func (m *MetricsRegistry) TickCompleted(rep scan.TickReport) {
	job := string(rep.Job)
	m.TickDuration.WithLabelValues(job).Observe(rep.Elapsed.Seconds())
	m.SymbolsScanned.WithLabelValues(job).Add(float64(rep.Scanned))
	m.Promotions.WithLabelValues(job).Add(float64(rep.Promoted))
	m.Expirations.WithLabelValues(job).Add(float64(rep.Expired))
	for reason, n := range rep.Skipped {
		m.SymbolsSkipped.WithLabelValues(job, reason).Add(float64(n))
	}
}

// ObserveFetch records one guarded fetch
func (m *MetricsRegistry) ObserveFetch(op string, elapsed time.Duration, err error) {
	m.FetchDuration.WithLabelValues(op, resultLabel(err)).Observe(elapsed.Seconds())
}

// ObserveLimiterWait records time blocked on the rate limiter
func (m *MetricsRegistry) ObserveLimiterWait(d time.Duration) {
	m.LimiterWait.Observe(d.Seconds())
}

// ObserveAlert records an alert gate decision
func (m *MetricsRegistry) ObserveAlert(kind alerts.DetectorKind, emitted bool) {
	outcome := "suppressed"
	if emitted {
		outcome = "emitted"
	}
	m.AlertDecisions.WithLabelValues(string(kind), outcome).Inc()
}

// ObserveTransition records a candidate stage change
func (m *MetricsRegistry) ObserveTransition(t candidates.Transition) {
	m.Transitions.WithLabelValues(t.To.String(), t.Reason).Inc()
}

// ObserveJob records a scheduler run
func (m *MetricsRegistry) ObserveJob(res scheduler.JobResult) {
	result := "success"
	if !res.Success {
		result = "error"
	}
	m.JobRuns.WithLabelValues(res.JobName, result).Inc()
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func (m *MetricsRegistry) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
