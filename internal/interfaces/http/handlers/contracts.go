package handlers

import (
	"time"

	"github.com/sawpanic/pumpradar/internal/candidates"
	"github.com/sawpanic/pumpradar/internal/domain/volume"
	"github.com/sawpanic/pumpradar/internal/net/ratelimit"
)

// ErrorResponse is the body of every non-2xx JSON reply
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse summarizes whether the scanner can do useful work
type HealthResponse struct {
	Status         string                 `json:"status"` // healthy, degraded, idle
	Timestamp      time.Time              `json:"timestamp"`
	Watching       bool                   `json:"watching"`
	UniverseSize   int                    `json:"universe_size"`
	CircuitBreaker string                 `json:"circuit_breaker"`
	RateLimiter    ratelimit.LimiterStats `json:"rate_limiter"`
	FailedRuns     int64                  `json:"failed_runs"`
}

// WatchResponse acknowledges a start or stop request
type WatchResponse struct {
	Watching  bool      `json:"watching"`
	Timestamp time.Time `json:"timestamp"`
}

// CandidatesResponse lists tracked pump candidates
type CandidatesResponse struct {
	Stage      string                 `json:"stage,omitempty"`
	Total      int                    `json:"total"`
	Candidates []candidates.Candidate `json:"candidates"`
	Generated  time.Time              `json:"generated"`
}

// ProfileResponse reports the active sensitivity profile
type ProfileResponse struct {
	Profile  volume.Profile   `json:"profile"`
	Presets  []volume.Profile `json:"presets"`
	Switched bool             `json:"switched"`
}
