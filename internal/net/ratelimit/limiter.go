package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is the single request budget shared by every fetch path. It is a
// token bucket refilled at a steady rate derived from a requests-per-window
// budget. Exhaustion is backpressure: callers block in Wait.
type Limiter struct {
	limiter *rate.Limiter
	onWait  func(time.Duration)

	acquired  atomic.Int64
	throttled atomic.Int64
	waitedNs  atomic.Int64
}

// NewLimiter creates a limiter with the specified RPS and burst capacity
func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// NewWindowLimiter creates a limiter allowing requests per window on average
func NewWindowLimiter(requests int, window time.Duration, burst int) *Limiter {
	rps := float64(requests) / window.Seconds()
	return NewLimiter(rps, burst)
}

// OnWait registers an observer called with each acquisition's wait time.
// Must be set before the limiter is shared.
func (l *Limiter) OnWait(fn func(time.Duration)) {
	l.onWait = fn
}

// Allow returns true if a request is allowed right now, consuming a token
func (l *Limiter) Allow() bool {
	if l.limiter.Allow() {
		l.acquired.Add(1)
		return true
	}
	return false
}

// Wait blocks until a token is available or the context is cancelled
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	waited := time.Since(start)

	l.acquired.Add(1)
	if waited > time.Millisecond {
		l.throttled.Add(1)
		l.waitedNs.Add(int64(waited))
	}
	if l.onWait != nil {
		l.onWait(waited)
	}
	return nil
}

// SetRPS updates the refill rate
func (l *Limiter) SetRPS(rps float64) {
	l.limiter.SetLimit(rate.Limit(rps))
}

// SetBurst updates the burst capacity
func (l *Limiter) SetBurst(burst int) {
	l.limiter.SetBurst(burst)
}

// Stats returns a point-in-time view of the bucket
func (l *Limiter) Stats() LimiterStats {
	now := time.Now()
	tokens := l.limiter.TokensAt(now)

	var delay time.Duration
	if tokens < 1 && l.limiter.Limit() > 0 {
		delay = time.Duration((1 - tokens) / float64(l.limiter.Limit()) * float64(time.Second))
	}

	return LimiterStats{
		RPS:             float64(l.limiter.Limit()),
		Burst:           l.limiter.Burst(),
		TokensAvailable: tokens,
		NextAllowedAt:   now.Add(delay),
		Delay:           delay,
		Acquired:        l.acquired.Load(),
		Throttled:       l.throttled.Load(),
		TotalWait:       time.Duration(l.waitedNs.Load()),
	}
}

// LimiterStats represents statistics for the shared limiter
type LimiterStats struct {
	RPS             float64       `json:"rps"`
	Burst           int           `json:"burst"`
	TokensAvailable float64       `json:"tokens_available"`
	NextAllowedAt   time.Time     `json:"next_allowed_at"`
	Delay           time.Duration `json:"delay"`
	Acquired        int64         `json:"acquired"`
	Throttled       int64         `json:"throttled"`
	TotalWait       time.Duration `json:"total_wait"`
}

// IsThrottled returns true if the limiter is currently throttling requests
func (s *LimiterStats) IsThrottled() bool {
	return s.Delay > 0
}
