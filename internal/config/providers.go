package config

import (
	"errors"
	"fmt"
	"time"
)

// ProviderConfig describes the market data provider and its request budget.
type ProviderConfig struct {
	Name              string        `yaml:"name"`
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`             // per request
	RequestsPerWindow int           `yaml:"requests_per_window"` // shared budget across all scans
	Window            time.Duration `yaml:"window"`
	Burst             int           `yaml:"burst"`
	Backoff           BackoffConfig `yaml:"backoff"`
	Circuit           CircuitConfig `yaml:"circuit"`
	UserAgent         string        `yaml:"user_agent"`
}

// BackoffConfig represents exponential backoff for transient fetch errors.
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	MaxRetries int           `yaml:"max_retries"`
}

// CircuitConfig represents circuit breaker configuration
type CircuitConfig struct {
	ConsecutiveFailures int           `yaml:"consecutive_failures"` // failures before opening
	FailureRatio        float64       `yaml:"failure_ratio"`        // ratio over MinRequests that also opens
	MinRequests         int           `yaml:"min_requests"`
	Interval            time.Duration `yaml:"interval"` // closed-state count reset
	OpenTimeout         time.Duration `yaml:"open_timeout"`
}

// DefaultProviderConfig returns the Binance spot defaults, kept under the
// public weight limit of 1200 per minute.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Name:              "binance",
		BaseURL:           "https://api.binance.com",
		Timeout:           10 * time.Second,
		RequestsPerWindow: 1100,
		Window:            time.Minute,
		Burst:             20,
		Backoff: BackoffConfig{
			Initial:    250 * time.Millisecond,
			Max:        4 * time.Second,
			MaxRetries: 3,
		},
		Circuit: CircuitConfig{
			ConsecutiveFailures: 5,
			FailureRatio:        0.5,
			MinRequests:         20,
			Interval:            time.Minute,
			OpenTimeout:         30 * time.Second,
		},
		UserAgent: "pumpradar/1.0",
	}
}

// RPS converts the request budget into a steady token refill rate.
func (p ProviderConfig) RPS() float64 {
	if p.Window <= 0 {
		return 0
	}
	return float64(p.RequestsPerWindow) / p.Window.Seconds()
}

// Validate ensures the provider configuration is usable
func (p ProviderConfig) Validate() error {
	var errs []error
	if p.BaseURL == "" {
		errs = append(errs, errors.New("provider.base_url is required"))
	}
	if p.RequestsPerWindow <= 0 {
		errs = append(errs, errors.New("provider.requests_per_window must be positive"))
	}
	if p.Window <= 0 {
		errs = append(errs, errors.New("provider.window must be positive"))
	}
	if p.Burst <= 0 {
		errs = append(errs, errors.New("provider.burst must be positive"))
	}
	if p.Timeout <= 0 {
		errs = append(errs, errors.New("provider.timeout must be positive"))
	}
	if p.Backoff.MaxRetries < 0 {
		errs = append(errs, errors.New("provider.backoff.max_retries must be >= 0"))
	}
	if p.Backoff.Initial <= 0 || p.Backoff.Max < p.Backoff.Initial {
		errs = append(errs, fmt.Errorf("provider.backoff initial %s / max %s invalid", p.Backoff.Initial, p.Backoff.Max))
	}
	if p.Circuit.ConsecutiveFailures <= 0 {
		errs = append(errs, errors.New("provider.circuit.consecutive_failures must be positive"))
	}
	if p.Circuit.FailureRatio <= 0 || p.Circuit.FailureRatio > 1 {
		errs = append(errs, errors.New("provider.circuit.failure_ratio must be in (0,1]"))
	}
	if p.Circuit.OpenTimeout <= 0 {
		errs = append(errs, errors.New("provider.circuit.open_timeout must be positive"))
	}
	return errors.Join(errs...)
}
