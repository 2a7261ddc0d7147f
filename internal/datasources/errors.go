package datasources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/sony/gobreaker"

	"github.com/sawpanic/pumpradar/internal/data/interfaces"
)

// ErrTransientFetch marks failures that may succeed on a later attempt.
var ErrTransientFetch = errors.New("transient fetch error")

// Kind classifies a failed fetch for skip accounting.
type Kind int

const (
	KindTransient Kind = iota
	KindPermanent
	KindCircuitOpen
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindCircuitOpen:
		return "circuit_open"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// FetchError is returned once a fetch is abandoned for the current tick.
type FetchError struct {
	Op        string
	Symbol    string
	Timeframe interfaces.Timeframe
	Kind      Kind
	Attempts  int
	Err       error
}

func (e *FetchError) Error() string {
	if e.Timeframe != "" {
		return fmt.Sprintf("%s %s %s: %s after %d attempt(s): %v", e.Op, e.Symbol, e.Timeframe, e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s %s: %s after %d attempt(s): %v", e.Op, e.Symbol, e.Kind, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTransientFetch) match transient and breaker failures.
func (e *FetchError) Is(target error) bool {
	return target == ErrTransientFetch && (e.Kind == KindTransient || e.Kind == KindCircuitOpen)
}

// DataInsufficientError means fewer candles exist than the computation needs.
// The symbol is skipped without retry until history accumulates.
type DataInsufficientError struct {
	Symbol    string
	Timeframe interfaces.Timeframe
	Have      int
	Need      int
}

func (e *DataInsufficientError) Error() string {
	return fmt.Sprintf("insufficient data for %s %s: have %d candles, need %d", e.Symbol, e.Timeframe, e.Have, e.Need)
}

// Skip reasons reported in scan statistics.
const (
	SkipFetchError       = "fetch_error"
	SkipInsufficientData = "insufficient_data"
	SkipCircuitOpen      = "circuit_open"
	SkipCanceled         = "canceled"
	SkipScoringError     = "scoring_error"
)

// SkipReason maps an error to the reason a symbol was skipped.
func SkipReason(err error) string {
	var insufficient *DataInsufficientError
	if errors.As(err, &insufficient) {
		return SkipInsufficientData
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case KindCircuitOpen:
			return SkipCircuitOpen
		case KindCanceled:
			return SkipCanceled
		}
		return SkipFetchError
	}
	if errors.Is(err, context.Canceled) {
		return SkipCanceled
	}
	return SkipFetchError
}

// IsTransient reports whether err is worth retrying: network failures,
// per-request timeouts and exchange-side throttling or 5xx responses.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransientFetch) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

func classify(ctx context.Context, err error) Kind {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return KindCircuitOpen
	case IsTransient(err):
		return KindTransient
	default:
		return KindPermanent
	}
}
