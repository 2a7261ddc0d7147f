package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pumpradar/internal/application"
	"github.com/sawpanic/pumpradar/internal/application/scan"
	"github.com/sawpanic/pumpradar/internal/candidates"
	"github.com/sawpanic/pumpradar/internal/domain/volume"
)

// Controller is the scanner control surface the handlers drive
type Controller interface {
	StartWatch(ctx context.Context) error
	StopWatch() error
	Running() bool
	Status() application.Status
	ManualScan(ctx context.Context, symbol string) (scan.ManualResult, error)
	SetSensitivityProfile(name string) error
	Profile() volume.Profile
	Candidates(stage candidates.Stage) []candidates.Candidate
}

type ctxKey struct{}

// WithRequestID stores the request id for error responses
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID returns the id stored by WithRequestID
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return "unknown"
}

// Handlers manages all HTTP endpoint handlers
type Handlers struct {
	ctl Controller
	now func() time.Time
}

// NewHandlers creates handlers bound to ctl
func NewHandlers(ctl Controller) *Handlers {
	return &Handlers{ctl: ctl, now: time.Now}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: RequestID(r.Context()),
		Timestamp: h.now().UTC(),
	})
}

// NotFound handles 404 responses
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}
