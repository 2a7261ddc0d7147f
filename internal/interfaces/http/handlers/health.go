package handlers

import (
	"net/http"
)

// Health handles GET /health. The scanner is degraded while the exchange
// breaker is not closed or the universe is empty.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	st := h.ctl.Status()

	resp := HealthResponse{
		Status:         "healthy",
		Timestamp:      h.now().UTC(),
		Watching:       st.Running,
		UniverseSize:   st.UniverseSize,
		CircuitBreaker: st.CircuitBreaker,
		RateLimiter:    st.RateLimiter,
		FailedRuns:     st.FailedRuns,
	}
	switch {
	case !st.Running:
		resp.Status = "idle"
	case st.CircuitBreaker != "closed" || st.UniverseSize == 0:
		resp.Status = "degraded"
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Status handles GET /status
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ctl.Status())
}
