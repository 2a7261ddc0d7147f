package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/sawpanic/pumpradar/internal/application"
	"github.com/sawpanic/pumpradar/internal/application/scan"
	"github.com/sawpanic/pumpradar/internal/domain/volume"
)

// StartWatch handles POST /watch/start
func (h *Handlers) StartWatch(w http.ResponseWriter, r *http.Request) {
	err := h.ctl.StartWatch(r.Context())
	switch {
	case errors.Is(err, application.ErrAlreadyWatching):
		h.writeError(w, r, http.StatusConflict, "already_watching", err.Error())
	case err != nil:
		h.writeError(w, r, http.StatusServiceUnavailable, "start_failed", err.Error())
	default:
		h.writeJSON(w, http.StatusAccepted, WatchResponse{Watching: true, Timestamp: h.now().UTC()})
	}
}

// StopWatch handles POST /watch/stop
func (h *Handlers) StopWatch(w http.ResponseWriter, r *http.Request) {
	err := h.ctl.StopWatch()
	switch {
	case errors.Is(err, application.ErrNotWatching):
		h.writeError(w, r, http.StatusConflict, "not_watching", err.Error())
	case err != nil:
		h.writeError(w, r, http.StatusInternalServerError, "stop_failed", err.Error())
	default:
		h.writeJSON(w, http.StatusOK, WatchResponse{Watching: false, Timestamp: h.now().UTC()})
	}
}

// Scan handles GET /scan/{symbol}
func (h *Handlers) Scan(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(mux.Vars(r)["symbol"])
	res, err := h.ctl.ManualScan(r.Context(), symbol)
	switch {
	case errors.Is(err, scan.ErrNothingScored):
		h.writeError(w, r, http.StatusBadGateway, "nothing_scored", err.Error())
	case err != nil:
		h.writeError(w, r, http.StatusBadRequest, "scan_failed", err.Error())
	default:
		h.writeJSON(w, http.StatusOK, res)
	}
}

// Profile handles GET /profile
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, ProfileResponse{Profile: h.ctl.Profile(), Presets: volume.Presets()})
}

// SetProfile handles PUT /profile/{name}
func (h *Handlers) SetProfile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.ctl.SetSensitivityProfile(name); err != nil {
		code := "invalid_profile"
		if errors.Is(err, application.ErrUnknownProfile) {
			code = "unknown_profile"
		}
		h.writeError(w, r, http.StatusBadRequest, code, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, ProfileResponse{Profile: h.ctl.Profile(), Presets: volume.Presets(), Switched: true})
}
