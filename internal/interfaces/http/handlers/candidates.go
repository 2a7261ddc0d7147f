package handlers

import (
	"net/http"
	"strconv"

	"github.com/sawpanic/pumpradar/internal/candidates"
)

const maxCandidates = 500

// Candidates handles GET /candidates?stage=&n=
func (h *Handlers) Candidates(w http.ResponseWriter, r *http.Request) {
	var stage candidates.Stage
	if name := r.URL.Query().Get("stage"); name != "" {
		s, err := candidates.ParseStage(name)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid_stage", err.Error())
			return
		}
		stage = s
	}

	n := maxCandidates
	if nStr := r.URL.Query().Get("n"); nStr != "" {
		if parsed, err := strconv.Atoi(nStr); err == nil && parsed > 0 && parsed <= maxCandidates {
			n = parsed
		}
	}

	list := h.ctl.Candidates(stage)
	resp := CandidatesResponse{
		Total:      len(list),
		Candidates: list,
		Generated:  h.now().UTC(),
	}
	if stage != 0 {
		resp.Stage = stage.String()
	}
	if len(resp.Candidates) > n {
		resp.Candidates = resp.Candidates[:n]
	}
	if resp.Candidates == nil {
		resp.Candidates = []candidates.Candidate{}
	}

	h.writeJSON(w, http.StatusOK, resp)
}
