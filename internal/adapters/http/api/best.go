// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// BestDependencies defines the interface for best-record queries.
type BestDependencies interface {
	BestLap(ctx context.Context, sessionID string) (time.Duration, bool, error)
	BestSector(ctx context.Context, sessionID string, sector int) (time.Duration, bool, error)
}

// bestResponse is the read shape for best-record queries. Set is false when
// no best exists for the scope, which is a valid answer, not an error.
type bestResponse struct {
	Set       bool  `json:"set"`
	ElapsedMS int64 `json:"elapsed_ms,omitempty"`
	Sector    int   `json:"sector,omitempty"`
}

// BestHandler handles best-lap and best-sector requests.
type BestHandler struct {
	deps BestDependencies
}

// NewBestHandler creates a new best handler.
func NewBestHandler(deps BestDependencies) *BestHandler {
	return &BestHandler{deps: deps}
}

// HandleGetBestLap handles GET /sessions/{id}/best-lap requests.
func (h *BestHandler) HandleGetBestLap(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	elapsed, set, err := h.deps.BestLap(r.Context(), sessionID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, notFoundCode(err), err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, bestResponse{Set: set, ElapsedMS: elapsed.Milliseconds()})
}

// HandleGetBestSector handles GET /sessions/{id}/best-sector?number=N requests.
func (h *BestHandler) HandleGetBestSector(w http.ResponseWriter, r *http.Request, sessionID string) {
	const op = "api.best_sector"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	number, err := strconv.Atoi(r.URL.Query().Get("number"))
	if err != nil || number < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	elapsed, set, err := h.deps.BestSector(r.Context(), sessionID, number)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, notFoundCode(err), err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, bestResponse{Set: set, ElapsedMS: elapsed.Milliseconds(), Sector: number})
}
