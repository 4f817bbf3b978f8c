// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/pitwall/internal/domain/dedupe"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/view"
)

// EventDependencies defines the interface for event processing dependencies.
type EventDependencies interface {
	dedupe.Deduper
	Enqueue(ctx context.Context, e model.Event) bool
	EventFlags(ctx context.Context, sessionID, eventID string) (view.EventFlags, error)
}

// EventsHandler handles event submissions and per-event flag queries.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvent handles POST /sessions/{id}/events requests. Both fresh
// events and deletion notices arrive here; a deletion carries the original
// event_id plus deleted_at.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request, sessionID string) {
	const op = "api.post_event"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	// Idempotency check - mark as seen first. A deletion notice reuses the
	// original event id, so it gets its own dedupe key.
	key := req.EventID
	if req.deletion() {
		key += ":deleted"
	}
	if h.deps.SeenAndRecord(r.Context(), key) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	// Try to enqueue for async processing
	if ok := h.deps.Enqueue(r.Context(), req.toEvent(sessionID)); !ok {
		// Rollback the "seen" status since enqueue failed
		h.deps.Unrecord(r.Context(), key)
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false})
}

// HandleGetEventFlags handles GET /sessions/{id}/events/{eid}/flags requests.
func (h *EventsHandler) HandleGetEventFlags(w http.ResponseWriter, r *http.Request, sessionID, eventID string) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	flags, err := h.deps.EventFlags(r.Context(), sessionID, eventID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, notFoundCode(err), err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}
