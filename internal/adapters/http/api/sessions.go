// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"strings"
)

// SessionsHandler routes everything under /sessions/ to the per-resource
// handlers. The stdlib mux has no path parameters, so the split happens here.
type SessionsHandler struct {
	deps        Dependencies
	events      *EventsHandler
	leaderboard *LeaderboardHandler
	best        *BestHandler
	devices     *DevicesHandler
	snapshot    *SnapshotHandler
}

// NewSessionsHandler creates a new sessions handler with its sub-handlers.
func NewSessionsHandler(deps Dependencies) *SessionsHandler {
	return &SessionsHandler{
		deps:        deps,
		events:      NewEventsHandler(deps),
		leaderboard: NewLeaderboardHandler(deps),
		best:        NewBestHandler(deps),
		devices:     NewDevicesHandler(deps),
		snapshot:    NewSnapshotHandler(deps),
	}
}

// HandleSessions dispatches /sessions/{id} and its subresources:
//
//	PUT    /sessions/{id}                      join
//	DELETE /sessions/{id}                      leave
//	POST   /sessions/{id}/events               submit event or deletion notice
//	GET    /sessions/{id}/events/{eid}/flags   stamped and live best flags
//	GET    /sessions/{id}/leaderboard          standings snapshot
//	GET    /sessions/{id}/best-lap             session-wide best lap
//	GET    /sessions/{id}/best-sector?number=N session-wide best sector
//	PUT    /sessions/{id}/devices/{did}        device presentation metadata
//	PUT    /sessions/{id}/snapshot             wholesale state replacement
func (h *SessionsHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	const op = "api.sessions"

	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(rest, "/")
	sessionID := parts[0]
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	switch {
	case len(parts) == 1:
		h.handleSession(w, r, sessionID)
	case parts[1] == "events" && len(parts) == 2:
		h.events.HandlePostEvent(w, r, sessionID)
	case parts[1] == "events" && len(parts) == 4 && parts[3] == "flags":
		h.events.HandleGetEventFlags(w, r, sessionID, parts[2])
	case parts[1] == "leaderboard" && len(parts) == 2:
		h.leaderboard.HandleGetLeaderboard(w, r, sessionID)
	case parts[1] == "best-lap" && len(parts) == 2:
		h.best.HandleGetBestLap(w, r, sessionID)
	case parts[1] == "best-sector" && len(parts) == 2:
		h.best.HandleGetBestSector(w, r, sessionID)
	case parts[1] == "devices" && len(parts) == 3:
		h.devices.HandlePutDevice(w, r, sessionID, parts[2])
	case parts[1] == "snapshot" && len(parts) == 2:
		h.snapshot.HandlePutSnapshot(w, r, sessionID)
	default:
		http.NotFound(w, r)
	}
}

// handleSession covers the session resource itself: join and leave.
func (h *SessionsHandler) handleSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	const op = "api.session"
	switch r.Method {
	case http.MethodPut:
		if err := h.deps.Join(r.Context(), sessionID); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		writeJSON(w, http.StatusOK, ackResponse{Status: "joined"})
	case http.MethodDelete:
		h.deps.Leave(r.Context(), sessionID)
		writeJSON(w, http.StatusOK, ackResponse{Status: "left"})
	default:
		http.NotFound(w, r)
	}
}
