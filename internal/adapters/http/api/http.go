// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/pitwall/internal/domain/dedupe"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/view"
	"github.com/okian/pitwall/internal/registry"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// Join registers a session; Leave discards it and all contained state.
	Join(ctx context.Context, sessionID string) error
	Leave(ctx context.Context, sessionID string)

	// Enqueue pushes an event for async processing. Returns false on backpressure.
	Enqueue(ctx context.Context, e model.Event) bool

	// Write operations against session state.
	UpdateDeviceInfo(ctx context.Context, sessionID string, info model.DeviceInfo) error
	ReplaceSnapshot(ctx context.Context, snap model.SessionSnapshot) error

	// Read operations expose best records and standings.
	BestLap(ctx context.Context, sessionID string) (time.Duration, bool, error)
	BestSector(ctx context.Context, sessionID string, sector int) (time.Duration, bool, error)
	Leaderboard(ctx context.Context, sessionID string) (*view.LeaderboardSnapshot, error)
	EventFlags(ctx context.Context, sessionID, eventID string) (view.EventFlags, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	sessionsHandler *SessionsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		sessionsHandler: NewSessionsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/sessions/", MetricsMiddleware(s.sessionsHandler.HandleSessions, "sessions"))
}

// eventRequest mirrors the OpenAPI schema for POST /sessions/{id}/events.
// A deletion notice sets deleted_at and may omit the timing fields.
type eventRequest struct {
	EventID   string `json:"event_id"`
	DeviceID  string `json:"device_id"`
	Type      string `json:"type"`
	ElapsedMS int64  `json:"elapsed_ms"`
	TS        string `json:"ts"`
	Lap       int    `json:"lap,omitempty"`
	Sector    int    `json:"sector,omitempty"`
	DeletedAt string `json:"deleted_at,omitempty"`
}

func (e eventRequest) deletion() bool { return strings.TrimSpace(e.DeletedAt) != "" }

func (e eventRequest) validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return errors.New("missing event_id")
	}
	if e.deletion() {
		if _, err := time.Parse(time.RFC3339, e.DeletedAt); err != nil {
			return errors.New("invalid deleted_at; must be RFC3339")
		}
		return nil
	}
	switch {
	case strings.TrimSpace(e.DeviceID) == "":
		return errors.New("missing device_id")
	case e.Type != string(model.EventTypeLap) && e.Type != string(model.EventTypeSector):
		return errors.New("invalid type; must be lap or sector")
	case strings.TrimSpace(e.TS) == "":
		return errors.New("missing ts")
	case e.ElapsedMS < 0:
		return errors.New("invalid elapsed_ms; must not be negative")
	case e.Lap < 0:
		return errors.New("invalid lap; must not be negative")
	case e.Sector < 0:
		return errors.New("invalid sector; must not be negative")
	}
	if _, err := time.Parse(time.RFC3339, e.TS); err != nil {
		return errors.New("invalid ts; must be RFC3339")
	}
	return nil
}

// toEvent converts the request into the domain shape. validate must have
// passed first.
func (e eventRequest) toEvent(sessionID string) model.Event {
	ev := model.Event{
		EventID:   e.EventID,
		SessionID: sessionID,
		DeviceID:  e.DeviceID,
		Type:      model.EventType(e.Type),
		Elapsed:   time.Duration(e.ElapsedMS) * time.Millisecond,
		LapNumber: e.Lap,
		Sector:    e.Sector,
	}
	if e.TS != "" {
		ev.Timestamp, _ = time.Parse(time.RFC3339, e.TS)
	}
	if e.deletion() {
		t, _ := time.Parse(time.RFC3339, e.DeletedAt)
		ev.DeletedAt = &t
	}
	return ev
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// isNotFound allows the API to translate upstream not-found errors to 404.
func isNotFound(err error) bool {
	return errors.Is(err, registry.ErrUnknownSession) || errors.Is(err, registry.ErrUnknownEvent)
}

// notFoundCode picks the machine-readable code for a not-found error.
func notFoundCode(err error) string {
	if errors.Is(err, registry.ErrUnknownEvent) {
		return "unknown_event"
	}
	return "unknown_session"
}
