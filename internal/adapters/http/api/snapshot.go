// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/pitwall/internal/domain/model"
)

// SnapshotDependencies defines the interface for snapshot replacement.
type SnapshotDependencies interface {
	ReplaceSnapshot(ctx context.Context, snap model.SessionSnapshot) error
}

// snapshotRequest mirrors the PUT /sessions/{id}/snapshot body: the full
// authoritative state of one session.
type snapshotRequest struct {
	Devices []deviceSnapshotRequest `json:"devices"`
}

type deviceSnapshotRequest struct {
	DeviceID    string         `json:"device_id"`
	DisplayName string         `json:"display_name,omitempty"`
	Category    string         `json:"category,omitempty"`
	Retired     bool           `json:"retired,omitempty"`
	Events      []eventRequest `json:"events"`
}

func (s snapshotRequest) validate() error {
	for _, dev := range s.Devices {
		if dev.DeviceID == "" {
			return NewKind("snapshot", ErrBadRequest)
		}
		for _, ev := range dev.Events {
			if err := ev.validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s snapshotRequest) toSnapshot(sessionID string) model.SessionSnapshot {
	snap := model.SessionSnapshot{SessionID: sessionID}
	for _, dev := range s.Devices {
		ds := model.DeviceSnapshot{
			Info: model.DeviceInfo{
				DeviceID:    dev.DeviceID,
				DisplayName: dev.DisplayName,
				Category:    dev.Category,
			},
		}
		if dev.Retired {
			now := time.Now()
			ds.Info.DeletedAt = &now
		}
		for _, ev := range dev.Events {
			e := ev.toEvent(sessionID)
			e.DeviceID = dev.DeviceID
			ds.Events = append(ds.Events, e)
		}
		snap.Devices = append(snap.Devices, ds)
	}
	return snap
}

// SnapshotHandler handles wholesale session state replacement.
type SnapshotHandler struct {
	deps SnapshotDependencies
}

// NewSnapshotHandler creates a new snapshot handler.
func NewSnapshotHandler(deps SnapshotDependencies) *SnapshotHandler {
	return &SnapshotHandler{deps: deps}
}

// HandlePutSnapshot handles PUT /sessions/{id}/snapshot requests. The
// snapshot replaces all session state; events absent from it are gone.
func (h *SnapshotHandler) HandlePutSnapshot(w http.ResponseWriter, r *http.Request, sessionID string) {
	const op = "api.put_snapshot"
	if r.Method != http.MethodPut {
		http.NotFound(w, r)
		return
	}
	var req snapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.ReplaceSnapshot(r.Context(), req.toSnapshot(sessionID)); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_snapshot", WrapKind(op, ErrBadRequest, err))
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "replaced"})
}
