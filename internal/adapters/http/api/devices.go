// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/pitwall/internal/domain/model"
)

// DeviceDependencies defines the interface for device metadata updates.
type DeviceDependencies interface {
	UpdateDeviceInfo(ctx context.Context, sessionID string, info model.DeviceInfo) error
}

// deviceRequest mirrors the PUT /sessions/{id}/devices/{did} body.
type deviceRequest struct {
	DisplayName string `json:"display_name"`
	Category    string `json:"category,omitempty"`
	Retired     bool   `json:"retired,omitempty"`
}

// DevicesHandler handles device metadata requests.
type DevicesHandler struct {
	deps DeviceDependencies
}

// NewDevicesHandler creates a new devices handler.
func NewDevicesHandler(deps DeviceDependencies) *DevicesHandler {
	return &DevicesHandler{deps: deps}
}

// HandlePutDevice handles PUT /sessions/{id}/devices/{did} requests. Marking
// a device retired affects presentation only; its times keep competing.
func (h *DevicesHandler) HandlePutDevice(w http.ResponseWriter, r *http.Request, sessionID, deviceID string) {
	const op = "api.put_device"
	if r.Method != http.MethodPut {
		http.NotFound(w, r)
		return
	}
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	info := model.DeviceInfo{
		DeviceID:    deviceID,
		DisplayName: req.DisplayName,
		Category:    req.Category,
	}
	if req.Retired {
		now := time.Now()
		info.DeletedAt = &now
	}

	if err := h.deps.UpdateDeviceInfo(r.Context(), sessionID, info); err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, notFoundCode(err), err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "updated"})
}
