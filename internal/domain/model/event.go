// Package model contains domain models passed between layers.
package model

import "time"

// EventType distinguishes lap completions from sector splits.
type EventType string

const (
	EventTypeLap    EventType = "lap"
	EventTypeSector EventType = "sector"
)

// Event represents one timing observation for one device. Events are
// immutable after creation except for the soft-delete marker, which a later
// deletion notice may set.
type Event struct {
	EventID   string     // unique id for idempotency and deletion addressing
	SessionID string     // owning session
	DeviceID  string     // reporting device
	Type      EventType  // lap or sector
	Elapsed   time.Duration
	Timestamp time.Time  // wall clock at the source; not monotonic per device
	LapNumber int
	Sector    int        // meaningful only when Type == EventTypeSector
	DeletedAt *time.Time // nil = live
}

// Live reports whether the event has not been soft-deleted.
func (e *Event) Live() bool { return e.DeletedAt == nil }

// HasTime reports whether the event carries a recorded time.
// Zero elapsed is a "no time" sentinel and never competes for bests.
func (e *Event) HasTime() bool { return e.Elapsed > 0 }

// DeviceInfo carries presentation metadata for a device within a session.
type DeviceInfo struct {
	DeviceID    string
	DisplayName string
	Category    string
	DeletedAt   *time.Time // non-nil marks the device retired from the session
}

// DeviceSnapshot is one device's slice of a full-session resync payload.
type DeviceSnapshot struct {
	Info   DeviceInfo
	Events []Event // in upstream delivery order, deleted events included
}

// SessionSnapshot is a full replacement payload for an entire session,
// used to resynchronize after reconnect or initial join.
type SessionSnapshot struct {
	SessionID string
	Devices   []DeviceSnapshot
}
