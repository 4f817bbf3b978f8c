// Package timing holds the session and device ledgers and the aggregation
// engine that keeps best-lap and best-sector records consistent as events
// arrive and as past events are retracted.
//
// Ledgers are not internally synchronized. Callers must serialize mutation
// per session; cross-session access is independent.
package timing

import (
	"sort"
	"time"

	"github.com/okian/pitwall/internal/domain/model"
)

// Scope identifies one best-record slot: the lap scope, or one sector number.
type Scope struct {
	Type   model.EventType
	Sector int // meaningful only when Type == model.EventTypeSector
}

// LapScope returns the scope of full-lap bests.
func LapScope() Scope { return Scope{Type: model.EventTypeLap} }

// SectorScope returns the scope of bests for sector n.
func SectorScope(n int) Scope { return Scope{Type: model.EventTypeSector, Sector: n} }

// ScopeOf returns the best-record scope an event competes in.
func ScopeOf(ev *model.Event) Scope {
	if ev.Type == model.EventTypeSector {
		return SectorScope(ev.Sector)
	}
	return LapScope()
}

// BestRecord pairs a best time with the event that set it. A nil *BestRecord
// means "no best yet"; a zero-duration record never exists because zero times
// do not compete.
type BestRecord struct {
	Elapsed time.Duration
	Event   *model.Event
}

// HistoryEntry pairs an event with the stamps recorded at the moment it was
// applied. The stamps are historical: later deletions or faster times never
// rewrite them. Live "is this currently best" answers come from the view
// projector instead.
type HistoryEntry struct {
	Event           *model.Event
	WasPersonalBest bool
	WasSessionBest  bool
}

// DeviceLedger is the per-device aggregate: full event history (deleted
// events retained for recomputation) plus current best records.
type DeviceLedger struct {
	DeviceID string
	Info     model.DeviceInfo
	History  []*HistoryEntry

	bestLap     *BestRecord
	bestSectors map[int]*BestRecord
	byID        map[string]*HistoryEntry
}

// NewDeviceLedger creates an empty ledger for one device.
func NewDeviceLedger(deviceID string) *DeviceLedger {
	return &DeviceLedger{
		DeviceID:    deviceID,
		Info:        model.DeviceInfo{DeviceID: deviceID},
		bestSectors: make(map[int]*BestRecord),
		byID:        make(map[string]*HistoryEntry),
	}
}

// Best returns the device's current best record for the scope, or nil.
func (d *DeviceLedger) Best(sc Scope) *BestRecord {
	if sc.Type == model.EventTypeSector {
		return d.bestSectors[sc.Sector]
	}
	return d.bestLap
}

func (d *DeviceLedger) setBest(sc Scope, rec *BestRecord) {
	if sc.Type == model.EventTypeSector {
		if rec == nil {
			delete(d.bestSectors, sc.Sector)
			return
		}
		d.bestSectors[sc.Sector] = rec
		return
	}
	d.bestLap = rec
}

// Entry returns the history entry for an event id, if this device owns it.
func (d *DeviceLedger) Entry(eventID string) (*HistoryEntry, bool) {
	e, ok := d.byID[eventID]
	return e, ok
}

// SectorNumbers returns the sector numbers with a best currently set,
// in ascending order.
func (d *DeviceLedger) SectorNumbers() []int {
	nums := make([]int, 0, len(d.bestSectors))
	for n := range d.bestSectors {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// LiveLapCount returns the number of live lap events in the history.
func (d *DeviceLedger) LiveLapCount() int {
	count := 0
	for _, e := range d.History {
		if e.Event.Type == model.EventTypeLap && e.Event.Live() {
			count++
		}
	}
	return count
}

func (d *DeviceLedger) append(entry *HistoryEntry) {
	d.History = append(d.History, entry)
	d.byID[entry.Event.EventID] = entry
}

// SessionLedger is the per-session aggregate: device ledgers keyed by device
// id plus session-wide best records.
type SessionLedger struct {
	SessionID string

	devices     map[string]*DeviceLedger
	bestLap     *BestRecord
	bestSectors map[int]*BestRecord
	owner       map[string]string // event id -> device id
}

// NewSessionLedger creates an empty ledger for one session.
func NewSessionLedger(sessionID string) *SessionLedger {
	return &SessionLedger{
		SessionID:   sessionID,
		devices:     make(map[string]*DeviceLedger),
		bestSectors: make(map[int]*BestRecord),
		owner:       make(map[string]string),
	}
}

// Device returns the ledger for a device id, if present.
func (l *SessionLedger) Device(deviceID string) (*DeviceLedger, bool) {
	d, ok := l.devices[deviceID]
	return d, ok
}

// device returns the ledger for a device id, creating it on first use.
// The first event from a device implicitly registers it.
func (l *SessionLedger) device(deviceID string) *DeviceLedger {
	if d, ok := l.devices[deviceID]; ok {
		return d
	}
	d := NewDeviceLedger(deviceID)
	l.devices[deviceID] = d
	return d
}

// Devices returns all device ledgers ordered by device id.
func (l *SessionLedger) Devices() []*DeviceLedger {
	ids := make([]string, 0, len(l.devices))
	for id := range l.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*DeviceLedger, len(ids))
	for i, id := range ids {
		out[i] = l.devices[id]
	}
	return out
}

// DeviceCount returns the number of devices known to the session.
func (l *SessionLedger) DeviceCount() int { return len(l.devices) }

// EventCount returns the total history length across all devices,
// deleted events included.
func (l *SessionLedger) EventCount() int { return len(l.owner) }

// Best returns the session's current best record for the scope, or nil.
func (l *SessionLedger) Best(sc Scope) *BestRecord {
	if sc.Type == model.EventTypeSector {
		return l.bestSectors[sc.Sector]
	}
	return l.bestLap
}

func (l *SessionLedger) setBest(sc Scope, rec *BestRecord) {
	if sc.Type == model.EventTypeSector {
		if rec == nil {
			delete(l.bestSectors, sc.Sector)
			return
		}
		l.bestSectors[sc.Sector] = rec
		return
	}
	l.bestLap = rec
}

// SectorNumbers returns the sector numbers with a session best currently
// set, in ascending order.
func (l *SessionLedger) SectorNumbers() []int {
	nums := make([]int, 0, len(l.bestSectors))
	for n := range l.bestSectors {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Entry returns the history entry and owning device ledger for an event id.
func (l *SessionLedger) Entry(eventID string) (*HistoryEntry, *DeviceLedger, bool) {
	deviceID, ok := l.owner[eventID]
	if !ok {
		return nil, nil, false
	}
	dev := l.devices[deviceID]
	entry, ok := dev.Entry(eventID)
	if !ok {
		return nil, nil, false
	}
	return entry, dev, true
}

// SetDeviceInfo updates presentation metadata for a device, creating the
// device ledger if it is not yet known.
func (l *SessionLedger) SetDeviceInfo(info model.DeviceInfo) {
	d := l.device(info.DeviceID)
	d.Info = info
}
