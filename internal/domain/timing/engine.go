package timing

import (
	"fmt"

	"github.com/okian/pitwall/internal/domain/model"
)

// AppliedResult reports what one Apply call did.
type AppliedResult struct {
	EventID  string
	DeviceID string

	// Historical stamps, fixed at the moment of application.
	PersonalBest bool
	SessionBest  bool

	// Deletion is true when the call was a deletion notice.
	Deletion bool
	// Recomputed is true when the deletion forced a best-record rescan.
	Recomputed bool
}

// Engine is the stateless aggregation algorithm. All state lives in the
// ledger passed to each call.
type Engine struct{}

// NewEngine creates a new aggregation engine.
func NewEngine() *Engine { return &Engine{} }

// Apply ingests one event (or one deletion notice) against the session
// ledger and updates every affected best record.
//
// Live events are always appended to the device's history, even when they
// set no best: the full history is what makes deletion recomputation
// correct. Zero-elapsed events are history-only. Otherwise the event's time
// is compared strictly against the device best and then the session best
// for its scope; ties never replace, so the earliest arrival keeps a tied
// record.
func (e *Engine) Apply(ledger *SessionLedger, ev *model.Event) (AppliedResult, error) {
	if ledger == nil || ev == nil {
		return AppliedResult{}, ErrInvalidEvent
	}
	if ev.EventID == "" {
		return AppliedResult{}, fmt.Errorf("%w: missing event id", ErrInvalidEvent)
	}
	if ev.SessionID != ledger.SessionID {
		return AppliedResult{}, fmt.Errorf("%w: event %s addressed to %q, ledger is %q",
			ErrSessionMismatch, ev.EventID, ev.SessionID, ledger.SessionID)
	}

	if ev.DeletedAt != nil {
		return e.applyDeletion(ledger, ev), nil
	}

	if ev.DeviceID == "" {
		return AppliedResult{}, fmt.Errorf("%w: event %s has no device id", ErrInvalidEvent, ev.EventID)
	}
	if ev.Type != model.EventTypeLap && ev.Type != model.EventTypeSector {
		return AppliedResult{}, fmt.Errorf("%w: event %s has unknown type %q", ErrInvalidEvent, ev.EventID, ev.Type)
	}
	if ev.Elapsed < 0 || ev.LapNumber < 0 || ev.Sector < 0 {
		return AppliedResult{}, fmt.Errorf("%w: event %s has negative fields", ErrInvalidEvent, ev.EventID)
	}
	if _, ok := ledger.owner[ev.EventID]; ok {
		return AppliedResult{}, fmt.Errorf("%w: %s", ErrDuplicateEvent, ev.EventID)
	}

	dev := ledger.device(ev.DeviceID)
	entry := &HistoryEntry{Event: ev}
	dev.append(entry)
	ledger.owner[ev.EventID] = ev.DeviceID

	res := AppliedResult{EventID: ev.EventID, DeviceID: ev.DeviceID}
	if !ev.HasTime() {
		return res, nil
	}

	sc := ScopeOf(ev)
	if cur := dev.Best(sc); cur == nil || ev.Elapsed < cur.Elapsed {
		dev.setBest(sc, &BestRecord{Elapsed: ev.Elapsed, Event: ev})
		entry.WasPersonalBest = true
		res.PersonalBest = true
	}
	// The session comparison uses the raw event time, not the device record:
	// a later, smaller time from the same device must be compared fresh.
	if cur := ledger.Best(sc); cur == nil || ev.Elapsed < cur.Elapsed {
		ledger.setBest(sc, &BestRecord{Elapsed: ev.Elapsed, Event: ev})
		entry.WasSessionBest = true
		res.SessionBest = true
	}
	return res, nil
}

// applyDeletion marks a previously seen event deleted and, when that event
// held a best record, rescans the affected scopes. Deletions for unknown or
// already-deleted ids are no-ops.
func (e *Engine) applyDeletion(ledger *SessionLedger, notice *model.Event) AppliedResult {
	res := AppliedResult{EventID: notice.EventID, Deletion: true}

	deviceID, ok := ledger.owner[notice.EventID]
	if !ok {
		return res
	}
	dev := ledger.devices[deviceID]
	entry, ok := dev.Entry(notice.EventID)
	if !ok || !entry.Event.Live() {
		return res
	}

	entry.Event.DeletedAt = notice.DeletedAt
	res.DeviceID = deviceID

	if !entry.Event.HasTime() {
		// Never competed, so no record can reference it.
		return res
	}

	// A session best is always also its device's best, so checking the
	// device record covers both levels.
	sc := ScopeOf(entry.Event)
	if cur := dev.Best(sc); cur != nil && cur.Event.EventID == notice.EventID {
		e.recomputeDevice(dev, sc)
		e.recomputeSession(ledger, sc)
		res.Recomputed = true
	}
	return res
}

// recomputeDevice rebuilds one device best record from the live subset of
// the device's history. O(history length).
func (e *Engine) recomputeDevice(dev *DeviceLedger, sc Scope) {
	var best *model.Event
	for _, entry := range dev.History {
		ev := entry.Event
		if !ev.Live() || !ev.HasTime() || ScopeOf(ev) != sc {
			continue
		}
		if best == nil || better(ev, best) {
			best = ev
		}
	}
	if best == nil {
		dev.setBest(sc, nil)
		return
	}
	dev.setBest(sc, &BestRecord{Elapsed: best.Elapsed, Event: best})
}

// recomputeSession rebuilds one session best record from the devices'
// current bests. O(device count).
func (e *Engine) recomputeSession(ledger *SessionLedger, sc Scope) {
	var best *model.Event
	for _, dev := range ledger.devices {
		if rec := dev.Best(sc); rec != nil {
			if best == nil || better(rec.Event, best) {
				best = rec.Event
			}
		}
	}
	if best == nil {
		ledger.setBest(sc, nil)
		return
	}
	ledger.setBest(sc, &BestRecord{Elapsed: best.Elapsed, Event: best})
}

// better reports whether a outranks b: smaller elapsed time, ties broken by
// earlier timestamp, then by event id. Deterministic for any input order.
func better(a, b *model.Event) bool {
	if a.Elapsed != b.Elapsed {
		return a.Elapsed < b.Elapsed
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.EventID < b.EventID
}

// Rebuild constructs a fresh session ledger from a full-session snapshot,
// replaying each device's events in the order the snapshot carries them.
// Malformed individual events are skipped; pre-deleted events land in the
// history without competing for bests.
func (e *Engine) Rebuild(snap model.SessionSnapshot) (*SessionLedger, error) {
	if snap.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrInvalidSnapshot)
	}

	ledger := NewSessionLedger(snap.SessionID)
	for _, ds := range snap.Devices {
		if ds.Info.DeviceID == "" {
			continue
		}
		ledger.SetDeviceInfo(ds.Info)

		for i := range ds.Events {
			ev := ds.Events[i]
			ev.SessionID = snap.SessionID
			if ev.DeviceID == "" {
				ev.DeviceID = ds.Info.DeviceID
			}
			if ev.EventID == "" {
				continue
			}
			if ev.DeletedAt != nil {
				// Retained for recomputation, excluded from bests.
				if _, ok := ledger.owner[ev.EventID]; ok {
					continue
				}
				dev := ledger.device(ev.DeviceID)
				dev.append(&HistoryEntry{Event: &ev})
				ledger.owner[ev.EventID] = ev.DeviceID
				continue
			}
			_, _ = e.Apply(ledger, &ev)
		}
	}
	return ledger, nil
}
