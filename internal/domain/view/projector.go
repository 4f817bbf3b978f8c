// Package view derives presentation-ready leaderboard snapshots and
// per-event annotations from the ledgers. It is a pure read path: no state,
// no side effects.
package view

import (
	"sort"
	"time"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/timing"
)

// Annotation answers "what does this event mean right now" against the
// ledgers' current best records. Distinct from the historical stamps on
// timing.HistoryEntry, which are fixed at apply time.
type Annotation struct {
	PersonalBest bool `json:"personal_best"`
	SessionBest  bool `json:"session_best"`
}

// EventFlags carries both answers to "was/is this event a best": the
// historical stamps fixed when the event was applied, and the live values
// computed against the current ledger state.
type EventFlags struct {
	StampedPersonalBest bool       `json:"stamped_personal_best"`
	StampedSessionBest  bool       `json:"stamped_session_best"`
	Live                Annotation `json:"live"`
}

// ScopeBest is the presentation shape of one best record.
type ScopeBest struct {
	ElapsedMS int64  `json:"elapsed_ms"`
	DeviceID  string `json:"device_id"`
	EventID   string `json:"event_id"`
}

// Standing is one device's row in the leaderboard.
type Standing struct {
	Position       int           `json:"position"`
	DeviceID       string        `json:"device_id"`
	DisplayName    string        `json:"display_name,omitempty"`
	Category       string        `json:"category,omitempty"`
	Retired        bool          `json:"retired,omitempty"`
	Laps           int           `json:"laps"`
	BestLapMS      int64         `json:"best_lap_ms,omitempty"`
	BestLapEventID string        `json:"best_lap_event_id,omitempty"`
	GapMS          int64         `json:"gap_ms,omitempty"`
	BestSectorsMS  map[int]int64 `json:"best_sectors_ms,omitempty"`
}

// LeaderboardSnapshot is a point-in-time-consistent view of the standings.
type LeaderboardSnapshot struct {
	SessionID   string             `json:"session_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	BestLap     *ScopeBest         `json:"best_lap,omitempty"`
	BestSectors map[int]*ScopeBest `json:"best_sectors,omitempty"`
	Standings   []Standing         `json:"standings"`
}

// Projector renders snapshots and annotations from ledger state.
type Projector struct{}

// NewProjector creates a new projector.
func NewProjector() *Projector { return &Projector{} }

// Render derives a leaderboard snapshot from the session ledger. Devices
// with a best lap rank first, ordered by time; the rest follow ordered by
// device id.
func (p *Projector) Render(ledger *timing.SessionLedger) *LeaderboardSnapshot {
	snap := &LeaderboardSnapshot{
		SessionID:   ledger.SessionID,
		GeneratedAt: time.Now(),
	}

	snap.BestLap = scopeBest(ledger.Best(timing.LapScope()))
	sessionBestLap := time.Duration(0)
	if snap.BestLap != nil {
		sessionBestLap = ledger.Best(timing.LapScope()).Elapsed
	}

	if nums := ledger.SectorNumbers(); len(nums) > 0 {
		snap.BestSectors = make(map[int]*ScopeBest, len(nums))
		for _, n := range nums {
			snap.BestSectors[n] = scopeBest(ledger.Best(timing.SectorScope(n)))
		}
	}

	devices := ledger.Devices()
	rows := make([]Standing, 0, len(devices))
	for _, dev := range devices {
		row := Standing{
			DeviceID:    dev.DeviceID,
			DisplayName: dev.Info.DisplayName,
			Category:    dev.Info.Category,
			Retired:     dev.Info.DeletedAt != nil,
			Laps:        dev.LiveLapCount(),
		}
		if best := dev.Best(timing.LapScope()); best != nil {
			row.BestLapMS = millis(best.Elapsed)
			row.BestLapEventID = best.Event.EventID
			if sessionBestLap > 0 {
				row.GapMS = millis(best.Elapsed - sessionBestLap)
			}
		}
		if nums := dev.SectorNumbers(); len(nums) > 0 {
			row.BestSectorsMS = make(map[int]int64, len(nums))
			for _, n := range nums {
				row.BestSectorsMS[n] = millis(dev.Best(timing.SectorScope(n)).Elapsed)
			}
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch {
		case a.BestLapMS > 0 && b.BestLapMS > 0:
			if a.BestLapMS != b.BestLapMS {
				return a.BestLapMS < b.BestLapMS
			}
			return a.DeviceID < b.DeviceID
		case a.BestLapMS > 0:
			return true
		case b.BestLapMS > 0:
			return false
		default:
			return a.DeviceID < b.DeviceID
		}
	})
	for i := range rows {
		rows[i].Position = i + 1
	}
	snap.Standings = rows

	return snap
}

// Annotate computes the live best flags for one event against the current
// ledger state. An event is personal best iff it has a time and that time is
// at least as good as the device's current record; it is session best iff it
// has a time and either matches the session record or no session record is
// set for its scope yet.
func (p *Projector) Annotate(ev *model.Event, dev *timing.DeviceLedger, ses *timing.SessionLedger) Annotation {
	if ev == nil || !ev.HasTime() {
		return Annotation{}
	}

	sc := timing.ScopeOf(ev)
	var ann Annotation
	if dev != nil {
		if best := dev.Best(sc); best != nil && ev.Elapsed <= best.Elapsed {
			ann.PersonalBest = true
		}
	}
	if ses != nil {
		best := ses.Best(sc)
		if best == nil || ev.Elapsed <= best.Elapsed {
			ann.SessionBest = true
		}
	}
	return ann
}

func scopeBest(rec *timing.BestRecord) *ScopeBest {
	if rec == nil {
		return nil
	}
	return &ScopeBest{
		ElapsedMS: millis(rec.Elapsed),
		DeviceID:  rec.Event.DeviceID,
		EventID:   rec.Event.EventID,
	}
}

func millis(d time.Duration) int64 { return d.Milliseconds() }
