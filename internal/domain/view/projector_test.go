package view

import (
	"testing"
	"time"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/timing"
)

func apply(t *testing.T, engine *timing.Engine, ledger *timing.SessionLedger, ev *model.Event) {
	t.Helper()
	if _, err := engine.Apply(ledger, ev); err != nil {
		t.Fatalf("apply %s: %v", ev.EventID, err)
	}
}

func lap(id, device string, elapsed time.Duration, ts time.Time) *model.Event {
	return &model.Event{
		EventID: id, SessionID: "s1", DeviceID: device,
		Type: model.EventTypeLap, Elapsed: elapsed, Timestamp: ts,
	}
}

func sector(id, device string, n int, elapsed time.Duration, ts time.Time) *model.Event {
	return &model.Event{
		EventID: id, SessionID: "s1", DeviceID: device,
		Type: model.EventTypeSector, Elapsed: elapsed, Timestamp: ts, Sector: n,
	}
}

func TestProjector_RenderOrdering(t *testing.T) {
	engine := timing.NewEngine()
	ledger := timing.NewSessionLedger("s1")
	projector := NewProjector()
	now := time.Now()

	apply(t, engine, ledger, lap("a1", "devA", 83*time.Second, now))
	apply(t, engine, ledger, lap("b1", "devB", 80*time.Second, now.Add(time.Second)))
	apply(t, engine, ledger, sector("c1", "devC", 1, 25*time.Second, now.Add(2*time.Second)))

	snap := projector.Render(ledger)
	if snap.SessionID != "s1" {
		t.Errorf("unexpected session id %s", snap.SessionID)
	}
	if snap.BestLap == nil || snap.BestLap.DeviceID != "devB" {
		t.Fatalf("expected devB session best lap, got %+v", snap.BestLap)
	}
	if snap.BestLap.ElapsedMS != 80_000 {
		t.Errorf("expected 80000ms, got %d", snap.BestLap.ElapsedMS)
	}

	if len(snap.Standings) != 3 {
		t.Fatalf("expected 3 standings, got %d", len(snap.Standings))
	}
	// devB leads, devA second, devC (no lap yet) last.
	order := []string{"devB", "devA", "devC"}
	for i, want := range order {
		if snap.Standings[i].DeviceID != want {
			t.Errorf("position %d: expected %s, got %s", i+1, want, snap.Standings[i].DeviceID)
		}
		if snap.Standings[i].Position != i+1 {
			t.Errorf("position field mismatch at row %d", i)
		}
	}

	// devA gap to leader: 83s - 80s.
	if snap.Standings[1].GapMS != 3_000 {
		t.Errorf("expected 3000ms gap for devA, got %d", snap.Standings[1].GapMS)
	}

	if best, ok := snap.BestSectors[1]; !ok || best.DeviceID != "devC" {
		t.Errorf("expected devC sector 1 best, got %+v", snap.BestSectors)
	}
}

func TestProjector_RenderDeviceInfo(t *testing.T) {
	engine := timing.NewEngine()
	ledger := timing.NewSessionLedger("s1")
	projector := NewProjector()

	retired := time.Now()
	ledger.SetDeviceInfo(model.DeviceInfo{DeviceID: "devA", DisplayName: "Kart 7", Category: "junior"})
	ledger.SetDeviceInfo(model.DeviceInfo{DeviceID: "devB", DisplayName: "Kart 9", DeletedAt: &retired})
	apply(t, engine, ledger, lap("a1", "devA", 80*time.Second, time.Now()))

	snap := projector.Render(ledger)
	if len(snap.Standings) != 2 {
		t.Fatalf("expected 2 standings, got %d", len(snap.Standings))
	}
	if snap.Standings[0].DisplayName != "Kart 7" || snap.Standings[0].Category != "junior" {
		t.Errorf("unexpected row: %+v", snap.Standings[0])
	}
	if !snap.Standings[1].Retired {
		t.Error("devB should be marked retired")
	}
}

func TestProjector_AnnotateLiveVsStamp(t *testing.T) {
	engine := timing.NewEngine()
	ledger := timing.NewSessionLedger("s1")
	projector := NewProjector()
	now := time.Now()

	first := lap("a1", "devA", 83*time.Second, now)
	apply(t, engine, ledger, first)
	apply(t, engine, ledger, lap("b1", "devB", 80*time.Second, now.Add(time.Second)))

	devA, _ := ledger.Device("devA")

	// Historically a1 was session best; live it no longer is.
	entry, _ := devA.Entry("a1")
	if !entry.WasSessionBest {
		t.Error("historical stamp should say session best")
	}
	ann := projector.Annotate(first, devA, ledger)
	if ann.SessionBest {
		t.Error("live annotation should say a1 is not session best anymore")
	}
	if !ann.PersonalBest {
		t.Error("a1 is still devA's personal best")
	}
}

func TestProjector_AnnotateEdgeCases(t *testing.T) {
	engine := timing.NewEngine()
	ledger := timing.NewSessionLedger("s1")
	projector := NewProjector()
	now := time.Now()

	// Zero-time events are never best, live or otherwise.
	zero := lap("z1", "devA", 0, now)
	apply(t, engine, ledger, zero)
	devA, _ := ledger.Device("devA")
	if ann := projector.Annotate(zero, devA, ledger); ann.PersonalBest || ann.SessionBest {
		t.Error("zero-time event must not annotate as best")
	}

	// With no session best set for the scope, a timed event is vacuously
	// session best.
	candidate := sector("s1x", "devA", 2, 30*time.Second, now)
	if ann := projector.Annotate(candidate, devA, ledger); !ann.SessionBest {
		t.Error("event should be vacuously session best when scope is unset")
	}
}

func TestProjector_RenderEmptySession(t *testing.T) {
	ledger := timing.NewSessionLedger("s1")
	snap := NewProjector().Render(ledger)

	if snap.BestLap != nil {
		t.Error("empty session must have no best lap")
	}
	if len(snap.Standings) != 0 {
		t.Error("empty session must have no standings")
	}
}
