package timing

import (
	"testing"
	"time"

	"github.com/okian/pitwall/internal/domain/model"
)

func TestSessionLedger_ImplicitDeviceRegistration(t *testing.T) {
	ledger := NewSessionLedger("s1")

	if _, ok := ledger.Device("dev1"); ok {
		t.Fatal("device should be unknown before any event")
	}

	engine := NewEngine()
	if _, err := engine.Apply(ledger, lapEvent("e1", "dev1", 80*time.Second, time.Now())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := ledger.Device("dev1"); !ok {
		t.Fatal("first event should register the device")
	}
	if ledger.DeviceCount() != 1 || ledger.EventCount() != 1 {
		t.Errorf("unexpected counts: devices=%d events=%d", ledger.DeviceCount(), ledger.EventCount())
	}
}

func TestSessionLedger_DevicesSorted(t *testing.T) {
	ledger := NewSessionLedger("s1")
	engine := NewEngine()
	now := time.Now()

	for _, id := range []string{"zulu", "alpha", "mike"} {
		if _, err := engine.Apply(ledger, lapEvent("e-"+id, id, 80*time.Second, now)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	devices := ledger.Devices()
	want := []string{"alpha", "mike", "zulu"}
	for i, dev := range devices {
		if dev.DeviceID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], dev.DeviceID)
		}
	}
}

func TestSessionLedger_SetDeviceInfo(t *testing.T) {
	ledger := NewSessionLedger("s1")

	ledger.SetDeviceInfo(model.DeviceInfo{DeviceID: "dev1", DisplayName: "Kart 7", Category: "junior"})

	dev, ok := ledger.Device("dev1")
	if !ok {
		t.Fatal("SetDeviceInfo should create the device ledger")
	}
	if dev.Info.DisplayName != "Kart 7" || dev.Info.Category != "junior" {
		t.Errorf("unexpected info: %+v", dev.Info)
	}

	// Info updates must not disturb history or bests.
	engine := NewEngine()
	if _, err := engine.Apply(ledger, lapEvent("e1", "dev1", 80*time.Second, time.Now())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	retired := time.Now()
	ledger.SetDeviceInfo(model.DeviceInfo{DeviceID: "dev1", DisplayName: "Kart 7", DeletedAt: &retired})
	if dev.Best(LapScope()) == nil {
		t.Error("retiring a device must not clear its best records")
	}
}

func TestDeviceLedger_SectorNumbers(t *testing.T) {
	ledger := NewSessionLedger("s1")
	engine := NewEngine()
	now := time.Now()

	for i, n := range []int{3, 1, 2} {
		ev := sectorEvent(string(rune('a'+i)), "dev1", n, time.Duration(20+n)*time.Second, now)
		if _, err := engine.Apply(ledger, ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	dev, _ := ledger.Device("dev1")
	nums := dev.SectorNumbers()
	if len(nums) != 3 || nums[0] != 1 || nums[1] != 2 || nums[2] != 3 {
		t.Errorf("expected sorted sector numbers, got %v", nums)
	}
	if got := ledger.SectorNumbers(); len(got) != 3 {
		t.Errorf("expected 3 session sector bests, got %v", got)
	}
}

func TestDeviceLedger_LiveLapCount(t *testing.T) {
	ledger := NewSessionLedger("s1")
	engine := NewEngine()
	now := time.Now()

	if _, err := engine.Apply(ledger, lapEvent("l1", "dev1", 80*time.Second, now)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Apply(ledger, lapEvent("l2", "dev1", 81*time.Second, now.Add(time.Minute))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Apply(ledger, sectorEvent("sx", "dev1", 1, 20*time.Second, now)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.Apply(ledger, deletion("l2", now.Add(2*time.Minute))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dev, _ := ledger.Device("dev1")
	if got := dev.LiveLapCount(); got != 1 {
		t.Errorf("expected 1 live lap, got %d", got)
	}
}
