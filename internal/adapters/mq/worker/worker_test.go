package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/pitwall/internal/adapters/mq/queue"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// recordingApplier records apply order per session.
type recordingApplier struct {
	mu    sync.Mutex
	bySes map[string][]string
}

func newRecordingApplier() *recordingApplier {
	return &recordingApplier{bySes: make(map[string][]string)}
}

func (a *recordingApplier) Apply(ctx context.Context, e Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bySes[e.SessionID] = append(a.bySes[e.SessionID], e.EventID)
	return nil
}

func (a *recordingApplier) applied(session string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.bySes[session]))
	copy(out, a.bySes[session])
	return out
}

func ev(session, id string) Event {
	return Event{
		EventID:   id,
		SessionID: session,
		DeviceID:  "dev1",
		Type:      model.EventTypeLap,
		Elapsed:   80 * time.Second,
		Timestamp: time.Now(),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatcher_PerSessionOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
	applier := newRecordingApplier()
	d := NewDispatcher(q, applier, WithLaneSize(8))
	d.Start(ctx)
	defer d.Stop()

	const perSession = 50
	for i := 0; i < perSession; i++ {
		if !q.Enqueue(ctx, ev("s1", fmt.Sprintf("a%03d", i))) {
			t.Fatal("enqueue failed")
		}
		if !q.Enqueue(ctx, ev("s2", fmt.Sprintf("b%03d", i))) {
			t.Fatal("enqueue failed")
		}
	}

	waitFor(t, func() bool {
		return len(applier.applied("s1")) == perSession && len(applier.applied("s2")) == perSession
	})

	for session, prefix := range map[string]string{"s1": "a", "s2": "b"} {
		got := applier.applied(session)
		for i, id := range got {
			want := fmt.Sprintf("%s%03d", prefix, i)
			if id != want {
				t.Fatalf("session %s out of order at %d: expected %s, got %s", session, i, want, id)
			}
		}
	}

	if d.LaneCount() != 2 {
		t.Errorf("expected 2 lanes, got %d", d.LaneCount())
	}
}

func TestDispatcher_CloseLane(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemoryQueue(queue.WithCapacity(10))
	applier := newRecordingApplier()
	d := NewDispatcher(q, applier)
	d.Start(ctx)
	defer d.Stop()

	q.Enqueue(ctx, ev("s1", "e1"))
	waitFor(t, func() bool { return len(applier.applied("s1")) == 1 })

	d.CloseLane("s1")
	if d.LaneCount() != 0 {
		t.Errorf("expected no lanes after close, got %d", d.LaneCount())
	}

	// A new event for the session recreates the lane.
	q.Enqueue(ctx, ev("s1", "e2"))
	waitFor(t, func() bool { return len(applier.applied("s1")) == 2 })
}

// gatedApplier parks inside Apply for one session until released, recording
// everything else immediately.
type gatedApplier struct {
	rec     *recordingApplier
	slow    string
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (a *gatedApplier) Apply(ctx context.Context, e Event) error {
	if e.SessionID == a.slow {
		a.once.Do(func() { close(a.entered) })
		<-a.gate
	}
	return a.rec.Apply(ctx, e)
}

func TestDispatcher_CloseLaneWithEventsInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemoryQueue(queue.WithCapacity(100))
	rec := newRecordingApplier()
	applier := &gatedApplier{
		rec:     rec,
		slow:    "slow",
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
	d := NewDispatcher(q, applier, WithLaneSize(1))
	d.Start(ctx)
	defer d.Stop()

	// Park the slow session's lane inside the applier with more events
	// still queued behind it.
	const inFlight = 5
	for i := 0; i < inFlight; i++ {
		if !q.Enqueue(ctx, ev("slow", fmt.Sprintf("s%02d", i))) {
			t.Fatal("enqueue failed")
		}
	}
	select {
	case <-applier.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("applier never entered")
	}

	// Leaving with events in flight must not bring the dispatcher down.
	d.CloseLane("slow")

	// Routing keeps serving other sessions.
	if !q.Enqueue(ctx, ev("other", "o1")) {
		t.Fatal("enqueue failed")
	}
	waitFor(t, func() bool { return len(rec.applied("other")) == 1 })

	// Once released, the closed lane flushes what it had and exits.
	close(applier.gate)
	waitFor(t, func() bool { return len(rec.applied("slow")) == inFlight })
}

func TestDispatcher_SaturatedLaneDoesNotStallOthers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemoryQueue(queue.WithCapacity(100))
	rec := newRecordingApplier()
	applier := &gatedApplier{
		rec:     rec,
		slow:    "slow",
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
	d := NewDispatcher(q, applier, WithLaneSize(1))
	d.Start(ctx)
	defer d.Stop()

	// Pile events onto the parked session well past its initial lane
	// capacity, then interleave another session.
	for i := 0; i < 20; i++ {
		if !q.Enqueue(ctx, ev("slow", fmt.Sprintf("s%02d", i))) {
			t.Fatal("enqueue failed")
		}
	}
	select {
	case <-applier.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("applier never entered")
	}
	for i := 0; i < 10; i++ {
		if !q.Enqueue(ctx, ev("fast", fmt.Sprintf("f%02d", i))) {
			t.Fatal("enqueue failed")
		}
	}

	waitFor(t, func() bool { return len(rec.applied("fast")) == 10 })

	close(applier.gate)
	waitFor(t, func() bool { return len(rec.applied("slow")) == 20 })
}

func TestDispatcher_StopDrains(t *testing.T) {
	ctx := context.Background()

	q := queue.NewInMemoryQueue(queue.WithCapacity(100))
	applier := newRecordingApplier()
	d := NewDispatcher(q, applier)
	d.Start(ctx)

	for i := 0; i < 20; i++ {
		q.Enqueue(ctx, ev("s1", fmt.Sprintf("e%02d", i)))
	}
	waitFor(t, func() bool { return len(applier.applied("s1")) == 20 })

	d.Stop()
}
