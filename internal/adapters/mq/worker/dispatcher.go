// Package worker contains the dispatcher that drives the aggregation engine
// from the ingest queue.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// Default dispatcher configuration constants.
const (
	defaultLaneSize     = 1024
	laneShutdownTimeout = 5 * time.Second
	laneMetricsInterval = 5 * time.Second
)

// Event is what the dispatcher reads off the queue.
type Event = model.Event

// Applier applies one event against the owning session's ledger. The
// dispatcher guarantees Apply is never called concurrently for the same
// session id.
type Applier interface {
	Apply(ctx context.Context, e Event) error
}

// Queue defines how the dispatcher receives events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// lane is the per-session delivery buffer. Routing appends to pending under
// the lane mutex and the drain goroutine swaps the slice out, so neither
// side ever blocks the other and apply order matches arrival order.
type lane struct {
	kick chan struct{}
	done chan struct{}

	mu      sync.Mutex
	pending []Event
	closed  bool
}

func newLane(size int) *lane {
	return &lane{
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		pending: make([]Event, 0, size),
	}
}

// push queues an event for the drain goroutine. Returns false once the lane
// has been closed.
func (l *lane) push(e Event) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.pending = append(l.pending, e)
	l.mu.Unlock()

	select {
	case l.kick <- struct{}{}:
	default:
	}
	return true
}

// take hands the accumulated events over to the drain goroutine.
func (l *lane) take() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.pending
	l.pending = nil
	return batch
}

// recycle returns a drained batch's backing array for reuse.
func (l *lane) recycle(batch []Event) {
	l.mu.Lock()
	if l.pending == nil {
		l.pending = batch[:0]
	}
	l.mu.Unlock()
}

// close marks the lane dead and wakes its drain goroutine. Callers must have
// removed the lane from the dispatcher map first, which serializes closes.
func (l *lane) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	close(l.done)
}

// Dispatcher consumes the ingest queue and fans events out to one lane per
// session. A lane is drained by a single goroutine, so events for one
// session apply in arrival order while separate sessions proceed in
// parallel; a slow or departing session never stalls routing for the rest.
type Dispatcher struct {
	queue    Queue
	applier  Applier
	laneSize int

	mu    sync.Mutex
	lanes map[string]*lane
	wg    sync.WaitGroup

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewDispatcher creates a dispatcher with configuration options.
func NewDispatcher(queue Queue, applier Applier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:    queue,
		applier:  applier,
		laneSize: defaultLaneSize,
		lanes:    make(map[string]*lane),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("dispatcher"),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Start launches the dispatch loop.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(laneMetricsInterval)
	defer ticker.Stop()

	events := d.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			d.closeLanes()
			return
		case <-d.shutdown:
			d.closeLanes()
			return
		case <-ticker.C:
			metrics.UpdateSessionLaneCount(d.LaneCount())
		case e, ok := <-events:
			if !ok {
				d.closeLanes()
				return
			}
			d.route(ctx, e)
		}
	}
}

// route delivers an event to its session lane, creating the lane on first
// use. The push never blocks.
func (d *Dispatcher) route(ctx context.Context, e Event) { //nolint:gocritic // hugeParam: events are buffered by value
	if !d.lane(ctx, e.SessionID).push(e) {
		// Lost the race with CloseLane. The session is gone, so the
		// applier would have dropped the event anyway.
		metrics.RecordEventRejected()
	}
}

func (d *Dispatcher) lane(ctx context.Context, sessionID string) *lane {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ln, ok := d.lanes[sessionID]; ok {
		return ln
	}

	ln := newLane(d.laneSize)
	d.lanes[sessionID] = ln
	d.wg.Add(1)
	go d.drain(ctx, sessionID, ln)
	return ln
}

// drain applies a session's events in arrival order. On close it flushes
// whatever is still pending; the applier drops events for sessions already
// gone from the registry.
func (d *Dispatcher) drain(ctx context.Context, sessionID string, ln *lane) {
	defer d.wg.Done()
	for {
		select {
		case <-ln.kick:
			d.flush(ctx, sessionID, ln)
		case <-ln.done:
			d.flush(ctx, sessionID, ln)
			return
		}
	}
}

func (d *Dispatcher) flush(ctx context.Context, sessionID string, ln *lane) {
	for {
		batch := ln.take()
		if len(batch) == 0 {
			return
		}
		for i := range batch {
			if err := d.applier.Apply(ctx, batch[i]); err != nil {
				d.logger.Error(ctx, "apply failed",
					logger.String("session", sessionID),
					logger.String("event", batch[i].EventID),
					logger.Error(err),
				)
				metrics.RecordErrorByComponent("dispatcher", "apply_failed")
			}
		}
		ln.recycle(batch)
	}
}

// CloseLane shuts down the lane for a session that has been left. The lane
// is unlinked from the routing map first, so no new events can reach it,
// then its drain goroutine flushes what is in flight and exits. Safe to call
// at any time, including while the session's events are still being routed.
func (d *Dispatcher) CloseLane(sessionID string) {
	d.mu.Lock()
	ln, ok := d.lanes[sessionID]
	if ok {
		delete(d.lanes, sessionID)
	}
	d.mu.Unlock()

	if ok {
		ln.close()
	}
}

// LaneCount returns the number of running session lanes.
func (d *Dispatcher) LaneCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lanes)
}

func (d *Dispatcher) closeLanes() {
	d.mu.Lock()
	lanes := d.lanes
	d.lanes = make(map[string]*lane)
	d.mu.Unlock()

	for _, ln := range lanes {
		ln.close()
	}
}

// Stop shuts down the dispatcher and waits for the lanes to drain.
func (d *Dispatcher) Stop() {
	select {
	case <-d.shutdown:
	default:
		close(d.shutdown)
	}
	<-d.done

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(laneShutdownTimeout):
		d.logger.Warn(context.Background(), "lane drain timed out")
	}
}
