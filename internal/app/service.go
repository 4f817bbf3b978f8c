// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	eventqueue "github.com/okian/pitwall/internal/adapters/mq/queue"
	"github.com/okian/pitwall/internal/adapters/mq/worker"
	"github.com/okian/pitwall/internal/domain/dedupe"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/timing"
	"github.com/okian/pitwall/internal/domain/view"
	"github.com/okian/pitwall/internal/registry"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// ErrNotStarted is returned when a session operation runs before Start.
var ErrNotStarted = errors.New("service not started")

// Service wires the registry, engine, projector, dedupe cache, ingest queue
// and dispatcher into the timing aggregation system.
type Service struct {
	mu sync.RWMutex

	// Core components
	sessions   *registry.Registry
	engine     *timing.Engine
	projector  *view.Projector
	deduper    dedupe.Deduper
	eventQueue eventqueue.Queue
	dispatcher *worker.Dispatcher

	// Configuration
	queueSize  int
	dedupeSize int
	laneSize   int

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithQueueSize sets the maximum size of the ingest queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLaneSize sets the initial pending-buffer capacity of each per-session
// apply lane.
func WithLaneSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.laneSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		queueSize:  100_000,
		dedupeSize: 50_000,
		laneSize:   1024,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting timing service...")

	s.sessions = registry.New()
	s.engine = timing.NewEngine()
	s.projector = view.NewProjector()
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.eventQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
	)
	s.dispatcher = worker.NewDispatcher(s.eventQueue, s,
		worker.WithLaneSize(s.laneSize),
	)
	s.dispatcher.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "timing service started",
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("laneSize", s.laneSize),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping timing service...")

	if q, ok := s.eventQueue.(*eventqueue.InMemoryQueue); ok {
		_ = q.Close()
	}
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}

	s.started = false
	s.logger.Info(ctx, "timing service stopped")
}

// ready reports whether Start has run, under the state lock.
func (s *Service) ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Join registers a session, creating an empty ledger on first call.
// Idempotent: rejoining an active session keeps its state.
func (s *Service) Join(ctx context.Context, sessionID string) error {
	if !s.ready() {
		return ErrNotStarted
	}
	if sessionID == "" {
		return fmt.Errorf("%w: missing session id", timing.ErrInvalidEvent)
	}
	s.sessions.Join(sessionID)
	metrics.UpdateSessionCount(s.sessions.Count())
	s.logger.Info(ctx, "session joined", logger.String("session", sessionID))
	return nil
}

// Leave discards a session and all contained state. No-op if absent or if
// the service has not started.
func (s *Service) Leave(ctx context.Context, sessionID string) {
	if !s.ready() {
		return
	}
	s.sessions.Leave(sessionID)
	s.dispatcher.CloseLane(sessionID)
	metrics.UpdateSessionCount(s.sessions.Count())
	s.logger.Info(ctx, "session left", logger.String("session", sessionID))
}

// SeenAndRecord atomically checks if an event id was seen and records it if
// not. Returns true if the event was already seen.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordEventDuplicate()
	}
	return seen
}

// Unrecord removes an event id from the seen list, allowing it to be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Enqueue submits an event for asynchronous, per-session-ordered
// application. Returns false on backpressure.
func (s *Service) Enqueue(ctx context.Context, ev model.Event) bool {
	return s.eventQueue.Enqueue(ctx, ev)
}

// Apply is the dispatcher callback: it applies one event against the owning
// session ledger. Called serially per session id.
func (s *Service) Apply(ctx context.Context, ev model.Event) error {
	ses, ok := s.sessions.Get(ev.SessionID)
	if !ok {
		// Transport delivered an event for a session nobody joined (or
		// one already left). Drop it; only an explicit Join creates state.
		metrics.RecordEventRejected()
		s.logger.Warn(ctx, "event for unknown session dropped",
			logger.String("session", ev.SessionID),
			logger.String("event", ev.EventID),
		)
		return nil
	}

	start := time.Now()
	var res timing.AppliedResult
	var applyErr error
	ses.Update(func(l *timing.SessionLedger) {
		res, applyErr = s.engine.Apply(l, &ev)
	})
	metrics.RecordApplyLatency(float64(time.Since(start).Milliseconds()))

	if applyErr != nil {
		metrics.RecordEventRejected()
		metrics.RecordErrorByComponent("engine", "invalid_event")
		return fmt.Errorf("apply event %s: %w", ev.EventID, applyErr)
	}

	switch {
	case res.Deletion:
		metrics.RecordEventDeleted()
		if res.Recomputed {
			metrics.RecordRecomputation()
		}
	default:
		metrics.RecordEventApplied()
		if res.PersonalBest {
			metrics.RecordPersonalBest()
		}
		if res.SessionBest {
			metrics.RecordSessionBest()
		}
	}

	s.logger.Debug(ctx, "event applied",
		logger.String("session", ev.SessionID),
		logger.String("event", ev.EventID),
		logger.Bool("personalBest", res.PersonalBest),
		logger.Bool("sessionBest", res.SessionBest),
	)
	return nil
}

// UpdateDeviceInfo updates presentation metadata for a device within a
// session.
func (s *Service) UpdateDeviceInfo(ctx context.Context, sessionID string, info model.DeviceInfo) error {
	ses, ok := s.sessions.Get(sessionID)
	if !ok {
		return registry.ErrUnknownSession
	}
	ses.Update(func(l *timing.SessionLedger) {
		l.SetDeviceInfo(info)
	})
	return nil
}

// ReplaceSnapshot rebuilds a session's ledger wholesale from a full
// snapshot, discarding any state derived from events not present in it.
// The session is created if it was not yet joined.
func (s *Service) ReplaceSnapshot(ctx context.Context, snap model.SessionSnapshot) error {
	ledger, err := s.engine.Rebuild(snap)
	if err != nil {
		return fmt.Errorf("rebuild session %s: %w", snap.SessionID, err)
	}
	ses := s.sessions.Join(snap.SessionID)
	ses.Swap(ledger)
	metrics.UpdateSessionCount(s.sessions.Count())
	s.logger.Info(ctx, "session snapshot replaced",
		logger.String("session", snap.SessionID),
		logger.Int("devices", len(snap.Devices)),
	)
	return nil
}

// BestLap returns the session-wide best lap time. The second return is
// false when no best is set; ErrUnknownSession when the session is absent.
func (s *Service) BestLap(ctx context.Context, sessionID string) (time.Duration, bool, error) {
	return s.best(sessionID, timing.LapScope())
}

// BestSector returns the session-wide best time for one sector number.
func (s *Service) BestSector(ctx context.Context, sessionID string, sector int) (time.Duration, bool, error) {
	return s.best(sessionID, timing.SectorScope(sector))
}

func (s *Service) best(sessionID string, sc timing.Scope) (time.Duration, bool, error) {
	ses, ok := s.sessions.Get(sessionID)
	if !ok {
		return 0, false, registry.ErrUnknownSession
	}
	var elapsed time.Duration
	var set bool
	ses.View(func(l *timing.SessionLedger) {
		if rec := l.Best(sc); rec != nil {
			elapsed, set = rec.Elapsed, true
		}
	})
	return elapsed, set, nil
}

// Leaderboard renders a point-in-time-consistent standings snapshot.
func (s *Service) Leaderboard(ctx context.Context, sessionID string) (*view.LeaderboardSnapshot, error) {
	ses, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, registry.ErrUnknownSession
	}
	start := time.Now()
	var snap *view.LeaderboardSnapshot
	ses.View(func(l *timing.SessionLedger) {
		snap = s.projector.Render(l)
	})
	metrics.RecordRenderLatency(float64(time.Since(start).Milliseconds()))
	return snap, nil
}

// EventFlags returns both the historical stamps and the live annotation for
// one event. Consumers browsing history need the stamps; consumers asking
// "what does this mean right now" need the live values.
func (s *Service) EventFlags(ctx context.Context, sessionID, eventID string) (view.EventFlags, error) {
	ses, ok := s.sessions.Get(sessionID)
	if !ok {
		return view.EventFlags{}, registry.ErrUnknownSession
	}
	var flags view.EventFlags
	var found bool
	ses.View(func(l *timing.SessionLedger) {
		entry, dev, ok := l.Entry(eventID)
		if !ok {
			return
		}
		found = true
		flags = view.EventFlags{
			StampedPersonalBest: entry.WasPersonalBest,
			StampedSessionBest:  entry.WasSessionBest,
			Live:                s.projector.Annotate(entry.Event, dev, l),
		}
	})
	if !found {
		return view.EventFlags{}, fmt.Errorf("%w: %s", registry.ErrUnknownEvent, eventID)
	}
	return flags, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":    s.started,
		"queueSize":  s.queueSize,
		"dedupeSize": s.dedupeSize,
	}

	if s.started {
		ctx := context.Background()
		sessions := s.sessions.Count()
		devices := s.sessions.DeviceCount()

		stats["sessions"] = sessions
		stats["devices"] = devices
		stats["queueLength"] = s.eventQueue.Len(ctx)
		stats["dedupeEntries"] = s.deduper.Size()
		stats["lanes"] = s.dispatcher.LaneCount()

		metrics.UpdateSessionCount(sessions)
		metrics.UpdateDeviceCount(devices)
		metrics.UpdateQueueSize(s.eventQueue.Len(ctx))
	}

	return stats
}
