// Package monitor drives evaluation cycles: it pulls a batch of readings
// from the generator every tick, runs the prioritizer with at most one
// cycle in flight, and publishes the newest result.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/blindspot/internal/alert"
	"github.com/linnemanlabs/blindspot/internal/prioritize"
	"github.com/linnemanlabs/blindspot/internal/simulate"
)

// DefaultInterval is the tick period when Run is given a non-positive interval.
const DefaultInterval = time.Second

// Snapshot is the outcome of one evaluation cycle.
type Snapshot struct {
	CycleID     string               `json:"cycleId"`
	Scenario    simulate.Scenario    `json:"scenario"`
	EvaluatedAt time.Time            `json:"evaluatedAt"`
	Duration    float64              `json:"durationSeconds"`
	Readings    []alert.SensedObject `json:"readings"`
	Alerts      []alert.Alert        `json:"prioritizedAlerts"`
	seq         uint64
}

// Danger reports whether any alert in the snapshot is DANGER.
func (s *Snapshot) Danger() bool {
	for _, a := range s.Alerts {
		if a.ThreatLevel == alert.LevelDanger {
			return true
		}
	}
	return false
}

// Publisher receives every published snapshot, e.g. a websocket hub.
type Publisher interface {
	Publish(ctx context.Context, snap *Snapshot)
}

// Notifier is told when the published view enters DANGER.
type Notifier interface {
	Notify(ctx context.Context, snap *Snapshot) error
}

// Service owns the tick loop and the current view.
type Service struct {
	gen       *simulate.Generator
	window    *simulate.Window
	prio      prioritize.Prioritizer
	logger    log.Logger
	metrics   *Metrics
	notifier  Notifier
	publisher Publisher

	inflight *semaphore.Weighted
	seq      atomic.Uint64
	busy     atomic.Bool
	wg       sync.WaitGroup
	now      func() time.Time

	mu        sync.RWMutex
	current   *Snapshot
	published uint64 // seq of current
	resetAt   uint64 // cycles at or below this seq are stale
}

// NewService creates a monitor. metrics, notifier and publisher may be nil.
func NewService(gen *simulate.Generator, window *simulate.Window, prio prioritize.Prioritizer, logger log.Logger, metrics *Metrics, notifier Notifier, publisher Publisher) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		gen:       gen,
		window:    window,
		prio:      prio,
		logger:    logger,
		metrics:   metrics,
		notifier:  notifier,
		publisher: publisher,
		inflight:  semaphore.NewWeighted(1),
		now:       time.Now,
	}
}

// Run ticks every interval until ctx is done, then waits for the in-flight cycle.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "monitor started", "interval", interval.String(), "scenario", s.gen.Scenario())

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info(context.WithoutCancel(ctx), "monitor stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick generates one batch, records it in the window, and starts a cycle
// unless one is already in flight. It reports whether a cycle was started.
func (s *Service) Tick(ctx context.Context) bool {
	batch := s.gen.Generate()
	s.window.Push(batch)
	if s.metrics != nil {
		s.metrics.TicksTotal.Inc()
	}

	if !s.inflight.TryAcquire(1) {
		if s.metrics != nil {
			s.metrics.SkippedTotal.Inc()
		}
		// log the start of a busy run once, not every tick of it
		if !s.busy.Swap(true) {
			s.logger.Info(ctx, "previous cycle still running, skipping ticks")
		}
		return false
	}
	s.busy.Store(false)

	seq := s.seq.Add(1)
	scenario := s.gen.Scenario()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		snap := s.evaluateHeld(ctx, scenario, batch)
		snap.seq = seq
		s.finish(ctx, snap)
	}()
	return true
}

// evaluateHeld runs one evaluation and frees the in-flight slot as soon as
// the prioritizer returns, so publishing and notifying never block ticks.
func (s *Service) evaluateHeld(ctx context.Context, scenario simulate.Scenario, batch []alert.SensedObject) *Snapshot {
	defer s.inflight.Release(1)
	return s.evaluate(ctx, scenario, batch)
}

// Wait blocks until the in-flight cycle, if any, has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// finish publishes a completed cycle and sends the DANGER notification.
func (s *Service) finish(ctx context.Context, snap *Snapshot) {
	L := s.logger.With("cycle_id", snap.CycleID, "scenario", snap.Scenario)

	prev, ok := s.publish(snap)
	if !ok {
		if s.metrics != nil {
			s.metrics.StaleTotal.Inc()
		}
		L.Info(ctx, "discarding stale cycle result", "seq", snap.seq)
		return
	}

	if s.publisher != nil {
		s.publisher.Publish(ctx, snap)
	}

	// notify on entering DANGER, not on every tick spent in it
	if s.notifier != nil && snap.Danger() && (prev == nil || !prev.Danger()) {
		err := s.notifier.Notify(ctx, snap)
		if s.metrics != nil {
			s.metrics.notified(err)
		}
		if err != nil {
			L.Error(ctx, err, "danger notification failed")
		}
	}
}

func (s *Service) evaluate(ctx context.Context, scenario simulate.Scenario, batch []alert.SensedObject) *Snapshot {
	start := s.now()
	alerts := s.prio.Prioritize(ctx, batch)
	end := s.now()
	return &Snapshot{
		CycleID:     ulid.Make().String(),
		Scenario:    scenario,
		EvaluatedAt: end.UTC(),
		Duration:    end.Sub(start).Seconds(),
		Readings:    batch,
		Alerts:      alerts,
	}
}

// publish installs snap as the current view unless a newer cycle or a reset got there first.
func (s *Service) publish(snap *Snapshot) (prev *Snapshot, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.seq <= s.published || snap.seq <= s.resetAt {
		return nil, false
	}
	prev = s.current
	s.current = snap
	s.published = snap.seq
	return prev, true
}

// Evaluate runs a synchronous cycle over caller-supplied readings. The
// result is returned but not published. It shares the in-flight slot with
// the tick loop, waiting for a running cycle to finish, and returns the
// context error if ctx ends first.
func (s *Service) Evaluate(ctx context.Context, readings []alert.SensedObject) (*Snapshot, error) {
	if err := s.inflight.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return s.evaluateHeld(ctx, s.gen.Scenario(), readings), nil
}

// Current returns the latest published snapshot. Before the first cycle it
// returns an all-clear snapshot with no readings.
func (s *Service) Current() *Snapshot {
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if cur == nil {
		return &Snapshot{
			Scenario: s.gen.Scenario(),
			Readings: []alert.SensedObject{},
			Alerts:   []alert.Alert{alert.AllClear()},
		}
	}
	return cur
}

// Readings returns the rolling window of recent batches, oldest first.
func (s *Service) Readings() [][]alert.SensedObject {
	return s.window.Batches()
}

// Scenario returns the active scenario.
func (s *Service) Scenario() simulate.Scenario {
	return s.gen.Scenario()
}

// SetScenario switches the generator to a new scenario.
func (s *Service) SetScenario(ctx context.Context, sc simulate.Scenario) {
	prev := s.gen.Scenario()
	s.gen.SetScenario(sc)
	s.logger.Info(ctx, "scenario changed", "from", prev, "to", sc)
}

// Reset clears the window and the current view. A cycle already in flight
// is discarded when it completes.
func (s *Service) Reset(ctx context.Context) {
	s.mu.Lock()
	s.resetAt = s.seq.Load()
	s.current = nil
	s.mu.Unlock()

	s.window.Reset()
	s.logger.Info(ctx, "stream reset")
}
