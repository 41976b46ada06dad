package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/SAP-F-2025/session-runtime/internal/utils"
)

type SyncStatus string

const (
	SyncIdle   SyncStatus = "idle"
	SyncSaving SyncStatus = "saving"
	SyncSaved  SyncStatus = "saved"
	SyncError  SyncStatus = "error"
)

// SchedulerOptions tune the three sync triggers.
type SchedulerOptions struct {
	Interval    time.Duration // fixed autosave cadence while Active
	Debounce    time.Duration // quiet period after an answer mutation
	RevertDelay time.Duration // how long saved/error stays displayed
}

func DefaultSchedulerOptions() SchedulerOptions {
	return SchedulerOptions{
		Interval:    30 * time.Second,
		Debounce:    2 * time.Second,
		RevertDelay: 2500 * time.Millisecond,
	}
}

// Scheduler coordinates the three persistence triggers: the fixed autosave
// interval, the post-mutation debounce and the manual flush. Concurrent
// triggers coalesce into a single in-flight write; a request arriving while
// one is in flight marks it pending and the write re-runs once, snapshotting
// the then-latest state. All triggers are suppressed while the session is
// paused.
type Scheduler struct {
	clock  Clock
	logger utils.Logger
	opts   SchedulerOptions
	// sync must snapshot state at call time so a coalesced write always
	// carries the latest selections, never a stale scheduling-time copy.
	sync func(ctx context.Context) error

	mu           sync.Mutex
	running      bool
	suppressed   bool
	inFlight     bool
	pending      bool
	status       SyncStatus
	lastSyncedAt time.Time

	intervalTimer Timer
	debounceTimer Timer
	revertTimer   Timer
}

func NewScheduler(clock Clock, logger utils.Logger, opts SchedulerOptions, syncFn func(ctx context.Context) error) *Scheduler {
	return &Scheduler{
		clock:  clock,
		logger: logger,
		opts:   opts,
		sync:   syncFn,
		status: SyncIdle,
	}
}

// Start arms the fixed interval. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.suppressed = false
	s.armInterval()
}

// Suspend stops every trigger for the duration of an offline pause. No write
// reaches storage until ResumeFresh.
func (s *Scheduler) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppressed = true
	s.stopTimersLocked()
}

// ResumeFresh lifts suppression and restarts the autosave interval from a
// full period, discarding any pre-pause timing.
func (s *Scheduler) ResumeFresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.suppressed = false
	s.armInterval()
}

// Stop permanently halts the scheduler. Pending timers never fire again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.suppressed = true
	s.stopTimersLocked()
	if s.revertTimer != nil {
		s.revertTimer.Stop()
		s.revertTimer = nil
	}
}

// NoteMutation restarts the debounce window. Called on every answer change.
func (s *Scheduler) NoteMutation() {
	s.mu.Lock()
	if !s.running || s.suppressed {
		s.mu.Unlock()
		return
	}
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = s.clock.AfterFunc(s.opts.Debounce, s.debounceFired)
	s.mu.Unlock()
}

// Flush runs the sync immediately (manual trigger).
func (s *Scheduler) Flush() {
	s.trigger()
}

func (s *Scheduler) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastSyncedAt survives the status display reverting to idle.
func (s *Scheduler) LastSyncedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncedAt
}

func (s *Scheduler) stopTimersLocked() {
	if s.intervalTimer != nil {
		s.intervalTimer.Stop()
		s.intervalTimer = nil
	}
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
}

// armInterval schedules the next autosave tick. Caller holds s.mu.
func (s *Scheduler) armInterval() {
	if s.intervalTimer != nil {
		s.intervalTimer.Stop()
	}
	s.intervalTimer = s.clock.AfterFunc(s.opts.Interval, s.intervalFired)
}

func (s *Scheduler) intervalFired() {
	s.mu.Lock()
	// Re-check at fire time: the session may have paused or closed since
	// this tick was scheduled.
	if !s.running || s.suppressed {
		s.mu.Unlock()
		return
	}
	s.armInterval()
	s.mu.Unlock()
	s.trigger()
}

func (s *Scheduler) debounceFired() {
	s.mu.Lock()
	s.debounceTimer = nil
	if !s.running || s.suppressed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.trigger()
}

// trigger coalesces into at most one in-flight write.
func (s *Scheduler) trigger() {
	s.mu.Lock()
	if !s.running || s.suppressed {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.status = SyncSaving
	if s.revertTimer != nil {
		s.revertTimer.Stop()
		s.revertTimer = nil
	}
	s.mu.Unlock()

	err := s.sync(context.Background())
	s.complete(err)
}

func (s *Scheduler) complete(err error) {
	s.mu.Lock()
	s.inFlight = false
	if err != nil {
		s.status = SyncError
		s.logger.Warn("Session sync failed", "error", err)
	} else {
		s.status = SyncSaved
		s.lastSyncedAt = s.clock.Now()
	}
	s.revertTimer = s.clock.AfterFunc(s.opts.RevertDelay, s.revertFired)

	rerun := s.pending && s.running && !s.suppressed
	s.pending = false
	s.mu.Unlock()

	if rerun {
		s.trigger()
	}
}

func (s *Scheduler) revertFired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revertTimer = nil
	if s.status == SyncSaved || s.status == SyncError {
		s.status = SyncIdle
	}
}
