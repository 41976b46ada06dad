package runtime

import (
	"sync"
	"time"
)

// MonitorHooks receive deduplicated connectivity transitions.
type MonitorHooks struct {
	OnOffline func()
	OnOnline  func()
}

// Monitor tracks the candidate client's connectivity from heartbeats. Missing
// two heartbeat intervals flips the session offline; the next heartbeat flips
// it back online. Redundant signals in either direction emit nothing.
//
// The monitor is a pure signal source: pausing the session on offline is the
// engine's decision, not the monitor's.
type Monitor struct {
	clock    Clock
	interval time.Duration
	hooks    MonitorHooks

	mu       sync.Mutex
	started  bool
	stopped  bool
	online   bool
	watchdog Timer
}

func NewMonitor(clock Clock, heartbeatInterval time.Duration, hooks MonitorHooks) *Monitor {
	return &Monitor{
		clock:    clock,
		interval: heartbeatInterval,
		hooks:    hooks,
	}
}

// Start marks the client online and arms the watchdog. Idempotent.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true
	m.online = true
	m.arm()
}

// Stop disarms the watchdog. No transition fires after Stop returns.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Heartbeat records a liveness signal, rearms the watchdog and emits a
// cameOnline transition if the client was offline.
func (m *Monitor) Heartbeat() {
	m.mu.Lock()
	if !m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	wasOffline := !m.online
	m.online = true
	m.arm()
	m.mu.Unlock()

	if wasOffline && m.hooks.OnOnline != nil {
		m.hooks.OnOnline()
	}
}

// Report applies an explicit connectivity signal from the client, deduplicated
// against the current state.
func (m *Monitor) Report(online bool) {
	m.mu.Lock()
	if !m.started || m.stopped || m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	if online {
		m.arm()
	} else if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
	m.mu.Unlock()

	if online {
		if m.hooks.OnOnline != nil {
			m.hooks.OnOnline()
		}
	} else if m.hooks.OnOffline != nil {
		m.hooks.OnOffline()
	}
}

// arm resets the watchdog. Caller holds m.mu.
func (m *Monitor) arm() {
	if m.watchdog != nil {
		m.watchdog.Stop()
	}
	m.watchdog = m.clock.AfterFunc(2*m.interval, m.expire)
}

func (m *Monitor) expire() {
	m.mu.Lock()
	// Re-check at fire time: a heartbeat may have landed between the
	// schedule and the callback, or Stop may have raced the timer.
	if m.stopped || !m.online {
		m.mu.Unlock()
		return
	}
	m.online = false
	m.watchdog = nil
	m.mu.Unlock()

	if m.hooks.OnOffline != nil {
		m.hooks.OnOffline()
	}
}
