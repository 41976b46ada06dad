package runtime

import (
	"sort"
	"sync"
	"time"
)

// Timer is a stoppable scheduled callback.
type Timer interface {
	// Stop cancels the timer. It returns false if the timer already fired
	// or was already stopped. Callbacks re-check state at fire time, so a
	// callback that slips through Stop is harmless.
	Stop() bool
}

// Clock abstracts wall-clock time and timer scheduling so the countdown,
// autosave interval and debounce can run on virtual time in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// ===== REAL CLOCK =====

type realClock struct{}

// RealClock returns a Clock backed by the standard library.
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) Stop() bool {
	return r.t.Stop()
}

// ===== MANUAL CLOCK (tests) =====

// ManualClock is a deterministic Clock advanced explicitly by tests.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
	seq    int
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{
		clock:    c,
		deadline: c.now.Add(d),
		seq:      c.seq,
		f:        f,
	}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves virtual time forward, firing due timers in deadline order.
// Callbacks run with no clock lock held and may schedule further timers.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.popDue(target)
		if t == nil {
			break
		}
		t.f()
	}

	c.mu.Lock()
	if target.After(c.now) {
		c.now = target
	}
	c.mu.Unlock()
}

// popDue removes and returns the earliest timer with deadline <= target,
// setting the clock to that deadline, or nil when none remain.
func (c *ManualClock) popDue(target time.Time) *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].deadline.Equal(c.timers[j].deadline) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].deadline.Before(c.timers[j].deadline)
	})

	for i, t := range c.timers {
		if t.deadline.After(target) {
			break
		}
		c.timers = append(c.timers[:i], c.timers[i+1:]...)
		if t.deadline.After(c.now) {
			c.now = t.deadline
		}
		return t
	}
	return nil
}

func (c *ManualClock) remove(t *manualTimer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cur := range c.timers {
		if cur == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}
	return false
}

type manualTimer struct {
	clock    *ManualClock
	deadline time.Time
	seq      int
	f        func()
}

func (t *manualTimer) Stop() bool {
	return t.clock.remove(t)
}
