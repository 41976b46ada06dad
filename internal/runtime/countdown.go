package runtime

import (
	"sync"
	"time"
)

// CountdownHooks receive clock signals. They are invoked without the
// countdown's lock held and must be safe to call from timer goroutines.
type CountdownHooks struct {
	OnTick    func(remaining int)
	OnLowTime func(remaining int)
	OnExpired func()
}

// Countdown is the single source of truth for remaining time. It decrements
// once per second of wall-clock time while running, emits a one-shot low-time
// warning at the threshold crossing and a one-shot expired signal at zero.
//
// Pausing gates the tick's effect, not just its schedule: a timer callback
// that fires after Pause observes running=false and does nothing.
type Countdown struct {
	clock Clock
	hooks CountdownHooks

	mu        sync.Mutex
	remaining int
	warnAt    int
	running   bool
	warned    bool
	expired   bool
	timer     Timer
}

func NewCountdown(clock Clock, remaining, warnAt int, hooks CountdownHooks) *Countdown {
	if remaining < 0 {
		remaining = 0
	}
	return &Countdown{
		clock:     clock,
		hooks:     hooks,
		remaining: remaining,
		warnAt:    warnAt,
	}
}

// Start begins ticking. Restarting an already-running countdown is a no-op,
// so rapid re-subscriptions cannot double the tick rate.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.expired {
		return
	}
	c.running = true
	c.schedule()
}

// Pause freezes the countdown. The captured remaining value is returned so
// pause/restore form a matched pair.
func (c *Countdown) Pause() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	return c.remaining
}

// Resume restores remaining verbatim and starts ticking from exactly that
// value. No time is charged for the paused interval.
func (c *Countdown) Resume(remaining int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired {
		return
	}
	if remaining < 0 {
		remaining = 0
	}
	c.remaining = remaining
	if c.running {
		return
	}
	c.running = true
	c.schedule()
}

// Reset replaces the remaining budget without starting the clock. Used by
// the start-fresh path before reactivation.
func (c *Countdown) Reset(remaining int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remaining < 0 {
		remaining = 0
	}
	c.remaining = remaining
	c.warned = false
	c.expired = false
}

// Stop permanently halts the countdown.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// schedule arms the next tick. Caller holds c.mu.
func (c *Countdown) schedule() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.clock.AfterFunc(time.Second, c.tick)
}

func (c *Countdown) tick() {
	c.mu.Lock()
	// A tick scheduled before Pause or Stop can still fire late; the
	// running check at fire time makes it a no-op.
	if !c.running || c.expired {
		c.mu.Unlock()
		return
	}

	c.remaining--
	if c.remaining < 0 {
		c.remaining = 0
	}

	fireLow := false
	if !c.warned && c.remaining <= c.warnAt && c.remaining > 0 {
		c.warned = true
		fireLow = true
	}

	fireExpired := false
	if c.remaining == 0 {
		c.expired = true
		c.running = false
		c.timer = nil
		fireExpired = true
	} else {
		c.schedule()
	}

	remaining := c.remaining
	c.mu.Unlock()

	if c.hooks.OnTick != nil {
		c.hooks.OnTick(remaining)
	}
	if fireLow && c.hooks.OnLowTime != nil {
		c.hooks.OnLowTime(remaining)
	}
	if fireExpired && c.hooks.OnExpired != nil {
		c.hooks.OnExpired()
	}
}
