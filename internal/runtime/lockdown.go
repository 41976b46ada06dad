package runtime

import (
	"sync"
	"time"

	"github.com/SAP-F-2025/session-runtime/internal/models"
	"github.com/SAP-F-2025/session-runtime/internal/utils"
)

// noticeTTL is how long a lockdown notice stays visible before auto-dismissing.
const noticeTTL = 3 * time.Second

// Notice is the transient message shown to the candidate after an intercepted
// attempt.
type Notice struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Guard owns the lockdown lifecycle. Activate installs the violation sink,
// Deactivate removes it; both are idempotent so teardown can run on every exit
// path without bookkeeping. Violations reported while inactive are rejected.
//
// The violation log is append-only and survives Deactivate so a completed
// session can still read its own history.
type Guard struct {
	clock  Clock
	logger utils.Logger
	// report forwards one violation to the audit collaborator. Fire and
	// forget: errors are the reporter's problem, never the candidate's.
	report func(v models.SecurityViolation)

	mu         sync.Mutex
	active     bool
	violations []models.SecurityViolation
	notice     *Notice
}

func NewGuard(clock Clock, logger utils.Logger, report func(v models.SecurityViolation)) *Guard {
	return &Guard{
		clock:  clock,
		logger: logger,
		report: report,
	}
}

// Activate installs the interceptors. Idempotent.
func (g *Guard) Activate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = true
}

// Deactivate removes the interceptors and clears any pending notice.
// Idempotent and unconditional: it never fails, so callers can defer it on
// every exit path.
func (g *Guard) Deactivate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
	g.notice = nil
}

func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Report records one intercepted attempt: appends to the violation log, posts
// the transient notice and forwards to the audit collaborator. Returns false
// when the guard is inactive (the attempt is ignored entirely).
func (g *Guard) Report(kind models.ViolationKind, description string) bool {
	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return false
	}

	violation := models.SecurityViolation{
		Kind:        kind,
		Description: description,
		Severity:    models.SeverityFor(kind),
		OccurredAt:  g.clock.Now(),
	}
	g.violations = append(g.violations, violation)
	g.notice = &Notice{
		Message:   description,
		ExpiresAt: g.clock.Now().Add(noticeTTL),
	}
	g.mu.Unlock()

	g.logger.Warn("Security violation intercepted",
		"kind", kind,
		"severity", violation.Severity)

	if g.report != nil {
		g.report(violation)
	}
	return true
}

// Violations returns a copy of the append-only log.
func (g *Guard) Violations() []models.SecurityViolation {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.SecurityViolation, len(g.violations))
	copy(out, g.violations)
	return out
}

// Notice returns the current notice, if it has not yet auto-dismissed.
func (g *Guard) Notice() (Notice, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.notice == nil || !g.clock.Now().Before(g.notice.ExpiresAt) {
		g.notice = nil
		return Notice{}, false
	}
	return *g.notice, true
}
