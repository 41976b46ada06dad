package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SAP-F-2025/session-runtime/internal/models"
	"github.com/SAP-F-2025/session-runtime/internal/utils"
)

// State is the authoritative session status arbitrated by the engine.
type State string

const (
	StateLoading        State = "loading"
	StateAwaitingResume State = "awaiting_resume"
	StateActive         State = "active"
	StatePaused         State = "paused"
	StateReviewing      State = "reviewing"
	StateSubmitting     State = "submitting"
	StateCompleted      State = "completed"
	StateError          State = "error"
)

type SubmitReason string

const (
	SubmitManual  SubmitReason = "manual"
	SubmitTimeout SubmitReason = "timeout"
)

var (
	ErrNotActive         = errors.New("session is not active")
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrAlreadySubmitted  = errors.New("session already submitted")
	ErrSessionTerminal   = errors.New("session is already completed")
	ErrQuestionNotFound  = errors.New("question not found in session")
	ErrOptionNotFound    = errors.New("option does not belong to question")
	ErrNotStarted        = errors.New("session engine not started")
)

// ===== COLLABORATOR CONTRACTS =====

// SyncPayload is what the persistence scheduler ships to durable storage. It
// is always built from the latest in-memory state at send time.
type SyncPayload struct {
	CurrentQuestionIndex int
	TimeRemaining        int
	TotalPauseDuration   int
	Answers              map[uint][]uint
	Flags                []int
	Status               models.SessionStatus
}

// SubmitResult is the outcome handed back by the scoring collaborator.
type SubmitResult struct {
	Score         float64 `json:"score"`
	IsPassed      bool    `json:"is_passed"`
	CertificateID *string `json:"certificate_id,omitempty"`
}

// SessionStore loads and syncs durable session state. Sync is best-effort;
// its failures surface only through the scheduler's status.
type SessionStore interface {
	Load(ctx context.Context, sessionID uint) (*models.TestSession, error)
	Sync(ctx context.Context, sessionID uint, payload SyncPayload) error
}

// QuestionBank returns the ordered, immutable question set for a survey.
type QuestionBank interface {
	ForSurvey(ctx context.Context, surveyID uint) ([]models.Question, error)
}

// Submission is the single authoritative scoring call. The engine treats it
// as non-idempotent and guards it with a single-use latch.
type Submission interface {
	Submit(ctx context.Context, sessionID uint, reason SubmitReason) (*SubmitResult, error)
}

// AuditLog receives violations fire-and-forget; failures are swallowed there,
// never here.
type AuditLog interface {
	LogViolation(ctx context.Context, sessionID uint, v models.SecurityViolation)
	SyncOfflineQueue(ctx context.Context)
}

// ===== ENGINE =====

// Config wires one engine to its collaborators.
type Config struct {
	SessionID uint
	Clock     Clock
	Logger    utils.Logger
	Store     SessionStore
	Bank      QuestionBank
	Submitter Submission
	Audit     AuditLog

	LowTimeWarning    int // seconds remaining at the one-shot warning, default 300
	HeartbeatInterval time.Duration
	Scheduler         SchedulerOptions
	// SubmitRetryDelay is how long a failed timeout submit waits before the
	// automatic re-attempt.
	SubmitRetryDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.Clock == nil {
		c.Clock = RealClock()
	}
	if c.Logger == nil {
		c.Logger = utils.NewDefaultLogger()
	}
	if c.LowTimeWarning <= 0 {
		c.LowTimeWarning = 300
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.Scheduler == (SchedulerOptions{}) {
		c.Scheduler = DefaultSchedulerOptions()
	}
	if c.SubmitRetryDelay <= 0 {
		c.SubmitRetryDelay = 5 * time.Second
	}
}

// Engine owns one session's state machine. All mutation is serialized through
// its mutex, one logical event loop. Timer and I/O callbacks re-check state
// under the lock at fire time, so callbacks scheduled before a transition
// become no-ops instead of acting on stale state.
type Engine struct {
	cfg    Config
	logger utils.Logger

	countdown *Countdown
	monitor   *Monitor
	guard     *Guard
	answers   *AnswerStore
	scheduler *Scheduler
	nav       *Navigator

	mu        sync.Mutex
	state     State
	session   *models.TestSession
	questions []models.Question
	byID      map[uint]*models.Question

	pausedAt       time.Time
	pauseRemaining int
	lowTimeFired   bool

	// Single-use submission latch (plus the completion flag). submitting
	// stays true across timeout retries so no other path can slip in.
	submitting   bool
	submitted    bool
	submitReason SubmitReason
	retryTimer   Timer
	result       *SubmitResult
	lastErr      error

	closed bool
}

func NewEngine(cfg Config) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		cfg:    cfg,
		logger: cfg.Logger.With("session_id", cfg.SessionID),
		state:  StateLoading,
		byID:   make(map[uint]*models.Question),
	}

	gate := func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.state == StateActive
	}

	// The countdown is seeded in Start once the remaining budget is known.
	e.monitor = NewMonitor(cfg.Clock, cfg.HeartbeatInterval, MonitorHooks{
		OnOffline: e.handleOffline,
		OnOnline:  e.handleOnline,
	})
	e.guard = NewGuard(cfg.Clock, e.logger, e.reportViolation)
	e.scheduler = NewScheduler(cfg.Clock, e.logger, cfg.Scheduler, e.syncNow)
	e.answers = NewAnswerStore(gate, e.scheduler.NoteMutation)
	e.nav = NewNavigator(gate)

	return e
}

// Start loads the session record, question set and persisted answers. When
// persisted answers exist the engine parks in AwaitingResume until the
// candidate chooses resume or start-fresh; otherwise it activates directly.
// Load failures are fatal for the session (no retry loop).
func (e *Engine) Start(ctx context.Context) error {
	session, err := e.cfg.Store.Load(ctx, e.cfg.SessionID)
	if err != nil {
		e.fail(fmt.Errorf("failed to load session: %w", err))
		return err
	}
	if session.IsTerminal() {
		e.fail(ErrSessionTerminal)
		return ErrSessionTerminal
	}

	questions, err := e.cfg.Bank.ForSurvey(ctx, session.SurveyID)
	if err != nil {
		err = fmt.Errorf("failed to load questions: %w", err)
		e.fail(err)
		return err
	}

	persisted := make(map[uint][]uint, len(session.Answers))
	for i := range session.Answers {
		persisted[session.Answers[i].QuestionID] = session.Answers[i].OptionIDs()
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrSessionTerminal
	}
	e.session = session
	e.questions = questions
	for i := range e.questions {
		e.byID[e.questions[i].ID] = &e.questions[i]
	}

	remaining := session.TimeRemaining
	if remaining <= 0 && len(persisted) == 0 {
		remaining = session.Survey.DurationSeconds()
	}
	warnAt := e.cfg.LowTimeWarning
	if session.Survey.TimeWarning > 0 {
		warnAt = session.Survey.TimeWarning
	}
	e.countdown = NewCountdown(e.cfg.Clock, remaining, warnAt, CountdownHooks{
		OnLowTime: e.handleLowTime,
		OnExpired: e.handleExpired,
	})

	e.answers.Seed(persisted)
	e.nav.Seed(session.CurrentQuestionIndex, len(questions), decodeFlags(session.FlaggedQuestions))

	hasProgress := len(persisted) > 0
	expired := hasProgress && session.TimeRemaining <= 0
	if expired {
		e.mu.Unlock()
		// Resuming past the deadline goes straight down the timeout path;
		// the candidate never re-enters Active.
		e.logger.Info("Session resumed after expiry, auto-submitting")
		e.submit(SubmitTimeout)
		return nil
	}

	if hasProgress {
		e.state = StateAwaitingResume
		e.mu.Unlock()
		e.logger.Info("Session has persisted answers, awaiting resume choice",
			"answered", len(persisted),
			"time_remaining", remaining)
		return nil
	}

	e.activateLocked()
	e.mu.Unlock()
	e.logger.Info("Session started", "time_remaining", remaining, "questions", len(questions))
	return nil
}

// Resume resolves the resume-or-restart choice. fresh resets the time budget,
// answers, flags and pointer; the attempt number is unchanged (the attempt
// stays consumed).
func (e *Engine) Resume(fresh bool) error {
	e.mu.Lock()
	if e.state != StateAwaitingResume {
		e.mu.Unlock()
		return ErrInvalidTransition
	}

	if fresh {
		e.answers.Reset()
		e.nav.Reset()
		e.countdown.Reset(e.session.Survey.DurationSeconds())
		e.session.TotalPauseDuration = 0
	}

	e.activateLocked()
	e.mu.Unlock()

	e.logger.Info("Session resumed", "fresh", fresh)
	if fresh {
		// Persist the reset so a reload cannot revive the old answers.
		e.scheduler.Flush()
	}
	return nil
}

// activateLocked enters Active and starts every satellite. Caller holds e.mu.
func (e *Engine) activateLocked() {
	e.state = StateActive
	e.guard.Activate()
	e.countdown.Start()
	e.scheduler.Start()
	e.monitor.Start()
}

// ===== CONNECTIVITY =====

// Heartbeat records client liveness; the first one after a silence gap
// resumes the session.
func (e *Engine) Heartbeat() {
	e.monitor.Heartbeat()
}

// ReportConnectivity applies an explicit online/offline signal.
func (e *Engine) ReportConnectivity(online bool) {
	e.monitor.Report(online)
}

func (e *Engine) handleOffline() {
	e.mu.Lock()
	if e.state != StateActive {
		e.mu.Unlock()
		return
	}
	// Capture-on-pause: the frozen value is restored verbatim on resume.
	e.pauseRemaining = e.countdown.Pause()
	e.pausedAt = e.cfg.Clock.Now()
	remaining := e.pauseRemaining
	e.scheduler.Suspend()
	e.state = StatePaused
	e.mu.Unlock()

	e.logger.Warn("Connectivity lost, session paused", "time_remaining", remaining)
}

func (e *Engine) handleOnline() {
	e.mu.Lock()
	if e.state != StatePaused {
		e.mu.Unlock()
		return
	}
	pause := int(e.cfg.Clock.Now().Sub(e.pausedAt).Seconds())
	if pause > 0 {
		e.session.TotalPauseDuration += pause
	}
	// Restore-on-resume: no time is charged for the offline interval.
	restored := e.pauseRemaining
	e.countdown.Resume(restored)
	e.scheduler.ResumeFresh()
	e.state = StateActive
	e.mu.Unlock()

	e.logger.Info("Connectivity restored, session resumed",
		"time_remaining", restored,
		"pause_duration", pause)

	e.cfg.Audit.SyncOfflineQueue(context.Background())
}

// ===== COUNTDOWN SIGNALS =====

func (e *Engine) handleLowTime(remaining int) {
	e.mu.Lock()
	e.lowTimeFired = true
	e.mu.Unlock()
	e.logger.Info("Low time warning", "time_remaining", remaining)
}

func (e *Engine) handleExpired() {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	// Expiry fires the timeout path from Active and from Reviewing (the
	// confirmation dialog does not shield the deadline). Anything else is a
	// late tick on a session that already moved on.
	if state != StateActive && state != StateReviewing {
		return
	}
	e.logger.Info("Countdown expired, auto-submitting")
	e.submit(SubmitTimeout)
}

// ===== ANSWERS / NAVIGATION =====

// SetAnswer applies one selection change through the lockdown-filtered input
// path. Rejected without state change while not Active.
func (e *Engine) SetAnswer(questionID, optionID uint) error {
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return ErrNotStarted
	}
	question, ok := e.byID[questionID]
	if !ok {
		e.mu.Unlock()
		return ErrQuestionNotFound
	}
	valid := false
	for i := range question.Options {
		if question.Options[i].ID == optionID {
			valid = true
			break
		}
	}
	e.mu.Unlock()

	if !valid {
		return ErrOptionNotFound
	}
	if !e.answers.Set(questionID, optionID, question.IsMultiple()) {
		return ErrNotActive
	}
	return nil
}

// Navigate moves the current-question pointer.
func (e *Engine) Navigate(index int) error {
	if err := e.checkIndex(index); err != nil {
		return err
	}
	if !e.nav.Goto(index) {
		return ErrNotActive
	}
	e.scheduler.NoteMutation()
	return nil
}

// ToggleFlag flips a question's review mark.
func (e *Engine) ToggleFlag(index int) error {
	if err := e.checkIndex(index); err != nil {
		return err
	}
	if !e.nav.ToggleFlag(index) {
		return ErrNotActive
	}
	e.scheduler.NoteMutation()
	return nil
}

func (e *Engine) checkIndex(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return ErrNotStarted
	}
	if index < 0 || index >= len(e.questions) {
		return ErrQuestionNotFound
	}
	return nil
}

// ===== REVIEW / SUBMIT =====

// ReviewSummary is shown on the submit-confirmation screen.
type ReviewSummary struct {
	Answered   int `json:"answered"`
	Unanswered int `json:"unanswered"`
	Flagged    int `json:"flagged"`
}

// BeginReview enters the submit-confirmation state.
func (e *Engine) BeginReview() (*ReviewSummary, error) {
	e.mu.Lock()
	if e.state != StateActive {
		e.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	e.state = StateReviewing
	total := len(e.questions)
	e.mu.Unlock()

	answered := e.answers.AnsweredCount()
	return &ReviewSummary{
		Answered:   answered,
		Unanswered: total - answered,
		Flagged:    e.nav.FlagCount(),
	}, nil
}

// CancelReview returns to Active. After submission has begun it is a no-op
// on session state, reported as an invalid transition.
func (e *Engine) CancelReview() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReviewing {
		return ErrInvalidTransition
	}
	e.state = StateActive
	return nil
}

// ConfirmSubmit begins the irreversible manual submit from the review screen.
func (e *Engine) ConfirmSubmit() error {
	e.mu.Lock()
	if e.state != StateReviewing {
		latched := e.submitting || e.submitted
		e.mu.Unlock()
		if latched {
			return ErrAlreadySubmitted
		}
		return ErrInvalidTransition
	}
	e.mu.Unlock()
	return e.submit(SubmitManual)
}

// submit is the single funnel for every terminal path: manual confirm,
// countdown timeout, and resume-after-expiry. The latch makes re-entrant
// calls (double click, timeout racing a manual submit) no-ops.
func (e *Engine) submit(reason SubmitReason) error {
	e.mu.Lock()
	if e.submitting || e.submitted {
		e.mu.Unlock()
		return nil
	}
	e.submitting = true
	e.submitReason = reason
	e.state = StateSubmitting
	e.countdown.Pause()
	e.scheduler.Suspend()
	payload := e.buildPayloadLocked()
	e.mu.Unlock()

	// Best-effort final sync so scoring sees the freshest answers. A failure
	// here is logged and the submit proceeds; the scoring side reads
	// whatever the last successful sync persisted.
	if err := e.cfg.Store.Sync(context.Background(), e.cfg.SessionID, payload); err != nil {
		e.logger.Warn("Final pre-submit sync failed", "error", err)
	}

	return e.attemptSubmit(reason)
}

func (e *Engine) attemptSubmit(reason SubmitReason) error {
	result, err := e.cfg.Submitter.Submit(context.Background(), e.cfg.SessionID, reason)
	if err != nil {
		return e.submitFailed(reason, err)
	}

	e.mu.Lock()
	e.submitted = true
	e.result = result
	e.state = StateCompleted
	e.teardownLocked()
	e.mu.Unlock()

	e.logger.Info("Session submitted",
		"reason", reason,
		"score", result.Score,
		"passed", result.IsPassed)
	return nil
}

func (e *Engine) submitFailed(reason SubmitReason, err error) error {
	e.logger.LogError(err, "Submit failed", "reason", reason)

	e.mu.Lock()
	e.lastErr = err

	if reason == SubmitTimeout {
		// The candidate cannot be left in limbo past the deadline: keep the
		// latch closed against other paths and re-attempt automatically.
		e.retryTimer = e.cfg.Clock.AfterFunc(e.cfg.SubmitRetryDelay, e.retrySubmit)
		e.mu.Unlock()
		return err
	}

	if e.countdown.Expired() {
		// The final tick crossed zero while the manual submit was in flight.
		// Reactivating would hand back a spent clock with no expiry signal
		// left to fire, so keep the latch closed and take the timeout path.
		e.submitReason = SubmitTimeout
		e.mu.Unlock()
		e.logger.Info("Time expired during failed manual submit, re-attempting as timeout")
		_ = e.attemptSubmit(SubmitTimeout)
		return err
	}

	// Manual submit: reopen the latch and hand the session back for an
	// explicit retry.
	e.submitting = false
	e.state = StateActive
	e.countdown.Start()
	e.scheduler.ResumeFresh()
	e.mu.Unlock()
	return err
}

func (e *Engine) retrySubmit() {
	e.mu.Lock()
	// Re-check at fire time: Close may have raced the retry timer.
	if e.closed || e.submitted || e.state != StateSubmitting {
		e.mu.Unlock()
		return
	}
	e.retryTimer = nil
	e.mu.Unlock()

	e.logger.Info("Re-attempting timeout submission")
	_ = e.attemptSubmit(SubmitTimeout)
}

// ===== VIOLATIONS =====

// ReportViolation records one intercepted input event. Returns false when the
// lockdown guard is not active (session not Active/Reviewing/Submitting).
func (e *Engine) ReportViolation(kind models.ViolationKind, description string) bool {
	return e.guard.Report(kind, description)
}

// reportViolation is the guard's audit hook.
func (e *Engine) reportViolation(v models.SecurityViolation) {
	v.SessionID = e.cfg.SessionID
	e.cfg.Audit.LogViolation(context.Background(), e.cfg.SessionID, v)
}

// ===== PERSISTENCE =====

// syncNow is the scheduler's write function. It snapshots the latest
// in-memory state at send time.
func (e *Engine) syncNow(ctx context.Context) error {
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return ErrNotStarted
	}
	payload := e.buildPayloadLocked()
	e.mu.Unlock()

	return e.cfg.Store.Sync(ctx, e.cfg.SessionID, payload)
}

// FlushSync runs the manual persistence trigger.
func (e *Engine) FlushSync() {
	e.scheduler.Flush()
}

// buildPayloadLocked assembles the sync payload. Caller holds e.mu.
//
// The paused branches cover a write that was already past the scheduler's
// suppression check when the session went offline: it snapshots here after
// handleOffline ran and must record the paused status and the captured
// remaining rather than reading the stopped countdown.
func (e *Engine) buildPayloadLocked() SyncPayload {
	remaining := e.pauseRemaining
	if e.state != StatePaused {
		remaining = e.countdown.Remaining()
	}

	status := models.SessionInProgress
	if e.state == StatePaused {
		status = models.SessionPaused
	}

	return SyncPayload{
		CurrentQuestionIndex: e.nav.Index(),
		TimeRemaining:        remaining,
		TotalPauseDuration:   e.session.TotalPauseDuration,
		Answers:              e.answers.Snapshot(),
		Flags:                e.nav.Flags(),
		Status:               status,
	}
}

// ===== OBSERVATION =====

// QuestionProgress is one question's derived navigation status.
type QuestionProgress struct {
	QuestionID uint           `json:"question_id"`
	Index      int            `json:"index"`
	Section    int            `json:"section"`
	Status     QuestionStatus `json:"status"`
}

// ProgressReport is a pure derivation over the answer store and flag set.
type ProgressReport struct {
	Answered     int                `json:"answered"`
	Unanswered   int                `json:"unanswered"`
	Flagged      int                `json:"flagged"`
	CurrentIndex int                `json:"current_index"`
	Questions    []QuestionProgress `json:"questions"`
}

func (e *Engine) Progress() ProgressReport {
	e.mu.Lock()
	questions := e.questions
	e.mu.Unlock()

	report := ProgressReport{
		CurrentIndex: e.nav.Index(),
		Flagged:      e.nav.FlagCount(),
		Questions:    make([]QuestionProgress, len(questions)),
	}
	for i := range questions {
		status := QuestionUnanswered
		if e.answers.Answered(questions[i].ID) {
			status = QuestionAnswered
			report.Answered++
		} else if e.nav.Flagged(i) {
			status = QuestionFlagged
		}
		report.Questions[i] = QuestionProgress{
			QuestionID: questions[i].ID,
			Index:      i,
			Section:    questions[i].Section(),
			Status:     status,
		}
	}
	report.Unanswered = len(questions) - report.Answered
	return report
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) TimeRemaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.countdown == nil {
		return 0
	}
	if e.state == StatePaused {
		return e.pauseRemaining
	}
	return e.countdown.Remaining()
}

func (e *Engine) Online() bool {
	return e.monitor.Online()
}

func (e *Engine) LowTimeWarned() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lowTimeFired
}

func (e *Engine) SyncStatus() SyncStatus {
	return e.scheduler.Status()
}

func (e *Engine) LastSyncedAt() time.Time {
	return e.scheduler.LastSyncedAt()
}

func (e *Engine) Notice() (Notice, bool) {
	return e.guard.Notice()
}

func (e *Engine) Violations() []models.SecurityViolation {
	return e.guard.Violations()
}

// Result returns the submit outcome once Completed.
func (e *Engine) Result() (*SubmitResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return nil, false
	}
	out := *e.result
	return &out, true
}

// LastError exposes the most recent submit failure for the retry affordance.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// ===== TEARDOWN =====

// fail enters the fatal error state (load failures only).
func (e *Engine) fail(err error) {
	e.mu.Lock()
	e.state = StateError
	e.lastErr = err
	e.teardownLocked()
	e.mu.Unlock()
	e.logger.LogError(err, "Session entered error state")
}

// Close releases every timer, subscription and interceptor. Guaranteed to run
// cleanly on every exit path and safe to call repeatedly: after Close returns
// no countdown tick, autosave tick or lockdown interceptor fires again.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.teardownLocked()
	e.mu.Unlock()
	e.logger.Debug("Session engine closed")
}

// teardownLocked stops every satellite. Caller holds e.mu.
func (e *Engine) teardownLocked() {
	if e.countdown != nil {
		e.countdown.Stop()
	}
	e.monitor.Stop()
	e.scheduler.Stop()
	e.guard.Deactivate()
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
}

func decodeFlags(raw []byte) []int {
	if len(raw) == 0 {
		return nil
	}
	var flags []int
	if err := json.Unmarshal(raw, &flags); err != nil {
		return nil
	}
	return flags
}
