package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/session-runtime/internal/models"
	"github.com/SAP-F-2025/session-runtime/internal/utils"
)

// ===== FAKES =====

type fakeStore struct {
	mu       sync.Mutex
	session  *models.TestSession
	loadErr  error
	syncErr  error
	payloads []SyncPayload
}

func (f *fakeStore) Load(ctx context.Context, sessionID uint) (*models.TestSession, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.session, nil
}

func (f *fakeStore) Sync(ctx context.Context, sessionID uint, payload SyncPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.syncErr != nil {
		return f.syncErr
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeStore) lastPayload() (SyncPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return SyncPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

type fakeBank struct {
	questions []models.Question
	err       error
}

func (f *fakeBank) ForSurvey(ctx context.Context, surveyID uint) ([]models.Question, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.questions, nil
}

type fakeSubmitter struct {
	mu       sync.Mutex
	calls    int
	reasons  []SubmitReason
	failures int
	err      error
	result   SubmitResult
	hook     func(call int)
}

func (f *fakeSubmitter) Submit(ctx context.Context, sessionID uint, reason SubmitReason) (*SubmitResult, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.reasons = append(f.reasons, reason)
	fail := false
	if f.failures > 0 {
		f.failures--
		fail = true
	}
	hook := f.hook
	out := f.result
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	if fail {
		return nil, f.err
	}
	return &out, nil
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAudit struct {
	mu         sync.Mutex
	violations []models.SecurityViolation
	drains     int
}

func (f *fakeAudit) LogViolation(ctx context.Context, sessionID uint, v models.SecurityViolation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.violations = append(f.violations, v)
}

func (f *fakeAudit) SyncOfflineQueue(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
}

// ===== FIXTURES =====

func option(id uint, correct bool) models.Option {
	return models.Option{ID: id, IsCorrect: correct}
}

func testQuestions() []models.Question {
	return []models.Question{
		{ID: 1, Order: 1001, Type: models.SingleChoice, Points: 1,
			Options: []models.Option{option(10, true), option(11, false)}},
		{ID: 2, Order: 1002, Type: models.MultipleChoice, Points: 2,
			Options: []models.Option{option(20, true), option(21, true), option(22, false)}},
		{ID: 3, Order: 2001, Type: models.SingleChoice, Points: 1,
			Options: []models.Option{option(30, false), option(31, true)}},
	}
}

func testSession() *models.TestSession {
	return &models.TestSession{
		ID:       7,
		UserID:   "candidate-1",
		SurveyID: 3,
		Status:   models.SessionInProgress,
		Survey: models.Survey{
			ID:           3,
			Duration:     1, // one minute budget keeps virtual time small
			PassingScore: 70,
			TimeWarning:  10,
		},
	}
}

type engineHarness struct {
	engine    *Engine
	clock     *ManualClock
	store     *fakeStore
	submitter *fakeSubmitter
	audit     *fakeAudit
}

func newHarness(t *testing.T, session *models.TestSession) *engineHarness {
	t.Helper()
	clock := testClock()
	store := &fakeStore{session: session}
	submitter := &fakeSubmitter{result: SubmitResult{Score: 75, IsPassed: true}}
	audit := &fakeAudit{}

	engine := NewEngine(Config{
		SessionID:         session.ID,
		Clock:             clock,
		Logger:            utils.NewDevelopmentLogger(),
		Store:             store,
		Bank:              &fakeBank{questions: testQuestions()},
		Submitter:         submitter,
		Audit:             audit,
		HeartbeatInterval: 10 * time.Second,
		SubmitRetryDelay:  5 * time.Second,
	})
	t.Cleanup(engine.Close)
	return &engineHarness{engine: engine, clock: clock, store: store, submitter: submitter, audit: audit}
}

func startedHarness(t *testing.T) *engineHarness {
	t.Helper()
	h := newHarness(t, testSession())
	require.NoError(t, h.engine.Start(context.Background()))
	require.Equal(t, StateActive, h.engine.State())
	return h
}

// advanceAlive moves virtual time forward in small steps with heartbeats in
// between, the way a healthy client behaves. Plain Advance past two heartbeat
// intervals would trip the watchdog and pause the session.
func (h *engineHarness) advanceAlive(d time.Duration) {
	const step = 5 * time.Second
	for d > 0 {
		chunk := step
		if d < chunk {
			chunk = d
		}
		h.clock.Advance(chunk)
		h.engine.Heartbeat()
		d -= chunk
	}
}

// ===== LIFECYCLE =====

func TestEngine_FreshStartActivatesWithFullBudget(t *testing.T) {
	h := startedHarness(t)

	assert.Equal(t, 60, h.engine.TimeRemaining())
	assert.True(t, h.engine.Online())

	report := h.engine.Progress()
	assert.Equal(t, 3, report.Unanswered)
	assert.Equal(t, 0, report.Answered)
}

func TestEngine_LoadFailureIsFatal(t *testing.T) {
	h := newHarness(t, testSession())
	h.store.loadErr = errors.New("database unreachable")

	err := h.engine.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, h.engine.State())
	assert.ErrorIs(t, h.engine.LastError(), h.store.loadErr)
}

func TestEngine_TerminalSessionRefusesToStart(t *testing.T) {
	session := testSession()
	session.Status = models.SessionCompleted
	h := newHarness(t, session)

	err := h.engine.Start(context.Background())
	assert.ErrorIs(t, err, ErrSessionTerminal)
	assert.Equal(t, StateError, h.engine.State())
	assert.Equal(t, 0, h.submitter.callCount())
}

// ===== ANSWERS AND NAVIGATION =====

func TestEngine_AnswerValidation(t *testing.T) {
	h := startedHarness(t)

	require.NoError(t, h.engine.SetAnswer(1, 10))
	assert.ErrorIs(t, h.engine.SetAnswer(99, 10), ErrQuestionNotFound)
	assert.ErrorIs(t, h.engine.SetAnswer(1, 31), ErrOptionNotFound)

	report := h.engine.Progress()
	assert.Equal(t, 1, report.Answered)
	assert.Equal(t, 2, report.Unanswered)
}

func TestEngine_ProgressDerivesPerQuestionStatus(t *testing.T) {
	h := startedHarness(t)

	require.NoError(t, h.engine.SetAnswer(2, 20))
	require.NoError(t, h.engine.ToggleFlag(2))
	require.NoError(t, h.engine.Navigate(1))

	report := h.engine.Progress()
	assert.Equal(t, 1, report.CurrentIndex)
	assert.Equal(t, 1, report.Flagged)
	require.Len(t, report.Questions, 3)
	assert.Equal(t, QuestionUnanswered, report.Questions[0].Status)
	assert.Equal(t, QuestionAnswered, report.Questions[1].Status)
	assert.Equal(t, QuestionFlagged, report.Questions[2].Status)
	assert.Equal(t, 1, report.Questions[0].Section)
	assert.Equal(t, 2, report.Questions[2].Section)
}

func TestEngine_NavigationBounds(t *testing.T) {
	h := startedHarness(t)

	assert.ErrorIs(t, h.engine.Navigate(3), ErrQuestionNotFound)
	assert.ErrorIs(t, h.engine.Navigate(-1), ErrQuestionNotFound)
	assert.ErrorIs(t, h.engine.ToggleFlag(7), ErrQuestionNotFound)
}

// ===== CONNECTIVITY PAUSE =====

func TestEngine_OfflinePauseFreezesClockAndGatesInput(t *testing.T) {
	h := startedHarness(t)

	h.clock.Advance(10 * time.Second)
	h.engine.ReportConnectivity(false)
	require.Equal(t, StatePaused, h.engine.State())
	assert.Equal(t, 50, h.engine.TimeRemaining())

	// A long outage costs no session time and accepts no input.
	h.clock.Advance(2 * time.Minute)
	assert.Equal(t, 50, h.engine.TimeRemaining())
	assert.ErrorIs(t, h.engine.SetAnswer(1, 10), ErrNotActive)
	assert.ErrorIs(t, h.engine.Navigate(1), ErrNotActive)

	h.engine.Heartbeat()
	require.Equal(t, StateActive, h.engine.State())
	assert.Equal(t, 50, h.engine.TimeRemaining())

	h.clock.Advance(5 * time.Second)
	assert.Equal(t, 45, h.engine.TimeRemaining())
}

func TestEngine_ResumeAccountsPauseAndDrainsAuditQueue(t *testing.T) {
	h := startedHarness(t)

	h.clock.Advance(10 * time.Second)
	h.engine.ReportConnectivity(false)
	h.clock.Advance(30 * time.Second)
	h.engine.ReportConnectivity(true)

	h.engine.FlushSync()
	payload, ok := h.store.lastPayload()
	require.True(t, ok)
	assert.Equal(t, 30, payload.TotalPauseDuration)
	assert.Equal(t, 1, h.audit.drains)
}

func TestEngine_WatchdogPausesWithoutExplicitSignal(t *testing.T) {
	h := startedHarness(t)

	// Two missed heartbeat intervals flip the session offline on their own.
	h.clock.Advance(20 * time.Second)
	assert.Equal(t, StatePaused, h.engine.State())
	assert.False(t, h.engine.Online())
}

func TestEngine_NoSyncWhilePaused(t *testing.T) {
	h := startedHarness(t)

	require.NoError(t, h.engine.SetAnswer(1, 10))
	h.engine.ReportConnectivity(false)

	h.clock.Advance(5 * time.Minute)
	h.engine.FlushSync()
	_, ok := h.store.lastPayload()
	assert.False(t, ok)
}

// ===== REVIEW AND SUBMIT =====

func TestEngine_ReviewSummaryAndCancel(t *testing.T) {
	h := startedHarness(t)

	require.NoError(t, h.engine.SetAnswer(1, 10))
	require.NoError(t, h.engine.ToggleFlag(2))

	summary, err := h.engine.BeginReview()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Answered)
	assert.Equal(t, 2, summary.Unanswered)
	assert.Equal(t, 1, summary.Flagged)
	assert.Equal(t, StateReviewing, h.engine.State())

	// Input stays gated on the review screen.
	assert.ErrorIs(t, h.engine.SetAnswer(3, 30), ErrNotActive)

	require.NoError(t, h.engine.CancelReview())
	assert.Equal(t, StateActive, h.engine.State())
	require.NoError(t, h.engine.SetAnswer(3, 30))
}

func TestEngine_ManualSubmitCompletesSession(t *testing.T) {
	h := startedHarness(t)
	require.NoError(t, h.engine.SetAnswer(1, 10))

	_, err := h.engine.BeginReview()
	require.NoError(t, err)
	require.NoError(t, h.engine.ConfirmSubmit())

	assert.Equal(t, StateCompleted, h.engine.State())
	assert.Equal(t, []SubmitReason{SubmitManual}, h.submitter.reasons)

	result, ok := h.engine.Result()
	require.True(t, ok)
	assert.Equal(t, 75.0, result.Score)
	assert.True(t, result.IsPassed)

	// The final pre-submit sync carried the latest answers.
	payload, ok := h.store.lastPayload()
	require.True(t, ok)
	assert.Equal(t, []uint{10}, payload.Answers[1])
}

func TestEngine_SubmitIsSingleUse(t *testing.T) {
	h := startedHarness(t)

	_, err := h.engine.BeginReview()
	require.NoError(t, err)
	require.NoError(t, h.engine.ConfirmSubmit())

	assert.ErrorIs(t, h.engine.ConfirmSubmit(), ErrAlreadySubmitted)
	assert.Equal(t, 1, h.submitter.callCount())

	// A late countdown tick cannot score the session a second time.
	h.clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, h.submitter.callCount())
}

func TestEngine_TimeoutSubmitsFromActive(t *testing.T) {
	h := startedHarness(t)
	require.NoError(t, h.engine.SetAnswer(1, 10))

	h.advanceAlive(60 * time.Second)

	assert.Equal(t, StateCompleted, h.engine.State())
	assert.Equal(t, []SubmitReason{SubmitTimeout}, h.submitter.reasons)
	assert.Equal(t, 1, h.submitter.callCount())
}

func TestEngine_TimeoutFiresThroughReviewScreen(t *testing.T) {
	h := startedHarness(t)

	h.advanceAlive(55 * time.Second)
	_, err := h.engine.BeginReview()
	require.NoError(t, err)

	// The confirmation dialog does not shield the deadline.
	h.clock.Advance(5 * time.Second)
	assert.Equal(t, StateCompleted, h.engine.State())
	assert.Equal(t, []SubmitReason{SubmitTimeout}, h.submitter.reasons)
}

func TestEngine_ConfirmRacingTimeoutIsNoOp(t *testing.T) {
	h := startedHarness(t)

	_, err := h.engine.BeginReview()
	require.NoError(t, err)
	h.advanceAlive(60 * time.Second)
	require.Equal(t, StateCompleted, h.engine.State())

	assert.ErrorIs(t, h.engine.ConfirmSubmit(), ErrAlreadySubmitted)
	assert.Equal(t, 1, h.submitter.callCount())
}

func TestEngine_ManualSubmitFailureReturnsToActive(t *testing.T) {
	h := startedHarness(t)
	h.submitter.failures = 1
	h.submitter.err = errors.New("scoring service unavailable")

	_, err := h.engine.BeginReview()
	require.NoError(t, err)
	err = h.engine.ConfirmSubmit()
	require.Error(t, err)

	// The session is handed back for an explicit retry; no time was lost
	// beyond the attempt itself.
	assert.Equal(t, StateActive, h.engine.State())
	require.NoError(t, h.engine.SetAnswer(1, 10))

	_, err = h.engine.BeginReview()
	require.NoError(t, err)
	require.NoError(t, h.engine.ConfirmSubmit())
	assert.Equal(t, StateCompleted, h.engine.State())
	assert.Equal(t, 2, h.submitter.callCount())
}

func TestEngine_TimeoutSubmitFailureRetriesAutomatically(t *testing.T) {
	h := startedHarness(t)
	h.submitter.failures = 1
	h.submitter.err = errors.New("scoring service unavailable")

	h.advanceAlive(60 * time.Second)
	assert.Equal(t, StateSubmitting, h.engine.State())

	// The latch stays closed while the retry is pending.
	assert.ErrorIs(t, h.engine.ConfirmSubmit(), ErrAlreadySubmitted)

	h.clock.Advance(5 * time.Second)
	assert.Equal(t, StateCompleted, h.engine.State())
	assert.Equal(t, []SubmitReason{SubmitTimeout, SubmitTimeout}, h.submitter.reasons)
}

func TestEngine_ManualSubmitFailureAtZeroTakesTimeoutPath(t *testing.T) {
	h := startedHarness(t)
	h.submitter.failures = 2
	h.submitter.err = errors.New("scoring service unavailable")
	h.submitter.hook = func(call int) {
		if call != 1 {
			return
		}
		// The last tick crosses zero while the manual submit is in flight,
		// after the latch closed but before the expiry hook could run.
		cd := h.engine.countdown
		cd.mu.Lock()
		cd.remaining = 0
		cd.expired = true
		cd.mu.Unlock()
	}

	_, err := h.engine.BeginReview()
	require.NoError(t, err)
	err = h.engine.ConfirmSubmit()
	require.Error(t, err)

	// With no time left the session cannot be handed back to a dead clock:
	// the failure converts into an immediate timeout re-attempt.
	assert.Equal(t, 2, h.submitter.callCount())
	assert.Equal(t, StateSubmitting, h.engine.State())
	assert.ErrorIs(t, h.engine.ConfirmSubmit(), ErrAlreadySubmitted)

	h.clock.Advance(5 * time.Second)
	assert.Equal(t, StateCompleted, h.engine.State())
	assert.Equal(t, []SubmitReason{SubmitManual, SubmitTimeout, SubmitTimeout}, h.submitter.reasons)
	result, _ := h.engine.Result()
	require.NotNil(t, result)
}

// ===== RESUME =====

func persistedAnswer(t *testing.T, questionID uint, optionIDs []uint) models.SessionAnswer {
	t.Helper()
	a := models.SessionAnswer{QuestionID: questionID}
	require.NoError(t, a.SetOptionIDs(optionIDs))
	return a
}

func TestEngine_PersistedAnswersParkInAwaitingResume(t *testing.T) {
	session := testSession()
	session.TimeRemaining = 30
	session.CurrentQuestionIndex = 1
	session.Answers = []models.SessionAnswer{persistedAnswer(t, 1, []uint{10})}

	h := newHarness(t, session)
	require.NoError(t, h.engine.Start(context.Background()))
	require.Equal(t, StateAwaitingResume, h.engine.State())

	// Nothing runs until the candidate chooses.
	assert.ErrorIs(t, h.engine.SetAnswer(1, 11), ErrNotActive)
	h.clock.Advance(10 * time.Second)
	assert.Equal(t, 30, h.engine.TimeRemaining())

	require.NoError(t, h.engine.Resume(false))
	assert.Equal(t, StateActive, h.engine.State())
	assert.Equal(t, 30, h.engine.TimeRemaining())

	report := h.engine.Progress()
	assert.Equal(t, 1, report.Answered)
	assert.Equal(t, 1, report.CurrentIndex)
}

func TestEngine_ResumeFreshResetsEverything(t *testing.T) {
	session := testSession()
	session.TimeRemaining = 30
	session.CurrentQuestionIndex = 2
	session.Answers = []models.SessionAnswer{
		persistedAnswer(t, 1, []uint{10}),
		persistedAnswer(t, 2, []uint{20, 21}),
	}

	h := newHarness(t, session)
	require.NoError(t, h.engine.Start(context.Background()))
	require.NoError(t, h.engine.Resume(true))

	assert.Equal(t, StateActive, h.engine.State())
	assert.Equal(t, 60, h.engine.TimeRemaining(), "fresh restart restores the full budget")

	report := h.engine.Progress()
	assert.Equal(t, 0, report.Answered)
	assert.Equal(t, 0, report.CurrentIndex)

	// The reset is persisted immediately so a reload cannot revive the old
	// answers.
	payload, ok := h.store.lastPayload()
	require.True(t, ok)
	assert.Empty(t, payload.Answers)
	assert.Equal(t, 60, payload.TimeRemaining)
}

func TestEngine_ResumeRejectedOutsideAwaitingResume(t *testing.T) {
	h := startedHarness(t)
	assert.ErrorIs(t, h.engine.Resume(false), ErrInvalidTransition)
}

func TestEngine_ResumePastDeadlineAutoSubmits(t *testing.T) {
	session := testSession()
	session.TimeRemaining = 0
	session.Answers = []models.SessionAnswer{persistedAnswer(t, 1, []uint{10})}

	h := newHarness(t, session)
	require.NoError(t, h.engine.Start(context.Background()))

	assert.Equal(t, StateCompleted, h.engine.State())
	assert.Equal(t, []SubmitReason{SubmitTimeout}, h.submitter.reasons)
}

// ===== VIOLATIONS =====

func TestEngine_ViolationsFlowToAudit(t *testing.T) {
	h := startedHarness(t)

	require.True(t, h.engine.ReportViolation(models.ViolationCopyPaste, "copy blocked"))

	h.audit.mu.Lock()
	require.Len(t, h.audit.violations, 1)
	assert.Equal(t, uint(7), h.audit.violations[0].SessionID)
	h.audit.mu.Unlock()
}

func TestEngine_ViolationsRejectedAfterCompletion(t *testing.T) {
	h := startedHarness(t)

	_, err := h.engine.BeginReview()
	require.NoError(t, err)
	require.NoError(t, h.engine.ConfirmSubmit())

	assert.False(t, h.engine.ReportViolation(models.ViolationCopyPaste, "copy blocked"))
}

// ===== TEARDOWN =====

func TestEngine_CloseSilencesEveryTimer(t *testing.T) {
	h := startedHarness(t)
	remaining := h.engine.TimeRemaining()

	h.engine.Close()
	h.engine.Close() // safe to repeat

	h.clock.Advance(5 * time.Minute)
	assert.Equal(t, remaining, h.engine.TimeRemaining())
	assert.Equal(t, 0, h.submitter.callCount())
	assert.Empty(t, h.store.payloads)
}
