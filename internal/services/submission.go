package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/session-runtime/internal/cache"
	"github.com/SAP-F-2025/session-runtime/internal/events"
	"github.com/SAP-F-2025/session-runtime/internal/models"
	"github.com/SAP-F-2025/session-runtime/internal/repositories"
	"github.com/SAP-F-2025/session-runtime/internal/runtime"
	"github.com/SAP-F-2025/session-runtime/internal/utils"
)

// SubmissionService scores a session and writes the terminal row. It is the
// only writer of outcome columns; once Status reaches completed or timeout the
// row is never touched again.
type SubmissionService struct {
	repo      repositories.Repository
	cache     cache.SessionCache
	publisher events.AuditPublisher
	logger    utils.Logger
}

func NewSubmission(repo repositories.Repository, sessionCache cache.SessionCache, publisher events.AuditPublisher, logger utils.Logger) *SubmissionService {
	return &SubmissionService{
		repo:      repo,
		cache:     sessionCache,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *SubmissionService) Submit(ctx context.Context, sessionID uint, reason runtime.SubmitReason) (*runtime.SubmitResult, error) {
	session, err := s.repo.Session().GetByIDWithDetails(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session %d for scoring: %w", sessionID, err)
	}
	if session.IsTerminal() {
		return nil, ErrSessionAlreadySubmitted
	}

	questions, err := s.repo.Question().GetBySurvey(ctx, session.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions for scoring: %w", err)
	}

	selections := make(map[uint][]uint, len(session.Answers))
	for i := range session.Answers {
		selections[session.Answers[i].QuestionID] = session.Answers[i].OptionIDs()
	}

	score := scorePercentage(questions, selections)
	passed := score >= float64(session.Survey.PassingScore)

	now := time.Now()
	session.Status = models.SessionCompleted
	endReason := models.EndReasonManual
	if reason == runtime.SubmitTimeout {
		session.Status = models.SessionTimeout
		endReason = models.EndReasonTimeout
		session.TimeRemaining = 0
	}
	session.EndReason = &endReason
	session.CompletedAt = &now
	session.Score = &score
	session.IsPassed = &passed
	if passed {
		certificateID := uuid.NewString()
		session.CertificateID = &certificateID
	}

	if err := s.repo.Session().Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to finalize session %d: %w", sessionID, err)
	}

	// The snapshot has served its purpose; a terminal session never resumes.
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		s.logger.WarnContext(ctx, "Failed to drop snapshot after submit",
			"session_id", sessionID, "error", err)
	}

	if s.publisher != nil {
		event := events.NewSubmittedEvent(sessionID, endReason, now)
		if err := s.publisher.PublishAuditEvent(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish submitted event",
				"session_id", sessionID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "Session scored",
		"session_id", sessionID,
		"reason", reason,
		"score", score,
		"passed", passed)

	return &runtime.SubmitResult{
		Score:         score,
		IsPassed:      passed,
		CertificateID: session.CertificateID,
	}, nil
}

// scorePercentage grades every question and returns earned points over total
// points as a percentage, rounded to two decimals. A question scores its full
// point value only when the selected set equals the correct set exactly;
// partial overlap earns nothing.
func scorePercentage(questions []models.Question, selections map[uint][]uint) float64 {
	total, earned := 0, 0
	for i := range questions {
		q := &questions[i]
		points := q.Points
		if points <= 0 {
			points = 1
		}
		total += points
		if correctSelection(q, selections[q.ID]) {
			earned += points
		}
	}
	if total == 0 {
		return 0
	}
	pct := float64(earned) / float64(total) * 100
	return math.Round(pct*100) / 100
}

func correctSelection(q *models.Question, selected []uint) bool {
	if len(selected) == 0 {
		return false
	}
	correct := make(map[uint]struct{})
	for i := range q.Options {
		if q.Options[i].IsCorrect {
			correct[q.Options[i].ID] = struct{}{}
		}
	}
	if len(selected) != len(correct) {
		return false
	}
	seen := make(map[uint]struct{}, len(selected))
	for _, id := range selected {
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
		if _, ok := correct[id]; !ok {
			return false
		}
	}
	return true
}
