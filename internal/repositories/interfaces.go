package repositories

import (
	"context"
	"time"

	"github.com/SAP-F-2025/session-runtime/internal/models"
)

// SessionRepository persists test sessions and their answers.
type SessionRepository interface {
	GetByID(ctx context.Context, id uint) (*models.TestSession, error)
	GetByIDWithDetails(ctx context.Context, id uint) (*models.TestSession, error)
	Update(ctx context.Context, session *models.TestSession) error

	// UpdateProgress writes the periodically-synced fields without touching
	// terminal/outcome columns.
	UpdateProgress(ctx context.Context, id uint, progress SessionProgress) error

	GetAnswers(ctx context.Context, sessionID uint) ([]*models.SessionAnswer, error)
	// SaveAnswers upserts one row per question, keyed by (session, question).
	SaveAnswers(ctx context.Context, sessionID uint, selections map[uint][]uint) error
	DeleteAnswers(ctx context.Context, sessionID uint) error
}

// QuestionRepository reads the immutable question set for a survey.
type QuestionRepository interface {
	GetBySurvey(ctx context.Context, surveyID uint) ([]models.Question, error)
}

// ViolationRepository appends security violations. The log has no update or delete.
type ViolationRepository interface {
	Create(ctx context.Context, violation *models.SecurityViolation) error
	GetBySession(ctx context.Context, sessionID uint) ([]*models.SecurityViolation, error)
}

// SessionProgress carries the fields the persistence scheduler syncs.
type SessionProgress struct {
	CurrentQuestionIndex int                  `json:"current_question_index"`
	TimeRemaining        int                  `json:"time_remaining"`
	TotalPauseDuration   int                  `json:"total_pause_duration"`
	FlaggedQuestions     []int                `json:"flagged_questions"`
	Status               models.SessionStatus `json:"status"`
	SyncedAt             time.Time            `json:"synced_at"`
}

// Repository aggregates the per-entity repositories.
type Repository interface {
	Session() SessionRepository
	Question() QuestionRepository
	Violation() ViolationRepository
}
