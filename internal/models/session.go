package models

import (
	"time"

	"gorm.io/datatypes"
)

type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionTimeout    SessionStatus = "timeout"
	SessionPaused     SessionStatus = "paused"
)

const (
	EndReasonManual  = "manual"
	EndReasonTimeout = "time_out"
)

// TestSession is one candidate's timed attempt at one survey.
// Once Status reaches completed/timeout the row is never mutated again.
type TestSession struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	UserID        string        `json:"user_id" gorm:"not null;index;size:255"`
	SurveyID      uint          `json:"survey_id" gorm:"not null;index"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null;default:1"`
	Status        SessionStatus `json:"status" gorm:"default:in_progress;index"`

	// Timing
	StartedAt          time.Time  `json:"started_at"`
	TimeRemaining      int        `json:"time_remaining"` // seconds
	TotalPauseDuration int        `json:"total_pause_duration"`
	CompletedAt        *time.Time `json:"completed_at"`
	EndReason          *string    `json:"end_reason" gorm:"type:text"`

	// Progress
	CurrentQuestionIndex int            `json:"current_question_index"`
	FlaggedQuestions     datatypes.JSON `json:"flagged_questions" gorm:"type:jsonb"` // []int indices

	// Outcome
	Score         *float64 `json:"score"`
	IsPassed      *bool    `json:"is_passed"`
	CertificateID *string  `json:"certificate_id" gorm:"size:36"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Survey     Survey              `json:"survey" gorm:"foreignKey:SurveyID"`
	Answers    []SessionAnswer     `json:"answers" gorm:"foreignKey:SessionID"`
	Violations []SecurityViolation `json:"violations" gorm:"foreignKey:SessionID"`
}

func (TestSession) TableName() string {
	return "test_sessions"
}

// IsTerminal reports whether the session can no longer change.
func (s *TestSession) IsTerminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionTimeout
}

// Survey is owned by the survey-lifecycle collaborator; this service only reads it.
type Survey struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	Title        string `json:"title" gorm:"not null;size:200"`
	Duration     int    `json:"duration" gorm:"not null"` // minutes
	PassingScore int    `json:"passing_score" gorm:"not null"`
	TimeWarning  int    `json:"time_warning" gorm:"default:300"` // seconds remaining at warning
	MaxAttempts  int    `json:"max_attempts" gorm:"default:1"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Survey) TableName() string {
	return "surveys"
}

// DurationSeconds is the full time budget used when a session starts fresh.
func (s *Survey) DurationSeconds() int {
	return s.Duration * 60
}
