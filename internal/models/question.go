package models

import "time"

type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
)

type ComplexityLevel string

const (
	ComplexityEasy   ComplexityLevel = "easy"
	ComplexityMedium ComplexityLevel = "medium"
	ComplexityHard   ComplexityLevel = "hard"
)

// Question is immutable for the duration of a session; the question set is
// fetched once at load and never re-read.
type Question struct {
	ID         uint            `json:"id" gorm:"primaryKey"`
	SurveyID   uint            `json:"survey_id" gorm:"not null;index"`
	SectionID  uint            `json:"section_id" gorm:"index"`
	Order      int             `json:"order" gorm:"column:question_order;not null;index"`
	Text       string          `json:"text" gorm:"not null;type:text"`
	Type       QuestionType    `json:"type" gorm:"not null" validate:"omitempty,oneof=single_choice multiple_choice"`
	Complexity ComplexityLevel `json:"complexity" gorm:"default:medium"`
	Points     int             `json:"points" gorm:"default:1"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Options []Option `json:"options" gorm:"foreignKey:QuestionID"`
}

func (Question) TableName() string {
	return "questions"
}

// Section derives the grouping key encoded in the global order: floor(order/1000).
func (q *Question) Section() int {
	return q.Order / 1000
}

// IsMultiple reports whether the question accepts more than one selected option.
func (q *Question) IsMultiple() bool {
	return q.Type == MultipleChoice
}

// Option belongs to exactly one question. IsCorrect never leaves the scoring
// path, so it is excluded from JSON.
type Option struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Text       string `json:"text" gorm:"not null;type:text"`
	IsCorrect  bool   `json:"-" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`
}

func (Option) TableName() string {
	return "options"
}
