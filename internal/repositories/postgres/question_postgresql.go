package postgres

import (
	"context"

	"github.com/SAP-F-2025/session-runtime/internal/models"
	"github.com/SAP-F-2025/session-runtime/internal/repositories"
	"gorm.io/gorm"
)

type QuestionPostgreSQL struct {
	db *gorm.DB
}

func NewQuestionPostgreSQL(db *gorm.DB) repositories.QuestionRepository {
	return &QuestionPostgreSQL{db: db}
}

func (q *QuestionPostgreSQL) GetBySurvey(ctx context.Context, surveyID uint) ([]models.Question, error) {
	var questions []models.Question
	if err := q.db.WithContext(ctx).
		Where("survey_id = ?", surveyID).
		Order("question_order ASC").
		Preload("Options").
		Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}
