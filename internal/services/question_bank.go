package services

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/session-runtime/internal/models"
	"github.com/SAP-F-2025/session-runtime/internal/repositories"
	"github.com/SAP-F-2025/session-runtime/internal/utils"
)

// QuestionBankService serves the immutable, ordered question set. Questions
// are read once per engine start and never re-fetched during a session.
type QuestionBankService struct {
	repo   repositories.Repository
	logger utils.Logger
}

func NewQuestionBank(repo repositories.Repository, logger utils.Logger) *QuestionBankService {
	return &QuestionBankService{repo: repo, logger: logger}
}

func (s *QuestionBankService) ForSurvey(ctx context.Context, surveyID uint) ([]models.Question, error) {
	questions, err := s.repo.Question().GetBySurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions for survey %d: %w", surveyID, err)
	}
	if len(questions) == 0 {
		return nil, ErrSurveyHasNoQuestions
	}
	return questions, nil
}
