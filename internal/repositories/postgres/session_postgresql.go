package postgres

import (
	"context"
	"encoding/json"

	"github.com/SAP-F-2025/session-runtime/internal/models"
	"github.com/SAP-F-2025/session-runtime/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionPostgreSQL struct {
	db *gorm.DB
}

func NewSessionPostgreSQL(db *gorm.DB) repositories.SessionRepository {
	return &SessionPostgreSQL{db: db}
}

func (s *SessionPostgreSQL) GetByID(ctx context.Context, id uint) (*models.TestSession, error) {
	var session models.TestSession
	if err := s.db.WithContext(ctx).First(&session, id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionPostgreSQL) GetByIDWithDetails(ctx context.Context, id uint) (*models.TestSession, error) {
	var session models.TestSession
	if err := s.db.WithContext(ctx).
		Preload("Survey").
		Preload("Answers").
		First(&session, id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionPostgreSQL) Update(ctx context.Context, session *models.TestSession) error {
	return s.db.WithContext(ctx).Save(session).Error
}

func (s *SessionPostgreSQL) UpdateProgress(ctx context.Context, id uint, progress repositories.SessionProgress) error {
	flags, err := json.Marshal(progress.FlaggedQuestions)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"current_question_index": progress.CurrentQuestionIndex,
		"time_remaining":         progress.TimeRemaining,
		"total_pause_duration":   progress.TotalPauseDuration,
		"flagged_questions":      flags,
		"updated_at":             progress.SyncedAt,
	}
	if progress.Status != "" {
		updates["status"] = progress.Status
	}

	// Terminal sessions are immutable; the status guard enforces it at the row level.
	return s.db.WithContext(ctx).
		Model(&models.TestSession{}).
		Where("id = ? AND status NOT IN ?", id, []models.SessionStatus{models.SessionCompleted, models.SessionTimeout}).
		Updates(updates).Error
}

func (s *SessionPostgreSQL) GetAnswers(ctx context.Context, sessionID uint) ([]*models.SessionAnswer, error) {
	var answers []*models.SessionAnswer
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Find(&answers).Error; err != nil {
		return nil, err
	}
	return answers, nil
}

func (s *SessionPostgreSQL) SaveAnswers(ctx context.Context, sessionID uint, selections map[uint][]uint) error {
	if len(selections) == 0 {
		return nil
	}

	rows := make([]models.SessionAnswer, 0, len(selections))
	for questionID, optionIDs := range selections {
		row := models.SessionAnswer{
			SessionID:  sessionID,
			QuestionID: questionID,
		}
		if err := row.SetOptionIDs(optionIDs); err != nil {
			return err
		}
		rows = append(rows, row)
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"selected_options", "updated_at"}),
		}).
		Create(&rows).Error
}

func (s *SessionPostgreSQL) DeleteAnswers(ctx context.Context, sessionID uint) error {
	return s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.SessionAnswer{}).Error
}
