package postgres

import (
	"context"

	"github.com/SAP-F-2025/session-runtime/internal/models"
	"github.com/SAP-F-2025/session-runtime/internal/repositories"
	"gorm.io/gorm"
)

type ViolationPostgreSQL struct {
	db *gorm.DB
}

func NewViolationPostgreSQL(db *gorm.DB) repositories.ViolationRepository {
	return &ViolationPostgreSQL{db: db}
}

func (v *ViolationPostgreSQL) Create(ctx context.Context, violation *models.SecurityViolation) error {
	return v.db.WithContext(ctx).Create(violation).Error
}

func (v *ViolationPostgreSQL) GetBySession(ctx context.Context, sessionID uint) ([]*models.SecurityViolation, error) {
	var violations []*models.SecurityViolation
	if err := v.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("occurred_at ASC").
		Find(&violations).Error; err != nil {
		return nil, err
	}
	return violations, nil
}

// Manager bundles the postgres repositories behind the aggregate interface.
type Manager struct {
	session   repositories.SessionRepository
	question  repositories.QuestionRepository
	violation repositories.ViolationRepository
}

func NewManager(db *gorm.DB) repositories.Repository {
	return &Manager{
		session:   NewSessionPostgreSQL(db),
		question:  NewQuestionPostgreSQL(db),
		violation: NewViolationPostgreSQL(db),
	}
}

func (m *Manager) Session() repositories.SessionRepository     { return m.session }
func (m *Manager) Question() repositories.QuestionRepository   { return m.question }
func (m *Manager) Violation() repositories.ViolationRepository { return m.violation }
