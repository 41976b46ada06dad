package pkg

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/SAP-F-2025/session-runtime/internal/config"
	"github.com/SAP-F-2025/session-runtime/internal/models"
)

func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// Migrate creates the session-runtime tables. Surveys and questions are owned
// by the survey-lifecycle collaborator; they are migrated here only so the
// service can run standalone in development.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Survey{},
		&models.Question{},
		&models.Option{},
		&models.TestSession{},
		&models.SessionAnswer{},
		&models.SecurityViolation{},
	)
}
