package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/session-runtime/internal/cache"
	"github.com/SAP-F-2025/session-runtime/internal/models"
	"github.com/SAP-F-2025/session-runtime/internal/repositories"
	"github.com/SAP-F-2025/session-runtime/internal/runtime"
	"github.com/SAP-F-2025/session-runtime/internal/utils"
)

// SessionStoreService backs the engine's load and sync calls with the
// write-through pair: Redis snapshot first (hot copy for resume), then the
// durable Postgres row. On load the snapshot wins over the row when present,
// because it is at most one debounce window stale.
type SessionStoreService struct {
	repo   repositories.Repository
	cache  cache.SessionCache
	logger utils.Logger
}

func NewSessionStore(repo repositories.Repository, sessionCache cache.SessionCache, logger utils.Logger) *SessionStoreService {
	return &SessionStoreService{
		repo:   repo,
		cache:  sessionCache,
		logger: logger,
	}
}

func (s *SessionStoreService) Load(ctx context.Context, sessionID uint) (*models.TestSession, error) {
	session, err := s.repo.Session().GetByIDWithDetails(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session %d: %w", sessionID, err)
	}

	if session.IsTerminal() {
		return session, nil
	}

	snapshot, err := s.cache.GetSnapshot(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, cache.ErrSnapshotMissing) {
			// Cache being down degrades to the durable row, nothing worse.
			s.logger.WarnContext(ctx, "Snapshot read failed, using durable row",
				"session_id", sessionID, "error", err)
		}
		return session, nil
	}

	s.overlay(session, snapshot)
	return session, nil
}

// overlay replaces the row's synced fields with the snapshot's.
func (s *SessionStoreService) overlay(session *models.TestSession, snapshot *cache.Snapshot) {
	session.CurrentQuestionIndex = snapshot.CurrentQuestionIndex
	session.TimeRemaining = snapshot.TimeRemaining
	session.TotalPauseDuration = snapshot.TotalPauseDuration

	if raw, err := json.Marshal(snapshot.Flags); err == nil {
		session.FlaggedQuestions = datatypes.JSON(raw)
	}

	answers := make([]models.SessionAnswer, 0, len(snapshot.Answers))
	for questionID, optionIDs := range snapshot.Answers {
		a := models.SessionAnswer{SessionID: session.ID, QuestionID: questionID}
		if err := a.SetOptionIDs(optionIDs); err != nil {
			continue
		}
		answers = append(answers, a)
	}
	session.Answers = answers
}

func (s *SessionStoreService) Sync(ctx context.Context, sessionID uint, payload runtime.SyncPayload) error {
	now := time.Now()

	snapshot := &cache.Snapshot{
		CurrentQuestionIndex: payload.CurrentQuestionIndex,
		TimeRemaining:        payload.TimeRemaining,
		TotalPauseDuration:   payload.TotalPauseDuration,
		Answers:              payload.Answers,
		Flags:                payload.Flags,
		UpdatedAt:            now,
	}
	if err := s.cache.SaveSnapshot(ctx, sessionID, snapshot); err != nil {
		s.logger.WarnContext(ctx, "Snapshot write failed",
			"session_id", sessionID, "error", err)
	}

	progress := repositories.SessionProgress{
		CurrentQuestionIndex: payload.CurrentQuestionIndex,
		TimeRemaining:        payload.TimeRemaining,
		TotalPauseDuration:   payload.TotalPauseDuration,
		FlaggedQuestions:     payload.Flags,
		Status:               payload.Status,
		SyncedAt:             now,
	}
	if err := s.repo.Session().UpdateProgress(ctx, sessionID, progress); err != nil {
		return fmt.Errorf("failed to sync session %d: %w", sessionID, err)
	}
	if err := s.repo.Session().SaveAnswers(ctx, sessionID, payload.Answers); err != nil {
		return fmt.Errorf("failed to sync answers for session %d: %w", sessionID, err)
	}
	return nil
}
