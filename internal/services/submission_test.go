package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/session-runtime/internal/cache"
	"github.com/SAP-F-2025/session-runtime/internal/models"
	"github.com/SAP-F-2025/session-runtime/internal/repositories"
	"github.com/SAP-F-2025/session-runtime/internal/runtime"
	"github.com/SAP-F-2025/session-runtime/internal/utils"
)

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id uint) (*models.TestSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TestSession), args.Error(1)
}

func (m *MockSessionRepository) GetByIDWithDetails(ctx context.Context, id uint) (*models.TestSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TestSession), args.Error(1)
}

func (m *MockSessionRepository) Update(ctx context.Context, session *models.TestSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) UpdateProgress(ctx context.Context, id uint, progress repositories.SessionProgress) error {
	args := m.Called(ctx, id, progress)
	return args.Error(0)
}

func (m *MockSessionRepository) GetAnswers(ctx context.Context, sessionID uint) ([]*models.SessionAnswer, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).([]*models.SessionAnswer), args.Error(1)
}

func (m *MockSessionRepository) SaveAnswers(ctx context.Context, sessionID uint, selections map[uint][]uint) error {
	args := m.Called(ctx, sessionID, selections)
	return args.Error(0)
}

func (m *MockSessionRepository) DeleteAnswers(ctx context.Context, sessionID uint) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

// MockQuestionRepository is a mock implementation of QuestionRepository
type MockQuestionRepository struct {
	mock.Mock
}

func (m *MockQuestionRepository) GetBySurvey(ctx context.Context, surveyID uint) ([]models.Question, error) {
	args := m.Called(ctx, surveyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Question), args.Error(1)
}

// MockViolationRepository is a mock implementation of ViolationRepository
type MockViolationRepository struct {
	mock.Mock
}

func (m *MockViolationRepository) Create(ctx context.Context, violation *models.SecurityViolation) error {
	args := m.Called(ctx, violation)
	return args.Error(0)
}

func (m *MockViolationRepository) GetBySession(ctx context.Context, sessionID uint) ([]*models.SecurityViolation, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).([]*models.SecurityViolation), args.Error(1)
}

// MockRepository aggregates the per-entity mocks
type MockRepository struct {
	sessionRepo   *MockSessionRepository
	questionRepo  *MockQuestionRepository
	violationRepo *MockViolationRepository
}

func newMockRepository() *MockRepository {
	return &MockRepository{
		sessionRepo:   &MockSessionRepository{},
		questionRepo:  &MockQuestionRepository{},
		violationRepo: &MockViolationRepository{},
	}
}

func (m *MockRepository) Session() repositories.SessionRepository     { return m.sessionRepo }
func (m *MockRepository) Question() repositories.QuestionRepository   { return m.questionRepo }
func (m *MockRepository) Violation() repositories.ViolationRepository { return m.violationRepo }

// memoryCache is an in-memory SessionCache for tests
type memoryCache struct {
	snapshots map[uint]*cache.Snapshot
}

func newMemoryCache() *memoryCache {
	return &memoryCache{snapshots: make(map[uint]*cache.Snapshot)}
}

func (c *memoryCache) SaveSnapshot(ctx context.Context, sessionID uint, snapshot *cache.Snapshot) error {
	c.snapshots[sessionID] = snapshot
	return nil
}

func (c *memoryCache) GetSnapshot(ctx context.Context, sessionID uint) (*cache.Snapshot, error) {
	snapshot, ok := c.snapshots[sessionID]
	if !ok {
		return nil, cache.ErrSnapshotMissing
	}
	return snapshot, nil
}

func (c *memoryCache) Delete(ctx context.Context, sessionID uint) error {
	delete(c.snapshots, sessionID)
	return nil
}

// ===== FIXTURES =====

func answerRow(t *testing.T, questionID uint, optionIDs []uint) models.SessionAnswer {
	t.Helper()
	a := models.SessionAnswer{QuestionID: questionID}
	require.NoError(t, a.SetOptionIDs(optionIDs))
	return a
}

func scoringQuestions() []models.Question {
	return []models.Question{
		{ID: 1, Type: models.SingleChoice, Points: 1, Options: []models.Option{
			{ID: 10, IsCorrect: true}, {ID: 11},
		}},
		{ID: 2, Type: models.MultipleChoice, Points: 2, Options: []models.Option{
			{ID: 20, IsCorrect: true}, {ID: 21, IsCorrect: true}, {ID: 22},
		}},
		{ID: 3, Type: models.SingleChoice, Points: 1, Options: []models.Option{
			{ID: 30}, {ID: 31, IsCorrect: true},
		}},
	}
}

func TestScorePercentage(t *testing.T) {
	questions := scoringQuestions()

	tests := []struct {
		name       string
		selections map[uint][]uint
		expected   float64
	}{
		{
			name:       "all correct",
			selections: map[uint][]uint{1: {10}, 2: {20, 21}, 3: {31}},
			expected:   100,
		},
		{
			name:       "unanswered scores zero not error",
			selections: map[uint][]uint{},
			expected:   0,
		},
		{
			name: "partial multi-choice overlap earns nothing",
			// One of two correct options selected on the 2-point question.
			selections: map[uint][]uint{1: {10}, 2: {20}, 3: {31}},
			expected:   50,
		},
		{
			name: "superset of correct options earns nothing",
			selections: map[uint][]uint{2: {20, 21, 22}},
			expected:   0,
		},
		{
			name:       "rounded to two decimals",
			selections: map[uint][]uint{1: {10}},
			expected:   25, // 1 of 4 points
		},
		{
			name:       "wrong single choice",
			selections: map[uint][]uint{1: {11}, 2: {20, 21}, 3: {31}},
			expected:   75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, scorePercentage(questions, tt.selections))
		})
	}
}

func TestScorePercentage_Rounding(t *testing.T) {
	// One of three one-point questions correct: 33.333...% rounds to 33.33.
	questions := []models.Question{
		{ID: 1, Points: 1, Options: []models.Option{{ID: 10, IsCorrect: true}}},
		{ID: 2, Points: 1, Options: []models.Option{{ID: 20, IsCorrect: true}}},
		{ID: 3, Points: 1, Options: []models.Option{{ID: 30, IsCorrect: true}}},
	}
	score := scorePercentage(questions, map[uint][]uint{1: {10}})
	assert.Equal(t, 33.33, score)
}

func TestSubmissionService_Submit(t *testing.T) {
	newSession := func() *models.TestSession {
		return &models.TestSession{
			ID:       7,
			SurveyID: 3,
			Status:   models.SessionInProgress,
			Survey:   models.Survey{ID: 3, PassingScore: 70},
			Answers: []models.SessionAnswer{
				answerRow(t, 1, []uint{10}),
				answerRow(t, 2, []uint{20, 21}),
				answerRow(t, 3, []uint{31}),
			},
		}
	}

	t.Run("passing submit writes terminal row and certificate", func(t *testing.T) {
		repo := newMockRepository()
		sessionCache := newMemoryCache()
		sessionCache.snapshots[7] = &cache.Snapshot{}
		svc := NewSubmission(repo, sessionCache, nil, utils.NewDevelopmentLogger())

		session := newSession()
		repo.sessionRepo.On("GetByIDWithDetails", mock.Anything, uint(7)).Return(session, nil)
		repo.questionRepo.On("GetBySurvey", mock.Anything, uint(3)).Return(scoringQuestions(), nil)
		repo.sessionRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *models.TestSession) bool {
			return s.Status == models.SessionCompleted &&
				s.EndReason != nil && *s.EndReason == models.EndReasonManual &&
				s.CompletedAt != nil && s.CertificateID != nil
		})).Return(nil)

		result, err := svc.Submit(context.Background(), 7, runtime.SubmitManual)
		require.NoError(t, err)
		assert.Equal(t, 100.0, result.Score)
		assert.True(t, result.IsPassed)
		assert.NotNil(t, result.CertificateID)

		_, exists := sessionCache.snapshots[7]
		assert.False(t, exists, "snapshot is dropped once the session is terminal")
		repo.sessionRepo.AssertExpectations(t)
	})

	t.Run("timeout submit zeroes remaining time and records end reason", func(t *testing.T) {
		repo := newMockRepository()
		svc := NewSubmission(repo, newMemoryCache(), nil, utils.NewDevelopmentLogger())

		session := newSession()
		session.TimeRemaining = 4
		session.Answers = nil // ran out of time before answering anything
		repo.sessionRepo.On("GetByIDWithDetails", mock.Anything, uint(7)).Return(session, nil)
		repo.questionRepo.On("GetBySurvey", mock.Anything, uint(3)).Return(scoringQuestions(), nil)
		repo.sessionRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *models.TestSession) bool {
			return s.Status == models.SessionTimeout &&
				s.EndReason != nil && *s.EndReason == models.EndReasonTimeout &&
				s.TimeRemaining == 0 && s.CertificateID == nil
		})).Return(nil)

		result, err := svc.Submit(context.Background(), 7, runtime.SubmitTimeout)
		require.NoError(t, err)
		assert.Equal(t, 0.0, result.Score)
		assert.False(t, result.IsPassed)
		assert.Nil(t, result.CertificateID)
	})

	t.Run("terminal session is rejected", func(t *testing.T) {
		repo := newMockRepository()
		svc := NewSubmission(repo, newMemoryCache(), nil, utils.NewDevelopmentLogger())

		session := newSession()
		session.Status = models.SessionCompleted
		repo.sessionRepo.On("GetByIDWithDetails", mock.Anything, uint(7)).Return(session, nil)

		_, err := svc.Submit(context.Background(), 7, runtime.SubmitManual)
		assert.ErrorIs(t, err, ErrSessionAlreadySubmitted)
		repo.sessionRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("failing score skips the certificate", func(t *testing.T) {
		repo := newMockRepository()
		svc := NewSubmission(repo, newMemoryCache(), nil, utils.NewDevelopmentLogger())

		session := newSession()
		session.Answers = []models.SessionAnswer{answerRow(t, 1, []uint{10})} // 25%
		repo.sessionRepo.On("GetByIDWithDetails", mock.Anything, uint(7)).Return(session, nil)
		repo.questionRepo.On("GetBySurvey", mock.Anything, uint(3)).Return(scoringQuestions(), nil)
		repo.sessionRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

		result, err := svc.Submit(context.Background(), 7, runtime.SubmitManual)
		require.NoError(t, err)
		assert.Equal(t, 25.0, result.Score)
		assert.False(t, result.IsPassed)
		assert.Nil(t, result.CertificateID)
	})
}
