package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/session-runtime/internal/events"
	"github.com/SAP-F-2025/session-runtime/internal/models"
	"github.com/SAP-F-2025/session-runtime/internal/utils"
)

func newAuditFixture() (*AuditService, *MockViolationRepository, *events.MockAuditPublisher) {
	repo := &MockViolationRepository{}
	publisher := events.NewMockAuditPublisher(slog.Default())
	svc := NewAudit(repo, publisher, utils.NewDevelopmentLogger())
	return svc, repo, publisher
}

func TestAuditService_LogViolationPersistsAndPublishes(t *testing.T) {
	svc, repo, publisher := newAuditFixture()
	repo.On("Create", mock.Anything, mock.MatchedBy(func(v *models.SecurityViolation) bool {
		return v.SessionID == 7 && v.Kind == models.ViolationDevTools
	})).Return(nil)

	svc.LogViolation(context.Background(), 7, models.SecurityViolation{
		Kind:     models.ViolationDevTools,
		Severity: 4,
	})

	published := publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventSecurityViolation, published[0].Type)
	assert.Equal(t, 0, svc.QueuedEvents())
	repo.AssertExpectations(t)
}

func TestAuditService_PersistFailureDoesNotBlockPublish(t *testing.T) {
	svc, repo, publisher := newAuditFixture()
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("insert failed"))

	svc.LogViolation(context.Background(), 7, models.SecurityViolation{
		Kind: models.ViolationCopyPaste,
	})

	assert.Len(t, publisher.GetPublishedEvents(), 1,
		"the stream still gets the event when the row write fails")
}

func TestAuditService_OfflineQueueDrainsInOrder(t *testing.T) {
	svc, repo, publisher := newAuditFixture()
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	publisher.FailAll = true
	svc.LogViolation(context.Background(), 7, models.SecurityViolation{Kind: models.ViolationTabSwitch})
	svc.LogViolation(context.Background(), 7, models.SecurityViolation{Kind: models.ViolationWindowBlur})
	assert.Empty(t, publisher.GetPublishedEvents())
	assert.Equal(t, 2, svc.QueuedEvents())

	// Connectivity returns; the backlog drains in arrival order.
	publisher.FailAll = false
	svc.SyncOfflineQueue(context.Background())

	published := publisher.GetPublishedEvents()
	require.Len(t, published, 2)
	assert.Equal(t, 0, svc.QueuedEvents())
}

func TestAuditService_FailedDrainRequeues(t *testing.T) {
	svc, repo, publisher := newAuditFixture()
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	publisher.FailAll = true
	svc.LogViolation(context.Background(), 7, models.SecurityViolation{Kind: models.ViolationTabSwitch})

	svc.SyncOfflineQueue(context.Background())
	assert.Equal(t, 1, svc.QueuedEvents(), "still unreachable, the event stays queued")
}
