package services

import (
	"context"
	"sync"

	"github.com/SAP-F-2025/session-runtime/internal/events"
	"github.com/SAP-F-2025/session-runtime/internal/models"
	"github.com/SAP-F-2025/session-runtime/internal/repositories"
	"github.com/SAP-F-2025/session-runtime/internal/utils"
)

// AuditService persists violations and forwards them to the audit stream.
// Everything here is fire-and-forget from the engine's point of view: a
// violation that cannot be published right now is queued in memory and drained
// when connectivity returns. Queue loss on process death is accepted; the
// database row is the durable record.
type AuditService struct {
	repo      repositories.ViolationRepository
	publisher events.AuditPublisher
	logger    utils.Logger

	mu    sync.Mutex
	queue []*events.AuditEvent
}

func NewAudit(repo repositories.ViolationRepository, publisher events.AuditPublisher, logger utils.Logger) *AuditService {
	return &AuditService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *AuditService) LogViolation(ctx context.Context, sessionID uint, v models.SecurityViolation) {
	v.SessionID = sessionID
	if err := s.repo.Create(ctx, &v); err != nil {
		s.logger.WarnContext(ctx, "Failed to persist violation",
			"session_id", sessionID, "kind", v.Kind, "error", err)
	}

	if s.publisher == nil {
		return
	}
	event := events.NewViolationEvent(sessionID, v)
	if err := s.publisher.PublishAuditEvent(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "Audit publish failed, queueing event",
			"session_id", sessionID, "kind", v.Kind, "error", err)
		s.enqueue(event)
	}
}

// SyncOfflineQueue re-publishes everything queued while the stream was
// unreachable. Events that fail again go back on the queue in order.
func (s *AuditService) SyncOfflineQueue(ctx context.Context) {
	if s.publisher == nil {
		return
	}

	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	var failed []*events.AuditEvent
	for _, event := range pending {
		if err := s.publisher.PublishAuditEvent(ctx, event); err != nil {
			failed = append(failed, event)
		}
	}

	if len(failed) > 0 {
		s.mu.Lock()
		s.queue = append(failed, s.queue...)
		s.mu.Unlock()
	}

	s.logger.InfoContext(ctx, "Drained offline audit queue",
		"published", len(pending)-len(failed),
		"requeued", len(failed))
}

// QueuedEvents reports the current offline backlog size.
func (s *AuditService) QueuedEvents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *AuditService) enqueue(event *events.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, event)
}
