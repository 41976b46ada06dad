package events

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/SAP-F-2025/session-runtime/internal/models"
)

type AuditEventType string

const (
	EventSecurityViolation AuditEventType = "session.security_violation"
	EventSessionSubmitted  AuditEventType = "session.submitted"
)

const eventVersion = "1.0"

// AuditEvent is the wire payload published to the audit collaborator.
type AuditEvent struct {
	ID        string         `json:"id"`
	Type      AuditEventType `json:"type"`
	Source    string         `json:"source"`
	Version   string         `json:"version"`
	Timestamp time.Time      `json:"timestamp"`

	SessionID   uint                 `json:"session_id"`
	Kind        models.ViolationKind `json:"kind,omitempty"`
	Description string               `json:"description"`
	Severity    int                  `json:"severity,omitempty"`
	OccurredAt  time.Time            `json:"occurred_at"`
}

// NewViolationEvent builds the audit event for one security violation.
func NewViolationEvent(sessionID uint, v models.SecurityViolation) *AuditEvent {
	return &AuditEvent{
		ID:          watermill.NewUUID(),
		Type:        EventSecurityViolation,
		Source:      "session-runtime",
		Version:     eventVersion,
		Timestamp:   time.Now(),
		SessionID:   sessionID,
		Kind:        v.Kind,
		Description: v.Description,
		Severity:    v.Severity,
		OccurredAt:  v.OccurredAt,
	}
}

// NewSubmittedEvent builds the audit event for a terminal submit.
func NewSubmittedEvent(sessionID uint, reason string, occurredAt time.Time) *AuditEvent {
	return &AuditEvent{
		ID:          watermill.NewUUID(),
		Type:        EventSessionSubmitted,
		Source:      "session-runtime",
		Version:     eventVersion,
		Timestamp:   time.Now(),
		SessionID:   sessionID,
		Description: "session submitted: " + reason,
		OccurredAt:  occurredAt,
	}
}
