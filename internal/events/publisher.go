package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
)

// AuditPublisher defines the interface for publishing audit events.
type AuditPublisher interface {
	PublishAuditEvent(ctx context.Context, event *AuditEvent) error
	Close() error
}

// KafkaAuditPublisher implements AuditPublisher using Watermill with Kafka.
type KafkaAuditPublisher struct {
	publisher message.Publisher
	logger    *slog.Logger
	topicName string
}

// PublisherConfig holds configuration for the audit publisher.
type PublisherConfig struct {
	KafkaBrokers []string
	TopicName    string
	Logger       *slog.Logger
}

func NewKafkaAuditPublisher(config PublisherConfig) (*KafkaAuditPublisher, error) {
	logger := watermill.NewSlogLogger(config.Logger)

	publisherConfig := kafka.PublisherConfig{
		Brokers:   config.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}

	publisher, err := kafka.NewPublisher(publisherConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
	}

	return &KafkaAuditPublisher{
		publisher: publisher,
		logger:    config.Logger,
		topicName: config.TopicName,
	}, nil
}

// PublishAuditEvent publishes one audit event to Kafka.
func (p *KafkaAuditPublisher) PublishAuditEvent(ctx context.Context, event *AuditEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	msg := message.NewMessage(event.ID, eventBytes)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("source", event.Source)
	msg.Metadata.Set("version", event.Version)
	msg.Metadata.Set("timestamp", event.Timestamp.Format("2006-01-02T15:04:05Z07:00"))

	if err := p.publisher.Publish(p.topicName, msg); err != nil {
		p.logger.Error("Failed to publish audit event",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err)
		return fmt.Errorf("failed to publish audit event: %w", err)
	}

	p.logger.Debug("Published audit event",
		"event_id", event.ID,
		"event_type", event.Type,
		"topic", p.topicName)

	return nil
}

func (p *KafkaAuditPublisher) Close() error {
	return p.publisher.Close()
}

// MockAuditPublisher is an in-memory implementation for testing.
type MockAuditPublisher struct {
	Events  []AuditEvent
	Logger  *slog.Logger
	FailAll bool
}

func NewMockAuditPublisher(logger *slog.Logger) *MockAuditPublisher {
	return &MockAuditPublisher{
		Events: make([]AuditEvent, 0),
		Logger: logger,
	}
}

func (m *MockAuditPublisher) PublishAuditEvent(ctx context.Context, event *AuditEvent) error {
	if m.FailAll {
		return fmt.Errorf("mock publisher configured to fail")
	}
	m.Events = append(m.Events, *event)
	m.Logger.Debug("Mock: published audit event",
		"event_id", event.ID,
		"event_type", event.Type)
	return nil
}

func (m *MockAuditPublisher) Close() error {
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockAuditPublisher) GetPublishedEvents() []AuditEvent {
	return m.Events
}

// ClearEvents clears all published events (for testing).
func (m *MockAuditPublisher) ClearEvents() {
	m.Events = make([]AuditEvent, 0)
}
