package config

import (
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/session-runtime/internal/events"
)

// EventConfig holds configuration for audit event publishing.
type EventConfig struct {
	Enabled      bool
	Publisher    string // kafka or mock
	KafkaBrokers string
	AuditTopic   string
}

// GetKafkaBrokers returns Kafka brokers as a slice.
func (c *EventConfig) GetKafkaBrokers() []string {
	return strings.Split(c.KafkaBrokers, ",")
}

// CreateAuditPublisher creates an audit event publisher based on configuration.
func (c *EventConfig) CreateAuditPublisher(logger *slog.Logger) (events.AuditPublisher, error) {
	if !c.Enabled {
		logger.Info("Audit event publishing disabled, using mock publisher")
		return events.NewMockAuditPublisher(logger), nil
	}

	switch c.Publisher {
	case "kafka":
		logger.Info("Creating Kafka audit publisher",
			"brokers", c.KafkaBrokers,
			"topic", c.AuditTopic)

		return events.NewKafkaAuditPublisher(events.PublisherConfig{
			KafkaBrokers: c.GetKafkaBrokers(),
			TopicName:    c.AuditTopic,
			Logger:       logger,
		})
	case "mock":
		logger.Info("Using mock audit publisher")
		return events.NewMockAuditPublisher(logger), nil
	default:
		logger.Warn("Unknown audit publisher type, falling back to mock", "publisher", c.Publisher)
		return events.NewMockAuditPublisher(logger), nil
	}
}
