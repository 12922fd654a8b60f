package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"queuebot/events"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const sourceService = "queuebot"

// EventEnvelope wraps every event published to NATS
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
}

// MessagePublisher sends raw bytes to a subject
type MessagePublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// PublishMetrics counts forwarded events
type PublishMetrics interface {
	RecordEventPublished(ctx context.Context, eventType string)
}

// NATSEventPublisher forwards bus events to NATS
type NATSEventPublisher struct {
	client        MessagePublisher
	subjectMapper *EventSubjectMapper
	metrics       PublishMetrics
	now           func() time.Time
}

// NewNATSEventPublisher creates a new NATS event publisher. metrics may be nil.
func NewNATSEventPublisher(client MessagePublisher, subjectMapper *EventSubjectMapper, metrics PublishMetrics) *NATSEventPublisher {
	return &NATSEventPublisher{
		client:        client,
		subjectMapper: subjectMapper,
		metrics:       metrics,
		now:           time.Now,
	}
}

// Attach subscribes the publisher to every event type on the bus
func (p *NATSEventPublisher) Attach(bus *events.Bus) {
	bus.SubscribeAll(func(ctx context.Context, event events.Event) {
		if err := p.Publish(ctx, event); err != nil {
			log.WithError(err).WithField("eventType", event.Type()).Error("Failed to forward event to NATS")
		}
	})
}

// Publish wraps an event in an envelope and publishes it on its subject
func (p *NATSEventPublisher) Publish(ctx context.Context, event events.Event) error {
	subject := p.subjectMapper.MapEventToSubject(event)

	envelope, err := p.envelope(event)
	if err != nil {
		return err
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if err := p.client.Publish(ctx, subject, data); err != nil {
		if strings.Contains(err.Error(), "no response from stream") {
			log.WithField("subject", subject).Debug("No stream bound to subject, dropping event")
			return nil
		}
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	if p.metrics != nil {
		p.metrics.RecordEventPublished(ctx, envelope.EventType)
	}

	log.WithFields(log.Fields{
		"eventType": envelope.EventType,
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Successfully published event to NATS")
	return nil
}

func (p *NATSEventPublisher) envelope(event events.Event) (*EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Timestamp:     p.now().UTC(),
		SourceService: sourceService,
		Payload:       payload,
	}, nil
}

// EnsureEventStream ensures the event stream exists with every published subject
func (p *NATSEventPublisher) EnsureEventStream(client *NATSClient) error {
	return client.EnsureEventStream(p.subjectMapper.GetAllSubjects())
}
