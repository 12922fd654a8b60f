package infrastructure

import (
	"strings"

	"queuebot/events"
)

const subjectPrefix = "queuebot."

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	return subjectPrefix + string(event.Type())
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	eventType, _ := strings.CutPrefix(subject, subjectPrefix)
	return events.EventType(eventType)
}

// GetAllSubjects returns all subjects that this service publishes to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	types := events.AllEventTypes()
	subjects := make([]string, 0, len(types))
	for _, t := range types {
		subjects = append(subjects, subjectPrefix+string(t))
	}
	return subjects
}
