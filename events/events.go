package events

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeMemberJoined       EventType = "queue_member_joined"
	EventTypeMemberLeft         EventType = "queue_member_left"
	EventTypeMemberRemoved      EventType = "queue_member_removed"
	EventTypeQueuePopped        EventType = "queue_popped"
	EventTypeQueueCleared       EventType = "queue_cleared"
	EventTypeQueueEnrolled      EventType = "queue_enrolled"
	EventTypeQueueUnenrolled    EventType = "queue_unenrolled"
	EventTypeDisplaySynced      EventType = "display_synced"
	EventTypeGuildConfigChanged EventType = "guild_config_changed"
)

// AllEventTypes lists every event type the bus can carry
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeMemberJoined,
		EventTypeMemberLeft,
		EventTypeMemberRemoved,
		EventTypeQueuePopped,
		EventTypeQueueCleared,
		EventTypeQueueEnrolled,
		EventTypeQueueUnenrolled,
		EventTypeDisplaySynced,
		EventTypeGuildConfigChanged,
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// RemovalReason says why a member left a queue without popping
type RemovalReason string

const (
	RemovalReasonKicked      RemovalReason = "kicked"
	RemovalReasonGraceExpiry RemovalReason = "grace_expired"
	RemovalReasonStale       RemovalReason = "stale"
)

// MemberJoinedEvent is emitted when a member is appended to a queue
type MemberJoinedEvent struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	MemberID  string `json:"member_id"`
	Position  int    `json:"position"`
}

func (e MemberJoinedEvent) Type() EventType {
	return EventTypeMemberJoined
}

// MemberLeftEvent is emitted when a member leaves a text queue on their own
type MemberLeftEvent struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	MemberID  string `json:"member_id"`
}

func (e MemberLeftEvent) Type() EventType {
	return EventTypeMemberLeft
}

// MemberRemovedEvent is emitted when a member is removed by kick, grace expiry or pruning
type MemberRemovedEvent struct {
	GuildID   string        `json:"guild_id"`
	ChannelID string        `json:"channel_id"`
	MemberID  string        `json:"member_id"`
	Reason    RemovalReason `json:"reason"`
}

func (e MemberRemovedEvent) Type() EventType {
	return EventTypeMemberRemoved
}

// QueuePoppedEvent is emitted when the front member is taken from a queue
type QueuePoppedEvent struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	MemberID  string `json:"member_id"`
	// Destination is set for voice swaps
	Destination string `json:"destination,omitempty"`
}

func (e QueuePoppedEvent) Type() EventType {
	return EventTypeQueuePopped
}

// QueueClearedEvent is emitted when a queue is emptied
type QueueClearedEvent struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	Removed   int    `json:"removed"`
}

func (e QueueClearedEvent) Type() EventType {
	return EventTypeQueueCleared
}

// QueueEnrolledEvent is emitted when a channel becomes a queue
type QueueEnrolledEvent struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	Voice     bool   `json:"voice"`
	Seeded    int    `json:"seeded"`
}

func (e QueueEnrolledEvent) Type() EventType {
	return EventTypeQueueEnrolled
}

// QueueUnenrolledEvent is emitted when a channel stops being a queue
type QueueUnenrolledEvent struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
}

func (e QueueUnenrolledEvent) Type() EventType {
	return EventTypeQueueUnenrolled
}

// DisplaySyncedEvent is emitted after a queue's displays were reconciled
type DisplaySyncedEvent struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	Bindings  int    `json:"bindings"`
	Pages     int    `json:"pages"`
	Failed    int    `json:"failed"`
}

func (e DisplaySyncedEvent) Type() EventType {
	return EventTypeDisplaySynced
}

// GuildConfigChangedEvent is emitted after a guild config record is persisted
type GuildConfigChangedEvent struct {
	GuildID string `json:"guild_id"`
	Setting string `json:"setting"`
	Value   string `json:"value"`
}

func (e GuildConfigChangedEvent) Type() EventType {
	return EventTypeGuildConfigChanged
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// SubscribeAll adds a handler for every known event type
func (b *Bus) SubscribeAll(handler Handler) {
	for _, eventType := range AllEventTypes() {
		b.Subscribe(eventType, handler)
	}
}

// Emit publishes an event to all registered handlers. Handlers run on their
// own goroutines and a panicking handler is logged, not propagated.
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Type()]...)
	b.mu.RUnlock()

	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// Publish emits with a background context, matching the publisher used by services
func (b *Bus) Publish(event Event) {
	b.Emit(context.Background(), event)
}

// TransactionalBus holds events raised inside a unit of work until it commits
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush is called after a successful commit. Emission uses a background
// context because the transaction context may already be done.
func (b *TransactionalBus) Flush(ctx context.Context) {
	log.WithField("pendingEventCount", len(b.pending)).Debug("Flushing transactional bus")

	for _, ev := range b.pending {
		b.real.Emit(context.Background(), ev)
	}
	b.pending = nil
}

// Discard drops pending events after a rollback
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
