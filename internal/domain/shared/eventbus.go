package shared

import (
	"context"
	"strings"
)

// EventTypeWildcard ends a subscription pattern that matches every event type
// sharing its prefix, e.g. "catalog.entity.*".
const EventTypeWildcard = ".*"

// EventHandler handles domain events. Implementations must be comparable
// (pointer receivers) since the bus keys subscriptions by handler.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists exact types or wildcard patterns. Empty means all events.
	EventTypes() []string
}

// IsEventTypePattern reports whether s is a wildcard subscription pattern
func IsEventTypePattern(s string) bool {
	return strings.HasSuffix(s, EventTypeWildcard)
}

// MatchEventType reports whether eventType is selected by pattern, which is
// either an exact type or a wildcard pattern.
func MatchEventType(pattern, eventType string) bool {
	if !IsEventTypePattern(pattern) {
		return pattern == eventType
	}
	prefix := strings.TrimSuffix(pattern, "*")
	return strings.HasPrefix(eventType, prefix) && len(eventType) > len(prefix)
}

// EventPublisher publishes domain events
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventSubscriber subscribes handlers to event types or patterns
type EventSubscriber interface {
	// Subscribe with no types falls back to handler.EventTypes()
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
}

// EventBus dispatches outbox-relayed events to the sync handlers
type EventBus interface {
	EventPublisher
	EventSubscriber
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// OutboxEventSaver writes events to the outbox inside the caller's transaction,
// so an entity write and the events it raised commit together. txProvider is
// the open *gorm.DB transaction.
type OutboxEventSaver interface {
	SaveEvents(ctx context.Context, txProvider interface{}, events ...DomainEvent) error
}
