package event

import (
	"github.com/erp/catalogsync/internal/domain/catalog"
)

// RegisterAllEvents registers all domain event types with the serializer.
// The OutboxProcessor cannot deserialize an outbox row whose type is missing here.
func RegisterAllEvents(serializer *EventSerializer) {
	serializer.Register(catalog.EventTypeEntityCreated, &catalog.EntityCreatedEvent{})
	serializer.Register(catalog.EventTypeEntityUpdated, &catalog.EntityUpdatedEvent{})
	serializer.Register(catalog.EventTypeEntityDeleted, &catalog.EntityDeletedEvent{})
}
