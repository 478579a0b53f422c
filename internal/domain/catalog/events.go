package catalog

import (
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
)

// Event type constants
const (
	EventTypeEntityCreated = "catalog.entity.created"
	EventTypeEntityUpdated = "catalog.entity.updated"
	EventTypeEntityDeleted = "catalog.entity.deleted"

	// EventTypeEntityAny subscribes to every entity event
	EventTypeEntityAny = "catalog.entity" + shared.EventTypeWildcard
)

// EntityChangedEvent is implemented by every catalog entity event
type EntityChangedEvent interface {
	shared.DomainEvent
	Entity() EntityRef
	Sync() shared.SyncContext
}

// EntityCreatedEvent is published when a canonical entity is created
type EntityCreatedEvent struct {
	shared.BaseDomainEvent
	Ref         EntityRef          `json:"entity"`
	SyncContext shared.SyncContext `json:"sync_context"`
}

// NewEntityCreatedEvent creates a new EntityCreatedEvent
func NewEntityCreatedEvent(e *Entity, sc shared.SyncContext) *EntityCreatedEvent {
	return &EntityCreatedEvent{
		BaseDomainEvent: newEntityEvent(EventTypeEntityCreated, e, sc),
		Ref:             e.Ref(),
		SyncContext:     sc,
	}
}

func (ev *EntityCreatedEvent) Entity() EntityRef        { return ev.Ref }
func (ev *EntityCreatedEvent) Sync() shared.SyncContext { return ev.SyncContext }

// EntityUpdatedEvent is published when a canonical entity changes, including
// publication and channel changes
type EntityUpdatedEvent struct {
	shared.BaseDomainEvent
	Ref         EntityRef          `json:"entity"`
	SyncContext shared.SyncContext `json:"sync_context"`
	Changes     []string           `json:"changes,omitempty"`
}

// NewEntityUpdatedEvent creates a new EntityUpdatedEvent
func NewEntityUpdatedEvent(e *Entity, sc shared.SyncContext, changes ...string) *EntityUpdatedEvent {
	return &EntityUpdatedEvent{
		BaseDomainEvent: newEntityEvent(EventTypeEntityUpdated, e, sc),
		Ref:             e.Ref(),
		SyncContext:     sc,
		Changes:         changes,
	}
}

func (ev *EntityUpdatedEvent) Entity() EntityRef        { return ev.Ref }
func (ev *EntityUpdatedEvent) Sync() shared.SyncContext { return ev.SyncContext }

// EntityDeletedEvent is published when a canonical entity is hard deleted
type EntityDeletedEvent struct {
	shared.BaseDomainEvent
	Ref         EntityRef          `json:"entity"`
	SyncContext shared.SyncContext `json:"sync_context"`
	Tombstone   Tombstone          `json:"tombstone"`
}

// NewEntityDeletedEvent creates a new EntityDeletedEvent
func NewEntityDeletedEvent(e *Entity, tombstone *Tombstone, sc shared.SyncContext) *EntityDeletedEvent {
	return &EntityDeletedEvent{
		BaseDomainEvent: newEntityEvent(EventTypeEntityDeleted, e, sc),
		Ref:             e.Ref(),
		SyncContext:     sc,
		Tombstone:       *tombstone,
	}
}

func (ev *EntityDeletedEvent) Entity() EntityRef        { return ev.Ref }
func (ev *EntityDeletedEvent) Sync() shared.SyncContext { return ev.SyncContext }

// The event id doubles as the write's idempotency token
func newEntityEvent(eventType string, e *Entity, sc shared.SyncContext) shared.BaseDomainEvent {
	base := shared.NewBaseDomainEvent(eventType, AggregateTypeEntity, e.ID)
	if sc.EventID != uuid.Nil {
		base.ID = sc.EventID
	}
	return base
}
