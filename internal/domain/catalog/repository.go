package catalog

import (
	"context"

	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
)

// EntityReader defines read operations for canonical entities
type EntityReader interface {
	// FindByID finds an entity by its ID, returning shared.ErrNotFound if absent
	FindByID(ctx context.Context, id uuid.UUID) (*Entity, error)
	// FindByIDs finds the entities that still exist among ids
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*Entity, error)
	// Exists reports whether an entity row exists
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// EntityFinder defines lookup operations used by reconciliation
type EntityFinder interface {
	// FindByNaturalKey finds an entity of kind by its normalized natural key
	FindByNaturalKey(ctx context.Context, kind EntityKind, naturalKey string) (*Entity, error)
	// FindByExternalID finds the entity whose registry holds externalID for platform
	FindByExternalID(ctx context.Context, platform string, kind EntityKind, externalID ExternalID) (*Entity, error)
	// FindSharing returns ids of entities other than exclude that share (platform, externalID)
	FindSharing(ctx context.Context, platform string, kind EntityKind, externalID ExternalID, exclude uuid.UUID) ([]uuid.UUID, error)
	// List lists entities matching the filter ("kind", "state" keys are honoured)
	List(ctx context.Context, filter shared.Filter) ([]*Entity, int64, error)
}

// EntityWriter defines write operations. Every write commits the outbox events
// passed with it in the same transaction.
type EntityWriter interface {
	// SaveWithEvents creates or updates the entity and its relations
	SaveWithEvents(ctx context.Context, entity *Entity, events ...shared.DomainEvent) error
	// DeleteWithTombstone hard deletes the entity and writes the tombstone.
	// The tombstone's external ids, and those of any delete event for the
	// entity, are replaced with the registry as it stands at the delete.
	DeleteWithTombstone(ctx context.Context, entity *Entity, tombstone *Tombstone, events ...shared.DomainEvent) error
}

// EntityRepository combines the entity ports
type EntityRepository interface {
	EntityReader
	EntityFinder
	EntityWriter
}

// ExternalIDRegistry reads and writes a single registry entry without touching
// the rest of the entity and without raising events
type ExternalIDRegistry interface {
	GetExternalID(ctx context.Context, entityID uuid.UUID, platform string) (ExternalID, bool, error)
	SetExternalID(ctx context.Context, entityID uuid.UUID, platform string, id ExternalID) error
	ClearExternalID(ctx context.Context, entityID uuid.UUID, platform string) error
}

// RelationFinder reads dependent relations
type RelationFinder interface {
	// FindDependents returns edges whose referenced side is referencedID
	FindDependents(ctx context.Context, referencedID uuid.UUID) ([]RelationEdge, error)
}

// TombstoneRepository reads tombstones written by DeleteWithTombstone
type TombstoneRepository interface {
	FindTombstone(ctx context.Context, entityID uuid.UUID) (*Tombstone, error)
}
