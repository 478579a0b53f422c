package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormEntityRepository implements the catalog entity ports using GORM.
// It also serves the external-id registry, relation and tombstone ports,
// which all live on the same tables.
type GormEntityRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver // optional, for transactional outbox pattern
}

// NewGormEntityRepository creates a new GormEntityRepository
func NewGormEntityRepository(db *gorm.DB) *GormEntityRepository {
	return &GormEntityRepository{db: db}
}

// SetOutboxEventSaver sets the outbox event saver for transactional event publishing
func (r *GormEntityRepository) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	r.outboxSaver = saver
}

// WithTx returns a repository bound to tx
func (r *GormEntityRepository) WithTx(tx *gorm.DB) *GormEntityRepository {
	return &GormEntityRepository{db: tx, outboxSaver: r.outboxSaver}
}

// FindByID finds an entity by its ID
func (r *GormEntityRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Entity, error) {
	var model models.EntityModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByIDs finds the entities that still exist among ids
func (r *GormEntityRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*catalog.Entity, error) {
	if len(ids) == 0 {
		return []*catalog.Entity{}, nil
	}
	var rows []models.EntityModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return entitiesToDomain(rows)
}

// Exists reports whether an entity row exists
func (r *GormEntityRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.EntityModel{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindByNaturalKey finds an entity of kind by its natural key
func (r *GormEntityRepository) FindByNaturalKey(ctx context.Context, kind catalog.EntityKind, naturalKey string) (*catalog.Entity, error) {
	var model models.EntityModel
	err := r.db.WithContext(ctx).
		Where("kind = ? AND natural_key = ?", kind, catalog.NormalizeKey(kind, naturalKey)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByExternalID finds the entity whose registry holds externalID for platform.
// Several entities may share one remote resource; the oldest wins.
func (r *GormEntityRepository) FindByExternalID(ctx context.Context, platform string, kind catalog.EntityKind, externalID catalog.ExternalID) (*catalog.Entity, error) {
	cond, args, err := newJSONColumn(r.db, "external_ids").Equals(platform, externalID.String())
	if err != nil {
		return nil, err
	}
	var model models.EntityModel
	err = r.db.WithContext(ctx).
		Where("kind = ?", kind).
		Where(cond, args...).
		Order("created_at ASC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindSharing returns ids of entities other than exclude that share (platform, externalID)
func (r *GormEntityRepository) FindSharing(ctx context.Context, platform string, kind catalog.EntityKind, externalID catalog.ExternalID, exclude uuid.UUID) ([]uuid.UUID, error) {
	cond, args, err := newJSONColumn(r.db, "external_ids").Equals(platform, externalID.String())
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	err = r.db.WithContext(ctx).
		Model(&models.EntityModel{}).
		Where("kind = ? AND id <> ?", kind, exclude).
		Where(cond, args...).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// List lists entities matching the filter
func (r *GormEntityRepository) List(ctx context.Context, filter shared.Filter) ([]*catalog.Entity, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.EntityModel{})

	if kind, ok := filter.Filters["kind"]; ok && kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if state, ok := filter.Filters["state"]; ok && state != "" {
		query = query.Where("state = ?", state)
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR natural_key LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortField := ValidateSortField(filter.OrderBy, EntitySortFields, "created_at")
	sortOrder := ValidateSortOrder(filter.OrderDir)
	query = query.Order(sortField + " " + sortOrder)
	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	var rows []models.EntityModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	entities, err := entitiesToDomain(rows)
	if err != nil {
		return nil, 0, err
	}
	return entities, total, nil
}

// SaveWithEvents creates or updates the entity, replaces its outgoing relations
// and saves events to the outbox, all in one transaction. The registry column is
// only written on create; afterwards it belongs to SetExternalID/ClearExternalID.
func (r *GormEntityRepository) SaveWithEvents(ctx context.Context, entity *catalog.Entity, events ...shared.DomainEvent) error {
	model, err := models.EntityModelFromDomain(entity)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.EntityModel{}).Where("id = ?", entity.ID).Count(&count).Error; err != nil {
			return err
		}

		if count == 0 {
			if err := tx.Create(model).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return catalog.ErrDuplicateEntity
				}
				return err
			}
		} else {
			result := tx.Model(&models.EntityModel{}).
				Where("id = ? AND version < ?", entity.ID, entity.Version).
				Updates(map[string]any{
					"natural_key":    model.NaturalKey,
					"name":           model.Name,
					"state":          model.State,
					"channels":       model.Channels,
					"detail":         model.Detail,
					"ever_published": model.EverPublished,
					"version":        model.Version,
					"updated_at":     model.UpdatedAt,
				})
			if result.Error != nil {
				if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
					return catalog.ErrDuplicateEntity
				}
				return result.Error
			}
			if result.RowsAffected == 0 {
				return shared.ErrConcurrencyConflict
			}
		}

		if err := replaceRelations(tx, entity); err != nil {
			return err
		}

		// Save events to outbox within the same transaction
		if r.outboxSaver != nil && len(events) > 0 {
			if err := r.outboxSaver.SaveEvents(ctx, tx, events...); err != nil {
				return fmt.Errorf("failed to save events to outbox: %w", err)
			}
		}
		return nil
	})
}

// DeleteWithTombstone hard deletes the entity with its outgoing relations and
// writes the tombstone and events in the same transaction. Incoming relations
// are kept so the deletion can still be cascaded to dependents.
func (r *GormEntityRepository) DeleteWithTombstone(ctx context.Context, entity *catalog.Entity, tombstone *catalog.Tombstone, events ...shared.DomainEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The registry may have changed since entity was loaded; the row lock
		// makes a concurrent SetExternalID either land in the tombstone or fail
		var row models.EntityModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "external_ids").
			First(&row, "id = ?", entity.ID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound
			}
			return err
		}
		ids, err := decodeExternalIDs(row.ExternalIDs)
		if err != nil {
			return fmt.Errorf("decode external ids of %s: %w", entity.ID, err)
		}
		tombstone.ExternalIDs = ids
		for _, ev := range events {
			if deleted, ok := ev.(*catalog.EntityDeletedEvent); ok && deleted.Tombstone.EntityID == entity.ID {
				deleted.Tombstone = *tombstone
			}
		}

		tombModel, err := models.TombstoneModelFromDomain(tombstone)
		if err != nil {
			return err
		}

		if err := tx.Where("dependent_id = ?", entity.ID).Delete(&models.EntityRelationModel{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.EntityModel{}, "id = ?", entity.ID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}

		if err := tx.Create(tombModel).Error; err != nil {
			return err
		}

		if r.outboxSaver != nil && len(events) > 0 {
			if err := r.outboxSaver.SaveEvents(ctx, tx, events...); err != nil {
				return fmt.Errorf("failed to save events to outbox: %w", err)
			}
		}
		return nil
	})
}

// GetExternalID returns the registered id of entityID on platform
func (r *GormEntityRepository) GetExternalID(ctx context.Context, entityID uuid.UUID, platform string) (catalog.ExternalID, bool, error) {
	var model models.EntityModel
	err := r.db.WithContext(ctx).Select("id", "external_ids").First(&model, "id = ?", entityID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, shared.ErrNotFound
		}
		return "", false, err
	}
	ids, err := decodeExternalIDs(model.ExternalIDs)
	if err != nil {
		return "", false, fmt.Errorf("decode external ids of %s: %w", entityID, err)
	}
	id, ok := ids.Get(platform)
	return id, ok, nil
}

func decodeExternalIDs(raw string) (catalog.ExternalIDs, error) {
	ids := catalog.ExternalIDs{}
	if raw == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SetExternalID writes one registry entry. Other platforms' entries and the
// rest of the row are left alone, so concurrent adapters never overwrite each other.
func (r *GormEntityRepository) SetExternalID(ctx context.Context, entityID uuid.UUID, platform string, id catalog.ExternalID) error {
	if id.IsZero() {
		return fmt.Errorf("%w: empty id for %s", catalog.ErrInvalidExternalID, platform)
	}
	expr, err := newJSONColumn(r.db, "external_ids").Set(platform, id.String())
	if err != nil {
		return err
	}
	return r.updateRegistry(ctx, entityID, expr)
}

// ClearExternalID removes one registry entry
func (r *GormEntityRepository) ClearExternalID(ctx context.Context, entityID uuid.UUID, platform string) error {
	expr, err := newJSONColumn(r.db, "external_ids").Remove(platform)
	if err != nil {
		return err
	}
	return r.updateRegistry(ctx, entityID, expr)
}

func (r *GormEntityRepository) updateRegistry(ctx context.Context, entityID uuid.UUID, expr any) error {
	result := r.db.WithContext(ctx).
		Model(&models.EntityModel{}).
		Where("id = ?", entityID).
		UpdateColumn("external_ids", expr)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindDependents returns edges whose referenced side is referencedID
func (r *GormEntityRepository) FindDependents(ctx context.Context, referencedID uuid.UUID) ([]catalog.RelationEdge, error) {
	var rows []models.EntityRelationModel
	err := r.db.WithContext(ctx).
		Where("referenced_id = ?", referencedID).
		Order("dependent_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	edges := make([]catalog.RelationEdge, len(rows))
	for i := range rows {
		edges[i] = rows[i].ToDomain()
	}
	return edges, nil
}

// FindTombstone returns the tombstone of a hard-deleted entity
func (r *GormEntityRepository) FindTombstone(ctx context.Context, entityID uuid.UUID) (*catalog.Tombstone, error) {
	var model models.TombstoneModel
	if err := r.db.WithContext(ctx).First(&model, "entity_id = ?", entityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

func replaceRelations(tx *gorm.DB, entity *catalog.Entity) error {
	if err := tx.Where("dependent_id = ?", entity.ID).Delete(&models.EntityRelationModel{}).Error; err != nil {
		return err
	}
	edges := entity.References()
	if len(edges) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]models.EntityRelationModel, len(edges))
	for i, e := range edges {
		rows[i] = models.EntityRelationModel{
			DependentID:  e.DependentID,
			ReferencedID: e.ReferencedID,
			CreatedAt:    now,
		}
	}
	return tx.Create(&rows).Error
}

func entitiesToDomain(rows []models.EntityModel) ([]*catalog.Entity, error) {
	entities := make([]*catalog.Entity, 0, len(rows))
	for i := range rows {
		e, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// Ensure GormEntityRepository implements the catalog ports
var (
	_ catalog.EntityRepository    = (*GormEntityRepository)(nil)
	_ catalog.ExternalIDRegistry  = (*GormEntityRepository)(nil)
	_ catalog.RelationFinder      = (*GormEntityRepository)(nil)
	_ catalog.TombstoneRepository = (*GormEntityRepository)(nil)
)
