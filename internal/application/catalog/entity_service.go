package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUnknownChannel    = shared.NewDomainError("INVALID_CHANNEL", "Channel is not a configured platform")
	ErrInvalidReference  = shared.NewDomainError("INVALID_REFERENCE", "Referenced entity not found")
	ErrInvalidDetailJSON = shared.NewDomainError("INVALID_INPUT", "Detail is not valid for the entity kind")
)

// EntityService handles admin writes to canonical entities. Every write
// commits the entity together with its catalog event, which drives
// reconciliation to the platforms.
type EntityService struct {
	repo      catalog.EntityRepository
	platforms *integration.Platforms
	logger    *zap.Logger
}

// NewEntityService creates a new EntityService
func NewEntityService(repo catalog.EntityRepository, platforms *integration.Platforms, logger *zap.Logger) *EntityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityService{repo: repo, platforms: platforms, logger: logger}
}

// Create creates a new entity, optionally published and assigned to channels
func (s *EntityService) Create(ctx context.Context, req CreateEntityRequest) (*EntityResponse, error) {
	kind, err := catalog.ParseEntityKind(req.Kind)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_KIND", err.Error())
	}
	detail, err := decodeDetail(kind, req.Detail)
	if err != nil {
		return nil, err
	}

	e, err := catalog.NewEntity(kind, req.NaturalKey, req.Name, detail)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUniqueKey(ctx, e.Kind, e.NaturalKey, uuid.Nil); err != nil {
		return nil, err
	}
	if err := s.ensureReferences(ctx, e); err != nil {
		return nil, err
	}
	for _, ch := range req.Channels {
		if err := s.ensureChannel(ch); err != nil {
			return nil, err
		}
		e.AssignChannel(ch)
	}
	if req.Publish {
		if err := e.Publish(); err != nil {
			return nil, err
		}
	}

	sc := shared.NewSyncContext(shared.SyncTriggerAdmin)
	if err := s.repo.SaveWithEvents(ctx, e, catalog.NewEntityCreatedEvent(e, sc)); err != nil {
		return nil, err
	}
	s.logger.Info("entity created",
		zap.String("entity_id", e.ID.String()),
		zap.String("kind", string(e.Kind)),
		zap.String("event_id", sc.EventID.String()),
	)

	resp := ToEntityResponse(e)
	return &resp, nil
}

// GetByID returns one entity
func (s *EntityService) GetByID(ctx context.Context, id uuid.UUID) (*EntityResponse, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToEntityResponse(e)
	return &resp, nil
}

// List lists entities
func (s *EntityService) List(ctx context.Context, filter EntityListFilter) ([]EntityListResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.OrderBy == "" {
		filter.OrderBy = "created_at"
	}
	if filter.OrderDir == "" {
		filter.OrderDir = "desc"
	}

	domainFilter := shared.Filter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		OrderBy:  filter.OrderBy,
		OrderDir: filter.OrderDir,
		Search:   filter.Search,
		Filters:  make(map[string]interface{}),
	}
	if filter.Kind != "" {
		kind, err := catalog.ParseEntityKind(filter.Kind)
		if err != nil {
			return nil, 0, shared.NewDomainError("INVALID_KIND", err.Error())
		}
		domainFilter.Filters["kind"] = string(kind)
	}
	if filter.State != "" {
		domainFilter.Filters["state"] = filter.State
	}

	entities, total, err := s.repo.List(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	return ToEntityListResponses(entities), total, nil
}

// Update changes the natural key, name or detail of an entity. An update that
// changes nothing raises no event.
func (s *EntityService) Update(ctx context.Context, id uuid.UUID, req UpdateEntityRequest) (*EntityResponse, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var changes []string
	originalKey := e.NaturalKey
	if req.NaturalKey != nil {
		if err := e.ChangeNaturalKey(*req.NaturalKey); err != nil {
			return nil, err
		}
	}

	name, detail := e.Name, e.Detail
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
	}
	if len(req.Detail) > 0 {
		if detail, err = decodeDetail(e.Kind, req.Detail); err != nil {
			return nil, err
		}
	}
	nameChanged := name != e.Name
	detailChanged := !sameDetail(detail, e.Detail)
	if nameChanged || detailChanged {
		if err := e.Update(name, detail); err != nil {
			return nil, err
		}
		if nameChanged {
			changes = append(changes, "name")
		}
		if detailChanged {
			if err := s.ensureReferences(ctx, e); err != nil {
				return nil, err
			}
			changes = append(changes, "detail")
		}
	}
	// a term detail update can move its key too
	if e.NaturalKey != originalKey {
		if err := s.ensureUniqueKey(ctx, e.Kind, e.NaturalKey, e.ID); err != nil {
			return nil, err
		}
		changes = append([]string{"natural_key"}, changes...)
	}

	if len(changes) == 0 {
		resp := ToEntityResponse(e)
		return &resp, nil
	}
	return s.save(ctx, e, changes...)
}

// Publish makes an entity eligible for propagation
func (s *EntityService) Publish(ctx context.Context, id uuid.UUID) (*EntityResponse, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.Publish(); err != nil {
		return nil, err
	}
	return s.save(ctx, e, "state")
}

// Unpublish returns an entity to draft. Remote copies stay until the entity is deleted.
func (s *EntityService) Unpublish(ctx context.Context, id uuid.UUID) (*EntityResponse, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.Unpublish(); err != nil {
		return nil, err
	}
	return s.save(ctx, e, "state")
}

// AssignChannel flags an entity for propagation to a platform
func (s *EntityService) AssignChannel(ctx context.Context, id uuid.UUID, platform string) (*EntityResponse, error) {
	if err := s.ensureChannel(platform); err != nil {
		return nil, err
	}
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.AssignChannel(platform) {
		resp := ToEntityResponse(e)
		return &resp, nil
	}
	return s.save(ctx, e, "channels")
}

// UnassignChannel stops propagation to a platform; the registered id is kept
func (s *EntityService) UnassignChannel(ctx context.Context, id uuid.UUID, platform string) (*EntityResponse, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.UnassignChannel(platform) {
		resp := ToEntityResponse(e)
		return &resp, nil
	}
	return s.save(ctx, e, "channels")
}

// Delete hard deletes an entity. The tombstone and the delete event are
// written in the same transaction as the delete.
func (s *EntityService) Delete(ctx context.Context, id uuid.UUID) error {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	sc := shared.NewSyncContext(shared.SyncTriggerAdmin)
	tombstone := e.Tombstone(sc.EventID)
	if err := s.repo.DeleteWithTombstone(ctx, e, tombstone, catalog.NewEntityDeletedEvent(e, tombstone, sc)); err != nil {
		return err
	}
	s.logger.Info("entity deleted",
		zap.String("entity_id", e.ID.String()),
		zap.Strings("platforms", tombstone.ExternalIDs.Platforms()),
		zap.String("event_id", sc.EventID.String()),
	)
	return nil
}

func (s *EntityService) save(ctx context.Context, e *catalog.Entity, changes ...string) (*EntityResponse, error) {
	sc := shared.NewSyncContext(shared.SyncTriggerAdmin)
	if err := s.repo.SaveWithEvents(ctx, e, catalog.NewEntityUpdatedEvent(e, sc, changes...)); err != nil {
		return nil, err
	}
	s.logger.Debug("entity updated",
		zap.String("entity_id", e.ID.String()),
		zap.Strings("changes", changes),
		zap.String("event_id", sc.EventID.String()),
	)
	resp := ToEntityResponse(e)
	return &resp, nil
}

func (s *EntityService) ensureUniqueKey(ctx context.Context, kind catalog.EntityKind, key string, self uuid.UUID) error {
	existing, err := s.repo.FindByNaturalKey(ctx, kind, key)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return catalog.ErrDuplicateEntity
	default:
		return nil
	}
}

func (s *EntityService) ensureReferences(ctx context.Context, e *catalog.Entity) error {
	ids := e.Detail.References()
	if len(ids) == 0 {
		return nil
	}
	found, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(found) != len(ids) {
		return ErrInvalidReference
	}
	// Orders point at customers; products and child terms point at terms
	want := catalog.KindTerm
	if e.Kind == catalog.KindOrder {
		want = catalog.KindCustomer
	}
	for _, ref := range found {
		if ref.ID == e.ID {
			return shared.NewDomainError("INVALID_REFERENCE", "An entity cannot reference itself")
		}
		if ref.Kind != want {
			return shared.NewDomainError("INVALID_REFERENCE", fmt.Sprintf("%s cannot reference a %s", e.Kind, ref.Kind))
		}
	}
	return nil
}

func (s *EntityService) ensureChannel(platform string) error {
	if s.platforms == nil {
		return nil
	}
	if _, ok := s.platforms.Get(integration.PlatformCode(platform)); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, platform)
	}
	return nil
}

func decodeDetail(kind catalog.EntityKind, raw []byte) (catalog.Detail, error) {
	detail, err := catalog.UnmarshalDetail(kind, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDetailJSON, err)
	}
	return detail, nil
}

func sameDetail(a, b catalog.Detail) bool {
	ja, errA := catalog.MarshalDetail(a)
	jb, errB := catalog.MarshalDetail(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}
