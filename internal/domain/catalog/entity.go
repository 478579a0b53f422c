package catalog

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
)

// AggregateTypeEntity is the aggregate type recorded on catalog events
const AggregateTypeEntity = "CatalogEntity"

// Entity is a canonical catalog record and the aggregate root of this context
type Entity struct {
	shared.BaseAggregateRoot
	Kind          EntityKind
	NaturalKey    string
	Name          string
	State         PublicationState
	ExternalIDs   ExternalIDs
	Channels      []string // platform codes the entity is flagged for
	Detail        Detail
	EverPublished bool
}

// NewEntity creates a draft entity
func NewEntity(kind EntityKind, naturalKey, name string, detail Detail) (*Entity, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if err := validateDetail(kind, detail); err != nil {
		return nil, err
	}
	key, err := validateNaturalKey(kind, naturalKey)
	if err != nil {
		return nil, err
	}
	if term, ok := detail.(TermDetail); ok {
		if key, detail, err = keyTerm(key, term); err != nil {
			return nil, err
		}
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	return &Entity{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Kind:              kind,
		NaturalKey:        key,
		Name:              strings.TrimSpace(name),
		State:             StateDraft,
		ExternalIDs:       ExternalIDs{},
		Channels:          []string{},
		Detail:            detail,
	}, nil
}

// Update replaces the name and detail
func (e *Entity) Update(name string, detail Detail) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateDetail(e.Kind, detail); err != nil {
		return err
	}
	key := e.NaturalKey
	if term, ok := detail.(TermDetail); ok {
		// a term is keyed by its detail; an empty slug keeps the current one
		if term.Slug == "" {
			_, term.Slug, _ = SplitTermKey(e.NaturalKey)
		}
		var err error
		if key, detail, err = keyTerm(NormalizeNaturalKey(TermKey(term.Taxonomy, term.Slug)), term); err != nil {
			return err
		}
	}
	e.Name = strings.TrimSpace(name)
	e.NaturalKey = key
	e.Detail = detail
	e.touch()
	return nil
}

// ChangeNaturalKey rekeys the entity. Remote copies found by the old key keep
// their registered ids. A term takes its new slug from the key, which may
// omit the taxonomy.
func (e *Entity) ChangeNaturalKey(naturalKey string) error {
	key, err := validateNaturalKey(e.Kind, naturalKey)
	if err != nil {
		return err
	}
	detail := e.Detail
	if term, ok := e.Detail.(TermDetail); ok {
		term.Slug = ""
		if key, detail, err = keyTerm(key, term); err != nil {
			return err
		}
	}
	if key == e.NaturalKey {
		return nil
	}
	e.NaturalKey = key
	e.Detail = detail
	e.touch()
	return nil
}

// Publish makes the entity eligible for propagation
func (e *Entity) Publish() error {
	if e.State == StatePublished {
		return ErrAlreadyPublished
	}
	e.State = StatePublished
	e.EverPublished = true
	e.touch()
	return nil
}

// Unpublish returns the entity to draft; remote copies are left in place
func (e *Entity) Unpublish() error {
	if e.State == StateDraft {
		return ErrAlreadyDraft
	}
	e.State = StateDraft
	e.touch()
	return nil
}

// IsPublished returns true if the entity is published
func (e *Entity) IsPublished() bool {
	return e.State == StatePublished
}

// AssignChannel flags the entity for propagation to platform
func (e *Entity) AssignChannel(platform string) bool {
	platform = strings.TrimSpace(platform)
	if platform == "" || e.HasChannel(platform) {
		return false
	}
	e.Channels = append(e.Channels, platform)
	slices.Sort(e.Channels)
	e.touch()
	return true
}

// UnassignChannel stops propagation to platform; the registered id is kept
func (e *Entity) UnassignChannel(platform string) bool {
	idx := slices.Index(e.Channels, platform)
	if idx < 0 {
		return false
	}
	e.Channels = slices.Delete(e.Channels, idx, idx+1)
	e.touch()
	return true
}

// HasChannel reports whether the entity is flagged for platform
func (e *Entity) HasChannel(platform string) bool {
	return slices.Contains(e.Channels, platform)
}

// References returns the relation edges from this entity to the entities it depends on
func (e *Entity) References() []RelationEdge {
	if e.Detail == nil {
		return nil
	}
	refs := e.Detail.References()
	edges := make([]RelationEdge, 0, len(refs))
	for _, id := range refs {
		if id == e.ID {
			continue
		}
		edges = append(edges, RelationEdge{DependentID: e.ID, ReferencedID: id})
	}
	return edges
}

// Ref returns the lightweight reference carried on events
func (e *Entity) Ref() EntityRef {
	return EntityRef{ID: e.ID, Kind: e.Kind, NaturalKey: e.NaturalKey}
}

// Tombstone snapshots the entity for a hard delete
func (e *Entity) Tombstone(eventID uuid.UUID) *Tombstone {
	return &Tombstone{
		EntityID:    e.ID,
		Kind:        e.Kind,
		NaturalKey:  e.NaturalKey,
		Name:        e.Name,
		ExternalIDs: e.ExternalIDs.Clone(),
		EventID:     eventID,
		DeletedAt:   time.Now(),
	}
}

func (e *Entity) touch() {
	e.UpdatedAt = time.Now()
	e.IncrementVersion()
}

func validateNaturalKey(kind EntityKind, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrEmptyNaturalKey
	}
	if len(key) > 200 {
		return "", ErrNaturalKeyTooLong
	}
	return NormalizeKey(kind, key), nil
}

// keyTerm returns the taxonomy/slug key of a term and its detail with the slug
// filled in. key is either a bare slug or taxonomy/slug; it must agree with the
// detail wherever both are set.
func keyTerm(key string, d TermDetail) (string, Detail, error) {
	slug := key
	if tax, s, ok := SplitTermKey(key); ok {
		if tax != d.Taxonomy {
			return "", nil, fmt.Errorf("%w: key taxonomy %q, detail taxonomy %q", ErrTermKeyMismatch, tax, d.Taxonomy)
		}
		slug = s
	}
	if d.Slug != "" {
		detailSlug := NormalizeNaturalKey(d.Slug)
		if detailSlug != slug {
			return "", nil, fmt.Errorf("%w: key slug %q, detail slug %q", ErrTermKeyMismatch, slug, detailSlug)
		}
	}
	if strings.TrimSpace(slug) == "" {
		return "", nil, ErrEmptyNaturalKey
	}
	d.Slug = slug
	return TermKey(d.Taxonomy, slug), d, nil
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > 300 {
		return ErrNameTooLong
	}
	return nil
}

func validateDetail(kind EntityKind, detail Detail) error {
	if detail == nil {
		return fmt.Errorf("%w: missing detail for %s", ErrDetailKind, kind)
	}
	if detail.Kind() != kind {
		return fmt.Errorf("%w: %s detail on %s", ErrDetailKind, detail.Kind(), kind)
	}
	if t, ok := detail.(TermDetail); ok && !t.Taxonomy.IsValid() {
		return shared.NewDomainError("INVALID_TAXONOMY", fmt.Sprintf("Unknown taxonomy %q", t.Taxonomy))
	}
	return nil
}

// EntityRef identifies an entity on events and attempts
type EntityRef struct {
	ID         uuid.UUID  `json:"id"`
	Kind       EntityKind `json:"kind"`
	NaturalKey string     `json:"natural_key"`
}

// RelationEdge is a dependent -> referenced link between canonical entities
type RelationEdge struct {
	DependentID  uuid.UUID
	ReferencedID uuid.UUID
}

// Tombstone is the authoritative record of a hard-deleted entity
type Tombstone struct {
	EntityID    uuid.UUID   `json:"entity_id"`
	Kind        EntityKind  `json:"kind"`
	NaturalKey  string      `json:"natural_key"`
	Name        string      `json:"name"`
	ExternalIDs ExternalIDs `json:"external_ids"`
	EventID     uuid.UUID   `json:"event_id"`
	DeletedAt   time.Time   `json:"deleted_at"`
}
