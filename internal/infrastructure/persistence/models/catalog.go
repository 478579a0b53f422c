package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/google/uuid"
)

// EntityModel is the persistence model for the canonical catalog Entity.
// ExternalIDs is the registry column; after the row is created it is only
// written through single-key JSON updates.
type EntityModel struct {
	AggregateModel
	Kind          catalog.EntityKind       `gorm:"type:varchar(20);not null;uniqueIndex:idx_catalog_entity_kind_key,priority:1"`
	NaturalKey    string                   `gorm:"type:varchar(200);not null;uniqueIndex:idx_catalog_entity_kind_key,priority:2"`
	Name          string                   `gorm:"type:varchar(300);not null"`
	State         catalog.PublicationState `gorm:"type:varchar(20);not null;default:'draft';index"`
	ExternalIDs   string                   `gorm:"column:external_ids;type:jsonb;not null;default:'{}'"`
	Channels      string                   `gorm:"type:jsonb;not null;default:'[]'"`
	Detail        string                   `gorm:"type:jsonb;not null;default:'{}'"`
	EverPublished bool                     `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (EntityModel) TableName() string {
	return "catalog_entities"
}

// ToDomain converts the persistence model to a domain Entity
func (m *EntityModel) ToDomain() (*catalog.Entity, error) {
	detail, err := catalog.UnmarshalDetail(m.Kind, []byte(m.Detail))
	if err != nil {
		return nil, err
	}
	ids := catalog.ExternalIDs{}
	if m.ExternalIDs != "" {
		if err := json.Unmarshal([]byte(m.ExternalIDs), &ids); err != nil {
			return nil, fmt.Errorf("decode external ids of %s: %w", m.ID, err)
		}
	}
	channels := []string{}
	if m.Channels != "" {
		if err := json.Unmarshal([]byte(m.Channels), &channels); err != nil {
			return nil, fmt.Errorf("decode channels of %s: %w", m.ID, err)
		}
	}
	return &catalog.Entity{
		BaseAggregateRoot: m.ToAggregateRoot(),
		Kind:              m.Kind,
		NaturalKey:        m.NaturalKey,
		Name:              m.Name,
		State:             m.State,
		ExternalIDs:       ids,
		Channels:          channels,
		Detail:            detail,
		EverPublished:     m.EverPublished,
	}, nil
}

// FromDomain populates the persistence model from a domain Entity
func (m *EntityModel) FromDomain(e *catalog.Entity) error {
	m.FromDomainAggregateRoot(e.BaseAggregateRoot)
	m.Kind = e.Kind
	m.NaturalKey = e.NaturalKey
	m.Name = e.Name
	m.State = e.State
	m.EverPublished = e.EverPublished

	ids := e.ExternalIDs
	if ids == nil {
		ids = catalog.ExternalIDs{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	m.ExternalIDs = string(b)

	channels := e.Channels
	if channels == nil {
		channels = []string{}
	}
	if b, err = json.Marshal(channels); err != nil {
		return err
	}
	m.Channels = string(b)

	if b, err = catalog.MarshalDetail(e.Detail); err != nil {
		return err
	}
	m.Detail = string(b)
	return nil
}

// EntityModelFromDomain creates a new persistence model from a domain Entity
func EntityModelFromDomain(e *catalog.Entity) (*EntityModel, error) {
	m := &EntityModel{}
	if err := m.FromDomain(e); err != nil {
		return nil, err
	}
	return m, nil
}

// EntityRelationModel stores one dependent -> referenced edge
type EntityRelationModel struct {
	DependentID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	ReferencedID uuid.UUID `gorm:"type:uuid;primaryKey;index:idx_entity_relations_referenced"`
	CreatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (EntityRelationModel) TableName() string {
	return "entity_relations"
}

// ToDomain converts the persistence model to a domain RelationEdge
func (m *EntityRelationModel) ToDomain() catalog.RelationEdge {
	return catalog.RelationEdge{DependentID: m.DependentID, ReferencedID: m.ReferencedID}
}

// TombstoneModel is the persistence model for catalog.Tombstone
type TombstoneModel struct {
	EntityID    uuid.UUID          `gorm:"type:uuid;primaryKey"`
	Kind        catalog.EntityKind `gorm:"type:varchar(20);not null"`
	NaturalKey  string             `gorm:"type:varchar(200);not null;index"`
	Name        string             `gorm:"type:varchar(300);not null"`
	ExternalIDs string             `gorm:"column:external_ids;type:jsonb;not null;default:'{}'"`
	EventID     uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex"`
	DeletedAt   time.Time          `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (TombstoneModel) TableName() string {
	return "entity_tombstones"
}

// ToDomain converts the persistence model to a domain Tombstone
func (m *TombstoneModel) ToDomain() (*catalog.Tombstone, error) {
	ids := catalog.ExternalIDs{}
	if m.ExternalIDs != "" {
		if err := json.Unmarshal([]byte(m.ExternalIDs), &ids); err != nil {
			return nil, fmt.Errorf("decode tombstone external ids of %s: %w", m.EntityID, err)
		}
	}
	return &catalog.Tombstone{
		EntityID:    m.EntityID,
		Kind:        m.Kind,
		NaturalKey:  m.NaturalKey,
		Name:        m.Name,
		ExternalIDs: ids,
		EventID:     m.EventID,
		DeletedAt:   m.DeletedAt,
	}, nil
}

// TombstoneModelFromDomain creates a new persistence model from a domain Tombstone
func TombstoneModelFromDomain(t *catalog.Tombstone) (*TombstoneModel, error) {
	ids := t.ExternalIDs
	if ids == nil {
		ids = catalog.ExternalIDs{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return &TombstoneModel{
		EntityID:    t.EntityID,
		Kind:        t.Kind,
		NaturalKey:  t.NaturalKey,
		Name:        t.Name,
		ExternalIDs: string(b),
		EventID:     t.EventID,
		DeletedAt:   t.DeletedAt,
	}, nil
}
