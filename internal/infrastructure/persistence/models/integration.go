package models

import (
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/google/uuid"
)

// SyncAttemptModel is the persistence model for integration.SyncAttempt
type SyncAttemptModel struct {
	ID         uuid.UUID                 `gorm:"type:uuid;primaryKey"`
	EventID    uuid.UUID                 `gorm:"type:uuid;not null;index"`
	Platform   string                    `gorm:"type:varchar(50);not null;index:idx_sync_attempts_entity_platform,priority:2"`
	EntityID   uuid.UUID                 `gorm:"type:uuid;not null;index:idx_sync_attempts_entity_platform,priority:1"`
	EntityKind catalog.EntityKind        `gorm:"type:varchar(20);not null"`
	NaturalKey string                    `gorm:"type:varchar(200);not null"`
	Operation  integration.SyncOperation `gorm:"type:varchar(20);not null"`
	Outcome    integration.SyncOutcome   `gorm:"type:varchar(20);not null;index"`
	ExternalID string                    `gorm:"type:varchar(100)"`
	Created    bool                      `gorm:"not null;default:false"`
	Reason     string                    `gorm:"type:varchar(200)"`
	Error      string                    `gorm:"type:text"`
	Calls      int                       `gorm:"not null;default:0"`
	Cascade    bool                      `gorm:"not null;default:false"`
	Trigger    string                    `gorm:"type:varchar(20)"`
	DurationMS int64                     `gorm:"column:duration_ms;not null;default:0"`
	CreatedAt  time.Time                 `gorm:"not null;index:idx_sync_attempts_entity_platform,priority:3"`
}

// TableName returns the table name for GORM
func (SyncAttemptModel) TableName() string {
	return "sync_attempts"
}

// ToDomain converts the persistence model to a domain SyncAttempt
func (m *SyncAttemptModel) ToDomain() *integration.SyncAttempt {
	return &integration.SyncAttempt{
		ID:       m.ID,
		EventID:  m.EventID,
		Platform: integration.PlatformCode(m.Platform),
		Entity: catalog.EntityRef{
			ID:         m.EntityID,
			Kind:       m.EntityKind,
			NaturalKey: m.NaturalKey,
		},
		Operation:  m.Operation,
		Outcome:    m.Outcome,
		ExternalID: catalog.ExternalID(m.ExternalID),
		Created:    m.Created,
		Reason:     m.Reason,
		Error:      m.Error,
		Calls:      m.Calls,
		Cascade:    m.Cascade,
		Trigger:    m.Trigger,
		Duration:   time.Duration(m.DurationMS) * time.Millisecond,
		CreatedAt:  m.CreatedAt,
	}
}

// SyncAttemptModelFromDomain creates a new persistence model from a domain SyncAttempt
func SyncAttemptModelFromDomain(a *integration.SyncAttempt) *SyncAttemptModel {
	return &SyncAttemptModel{
		ID:         a.ID,
		EventID:    a.EventID,
		Platform:   a.Platform.String(),
		EntityID:   a.Entity.ID,
		EntityKind: a.Entity.Kind,
		NaturalKey: a.Entity.NaturalKey,
		Operation:  a.Operation,
		Outcome:    a.Outcome,
		ExternalID: a.ExternalID.String(),
		Created:    a.Created,
		Reason:     a.Reason,
		Error:      a.Error,
		Calls:      a.Calls,
		Cascade:    a.Cascade,
		Trigger:    a.Trigger,
		DurationMS: a.Duration.Milliseconds(),
		CreatedAt:  a.CreatedAt,
	}
}
