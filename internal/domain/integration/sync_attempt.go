package integration

import (
	"context"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/google/uuid"
)

// SyncOperation is what an adapter was asked to do
type SyncOperation string

const (
	SyncOpUpsert SyncOperation = "upsert"
	SyncOpDelete SyncOperation = "delete"
)

// SyncOutcome is the result of one attempt
type SyncOutcome string

const (
	SyncOutcomeSuccess SyncOutcome = "success"
	SyncOutcomeFailed  SyncOutcome = "failed"
	SyncOutcomeSkipped SyncOutcome = "skipped"
)

// SyncAttempt records the propagation of one change to one platform
type SyncAttempt struct {
	ID         uuid.UUID
	EventID    uuid.UUID
	Platform   PlatformCode
	Entity     catalog.EntityRef
	Operation  SyncOperation
	Outcome    SyncOutcome
	ExternalID catalog.ExternalID
	Created    bool // the remote resource was created by this attempt
	Reason     string
	Error      string
	Calls      int // external calls made, retries included
	Cascade    bool
	Trigger    string
	Duration   time.Duration
	CreatedAt  time.Time
}

// NewSyncAttempt starts an attempt record
func NewSyncAttempt(eventID uuid.UUID, platform PlatformCode, ref catalog.EntityRef, op SyncOperation) *SyncAttempt {
	return &SyncAttempt{
		ID:        uuid.New(),
		EventID:   eventID,
		Platform:  platform,
		Entity:    ref,
		Operation: op,
		CreatedAt: time.Now(),
	}
}

// Succeed marks the attempt successful
func (a *SyncAttempt) Succeed(id catalog.ExternalID) *SyncAttempt {
	a.Outcome = SyncOutcomeSuccess
	a.ExternalID = id
	return a
}

// Skip marks the attempt skipped with a reason
func (a *SyncAttempt) Skip(reason string) *SyncAttempt {
	a.Outcome = SyncOutcomeSkipped
	a.Reason = reason
	return a
}

// Fail marks the attempt failed
func (a *SyncAttempt) Fail(err error) *SyncAttempt {
	a.Outcome = SyncOutcomeFailed
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

// AttemptFilter narrows attempt listings
type AttemptFilter struct {
	EntityID *uuid.UUID
	Platform PlatformCode
	Outcome  SyncOutcome
	Page     int
	PageSize int
}

// SyncAttemptRepository persists attempt records
type SyncAttemptRepository interface {
	Save(ctx context.Context, attempt *SyncAttempt) error
	List(ctx context.Context, filter AttemptFilter) ([]*SyncAttempt, int64, error)
	// FindFailedLatest returns, per (entity, platform), the latest attempt when it failed
	FindFailedLatest(ctx context.Context, since time.Time, limit int) ([]*SyncAttempt, error)
	// FindOlderThan pages through attempts created before the given time, oldest first
	FindOlderThan(ctx context.Context, before time.Time, offset, limit int) ([]*SyncAttempt, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// AttemptArchiver keeps attempt records outside the database before they are pruned
type AttemptArchiver interface {
	Archive(ctx context.Context, attempts []*SyncAttempt) error
}

// AttemptPublisher fans attempt records out to downstream consumers
type AttemptPublisher interface {
	PublishAttempt(ctx context.Context, attempt *SyncAttempt) error
}
