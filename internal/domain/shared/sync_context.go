package shared

import (
	"fmt"

	"github.com/google/uuid"
)

// SyncTrigger names what caused a canonical write
type SyncTrigger string

const (
	SyncTriggerAdmin   SyncTrigger = "admin"
	SyncTriggerWebhook SyncTrigger = "webhook"
	SyncTriggerCascade SyncTrigger = "cascade"
	SyncTriggerResync  SyncTrigger = "resync"
)

// SyncContext travels with every canonical write and the events it raises.
// Origin is the platform code a webhook-originated write came from; Cascade marks
// re-syncs fanned out from a referenced entity so they are never fanned out again.
type SyncContext struct {
	EventID uuid.UUID   `json:"event_id"`
	Origin  string      `json:"origin,omitempty"`
	Cascade bool        `json:"cascade,omitempty"`
	Trigger SyncTrigger `json:"trigger"`
}

// NewSyncContext returns a context for a locally initiated write
func NewSyncContext(trigger SyncTrigger) SyncContext {
	return SyncContext{
		EventID: uuid.New(),
		Trigger: trigger,
	}
}

// FromPlatform returns a context for a write that originated on an external platform
func FromPlatform(platform string) SyncContext {
	return SyncContext{
		EventID: uuid.New(),
		Origin:  platform,
		Trigger: SyncTriggerWebhook,
	}
}

// ForCascade derives the context of a dependent re-sync. The origin is kept so the
// originating platform is still skipped for dependents.
func (c SyncContext) ForCascade(dependentID uuid.UUID) SyncContext {
	return SyncContext{
		EventID: uuid.NewSHA1(c.EventID, dependentID[:]),
		Origin:  c.Origin,
		Cascade: true,
		Trigger: SyncTriggerCascade,
	}
}

// IsOrigin reports whether platform is where this write came from
func (c SyncContext) IsOrigin(platform string) bool {
	return c.Origin != "" && c.Origin == platform
}

// Token returns the per-event idempotency token for one operation on one platform
func (c SyncContext) Token(platform, op string) string {
	return fmt.Sprintf("%s:%s:%s", op, c.EventID, platform)
}
