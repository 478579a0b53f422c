package integration

import (
	"sync/atomic"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/erp/catalogsync/internal/domain/shared"
)

// Skip reasons recorded on attempts a gate declined
const (
	ReasonKillSwitch       = "kill_switch"
	ReasonOrigin           = "origin_platform"
	ReasonIneligible       = "platform_ineligible"
	ReasonUnsupportedKind  = "kind_not_supported"
	ReasonNoChannel        = "channel_not_assigned"
	ReasonNotPublished     = "not_published"
	ReasonNoExternalID     = "no_external_id"
	ReasonStillReferenced  = "shared_external_id"
	ReasonAlreadyProcessed = "already_processed"
	ReasonEntityExists     = "entity_exists"
	ReasonEntityGone       = "entity_gone"
)

// SyncSwitch is the global kill switch. A killed switch stops all outbound
// propagation until it is revived.
type SyncSwitch struct {
	killed atomic.Bool
}

// NewSyncSwitch creates a switch in the given state
func NewSyncSwitch(killed bool) *SyncSwitch {
	s := &SyncSwitch{}
	s.killed.Store(killed)
	return s
}

// Kill stops propagation
func (s *SyncSwitch) Kill() {
	s.killed.Store(true)
}

// Revive resumes propagation
func (s *SyncSwitch) Revive() {
	s.killed.Store(false)
}

// Killed reports whether propagation is stopped
func (s *SyncSwitch) Killed() bool {
	return s.killed.Load()
}

// GateDecision is the verdict of the ChangeGate for one (change, platform)
type GateDecision struct {
	Allowed bool
	Reason  string
}

func allow() GateDecision { return GateDecision{Allowed: true} }

func deny(reason string) GateDecision { return GateDecision{Reason: reason} }

// ChangeGate decides whether a change is propagated to a platform at all.
// A denied change is recorded as skipped and never queued for later.
type ChangeGate struct {
	sw    *SyncSwitch
	guard *LoopGuard
}

// NewChangeGate creates a gate
func NewChangeGate(sw *SyncSwitch, guard *LoopGuard) *ChangeGate {
	if sw == nil {
		sw = NewSyncSwitch(false)
	}
	return &ChangeGate{sw: sw, guard: guard}
}

// Switch returns the kill switch the gate reads
func (g *ChangeGate) Switch() *SyncSwitch {
	return g.sw
}

// CheckUpsert gates a create or update of e on platform p
func (g *ChangeGate) CheckUpsert(e *catalog.Entity, p integration.PlatformConfig, sc shared.SyncContext) GateDecision {
	if d := g.checkCommon(e.Kind, p, sc); !d.Allowed {
		return d
	}
	if !e.HasChannel(p.Code.String()) {
		return deny(ReasonNoChannel)
	}
	if !e.IsPublished() {
		return deny(ReasonNotPublished)
	}
	return allow()
}

// CheckDelete gates the remote delete of a hard-deleted entity on platform p.
// Only a platform holding an id of the entity has anything to delete.
func (g *ChangeGate) CheckDelete(t *catalog.Tombstone, p integration.PlatformConfig, sc shared.SyncContext) GateDecision {
	if d := g.checkCommon(t.Kind, p, sc); !d.Allowed {
		return d
	}
	if !t.ExternalIDs.Has(p.Code.String()) {
		return deny(ReasonNoExternalID)
	}
	return allow()
}

func (g *ChangeGate) checkCommon(kind catalog.EntityKind, p integration.PlatformConfig, sc shared.SyncContext) GateDecision {
	if g.sw.Killed() {
		return deny(ReasonKillSwitch)
	}
	if g.guard != nil && g.guard.SkipOrigin(sc, p.Code) {
		return deny(ReasonOrigin)
	}
	if !p.Eligible() {
		return deny(ReasonIneligible)
	}
	if !p.Supports(kind) {
		return deny(ReasonUnsupportedKind)
	}
	return allow()
}
