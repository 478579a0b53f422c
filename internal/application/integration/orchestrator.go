package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"github.com/erp/catalogsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Report summarizes one reconciliation of one entity
type Report struct {
	EventID   uuid.UUID
	Entity    catalog.EntityRef
	Operation integration.SyncOperation
	Attempts  []*integration.SyncAttempt
	Cascaded  int
}

// Failed returns the number of failed attempts
func (r *Report) Failed() int {
	n := 0
	for _, a := range r.Attempts {
		if a.Outcome == integration.SyncOutcomeFailed {
			n++
		}
	}
	return n
}

// Attempt returns the attempt made for platform
func (r *Report) Attempt(platform integration.PlatformCode) (*integration.SyncAttempt, bool) {
	for _, a := range r.Attempts {
		if a.Platform == platform {
			return a, true
		}
	}
	return nil, false
}

// Orchestrator is the entry point of reconciliation. For every catalog change
// it asks the ChangeGate per platform, runs the platform adapters that pass and
// then cascades referenced-entity changes to their dependents. Reconciliations
// of the same entity never overlap.
//
// Platform failures are recorded as failed attempts and do not fail the
// handler; the canonical write that raised the event stays committed and the
// re-sync sweep retries the entity later.
type Orchestrator struct {
	platforms *integration.Platforms
	adapters  map[integration.PlatformCode]*PlatformAdapter
	gate      *ChangeGate
	entities  catalog.EntityReader
	cascade   *CascadePropagator
	attempts  integration.SyncAttemptRepository
	publisher integration.AttemptPublisher
	metrics   *telemetry.SyncMetrics
	locks     *entityLocks
	logger    *zap.Logger
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithAttemptRepository persists every attempt
func WithAttemptRepository(repo integration.SyncAttemptRepository) OrchestratorOption {
	return func(o *Orchestrator) {
		o.attempts = repo
	}
}

// WithAttemptPublisher publishes every attempt
func WithAttemptPublisher(p integration.AttemptPublisher) OrchestratorOption {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithOrchestratorMetrics records attempts in metrics
func WithOrchestratorMetrics(m *telemetry.SyncMetrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithOrchestratorLogger sets the logger
func WithOrchestratorLogger(l *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// NewOrchestrator creates an orchestrator over the adapters of the configured platforms
func NewOrchestrator(
	platforms *integration.Platforms,
	adapters []*PlatformAdapter,
	gate *ChangeGate,
	entities catalog.EntityReader,
	cascade *CascadePropagator,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		platforms: platforms,
		adapters:  make(map[integration.PlatformCode]*PlatformAdapter, len(adapters)),
		gate:      gate,
		entities:  entities,
		cascade:   cascade,
		locks:     newEntityLocks(),
		logger:    zap.NewNop(),
	}
	for _, a := range adapters {
		o.adapters[a.Code()] = a
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// EventTypes subscribes the orchestrator to every catalog entity event
func (o *Orchestrator) EventTypes() []string {
	return []string{catalog.EventTypeEntityAny}
}

// Handle reconciles the entity a catalog event is about
func (o *Orchestrator) Handle(ctx context.Context, event shared.DomainEvent) error {
	changed, ok := event.(catalog.EntityChangedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}
	sc := changed.Sync()
	if sc.EventID == uuid.Nil {
		sc.EventID = event.EventID()
	}

	var err error
	if deleted, ok := event.(*catalog.EntityDeletedEvent); ok {
		_, err = o.ReconcileDelete(ctx, &deleted.Tombstone, sc)
	} else {
		_, err = o.Reconcile(ctx, changed.Entity().ID, sc)
	}
	return err
}

// Reconcile brings every platform in line with the current state of the entity
// and, unless sc marks a cascade, re-syncs its dependents
func (o *Orchestrator) Reconcile(ctx context.Context, entityID uuid.UUID, sc shared.SyncContext) (*Report, error) {
	ctx = logger.WithSyncEvent(ctx, sc.EventID.String(), entityID.String())
	ctx, span := telemetry.StartSpan(ctx, "reconcile.upsert",
		"entity.id", entityID.String(),
		"sync.trigger", string(sc.Trigger),
		"sync.cascade", sc.Cascade,
	)
	defer span.End()

	report := &Report{EventID: sc.EventID, Operation: integration.SyncOpUpsert}

	unlock, err := o.locks.lock(ctx, entityID)
	if err != nil {
		return report, err
	}
	e, err := o.entities.FindByID(ctx, entityID)
	if err != nil {
		unlock()
		if errors.Is(err, shared.ErrNotFound) {
			// Deleted since the change was raised; its delete event takes over
			o.log(ctx).Debug("entity gone before reconciliation", zap.String("reason", ReasonEntityGone))
			return report, nil
		}
		telemetry.RecordError(span, err)
		return report, fmt.Errorf("load entity: %w", err)
	}
	report.Entity = e.Ref()

	for _, p := range o.platforms.All() {
		decision := o.gate.CheckUpsert(e, p, sc)
		adapter, ok := o.adapters[p.Code]
		if decision.Allowed && !ok {
			decision = deny(ReasonIneligible)
		}
		relevant := e.HasChannel(p.Code.String()) || e.ExternalIDs.Has(p.Code.String())
		if !decision.Allowed {
			if relevant {
				o.skip(ctx, report, p.Code, sc, decision.Reason)
			}
			continue
		}

		attempt := o.newAttempt(report, p.Code, sc)
		start := time.Now()
		var res AdapterResult
		telemetry.WithProfilingLabels(ctx, telemetry.SyncLabels(p.Code.String(), string(e.Kind), "upsert"), func(ctx context.Context) {
			res, err = adapter.Upsert(ctx, e)
		})
		o.finish(ctx, attempt, res, err, time.Since(start))
	}
	unlock()

	if e.Kind.Referenced() && o.cascade != nil {
		n, err := o.cascade.Propagate(ctx, e.ID, sc, o)
		if err != nil {
			o.log(ctx).Warn("cascade failed", zap.Error(err))
		}
		report.Cascaded = n
	}
	return report, nil
}

// ReconcileDelete removes the remote copies of a hard-deleted entity and
// re-syncs the entities that referenced it
func (o *Orchestrator) ReconcileDelete(ctx context.Context, t *catalog.Tombstone, sc shared.SyncContext) (*Report, error) {
	ctx = logger.WithSyncEvent(ctx, sc.EventID.String(), t.EntityID.String())
	ctx, span := telemetry.StartSpan(ctx, "reconcile.delete",
		"entity.id", t.EntityID.String(),
		"sync.trigger", string(sc.Trigger),
	)
	defer span.End()

	report := &Report{
		EventID:   sc.EventID,
		Entity:    catalog.EntityRef{ID: t.EntityID, Kind: t.Kind, NaturalKey: t.NaturalKey},
		Operation: integration.SyncOpDelete,
	}

	unlock, err := o.locks.lock(ctx, t.EntityID)
	if err != nil {
		return report, err
	}
	for _, p := range o.platforms.All() {
		decision := o.gate.CheckDelete(t, p, sc)
		adapter, ok := o.adapters[p.Code]
		if decision.Allowed && !ok {
			decision = deny(ReasonIneligible)
		}
		if !decision.Allowed {
			if t.ExternalIDs.Has(p.Code.String()) {
				o.skip(ctx, report, p.Code, sc, decision.Reason)
			}
			continue
		}

		attempt := o.newAttempt(report, p.Code, sc)
		start := time.Now()
		var res AdapterResult
		telemetry.WithProfilingLabels(ctx, telemetry.SyncLabels(p.Code.String(), string(t.Kind), "delete"), func(ctx context.Context) {
			res, err = adapter.Delete(ctx, t, sc)
		})
		o.finish(ctx, attempt, res, err, time.Since(start))
	}
	unlock()

	if t.Kind.Referenced() && o.cascade != nil {
		n, err := o.cascade.Propagate(ctx, t.EntityID, sc, o)
		if err != nil {
			o.log(ctx).Warn("cascade failed", zap.Error(err))
		}
		report.Cascaded = n
	}
	return report, nil
}

func (o *Orchestrator) newAttempt(report *Report, platform integration.PlatformCode, sc shared.SyncContext) *integration.SyncAttempt {
	a := integration.NewSyncAttempt(sc.EventID, platform, report.Entity, report.Operation)
	a.Cascade = sc.Cascade
	a.Trigger = string(sc.Trigger)
	report.Attempts = append(report.Attempts, a)
	return a
}

func (o *Orchestrator) skip(ctx context.Context, report *Report, platform integration.PlatformCode, sc shared.SyncContext, reason string) {
	a := o.newAttempt(report, platform, sc).Skip(reason)
	o.log(ctx).Info("change not propagated",
		zap.String("platform", platform.String()),
		zap.String("operation", string(report.Operation)),
		zap.String("reason", reason),
	)
	o.record(ctx, a)
}

func (o *Orchestrator) finish(ctx context.Context, a *integration.SyncAttempt, res AdapterResult, err error, took time.Duration) {
	a.Calls = res.Calls
	a.Duration = took
	a.Created = res.Created
	switch {
	case err != nil:
		a.ExternalID = res.ExternalID
		a.Fail(err)
		fields := []zap.Field{
			zap.String("platform", a.Platform.String()),
			zap.String("operation", string(a.Operation)),
			zap.Int("calls", a.Calls),
			zap.Error(err),
		}
		var pe *integration.PlatformError
		if errors.As(err, &pe) {
			fields = append(fields,
				zap.Int("status", pe.StatusCode),
				zap.String("platform_code", pe.Code),
				zap.String("detail", pe.Detail),
			)
		}
		o.log(ctx).Error("reconciliation failed", fields...)
	case res.Skipped != "":
		a.ExternalID = res.ExternalID
		a.Skip(res.Skipped)
		o.log(ctx).Info("platform call declined",
			zap.String("platform", a.Platform.String()),
			zap.String("operation", string(a.Operation)),
			zap.String("reason", res.Skipped),
		)
	default:
		a.Succeed(res.ExternalID)
		o.log(ctx).Info("reconciled",
			zap.String("platform", a.Platform.String()),
			zap.String("operation", string(a.Operation)),
			zap.String("external_id", res.ExternalID.String()),
			zap.Bool("created", res.Created),
			zap.Int("calls", a.Calls),
		)
	}
	o.record(ctx, a)
}

// record persists, measures and publishes an attempt. None of these may fail
// the reconciliation.
func (o *Orchestrator) record(ctx context.Context, a *integration.SyncAttempt) {
	o.metrics.RecordAttempt(a)
	if o.attempts != nil {
		if err := o.attempts.Save(ctx, a); err != nil {
			o.log(ctx).Warn("failed to save sync attempt", zap.Error(err))
		}
	}
	if o.publisher != nil {
		if err := o.publisher.PublishAttempt(ctx, a); err != nil {
			o.log(ctx).Warn("failed to publish sync attempt", zap.Error(err))
		}
	}
}

func (o *Orchestrator) log(ctx context.Context) *logger.ContextLogger {
	return logger.WithLogger(ctx, o.logger)
}
