package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/infrastructure/cache"
	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"github.com/erp/catalogsync/internal/infrastructure/retry"
	"github.com/erp/catalogsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultDeleteMarkerTTL is how long a processed delete event is remembered
const DefaultDeleteMarkerTTL = 7 * 24 * time.Hour

// SlotWaiter hands out request slots per platform
type SlotWaiter interface {
	WaitForSlot(ctx context.Context, platform integration.PlatformCode) error
}

// AdapterStore is the part of the entity store the adapters read
type AdapterStore interface {
	catalog.EntityReader
	catalog.TombstoneRepository
	FindSharing(ctx context.Context, platform string, kind catalog.EntityKind, externalID catalog.ExternalID, exclude uuid.UUID) ([]uuid.UUID, error)
}

// AdapterDeps are the collaborators shared by the adapters of every platform
type AdapterDeps struct {
	Store           AdapterStore
	Registry        *Registry
	Limiter         SlotWaiter
	Policy          *retry.Policy
	Cache           *cache.LookupCache
	Markers         shared.IdempotencyStore
	Guard           *LoopGuard
	Metrics         *telemetry.SyncMetrics
	DeleteMarkerTTL time.Duration
	Logger          *zap.Logger
}

// AdapterResult describes what one adapter invocation did
type AdapterResult struct {
	ExternalID catalog.ExternalID
	Created    bool
	Skipped    string // reason when the adapter declined to call the platform
	Calls      int    // platform calls made, retries included
}

// PlatformAdapter reconciles canonical entities with one platform: it builds
// the platform payload, performs the idempotent create-or-update and the
// reference-counted delete. Every platform call waits for a rate limiter slot
// and runs inside the retry policy.
type PlatformAdapter struct {
	client integration.PlatformClient
	config integration.PlatformConfig
	deps   AdapterDeps
	logger *zap.Logger
}

// NewPlatformAdapter creates the adapter of one platform
func NewPlatformAdapter(client integration.PlatformClient, config integration.PlatformConfig, deps AdapterDeps) *PlatformAdapter {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Policy == nil {
		deps.Policy = retry.NewPolicy(retry.DefaultConfig())
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewLookupCache(0, 0)
	}
	if deps.DeleteMarkerTTL <= 0 {
		deps.DeleteMarkerTTL = DefaultDeleteMarkerTTL
	}
	return &PlatformAdapter{
		client: client,
		config: config,
		deps:   deps,
		logger: logger.ForPlatform(deps.Logger, config.Code.String()),
	}
}

// Code returns the platform code
func (a *PlatformAdapter) Code() integration.PlatformCode {
	return a.config.Code
}

// Config returns the platform config
func (a *PlatformAdapter) Config() integration.PlatformConfig {
	return a.config
}

// Upsert creates or updates the remote copy of e. A registered id is updated;
// otherwise the platform is searched by natural key and a match is adopted;
// only when nothing is found a new resource is created. Ids enter the registry
// only after the platform confirmed them.
func (a *PlatformAdapter) Upsert(ctx context.Context, e *catalog.Entity) (AdapterResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "adapter.upsert",
		"platform", a.config.Code.String(),
		"entity.id", e.ID.String(),
		"entity.kind", string(e.Kind),
	)
	defer span.End()

	var res AdapterResult
	if !a.client.Supports(e.Kind) {
		res.Skipped = ReasonUnsupportedKind
		return res, nil
	}

	refs, err := a.resolveRefs(ctx, e)
	if err != nil {
		telemetry.RecordError(span, err)
		return res, err
	}
	payload, err := integration.BuildPayload(a.config.Kind, e, refs)
	if err != nil {
		telemetry.RecordError(span, err)
		return res, err
	}
	lookup := integration.LookupOf(e)

	id, ok, err := a.deps.Registry.Get(ctx, e.ID, a.config.Code)
	if err != nil {
		return res, err
	}
	if ok {
		err := a.call(ctx, &res, func(ctx context.Context) error {
			return a.client.Update(ctx, lookup, id, payload)
		})
		switch {
		case err == nil:
			return a.written(ctx, e, id, res), nil
		case !integration.IsNotFound(err):
			telemetry.RecordError(span, err)
			return res, err
		}
		// The remote copy vanished; restore the registry invariant and look again
		a.logger.Warn("registered remote resource is gone",
			zap.String("entity_id", e.ID.String()),
			zap.String("external_id", id.String()),
		)
		a.deps.Cache.Invalidate(a.config.Code, lookup)
		if err := a.deps.Registry.Forget(ctx, e.ID, a.config.Code); err != nil {
			return res, err
		}
	}

	found, hit, err := a.find(ctx, &res, lookup)
	if err != nil {
		telemetry.RecordError(span, err)
		return res, err
	}
	if hit {
		err := a.call(ctx, &res, func(ctx context.Context) error {
			return a.client.Update(ctx, lookup, found, payload)
		})
		switch {
		case err == nil:
			if err := a.deps.Registry.Record(ctx, e.ID, a.config.Code, found, IDSourceFound); err != nil {
				return res, err
			}
			return a.written(ctx, e, found, res), nil
		case !integration.IsNotFound(err):
			telemetry.RecordError(span, err)
			return res, err
		}
		// A stale search hit; fall through to create
		a.deps.Cache.Invalidate(a.config.Code, lookup)
	}

	created, err := callValue(ctx, a, &res, func(ctx context.Context) (catalog.ExternalID, error) {
		return a.client.Create(ctx, lookup, payload)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return res, err
	}
	a.deps.Cache.Invalidate(a.config.Code, lookup)
	if err := a.deps.Registry.Record(ctx, e.ID, a.config.Code, created, IDSourceCreated); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// Deleted while the create was in flight; nothing will ever delete
			// this copy, so take it back now
			return a.withdraw(ctx, e, lookup, created, res)
		}
		// The next upsert finds the resource by natural key and adopts it
		a.logger.Error("created remote resource but could not register its id",
			zap.String("entity_id", e.ID.String()),
			zap.String("external_id", created.String()),
			zap.Error(err),
		)
		return res, err
	}
	res.Created = true
	return a.written(ctx, e, created, res), nil
}

// withdraw deletes a resource created for an entity that no longer exists
func (a *PlatformAdapter) withdraw(ctx context.Context, e *catalog.Entity, lookup integration.Lookup, created catalog.ExternalID, res AdapterResult) (AdapterResult, error) {
	a.logger.Warn("entity deleted during create, removing remote copy",
		zap.String("entity_id", e.ID.String()),
		zap.String("external_id", created.String()),
	)
	err := a.call(ctx, &res, func(ctx context.Context) error {
		return a.client.Delete(ctx, lookup, created)
	})
	if err != nil {
		a.logger.Error("could not remove remote copy of deleted entity",
			zap.String("entity_id", e.ID.String()),
			zap.String("external_id", created.String()),
			zap.Error(err),
		)
		return res, fmt.Errorf("withdraw %s: %w", created, err)
	}
	res.ExternalID = created
	res.Skipped = ReasonEntityGone
	return res, nil
}

// Delete removes the remote copy of a hard-deleted entity. The delete is
// declined while the entity still exists or while another canonical entity
// maps to the same remote id; a remote 404 counts as done. Each delete event
// is processed at most once per platform.
func (a *PlatformAdapter) Delete(ctx context.Context, t *catalog.Tombstone, sc shared.SyncContext) (res AdapterResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "adapter.delete",
		"platform", a.config.Code.String(),
		"entity.id", t.EntityID.String(),
		"entity.kind", string(t.Kind),
	)
	defer span.End()

	id, ok := t.ExternalIDs.Get(a.config.Code.String())
	if !ok {
		res.Skipped = ReasonNoExternalID
		return res, nil
	}
	res.ExternalID = id

	token := sc.Token(a.config.Code.String(), string(integration.SyncOpDelete))
	fresh, err := a.deps.Markers.MarkProcessed(ctx, token, a.deps.DeleteMarkerTTL)
	if err != nil {
		return res, fmt.Errorf("mark delete event: %w", err)
	}
	if !fresh {
		res.Skipped = ReasonAlreadyProcessed
		return res, nil
	}
	defer func() {
		// A failed delete may run again on redelivery or re-sync
		if err != nil {
			if rerr := a.deps.Markers.Release(ctx, token); rerr != nil {
				a.logger.Warn("failed to release delete marker", zap.String("token", token), zap.Error(rerr))
			}
		}
	}()

	gone, err := a.confirmGone(ctx, t)
	if err != nil {
		return res, err
	}
	if !gone {
		a.logger.Warn("entity still exists, remote delete declined",
			zap.String("entity_id", t.EntityID.String()),
			zap.String("external_id", id.String()),
		)
		res.Skipped = ReasonEntityExists
		return res, nil
	}

	sharing, err := a.deps.Store.FindSharing(ctx, a.config.Code.String(), t.Kind, id, t.EntityID)
	if err != nil {
		return res, fmt.Errorf("count references of %s: %w", id, err)
	}
	if len(sharing) > 0 {
		a.logger.Info("remote resource still referenced, delete declined",
			zap.String("entity_id", t.EntityID.String()),
			zap.String("external_id", id.String()),
			zap.Int("references", len(sharing)),
		)
		res.Skipped = ReasonStillReferenced
		return res, nil
	}

	lookup := integration.LookupOfTombstone(t)
	err = a.call(ctx, &res, func(ctx context.Context) error {
		return a.client.Delete(ctx, lookup, id)
	})
	if err != nil && !integration.IsNotFound(err) {
		telemetry.RecordError(span, err)
		return res, err
	}
	a.deps.Cache.Invalidate(a.config.Code, lookup)
	return res, nil
}

// confirmGone checks the tombstone written with the hard delete and that no
// row with the entity id is left
func (a *PlatformAdapter) confirmGone(ctx context.Context, t *catalog.Tombstone) (bool, error) {
	if _, err := a.deps.Store.FindTombstone(ctx, t.EntityID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load tombstone: %w", err)
	}
	exists, err := a.deps.Store.Exists(ctx, t.EntityID)
	if err != nil {
		return false, fmt.Errorf("check entity existence: %w", err)
	}
	return !exists, nil
}

func (a *PlatformAdapter) find(ctx context.Context, res *AdapterResult, lookup integration.Lookup) (catalog.ExternalID, bool, error) {
	if id, ok := a.deps.Cache.Get(a.config.Code, lookup); ok {
		return id, true, nil
	}
	type hit struct {
		id    catalog.ExternalID
		found bool
	}
	h, err := callValue(ctx, a, res, func(ctx context.Context) (hit, error) {
		id, found, err := a.client.Find(ctx, lookup)
		return hit{id: id, found: found}, err
	})
	if err != nil {
		return "", false, err
	}
	if !h.found || h.id.IsZero() {
		return "", false, nil
	}
	a.deps.Cache.Add(a.config.Code, lookup, h.id)
	return h.id, true, nil
}

// resolveRefs loads the referenced entities of e and keeps those with an id on this platform
func (a *PlatformAdapter) resolveRefs(ctx context.Context, e *catalog.Entity) (integration.ResolvedRefs, error) {
	ids := e.Detail.References()
	if len(ids) == 0 {
		return nil, nil
	}
	referenced, err := a.deps.Store.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load referenced entities: %w", err)
	}
	refs := make(integration.ResolvedRefs, len(referenced))
	for _, r := range referenced {
		id, ok := r.ExternalIDs.Get(a.config.Code.String())
		if !ok {
			a.logger.Debug("referenced entity not on platform yet",
				zap.String("entity_id", e.ID.String()),
				zap.String("referenced_id", r.ID.String()),
			)
			continue
		}
		ref := integration.ResolvedRef{Kind: r.Kind, Name: r.Name, ExternalID: id}
		if td, ok := r.Detail.(catalog.TermDetail); ok {
			ref.Taxonomy = td.Taxonomy
		}
		refs[r.ID] = ref
	}
	return refs, nil
}

func (a *PlatformAdapter) written(ctx context.Context, e *catalog.Entity, id catalog.ExternalID, res AdapterResult) AdapterResult {
	res.ExternalID = id
	a.markOutbound(ctx, e.Kind, id)
	return res
}

func (a *PlatformAdapter) markOutbound(ctx context.Context, kind catalog.EntityKind, id catalog.ExternalID) {
	if a.deps.Guard == nil {
		return
	}
	if err := a.deps.Guard.MarkOutbound(ctx, a.config.Code, kind, id); err != nil {
		a.logger.Warn("failed to record outbound write", zap.Error(err))
	}
}

func (a *PlatformAdapter) call(ctx context.Context, res *AdapterResult, fn func(context.Context) error) error {
	_, err := callValue(ctx, a, res, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// callValue runs one platform call behind the rate limiter and inside the retry policy
func callValue[T any](ctx context.Context, a *PlatformAdapter, res *AdapterResult, fn func(context.Context) (T, error)) (T, error) {
	tries := 0
	v, calls, err := retry.Do(ctx, a.deps.Policy, func(ctx context.Context) (T, error) {
		tries++
		if tries > 1 {
			a.deps.Metrics.IncRetry(a.config.Code)
		}
		if a.deps.Limiter != nil {
			if err := a.deps.Limiter.WaitForSlot(ctx, a.config.Code); err != nil {
				var zero T
				return zero, err
			}
		}
		return fn(ctx)
	})
	res.Calls += calls
	return v, err
}
