package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Resync sweep defaults
const (
	DefaultSweepLookback = 7 * 24 * time.Hour
	DefaultSweepBatch    = 100
)

// ResyncTarget runs reconciliations on demand
type ResyncTarget interface {
	Reconciler
	ReconcileDelete(ctx context.Context, t *catalog.Tombstone, sc shared.SyncContext) (*Report, error)
}

// SweepResult summarizes one re-sync sweep
type SweepResult struct {
	Candidates int // (entity, platform) pairs whose latest attempt failed
	Resynced   int // entities reconciled again
	Failing    int // entities still failing on some platform
	Skipped    int // entities gone or deletes without tombstone
}

// ResyncService re-runs reconciliation outside the event flow: for one entity
// on request, and periodically for every entity whose latest attempt failed
type ResyncService struct {
	target     ResyncTarget
	entities   catalog.EntityReader
	tombstones catalog.TombstoneRepository
	attempts   integration.SyncAttemptRepository
	sw         *SyncSwitch
	lookback   time.Duration
	batch      int
	logger     *zap.Logger
}

// ResyncOption configures a ResyncService
type ResyncOption func(*ResyncService)

// WithSweepWindow sets how far back failed attempts are considered and how many per sweep
func WithSweepWindow(lookback time.Duration, batch int) ResyncOption {
	return func(s *ResyncService) {
		if lookback > 0 {
			s.lookback = lookback
		}
		if batch > 0 {
			s.batch = batch
		}
	}
}

// WithResyncLogger sets the logger
func WithResyncLogger(l *zap.Logger) ResyncOption {
	return func(s *ResyncService) {
		s.logger = l
	}
}

// NewResyncService creates a ResyncService
func NewResyncService(
	target ResyncTarget,
	entities catalog.EntityReader,
	tombstones catalog.TombstoneRepository,
	attempts integration.SyncAttemptRepository,
	sw *SyncSwitch,
	opts ...ResyncOption,
) *ResyncService {
	s := &ResyncService{
		target:     target,
		entities:   entities,
		tombstones: tombstones,
		attempts:   attempts,
		sw:         sw,
		lookback:   DefaultSweepLookback,
		batch:      DefaultSweepBatch,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResyncEntity reconciles one existing entity to every platform now
func (s *ResyncService) ResyncEntity(ctx context.Context, id uuid.UUID) (*Report, error) {
	exists, err := s.entities.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, shared.ErrNotFound
	}
	return s.target.Reconcile(ctx, id, shared.NewSyncContext(shared.SyncTriggerResync))
}

// Sweep reconciles again the entities whose latest attempt on some platform
// failed within the lookback window. Nothing runs while the kill switch is on.
func (s *ResyncService) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	if s.sw != nil && s.sw.Killed() {
		s.logger.Info("resync sweep skipped, kill switch is on")
		return result, nil
	}

	failed, err := s.attempts.FindFailedLatest(ctx, time.Now().Add(-s.lookback), s.batch)
	if err != nil {
		return result, fmt.Errorf("find failed attempts: %w", err)
	}
	result.Candidates = len(failed)

	// One reconciliation covers every platform of an entity
	seen := make(map[uuid.UUID]struct{}, len(failed))
	for _, a := range failed {
		if _, dup := seen[a.Entity.ID]; dup {
			continue
		}
		seen[a.Entity.ID] = struct{}{}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		report, err := s.resync(ctx, a)
		switch {
		case err != nil:
			return result, err
		case report == nil:
			result.Skipped++
		default:
			result.Resynced++
			if report.Failed() > 0 {
				result.Failing++
			}
		}
	}

	s.logger.Info("resync sweep finished",
		zap.Int("candidates", result.Candidates),
		zap.Int("resynced", result.Resynced),
		zap.Int("still_failing", result.Failing),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (s *ResyncService) resync(ctx context.Context, a *integration.SyncAttempt) (*Report, error) {
	sc := shared.NewSyncContext(shared.SyncTriggerResync)

	if a.Operation == integration.SyncOpDelete {
		t, err := s.tombstones.FindTombstone(ctx, a.Entity.ID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return s.target.ReconcileDelete(ctx, t, sc)
	}

	exists, err := s.entities.Exists(ctx, a.Entity.ID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return s.target.Reconcile(ctx, a.Entity.ID, sc)
}

// ListAttempts pages through the sync attempt log
func (s *ResyncService) ListAttempts(ctx context.Context, filter AttemptListFilter) ([]AttemptResponse, int64, error) {
	f := integration.AttemptFilter{
		Platform: integration.PlatformCode(filter.Platform),
		Outcome:  integration.SyncOutcome(filter.Outcome),
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	if filter.EntityID != "" {
		id, err := uuid.Parse(filter.EntityID)
		if err != nil {
			return nil, 0, shared.NewDomainError("INVALID_INPUT", "entity_id is not a valid uuid")
		}
		f.EntityID = &id
	}

	attempts, total, err := s.attempts.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return ToAttemptResponses(attempts), total, nil
}
