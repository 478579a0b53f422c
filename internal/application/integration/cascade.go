package integration

import (
	"context"
	"fmt"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reconciler re-synchronizes one canonical entity to every platform
type Reconciler interface {
	Reconcile(ctx context.Context, entityID uuid.UUID, sc shared.SyncContext) (*Report, error)
}

// CascadePropagator re-synchronizes the dependents of a changed referenced
// entity. Fan-out is one level deep: a re-sync started by a cascade never
// cascades again.
type CascadePropagator struct {
	relations catalog.RelationFinder
	metrics   *telemetry.SyncMetrics
	logger    *zap.Logger
}

// NewCascadePropagator creates a propagator
func NewCascadePropagator(relations catalog.RelationFinder, metrics *telemetry.SyncMetrics, logger *zap.Logger) *CascadePropagator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CascadePropagator{relations: relations, metrics: metrics, logger: logger}
}

// Propagate re-syncs every dependent of referencedID through target and returns
// how many re-syncs were started. A failing dependent does not stop the others.
func (p *CascadePropagator) Propagate(ctx context.Context, referencedID uuid.UUID, sc shared.SyncContext, target Reconciler) (int, error) {
	if sc.Cascade {
		return 0, nil
	}

	edges, err := p.relations.FindDependents(ctx, referencedID)
	if err != nil {
		return 0, fmt.Errorf("find dependents of %s: %w", referencedID, err)
	}

	seen := make(map[uuid.UUID]struct{}, len(edges))
	started := 0
	for _, edge := range edges {
		if _, dup := seen[edge.DependentID]; dup || edge.DependentID == referencedID {
			continue
		}
		seen[edge.DependentID] = struct{}{}
		if err := ctx.Err(); err != nil {
			return started, err
		}

		started++
		if _, err := target.Reconcile(ctx, edge.DependentID, sc.ForCascade(edge.DependentID)); err != nil {
			p.logger.Warn("cascade re-sync failed",
				zap.String("referenced_id", referencedID.String()),
				zap.String("dependent_id", edge.DependentID.String()),
				zap.Error(err),
			)
		}
	}

	p.metrics.ObserveCascade(started)
	if started > 0 {
		p.logger.Info("cascaded change to dependents",
			zap.String("referenced_id", referencedID.String()),
			zap.Int("dependents", started),
		)
	}
	return started, nil
}
