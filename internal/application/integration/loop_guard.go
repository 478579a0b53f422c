package integration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Loop guard defaults
const (
	DefaultEchoWindow  = 2 * time.Minute
	DefaultDeliveryTTL = 72 * time.Hour
)

// Suppression reasons reported to metrics
const (
	suppressedOrigin   = "origin"
	suppressedDelivery = "duplicate_delivery"
	suppressedEcho     = "echo"
)

// LoopGuard stops platform -> canonical -> platform cycles. Writes that came
// from a platform carry its code as origin and are never sent back there; a
// webhook delivery is processed once; and the webhook a platform fires for a
// write we just made is recognised as our own echo and dropped.
// Markers live in an IdempotencyStore so every instance sees them.
type LoopGuard struct {
	store       shared.IdempotencyStore
	echoWindow  time.Duration
	deliveryTTL time.Duration
	metrics     *telemetry.SyncMetrics
	logger      *zap.Logger
}

// LoopGuardOption configures a LoopGuard
type LoopGuardOption func(*LoopGuard)

// WithEchoWindow sets how long an outbound write suppresses its inbound echo
func WithEchoWindow(d time.Duration) LoopGuardOption {
	return func(g *LoopGuard) {
		if d > 0 {
			g.echoWindow = d
		}
	}
}

// WithDeliveryTTL sets how long a webhook delivery id is remembered
func WithDeliveryTTL(d time.Duration) LoopGuardOption {
	return func(g *LoopGuard) {
		if d > 0 {
			g.deliveryTTL = d
		}
	}
}

// WithLoopGuardMetrics reports suppressions to metrics
func WithLoopGuardMetrics(m *telemetry.SyncMetrics) LoopGuardOption {
	return func(g *LoopGuard) {
		g.metrics = m
	}
}

// WithLoopGuardLogger sets the logger
func WithLoopGuardLogger(logger *zap.Logger) LoopGuardOption {
	return func(g *LoopGuard) {
		g.logger = logger
	}
}

// NewLoopGuard creates a guard backed by store
func NewLoopGuard(store shared.IdempotencyStore, opts ...LoopGuardOption) *LoopGuard {
	g := &LoopGuard{
		store:       store,
		echoWindow:  DefaultEchoWindow,
		deliveryTTL: DefaultDeliveryTTL,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SkipOrigin reports whether the write described by sc came from platform
func (g *LoopGuard) SkipOrigin(sc shared.SyncContext, platform integration.PlatformCode) bool {
	if !sc.IsOrigin(platform.String()) {
		return false
	}
	g.metrics.IncLoopSuppressed(suppressedOrigin)
	return true
}

// AcceptDelivery marks a webhook delivery id as seen. It returns false when the
// delivery was already accepted. An empty id is always accepted.
func (g *LoopGuard) AcceptDelivery(ctx context.Context, platform integration.PlatformCode, deliveryID string) (bool, error) {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return true, nil
	}
	fresh, err := g.store.MarkProcessed(ctx, deliveryKey(platform, deliveryID), g.deliveryTTL)
	if err != nil {
		return false, fmt.Errorf("mark webhook delivery: %w", err)
	}
	if !fresh {
		g.metrics.IncLoopSuppressed(suppressedDelivery)
		g.logger.Info("duplicate webhook delivery dropped",
			zap.String("platform", platform.String()),
			zap.String("delivery_id", deliveryID),
		)
	}
	return fresh, nil
}

// ReleaseDelivery forgets a delivery whose processing failed, so a redelivery is accepted
func (g *LoopGuard) ReleaseDelivery(ctx context.Context, platform integration.PlatformCode, deliveryID string) error {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return nil
	}
	return g.store.Release(ctx, deliveryKey(platform, deliveryID))
}

// MarkOutbound records that we just wrote the remote resource id on platform.
// Every write restarts the echo window, so the window always follows our
// latest write and a real remote edit after it expires is not mistaken for
// an echo.
func (g *LoopGuard) MarkOutbound(ctx context.Context, platform integration.PlatformCode, kind catalog.EntityKind, id catalog.ExternalID) error {
	if id.IsZero() {
		return nil
	}
	if err := g.store.Mark(ctx, echoKey(platform, kind, id), g.echoWindow); err != nil {
		return fmt.Errorf("mark outbound write: %w", err)
	}
	return nil
}

// ConsumeEcho reports whether an inbound change of id on platform is the echo
// of our own recent write. The marker is consumed, so only one echo is dropped
// per outbound write.
func (g *LoopGuard) ConsumeEcho(ctx context.Context, platform integration.PlatformCode, kind catalog.EntityKind, id catalog.ExternalID) (bool, error) {
	key := echoKey(platform, kind, id)
	seen, err := g.store.IsProcessed(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check outbound marker: %w", err)
	}
	if !seen {
		return false, nil
	}
	if err := g.store.Release(ctx, key); err != nil {
		g.logger.Warn("failed to release echo marker", zap.String("key", key), zap.Error(err))
	}
	g.metrics.IncLoopSuppressed(suppressedEcho)
	return true, nil
}

func deliveryKey(platform integration.PlatformCode, deliveryID string) string {
	return "delivery:" + platform.String() + ":" + deliveryID
}

func echoKey(platform integration.PlatformCode, kind catalog.EntityKind, id catalog.ExternalID) string {
	return "echo:" + platform.String() + ":" + string(kind) + ":" + id.String()
}
