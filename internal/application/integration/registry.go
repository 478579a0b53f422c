package integration

import (
	"context"
	"fmt"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IDSource records where a registered external id came from. Only values a
// platform returned may enter the registry.
type IDSource string

const (
	IDSourceCreated IDSource = "created" // returned by a create call
	IDSourceFound   IDSource = "found"   // discovered by natural-key search
	IDSourceInbound IDSource = "inbound" // carried by a platform webhook
)

func (s IDSource) valid() bool {
	return s == IDSourceCreated || s == IDSourceFound || s == IDSourceInbound
}

// Registry reads and writes the external-identifier map of canonical entities
type Registry struct {
	store  catalog.ExternalIDRegistry
	logger *zap.Logger
}

// NewRegistry creates a Registry over the entity store
func NewRegistry(store catalog.ExternalIDRegistry, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, logger: logger}
}

// Get returns the id registered for the entity on platform
func (r *Registry) Get(ctx context.Context, entityID uuid.UUID, platform integration.PlatformCode) (catalog.ExternalID, bool, error) {
	return r.store.GetExternalID(ctx, entityID, platform.String())
}

// Record registers id for the entity on platform
func (r *Registry) Record(ctx context.Context, entityID uuid.UUID, platform integration.PlatformCode, id catalog.ExternalID, source IDSource) error {
	if !source.valid() {
		return fmt.Errorf("%w: unknown id source %q", catalog.ErrInvalidExternalID, source)
	}
	if id.IsZero() {
		return fmt.Errorf("%w: empty id from %s on %s", catalog.ErrInvalidExternalID, source, platform)
	}
	if err := r.store.SetExternalID(ctx, entityID, platform.String(), id); err != nil {
		return fmt.Errorf("register external id: %w", err)
	}
	r.logger.Debug("external id registered",
		zap.String("entity_id", entityID.String()),
		zap.String("platform", platform.String()),
		zap.String("external_id", id.String()),
		zap.String("source", string(source)),
	)
	return nil
}

// Forget removes the entry of platform; the remote resource is known to be gone
func (r *Registry) Forget(ctx context.Context, entityID uuid.UUID, platform integration.PlatformCode) error {
	if err := r.store.ClearExternalID(ctx, entityID, platform.String()); err != nil {
		return fmt.Errorf("clear external id: %w", err)
	}
	r.logger.Debug("external id cleared",
		zap.String("entity_id", entityID.String()),
		zap.String("platform", platform.String()),
	)
	return nil
}
