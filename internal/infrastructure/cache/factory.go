package cache

import (
	"context"
	"fmt"

	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/infrastructure/config"
	"go.uber.org/zap"
)

// IdempotencyStoreFactory picks the marker backend shared by the loop guard,
// the delete markers and the event dedup. Redis is preferred; the in-memory
// store only works when a single instance runs.
type IdempotencyStoreFactory struct {
	redisConfig   config.RedisConfig
	keyPrefix     string
	allowFallback bool
	logger        *zap.Logger
}

// IdempotencyStoreFactoryOption configures the factory
type IdempotencyStoreFactoryOption func(*IdempotencyStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to the
// in-memory store (default) or fails startup
func WithInMemoryFallback(allow bool) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.allowFallback = allow
	}
}

// WithKeyPrefix namespaces the Redis keys, e.g. per environment
func WithKeyPrefix(prefix string) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.keyPrefix = prefix
	}
}

// NewIdempotencyStoreFactory creates a new factory
func NewIdempotencyStoreFactory(cfg config.RedisConfig, opts ...IdempotencyStoreFactoryOption) *IdempotencyStoreFactory {
	f := &IdempotencyStoreFactory{
		redisConfig:   cfg,
		keyPrefix:     DefaultMarkerPrefix,
		allowFallback: true,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore connects to Redis, falling back to memory when allowed
func (f *IdempotencyStoreFactory) CreateStore() (shared.IdempotencyStore, error) {
	client, err := NewRedisClient(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err == nil {
		f.logger.Info("Using Redis marker store",
			zap.String("addr", client.Options().Addr),
			zap.String("prefix", f.keyPrefix),
		)
		return NewRedisIdempotencyStoreWithClient(client, f.keyPrefix), nil
	}

	if !f.allowFallback {
		return nil, fmt.Errorf("Redis required for sync markers but unavailable: %w", err)
	}
	f.logger.Warn("Redis unavailable, sync markers are process-local",
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(), nil
}

// HealthCheck returns a readiness check for store; the in-memory store is
// always ready
func HealthCheck(store shared.IdempotencyStore) func(ctx context.Context) error {
	rs, ok := store.(*RedisIdempotencyStore)
	if !ok {
		return func(context.Context) error { return nil }
	}
	return func(ctx context.Context) error {
		return rs.GetClient().Ping(ctx).Err()
	}
}
