// Package retry wraps external platform calls in bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Config holds the backoff settings of a Policy
type Config struct {
	MaxAttempts         int
	InitialDelay        time.Duration
	MaxDelay            time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultConfig returns the default retry settings
func DefaultConfig() Config {
	return Config{
		MaxAttempts:         5,
		InitialDelay:        500 * time.Millisecond,
		MaxDelay:            10 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.1,
	}
}

// Policy retries an operation while it fails with a transient error.
// Delays start at InitialDelay, grow by Multiplier and are capped at
// MaxDelay; at most MaxAttempts calls are made. A Policy is safe for
// concurrent use.
type Policy struct {
	cfg       Config
	retryable func(error) bool
}

// Option configures a Policy
type Option func(*Policy)

// WithClassifier replaces the transient-error classifier
func WithClassifier(fn func(error) bool) Option {
	return func(p *Policy) {
		p.retryable = fn
	}
}

// NewPolicy creates a policy; zero fields of cfg take their defaults
func NewPolicy(cfg Config, opts ...Option) *Policy {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.RandomizationFactor < 0 || cfg.RandomizationFactor >= 1 {
		cfg.RandomizationFactor = 0
	}

	p := &Policy{cfg: cfg, retryable: integration.IsTransient}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective settings
func (p *Policy) Config() Config {
	return p.cfg
}

func (p *Policy) newBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.cfg.InitialDelay,
		RandomizationFactor: p.cfg.RandomizationFactor,
		Multiplier:          p.cfg.Multiplier,
		MaxInterval:         p.cfg.MaxDelay,
	}
	b.Reset()
	return b
}

// Do runs op until it succeeds, fails permanently or MaxAttempts calls were
// made. It returns the result, the number of calls made and the last error.
// Cancelling ctx stops the wait between attempts.
func Do[T any](ctx context.Context, p *Policy, op func(context.Context) (T, error)) (T, int, error) {
	calls := 0
	var lastErr error

	operation := func() (T, error) {
		calls++
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !p.retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, next time.Duration) {
		logger.L(ctx).Warn("retrying platform call",
			zap.Int("attempt", calls),
			zap.Int("max_attempts", p.cfg.MaxAttempts),
			zap.Duration("delay", next),
			zap.Error(err),
		)
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(uint(p.cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		// A cancelled wait reports the context error; keep the platform error visible
		if lastErr != nil && ctx.Err() != nil && !errors.Is(err, lastErr) {
			err = errors.Join(err, lastErr)
		}
	}
	return res, calls, err
}

// Run is Do for operations without a result
func Run(ctx context.Context, p *Policy, op func(context.Context) error) (int, error) {
	_, calls, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return calls, err
}
