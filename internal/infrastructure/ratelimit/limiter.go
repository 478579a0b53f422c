// Package ratelimit throttles outbound calls per external platform.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/catalogsync/internal/domain/integration"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Defaults applied when neither the platform nor the limiter sets a rate
const (
	DefaultRequestsPerSecond = 2.0
	DefaultBurst             = 3
)

// ErrWaitTooLong is returned when a slot would not be free within MaxWait
var ErrWaitTooLong = errors.New("ratelimit: slot not available within max wait")

// WaitObserver is told how long each granted slot was waited for
type WaitObserver func(platform integration.PlatformCode, waited time.Duration)

// PlatformLimiter hands out request slots per platform from a token bucket.
// Waiters are served in arrival order; a waiter whose slot lies beyond
// MaxWait gives up instead of queueing.
type PlatformLimiter struct {
	mu       sync.Mutex
	limiters map[integration.PlatformCode]*rate.Limiter

	rps      float64
	burst    int
	maxWait  time.Duration
	override map[integration.PlatformCode]integration.PlatformConfig
	observer WaitObserver
	logger   *zap.Logger
}

// Option configures a PlatformLimiter
type Option func(*PlatformLimiter)

// WithRate sets the default rate and burst
func WithRate(rps float64, burst int) Option {
	return func(l *PlatformLimiter) {
		if rps > 0 {
			l.rps = rps
		}
		if burst > 0 {
			l.burst = burst
		}
	}
}

// WithMaxWait bounds how long a caller may wait for a slot; zero means no bound
// beyond the caller's context
func WithMaxWait(d time.Duration) Option {
	return func(l *PlatformLimiter) {
		l.maxWait = d
	}
}

// WithPlatforms applies per-platform rate overrides
func WithPlatforms(platforms *integration.Platforms) Option {
	return func(l *PlatformLimiter) {
		for _, c := range platforms.All() {
			l.override[c.Code] = c
		}
	}
}

// WithWaitObserver registers a callback for granted slots
func WithWaitObserver(fn WaitObserver) Option {
	return func(l *PlatformLimiter) {
		l.observer = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *PlatformLimiter) {
		l.logger = logger
	}
}

// NewPlatformLimiter creates a limiter
func NewPlatformLimiter(opts ...Option) *PlatformLimiter {
	l := &PlatformLimiter{
		limiters: make(map[integration.PlatformCode]*rate.Limiter),
		rps:      DefaultRequestsPerSecond,
		burst:    DefaultBurst,
		override: make(map[integration.PlatformCode]integration.PlatformConfig),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitForSlot blocks until platform has a free request slot
func (l *PlatformLimiter) WaitForSlot(ctx context.Context, platform integration.PlatformCode) error {
	limiter := l.limiterFor(platform)

	if l.maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.maxWait)
		defer cancel()
	}

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// rate.Limiter reports a slot beyond the deadline without waiting for it
		return fmt.Errorf("%w: %s: %v", ErrWaitTooLong, platform, err)
	}

	waited := time.Since(start)
	if waited > 0 && l.observer != nil {
		l.observer(platform, waited)
	}
	if waited > time.Second {
		l.logger.Debug("waited for rate limit slot",
			zap.String("platform", string(platform)),
			zap.Duration("waited", waited),
		)
	}
	return nil
}

// Limit returns the effective rate and burst of platform
func (l *PlatformLimiter) Limit(platform integration.PlatformCode) (float64, int) {
	limiter := l.limiterFor(platform)
	return float64(limiter.Limit()), limiter.Burst()
}

func (l *PlatformLimiter) limiterFor(platform integration.PlatformCode) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[platform]
	if !ok {
		rps, burst := l.rps, l.burst
		if c, found := l.override[platform]; found {
			if c.RequestsPerSecond > 0 {
				rps = c.RequestsPerSecond
			}
			if c.Burst > 0 {
				burst = c.Burst
			}
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
		l.limiters[platform] = limiter
	}
	return limiter
}
