package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/byteness/sentinel-gateway/policy"
	"github.com/byteness/sentinel-gateway/ratelimit"
)

// LimiterFactory constructs a RateLimiter for a single command's policy.
// Dispatcher uses this to build one limiter per command on first use,
// rather than one limiter per (tenant, actor, command) - the limiter's
// own key space already isolates tenant/actor within a command.
type LimiterFactory func(cfg ratelimit.Config) (ratelimit.RateLimiter, error)

// NewMemoryLimiterFactory returns a LimiterFactory backed by
// ratelimit.MemoryRateLimiter, suitable for a single gateway instance.
func NewMemoryLimiterFactory() LimiterFactory {
	return func(cfg ratelimit.Config) (ratelimit.RateLimiter, error) {
		return ratelimit.NewMemoryRateLimiter(cfg)
	}
}

// rateGate lazily builds and caches one RateLimiter per command, keyed by
// the command name, and checks requests against it. Limiters are built
// from whatever policy.RateLimit applied the first time a command was
// dispatched; a policy hot-swap that changes rpm/burst for an
// already-dispatched command takes effect only once that command's
// cached limiter is rebuilt, which happens on a process restart.
type rateGate struct {
	factory LimiterFactory

	mu       sync.Mutex
	limiters map[string]ratelimit.RateLimiter
}

func newRateGate(factory LimiterFactory) *rateGate {
	return &rateGate{factory: factory, limiters: make(map[string]ratelimit.RateLimiter)}
}

// check returns (allowed, retryAfter, error) for one command invocation,
// consulting the command's limiter (built from limit on first use).
// Dispatcher calls it only when the policy defines a rate limit for command.
func (g *rateGate) check(ctx context.Context, tenantID, actor, command string, limit policy.RateLimit) (bool, time.Duration, error) {
	limiter, err := g.limiterFor(command, limit)
	if err != nil {
		return false, 0, err
	}
	return limiter.Allow(ctx, rateLimitKey(tenantID, actor, command))
}

func (g *rateGate) limiterFor(command string, limit policy.RateLimit) (ratelimit.RateLimiter, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if l, ok := g.limiters[command]; ok {
		return l, nil
	}

	cfg := ratelimit.Config{
		RequestsPerWindow: limit.RPM,
		Window:             time.Minute,
		BurstSize:          limit.Burst,
	}
	l, err := g.factory(cfg)
	if err != nil {
		return nil, err
	}
	g.limiters[command] = l
	return l, nil
}
