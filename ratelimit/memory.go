package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryRateLimiter implements RateLimiter using a per-key token bucket.
// BurstSize is the bucket's capacity - it lets a key fire that many
// requests back-to-back - while RequestsPerWindow/Window sets the
// steady refill rate the bucket drains to. A rule of rpm:60, burst:10
// lets the first 10 requests through immediately, then refills at
// 1 token/sec, so the 61st request within a minute is the one that
// gets rejected, not the 11th. Safe for concurrent use.
type MemoryRateLimiter struct {
	config Config
	rate   rate.Limit

	mu      sync.Mutex
	buckets map[string]*limiterEntry

	// cleanupInterval controls how often idle entries are removed.
	cleanupInterval time.Duration

	// done signals the cleanup goroutine to stop.
	done chan struct{}
	// wg waits for cleanup goroutine to finish.
	wg sync.WaitGroup
}

// limiterEntry pairs a key's token bucket with the last time it was used
// and a running request count, so cleanup can evict buckets (and their
// counts) nobody has touched in a while.
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	requests int
}

// NewMemoryRateLimiter creates a new in-memory rate limiter.
// Starts a background goroutine to clean up idle entries.
// Call Close() to stop the cleanup goroutine.
func NewMemoryRateLimiter(cfg Config) (*MemoryRateLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &MemoryRateLimiter{
		config:          cfg,
		rate:            rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		buckets:         make(map[string]*limiterEntry),
		cleanupInterval: 10 * time.Minute,
		done:            make(chan struct{}),
	}

	// Start background cleanup
	m.wg.Add(1)
	go m.cleanupLoop()

	return m, nil
}

// NewMemoryRateLimiterWithCleanup creates a rate limiter with custom cleanup interval.
// Useful for testing with shorter cleanup intervals.
func NewMemoryRateLimiterWithCleanup(cfg Config, cleanupInterval time.Duration) (*MemoryRateLimiter, error) {
	m, err := NewMemoryRateLimiter(cfg)
	if err != nil {
		return nil, err
	}
	m.cleanupInterval = cleanupInterval
	return m, nil
}

// Allow checks if a request should be allowed for the given key.
// Uses a token bucket: BurstSize tokens of immediate capacity, refilled
// at RequestsPerWindow/Window per second.
func (m *MemoryRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	entry, exists := m.buckets[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(m.rate, m.config.EffectiveBurstSize())}
		m.buckets[key] = entry
	}
	entry.lastSeen = now
	entry.requests++

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		// Requested more tokens than the bucket can ever hold.
		return false, 0, nil
	}

	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.Cancel()
		return false, delay, nil
	}

	return true, 0, nil
}

// Close stops the background cleanup goroutine.
// Safe to call multiple times.
func (m *MemoryRateLimiter) Close() error {
	select {
	case <-m.done:
		// Already closed
		return nil
	default:
		close(m.done)
	}
	m.wg.Wait()
	return nil
}

// cleanupLoop periodically removes idle entries from memory.
func (m *MemoryRateLimiter) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

// cleanup removes buckets that have been idle for longer than Window,
// since a bucket untouched that long has fully refilled anyway.
func (m *MemoryRateLimiter) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.config.Window)
	for key, entry := range m.buckets {
		if entry.lastSeen.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}

// Stats returns current statistics for monitoring.
type Stats struct {
	// TotalKeys is the number of unique keys being tracked.
	TotalKeys int
	// TotalRequests is the total number of Allow calls served across
	// currently-tracked keys (a key's count is dropped along with its
	// bucket once cleanup evicts it).
	TotalRequests int
}

// Stats returns current rate limiter statistics.
func (m *MemoryRateLimiter) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{TotalKeys: len(m.buckets)}
	for _, entry := range m.buckets {
		stats.TotalRequests += entry.requests
	}
	return stats
}

var _ RateLimiter = (*MemoryRateLimiter)(nil)
