// Package ratelimit provides sliding-window admission control per
// (client, endpoint) pair. The window slides continuously: a burst at a
// window boundary can never admit more than the configured limit in any
// trailing interval, unlike a fixed-window counter.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulsewire/pulsewire-go/pkg/log"
)

// DefaultSweepInterval is how often empty windows are evicted.
const DefaultSweepInterval = time.Minute

// Rule bounds admissions for one endpoint.
type Rule struct {
	// Limit is the maximum number of admitted requests per window.
	Limit int

	// Window is the trailing interval length.
	Window time.Duration
}

// Config holds rate limiter configuration.
type Config struct {
	// Rules maps endpoint names to their limits. Endpoints with no rule
	// always admit.
	Rules map[string]Rule

	// SweepInterval is how often the background sweep evicts entries with
	// empty windows.
	SweepInterval time.Duration
}

// DefaultConfig returns a configuration with no rules and the default sweep
// interval.
func DefaultConfig() Config {
	return Config{
		Rules:         make(map[string]Rule),
		SweepInterval: DefaultSweepInterval,
	}
}

// entryKey identifies one client's window on one endpoint.
type entryKey struct {
	clientKey string
	endpoint  string
}

// Limiter is a sliding-window rate limiter. Entries are created lazily on
// first request and evicted by the sweep once their windows empty out.
type Limiter struct {
	mu      sync.Mutex
	config  Config
	entries map[entryKey][]time.Time
	logger  log.Logger

	// now is the clock; replaced in tests.
	now func() time.Time

	// Background sweep
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// New creates a limiter with the given configuration.
func New(config Config, logger log.Logger) *Limiter {
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Limiter{
		config:  config,
		entries: make(map[entryKey][]time.Time),
		logger:  logger,
		now:     time.Now,
	}
}

// Allow decides admission for one request. For endpoints with a rule it
// prunes timestamps older than the window, rejects with a retry-after
// duration when the remaining count has reached the limit, and records the
// request otherwise. Endpoints without a rule always admit.
func (l *Limiter) Allow(clientKey, endpoint string) (bool, time.Duration) {
	rule, limited := l.config.Rules[endpoint]
	if !limited || rule.Limit <= 0 {
		return true, 0
	}

	now := l.now()
	key := entryKey{clientKey: clientKey, endpoint: endpoint}

	l.mu.Lock()
	window := prune(l.entries[key], now.Add(-rule.Window))
	if len(window) >= rule.Limit {
		l.entries[key] = window
		oldest := window[0]
		retryAfter := rule.Window - now.Sub(oldest)
		l.mu.Unlock()

		l.logDecision(clientKey, endpoint, false, retryAfter)
		return false, retryAfter
	}
	l.entries[key] = append(window, now)
	l.mu.Unlock()

	l.logDecision(clientKey, endpoint, true, 0)
	return true, 0
}

// Sweep removes entries whose windows hold no recent timestamps, bounding
// memory growth from one-off clients. Returns the number of entries evicted.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for key, window := range l.entries {
		rule := l.config.Rules[key.endpoint]
		if len(prune(window, now.Add(-rule.Window))) == 0 {
			delete(l.entries, key)
			evicted++
		}
	}
	return evicted
}

// Start begins the background sweep loop.
func (l *Limiter) Start() {
	if l.running.Swap(true) {
		return // Already running
	}

	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.wg.Add(1)
	go l.sweepLoop()
}

// Stop halts the background sweep loop.
func (l *Limiter) Stop() {
	if !l.running.Swap(false) {
		return // Not running
	}

	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

// EntryCount returns the number of tracked (client, endpoint) windows.
func (l *Limiter) EntryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Limiter) sweepLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func (l *Limiter) logDecision(clientKey, endpoint string, allowed bool, retryAfter time.Duration) {
	if allowed {
		// Admissions are too frequent to be worth an audit record.
		return
	}
	l.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryRateLimit,
		ClientID:  clientKey,
		RateLimit: &log.RateLimitEvent{
			Endpoint:   endpoint,
			Allowed:    allowed,
			RetryAfter: retryAfter,
		},
	})
}

// prune drops timestamps at or before cutoff. The slice is ordered oldest
// first, so the first retained index bounds the copy.
func prune(window []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	return window[i:]
}
