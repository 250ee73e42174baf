package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulsewire/pulsewire-go/pkg/registry"
	"github.com/pulsewire/pulsewire-go/pkg/subscription"
)

// Default cleanup cadence.
const (
	DefaultConnectionSweepInterval   = 30 * time.Second
	DefaultSubscriptionSweepInterval = 5 * time.Minute
)

// CleanupConfig holds cleanup scheduler configuration.
type CleanupConfig struct {
	// ConnectionSweepInterval is how often idle connections are evicted.
	ConnectionSweepInterval time.Duration

	// SubscriptionSweepInterval is how often expired subscriptions are
	// transitioned out.
	SubscriptionSweepInterval time.Duration
}

// DefaultCleanupConfig returns the default cleanup cadence.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		ConnectionSweepInterval:   DefaultConnectionSweepInterval,
		SubscriptionSweepInterval: DefaultSubscriptionSweepInterval,
	}
}

// CleanupScheduler periodically evicts idle connections from the registry
// and expires overdue subscriptions in the store. The two sweeps run on
// independent tickers; each is idempotent and guarded by the owning
// component's own lock, so concurrent runs cannot corrupt state.
type CleanupScheduler struct {
	config   CleanupConfig
	registry *registry.Registry
	store    *subscription.Store

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	connectionsEvicted   atomic.Uint64
	subscriptionsExpired atomic.Uint64
}

// NewCleanupScheduler creates a scheduler over the given registry and store.
func NewCleanupScheduler(config CleanupConfig, reg *registry.Registry, store *subscription.Store) *CleanupScheduler {
	if config.ConnectionSweepInterval <= 0 {
		config.ConnectionSweepInterval = DefaultConnectionSweepInterval
	}
	if config.SubscriptionSweepInterval <= 0 {
		config.SubscriptionSweepInterval = DefaultSubscriptionSweepInterval
	}
	return &CleanupScheduler{
		config:   config,
		registry: reg,
		store:    store,
	}
}

// Start begins both sweep loops.
func (c *CleanupScheduler) Start() {
	if c.running.Swap(true) {
		return // Already running
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.wg.Add(2)
	go c.loop(c.config.ConnectionSweepInterval, c.SweepConnections)
	go c.loop(c.config.SubscriptionSweepInterval, c.SweepSubscriptions)
}

// Stop halts both sweep loops.
func (c *CleanupScheduler) Stop() {
	if !c.running.Swap(false) {
		return // Not running
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// SweepConnections evicts connections idle past the registry's timeout.
// Returns the number evicted. Safe to call directly (tests, admin tooling).
func (c *CleanupScheduler) SweepConnections() int {
	evicted := len(c.registry.EvictIdle())
	c.connectionsEvicted.Add(uint64(evicted))
	return evicted
}

// SweepSubscriptions expires overdue subscriptions. Returns the number
// transitioned to Expired.
func (c *CleanupScheduler) SweepSubscriptions() int {
	expired := len(c.store.ExpireDue(time.Now()))
	c.subscriptionsExpired.Add(uint64(expired))
	return expired
}

// ConnectionsEvicted returns the total evicted since start.
func (c *CleanupScheduler) ConnectionsEvicted() uint64 {
	return c.connectionsEvicted.Load()
}

// SubscriptionsExpired returns the total expired since start.
func (c *CleanupScheduler) SubscriptionsExpired() uint64 {
	return c.subscriptionsExpired.Load()
}

func (c *CleanupScheduler) loop(interval time.Duration, sweep func() int) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
