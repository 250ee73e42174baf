// Package service assembles the event distribution core: the connection
// registry, broadcaster, subscription store, dispatcher, rate limiter and
// cleanup scheduler, constructed once at process start and wired together
// explicitly. Publish is the single entry point for producers.
package service

import (
	"github.com/pulsewire/pulsewire-go/pkg/broadcast"
	"github.com/pulsewire/pulsewire-go/pkg/dispatch"
	"github.com/pulsewire/pulsewire-go/pkg/event"
	"github.com/pulsewire/pulsewire-go/pkg/log"
	"github.com/pulsewire/pulsewire-go/pkg/ratelimit"
	"github.com/pulsewire/pulsewire-go/pkg/registry"
	"github.com/pulsewire/pulsewire-go/pkg/subscription"
)

// Config aggregates the component configurations.
type Config struct {
	Registry      registry.Config
	Subscriptions subscription.Config
	Dispatch      dispatch.Config
	RateLimit     ratelimit.Config
	Cleanup       CleanupConfig
}

// DefaultConfig returns the default core configuration.
func DefaultConfig() Config {
	return Config{
		Registry:      registry.DefaultConfig(),
		Subscriptions: subscription.DefaultConfig(),
		Dispatch:      dispatch.DefaultConfig(),
		RateLimit:     ratelimit.DefaultConfig(),
		Cleanup:       DefaultCleanupConfig(),
	}
}

// Core is the assembled event distribution core.
type Core struct {
	Registry      *registry.Registry
	Broadcaster   *broadcast.Broadcaster
	Subscriptions *subscription.Store
	Dispatcher    *dispatch.Dispatcher
	Limiter       *ratelimit.Limiter
	Cleanup       *CleanupScheduler

	logger log.Logger
}

// NewCore constructs all components. No component holds hidden global state;
// everything flows from here by reference.
func NewCore(config Config, logger log.Logger) *Core {
	if logger == nil {
		logger = log.NoopLogger{}
	}

	reg := registry.New(config.Registry, logger)
	store := subscription.NewStore(config.Subscriptions)

	return &Core{
		Registry:      reg,
		Broadcaster:   broadcast.New(reg, logger),
		Subscriptions: store,
		Dispatcher:    dispatch.New(store, config.Dispatch, logger),
		Limiter:       ratelimit.New(config.RateLimit, logger),
		Cleanup:       NewCleanupScheduler(config.Cleanup, reg, store),
		logger:        logger,
	}
}

// Start launches the background loops (cleanup sweeps, rate-limit sweep).
func (c *Core) Start() {
	c.Cleanup.Start()
	c.Limiter.Start()
}

// Stop halts the background loops, waits for in-flight webhook deliveries
// and closes every live connection.
func (c *Core) Stop() {
	c.Cleanup.Stop()
	c.Limiter.Stop()
	c.Dispatcher.Close()
	c.Registry.CloseAll()
}

// Publish distributes one event. The broadcast path (topic match, connection
// queues) and the dispatch path (filter match, callbacks/webhooks) consult
// their own stores and share no mutable state; neither can block the caller
// on a slow consumer.
func (c *Core) Publish(ev *event.Event) {
	c.Broadcaster.Broadcast(ev, ev.Topic)
	c.Dispatcher.Publish(ev)
}

// Stats is a point-in-time view of the core, served by the admin surface.
type Stats struct {
	ActiveConnections     int                   `json:"activeConnections"`
	SubscriptionsByKind   map[event.Kind]int    `json:"subscriptionsByKind"`
	SubscriptionsByClient map[string]int        `json:"subscriptionsByClient"`
	EventsDelivered       uint64                `json:"eventsDelivered"`
	EventsDropped         uint64                `json:"eventsDropped"`
	Dispatched            uint64                `json:"dispatched"`
	CallbackInvocations   uint64                `json:"callbackInvocations"`
	WebhookDeliveries     uint64                `json:"webhookDeliveries"`
	WebhookFailures       uint64                `json:"webhookFailures"`
	ConnectionsEvicted    uint64                `json:"connectionsEvicted"`
	SubscriptionsExpired  uint64                `json:"subscriptionsExpired"`
}

// Stats returns current counters.
func (c *Core) Stats() Stats {
	return Stats{
		ActiveConnections:     c.Registry.Count(),
		SubscriptionsByKind:   c.Subscriptions.CountsByKind(),
		SubscriptionsByClient: c.Subscriptions.CountsByClient(),
		EventsDelivered:       c.Broadcaster.Delivered(),
		EventsDropped:         c.Broadcaster.Dropped(),
		Dispatched:            c.Dispatcher.Dispatched(),
		CallbackInvocations:   c.Dispatcher.CallbackCount(),
		WebhookDeliveries:     c.Dispatcher.WebhookCount(),
		WebhookFailures:       c.Dispatcher.WebhookFailures(),
		ConnectionsEvicted:    c.Cleanup.ConnectionsEvicted(),
		SubscriptionsExpired:  c.Cleanup.SubscriptionsExpired(),
	}
}
