// Package dispatch routes published events to matching subscriptions. It is
// fully independent of the connection broadcast path: the two share no locks,
// so a slow webhook can never delay streaming fan-out or vice versa.
package dispatch

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulsewire/pulsewire-go/pkg/event"
	"github.com/pulsewire/pulsewire-go/pkg/log"
	"github.com/pulsewire/pulsewire-go/pkg/subscription"
)

// DefaultWebhookTimeout bounds a single webhook delivery attempt.
const DefaultWebhookTimeout = 10 * time.Second

// Config holds dispatcher configuration.
type Config struct {
	// WebhookTimeout is the per-call timeout for callback endpoint POSTs.
	WebhookTimeout time.Duration
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{WebhookTimeout: DefaultWebhookTimeout}
}

// Dispatcher delivers events to the subscriptions that match them.
type Dispatcher struct {
	store  *subscription.Store
	client *http.Client
	logger log.Logger

	mu        sync.RWMutex
	callbacks []Callback

	// In-flight webhook tasks; waited on at Close.
	wg sync.WaitGroup

	dispatched      atomic.Uint64
	callbackCount   atomic.Uint64
	webhookCount    atomic.Uint64
	webhookFailures atomic.Uint64
}

// New creates a dispatcher over the given subscription store.
func New(store *subscription.Store, config Config, logger log.Logger) *Dispatcher {
	if config.WebhookTimeout <= 0 {
		config.WebhookTimeout = DefaultWebhookTimeout
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Dispatcher{
		store:  store,
		client: newHTTPClient(config.WebhookTimeout),
		logger: logger,
	}
}

// OnNotification registers an in-process callback invoked for every
// dispatched notification. Callbacks run on the publisher's goroutine and
// should return quickly.
func (d *Dispatcher) OnNotification(fn Callback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks = append(d.callbacks, fn)
}

// Publish finds the subscriptions matching ev and delivers a notification to
// each: all registered callbacks run best-effort, and if the subscription has
// a callback endpoint one webhook POST goes out on its own goroutine.
// Failures are isolated per subscriber and never reach the caller.
func (d *Dispatcher) Publish(ev *event.Event) int {
	subs := d.store.ByKind(ev.Kind)

	matched := 0
	now := time.Now()
	for _, sub := range subs {
		if !sub.Matches(ev) {
			continue
		}
		matched++
		sub.RecordNotification(now)
		d.dispatched.Add(1)

		n := Notification{
			SubscriptionID: sub.ID,
			EventID:        ev.ID,
			Kind:           ev.Kind,
			Data:           ev.Data,
			Timestamp:      ev.Timestamp,
			Metadata: map[string]string{
				"clientId": sub.ClientID,
			},
		}
		if ev.Topic != "" {
			n.Metadata["topic"] = ev.Topic
		}

		d.mu.RLock()
		callbacks := d.callbacks
		d.mu.RUnlock()

		for _, fn := range callbacks {
			d.deliver(NewCallbackSink(fn), "", sub, n)
		}

		if sub.CallbackEndpoint != "" {
			sink := NewWebhookSink(sub.CallbackEndpoint, d.client)
			d.wg.Add(1)
			go func(sub *subscription.Subscription, n Notification) {
				defer d.wg.Done()
				d.deliver(sink, sub.CallbackEndpoint, sub, n)
			}(sub, n)
		}
	}
	return matched
}

// Dispatched returns the total number of matched subscription deliveries.
func (d *Dispatcher) Dispatched() uint64 {
	return d.dispatched.Load()
}

// CallbackCount returns the number of in-process callback invocations.
func (d *Dispatcher) CallbackCount() uint64 {
	return d.callbackCount.Load()
}

// WebhookCount returns the number of attempted webhook deliveries.
func (d *Dispatcher) WebhookCount() uint64 {
	return d.webhookCount.Load()
}

// WebhookFailures returns the number of failed webhook deliveries.
func (d *Dispatcher) WebhookFailures() uint64 {
	return d.webhookFailures.Load()
}

// Close waits for in-flight webhook deliveries to finish.
func (d *Dispatcher) Close() {
	d.wg.Wait()
}

// deliver runs one sink for one subscription and records the outcome.
// endpoint is the webhook URL for webhook sinks, empty for callbacks.
func (d *Dispatcher) deliver(sink Sink, endpoint string, sub *subscription.Subscription, n Notification) {
	ctx := context.Background()

	webhook := sink.Kind() == SinkWebhook
	if webhook {
		d.webhookCount.Add(1)
	} else {
		d.callbackCount.Add(1)
	}

	start := time.Now()
	err := sink.Deliver(ctx, n)
	elapsed := time.Since(start)

	if err != nil && webhook {
		sub.RecordError()
		d.webhookFailures.Add(1)
	}

	d.logger.Log(log.Event{
		Timestamp:      time.Now(),
		Category:       log.CategoryDispatch,
		ClientID:       sub.ClientID,
		SubscriptionID: sub.ID,
		EventID:        n.EventID,
		Dispatch: &log.DispatchEvent{
			Kind:     string(n.Kind),
			Webhook:  webhook,
			Endpoint: endpoint,
			Failed:   err != nil,
			Elapsed:  elapsed,
		},
	})
}
