// Package broadcast fans published events out to live connections. The
// broadcaster never blocks on a slow consumer: a full queue always means
// "drop this event for this one connection", never "wait".
package broadcast

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/pulsewire/pulsewire-go/pkg/event"
	"github.com/pulsewire/pulsewire-go/pkg/log"
	"github.com/pulsewire/pulsewire-go/pkg/registry"
)

// Broadcaster delivers events to matching connections in a registry.
type Broadcaster struct {
	registry *registry.Registry
	logger   log.Logger

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a broadcaster over the given registry.
func New(reg *registry.Registry, logger log.Logger) *Broadcaster {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Broadcaster{
		registry: reg,
		logger:   logger,
	}
}

// Broadcast enqueues ev to every active connection subscribed to topic, or to
// every active connection when topic is empty. Returns the number of
// connections that received the event. Full queues drop; disconnects
// mid-iteration are harmless no-ops.
func (b *Broadcaster) Broadcast(ev *event.Event, topic string) int {
	sent := 0
	for _, conn := range b.registry.Snapshot() {
		if topic != "" && !conn.HasTopic(topic) {
			continue
		}
		if b.trySend(conn, ev, topic) {
			sent++
		}
	}
	return sent
}

// SendTo enqueues ev to a single connection, used for direct replies such as
// connection-established confirmations. Sending to an unknown or closed
// connection is a silent no-op; the return value reports whether the event
// was enqueued.
func (b *Broadcaster) SendTo(id string, ev *event.Event) bool {
	conn, ok := b.registry.Get(id)
	if !ok {
		return false
	}
	return b.trySend(conn, ev, ev.Topic)
}

// Delivered returns the total number of successful enqueues.
func (b *Broadcaster) Delivered() uint64 {
	return b.delivered.Load()
}

// Dropped returns the total number of queue-full drops.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Broadcaster) trySend(conn *registry.Connection, ev *event.Event, topic string) bool {
	err := conn.TrySend(ev)
	switch {
	case err == nil:
		conn.Touch()
		b.delivered.Add(1)
		b.logger.Log(log.Event{
			Timestamp:    time.Now(),
			Category:     log.CategoryDelivery,
			ConnectionID: conn.ID,
			EventID:      ev.ID,
			Delivery: &log.DeliveryEvent{
				Topic:    topic,
				QueueLen: conn.QueueLen(),
			},
		})
		return true
	case errors.Is(err, registry.ErrQueueFull):
		b.dropped.Add(1)
		b.logger.Log(log.Event{
			Timestamp:    time.Now(),
			Category:     log.CategoryDelivery,
			ConnectionID: conn.ID,
			EventID:      ev.ID,
			Delivery: &log.DeliveryEvent{
				Topic:    topic,
				Dropped:  true,
				QueueLen: conn.QueueLen(),
			},
		})
		return false
	default:
		// Connection closed between snapshot and send.
		return false
	}
}
