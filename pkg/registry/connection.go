package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/pulsewire/pulsewire-go/pkg/event"
)

// Connection errors.
var (
	ErrQueueFull        = errors.New("connection queue full")
	ErrConnectionClosed = errors.New("connection closed")
)

// Connection is a single live client connection with a bounded outbound
// queue. It is created by Registry.Connect and destroyed by
// Registry.Disconnect or idle eviction; the consumer drains Events until
// the channel is closed.
type Connection struct {
	// ID uniquely identifies the connection. Equal to the client-supplied
	// ID when one was given, otherwise a generated UUID.
	ID string

	// Metadata holds opaque attributes supplied at connect time.
	Metadata map[string]string

	// CreatedAt is when the connection was established.
	CreatedAt time.Time

	mu           sync.Mutex
	queue        chan *event.Event
	topics       map[string]struct{}
	lastActivity time.Time
	closed       bool
	dropped      uint64
}

func newConnection(id string, metadata map[string]string, capacity int) *Connection {
	now := time.Now()
	return &Connection{
		ID:           id,
		Metadata:     metadata,
		CreatedAt:    now,
		queue:        make(chan *event.Event, capacity),
		topics:       make(map[string]struct{}),
		lastActivity: now,
	}
}

// Events returns the receive side of the outbound queue. The channel is
// closed when the connection is disconnected; close is the end-of-stream
// sentinel.
func (c *Connection) Events() <-chan *event.Event {
	return c.queue
}

// TrySend attempts a non-blocking enqueue. It returns nil on success,
// ErrQueueFull when the queue is at capacity (the event is dropped for this
// consumer) and ErrConnectionClosed after disconnect. It never blocks.
func (c *Connection) TrySend(ev *event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.queue <- ev:
		return nil
	default:
		c.dropped++
		return ErrQueueFull
	}
}

// close marks the connection closed and closes the queue. Idempotent.
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.queue)
}

// Closed reports whether the connection has been disconnected.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// HasTopic reports whether the connection is subscribed to topic.
func (c *Connection) HasTopic(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.topics[topic]
	return ok
}

// Topics returns the subscribed topics in unspecified order.
func (c *Connection) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	return out
}

// QueueLen returns the current queue occupancy.
func (c *Connection) QueueLen() int {
	return len(c.queue)
}

// Dropped returns the number of events dropped because the queue was full.
func (c *Connection) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// LastActivity returns the time of the last successful send or touch.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Touch updates the activity timestamp. Called on every successful send.
func (c *Connection) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
}

func (c *Connection) subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topic] = struct{}{}
}

func (c *Connection) unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, topic)
}

func (c *Connection) idleSince(cutoff time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity.Before(cutoff)
}
