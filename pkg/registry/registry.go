// Package registry tracks live streaming connections. Each connection owns a
// bounded outbound event queue and a set of subscribed topics. The registry
// is the single owner of the connection map; broadcast iteration works on
// snapshots so delivery attempts never run under the registry lock.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsewire/pulsewire-go/pkg/event"
	"github.com/pulsewire/pulsewire-go/pkg/log"
)

// Registry errors.
var (
	ErrNotFound = errors.New("connection not found")
)

// Default registry limits.
const (
	DefaultQueueCapacity = 100
	DefaultIdleTimeout   = 300 * time.Second
)

// Config holds connection registry configuration.
type Config struct {
	// QueueCapacity is the outbound queue size for new connections.
	QueueCapacity int

	// IdleTimeout is how long a connection may stay silent before the
	// cleanup sweep evicts it.
	IdleTimeout time.Duration
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		QueueCapacity: DefaultQueueCapacity,
		IdleTimeout:   DefaultIdleTimeout,
	}
}

// Registry tracks live connections by ID.
type Registry struct {
	mu     sync.Mutex
	config Config
	conns  map[string]*Connection
	logger log.Logger
}

// New creates a registry with the given configuration.
func New(config Config, logger log.Logger) *Registry {
	if config.QueueCapacity <= 0 {
		config.QueueCapacity = DefaultQueueCapacity
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Registry{
		config: config,
		conns:  make(map[string]*Connection),
		logger: logger,
	}
}

// Connect creates a new connection and emits the initial "connected" event
// into its own queue. If clientID is empty a UUID is assigned. If a
// connection with the same ID already exists it is disconnected first, so at
// most one connection exists per ID.
func (r *Registry) Connect(clientID string, metadata map[string]string) *Connection {
	id := clientID
	if id == "" {
		id = uuid.NewString()
	}

	r.mu.Lock()
	if prev, ok := r.conns[id]; ok {
		delete(r.conns, id)
		prev.close()
		r.logConnState(prev, "disconnected")
	}

	conn := newConnection(id, metadata, r.config.QueueCapacity)
	r.conns[id] = conn

	// Enqueue before releasing the lock so no broadcast can land ahead of
	// the connected event. The queue is fresh with positive capacity, so
	// the send cannot fail.
	_ = conn.TrySend(event.New(event.KindConnected, "", map[string]any{
		"connectionId": id,
		"serverTime":   time.Now().UTC().Format(time.RFC3339),
	}))
	r.mu.Unlock()

	r.logConnState(conn, "connected")
	return conn
}

// Disconnect closes a connection and removes it from the registry. The
// consumer observes end-of-stream via queue close. Returns false if no such
// connection exists.
func (r *Registry) Disconnect(id string) bool {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	conn.close()
	r.logConnState(conn, "disconnected")
	return true
}

// DisconnectConn closes conn and removes it from the registry, but only when
// the registry still maps conn.ID to this exact connection. A connection that
// was replaced by a reconnect under the same ID is closed without touching
// the replacement's registration. Handlers cleaning up after themselves must
// use this instead of Disconnect, which removes whatever currently holds the
// ID.
func (r *Registry) DisconnectConn(conn *Connection) bool {
	r.mu.Lock()
	cur, ok := r.conns[conn.ID]
	removed := ok && cur == conn
	if removed {
		delete(r.conns, conn.ID)
	}
	r.mu.Unlock()

	conn.close()
	if !removed {
		return false
	}
	r.logConnState(conn, "disconnected")
	return true
}

// Get returns the connection with the given ID.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// SubscribeTopic adds topic to the connection's subscribed set.
func (r *Registry) SubscribeTopic(id, topic string) error {
	conn, ok := r.Get(id)
	if !ok {
		return ErrNotFound
	}
	conn.subscribe(topic)
	conn.Touch()
	return nil
}

// UnsubscribeTopic removes topic from the connection's subscribed set.
func (r *Registry) UnsubscribeTopic(id, topic string) error {
	conn, ok := r.Get(id)
	if !ok {
		return ErrNotFound
	}
	conn.unsubscribe(topic)
	conn.Touch()
	return nil
}

// Touch updates the connection's activity timestamp. Called on every
// successful send. Touching an absent connection is a no-op.
func (r *Registry) Touch(id string) {
	if conn, ok := r.Get(id); ok {
		conn.Touch()
	}
}

// Snapshot returns the current connections. The slice is a copy; delivery
// against it runs without the registry lock, so a connection disconnected
// mid-broadcast simply rejects the enqueue.
func (r *Registry) Snapshot() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// EvictIdle disconnects every connection whose last activity predates
// now minus the configured idle timeout. Returns the evicted IDs.
// Safe to run concurrently with broadcasts and with itself.
func (r *Registry) EvictIdle() []string {
	cutoff := time.Now().Add(-r.config.IdleTimeout)

	r.mu.Lock()
	var evicted []*Connection
	for id, conn := range r.conns {
		if conn.idleSince(cutoff) {
			delete(r.conns, id)
			evicted = append(evicted, conn)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(evicted))
	for _, conn := range evicted {
		conn.close()
		ids = append(ids, conn.ID)
		r.logConnState(conn, "evicted")
	}
	return ids
}

// CloseAll disconnects every connection. Returns the number closed.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.conns = make(map[string]*Connection)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.close()
		r.logConnState(conn, "disconnected")
	}
	return len(conns)
}

// IdleTimeout returns the configured idle timeout.
func (r *Registry) IdleTimeout() time.Duration {
	return r.config.IdleTimeout
}

func (r *Registry) logConnState(conn *Connection, state string) {
	r.logger.Log(log.Event{
		Timestamp:    time.Now(),
		Category:     log.CategoryConnection,
		ConnectionID: conn.ID,
		Connection: &log.ConnectionEvent{
			State:  state,
			Topics: conn.Topics(),
		},
	})
}
