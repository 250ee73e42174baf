package subscription

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsewire/pulsewire-go/pkg/event"
)

// Config holds subscription store configuration.
type Config struct {
	// MaxPerClient caps the number of non-terminal subscriptions a single
	// client may hold.
	MaxPerClient int

	// DefaultTTL is the expiry applied when a create request carries none.
	DefaultTTL time.Duration
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		MaxPerClient: DefaultMaxPerClient,
		DefaultTTL:   DefaultTTL,
	}
}

// Store owns all subscription records and the lookup indices over them.
// One mutex guards the maps; per-subscription state has its own lock so
// dispatch bookkeeping never contends with store lookups.
type Store struct {
	mu     sync.Mutex
	config Config

	// All records ever created, including terminal ones.
	subs map[string]*Subscription

	// Indices hold only non-terminal subscriptions.
	byClient map[string][]*Subscription
	byKind   map[event.Kind][]*Subscription
}

// NewStore creates a store with the given configuration.
func NewStore(config Config) *Store {
	if config.MaxPerClient <= 0 {
		config.MaxPerClient = DefaultMaxPerClient
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultTTL
	}
	return &Store{
		config:   config,
		subs:     make(map[string]*Subscription),
		byClient: make(map[string][]*Subscription),
		byKind:   make(map[event.Kind][]*Subscription),
	}
}

// Create registers a new subscription. A zero ttl applies the configured
// default; a negative ttl is accepted but yields an immediately inert
// subscription. Two creates with identical parameters yield two independent
// records. Returns ErrResourceExhausted once the client's non-terminal
// subscription count has reached the configured cap.
func (st *Store) Create(clientID string, kind event.Kind, filter *Filter, callbackEndpoint string, ttl time.Duration) (*Subscription, error) {
	if kind == "" {
		return nil, ErrInvalidKind
	}
	if ttl == 0 {
		ttl = st.config.DefaultTTL
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()

	// Expired-but-unswept records do not count against the cap.
	active := 0
	for _, s := range st.byClient[clientID] {
		if !s.Expired(now) {
			active++
		}
	}
	if active >= st.config.MaxPerClient {
		return nil, ErrResourceExhausted
	}

	sub := &Subscription{
		ID:               uuid.NewString(),
		ClientID:         clientID,
		Kind:             kind,
		Filter:           filter,
		CallbackEndpoint: callbackEndpoint,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
		status:           StatusActive,
	}

	st.subs[sub.ID] = sub
	st.byClient[clientID] = append(st.byClient[clientID], sub)
	st.byKind[kind] = append(st.byKind[kind], sub)

	return sub, nil
}

// Get returns a subscription by ID, including terminal records.
func (st *Store) Get(id string) (*Subscription, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	sub, ok := st.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sub, nil
}

// Cancel moves a subscription to Cancelled and drops it from the indices.
// Returns false if the subscription was already terminal.
func (st *Store) Cancel(id string) (bool, error) {
	sub, err := st.Get(id)
	if err != nil {
		return false, err
	}
	if !sub.transition(StatusCancelled) {
		return false, nil
	}
	st.unindex(sub)
	return true, nil
}

// Pause suspends dispatch to a subscription. Returns false unless the
// current status is Active.
func (st *Store) Pause(id string) (bool, error) {
	sub, err := st.Get(id)
	if err != nil {
		return false, err
	}
	return sub.transition(StatusPaused), nil
}

// Resume re-enables dispatch. Returns false unless the current status is
// Paused.
func (st *Store) Resume(id string) (bool, error) {
	sub, err := st.Get(id)
	if err != nil {
		return false, err
	}
	return sub.transition(StatusActive), nil
}

// ByClient returns the client's non-terminal subscriptions.
func (st *Store) ByClient(clientID string) []*Subscription {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]*Subscription, len(st.byClient[clientID]))
	copy(out, st.byClient[clientID])
	return out
}

// ByKind returns the non-terminal subscriptions for an event kind.
func (st *Store) ByKind(kind event.Kind) []*Subscription {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]*Subscription, len(st.byKind[kind]))
	copy(out, st.byKind[kind])
	return out
}

// Count returns the number of indexed (non-terminal) subscriptions.
func (st *Store) Count() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	n := 0
	for _, subs := range st.byKind {
		n += len(subs)
	}
	return n
}

// CountsByKind returns indexed subscription counts per kind.
func (st *Store) CountsByKind() map[event.Kind]int {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make(map[event.Kind]int, len(st.byKind))
	for kind, subs := range st.byKind {
		out[kind] = len(subs)
	}
	return out
}

// CountsByClient returns indexed subscription counts per client.
func (st *Store) CountsByClient() map[string]int {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make(map[string]int, len(st.byClient))
	for client, subs := range st.byClient {
		out[client] = len(subs)
	}
	return out
}

// ExpireDue transitions every indexed Active or Paused subscription whose
// expiry has passed to Expired and drops it from the indices. The record is
// retained for inspection. Idempotent; safe to run concurrently with
// dispatch. Returns the expired IDs.
func (st *Store) ExpireDue(now time.Time) []string {
	st.mu.Lock()
	var due []*Subscription
	for _, subs := range st.byKind {
		for _, sub := range subs {
			if sub.Expired(now) {
				due = append(due, sub)
			}
		}
	}
	st.mu.Unlock()

	var expired []string
	for _, sub := range due {
		if sub.transition(StatusExpired) {
			st.unindex(sub)
			expired = append(expired, sub.ID)
		}
	}
	return expired
}

// unindex removes a subscription from the client and kind indices. The
// record stays in the subs map.
func (st *Store) unindex(sub *Subscription) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.byClient[sub.ClientID] = removeSub(st.byClient[sub.ClientID], sub.ID)
	if len(st.byClient[sub.ClientID]) == 0 {
		delete(st.byClient, sub.ClientID)
	}
	st.byKind[sub.Kind] = removeSub(st.byKind[sub.Kind], sub.ID)
	if len(st.byKind[sub.Kind]) == 0 {
		delete(st.byKind, sub.Kind)
	}
}

func removeSub(subs []*Subscription, id string) []*Subscription {
	for i, s := range subs {
		if s.ID == id {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}
