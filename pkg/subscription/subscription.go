package subscription

import (
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pulsewire/pulsewire-go/pkg/event"
)

// Subscription errors.
var (
	ErrNotFound          = errors.New("subscription not found")
	ErrResourceExhausted = errors.New("maximum subscriptions reached for client")
	ErrInvalidKind       = errors.New("invalid subscription kind")
)

// Default subscription limits.
const (
	DefaultMaxPerClient = 50
	DefaultTTL          = 24 * time.Hour
)

// Status is the lifecycle state of a subscription.
type Status uint8

const (
	// StatusActive means the subscription receives dispatches.
	StatusActive Status = iota

	// StatusPaused suspends dispatch until resumed.
	StatusPaused

	// StatusCancelled is terminal; set by an explicit cancel call.
	StatusCancelled

	// StatusExpired is terminal; set by the cleanup sweep once expiresAt
	// has passed.
	StatusExpired
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusPaused:
		return "PAUSED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

// Filter narrows which events of a kind reach a subscription. All set
// dimensions are AND-ed; an unset dimension matches anything. The scalar
// dimensions compare against the like-named top-level payload attributes;
// Metadata keys are gjson paths into the payload, so nested attributes can
// be matched with dotted keys.
type Filter struct {
	// ResourceURIs matches the payload "resourceUri" attribute.
	ResourceURIs []string `json:"resourceUris,omitempty"`

	// ResourceTypes matches the payload "resourceType" attribute.
	ResourceTypes []string `json:"resourceTypes,omitempty"`

	// ToolNames matches the payload "toolName" attribute.
	ToolNames []string `json:"toolNames,omitempty"`

	// EventTypes matches the payload "eventType" attribute.
	EventTypes []string `json:"eventTypes,omitempty"`

	// Metadata maps payload paths to required values.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Empty reports whether no dimension is set. An empty filter matches every
// event of the subscription's kind.
func (f *Filter) Empty() bool {
	return f == nil ||
		(len(f.ResourceURIs) == 0 && len(f.ResourceTypes) == 0 &&
			len(f.ToolNames) == 0 && len(f.EventTypes) == 0 && len(f.Metadata) == 0)
}

// Match evaluates the filter against an event payload.
func (f *Filter) Match(ev *event.Event) bool {
	if f == nil {
		return true
	}
	if len(f.ResourceURIs) > 0 && !slices.Contains(f.ResourceURIs, ev.Attr("resourceUri")) {
		return false
	}
	if len(f.ResourceTypes) > 0 && !slices.Contains(f.ResourceTypes, ev.Attr("resourceType")) {
		return false
	}
	if len(f.ToolNames) > 0 && !slices.Contains(f.ToolNames, ev.Attr("toolName")) {
		return false
	}
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, ev.Attr("eventType")) {
		return false
	}
	if len(f.Metadata) > 0 {
		raw, err := json.Marshal(ev.Data)
		if err != nil {
			return false
		}
		for path, want := range f.Metadata {
			if gjson.GetBytes(raw, path).String() != want {
				return false
			}
		}
	}
	return true
}

// Subscription is a standing notification request. Mutable state is guarded
// by its own mutex so the dispatcher can record deliveries without touching
// the store lock.
type Subscription struct {
	// ID uniquely identifies the subscription (UUID).
	ID string `json:"id"`

	// ClientID references the owning client. This is not ownership: the
	// client may vanish while a webhook subscription persists.
	ClientID string `json:"clientId"`

	// Kind is the event category this subscription receives.
	Kind event.Kind `json:"kind"`

	// Filter optionally narrows matching events. Nil matches all.
	Filter *Filter `json:"filter,omitempty"`

	// CallbackEndpoint is an optional external URL for webhook delivery.
	CallbackEndpoint string `json:"callbackEndpoint,omitempty"`

	// CreatedAt is when the subscription was created.
	CreatedAt time.Time `json:"createdAt"`

	// ExpiresAt is when the subscription stops matching. Always set; a
	// past value makes the subscription inert from the start.
	ExpiresAt time.Time `json:"expiresAt"`

	mu                sync.Mutex
	status            Status
	lastNotifiedAt    time.Time
	notificationCount uint64
	errorCount        uint64
}

// Status returns the current lifecycle state.
func (s *Subscription) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Expired reports whether expiresAt has passed at time now.
func (s *Subscription) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Matches reports whether ev should be dispatched to this subscription:
// the subscription is Active, not expired, of the event's kind, and every
// set filter dimension matches.
func (s *Subscription) Matches(ev *event.Event) bool {
	if s.Status() != StatusActive || s.Expired(time.Now()) {
		return false
	}
	if s.Kind != ev.Kind {
		return false
	}
	return s.Filter.Match(ev)
}

// RecordNotification increments the notification count and stamps the
// delivery time.
func (s *Subscription) RecordNotification(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notificationCount++
	s.lastNotifiedAt = at
}

// RecordError increments the delivery error count.
func (s *Subscription) RecordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount++
}

// NotificationCount returns the number of successful dispatches.
func (s *Subscription) NotificationCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notificationCount
}

// ErrorCount returns the number of failed webhook deliveries.
func (s *Subscription) ErrorCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorCount
}

// LastNotifiedAt returns the time of the last successful dispatch.
func (s *Subscription) LastNotifiedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastNotifiedAt
}

// Info is a point-in-time serializable view of a subscription, used by the
// control API and stats surfaces.
type Info struct {
	ID                string     `json:"id"`
	ClientID          string     `json:"clientId"`
	Kind              event.Kind `json:"kind"`
	Filter            *Filter    `json:"filter,omitempty"`
	CallbackEndpoint  string     `json:"callbackEndpoint,omitempty"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
	ExpiresAt         time.Time  `json:"expiresAt"`
	LastNotifiedAt    time.Time  `json:"lastNotifiedAt,omitzero"`
	NotificationCount uint64     `json:"notificationCount"`
	ErrorCount        uint64     `json:"errorCount"`
}

// Info returns a snapshot of the subscription.
func (s *Subscription) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Info{
		ID:                s.ID,
		ClientID:          s.ClientID,
		Kind:              s.Kind,
		Filter:            s.Filter,
		CallbackEndpoint:  s.CallbackEndpoint,
		Status:            s.status.String(),
		CreatedAt:         s.CreatedAt,
		ExpiresAt:         s.ExpiresAt,
		LastNotifiedAt:    s.lastNotifiedAt,
		NotificationCount: s.notificationCount,
		ErrorCount:        s.errorCount,
	}
}

// transition applies a status change if the current state allows it.
// Terminal states never change again.
func (s *Subscription) transition(to Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return false
	}
	switch to {
	case StatusActive:
		// Resume only applies to paused subscriptions.
		if s.status != StatusPaused {
			return false
		}
	case StatusPaused:
		if s.status != StatusActive {
			return false
		}
	}
	s.status = to
	return true
}
