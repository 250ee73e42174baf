package log

import (
	"time"
)

// Event represents a single delivery audit record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// Category classifies the record.
	Category Category `cbor:"2,keyasint"`

	// ConnectionID identifies the streaming connection, if any.
	ConnectionID string `cbor:"3,keyasint,omitempty"`

	// ClientID identifies the client, if known.
	ClientID string `cbor:"4,keyasint,omitempty"`

	// SubscriptionID identifies the subscription, if any.
	SubscriptionID string `cbor:"5,keyasint,omitempty"`

	// EventID identifies the published event involved, if any.
	EventID string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (at most one is set).
	Connection *ConnectionEvent `cbor:"7,keyasint,omitempty"`  // lifecycle
	Delivery   *DeliveryEvent   `cbor:"8,keyasint,omitempty"`  // broadcast path
	Dispatch   *DispatchEvent   `cbor:"9,keyasint,omitempty"`  // subscription path
	RateLimit  *RateLimitEvent  `cbor:"10,keyasint,omitempty"` // admission control
	Error      *ErrorEvent      `cbor:"11,keyasint,omitempty"` // faults at any layer
}

// Category classifies the audit record.
type Category uint8

const (
	// CategoryConnection covers connect, disconnect and idle eviction.
	CategoryConnection Category = iota

	// CategoryDelivery covers broadcast enqueues and queue-full drops.
	CategoryDelivery

	// CategoryDispatch covers subscription matching, callbacks and webhooks.
	CategoryDispatch

	// CategoryRateLimit covers admission decisions.
	CategoryRateLimit

	// CategoryError covers faults not tied to a single delivery.
	CategoryError
)

// String returns a human-readable category name.
func (c Category) String() string {
	switch c {
	case CategoryConnection:
		return "CONNECTION"
	case CategoryDelivery:
		return "DELIVERY"
	case CategoryDispatch:
		return "DISPATCH"
	case CategoryRateLimit:
		return "RATELIMIT"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ConnectionEvent records a connection lifecycle transition.
type ConnectionEvent struct {
	// State is the new lifecycle state ("connected", "disconnected", "evicted").
	State string `cbor:"1,keyasint"`

	// RemoteAddr is the peer address (IP:port), when known.
	RemoteAddr string `cbor:"2,keyasint,omitempty"`

	// Topics lists the topics subscribed at the time of the transition.
	Topics []string `cbor:"3,keyasint,omitempty"`
}

// DeliveryEvent records one broadcast delivery attempt to one connection.
type DeliveryEvent struct {
	// Topic is the broadcast topic, empty for untargeted broadcasts.
	Topic string `cbor:"1,keyasint,omitempty"`

	// Dropped is true when the connection queue was full and the event
	// was discarded for this consumer.
	Dropped bool `cbor:"2,keyasint,omitempty"`

	// QueueLen is the queue occupancy observed at enqueue time.
	QueueLen int `cbor:"3,keyasint,omitempty"`
}

// DispatchEvent records one dispatch to one subscription.
type DispatchEvent struct {
	// Kind is the event kind that matched.
	Kind string `cbor:"1,keyasint"`

	// Webhook is true when delivery went to a callback endpoint rather
	// than an in-process callback.
	Webhook bool `cbor:"2,keyasint,omitempty"`

	// Endpoint is the webhook URL, when Webhook is set.
	Endpoint string `cbor:"3,keyasint,omitempty"`

	// Failed is true when the delivery attempt failed.
	Failed bool `cbor:"4,keyasint,omitempty"`

	// Elapsed is the delivery duration in nanoseconds.
	Elapsed time.Duration `cbor:"5,keyasint,omitempty"`
}

// RateLimitEvent records an admission decision.
type RateLimitEvent struct {
	// Endpoint is the logical endpoint name the limit applies to.
	Endpoint string `cbor:"1,keyasint"`

	// Allowed is the admission outcome.
	Allowed bool `cbor:"2,keyasint"`

	// RetryAfter is the computed wait for rejected requests.
	RetryAfter time.Duration `cbor:"3,keyasint,omitempty"`
}

// ErrorEvent records a fault.
type ErrorEvent struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Component names the component that observed the fault.
	Component string `cbor:"2,keyasint,omitempty"`
}
