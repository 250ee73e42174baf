// Package event defines the immutable event record that flows through the
// distribution core. An event is created once by the publisher and then
// referenced from connection queues and dispatch tasks; nothing mutates it
// after creation.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind is the coarse category of an event. The well-known kinds below cover
// the upstream producers; anything else is treated as a custom kind.
type Kind string

// Well-known event kinds.
const (
	KindResourceChange Kind = "resource_change"
	KindToolExecution  Kind = "tool_execution"
	KindTaskUpdate     Kind = "task_update"
	KindPaymentUpdate  Kind = "payment_update"
	KindCustom         Kind = "custom"

	// KindConnected is the stream control event emitted into a connection's
	// own queue when it is established.
	KindConnected Kind = "connected"
)

// Event is a single published event. The Data payload is opaque to the core;
// it is carried to consumers without interpretation.
type Event struct {
	// ID uniquely identifies the event (UUID).
	ID string `json:"id"`

	// Kind is the event category used for subscription matching.
	Kind Kind `json:"kind"`

	// Topic is the coarse channel used for connection-level broadcast
	// filtering. May be empty for untargeted broadcasts.
	Topic string `json:"topic,omitempty"`

	// Data is the opaque payload.
	Data map[string]any `json:"data,omitempty"`

	// Timestamp is when the event was published.
	Timestamp time.Time `json:"timestamp"`
}

// New creates an event with a fresh ID and the current time.
func New(kind Kind, topic string, data map[string]any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Attr returns a top-level string attribute of the payload. Matching against
// subscription filters only ever inspects string-valued attributes; a missing
// or non-string value returns "".
func (e *Event) Attr(key string) string {
	if e.Data == nil {
		return ""
	}
	if v, ok := e.Data[key].(string); ok {
		return v
	}
	return ""
}

// EncodeJSON returns the canonical JSON encoding of the event.
func (e *Event) EncodeJSON() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeJSON decodes a JSON-encoded event.
func DecodeJSON(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
