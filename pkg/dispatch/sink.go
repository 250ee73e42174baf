package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pulsewire/pulsewire-go/pkg/event"
)

// Notification is the payload delivered to a sink for one matching
// subscription.
type Notification struct {
	// SubscriptionID identifies the matched subscription.
	SubscriptionID string `json:"subscriptionId"`

	// EventID identifies the published event.
	EventID string `json:"eventId"`

	// Kind is the event kind.
	Kind event.Kind `json:"kind"`

	// Data is the opaque event payload.
	Data map[string]any `json:"data,omitempty"`

	// Timestamp is the event publish time.
	Timestamp time.Time `json:"timestamp"`

	// Metadata carries delivery context (client ID, topic).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Sink is one delivery target for notifications. The interface is closed:
// the only implementations are CallbackSink (in-process) and WebhookSink
// (outbound POST), and the dispatcher branches on the Kind tag rather than
// on dynamic types.
type Sink interface {
	// Kind tags the sink variant.
	Kind() SinkKind

	// Deliver sends one notification. Errors are recorded by the
	// dispatcher and never propagate to the publisher.
	Deliver(ctx context.Context, n Notification) error
}

// SinkKind tags the sink variant.
type SinkKind uint8

const (
	// SinkCallback is an in-process callback function.
	SinkCallback SinkKind = iota

	// SinkWebhook is a best-effort outbound HTTP POST.
	SinkWebhook
)

// String returns a human-readable sink kind name.
func (k SinkKind) String() string {
	switch k {
	case SinkCallback:
		return "CALLBACK"
	case SinkWebhook:
		return "WEBHOOK"
	default:
		return "UNKNOWN"
	}
}

// Callback is an in-process notification consumer.
type Callback func(n Notification)

// CallbackSink wraps an in-process callback.
type CallbackSink struct {
	fn Callback
}

// NewCallbackSink creates a sink invoking fn synchronously.
func NewCallbackSink(fn Callback) *CallbackSink {
	return &CallbackSink{fn: fn}
}

// Kind returns SinkCallback.
func (s *CallbackSink) Kind() SinkKind { return SinkCallback }

// Deliver invokes the callback. A panicking callback is converted to an
// error so it cannot abort the dispatch cycle for other subscribers.
func (s *CallbackSink) Deliver(_ context.Context, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panic: %v", r)
		}
	}()
	s.fn(n)
	return nil
}

// WebhookSink posts notifications to an external callback endpoint. Delivery
// is single-attempt with a bounded timeout; there is no retry queue.
type WebhookSink struct {
	endpoint string
	client   *http.Client
}

// NewWebhookSink creates a sink posting to endpoint via client.
func NewWebhookSink(endpoint string, client *http.Client) *WebhookSink {
	return &WebhookSink{endpoint: endpoint, client: client}
}

// Kind returns SinkWebhook.
func (s *WebhookSink) Kind() SinkKind { return SinkWebhook }

// Deliver issues one JSON POST. Any non-2xx status is a delivery failure.
func (s *WebhookSink) Deliver(ctx context.Context, n Notification) error {
	body, err := encodeNotification(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

// Compile-time interface satisfaction checks.
var (
	_ Sink = (*CallbackSink)(nil)
	_ Sink = (*WebhookSink)(nil)
)
