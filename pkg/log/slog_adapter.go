package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes audit events to an slog.Logger.
// Useful for development when you want to see delivery events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger. Drops, failures and errors log at
// Warn level; everything else at Debug.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}

	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.ClientID != "" {
		attrs = append(attrs, slog.String("client_id", event.ClientID))
	}
	if event.SubscriptionID != "" {
		attrs = append(attrs, slog.String("sub_id", event.SubscriptionID))
	}
	if event.EventID != "" {
		attrs = append(attrs, slog.String("event_id", event.EventID))
	}

	level := slog.LevelDebug
	msg := "delivery event"

	switch {
	case event.Connection != nil:
		msg = "connection " + event.Connection.State
		if event.Connection.RemoteAddr != "" {
			attrs = append(attrs, slog.String("remote_addr", event.Connection.RemoteAddr))
		}
		if len(event.Connection.Topics) > 0 {
			attrs = append(attrs, slog.Any("topics", event.Connection.Topics))
		}
	case event.Delivery != nil:
		msg = "event enqueued"
		attrs = append(attrs, slog.Int("queue_len", event.Delivery.QueueLen))
		if event.Delivery.Topic != "" {
			attrs = append(attrs, slog.String("topic", event.Delivery.Topic))
		}
		if event.Delivery.Dropped {
			msg = "event dropped: queue full"
			level = slog.LevelWarn
		}
	case event.Dispatch != nil:
		msg = "subscription notified"
		attrs = append(attrs, slog.String("kind", event.Dispatch.Kind))
		if event.Dispatch.Webhook {
			attrs = append(attrs,
				slog.String("endpoint", event.Dispatch.Endpoint),
				slog.Duration("elapsed", event.Dispatch.Elapsed),
			)
		}
		if event.Dispatch.Failed {
			msg = "subscription delivery failed"
			level = slog.LevelWarn
		}
	case event.RateLimit != nil:
		msg = "request admitted"
		attrs = append(attrs, slog.String("endpoint", event.RateLimit.Endpoint))
		if !event.RateLimit.Allowed {
			msg = "request rate limited"
			level = slog.LevelWarn
			attrs = append(attrs, slog.Duration("retry_after", event.RateLimit.RetryAfter))
		}
	case event.Error != nil:
		msg = event.Error.Message
		level = slog.LevelWarn
		if event.Error.Component != "" {
			attrs = append(attrs, slog.String("component", event.Error.Component))
		}
	}

	a.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
