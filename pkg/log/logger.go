package log

// Logger is the interface applications implement to receive delivery audit
// events. Pass nil or NoopLogger to disable capture.
type Logger interface {
	// Log records a delivery event. Implementations must be thread-safe.
	// The event should be processed quickly or queued; blocking slows down
	// broadcast and dispatch paths.
	Log(event Event)
}

// NoopLogger discards all events. Use when capture is disabled.
// NoopLogger is safe for concurrent use and usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// MultiLogger fans each record out to several loggers, typically the slog
// adapter for the console plus a FileLogger for capture.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger forwarding to each of loggers in order.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log forwards the event to every underlying logger.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Logger = NoopLogger{}
	_ Logger = (*MultiLogger)(nil)
)
