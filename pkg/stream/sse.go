package stream

import (
	"fmt"
	"io"
	"net/http"

	"github.com/pulsewire/pulsewire-go/pkg/event"
)

// sseWriter frames events for one text/event-stream response. Not safe for
// concurrent use; each connection's sender goroutine owns its writer.
type sseWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// newSSEWriter sets the stream headers and returns a writer, or an error if
// the ResponseWriter cannot flush.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering

	return &sseWriter{w: w, flusher: flusher}, nil
}

// writeEvent frames one event as "event: <kind>\ndata: <json>\n\n".
func (s *sseWriter) writeEvent(ev *event.Event) error {
	data, err := ev.EncodeJSON()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// writePing emits a comment-only keep-alive frame.
func (s *sseWriter) writePing() error {
	if _, err := io.WriteString(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
