package stream

import (
	"encoding/json"
	"net/http"

	"github.com/pulsewire/pulsewire-go/pkg/event"
)

// broadcastRequest is the admin fan-out body.
type broadcastRequest struct {
	Kind  event.Kind     `json:"kind"`
	Topic string         `json:"topic,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// handleAdminBroadcast publishes an operator-triggered event through the
// regular publish path.
func (s *Server) handleAdminBroadcast(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, EndpointPublish) {
		return
	}

	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Kind == "" {
		writeError(w, http.StatusBadRequest, "kind is required")
		return
	}

	ev := event.New(req.Kind, req.Topic, req.Data)
	s.core.Publish(ev)

	writeJSON(w, http.StatusAccepted, map[string]string{"eventId": ev.ID})
}

// handleAdminStats serves the core's counters.
func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.Stats())
}
