package stream

import (
	"net/http"
	"strings"
	"time"
)

// handleEvents serves one long-lived SSE connection. The client optionally
// supplies a client_id (at most one connection per id; a reconnect bumps the
// previous one) and an initial comma-separated topics list. The sender loop
// drains the connection's bounded queue toward the response writer and emits
// keep-alive pings when no real event has been sent within the ping interval.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, EndpointConnect) {
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	clientID := r.URL.Query().Get("client_id")
	metadata := map[string]string{"remoteAddr": r.RemoteAddr}

	// Cleanup must target this exact connection: a reconnect under the same
	// client_id registers a replacement, and disconnecting by ID here would
	// tear the replacement down.
	conn := s.core.Registry.Connect(clientID, metadata)
	defer s.core.Registry.DisconnectConn(conn)

	for _, topic := range splitTopics(r.URL.Query().Get("topics")) {
		_ = s.core.Registry.SubscribeTopic(conn.ID, topic)
	}

	ping := time.NewTicker(s.config.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			// Client went away; normal disconnect, not an error.
			return

		case ev, ok := <-conn.Events():
			if !ok {
				// Disconnected by the registry (admin, idle eviction
				// or a reconnect under the same id).
				return
			}
			if err := sse.writeEvent(ev); err != nil {
				return
			}
			ping.Reset(s.config.PingInterval)

		case <-ping.C:
			if err := sse.writePing(); err != nil {
				return
			}
		}
	}
}

// splitTopics parses a comma-separated topic list, dropping empty entries.
func splitTopics(raw string) []string {
	if raw == "" {
		return nil
	}
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}
