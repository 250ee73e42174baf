// Package stream is the HTTP transport of the event distribution core. It
// serves long-lived Server-Sent Events connections, the topic control
// endpoint, subscription CRUD and the admin surface, with sliding-window
// admission control in front of every route.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pulsewire/pulsewire-go/pkg/service"
)

// Default transport settings.
const (
	DefaultPingInterval = 30 * time.Second
)

// Rate-limited endpoint names, used as keys in ratelimit.Config.Rules.
const (
	EndpointConnect   = "connect"
	EndpointSubscribe = "subscribe"
	EndpointPublish   = "publish"
)

// Config holds transport configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// PingInterval is how long a connection may go without a real event
	// before a keep-alive comment is written.
	PingInterval time.Duration
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		PingInterval: DefaultPingInterval,
	}
}

// Server terminates HTTP for the core.
type Server struct {
	config Config
	core   *service.Core
	mux    *http.ServeMux
	server *http.Server
}

// NewServer creates a server over an assembled core.
func NewServer(config Config, core *service.Core) *Server {
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultPingInterval
	}

	s := &Server{
		config: config,
		core:   core,
		mux:    http.NewServeMux(),
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:    config.Addr,
		Handler: s.mux,
	}

	return s
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /v1/events", s.handleEvents)
	s.mux.HandleFunc("POST /v1/topics", s.handleTopics)

	s.mux.HandleFunc("POST /v1/subscriptions", s.handleSubscriptionCreate)
	s.mux.HandleFunc("GET /v1/subscriptions", s.handleSubscriptionList)
	s.mux.HandleFunc("GET /v1/subscriptions/{id}", s.handleSubscriptionGet)
	s.mux.HandleFunc("DELETE /v1/subscriptions/{id}", s.handleSubscriptionCancel)
	s.mux.HandleFunc("POST /v1/subscriptions/{id}/pause", s.handleSubscriptionPause)
	s.mux.HandleFunc("POST /v1/subscriptions/{id}/resume", s.handleSubscriptionResume)

	s.mux.HandleFunc("POST /v1/admin/broadcast", s.handleAdminBroadcast)
	s.mux.HandleFunc("GET /v1/admin/stats", s.handleAdminStats)

	s.mux.HandleFunc("GET /v1/health", s.handleHealth)
}

// Handler returns the route handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// admit runs rate-limit admission for one request. On rejection it writes a
// 429 with Retry-After and returns false.
func (s *Server) admit(w http.ResponseWriter, r *http.Request, endpoint string) bool {
	ok, retryAfter := s.core.Limiter.Allow(clientKey(r), endpoint)
	if ok {
		return true
	}

	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds()+1)))
	writeError(w, http.StatusTooManyRequests, fmt.Sprintf("rate limit exceeded, retry in %s", retryAfter.Round(time.Millisecond)))
	return false
}

// clientKey derives the opaque rate-limit key for a request. Identity is
// computed upstream; the transport just forwards the header and falls back
// to the network address.
func clientKey(r *http.Request) string {
	if key := r.Header.Get("X-Client-Key"); key != "" {
		return key
	}
	return r.RemoteAddr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
