package stream

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pulsewire/pulsewire-go/pkg/event"
	"github.com/pulsewire/pulsewire-go/pkg/registry"
	"github.com/pulsewire/pulsewire-go/pkg/subscription"
)

// topicRequest is the control-contract body for topic membership changes.
type topicRequest struct {
	ClientID string `json:"clientId"`
	Topic    string `json:"topic"`
	Action   string `json:"action"` // "subscribe" or "unsubscribe"
}

// handleTopics mutates a live connection's topic set.
func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, EndpointSubscribe) {
		return
	}

	var req topicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.ClientID == "" || req.Topic == "" {
		writeError(w, http.StatusBadRequest, "clientId and topic are required")
		return
	}

	var err error
	switch req.Action {
	case "subscribe":
		err = s.core.Registry.SubscribeTopic(req.ClientID, req.Topic)
	case "unsubscribe":
		err = s.core.Registry.UnsubscribeTopic(req.ClientID, req.Topic)
	default:
		writeError(w, http.StatusBadRequest, "action must be subscribe or unsubscribe")
		return
	}

	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// subscriptionRequest is the create body for fine-grained subscriptions.
type subscriptionRequest struct {
	ClientID         string               `json:"clientId"`
	Kind             event.Kind           `json:"kind"`
	Filter           *subscription.Filter `json:"filter,omitempty"`
	CallbackEndpoint string               `json:"callbackEndpoint,omitempty"`
	TTLSeconds       int64                `json:"ttlSeconds,omitempty"`
}

func (s *Server) handleSubscriptionCreate(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, EndpointSubscribe) {
		return
	}

	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "clientId is required")
		return
	}

	sub, err := s.core.Subscriptions.Create(
		req.ClientID, req.Kind, req.Filter, req.CallbackEndpoint,
		time.Duration(req.TTLSeconds)*time.Second,
	)
	switch {
	case errors.Is(err, subscription.ErrInvalidKind):
		writeError(w, http.StatusBadRequest, "kind is required")
		return
	case errors.Is(err, subscription.ErrResourceExhausted):
		writeError(w, http.StatusConflict, "subscription limit reached for client")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, sub.Info())
}

func (s *Server) handleSubscriptionList(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	subs := s.core.Subscriptions.ByClient(clientID)
	infos := make([]subscription.Info, 0, len(subs))
	for _, sub := range subs {
		infos = append(infos, sub.Info())
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleSubscriptionGet(w http.ResponseWriter, r *http.Request) {
	sub, err := s.core.Subscriptions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	writeJSON(w, http.StatusOK, sub.Info())
}

func (s *Server) handleSubscriptionCancel(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.core.Subscriptions.Cancel)
}

func (s *Server) handleSubscriptionPause(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.core.Subscriptions.Pause)
}

func (s *Server) handleSubscriptionResume(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.core.Subscriptions.Resume)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, op func(string) (bool, error)) {
	changed, err := op(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}
