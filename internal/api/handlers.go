// Package api implements the HTTP surface of the postgres-ai service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/devKanishk15/postgres-ai/internal/agent"
	"github.com/devKanishk15/postgres-ai/internal/catalog"
	"github.com/devKanishk15/postgres-ai/internal/promgw"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Agent      *agent.Agent
	Prometheus *promgw.Client
	Version    string
}

// New creates a Handlers instance.
func New(a *agent.Agent, prom *promgw.Client, version string) *Handlers {
	return &Handlers{Agent: a, Prometheus: prom, Version: version}
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Chat runs one diagnosis through the agent loop.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Agent.Analyze(r.Context(), req.Message, req.ConversationID)
	if err != nil {
		if errors.Is(err, agent.ErrEmptyMessage) {
			respondError(w, http.StatusBadRequest, "message must not be empty")
			return
		}
		log.Error().Err(err).Msg("analysis failed")
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// NewConversation mints a conversation id. Histories are only persisted
// for requests that carry an id, so clients start here when they want a
// multi-turn session.
func (h *Handlers) NewConversation(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusCreated, map[string]string{"conversation_id": uuid.NewString()})
}

// ClearConversation drops a stored conversation history.
func (h *Handlers) ClearConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	h.Agent.ClearConversation(r.Context(), id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared", "conversation_id": id})
}

// DBHealth runs the health summary directly, without the model.
func (h *Handlers) DBHealth(w http.ResponseWriter, r *http.Request) {
	res, err := h.Agent.QuickHealth(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type parseTimeRequest struct {
	Expression string `json:"expression"`
}

// ParseTime resolves a natural language time expression.
func (h *Handlers) ParseTime(w http.ResponseWriter, r *http.Request) {
	expression := r.URL.Query().Get("expression")
	if r.Method == http.MethodPost {
		var req parseTimeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		expression = req.Expression
	}
	if expression == "" {
		respondError(w, http.StatusBadRequest, "expression is required")
		return
	}
	respondJSON(w, http.StatusOK, h.Agent.ParseTimeRange(expression))
}

// ListMetrics returns the metric catalog.
func (h *Handlers) ListMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(catalog.Keys()),
		"metrics": catalog.All(),
	})
}

// GetMetric returns one catalog entry.
func (h *Handlers) GetMetric(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "metricKey")
	def, ok := catalog.Lookup(key)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown metric: "+key)
		return
	}
	respondJSON(w, http.StatusOK, def)
}

// Health reports service health, including Prometheus reachability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	promHealthy := h.Prometheus != nil && h.Prometheus.CheckHealth(r.Context())
	status := "healthy"
	if !promHealthy {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"service":    "postgres-ai",
		"prometheus": promHealthy,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
