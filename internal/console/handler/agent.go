package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/toolgate/internal/console/service"
	"github.com/xela07ax/toolgate/internal/domain"
	"go.uber.org/zap"
)

type AgentHandler struct {
	service *service.AgentService
	logger  *zap.Logger
}

func NewAgentHandler(s *service.AgentService, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{service: s, logger: logger.Named("agent-handler")}
}

// Create регистрирует нового агента
// POST /v1/agents
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var a domain.Agent
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.Create(r.Context(), &a); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(a)
}

func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.service.List(r.Context())
	if err != nil {
		http.Error(w, "Failed to fetch agents", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agents)
}

func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	agent, err := h.service.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to retrieve agent", http.StatusInternalServerError)
		return
	}
	if agent == nil {
		http.Error(w, "Agent not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agent)
}

// Block — мгновенная блокировка (kill-switch). Ждем и БД, и Redis-сигнал,
// чтобы гарантировать, что после ответа агент уже отрезан.
func (h *AgentHandler) Block(w http.ResponseWriter, r *http.Request) {
	h.toggleBlock(w, r, h.service.Block)
}

func (h *AgentHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.toggleBlock(w, r, h.service.Unblock)
}

func (h *AgentHandler) toggleBlock(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id string) error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "agent id is required", http.StatusBadRequest)
		return
	}

	if err := action(r.Context(), id); err != nil {
		h.logger.Error("kill-switch toggle failed", zap.String("agent_id", id), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IssueToken выпускает короткоживущий токен для агента
// POST /v1/agents/{id}/token
func (h *AgentHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp, err := h.service.IssueToken(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if resp == nil {
		http.Error(w, "Agent not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
