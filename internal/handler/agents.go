package handler

import (
	"net/http"

	"resellhub/internal/middleware"
	"resellhub/internal/model"
	"resellhub/internal/service"
	"resellhub/pkg/response"

	"github.com/go-chi/chi/v5"
)

// AgentHandler handles agent administration.
type AgentHandler struct {
	agents *service.AgentService
	ledger *service.LedgerService
}

// NewAgentHandler creates an agent handler.
func NewAgentHandler(agents *service.AgentService, ledger *service.LedgerService) *AgentHandler {
	return &AgentHandler{agents: agents, ledger: ledger}
}

// Create handles POST /api/v1/admin/agents
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateAgentInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	agent, err := h.agents.Create(r.Context(), in, middleware.GetAdminID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.Created(w, agent)
}

// List handles GET /api/v1/admin/agents?status=
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.List(r.Context(), model.AgentStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.List(w, agents, len(agents), 0)
}

// Get handles GET /api/v1/admin/agents/{agent_id}
func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	agent, err := h.agents.Get(r.Context(), chi.URLParam(r, "agent_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.OK(w, agent)
}

// StatusRequest is the body of a status change.
type StatusRequest struct {
	Status model.AgentStatus `json:"status"`
}

// SetStatus handles PUT /api/v1/admin/agents/{agent_id}/status
func (h *AgentHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.update(w, r, func(id string) error {
		return h.agents.SetStatus(r.Context(), id, req.Status)
	})
}

// SetPricing handles PUT /api/v1/admin/agents/{agent_id}/pricing
func (h *AgentHandler) SetPricing(w http.ResponseWriter, r *http.Request) {
	var req model.Pricing
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.update(w, r, func(id string) error {
		return h.agents.SetPricing(r.Context(), id, req)
	})
}

// SetPayout handles PUT /api/v1/admin/agents/{agent_id}/payout
func (h *AgentHandler) SetPayout(w http.ResponseWriter, r *http.Request) {
	var req model.Payout
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.update(w, r, func(id string) error {
		return h.agents.SetPayout(r.Context(), id, req)
	})
}

func (h *AgentHandler) update(w http.ResponseWriter, r *http.Request, apply func(id string) error) {
	id := chi.URLParam(r, "agent_id")
	if err := apply(id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	agent, err := h.agents.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.OK(w, agent)
}

// Balance handles GET /api/v1/admin/agents/{agent_id}/balance
func (h *AgentHandler) Balance(w http.ResponseWriter, r *http.Request) {
	b, err := h.ledger.Balance(r.Context(), chi.URLParam(r, "agent_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.OK(w, b)
}
