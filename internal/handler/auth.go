package handler

import (
	"net/http"
	"time"

	"resellhub/internal/middleware"
	"resellhub/internal/model"
	"resellhub/internal/service"
	"resellhub/pkg/apierror"
	"resellhub/pkg/response"

	"github.com/go-chi/chi/v5"
)

// AuthHandler issues and revokes agent portal tokens.
type AuthHandler struct {
	tokens *service.TokenService
	agents *service.AgentService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(tokens *service.TokenService, agents *service.AgentService) *AuthHandler {
	return &AuthHandler{tokens: tokens, agents: agents}
}

// TokenResponse represents the response for token generation.
type TokenResponse struct {
	Token     string    `json:"token"`
	AgentID   string    `json:"agent_id"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int       `json:"expires_in"`
}

// IssueAgentToken handles POST /api/v1/admin/agents/{agent_id}/token
func (h *AuthHandler) IssueAgentToken(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")

	agent, err := h.agents.Get(r.Context(), agentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if agent.Status == model.AgentSuspended {
		response.Error(w, apierror.Forbidden("agent is suspended"))
		return
	}

	token, data, err := h.tokens.GenerateToken(r.Context(), agentID, middleware.GetAdminID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Created(w, TokenResponse{
		Token:     token,
		AgentID:   agentID,
		ExpiresAt: data.ExpiresAt,
		ExpiresIn: int(time.Until(data.ExpiresAt).Seconds()),
	})
}

// RevokeToken handles POST /api/v1/agent/token/revoke
func (h *AuthHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Token")
	if token == "" {
		response.Error(w, apierror.BadRequest("X-Token header required"))
		return
	}

	if err := h.tokens.RevokeToken(r.Context(), token); err != nil {
		response.Error(w, apierror.InternalError("failed to revoke token"))
		return
	}

	response.OK(w, map[string]string{"status": "revoked"})
}
