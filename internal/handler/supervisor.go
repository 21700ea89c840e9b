package handler

import (
	"net/http"

	"resellhub/internal/supervisor"
	"resellhub/pkg/response"
)

// SupervisorHandler exposes the agent bot supervisor.
type SupervisorHandler struct {
	supervisor *supervisor.Supervisor
}

// NewSupervisorHandler creates a supervisor handler.
func NewSupervisorHandler(sup *supervisor.Supervisor) *SupervisorHandler {
	return &SupervisorHandler{supervisor: sup}
}

// Workers handles GET /api/v1/admin/supervisor/workers
func (h *SupervisorHandler) Workers(w http.ResponseWriter, r *http.Request) {
	workers := h.supervisor.Running()
	response.List(w, workers, len(workers), 0)
}

// Reconcile handles POST /api/v1/admin/supervisor/reconcile
func (h *SupervisorHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.supervisor.Reconcile(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.OK(w, res)
}
