package handler

import (
	"net/http"

	"resellhub/internal/middleware"
	"resellhub/internal/model"
	"resellhub/internal/service"
	"resellhub/pkg/apierror"
	"resellhub/pkg/response"

	"github.com/go-chi/chi/v5"
)

// WithdrawalHandler handles admin withdrawal review and payout.
type WithdrawalHandler struct {
	withdrawals *service.WithdrawalService
}

// NewWithdrawalHandler creates a withdrawal handler.
func NewWithdrawalHandler(withdrawals *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals}
}

// RejectRequest is the body of a rejection.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// PayRequest is the body of a payout confirmation.
type PayRequest struct {
	TxID string `json:"txid"`
}

// List handles GET /api/v1/admin/withdrawals?agent_id=&status=
func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.withdrawals.List(r.Context(), q.Get("agent_id"), model.WithdrawalStatus(q.Get("status")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.List(w, list, len(list), 0)
}

// Approve handles POST /api/v1/admin/withdrawals/{id}/approve
func (h *WithdrawalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := h.withdrawals.Approve(r.Context(), id, middleware.GetAdminID(r.Context()))
	h.transitioned(w, r, id, ok, err, "withdrawal is no longer requested")
}

// Reject handles POST /api/v1/admin/withdrawals/{id}/reject
func (h *WithdrawalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	ok, err := h.withdrawals.Reject(r.Context(), id, middleware.GetAdminID(r.Context()), req.Reason)
	h.transitioned(w, r, id, ok, err, "withdrawal can no longer be rejected")
}

func (h *WithdrawalHandler) transitioned(w http.ResponseWriter, r *http.Request, id string, ok bool, err error, stale string) {
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !ok {
		response.Error(w, apierror.StaleState(stale))
		return
	}
	wd, err := h.withdrawals.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.OK(w, wd)
}

// Pay handles POST /api/v1/admin/withdrawals/{id}/pay
func (h *WithdrawalHandler) Pay(w http.ResponseWriter, r *http.Request) {
	var req PayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	res, err := h.withdrawals.Settle(r.Context(), chi.URLParam(r, "id"), req.TxID, middleware.GetAdminID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !res.Settled {
		response.Error(w, apierror.StaleState(res.Reason))
		return
	}
	response.OK(w, res)
}
