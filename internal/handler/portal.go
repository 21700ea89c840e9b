package handler

import (
	"net/http"

	"resellhub/internal/middleware"
	"resellhub/internal/model"
	"resellhub/internal/service"
	"resellhub/pkg/apierror"
	"resellhub/pkg/response"

	"github.com/shopspring/decimal"
)

// PortalHandler serves the agent-facing API. The agent is always the one
// named by the request's token.
type PortalHandler struct {
	ledger      *service.LedgerService
	withdrawals *service.WithdrawalService
}

// NewPortalHandler creates a portal handler.
func NewPortalHandler(ledger *service.LedgerService, withdrawals *service.WithdrawalService) *PortalHandler {
	return &PortalHandler{ledger: ledger, withdrawals: withdrawals}
}

// WithdrawalRequest is the body of an agent payout request.
type WithdrawalRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	WalletAddress string          `json:"wallet_address"`
}

func agentFromToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	data := middleware.GetTokenDataFromContext(r.Context())
	if data == nil || data.AgentID == "" {
		response.Error(w, apierror.Unauthorized(""))
		return "", false
	}
	return data.AgentID, true
}

// Balance handles GET /api/v1/agent/balance
func (h *PortalHandler) Balance(w http.ResponseWriter, r *http.Request) {
	agentID, ok := agentFromToken(w, r)
	if !ok {
		return
	}
	b, err := h.ledger.Balance(r.Context(), agentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.OK(w, b)
}

// Withdrawals handles GET /api/v1/agent/withdrawals?status=
func (h *PortalHandler) Withdrawals(w http.ResponseWriter, r *http.Request) {
	agentID, ok := agentFromToken(w, r)
	if !ok {
		return
	}
	list, err := h.withdrawals.List(r.Context(), agentID, model.WithdrawalStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.List(w, list, len(list), 0)
}

// RequestWithdrawal handles POST /api/v1/agent/withdrawals
func (h *PortalHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	agentID, ok := agentFromToken(w, r)
	if !ok {
		return
	}

	var req WithdrawalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	wd, err := h.withdrawals.Request(r.Context(), agentID, req.Amount, req.WalletAddress)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.Created(w, wd)
}
