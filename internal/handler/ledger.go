package handler

import (
	"net/http"
	"strconv"

	"resellhub/internal/model"
	"resellhub/internal/service"
	"resellhub/pkg/apierror"
	"resellhub/pkg/response"

	"github.com/go-chi/chi/v5"
)

// LedgerHandler handles ledger posting and inspection.
type LedgerHandler struct {
	ledger    *service.LedgerService
	agents    *service.AgentService
	scheduler *service.MaturityScheduler
}

// NewLedgerHandler creates a ledger handler.
func NewLedgerHandler(ledger *service.LedgerService, agents *service.AgentService, scheduler *service.MaturityScheduler) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, agents: agents, scheduler: scheduler}
}

// PostSale handles POST /api/v1/admin/ledger/sales. When agent_price is
// omitted it is quoted from the agent's current pricing.
func (h *LedgerHandler) PostSale(w http.ResponseWriter, r *http.Request) {
	var req model.SaleFinalized
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if req.AgentPrice.IsZero() {
		price, err := h.agents.Quote(r.Context(), req.AgentID, req.BasePrice)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		req.AgentPrice = price
	}

	entry, err := h.ledger.PostSale(r.Context(), req.AgentID, req.Order, req.BasePrice, req.AgentPrice, req.Qty)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.Created(w, entry)
}

// PostRefund handles POST /api/v1/admin/ledger/refunds
func (h *LedgerHandler) PostRefund(w http.ResponseWriter, r *http.Request) {
	var req model.RefundIssued
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.LedgerEntryID == "" {
		response.Error(w, apierror.BadRequest("ledger_entry_id is required"))
		return
	}

	refund, err := h.ledger.PostRefund(r.Context(), req.AgentID, req.LedgerEntryID, req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.Created(w, refund)
}

// Mature handles POST /api/v1/admin/ledger/mature
func (h *LedgerHandler) Mature(w http.ResponseWriter, r *http.Request) {
	res, err := h.scheduler.RunNow(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.OK(w, res)
}

// Entries handles GET /api/v1/admin/agents/{agent_id}/ledger?limit=
func (h *LedgerHandler) Entries(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			response.Error(w, apierror.BadRequest("limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	entries, err := h.ledger.Entries(r.Context(), chi.URLParam(r, "agent_id"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.List(w, entries, len(entries), limit)
}
