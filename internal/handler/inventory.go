package handler

import (
	"net/http"

	"resellhub/internal/service"
	"resellhub/pkg/apierror"
	"resellhub/pkg/response"

	"github.com/go-chi/chi/v5"
)

// InventoryHandler handles inventory-related HTTP requests.
type InventoryHandler struct {
	allocator *service.Allocator
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(allocator *service.Allocator) *InventoryHandler {
	return &InventoryHandler{allocator: allocator}
}

// StockRequest is the body of a stocking call.
type StockRequest struct {
	Count int `json:"count"`
}

// ReserveRequest is the body of a reservation call.
type ReserveRequest struct {
	RequesterID int64 `json:"requester_id"`
	Count       int   `json:"count"`
}

// ReleaseRequest is the body of a release call.
type ReleaseRequest struct {
	UnitIDs []string `json:"unit_ids"`
}

// Stock handles POST /api/v1/admin/inventory/{product_id}/stock
func (h *InventoryHandler) Stock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")

	var req StockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	ids, err := h.allocator.Stock(r.Context(), productID, req.Count)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Created(w, map[string]interface{}{
		"product_id": productID,
		"unit_ids":   ids,
		"count":      len(ids),
	})
}

// Reserve handles POST /api/v1/inventory/{product_id}/reserve
func (h *InventoryHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")

	var req ReserveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.RequesterID == 0 {
		response.Error(w, apierror.BadRequest("requester_id is required"))
		return
	}

	ids, err := h.allocator.Reserve(r.Context(), productID, req.RequesterID, req.Count)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"product_id": productID,
		"unit_ids":   ids,
	})
}

// Release handles POST /api/v1/inventory/release
func (h *InventoryHandler) Release(w http.ResponseWriter, r *http.Request) {
	var req ReleaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if len(req.UnitIDs) == 0 {
		response.Error(w, apierror.BadRequest("unit_ids is required"))
		return
	}

	n, err := h.allocator.Release(r.Context(), req.UnitIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.OK(w, map[string]interface{}{"released": n})
}

// Available handles GET /api/v1/inventory/{product_id}/available
func (h *InventoryHandler) Available(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")

	n, err := h.allocator.Available(r.Context(), productID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"product_id": productID,
		"available":  n,
	})
}
