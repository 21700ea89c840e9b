package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"resellhub/internal/model"
	"resellhub/internal/queue"
)

// EventHandler applies queued sale and refund events to the ledger.
type EventHandler struct {
	ledger *LedgerService
}

var _ queue.Handler = (*EventHandler)(nil)

// NewEventHandler creates an event handler.
func NewEventHandler(ledger *LedgerService) *EventHandler {
	return &EventHandler{ledger: ledger}
}

// HandleEvent dispatches one event. Replays of an already applied event
// succeed. Errors wrapping queue.ErrMalformed will never succeed on retry.
func (h *EventHandler) HandleEvent(ctx context.Context, ev model.Event) error {
	switch ev.Type {
	case model.EventSaleFinalized:
		var p model.SaleFinalized
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", queue.ErrMalformed, err)
		}
		return h.saleFinalized(ctx, ev.ID, p)
	case model.EventRefundIssued:
		var p model.RefundIssued
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", queue.ErrMalformed, err)
		}
		return h.refundIssued(ctx, ev.ID, p)
	default:
		return fmt.Errorf("%w: unknown event type %q", queue.ErrMalformed, ev.Type)
	}
}

func (h *EventHandler) saleFinalized(ctx context.Context, eventID string, p model.SaleFinalized) error {
	_, err := h.ledger.PostSale(ctx, p.AgentID, p.Order, p.BasePrice, p.AgentPrice, p.Qty)
	if errors.Is(err, ErrDuplicateSale) {
		log.Printf("[Events] Sale for order %s already posted, event %s acked", p.Order.OrderID, eventID)
		return nil
	}
	return classify(err)
}

func (h *EventHandler) refundIssued(ctx context.Context, eventID string, p model.RefundIssued) error {
	_, err := h.ledger.PostRefund(ctx, p.AgentID, p.LedgerEntryID, p.Reason)
	if errors.Is(err, ErrAlreadyReverted) {
		log.Printf("[Events] Entry %s already reverted, event %s acked", p.LedgerEntryID, eventID)
		return nil
	}
	return classify(err)
}

// classify marks domain rejections as permanent so the queue dead-letters
// them instead of retrying.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrEntryNotFound),
		errors.Is(err, ErrAgentMismatch),
		errors.Is(err, ErrNotRevertible):
		return fmt.Errorf("%w: %w", queue.ErrMalformed, err)
	default:
		return err
	}
}
