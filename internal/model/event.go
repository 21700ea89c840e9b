package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an inbound event consumed from the work queue.
type EventType string

const (
	EventSaleFinalized EventType = "sale_finalized"
	EventRefundIssued  EventType = "refund_issued"
)

// Event is the queue envelope.
type Event struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempts   int             `json:"attempts,omitempty"`
}

// SaleFinalized is published once an order has been delivered.
type SaleFinalized struct {
	AgentID    string          `json:"agent_id"`
	Order      SaleOrder       `json:"order"`
	BasePrice  decimal.Decimal `json:"base_price"`
	AgentPrice decimal.Decimal `json:"agent_price"`
	Qty        int             `json:"qty"`
}

// RefundIssued is published when a sale is refunded to the buyer.
type RefundIssued struct {
	AgentID       string `json:"agent_id"`
	LedgerEntryID string `json:"ledger_entry_id"`
	Reason        string `json:"reason"`
}
