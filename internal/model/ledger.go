package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerType distinguishes profit gained from profit reversed.
type LedgerType string

const (
	LedgerSale   LedgerType = "sale"
	LedgerRefund LedgerType = "refund"
)

// LedgerStatus is the position of an entry in its lifecycle.
type LedgerStatus string

const (
	LedgerPending   LedgerStatus = "pending"
	LedgerMatured   LedgerStatus = "matured"
	LedgerWithdrawn LedgerStatus = "withdrawn"
	LedgerReverted  LedgerStatus = "reverted"
)

// LedgerEntry is one accounting record of agent profit.
type LedgerEntry struct {
	ID               string          `json:"id"`
	AgentID          string          `json:"agent_id"`
	OrderID          string          `json:"order_id"`
	UserID           int64           `json:"user_id,omitempty"`
	Tenant           string          `json:"tenant,omitempty"`
	Type             LedgerType      `json:"type"`
	Status           LedgerStatus    `json:"status"`
	BasePrice        decimal.Decimal `json:"base_price"`
	AgentPrice       decimal.Decimal `json:"agent_price"`
	MarkupPerItem    decimal.Decimal `json:"markup_per_item"`
	Qty              int             `json:"qty"`
	Profit           decimal.Decimal `json:"profit"`
	CreatedAt        time.Time       `json:"created_at"`
	MatureAt         *time.Time      `json:"mature_at,omitempty"`
	MaturedAt        *time.Time      `json:"matured_at,omitempty"`
	WithdrawnAt      *time.Time      `json:"withdrawn_at,omitempty"`
	Reverted         bool            `json:"reverted"`
	RevertReason     string          `json:"revert_reason,omitempty"`
	RevertedAt       *time.Time      `json:"reverted_at,omitempty"`
	WithdrawalID     string          `json:"withdrawal_id,omitempty"`
	OriginalLedgerID string          `json:"original_ledger_id,omitempty"`
}

// SaleOrder identifies the finalized order a sale entry is posted for.
type SaleOrder struct {
	OrderID string `json:"order_id"`
	UserID  int64  `json:"user_id"`
	Tenant  string `json:"tenant"`
}

// Balance aggregates an agent's profit by lifecycle bucket.
type Balance struct {
	AgentID     string          `json:"agent_id"`
	Pending     decimal.Decimal `json:"pending"`
	Available   decimal.Decimal `json:"available"`
	Withdrawn   decimal.Decimal `json:"withdrawn"`
	TotalEarned decimal.Decimal `json:"total_earned"`
}
