package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WithdrawalStatus is the status of a payout request.
type WithdrawalStatus string

const (
	WithdrawalRequested WithdrawalStatus = "requested"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalPaid      WithdrawalStatus = "paid"
	WithdrawalRejected  WithdrawalStatus = "rejected"
)

// Valid reports whether s is a known withdrawal status.
func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalRequested, WithdrawalApproved, WithdrawalPaid, WithdrawalRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalPaid || s == WithdrawalRejected
}

// Withdrawal is an agent payout request.
type Withdrawal struct {
	ID                string           `json:"id"`
	AgentID           string           `json:"agent_id"`
	Amount            decimal.Decimal  `json:"amount"`
	WalletAddress     string           `json:"wallet_address"`
	Status            WithdrawalStatus `json:"status"`
	RequestedAt       time.Time        `json:"requested_at"`
	ApprovedAt        *time.Time       `json:"approved_at,omitempty"`
	ApprovedByAdminID int64            `json:"approved_by_admin_id,omitempty"`
	PaidAt            *time.Time       `json:"paid_at,omitempty"`
	PaidByAdminID     int64            `json:"paid_by_admin_id,omitempty"`
	RejectedAt        *time.Time       `json:"rejected_at,omitempty"`
	RejectedByAdminID int64            `json:"rejected_by_admin_id,omitempty"`
	TxID              string           `json:"txid,omitempty"`
	AdminNote         string           `json:"admin_note,omitempty"`

	// Settlement claim, held while matured entries are being consumed.
	ClaimToken string     `json:"-"`
	ClaimedAt  *time.Time `json:"-"`
}
