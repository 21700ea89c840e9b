package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgentStatus is the lifecycle status of a reseller agent.
type AgentStatus string

const (
	AgentActive    AgentStatus = "active"
	AgentPaused    AgentStatus = "paused"
	AgentSuspended AgentStatus = "suspended"
)

// Valid reports whether s is a known agent status.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentActive, AgentPaused, AgentSuspended:
		return true
	}
	return false
}

// MarkupType selects how an agent's markup is applied to the base price.
type MarkupType string

const (
	MarkupFixed   MarkupType = "fixed"
	MarkupPercent MarkupType = "percent"
)

// Pricing is an agent's markup configuration.
type Pricing struct {
	MarkupType  MarkupType      `json:"markup_type"`
	MarkupValue decimal.Decimal `json:"markup_value"`
}

// Payout holds where and when an agent may be paid.
type Payout struct {
	WalletAddress string          `json:"wallet_address"`
	MinWithdrawal decimal.Decimal `json:"min_withdrawal"`
}

// Agent is a reseller storefront operating its own bot.
type Agent struct {
	AgentID           string      `json:"agent_id"`
	Name              string      `json:"name"`
	Status            AgentStatus `json:"status"`
	Pricing           Pricing     `json:"pricing"`
	Payout            Payout      `json:"payout"`
	OwnerUserID       int64       `json:"owner_user_id,omitempty"`
	BotTokenEncrypted string      `json:"-"`
	CreatedByAdminID  int64       `json:"created_by_admin_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}
