package repository

import (
	"context"
	"time"

	"resellhub/internal/model"

	"github.com/shopspring/decimal"
)

// AgentRepository defines agent data access methods.
type AgentRepository interface {
	// CreateAgent inserts a new agent. Returns ErrDuplicate if the id exists.
	CreateAgent(ctx context.Context, agent *model.Agent) error

	// GetAgent returns the agent or ErrNotFound.
	GetAgent(ctx context.Context, agentID string) (*model.Agent, error)

	// ListAgents returns agents with the given status, or all when status is empty.
	ListAgents(ctx context.Context, status model.AgentStatus) ([]model.Agent, error)

	UpdateAgentStatus(ctx context.Context, agentID string, status model.AgentStatus, at time.Time) (bool, error)
	UpdateAgentPricing(ctx context.Context, agentID string, pricing model.Pricing, at time.Time) (bool, error)
	UpdateAgentPayout(ctx context.Context, agentID string, payout model.Payout, at time.Time) (bool, error)
}

// InventoryRepository defines inventory unit data access methods.
type InventoryRepository interface {
	// AddUnits creates count available units for productID and returns their ids.
	AddUnits(ctx context.Context, productID string, count int, at time.Time) ([]string, error)

	// ReserveOne atomically flips one available unit of productID to sold.
	// Returns nil, nil when no unit is available.
	ReserveOne(ctx context.Context, productID string, requesterID int64, at time.Time) (*model.InventoryUnit, error)

	// ReleaseUnits resets sold units back to available and clears sale fields.
	ReleaseUnits(ctx context.Context, unitIDs []string) (int64, error)

	// CountAvailable is advisory only.
	CountAvailable(ctx context.Context, productID string) (int64, error)
}

// LedgerRepository defines ledger entry data access methods.
// Every mutating method is a single conditional document update.
type LedgerRepository interface {
	// InsertEntry returns ErrDuplicate for a second sale on the same order
	// or a second refund for the same original entry.
	InsertEntry(ctx context.Context, entry *model.LedgerEntry) error

	GetEntry(ctx context.Context, id string) (*model.LedgerEntry, error)

	// MarkReverted flags a pending or matured entry as reverted. The status
	// field is left untouched. Returns false if the entry was not eligible.
	MarkReverted(ctx context.Context, id, reason string, at time.Time) (bool, error)

	// FindRefundFor returns the refund entry paired with originalID or ErrNotFound.
	FindRefundFor(ctx context.Context, originalID string) (*model.LedgerEntry, error)

	// ListRevertedSales returns every sale entry flagged reverted.
	ListRevertedSales(ctx context.Context) ([]model.LedgerEntry, error)

	// MatureDue moves every pending, non-reverted sale with mature_at <= now to matured.
	MatureDue(ctx context.Context, now time.Time) (int64, error)

	// SumByStatus totals non-reverted profit per status for an agent.
	SumByStatus(ctx context.Context, agentID string) (map[model.LedgerStatus]decimal.Decimal, error)

	// ListMatured returns the agent's matured, non-reverted entries oldest mature_at first.
	ListMatured(ctx context.Context, agentID string) ([]model.LedgerEntry, error)

	// MarkWithdrawn moves a matured, non-reverted entry to withdrawn under the
	// settlement claim token.
	MarkWithdrawn(ctx context.Context, id, withdrawalID, token string, at time.Time) (bool, error)

	// RestoreWithdrawn returns to matured the entries withdrawalID consumed
	// under token.
	RestoreWithdrawn(ctx context.Context, withdrawalID, token string) (int64, error)

	// RestoreAbandoned returns to matured the entries withdrawalID consumed
	// under any claim other than keepToken.
	RestoreAbandoned(ctx context.Context, withdrawalID, keepToken string) (int64, error)

	// ListEntries returns the agent's newest entries first.
	ListEntries(ctx context.Context, agentID string, limit int) ([]model.LedgerEntry, error)
}

// WithdrawalRepository defines withdrawal data access methods.
type WithdrawalRepository interface {
	InsertWithdrawal(ctx context.Context, w *model.Withdrawal) error
	GetWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error)

	// ListWithdrawals filters by agent and status; empty values match all.
	ListWithdrawals(ctx context.Context, agentID string, status model.WithdrawalStatus) ([]model.Withdrawal, error)

	// ApproveWithdrawal moves requested to approved.
	ApproveWithdrawal(ctx context.Context, id string, adminID int64, at time.Time) (bool, error)

	// RejectWithdrawal moves requested, or approved without a settlement claim, to rejected.
	RejectWithdrawal(ctx context.Context, id string, adminID int64, note string, at time.Time) (bool, error)

	// ClaimWithdrawal takes the settlement lease on an approved withdrawal.
	// A claim older than staleBefore may be taken over.
	ClaimWithdrawal(ctx context.Context, id, token string, at, staleBefore time.Time) (bool, error)

	ReleaseWithdrawalClaim(ctx context.Context, id, token string) error

	// MarkWithdrawalPaid moves an approved withdrawal held by token to paid.
	MarkWithdrawalPaid(ctx context.Context, id, token, txid string, adminID int64, at time.Time) (bool, error)

	// SumOutstanding totals the agent's requested and approved withdrawals.
	SumOutstanding(ctx context.Context, agentID string) (decimal.Decimal, error)
}

// Store is the account store: every repository plus lifecycle methods.
type Store interface {
	AgentRepository
	InventoryRepository
	LedgerRepository
	WithdrawalRepository

	// Stats returns statistics about the store.
	Stats(ctx context.Context) (map[string]interface{}, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
