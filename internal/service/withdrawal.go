package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"resellhub/internal/model"
	"resellhub/internal/repository"
	"resellhub/pkg/uid"

	"github.com/shopspring/decimal"
)

// DefaultMinWithdrawal applies when an agent has no threshold configured.
var DefaultMinWithdrawal = decimal.NewFromInt(10)

// WithdrawalConfig holds withdrawal settings.
type WithdrawalConfig struct {
	// ClaimTTL is how long a settlement claim blocks other settlers.
	ClaimTTL time.Duration
}

// WithdrawalService guards payout request status transitions and settles
// approved requests against matured ledger entries.
type WithdrawalService struct {
	withdrawals repository.WithdrawalRepository
	agents      repository.AgentRepository
	ledger      *LedgerService
	config      WithdrawalConfig
	now         func() time.Time
}

// NewWithdrawalService creates a withdrawal service.
func NewWithdrawalService(withdrawals repository.WithdrawalRepository, agents repository.AgentRepository, ledger *LedgerService, config WithdrawalConfig) *WithdrawalService {
	if config.ClaimTTL == 0 {
		config.ClaimTTL = 10 * time.Minute
	}
	return &WithdrawalService{
		withdrawals: withdrawals,
		agents:      agents,
		ledger:      ledger,
		config:      config,
		now:         time.Now,
	}
}

// SettlementResult reports the outcome of Settle.
type SettlementResult struct {
	Withdrawal *model.Withdrawal   `json:"withdrawal"`
	Settled    bool                `json:"settled"`
	Entries    []model.LedgerEntry `json:"entries,omitempty"`
	Reason     string              `json:"reason,omitempty"`
}

// Request creates a withdrawal in requested status. The amount must meet the
// agent's minimum and fit in matured profit not already promised to other
// open withdrawals. Balance is read from the store, never the cache.
func (s *WithdrawalService) Request(ctx context.Context, agentID string, amount decimal.Decimal, wallet string) (*model.Withdrawal, error) {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return nil, fmt.Errorf("%w: amount must be positive with at most 2 decimals", ErrInvalidArgument)
	}

	agent, err := s.agents.GetAgent(ctx, agentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	if err != nil {
		return nil, err
	}

	minimum := agent.Payout.MinWithdrawal
	if !minimum.IsPositive() {
		minimum = DefaultMinWithdrawal
	}
	if amount.LessThan(minimum) {
		return nil, fmt.Errorf("%w: minimum is %s", ErrBelowMinimum, minimum.StringFixed(2))
	}

	if wallet == "" {
		wallet = agent.Payout.WalletAddress
	}
	if wallet == "" {
		return nil, fmt.Errorf("%w: no wallet address", ErrInvalidArgument)
	}

	balance, err := s.ledger.computeBalance(ctx, agentID)
	if err != nil {
		return nil, err
	}
	outstanding, err := s.withdrawals.SumOutstanding(ctx, agentID)
	if err != nil {
		return nil, err
	}
	free := balance.Available.Sub(outstanding)
	if amount.GreaterThan(free) {
		return nil, fmt.Errorf("%w: requested %s, available %s",
			ErrInsufficientBalance, amount.StringFixed(2), free.StringFixed(2))
	}

	w := &model.Withdrawal{
		ID:            uid.NewV7(),
		AgentID:       agentID,
		Amount:        amount,
		WalletAddress: wallet,
		Status:        model.WithdrawalRequested,
		RequestedAt:   s.now().UTC(),
	}
	if err := s.withdrawals.InsertWithdrawal(ctx, w); err != nil {
		return nil, err
	}

	log.Printf("[Withdrawal] Requested id=%s agent=%s amount=%s", w.ID, agentID, amount.StringFixed(2))
	return w, nil
}

// Approve moves a requested withdrawal to approved. It returns false when the
// withdrawal is no longer requested, e.g. another admin got there first.
func (s *WithdrawalService) Approve(ctx context.Context, id string, adminID int64) (bool, error) {
	ok, err := s.withdrawals.ApproveWithdrawal(ctx, id, adminID, s.now().UTC())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, s.checkExists(ctx, id)
	}
	log.Printf("[Withdrawal] Approved id=%s admin=%d", id, adminID)
	return true, nil
}

// Reject moves a requested, or approved but not yet settling, withdrawal to
// rejected. It returns false when neither applies.
func (s *WithdrawalService) Reject(ctx context.Context, id string, adminID int64, reason string) (bool, error) {
	ok, err := s.withdrawals.RejectWithdrawal(ctx, id, adminID, reason, s.now().UTC())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, s.checkExists(ctx, id)
	}
	log.Printf("[Withdrawal] Rejected id=%s admin=%d reason=%q", id, adminID, reason)
	return true, nil
}

// Settle pays an approved withdrawal by consuming whole matured entries,
// oldest first, that sum exactly to the amount. If no such set exists
// nothing is consumed and the withdrawal stays approved.
func (s *WithdrawalService) Settle(ctx context.Context, id, txid string, adminID int64) (*SettlementResult, error) {
	if txid == "" {
		return nil, fmt.Errorf("%w: txid required", ErrInvalidArgument)
	}

	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != model.WithdrawalApproved {
		return &SettlementResult{Withdrawal: w, Reason: fmt.Sprintf("withdrawal is %s", w.Status)}, nil
	}

	now := s.now().UTC()
	token := uid.New()
	claimed, err := s.withdrawals.ClaimWithdrawal(ctx, id, token, now, now.Add(-s.config.ClaimTTL))
	if err != nil {
		return nil, err
	}
	if !claimed {
		w, err = s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return &SettlementResult{Withdrawal: w, Reason: "withdrawal is being settled or no longer approved"}, nil
	}

	// Entries left behind by an earlier attempt whose claim expired.
	s.ledger.restoreAbandoned(ctx, id, token)

	entries, ok, err := s.ledger.consumeMatured(ctx, w.AgentID, id, token, w.Amount)
	if err != nil || !ok {
		s.release(ctx, id, token)
		if err != nil {
			return nil, err
		}
		return &SettlementResult{Withdrawal: w, Reason: "matured entries cannot cover the amount exactly without splitting"}, nil
	}

	paid, err := s.withdrawals.MarkWithdrawalPaid(ctx, id, token, txid, adminID, s.now().UTC())
	if err != nil || !paid {
		s.ledger.restoreClaim(ctx, id, token)
		s.release(ctx, id, token)
		if err != nil {
			return nil, err
		}
		return &SettlementResult{Withdrawal: w, Reason: "settlement claim lost"}, nil
	}

	// A stalled earlier settler may have marked entries after our takeover
	// sweep. Only entries under our token back this payment.
	s.ledger.restoreAbandoned(ctx, id, token)
	s.ledger.invalidate(ctx, w.AgentID)
	log.Printf("[Withdrawal] Paid id=%s agent=%s amount=%s entries=%d txid=%s",
		id, w.AgentID, w.Amount.StringFixed(2), len(entries), txid)

	w, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SettlementResult{Withdrawal: w, Settled: true, Entries: entries}, nil
}

// Get returns a withdrawal by id.
func (s *WithdrawalService) Get(ctx context.Context, id string) (*model.Withdrawal, error) {
	w, err := s.withdrawals.GetWithdrawal(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrWithdrawalNotFound, id)
	}
	return w, err
}

// List returns withdrawals filtered by agent and status.
func (s *WithdrawalService) List(ctx context.Context, agentID string, status model.WithdrawalStatus) ([]model.Withdrawal, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, status)
	}
	return s.withdrawals.ListWithdrawals(ctx, agentID, status)
}

func (s *WithdrawalService) checkExists(ctx context.Context, id string) error {
	_, err := s.Get(ctx, id)
	return err
}

func (s *WithdrawalService) release(ctx context.Context, id, token string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := s.withdrawals.ReleaseWithdrawalClaim(rctx, id, token); err != nil {
		log.Printf("[Withdrawal] Release claim on %s failed: %v", id, err)
	}
}
