package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"resellhub/internal/cache"
	"resellhub/internal/model"
	"resellhub/internal/repository"
	"resellhub/internal/tenant"
	"resellhub/pkg/uid"

	"github.com/shopspring/decimal"
)

// LedgerConfig holds revenue ledger settings.
type LedgerConfig struct {
	MaturityWindow time.Duration
	BalanceTTL     time.Duration
}

// LedgerService posts, matures, and reverses agent profit entries.
type LedgerService struct {
	repo   repository.LedgerRepository
	cache  cache.Cache
	config LedgerConfig
	now    func() time.Time
}

// NewLedgerService creates a ledger service. c may be nil to disable
// balance caching.
func NewLedgerService(repo repository.LedgerRepository, c cache.Cache, config LedgerConfig) *LedgerService {
	if config.MaturityWindow == 0 {
		config.MaturityWindow = 48 * time.Hour
	}
	if config.BalanceTTL == 0 {
		config.BalanceTTL = 30 * time.Second
	}
	return &LedgerService{repo: repo, cache: c, config: config, now: time.Now}
}

// PostSale records the agent's signed profit for a finalized order as a pending entry
// that matures after the maturity window. A second sale for the same order is
// rejected with ErrDuplicateSale.
func (s *LedgerService) PostSale(ctx context.Context, agentID string, order model.SaleOrder, basePrice, agentPrice decimal.Decimal, qty int) (*model.LedgerEntry, error) {
	switch {
	case agentID == "" || order.OrderID == "":
		return nil, fmt.Errorf("%w: agent id and order id required", ErrInvalidArgument)
	case qty <= 0:
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidArgument)
	case basePrice.IsNegative() || agentPrice.IsNegative():
		return nil, fmt.Errorf("%w: prices must not be negative", ErrInvalidArgument)
	}

	// A sale below base price posts a negative profit; it matures and is
	// settled like any other entry.

	markup := agentPrice.Sub(basePrice)
	profit := markup.Mul(decimal.NewFromInt(int64(qty))).Round(2)

	now := s.now().UTC()
	matureAt := now.Add(s.config.MaturityWindow)
	t := order.Tenant
	if t == "" {
		t = tenant.ForAgent(agentID)
	}

	entry := &model.LedgerEntry{
		ID:            uid.NewV7(),
		AgentID:       agentID,
		OrderID:       order.OrderID,
		UserID:        order.UserID,
		Tenant:        t,
		Type:          model.LedgerSale,
		Status:        model.LedgerPending,
		BasePrice:     basePrice,
		AgentPrice:    agentPrice,
		MarkupPerItem: markup.Round(2),
		Qty:           qty,
		Profit:        profit,
		CreatedAt:     now,
		MatureAt:      &matureAt,
	}

	if err := s.repo.InsertEntry(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSale, order.OrderID)
		}
		return nil, err
	}

	s.invalidate(ctx, agentID)
	log.Printf("[Ledger] Sale posted agent=%s order=%s profit=%s mature_at=%s",
		agentID, order.OrderID, profit.StringFixed(2), matureAt.Format(time.RFC3339))
	return entry, nil
}

// PostRefund reverses a pending or matured sale entry. The original is
// flagged reverted (its status is kept) and a refund entry carrying the
// negated profit is inserted. At most one refund exists per original; a call
// that finds the original flagged but its refund missing completes the pair.
func (s *LedgerService) PostRefund(ctx context.Context, agentID, entryID, reason string) (*model.LedgerEntry, error) {
	orig, err := s.repo.GetEntry(ctx, entryID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	if err != nil {
		return nil, err
	}
	if orig.AgentID != agentID {
		return nil, ErrAgentMismatch
	}
	if orig.Type != model.LedgerSale {
		return nil, fmt.Errorf("%w: refund entries cannot be reverted", ErrNotRevertible)
	}

	if !orig.Reverted {
		if orig.Status == model.LedgerWithdrawn {
			return nil, fmt.Errorf("%w: entry already withdrawn", ErrNotRevertible)
		}

		now := s.now().UTC()
		ok, err := s.repo.MarkReverted(ctx, entryID, reason, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Lost a race: either withdrawn or reverted by someone else.
			if orig, err = s.repo.GetEntry(ctx, entryID); err != nil {
				return nil, err
			}
			if !orig.Reverted {
				return nil, fmt.Errorf("%w: entry is %s", ErrNotRevertible, orig.Status)
			}
			return s.completeRefund(ctx, orig)
		}
		orig.Reverted = true
		orig.RevertReason = reason
		orig.RevertedAt = &now
		return s.insertRefund(ctx, orig)
	}

	return s.completeRefund(ctx, orig)
}

// completeRefund handles an original already flagged reverted.
func (s *LedgerService) completeRefund(ctx context.Context, orig *model.LedgerEntry) (*model.LedgerEntry, error) {
	_, err := s.repo.FindRefundFor(ctx, orig.ID)
	if err == nil {
		return nil, ErrAlreadyReverted
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	log.Printf("[Ledger] Completing missing refund for entry %s", orig.ID)
	return s.insertRefund(ctx, orig)
}

func (s *LedgerService) insertRefund(ctx context.Context, orig *model.LedgerEntry) (*model.LedgerEntry, error) {
	at := s.now().UTC()
	if orig.RevertedAt != nil {
		at = *orig.RevertedAt
	}

	refund := &model.LedgerEntry{
		ID:               uid.NewV7(),
		AgentID:          orig.AgentID,
		OrderID:          orig.OrderID,
		UserID:           orig.UserID,
		Tenant:           orig.Tenant,
		Type:             model.LedgerRefund,
		Status:           model.LedgerReverted,
		BasePrice:        orig.BasePrice,
		AgentPrice:       orig.AgentPrice,
		MarkupPerItem:    orig.MarkupPerItem,
		Qty:              orig.Qty,
		Profit:           orig.Profit.Neg(),
		CreatedAt:        at,
		RevertReason:     orig.RevertReason,
		RevertedAt:       &at,
		OriginalLedgerID: orig.ID,
	}

	if err := s.repo.InsertEntry(ctx, refund); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyReverted
		}
		return nil, fmt.Errorf("failed to insert refund for %s: %w", orig.ID, err)
	}

	s.invalidate(ctx, orig.AgentID)
	log.Printf("[Ledger] Refund posted agent=%s original=%s profit=%s",
		orig.AgentID, orig.ID, refund.Profit.StringFixed(2))
	return refund, nil
}

// Mature moves every eligible pending entry to matured. Re-running with the
// same now changes nothing.
func (s *LedgerService) Mature(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repo.MatureDue(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 && s.cache != nil {
		if err := s.cache.Clear(ctx); err != nil {
			log.Printf("[Ledger] Balance cache clear failed: %v", err)
		}
	}
	return n, nil
}

// RepairRefunds inserts the refund entry for every reverted sale that lacks
// one. Returns the number of refunds inserted.
func (s *LedgerService) RepairRefunds(ctx context.Context) (int, error) {
	reverted, err := s.repo.ListRevertedSales(ctx)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for i := range reverted {
		orig := &reverted[i]
		_, err := s.repo.FindRefundFor(ctx, orig.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return repaired, err
		}
		if _, err := s.insertRefund(ctx, orig); err != nil {
			if errors.Is(err, ErrAlreadyReverted) {
				continue
			}
			return repaired, err
		}
		repaired++
	}
	if repaired > 0 {
		log.Printf("[Ledger] Repaired %d missing refund entries", repaired)
	}
	return repaired, nil
}

// Balance returns the agent's balance for display. It may lag concurrent
// writes by up to the cache TTL.
func (s *LedgerService) Balance(ctx context.Context, agentID string) (*model.Balance, error) {
	if s.cache == nil {
		return s.computeBalance(ctx, agentID)
	}

	data, err := s.cache.GetOrSet(ctx, balanceKey(agentID), s.config.BalanceTTL, func() ([]byte, error) {
		b, err := s.computeBalance(ctx, agentID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(b)
	})
	if err != nil {
		return nil, err
	}

	var b model.Balance
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode cached balance: %w", err)
	}
	return &b, nil
}

func (s *LedgerService) computeBalance(ctx context.Context, agentID string) (*model.Balance, error) {
	sums, err := s.repo.SumByStatus(ctx, agentID)
	if err != nil {
		return nil, err
	}
	b := &model.Balance{
		AgentID:   agentID,
		Pending:   sums[model.LedgerPending].Round(2),
		Available: sums[model.LedgerMatured].Round(2),
		Withdrawn: sums[model.LedgerWithdrawn].Round(2),
	}
	b.TotalEarned = b.Pending.Add(b.Available).Add(b.Withdrawn)
	return b, nil
}

// Entries returns the agent's newest entries first.
func (s *LedgerService) Entries(ctx context.Context, agentID string, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.ListEntries(ctx, agentID, limit)
}

// Entry returns one ledger entry.
func (s *LedgerService) Entry(ctx context.Context, id string) (*model.LedgerEntry, error) {
	e, err := s.repo.GetEntry(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return e, err
}

// consumeMatured marks matured entries withdrawn for withdrawalID under the
// settlement claim token so that they sum exactly to amount. It returns
// ok=false, with every entry it touched restored, if no exact whole-entry
// prefix exists or another writer took an entry first.
func (s *LedgerService) consumeMatured(ctx context.Context, agentID, withdrawalID, token string, amount decimal.Decimal) ([]model.LedgerEntry, bool, error) {
	matured, err := s.repo.ListMatured(ctx, agentID)
	if err != nil {
		return nil, false, err
	}

	plan, ok := planSettlement(matured, amount)
	if !ok {
		return nil, false, nil
	}

	at := s.now().UTC()
	for i := range plan {
		marked, err := s.repo.MarkWithdrawn(ctx, plan[i].ID, withdrawalID, token, at)
		if err != nil || !marked {
			s.restoreClaim(ctx, withdrawalID, token)
			return nil, false, err
		}
		plan[i].Status = model.LedgerWithdrawn
		plan[i].WithdrawalID = withdrawalID
		plan[i].WithdrawnAt = &at
	}
	return plan, true, nil
}

// restoreClaim returns to matured the entries consumed under token. Entries
// consumed under any other claim are left alone, so a settler that lost its
// claim can never undo the winner's payment.
func (s *LedgerService) restoreClaim(ctx context.Context, withdrawalID, token string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	n, err := s.repo.RestoreWithdrawn(rctx, withdrawalID, token)
	s.logRestore(withdrawalID, "own", n, err)
}

// restoreAbandoned returns to matured the entries of withdrawalID consumed
// under any claim other than keepToken, i.e. by settlers whose claim expired.
func (s *LedgerService) restoreAbandoned(ctx context.Context, withdrawalID, keepToken string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	n, err := s.repo.RestoreAbandoned(rctx, withdrawalID, keepToken)
	s.logRestore(withdrawalID, "abandoned", n, err)
}

func (s *LedgerService) logRestore(withdrawalID, kind string, n int64, err error) {
	if err != nil {
		log.Printf("[Ledger] Restore of %s entries for withdrawal %s failed: %v", kind, withdrawalID, err)
		return
	}
	if n > 0 {
		log.Printf("[Ledger] Restored %d %s entries for withdrawal %s", n, kind, withdrawalID)
	}
}

func (s *LedgerService) invalidate(ctx context.Context, agentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, balanceKey(agentID)); err != nil {
		log.Printf("[Ledger] Balance cache invalidation for %s failed: %v", agentID, err)
	}
}

func balanceKey(agentID string) string {
	return "balance:" + agentID
}

// planSettlement returns the shortest oldest-first run of whole entries whose
// profits sum to amount exactly. Entries are never split, and loss entries
// inside the run are consumed with it. ok is false when no such run exists.
func planSettlement(entries []model.LedgerEntry, amount decimal.Decimal) ([]model.LedgerEntry, bool) {
	if !amount.IsPositive() {
		return nil, false
	}

	sum := decimal.Zero
	for i, e := range entries {
		sum = sum.Add(e.Profit)
		if sum.Equal(amount) {
			return append([]model.LedgerEntry(nil), entries[:i+1]...), true
		}
	}
	return nil, false
}
