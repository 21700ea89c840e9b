package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"resellhub/internal/model"
	"resellhub/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithdrawal_SettleConsumesOldestEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAgent(t, "a1")

	e10 := f.postProfit(t, "a1", "o1", "10")
	e15 := f.postProfit(t, "a1", "o2", "15")
	f.postProfit(t, "a1", "o3", "20")
	f.matureAll(t)

	w, err := f.withdrawals.Request(ctx, "a1", dec("25"), "")
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalRequested, w.Status)
	assert.Equal(t, "TWalleta1", w.WalletAddress)

	ok, err := f.withdrawals.Approve(ctx, w.ID, 9)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := f.withdrawals.Settle(ctx, w.ID, "tx-25", 9)
	require.NoError(t, err)
	require.True(t, res.Settled, res.Reason)
	assert.Equal(t, model.WithdrawalPaid, res.Withdrawal.Status)
	assert.Equal(t, "tx-25", res.Withdrawal.TxID)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, e10.ID, res.Entries[0].ID)
	assert.Equal(t, e15.ID, res.Entries[1].ID)

	b, err := f.ledger.Balance(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(dec("20")), b.Available.String())
	assert.True(t, b.Withdrawn.Equal(dec("25")))
	assert.True(t, b.TotalEarned.Equal(dec("45")))

	// Paid is terminal.
	ok, err = f.withdrawals.Reject(ctx, w.ID, 9, "too late")
	require.NoError(t, err)
	assert.False(t, ok)
	res, err = f.withdrawals.Settle(ctx, w.ID, "tx-again", 9)
	require.NoError(t, err)
	assert.False(t, res.Settled)
}

func TestWithdrawal_SettleWithoutExactCoverLeavesApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAgent(t, "a1")

	f.postProfit(t, "a1", "o1", "10")
	f.postProfit(t, "a1", "o2", "15")
	f.postProfit(t, "a1", "o3", "20")
	f.matureAll(t)

	w, err := f.withdrawals.Request(ctx, "a1", dec("26"), "TOther")
	require.NoError(t, err)
	_, err = f.withdrawals.Approve(ctx, w.ID, 9)
	require.NoError(t, err)

	res, err := f.withdrawals.Settle(ctx, w.ID, "tx-26", 9)
	require.NoError(t, err)
	assert.False(t, res.Settled)
	assert.NotEmpty(t, res.Reason)

	got, err := f.withdrawals.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalApproved, got.Status)

	b, err := f.ledger.Balance(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(dec("45")))
	assert.True(t, b.Withdrawn.IsZero())

	// The claim was released, so the admin can still cancel it.
	ok, err := f.withdrawals.Reject(ctx, w.ID, 9, "cannot settle")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWithdrawal_DoubleApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAgent(t, "a1")
	f.postProfit(t, "a1", "o1", "50")
	f.matureAll(t)

	w, err := f.withdrawals.Request(ctx, "a1", dec("50"), "")
	require.NoError(t, err)

	ok, err := f.withdrawals.Approve(ctx, w.ID, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.withdrawals.Approve(ctx, w.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := f.withdrawals.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ApprovedByAdminID)

	_, err = f.withdrawals.Approve(ctx, "missing", 1)
	assert.ErrorIs(t, err, ErrWithdrawalNotFound)
}

func TestWithdrawal_RequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAgent(t, "a1")
	f.postProfit(t, "a1", "o1", "30")

	// Pending profit is not withdrawable.
	_, err := f.withdrawals.Request(ctx, "a1", dec("20"), "")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	f.matureAll(t)

	_, err = f.withdrawals.Request(ctx, "a1", dec("5"), "")
	assert.ErrorIs(t, err, ErrBelowMinimum)

	_, err = f.withdrawals.Request(ctx, "a1", dec("10.005"), "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.withdrawals.Request(ctx, "nobody", dec("20"), "")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	_, err = f.withdrawals.Request(ctx, "a1", dec("20"), "")
	require.NoError(t, err)

	// 20 of 30 is already promised to the open request.
	_, err = f.withdrawals.Request(ctx, "a1", dec("20"), "")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = f.withdrawals.Request(ctx, "a1", dec("10"), "")
	assert.NoError(t, err)
}

func TestWithdrawal_RejectFreesBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAgent(t, "a1")
	f.postProfit(t, "a1", "o1", "30")
	f.matureAll(t)

	w, err := f.withdrawals.Request(ctx, "a1", dec("30"), "")
	require.NoError(t, err)

	ok, err := f.withdrawals.Reject(ctx, w.ID, 3, "wallet mismatch")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := f.withdrawals.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalRejected, got.Status)
	assert.Equal(t, "wallet mismatch", got.AdminNote)

	_, err = f.withdrawals.Request(ctx, "a1", dec("30"), "")
	assert.NoError(t, err)

	list, err := f.withdrawals.List(ctx, "a1", model.WithdrawalRequested)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.withdrawals.List(ctx, "a1", "bogus")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestWithdrawal_SettleRecoversCrashedAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAgent(t, "a1")
	e := f.postProfit(t, "a1", "o1", "40")
	f.matureAll(t)

	w, err := f.withdrawals.Request(ctx, "a1", dec("40"), "")
	require.NoError(t, err)
	_, err = f.withdrawals.Approve(ctx, w.ID, 1)
	require.NoError(t, err)

	// An earlier settler claimed the withdrawal, consumed the entry and died.
	now := f.clock.Now()
	ok, err := f.store.ClaimWithdrawal(ctx, w.ID, "dead-settler", now, now.Add(-10*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.store.MarkWithdrawn(ctx, e.ID, w.ID, "dead-settler", now)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := f.withdrawals.Settle(ctx, w.ID, "tx", 1)
	require.NoError(t, err)
	assert.False(t, res.Settled, "live claim blocks a second settler")

	f.clock.Advance(11 * time.Minute)
	res, err = f.withdrawals.Settle(ctx, w.ID, "tx", 1)
	require.NoError(t, err)
	require.True(t, res.Settled, res.Reason)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, e.ID, res.Entries[0].ID)
}

// stallingWithdrawals runs beforePaid once, just before the first
// MarkWithdrawalPaid reaches the store, to simulate a settler that stalls
// between consuming entries and recording the payment.
type stallingWithdrawals struct {
	repository.WithdrawalRepository
	once       sync.Once
	beforePaid func()
}

func (r *stallingWithdrawals) MarkWithdrawalPaid(ctx context.Context, id, token, txid string, adminID int64, at time.Time) (bool, error) {
	r.once.Do(r.beforePaid)
	return r.WithdrawalRepository.MarkWithdrawalPaid(ctx, id, token, txid, adminID, at)
}

func TestWithdrawal_ExpiredSettlerCannotUndoPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAgent(t, "a1")
	e := f.postProfit(t, "a1", "o1", "40")
	f.matureAll(t)

	w, err := f.withdrawals.Request(ctx, "a1", dec("40"), "")
	require.NoError(t, err)
	_, err = f.withdrawals.Approve(ctx, w.ID, 1)
	require.NoError(t, err)

	var takeover *SettlementResult
	stalled := &stallingWithdrawals{WithdrawalRepository: f.store}
	stalled.beforePaid = func() {
		f.clock.Advance(11 * time.Minute)
		var err error
		takeover, err = f.withdrawals.Settle(ctx, w.ID, "tx-B", 2)
		require.NoError(t, err)
	}
	slow := NewWithdrawalService(stalled, f.store, f.ledger, WithdrawalConfig{ClaimTTL: 10 * time.Minute})
	slow.now = f.clock.Now

	res, err := slow.Settle(ctx, w.ID, "tx-A", 1)
	require.NoError(t, err)
	assert.False(t, res.Settled)

	require.NotNil(t, takeover)
	require.True(t, takeover.Settled, takeover.Reason)
	require.Len(t, takeover.Entries, 1)
	assert.Equal(t, e.ID, takeover.Entries[0].ID)

	got, err := f.withdrawals.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalPaid, got.Status)
	assert.Equal(t, "tx-B", got.TxID)

	entry, err := f.ledger.Entry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LedgerWithdrawn, entry.Status)
	assert.Equal(t, w.ID, entry.WithdrawalID)

	b, err := f.ledger.computeBalance(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, b.Available.IsZero(), b.Available.String())
	assert.True(t, b.Withdrawn.Equal(dec("40")), b.Withdrawn.String())

	// The profit cannot be requested a second time.
	_, err = f.withdrawals.Request(ctx, "a1", dec("40"), "")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestWithdrawal_PaymentSweepsStrayEntriesOfExpiredClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAgent(t, "a1")
	first := f.postProfit(t, "a1", "o1", "20")
	stray := f.postProfit(t, "a1", "o2", "30")
	f.matureAll(t)

	w, err := f.withdrawals.Request(ctx, "a1", dec("20"), "")
	require.NoError(t, err)
	_, err = f.withdrawals.Approve(ctx, w.ID, 1)
	require.NoError(t, err)

	// A stalled settler marks an entry it never pays for while the current
	// settler is between consuming and recording the payment.
	stalled := &stallingWithdrawals{WithdrawalRepository: f.store}
	stalled.beforePaid = func() {
		ok, err := f.store.MarkWithdrawn(ctx, stray.ID, w.ID, "expired-claim", f.clock.Now())
		require.NoError(t, err)
		require.True(t, ok)
	}
	svc := NewWithdrawalService(stalled, f.store, f.ledger, WithdrawalConfig{ClaimTTL: 10 * time.Minute})
	svc.now = f.clock.Now

	res, err := svc.Settle(ctx, w.ID, "tx", 1)
	require.NoError(t, err)
	require.True(t, res.Settled, res.Reason)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, first.ID, res.Entries[0].ID)

	entry, err := f.ledger.Entry(ctx, stray.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LedgerMatured, entry.Status)
	assert.Empty(t, entry.WithdrawalID)

	b, err := f.ledger.computeBalance(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(dec("30")), b.Available.String())
	assert.True(t, b.Withdrawn.Equal(dec("20")), b.Withdrawn.String())
}
