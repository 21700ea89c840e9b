package service

import (
	"context"
	"testing"
	"time"

	"resellhub/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_PostSaleProfit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.ledger.PostSale(ctx, "a1", model.SaleOrder{OrderID: "o1", UserID: 7},
		decimal.NewFromInt(100), decimal.NewFromInt(110), 3)
	require.NoError(t, err)

	assert.Equal(t, model.LedgerPending, e.Status)
	assert.True(t, e.Profit.Equal(dec("30.00")), e.Profit.String())
	assert.True(t, e.MarkupPerItem.Equal(dec("10")))
	assert.Equal(t, "agent:a1", e.Tenant)
	require.NotNil(t, e.MatureAt)
	assert.Equal(t, f.clock.Now().Add(48*time.Hour), *e.MatureAt)

	_, err = f.ledger.PostSale(ctx, "a1", model.SaleOrder{OrderID: "o1"},
		decimal.NewFromInt(100), decimal.NewFromInt(110), 1)
	assert.ErrorIs(t, err, ErrDuplicateSale)

	loss, err := f.ledger.PostSale(ctx, "a1", model.SaleOrder{OrderID: "o2"},
		decimal.NewFromInt(100), decimal.NewFromInt(90), 2)
	require.NoError(t, err)
	assert.True(t, loss.Profit.Equal(dec("-20.00")), loss.Profit.String())
	assert.True(t, loss.MarkupPerItem.Equal(dec("-10")))

	_, err = f.ledger.PostSale(ctx, "a1", model.SaleOrder{OrderID: "o4"},
		decimal.NewFromInt(100), decimal.NewFromInt(-1), 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.ledger.PostSale(ctx, "a1", model.SaleOrder{OrderID: "o3"},
		decimal.NewFromInt(100), decimal.NewFromInt(110), 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLedger_MaturityAndBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.postProfit(t, "a1", "o1", "30")

	b, err := f.ledger.Balance(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, b.Pending.Equal(dec("30")))
	assert.True(t, b.Available.IsZero())

	// Not due yet.
	n, err := f.ledger.Mature(ctx, f.clock.Now().Add(47*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	f.matureAll(t)

	b, err = f.ledger.Balance(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, b.Pending.IsZero())
	assert.True(t, b.Available.Equal(dec("30")))
	assert.True(t, b.TotalEarned.Equal(dec("30")))

	matured, err := f.ledger.Entry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LedgerMatured, matured.Status)
	require.NotNil(t, matured.MaturedAt)
	firstMaturedAt := *matured.MaturedAt
	assert.Equal(t, f.clock.Now(), firstMaturedAt)

	n, err = f.ledger.Mature(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n, "re-running a sweep changes nothing")

	n, err = f.ledger.Mature(ctx, f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	again, err := f.ledger.Entry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LedgerMatured, again.Status)
	require.NotNil(t, again.MaturedAt)
	assert.Equal(t, firstMaturedAt, *again.MaturedAt)
}

func TestLedger_LossEntrySettlesWithItsNeighbours(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAgent(t, "a1")

	f.postProfit(t, "a1", "o1", "30")
	f.postProfit(t, "a1", "o2", "-5")
	f.postProfit(t, "a1", "o3", "20")
	f.matureAll(t)

	b, err := f.ledger.Balance(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(dec("45")), b.Available.String())

	w, err := f.withdrawals.Request(ctx, "a1", dec("25"), "")
	require.NoError(t, err)
	_, err = f.withdrawals.Approve(ctx, w.ID, 1)
	require.NoError(t, err)

	res, err := f.withdrawals.Settle(ctx, w.ID, "tx", 1)
	require.NoError(t, err)
	require.True(t, res.Settled, res.Reason)
	require.Len(t, res.Entries, 2)
	assert.True(t, res.Entries[1].Profit.Equal(dec("-5")))
}

func TestLedger_RefundReversal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.postProfit(t, "a1", "o1", "30")

	_, err := f.ledger.PostRefund(ctx, "a2", e.ID, "wrong agent")
	assert.ErrorIs(t, err, ErrAgentMismatch)

	refund, err := f.ledger.PostRefund(ctx, "a1", e.ID, "chargeback")
	require.NoError(t, err)
	assert.Equal(t, model.LedgerRefund, refund.Type)
	assert.Equal(t, e.ID, refund.OriginalLedgerID)
	assert.True(t, refund.Profit.Equal(dec("-30")))

	orig, err := f.ledger.Entry(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, orig.Reverted)
	assert.Equal(t, "chargeback", orig.RevertReason)

	_, err = f.ledger.PostRefund(ctx, "a1", e.ID, "again")
	assert.ErrorIs(t, err, ErrAlreadyReverted)

	_, err = f.ledger.PostRefund(ctx, "a1", refund.ID, "refund of refund")
	assert.ErrorIs(t, err, ErrNotRevertible)

	_, err = f.ledger.PostRefund(ctx, "a1", "missing", "x")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	// A reverted entry never matures and never counts.
	f.matureAll(t)
	b, err := f.ledger.Balance(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, b.Pending.IsZero())
	assert.True(t, b.Available.IsZero())
	assert.True(t, b.TotalEarned.IsZero())
}

func TestLedger_RefundOfWithdrawnEntryRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createAgent(t, "a1")

	e := f.postProfit(t, "a1", "o1", "20")
	f.matureAll(t)

	w, err := f.withdrawals.Request(ctx, "a1", dec("20"), "")
	require.NoError(t, err)
	_, err = f.withdrawals.Approve(ctx, w.ID, 1)
	require.NoError(t, err)
	res, err := f.withdrawals.Settle(ctx, w.ID, "tx-1", 1)
	require.NoError(t, err)
	require.True(t, res.Settled)

	_, err = f.ledger.PostRefund(ctx, "a1", e.ID, "late chargeback")
	assert.ErrorIs(t, err, ErrNotRevertible)
}

func TestLedger_RepairRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.postProfit(t, "a1", "o1", "12.50")

	// Simulate a crash between flagging the original and inserting its refund.
	ok, err := f.store.MarkReverted(ctx, e.ID, "crash", f.clock.Now())
	require.NoError(t, err)
	require.True(t, ok)

	n, err := f.ledger.RepairRefunds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	refund, err := f.store.FindRefundFor(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, refund.Profit.Equal(dec("-12.50")))

	n, err = f.ledger.RepairRefunds(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLedger_RefundCompletesHalfWrittenPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.postProfit(t, "a1", "o1", "5")
	_, err := f.store.MarkReverted(ctx, e.ID, "crash", f.clock.Now())
	require.NoError(t, err)

	refund, err := f.ledger.PostRefund(ctx, "a1", e.ID, "retry")
	require.NoError(t, err)
	assert.Equal(t, e.ID, refund.OriginalLedgerID)

	_, err = f.ledger.PostRefund(ctx, "a1", e.ID, "retry")
	assert.ErrorIs(t, err, ErrAlreadyReverted)
}

func TestLedger_BalanceCacheInvalidatedOnPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.postProfit(t, "a1", "o1", "10")
	b, err := f.ledger.Balance(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, b.Pending.Equal(dec("10")))

	f.postProfit(t, "a1", "o2", "5")
	b, err = f.ledger.Balance(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, b.Pending.Equal(dec("15")))
}

func TestLedger_Entries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.postProfit(t, "a1", "o1", "1")
	f.postProfit(t, "a1", "o2", "2")
	f.postProfit(t, "a2", "o3", "3")

	entries, err := f.ledger.Entries(ctx, "a1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "o2", entries[0].OrderID, "newest first")
}

func TestMaturityScheduler_RunNow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := f.postProfit(t, "a1", "o1", "7")
	f.postProfit(t, "a1", "o2", "3")
	_, err := f.store.MarkReverted(ctx, e.ID, "crash", f.clock.Now())
	require.NoError(t, err)

	f.clock.Advance(49 * time.Hour)
	sched := NewMaturityScheduler(f.ledger, MaturitySchedulerConfig{Interval: time.Hour})
	res, err := sched.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Matured)
	assert.Equal(t, 1, res.Repaired)

	sched.Stop()
	sched.Stop()
}
