package service

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"resellhub/internal/cache"
	"resellhub/internal/model"
	"resellhub/internal/repository"
	"resellhub/internal/secret"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// clock is a settable time source shared by the services under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store       *repository.SQLStore
	clock       *clock
	balances    *cache.MemoryCache
	ledger      *LedgerService
	withdrawals *WithdrawalService
	agents      *AgentService
	allocator   *Allocator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "resellhub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	box, err := secret.NewBox(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
	require.NoError(t, err)

	clk := newClock()
	balances := cache.NewMemoryCache(0)
	t.Cleanup(func() { _ = balances.Close() })

	f := &fixture{
		store:     store,
		clock:     clk,
		balances:  balances,
		ledger:    NewLedgerService(store, balances, LedgerConfig{MaturityWindow: 48 * time.Hour, BalanceTTL: time.Minute}),
		agents:    NewAgentService(store, box),
		allocator: NewAllocator(store),
	}
	f.withdrawals = NewWithdrawalService(store, store, f.ledger, WithdrawalConfig{ClaimTTL: 10 * time.Minute})

	f.ledger.now = clk.Now
	f.withdrawals.now = clk.Now
	f.agents.now = clk.Now
	f.allocator.now = clk.Now
	return f
}

func (f *fixture) createAgent(t *testing.T, id string) *model.Agent {
	t.Helper()
	a, err := f.agents.Create(context.Background(), CreateAgentInput{
		AgentID:  id,
		Name:     "Agent " + id,
		BotToken: "123456:bot-token-" + id,
		Pricing:  model.Pricing{MarkupType: model.MarkupFixed, MarkupValue: decimal.NewFromInt(10)},
		Payout:   model.Payout{WalletAddress: "TWallet" + id},
	}, 1)
	require.NoError(t, err)
	return a
}

// postProfit posts a single-item sale whose profit equals profit and
// advances the clock a minute so entries have distinct ages.
func (f *fixture) postProfit(t *testing.T, agentID, orderID, profit string) *model.LedgerEntry {
	t.Helper()
	base := decimal.NewFromInt(100)
	e, err := f.ledger.PostSale(context.Background(), agentID, model.SaleOrder{OrderID: orderID, UserID: 42},
		base, base.Add(decimal.RequireFromString(profit)), 1)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	return e
}

func (f *fixture) matureAll(t *testing.T) {
	t.Helper()
	f.clock.Advance(49 * time.Hour)
	_, err := f.ledger.Mature(context.Background(), f.clock.Now())
	require.NoError(t, err)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
