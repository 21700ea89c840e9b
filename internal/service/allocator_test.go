package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocator_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.allocator.Stock(ctx, "p1", 3)
	require.NoError(t, err)

	_, err = f.allocator.Reserve(ctx, "p1", 7, 5)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	n, err := f.allocator.Available(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "a failed reservation holds nothing")

	ids, err := f.allocator.Reserve(ctx, "p1", 7, 2)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	n, err = f.allocator.Available(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	released, err := f.allocator.Release(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(2), released)
}

func TestAllocator_ConcurrentBuyersNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.allocator.Stock(ctx, "p1", 10)
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		sold   = map[string]int64{}
		failed int
	)
	for buyer := int64(1); buyer <= 8; buyer++ {
		wg.Add(1)
		go func(buyer int64) {
			defer wg.Done()
			ids, err := f.allocator.Reserve(ctx, "p1", buyer, 3)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, ErrInsufficientStock)
				failed++
				return
			}
			for _, id := range ids {
				_, dup := sold[id]
				assert.False(t, dup, "unit %s sold twice", id)
				sold[id] = buyer
			}
		}(buyer)
	}
	wg.Wait()

	n, err := f.allocator.Available(ctx, "p1")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(sold), 10)
	assert.Equal(t, 0, len(sold)%3)
	assert.Equal(t, int64(10-len(sold)), n)
	assert.Equal(t, 8, failed+len(sold)/3)
}

func TestAllocator_StockBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.allocator.Stock(ctx, "p1", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.allocator.Stock(ctx, "", 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.allocator.Reserve(ctx, "p1", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAllocator_SingleUnitBuyersGetExactlyTheStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const stocked, buyers = 10, 25
	_, err := f.allocator.Stock(ctx, "p1", stocked)
	require.NoError(t, err)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		sold         = map[string]bool{}
		successes    int
		insufficient int
	)
	for buyer := int64(1); buyer <= buyers; buyer++ {
		wg.Add(1)
		go func(buyer int64) {
			defer wg.Done()
			ids, err := f.allocator.Reserve(ctx, "p1", buyer, 1)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, ErrInsufficientStock)
				insufficient++
				return
			}
			if !assert.Len(t, ids, 1) {
				return
			}
			assert.False(t, sold[ids[0]], "unit %s sold twice", ids[0])
			sold[ids[0]] = true
			successes++
		}(buyer)
	}
	wg.Wait()

	assert.Equal(t, stocked, successes)
	assert.Equal(t, buyers-stocked, insufficient)
	assert.Len(t, sold, stocked)

	n, err := f.allocator.Available(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(stocked-successes), n)
}
