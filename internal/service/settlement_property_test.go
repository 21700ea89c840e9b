package service

import (
	"testing"

	"resellhub/internal/model"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func entriesFromCents(cents []int) []model.LedgerEntry {
	entries := make([]model.LedgerEntry, len(cents))
	for i, c := range cents {
		entries[i] = model.LedgerEntry{
			ID:     string(rune('a' + i%26)),
			Status: model.LedgerMatured,
			Profit: decimal.New(int64(c), -2),
		}
	}
	return entries
}

// TestPlanSettlementProperties checks that a plan is always an exact,
// unsplit, oldest-first prefix and that one is found whenever it exists.
func TestPlanSettlementProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("plan sums exactly to the amount", prop.ForAll(
		func(cents []int, amountCents int) bool {
			amount := decimal.New(int64(amountCents), -2)
			plan, ok := planSettlement(entriesFromCents(cents), amount)
			if !ok {
				return plan == nil
			}
			sum := decimal.Zero
			for _, e := range plan {
				sum = sum.Add(e.Profit)
			}
			return sum.Equal(amount)
		},
		gen.SliceOf(gen.IntRange(1, 5000)),
		gen.IntRange(1, 20000),
	))

	properties.Property("plan is an oldest-first prefix", prop.ForAll(
		func(cents []int, amountCents int) bool {
			entries := entriesFromCents(cents)
			plan, ok := planSettlement(entries, decimal.New(int64(amountCents), -2))
			if !ok {
				return true
			}
			for i := range plan {
				if plan[i].ID != entries[i].ID || !plan[i].Profit.Equal(entries[i].Profit) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(1, 5000)),
		gen.IntRange(1, 20000),
	))

	properties.Property("settles whenever a prefix matches", prop.ForAll(
		func(cents []int, cut int) bool {
			if len(cents) == 0 {
				return true
			}
			k := cut%len(cents) + 1
			total := 0
			for _, c := range cents[:k] {
				total += c
			}
			plan, ok := planSettlement(entriesFromCents(cents), decimal.New(int64(total), -2))
			return ok && len(plan) == k
		},
		gen.SliceOf(gen.IntRange(1, 5000)),
		gen.IntRange(0, 1000),
	))

	properties.Property("loss entries settle on the shortest matching prefix", prop.ForAll(
		func(cents []int, cut int) bool {
			if len(cents) == 0 {
				return true
			}
			k := cut%len(cents) + 1
			total := 0
			for _, c := range cents[:k] {
				total += c
			}
			plan, ok := planSettlement(entriesFromCents(cents), decimal.New(int64(total), -2))
			if total <= 0 {
				return !ok
			}
			if !ok || len(plan) > k {
				return false
			}
			sum := decimal.Zero
			for _, e := range plan {
				sum = sum.Add(e.Profit)
			}
			return sum.Equal(decimal.New(int64(total), -2))
		},
		gen.SliceOf(gen.IntRange(-2000, 5000)),
		gen.IntRange(0, 1000),
	))

	properties.Property("non-positive amounts never settle", prop.ForAll(
		func(cents []int) bool {
			_, ok := planSettlement(entriesFromCents(cents), decimal.Zero)
			return !ok
		},
		gen.SliceOf(gen.IntRange(1, 5000)),
	))

	properties.TestingRun(t)
}
