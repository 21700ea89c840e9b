// Package pricing computes agent sale prices from the master base price.
package pricing

import (
	"errors"
	"fmt"

	"resellhub/internal/model"

	"github.com/shopspring/decimal"
)

// ErrInvalidPricing is returned when a markup configuration cannot be applied.
var ErrInvalidPricing = errors.New("invalid pricing")

var (
	hundred    = decimal.NewFromInt(100)
	maxPercent = decimal.NewFromInt(100)
)

// Validate checks that p has a known type and a non-negative value.
// Percent markups are capped at 100.
func Validate(p model.Pricing) error {
	if p.MarkupValue.IsNegative() {
		return fmt.Errorf("%w: markup value must not be negative", ErrInvalidPricing)
	}
	switch p.MarkupType {
	case model.MarkupFixed:
		return nil
	case model.MarkupPercent:
		if p.MarkupValue.GreaterThan(maxPercent) {
			return fmt.Errorf("%w: percent markup above 100", ErrInvalidPricing)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown markup type %q", ErrInvalidPricing, p.MarkupType)
	}
}

// ApplyMarkup returns the agent price for one unit at base, rounded to cents.
// An unset pricing leaves the base price unchanged.
func ApplyMarkup(base decimal.Decimal, p model.Pricing) decimal.Decimal {
	return base.Add(MarkupAmount(base, p)).Round(2)
}

// MarkupAmount returns the per-unit markup for base, rounded to cents.
func MarkupAmount(base decimal.Decimal, p model.Pricing) decimal.Decimal {
	switch p.MarkupType {
	case model.MarkupFixed:
		return p.MarkupValue.Round(2)
	case model.MarkupPercent:
		return base.Mul(p.MarkupValue).Div(hundred).Round(2)
	}
	return decimal.Zero
}
