package booking

import (
	"fmt"
	"strings"
)

// PriceBreakdown splits the rental price between the upfront hold taken at
// request time and the remainder charged once the owner approves. Amounts
// are in minor currency units.
type PriceBreakdown struct {
	UpfrontAmount int64  `json:"upfrontAmount"`
	LaterAmount   int64  `json:"laterAmount"`
	Currency      string `json:"currency"`
}

// Total returns the full rental price.
func (p PriceBreakdown) Total() int64 {
	return p.UpfrontAmount + p.LaterAmount
}

// Normalize validates the breakdown and lower-cases the currency code.
func (p PriceBreakdown) Normalize() (PriceBreakdown, error) {
	if p.UpfrontAmount < 0 || p.LaterAmount < 0 {
		return PriceBreakdown{}, NewValidationError("amounts cannot be negative")
	}
	if p.Total() <= 0 {
		return PriceBreakdown{}, NewValidationError("total price must be positive")
	}
	cur := strings.ToLower(strings.TrimSpace(p.Currency))
	if !isCurrencyCode(cur) {
		return PriceBreakdown{}, NewValidationError(fmt.Sprintf("invalid currency code: %q", p.Currency))
	}
	p.Currency = cur
	return p, nil
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// PricingStrategy splits a quoted rental total into upfront and later amounts.
type PricingStrategy interface {
	Split(totalAmount int64, currency string) (PriceBreakdown, error)
}

// DepositPricingStrategy takes a fixed share of the total upfront, expressed
// in basis points, with a floor so the hold covers the platform's fees.
type DepositPricingStrategy struct {
	UpfrontBasisPoints int64
	MinimumUpfront     int64
}

// NewDepositPricingStrategy creates the default 40% split with a 500 minor-unit floor.
func NewDepositPricingStrategy() *DepositPricingStrategy {
	return &DepositPricingStrategy{UpfrontBasisPoints: 4000, MinimumUpfront: 500}
}

// Split computes the breakdown with integer arithmetic only, rounding the
// upfront share up so upfront + later always equals the total.
func (s *DepositPricingStrategy) Split(totalAmount int64, currency string) (PriceBreakdown, error) {
	if totalAmount <= 0 {
		return PriceBreakdown{}, NewValidationError("total amount must be positive")
	}
	if s.UpfrontBasisPoints < 0 || s.UpfrontBasisPoints > 10000 {
		return PriceBreakdown{}, fmt.Errorf("upfront basis points out of range: %d", s.UpfrontBasisPoints)
	}

	upfront := (totalAmount*s.UpfrontBasisPoints + 9999) / 10000
	if upfront < s.MinimumUpfront {
		upfront = s.MinimumUpfront
	}
	if upfront > totalAmount {
		upfront = totalAmount
	}

	return PriceBreakdown{
		UpfrontAmount: upfront,
		LaterAmount:   totalAmount - upfront,
		Currency:      currency,
	}.Normalize()
}
