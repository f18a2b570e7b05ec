package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places kept for stored quantities,
// prices and balances.
const AmountScale = 8

// CashScale is the precision accepted for user-supplied USD balances.
const CashScale = 2

// MaxInitialBalance caps the virtual USD an account can be funded with.
var MaxInitialBalance = decimal.NewFromInt(1_000_000_000)

// RoundAmount rounds d to AmountScale decimal places.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// Fee returns the trading fee charged on a notional value at the given rate.
func Fee(notional, rate decimal.Decimal) decimal.Decimal {
	return RoundAmount(notional.Mul(rate))
}

// ValidateQuantity checks that q is strictly positive and carries at most
// AmountScale decimal places.
func ValidateQuantity(field string, q decimal.Decimal) error {
	if !q.IsPositive() {
		return &ValidationError{Message: fmt.Sprintf("%s must be > 0", field)}
	}
	if !hasAtMostPlaces(q, AmountScale) {
		return &ValidationError{Message: fmt.Sprintf("%s must have at most %d decimal places", field, AmountScale)}
	}
	return nil
}

// ValidateCash checks a user-supplied USD amount: strictly positive, at most
// CashScale decimal places, and not above max.
func ValidateCash(field string, c, max decimal.Decimal) error {
	if !c.IsPositive() {
		return &ValidationError{Message: fmt.Sprintf("%s must be > 0", field)}
	}
	if !hasAtMostPlaces(c, CashScale) {
		return &ValidationError{Message: fmt.Sprintf("%s must have at most %d decimal places", field, CashScale)}
	}
	if c.GreaterThan(max) {
		return &ValidationError{Message: fmt.Sprintf("%s must be <= %s", field, max.String())}
	}
	return nil
}

func hasAtMostPlaces(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}
