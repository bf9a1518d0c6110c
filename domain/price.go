package domain

import (
	"errors"
	"fmt"
)

// Price comparison errors
var (
	ErrNegativeAmount      = errors.New("price amount must not be negative")
	ErrInvalidCurrency     = errors.New("currency must be a three-letter ISO code")
	ErrCurrencyMismatch    = errors.New("cannot operate on prices with different currencies")
	ErrNegativeDifference  = errors.New("subtraction would produce a negative price")
)

// Price is a non-negative amount in a single ISO currency.
type Price struct {
	amount   float64
	currency string
}

// NewPrice validates and constructs a price.
func NewPrice(amount float64, currency string) (Price, error) {
	if amount < 0 {
		return Price{}, ErrNegativeAmount
	}
	if len(currency) != 3 {
		return Price{}, ErrInvalidCurrency
	}
	return Price{amount: amount, currency: currency}, nil
}

// Amount returns the numeric amount.
func (p Price) Amount() float64 {
	return p.amount
}

// Currency returns the ISO currency code.
func (p Price) Currency() string {
	return p.currency
}

// Subtract returns the difference between two prices in the same currency.
func (p Price) Subtract(other Price) (Price, error) {
	if p.currency != other.currency {
		return Price{}, ErrCurrencyMismatch
	}
	if other.amount > p.amount {
		return Price{}, ErrNegativeDifference
	}
	return Price{amount: p.amount - other.amount, currency: p.currency}, nil
}

// IsGreaterThan reports whether p exceeds other. Comparing across currencies
// is an error, never a silent coercion.
func (p Price) IsGreaterThan(other Price) (bool, error) {
	if p.currency != other.currency {
		return false, ErrCurrencyMismatch
	}
	return p.amount > other.amount, nil
}

// IsLessThan reports whether p is below other.
func (p Price) IsLessThan(other Price) (bool, error) {
	if p.currency != other.currency {
		return false, ErrCurrencyMismatch
	}
	return p.amount < other.amount, nil
}

// String renders the price for logs and alert payloads.
func (p Price) String() string {
	return fmt.Sprintf("%.2f %s", p.amount, p.currency)
}
