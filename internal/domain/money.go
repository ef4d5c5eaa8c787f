package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Money is an amount expressed in the smallest subunit of its currency.
// Gateway payloads carry minor units directly; user-facing payloads carry
// major-unit decimal strings produced by Major and parsed by ParseMajor.
// All conversion between the two representations lives in this file.
type Money struct {
	Units    int64  `firestore:"units" json:"units"`
	Currency string `firestore:"currency" json:"currency"`
}

// ErrMoneyCurrencyMismatch is returned when arithmetic mixes currencies.
var ErrMoneyCurrencyMismatch = errors.New("money: currency mismatch")

// currencyExponents lists minor-unit digits for currencies that deviate from
// the common two-decimal convention.
var currencyExponents = map[string]int{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
}

// CurrencyExponent returns the number of minor-unit digits for the currency.
func CurrencyExponent(currency string) int {
	if exp, ok := currencyExponents[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return exp
	}
	return 2
}

// NewMoney constructs a Money value in minor units.
func NewMoney(units int64, currency string) Money {
	return Money{Units: units, Currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// IsZero reports whether the amount is unset.
func (m Money) IsZero() bool {
	return m.Units == 0 && m.Currency == ""
}

// Add returns the sum of two amounts of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if !strings.EqualFold(m.Currency, other.Currency) {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrMoneyCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Units: m.Units + other.Units, Currency: m.Currency}, nil
}

// MulQuantity scales the amount by a line-item quantity.
func (m Money) MulQuantity(quantity int) Money {
	return Money{Units: m.Units * int64(quantity), Currency: m.Currency}
}

// Equal reports whether two amounts are identical in units and currency.
func (m Money) Equal(other Money) bool {
	return m.Units == other.Units && strings.EqualFold(m.Currency, other.Currency)
}

// Major renders the amount as a major-unit decimal string, e.g. 2500 JPY
// renders as "2500" and 2500 USD as "25.00".
func (m Money) Major() string {
	exp := CurrencyExponent(m.Currency)
	if exp == 0 {
		return strconv.FormatInt(m.Units, 10)
	}

	negative := m.Units < 0
	units := m.Units
	if negative {
		units = -units
	}

	divisor := int64(1)
	for i := 0; i < exp; i++ {
		divisor *= 10
	}

	whole := units / divisor
	frac := units % divisor

	out := fmt.Sprintf("%d.%0*d", whole, exp, frac)
	if negative {
		out = "-" + out
	}
	return out
}

// ParseMajor converts a major-unit decimal string into minor units without
// passing through floating point. "25.00" with USD yields 2500 units.
func ParseMajor(value string, currency string) (Money, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Money{}, errors.New("money: empty amount")
	}

	exp := CurrencyExponent(currency)

	negative := strings.HasPrefix(value, "-")
	if negative {
		value = value[1:]
	}

	whole := value
	frac := ""
	if idx := strings.IndexByte(value, '.'); idx >= 0 {
		whole = value[:idx]
		frac = value[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > exp {
		return Money{}, fmt.Errorf("money: %q exceeds %d decimal places for %s", value, exp, currency)
	}
	for len(frac) < exp {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", value, err)
	}
	if negative {
		units = -units
	}
	return NewMoney(units, currency), nil
}
