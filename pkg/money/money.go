// Package money converts buyer- and seller-entered prices into integer minor units.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MaxMinor is the largest accepted amount (999,999.99 in major units).
	MaxMinor int64 = 99_999_999
	// MaxQuantity bounds a single line item quantity.
	MaxQuantity = 99
)

var (
	ErrEmpty       = errors.New("price is required")
	ErrMalformed   = errors.New("price is not a number")
	ErrNonPositive = errors.New("price must be greater than zero")
	ErrPrecision   = errors.New("price has more than two decimal places")
	ErrTooLarge    = errors.New("price exceeds the maximum allowed amount")
	ErrQuantity    = fmt.Errorf("quantity must be between 1 and %d", MaxQuantity)
)

// ParseMinor parses a major-unit price string such as "25", "25.50" or "$1,250.99"
// and returns the amount in minor units.
func ParseMinor(s string) (int64, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, ErrEmpty
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	if !d.IsPositive() {
		return 0, ErrNonPositive
	}
	if !d.Round(2).Equal(d) {
		return 0, ErrPrecision
	}

	minor := d.Shift(2)
	if minor.GreaterThan(decimal.NewFromInt(MaxMinor)) {
		return 0, ErrTooLarge
	}
	return minor.IntPart(), nil
}

// CheckMinor applies the same bounds as ParseMinor to an amount already in minor units.
func CheckMinor(v int64) error {
	if v <= 0 {
		return ErrNonPositive
	}
	if v > MaxMinor {
		return ErrTooLarge
	}
	return nil
}

// CheckQuantity rejects quantities outside 1..MaxQuantity.
func CheckQuantity(q int) error {
	if q < 1 || q > MaxQuantity {
		return ErrQuantity
	}
	return nil
}

// Format renders minor units as a major-unit string with two decimals, e.g. 2550 -> "25.50".
func Format(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// Amount is an amount in minor units. In JSON it accepts either an integer number of
// minor units (2500) or a major-unit string ("25.00").
type Amount int64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := ParseMinor(s)
		if err != nil {
			return err
		}
		*a = Amount(v)
		return nil
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: minor-unit amounts must be whole numbers", ErrMalformed)
	}
	*a = Amount(v)
	return nil
}

// Int64 returns the amount in minor units.
func (a Amount) Int64() int64 { return int64(a) }
