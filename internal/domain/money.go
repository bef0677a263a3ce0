package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by every balance and amount.
// It matches the DECIMAL(18,4) columns in the schema.
const Scale = 4

// MaxIntegerDigits bounds the integer part so values fit DECIMAL(18,4).
const MaxIntegerDigits = 18 - Scale

var (
	ErrMalformedAmount = errors.New("amount is not a decimal number")
	ErrAmountPrecision = fmt.Errorf("amount has more than %d fractional digits", Scale)
	ErrAmountTooLarge  = fmt.Errorf("amount exceeds %d integer digits", MaxIntegerDigits)
)

// ParseAmount parses a decimal string such as "100.5" or "100.5000".
// Values with more than Scale fractional digits are rejected rather than rounded.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, ErrMalformedAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedAmount, raw)
	}
	if err := CheckScale(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// CheckScale verifies d is representable exactly at Scale digits within DECIMAL(18,4).
func CheckScale(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(Scale)) {
		return ErrAmountPrecision
	}
	if d.Abs().GreaterThanOrEqual(decimal.New(1, MaxIntegerDigits)) {
		return ErrAmountTooLarge
	}
	return nil
}

// FormatAmount renders d with exactly Scale fractional digits, e.g. "100.0000".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

// NormalizeCurrency upper-cases a 3-letter ISO 4217 code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	if len(code) != 3 {
		return "", fmt.Errorf("currency must be a 3-letter code, got %q", code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("currency must be a 3-letter code, got %q", code)
		}
	}
	return code, nil
}
