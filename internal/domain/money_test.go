package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("100.5")
	require.NoError(t, err)
	assert.Equal(t, "100.5000", FormatAmount(d))

	d, err = ParseAmount(" 0.0001 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.New(1, -4)))
}

func TestParseAmount_Rejects(t *testing.T) {
	_, err := ParseAmount("")
	assert.ErrorIs(t, err, ErrMalformedAmount)

	_, err = ParseAmount("ten")
	assert.ErrorIs(t, err, ErrMalformedAmount)

	// No silent rounding of a fifth fractional digit.
	_, err = ParseAmount("1.00001")
	assert.ErrorIs(t, err, ErrAmountPrecision)

	_, err = ParseAmount("100000000000000")
	assert.ErrorIs(t, err, ErrAmountTooLarge)

	_, err = ParseAmount("99999999999999.9999")
	assert.NoError(t, err)
}

func TestFormatAmount_RoundTrip(t *testing.T) {
	values := []string{"0.0001", "1", "1000.0000", "123.4567", "99999999999999.9999", "-5.25"}
	for _, raw := range values {
		original, err := ParseAmount(raw)
		require.NoError(t, err, raw)

		text := FormatAmount(original)
		parsed, err := ParseAmount(text)
		require.NoError(t, err, raw)
		assert.True(t, original.Equal(parsed), "text round trip %s -> %s", raw, text)

		payload, err := json.Marshal(map[string]string{"amount": text})
		require.NoError(t, err)
		var decoded map[string]string
		require.NoError(t, json.Unmarshal(payload, &decoded))
		parsed, err = ParseAmount(decoded["amount"])
		require.NoError(t, err)
		assert.True(t, original.Equal(parsed), "json round trip %s", raw)
	}
}

func TestDecimalArithmeticHasNoDrift(t *testing.T) {
	balance, _ := ParseAmount("0.0000")
	step, _ := ParseAmount("0.1")
	for i := 0; i < 10; i++ {
		balance = balance.Add(step)
	}
	assert.Equal(t, "1.0000", FormatAmount(balance))
}

func TestNormalizeCurrency(t *testing.T) {
	c, err := NormalizeCurrency("eur")
	require.NoError(t, err)
	assert.Equal(t, "EUR", c)

	c, err = NormalizeCurrency("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCurrency, c)

	_, err = NormalizeCurrency("EURO")
	assert.Error(t, err)
	_, err = NormalizeCurrency("E1R")
	assert.Error(t, err)
}

func TestParseStrategy(t *testing.T) {
	s, ok := ParseStrategy("", StrategyPessimistic)
	assert.True(t, ok)
	assert.Equal(t, StrategyPessimistic, s)

	s, ok = ParseStrategy("optimistic", StrategyPessimistic)
	assert.True(t, ok)
	assert.Equal(t, StrategyOptimistic, s)

	_, ok = ParseStrategy("yolo", StrategyPessimistic)
	assert.False(t, ok)
}
