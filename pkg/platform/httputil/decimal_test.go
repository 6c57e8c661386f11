package httputil

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "benefits/pkg/domain-errors"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		col  Numeric
		want string
		msg  string
	}{
		{name: "money", raw: "750.50", col: Money, want: "750.5"},
		{name: "trimmed", raw: " 12 ", col: Money, want: "12"},
		{name: "leading point", raw: ".5", col: Points, want: "0.5"},
		{name: "negative", raw: "-3.25", col: Money, want: "-3.25"},
		{name: "trailing zeros beyond scale", raw: "1.2000", col: Money, want: "1.2"},
		{name: "leading zeros within precision", raw: "0009999999999.99", col: Money, want: "9999999999.99"},
		{name: "largest money", raw: "9999999999.99", col: Money, want: "9999999999.99"},
		{name: "largest points", raw: "999999.9999", col: Points, want: "999999.9999"},

		{name: "empty", raw: "  ", col: Money, msg: "is required"},
		{name: "word", raw: "lots", col: Money, msg: "plain decimal"},
		{name: "lone point", raw: ".", col: Money, msg: "plain decimal"},
		{name: "two points", raw: "1.2.3", col: Money, msg: "plain decimal"},
		{name: "tiny exponent", raw: "1e-20000000", col: Money, msg: "plain decimal"},
		{name: "huge exponent", raw: "1e20000000", col: Money, msg: "plain decimal"},
		{name: "modest exponent", raw: "1e15", col: Money, msg: "plain decimal"},
		{name: "over money precision", raw: "1000000000000000", col: Money, msg: "at most 10 digits"},
		{name: "over points precision", raw: "1000000", col: Points, msg: "at most 6 digits"},
		{name: "over scale", raw: "1.005", col: Money, msg: "at most 2 decimal places"},
		{name: "over length", raw: "0.000000000000000000000000000000000000001", col: Money, msg: "too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecimal("amount", tt.raw, tt.col)
			if tt.msg != "" {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				assert.Contains(t, err.Error(), tt.msg)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestParseDecimalRefusesExponentsQuickly(t *testing.T) {
	start := time.Now()
	for _, raw := range []string{"1e-20000000", "1e20000000", "9E999999999"} {
		_, err := ParseDecimal("amount", raw, Money)
		require.Error(t, err)
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
