package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "benefits/pkg/domain-errors"
)

func TestNewType(t *testing.T) {
	now := time.Now()

	t.Run("accepts four decimal places", func(t *testing.T) {
		typ, err := NewType(1, " Car ", "", decimal.RequireFromString("0.1400"), now)
		require.NoError(t, err)
		assert.Equal(t, "Car", typ.Name)
		assert.True(t, typ.IsActive)
	})

	invalid := map[string]string{
		"negative":       "-0.01",
		"too precise":    "0.12345",
		"beyond numeric": "1000000",
	}
	for name, raw := range invalid {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := NewType(1, "Car", "", decimal.RequireFromString(raw), now)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}

	t.Run("requires a name", func(t *testing.T) {
		_, err := NewCategory("  ", "", now)
		assert.Error(t, err)
	})
}
