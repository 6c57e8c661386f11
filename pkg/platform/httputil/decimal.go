package httputil

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	dErrors "benefits/pkg/domain-errors"
)

// Numeric describes a NUMERIC(Precision, Scale) column.
type Numeric struct {
	Precision int
	Scale     int
}

var (
	Money  = Numeric{Precision: 12, Scale: 2}
	Points = Numeric{Precision: 10, Scale: 4}
)

// maxDecimalLen bounds the raw input before any digit is inspected.
const maxDecimalLen = 40

// ParseDecimal reads a plain decimal ("-12.50", "3", ".5") that fits col.
// Exponents are refused: "1e-20000000" is tiny on the wire but costly to
// expand.
func ParseDecimal(field, raw string, col Numeric) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	if len(raw) > maxDecimalLen {
		return decimal.Zero, dErrors.New(dErrors.CodeValidation, field+" is too long")
	}

	digits := strings.TrimPrefix(strings.TrimPrefix(raw, "-"), "+")
	whole, frac, _ := strings.Cut(digits, ".")
	if (whole == "" && frac == "") || !allDigits(whole) || !allDigits(frac) {
		return decimal.Zero, dErrors.New(dErrors.CodeValidation, field+" must be a plain decimal number")
	}
	if n := len(strings.TrimLeft(whole, "0")); n > col.Precision-col.Scale {
		return decimal.Zero, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("%s must have at most %d digits before the decimal point", field, col.Precision-col.Scale))
	}
	if n := len(strings.TrimRight(frac, "0")); n > col.Scale {
		return decimal.Zero, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("%s must have at most %d decimal places", field, col.Scale))
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, dErrors.New(dErrors.CodeValidation, field+" must be a plain decimal number")
	}
	return d, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
