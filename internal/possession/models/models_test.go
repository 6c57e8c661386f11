package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDetailsValidate(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	valid := func() Details {
		return Details{TypeID: 1, AcquisitionDate: now.AddDate(-1, 0, 0), EstimatedValue: decimal.NewFromInt(80000)}
	}

	t.Run("valid", func(t *testing.T) {
		d := valid()
		assert.NoError(t, d.Validate(now))
	})

	t.Run("acquired today is allowed", func(t *testing.T) {
		d := valid()
		d.AcquisitionDate = time.Date(2026, 4, 1, 23, 0, 0, 0, time.UTC)
		assert.NoError(t, d.Validate(now))
	})

	cases := map[string]func(*Details){
		"future acquisition": func(d *Details) { d.AcquisitionDate = now.AddDate(0, 0, 1) },
		"negative value":     func(d *Details) { d.EstimatedValue = decimal.NewFromInt(-5) },
		"value too large":    func(d *Details) { d.EstimatedValue = decimal.NewFromInt(10_000_000_000) },
		"missing type":       func(d *Details) { d.TypeID = 0 },
		"missing date":       func(d *Details) { d.AcquisitionDate = time.Time{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := valid()
			mutate(&d)
			assert.Error(t, d.Validate(now))
		})
	}
}

func TestFilterMatches(t *testing.T) {
	p := &Possession{Status: StatusRemoved}
	assert.True(t, Filter{}.Matches(p))
	assert.False(t, Filter{Statuses: []Status{StatusActive}}.Matches(p))
	assert.True(t, Filter{Statuses: []Status{StatusActive, StatusRemoved}}.Matches(p))
}
