package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
)

func TestNewAccountValidate(t *testing.T) {
	valid := func() NewAccount {
		return NewAccount{NationalID: " ab123456 ", Phone: "+212612345678", FirstName: " Amina ", Role: domain.RoleCitizen}
	}

	t.Run("normalises", func(t *testing.T) {
		n := valid()
		require.NoError(t, n.Validate())
		assert.Equal(t, "AB123456", n.NationalID)
		assert.Equal(t, "Amina", n.FirstName)
	})

	cases := map[string]func(*NewAccount){
		"empty national id": func(n *NewAccount) { n.NationalID = "  " },
		"long national id":  func(n *NewAccount) { n.NationalID = "ABCDEFGHIJKLMNOPQRSTU" },
		"local phone":       func(n *NewAccount) { n.Phone = "0612345678" },
		"short phone":       func(n *NewAccount) { n.Phone = "+21261234567" },
		"unknown role":      func(n *NewAccount) { n.Role = "auditor" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			n := valid()
			mutate(&n)
			assert.True(t, dErrors.HasCode(n.Validate(), dErrors.CodeValidation))
		})
	}
}

func TestLoginCode(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	a := &Account{}
	assert.True(t, a.CodeExpired(now))

	a.SetCode("hash", now.Add(5*time.Minute))
	assert.False(t, a.CodeExpired(now))
	assert.True(t, a.CodeExpired(now.Add(5*time.Minute)))

	a.ClearCode()
	assert.True(t, a.CodeExpired(now))
}

func TestProfileUpdate(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	p := DefaultProfile(domain.UserID(uuid.New()), now.Add(-time.Hour))

	size := 4
	income := decimal.RequireFromString("3500.50")
	insured := true
	details := " CNOPS "
	require.NoError(t, ProfileUpdate{FamilySize: &size, MonthlyIncome: &income, HasOtherInsurance: &insured, OtherInsuranceDetails: &details}.Apply(p, now))
	assert.Equal(t, 4, p.FamilySize)
	assert.True(t, p.MonthlyIncome.Equal(income))
	assert.Equal(t, "CNOPS", p.OtherInsuranceDetails)
	assert.Equal(t, now, p.UpdatedAt)

	insured = false
	require.NoError(t, ProfileUpdate{HasOtherInsurance: &insured}.Apply(p, now))
	assert.Empty(t, p.OtherInsuranceDetails)

	zero := 0
	assert.True(t, dErrors.HasCode(ProfileUpdate{FamilySize: &zero}.Apply(p, now), dErrors.CodeInvariantViolation))
	negative := decimal.NewFromInt(-1)
	assert.True(t, dErrors.HasCode(ProfileUpdate{MonthlyIncome: &negative}.Apply(p, now), dErrors.CodeInvariantViolation))
	huge := decimal.NewFromInt(10_000_000_000)
	assert.True(t, dErrors.HasCode(ProfileUpdate{MonthlyIncome: &huge}.Apply(p, now), dErrors.CodeInvariantViolation))
}

func TestCitizenFilter(t *testing.T) {
	a := &Account{NationalID: "AB123456", Phone: "+212612345678", FirstName: "Amina", LastName: "Bennani"}
	assert.True(t, CitizenFilter{}.Matches(a))
	assert.True(t, CitizenFilter{Query: "ab12"}.Matches(a))
	assert.True(t, CitizenFilter{Query: "bENNANI"}.Matches(a))
	assert.False(t, CitizenFilter{Query: "zz"}.Matches(a))
}
