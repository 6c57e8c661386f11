package models

import (
	"time"

	"github.com/shopspring/decimal"

	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
)

// Unreachable stands in for a missing threshold. It is far above any score a
// citizen can accumulate, so a missing threshold never disqualifies anyone.
var Unreachable = decimal.NewFromInt(999999)

// DateLayout is the wire format of effective dates.
const DateLayout = "2006-01-02"

// Threshold is the maximum score admitted to a program from its effective
// date onward.
type Threshold struct {
	ID            domain.ThresholdID `json:"id"`
	Program       domain.Program     `json:"program"`
	MaxScore      decimal.Decimal    `json:"max_score"`
	EffectiveDate time.Time          `json:"effective_date"`
	IsActive      bool               `json:"is_active"`
	CreatedBy     domain.UserID      `json:"created_by"`
	CreatedAt     time.Time          `json:"created_at"`
}

// DateOf drops the clock part of t, in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// New validates and builds an active threshold.
func New(program domain.Program, maxScore decimal.Decimal, effective time.Time, createdBy domain.UserID, now time.Time) (*Threshold, error) {
	if !program.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unsupported program")
	}
	if maxScore.IsNegative() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "max score cannot be negative")
	}
	if !maxScore.Equal(maxScore.Truncate(4)) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "max score has more than 4 decimal places")
	}
	if effective.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "effective date is required")
	}
	return &Threshold{
		Program:       program,
		MaxScore:      maxScore,
		EffectiveDate: DateOf(effective),
		IsActive:      true,
		CreatedBy:     createdBy,
		CreatedAt:     now,
	}, nil
}

// InForceOn reports whether the row is a candidate for the current threshold
// on the given day.
func (t *Threshold) InForceOn(day time.Time) bool {
	return t.IsActive && !t.EffectiveDate.After(DateOf(day))
}

// Supersedes orders candidates: later effective date first, then higher ID.
func (t *Threshold) Supersedes(other *Threshold) bool {
	if !t.EffectiveDate.Equal(other.EffectiveDate) {
		return t.EffectiveDate.After(other.EffectiveDate)
	}
	return t.ID > other.ID
}

// Ceilings holds the current ceiling for each program, substituting
// Unreachable where no threshold is in force.
type Ceilings struct {
	AMO       decimal.Decimal `json:"amo"`
	SocialAid decimal.Decimal `json:"social_aid"`
}

// For returns the ceiling of one program.
func (c Ceilings) For(program domain.Program) decimal.Decimal {
	if program == domain.ProgramAMO {
		return c.AMO
	}
	return c.SocialAid
}
