// Package eligibility decides program eligibility from a score, the program
// ceilings and the citizen's insurance situation. It is pure domain logic:
// callers gather the inputs and own every side effect.
package eligibility

import (
	"github.com/shopspring/decimal"

	"benefits/internal/threshold/models"
	"benefits/pkg/domain"
)

// Reason explains a negative outcome.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonScoreAboveThreshold Reason = "score_above_threshold"
	ReasonHasOtherInsurance   Reason = "has_other_insurance"
)

// Result is the outcome for both programs.
type Result struct {
	AMOEligible       bool   `json:"amo_eligible"`
	SocialAidEligible bool   `json:"social_aid_eligible"`
	AMOReason         Reason `json:"amo_reason,omitempty"`
	SocialAidReason   Reason `json:"social_aid_reason,omitempty"`
}

// Eligible returns the outcome for one program.
func (r Result) Eligible(program domain.Program) bool {
	if program == domain.ProgramAMO {
		return r.AMOEligible
	}
	return r.SocialAidEligible
}

// Evaluate applies the program rules. A score equal to the ceiling is
// eligible. Missing thresholds arrive as models.Unreachable.
func Evaluate(score decimal.Decimal, ceilings models.Ceilings, hasOtherInsurance bool) Result {
	var r Result
	r.AMOEligible, r.AMOReason = evaluateAMO(score, ceilings.AMO, hasOtherInsurance)
	r.SocialAidEligible, r.SocialAidReason = evaluateSocialAid(score, ceilings.SocialAid)
	return r
}

// evaluateAMO: other insurance disqualifies before the score is considered.
func evaluateAMO(score, ceiling decimal.Decimal, hasOtherInsurance bool) (bool, Reason) {
	if hasOtherInsurance {
		return false, ReasonHasOtherInsurance
	}
	if score.GreaterThan(ceiling) {
		return false, ReasonScoreAboveThreshold
	}
	return true, ReasonNone
}

func evaluateSocialAid(score, ceiling decimal.Decimal) (bool, Reason) {
	if score.GreaterThan(ceiling) {
		return false, ReasonScoreAboveThreshold
	}
	return true, ReasonNone
}
