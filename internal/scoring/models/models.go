package models

import (
	"time"

	"github.com/shopspring/decimal"

	"benefits/internal/eligibility"
	thresholdmodels "benefits/internal/threshold/models"
	"benefits/pkg/domain"
)

// Calculation is a persisted score computation. Its items snapshot the
// possession name and point value at calculation time and never follow later
// catalog changes.
type Calculation struct {
	ID           domain.CalculationID `json:"id"`
	CitizenID    domain.UserID        `json:"citizen_id"`
	TotalScore   decimal.Decimal      `json:"total_score"`
	CalculatedBy domain.UserID        `json:"calculated_by"`
	Notes        string               `json:"notes"`
	CalculatedAt time.Time            `json:"calculated_at"`
	Items        []Item               `json:"items"`
}

type Item struct {
	PossessionID   domain.PossessionID `json:"possession_id"`
	PossessionName string              `json:"possession_name"`
	PointValue     decimal.Decimal     `json:"point_value"`
}

// Line is one active possession in a live score breakdown.
type Line struct {
	PossessionID domain.PossessionID `json:"possession_id"`
	Description  string              `json:"description"`
	TypeID       domain.TypeID       `json:"type_id"`
	TypeName     string              `json:"type_name"`
	CategoryName string              `json:"category_name"`
	Points       decimal.Decimal     `json:"points"`
}

// Breakdown is the eligibility calculator view.
type Breakdown struct {
	CitizenID   domain.UserID            `json:"citizen_id"`
	Lines       []Line                   `json:"lines"`
	Total       decimal.Decimal          `json:"total_score"`
	Ceilings    thresholdmodels.Ceilings `json:"thresholds"`
	Eligibility eligibility.Result       `json:"eligibility"`
}

// Sum adds point values exactly.
func Sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
