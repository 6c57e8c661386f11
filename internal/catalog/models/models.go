package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
)

// MaxPointValue is the largest value NUMERIC(10,4) holds.
var MaxPointValue = decimal.RequireFromString("999999.9999")

// PointScale is the number of decimal places a point value keeps.
const PointScale = 4

// Category groups possession types (vehicles, real estate, ...).
type Category struct {
	ID          domain.CategoryID `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	IsActive    bool              `json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Type carries the point value every possession of that type contributes.
type Type struct {
	ID          domain.TypeID     `json:"id"`
	CategoryID  domain.CategoryID `json:"category_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	PointValue  decimal.Decimal   `json:"point_value"`
	IsActive    bool              `json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewCategory validates and builds a category.
func NewCategory(name, description string, now time.Time) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "category name is required")
	}
	if len(name) > 100 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "category name must be at most 100 characters")
	}
	return &Category{
		Name:        name,
		Description: strings.TrimSpace(description),
		IsActive:    true,
		CreatedAt:   now,
	}, nil
}

// ValidatePoints checks a point value fits NUMERIC(10,4).
func ValidatePoints(points decimal.Decimal) error {
	if points.IsNegative() {
		return dErrors.New(dErrors.CodeInvariantViolation, "point value cannot be negative")
	}
	if points.GreaterThan(MaxPointValue) {
		return dErrors.New(dErrors.CodeInvariantViolation, "point value is too large")
	}
	if !points.Equal(points.Truncate(PointScale)) {
		return dErrors.New(dErrors.CodeInvariantViolation, "point value has more than 4 decimal places")
	}
	return nil
}

// NewType validates and builds a possession type.
func NewType(category domain.CategoryID, name, description string, points decimal.Decimal, now time.Time) (*Type, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "type name is required")
	}
	if len(name) > 100 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "type name must be at most 100 characters")
	}
	if err := ValidatePoints(points); err != nil {
		return nil, err
	}
	return &Type{
		CategoryID:  category,
		Name:        name,
		Description: strings.TrimSpace(description),
		PointValue:  points,
		IsActive:    true,
		CreatedAt:   now,
	}, nil
}
