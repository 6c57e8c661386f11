package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
)

// MaxEstimatedValue is the largest value NUMERIC(12,2) holds.
var MaxEstimatedValue = decimal.RequireFromString("9999999999.99")

// Status of a recorded possession. Only active possessions count towards the
// social indicator.
type Status string

const (
	StatusActive             Status = "active"
	StatusUnderInvestigation Status = "under_investigation"
	StatusDisputed           Status = "disputed"
	StatusRemoved            Status = "removed"
)

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported possession status: "+s)
	}
	return st, nil
}

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusUnderInvestigation, StatusDisputed, StatusRemoved:
		return true
	}
	return false
}

// Possession is an asset recorded against a citizen by staff.
type Possession struct {
	ID              domain.PossessionID `json:"id"`
	CitizenID       domain.UserID       `json:"citizen_id"`
	TypeID          domain.TypeID       `json:"type_id"`
	Description     string              `json:"description"`
	AcquisitionDate time.Time           `json:"acquisition_date"`
	EstimatedValue  decimal.Decimal     `json:"estimated_value"`
	Status          Status              `json:"status"`
	AddedBy         domain.UserID       `json:"added_by"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// IsActive reports whether the possession counts towards the score.
func (p *Possession) IsActive() bool {
	return p.Status == StatusActive
}

// Details are the staff-editable attributes.
type Details struct {
	TypeID          domain.TypeID
	Description     string
	AcquisitionDate time.Time
	EstimatedValue  decimal.Decimal
}

// Validate checks details against the request date.
func (d *Details) Validate(now time.Time) error {
	d.Description = strings.TrimSpace(d.Description)
	if d.TypeID <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "possession type is required")
	}
	if d.AcquisitionDate.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "acquisition date is required")
	}
	if dateOf(d.AcquisitionDate).After(dateOf(now)) {
		return dErrors.New(dErrors.CodeInvariantViolation, "acquisition date cannot be in the future")
	}
	if d.EstimatedValue.IsNegative() {
		return dErrors.New(dErrors.CodeInvariantViolation, "estimated value cannot be negative")
	}
	if d.EstimatedValue.GreaterThan(MaxEstimatedValue) {
		return dErrors.New(dErrors.CodeInvariantViolation, "estimated value is too large")
	}
	return nil
}

// Apply copies details onto the possession.
func (p *Possession) Apply(d Details, now time.Time) {
	p.TypeID = d.TypeID
	p.Description = d.Description
	p.AcquisitionDate = dateOf(d.AcquisitionDate)
	p.EstimatedValue = d.EstimatedValue.Round(2)
	p.UpdatedAt = now
}

// New builds an active possession.
func New(id domain.PossessionID, citizen, addedBy domain.UserID, d Details, now time.Time) *Possession {
	p := &Possession{
		ID:        id,
		CitizenID: citizen,
		Status:    StatusActive,
		AddedBy:   addedBy,
		CreatedAt: now,
	}
	p.Apply(d, now)
	return p
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Filter narrows a citizen's possession listing. Empty Statuses means all.
type Filter struct {
	Statuses []Status
	Limit    int
}

// Matches reports whether p passes the status filter.
func (f Filter) Matches(p *Possession) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if p.Status == s {
			return true
		}
	}
	return false
}
