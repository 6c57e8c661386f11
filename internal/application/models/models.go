package models

import (
	"time"

	"github.com/shopspring/decimal"

	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
)

// Status of a benefit application:
// draft -> submitted -> under_review -> {approved, rejected}
type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
)

// OpenStatuses block a second application for the same program.
var OpenStatuses = []Status{StatusDraft, StatusSubmitted, StatusUnderReview}

// PendingStatuses are applications waiting on a supervisor.
var PendingStatuses = []Status{StatusSubmitted, StatusUnderReview}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown application status: "+s)
}

func (s Status) IsOpen() bool {
	return s == StatusDraft || s == StatusSubmitted || s == StatusUnderReview
}

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Decision is a supervisor's verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case DecisionApprove, DecisionReject:
		return d, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "decision must be approve or reject")
}

// Application is a citizen's request to join a program. The score and
// threshold are frozen at creation and never change afterwards.
type Application struct {
	ID                     domain.ApplicationID `json:"id"`
	CitizenID              domain.UserID        `json:"citizen_id"`
	Program                domain.Program       `json:"program"`
	Status                 Status               `json:"status"`
	ScoreAtApplication     decimal.Decimal      `json:"score_at_application"`
	ThresholdAtApplication decimal.Decimal      `json:"threshold_at_application"`
	CreatedAt              time.Time            `json:"created_at"`
	SubmittedAt            *time.Time           `json:"submitted_at,omitempty"`
	ReviewedAt             *time.Time           `json:"reviewed_at,omitempty"`
	ReviewedBy             domain.UserID        `json:"reviewed_by"`
	ReviewNotes            string               `json:"review_notes"`
}

// Submit stamps the submission time on a draft.
func (a *Application) Submit(at time.Time) {
	a.Status = StatusSubmitted
	a.SubmittedAt = &at
}

// Review records the supervisor's decision.
func (a *Application) Review(d Decision, reviewer domain.UserID, notes string, at time.Time) {
	if d == DecisionApprove {
		a.Status = StatusApproved
	} else {
		a.Status = StatusRejected
	}
	a.ReviewedBy = reviewer
	a.ReviewNotes = notes
	a.ReviewedAt = &at
}

// RecalculatedSince reports whether a rejected application's cooldown is over:
// the citizen must have recalculated after it was submitted.
func (a *Application) RecalculatedSince(lastCalculated time.Time) bool {
	if a.SubmittedAt == nil {
		return true
	}
	return lastCalculated.After(*a.SubmittedAt)
}

// Filter narrows listings. Zero values mean no constraint.
type Filter struct {
	CitizenID     domain.UserID
	Program       domain.Program
	Statuses      []Status
	ReviewedBy    domain.UserID
	ReviewedSince time.Time
	Limit         int
}

func (f Filter) Matches(a *Application) bool {
	if !f.CitizenID.IsNil() && a.CitizenID != f.CitizenID {
		return false
	}
	if f.Program != "" && a.Program != f.Program {
		return false
	}
	if !f.ReviewedBy.IsNil() && a.ReviewedBy != f.ReviewedBy {
		return false
	}
	if !f.ReviewedSince.IsZero() && (a.ReviewedAt == nil || a.ReviewedAt.Before(f.ReviewedSince)) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if a.Status == s {
			return true
		}
	}
	return false
}
