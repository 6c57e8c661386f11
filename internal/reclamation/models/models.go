package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
)

// Status of a reclamation:
// pending -> under_investigation -> {approved, rejected} -> closed
type Status string

const (
	StatusPending            Status = "pending"
	StatusUnderInvestigation Status = "under_investigation"
	StatusApproved           Status = "approved"
	StatusRejected           Status = "rejected"
	StatusClosed             Status = "closed"
)

// OpenStatuses are the statuses of a reclamation still being handled.
var OpenStatuses = []Status{StatusPending, StatusUnderInvestigation}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusUnderInvestigation, StatusApproved, StatusRejected, StatusClosed:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown reclamation status: "+s)
}

func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusUnderInvestigation
}

func (s Status) IsResolved() bool {
	return s == StatusApproved || s == StatusRejected
}

// FineReason is recorded on every fine issued for a rejected reclamation.
const FineReason = "fraudulent reclamation"

// Decision is an investigator's verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.TrimSpace(s)); d {
	case DecisionApprove, DecisionReject:
		return d, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "decision must be approve or reject")
}

// Reclamation is a citizen's dispute of a recorded possession.
type Reclamation struct {
	ID                   domain.ReclamationID `json:"id"`
	CitizenID            domain.UserID        `json:"citizen_id"`
	PossessionID         domain.PossessionID  `json:"possession_id"`
	Reason               string               `json:"reason"`
	EvidenceDescription  string               `json:"evidence_description"`
	Status               Status               `json:"status"`
	AssignedInvestigator domain.UserID        `json:"assigned_investigator_id"`
	InvestigationNotes   string               `json:"investigation_notes"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
	ResolvedAt           *time.Time           `json:"resolved_at,omitempty"`
}

// IsAssigned reports whether an investigator has taken the case.
func (r *Reclamation) IsAssigned() bool {
	return !r.AssignedInvestigator.IsNil()
}

// Resolve applies an investigator's decision.
func (r *Reclamation) Resolve(d Decision, notes string, at time.Time) {
	if d == DecisionApprove {
		r.Status = StatusApproved
	} else {
		r.Status = StatusRejected
	}
	r.InvestigationNotes = notes
	r.ResolvedAt = &at
	r.UpdatedAt = at
}

// Fine is the penalty attached to a rejected reclamation. At most one exists
// per reclamation.
type Fine struct {
	ID            domain.FineID        `json:"id"`
	ReclamationID domain.ReclamationID `json:"reclamation_id"`
	CitizenID     domain.UserID        `json:"citizen_id"`
	Amount        decimal.Decimal      `json:"amount"`
	Reason        string               `json:"reason"`
	AppliedBy     domain.UserID        `json:"applied_by"`
	AppliedAt     time.Time            `json:"applied_at"`
	IsPaid        bool                 `json:"is_paid"`
	PaymentDate   *time.Time           `json:"payment_date,omitempty"`
}

// MaxFineAmount is the largest value NUMERIC(12,2) holds.
var MaxFineAmount = decimal.RequireFromString("9999999999.99")

// ValidateFineAmount requires a positive amount with at most two decimals.
func ValidateFineAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "fine amount must be positive")
	}
	if amount.GreaterThan(MaxFineAmount) {
		return dErrors.New(dErrors.CodeInvariantViolation, "fine amount is too large")
	}
	if !amount.Equal(amount.Truncate(2)) {
		return dErrors.New(dErrors.CodeInvariantViolation, "fine amount has more than 2 decimal places")
	}
	return nil
}

// Filter narrows listings. Zero values mean no constraint.
type Filter struct {
	CitizenID    domain.UserID
	Investigator domain.UserID
	Unassigned   bool
	Statuses     []Status
	Limit        int
}

// Matches applies the filter to one reclamation.
func (f Filter) Matches(r *Reclamation) bool {
	if !f.CitizenID.IsNil() && r.CitizenID != f.CitizenID {
		return false
	}
	if !f.Investigator.IsNil() && r.AssignedInvestigator != f.Investigator {
		return false
	}
	if f.Unassigned && r.IsAssigned() {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if r.Status == s {
			return true
		}
	}
	return false
}
