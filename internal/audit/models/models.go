package models

import (
	"time"

	"benefits/pkg/domain"
)

// Action is the closed set of audited action types.
type Action string

const (
	ActionUserLogin               Action = "user_login"
	ActionAccountRegistered       Action = "account_registered"
	ActionAccountVerified         Action = "account_verified"
	ActionProfileUpdated          Action = "profile_updated"
	ActionPossessionAdded         Action = "possession_added"
	ActionPossessionUpdated       Action = "possession_updated"
	ActionPossessionDeleted       Action = "possession_deleted"
	ActionReclamationCreated      Action = "reclamation_created"
	ActionReclamationAssigned     Action = "reclamation_assigned"
	ActionReclamationInvestigated Action = "reclamation_investigated"
	ActionReclamationClosed       Action = "reclamation_closed"
	ActionFinePaid                Action = "fine_paid"
	ActionApplicationDrafted      Action = "application_drafted"
	ActionApplicationSubmitted    Action = "application_submitted"
	ActionApplicationReviewed     Action = "application_reviewed"
	ActionCalculationPerformed    Action = "calculation_performed"
	ActionThresholdCreated        Action = "threshold_created"
	ActionThresholdDeactivated    Action = "threshold_deactivated"
	ActionCategoryCreated         Action = "category_created"
	ActionPossessionTypeCreated   Action = "possession_type_created"
	ActionPossessionTypeUpdated   Action = "possession_type_updated"
)

// Category routes entries downstream (retention, alerting).
type Category string

const (
	CategoryCompliance Category = "compliance"
	CategorySecurity   Category = "security"
	CategoryOperations Category = "operations"
)

var actionCategories = map[Action]Category{
	ActionUserLogin:               CategorySecurity,
	ActionAccountRegistered:       CategorySecurity,
	ActionAccountVerified:         CategorySecurity,
	ActionProfileUpdated:          CategoryCompliance,
	ActionPossessionAdded:         CategoryCompliance,
	ActionPossessionUpdated:       CategoryCompliance,
	ActionPossessionDeleted:       CategoryCompliance,
	ActionReclamationCreated:      CategoryCompliance,
	ActionReclamationAssigned:     CategoryOperations,
	ActionReclamationInvestigated: CategoryCompliance,
	ActionReclamationClosed:       CategoryOperations,
	ActionFinePaid:                CategoryCompliance,
	ActionApplicationDrafted:      CategoryOperations,
	ActionApplicationSubmitted:    CategoryCompliance,
	ActionApplicationReviewed:     CategoryCompliance,
	ActionCalculationPerformed:    CategoryOperations,
	ActionThresholdCreated:        CategoryCompliance,
	ActionThresholdDeactivated:    CategoryCompliance,
	ActionCategoryCreated:         CategoryOperations,
	ActionPossessionTypeCreated:   CategoryOperations,
	ActionPossessionTypeUpdated:   CategoryCompliance,
}

func (a Action) IsValid() bool {
	_, ok := actionCategories[a]
	return ok
}

// Category returns the routing category; unknown actions are operations.
func (a Action) Category() Category {
	if c, ok := actionCategories[a]; ok {
		return c
	}
	return CategoryOperations
}

// Entry is one immutable audit log row.
type Entry struct {
	ID               domain.AuditEntryID `json:"id"`
	ActorID          domain.UserID       `json:"actor_id"`
	Action           Action              `json:"action_type"`
	Description      string              `json:"description"`
	IPAddress        string              `json:"ip_address"`
	UserAgent        string              `json:"user_agent"`
	RelatedCitizenID domain.UserID       `json:"related_citizen_id"`
	Metadata         map[string]any      `json:"metadata"`
	CreatedAt        time.Time           `json:"created_at"`
}

// HasActor is false for system actions.
func (e *Entry) HasActor() bool { return !e.ActorID.IsNil() }

// HasRelatedCitizen reports whether the entry concerns a citizen.
func (e *Entry) HasRelatedCitizen() bool { return !e.RelatedCitizenID.IsNil() }

// Record is what services hand to the recorder. Request metadata (actor, IP,
// user agent, time) is filled from the context.
type Record struct {
	Action         Action
	Description    string
	RelatedCitizen domain.UserID
	Metadata       map[string]any
	// Actor overrides the authenticated user, e.g. at login time.
	Actor domain.UserID
}

// Filter narrows audit listings.
type Filter struct {
	RelatedCitizen domain.UserID
	Action         Action
	Limit          int
}

// DefaultListLimit bounds unfiltered listings.
const DefaultListLimit = 100
