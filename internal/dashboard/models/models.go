package models

import (
	"github.com/shopspring/decimal"

	applicationmodels "benefits/internal/application/models"
	auditmodels "benefits/internal/audit/models"
	"benefits/internal/eligibility"
	possessionmodels "benefits/internal/possession/models"
	reclamationmodels "benefits/internal/reclamation/models"
	"benefits/pkg/domain"
)

// Citizen is the citizen home page. Thresholds are nil when no threshold is
// in force for the program.
type Citizen struct {
	CurrentScore        decimal.Decimal               `json:"current_score"`
	AMOThreshold        *decimal.Decimal              `json:"amo_threshold"`
	SocialAidThreshold  *decimal.Decimal              `json:"social_aid_threshold"`
	Eligibility         eligibility.Result            `json:"eligibility"`
	HasOtherInsurance   bool                          `json:"has_other_insurance"`
	RecentPossessions   []possessionmodels.Possession `json:"recent_possessions"`
	PendingReclamations int                           `json:"pending_reclamations"`
	ActiveApplications  int                           `json:"active_applications"`
}

// Staff carries exactly one role section.
type Staff struct {
	Role         domain.Role   `json:"role"`
	DataEntry    *DataEntry    `json:"data_entry,omitempty"`
	Investigator *Investigator `json:"investigator,omitempty"`
	Supervisor   *Supervisor   `json:"supervisor,omitempty"`
	Admin        *Admin        `json:"admin,omitempty"`
}

type DataEntry struct {
	RecentAdditions []possessionmodels.Possession `json:"recent_additions"`
	CitizensCount   int                           `json:"citizens_count"`
}

type Investigator struct {
	Caseload       []reclamationmodels.Reclamation `json:"caseload"`
	Queue          []reclamationmodels.Reclamation `json:"queue"`
	CompletedToday int                             `json:"completed_today"`
}

type Supervisor struct {
	PendingApplications []applicationmodels.Application `json:"pending_applications"`
	ApprovedToday       int                             `json:"approved_today"`
}

type Admin struct {
	TotalUsers          int                 `json:"total_users"`
	TotalApplications   int                 `json:"total_applications"`
	PendingReclamations int                 `json:"pending_reclamations"`
	RecentActivity      []auditmodels.Entry `json:"recent_activity"`
}
