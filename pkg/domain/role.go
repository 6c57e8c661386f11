package domain

import dErrors "benefits/pkg/domain-errors"

// Role is the closed set of account roles.
type Role string

const (
	RoleCitizen      Role = "citizen"
	RoleDataEntry    Role = "data_entry"
	RoleInvestigator Role = "investigator"
	RoleSupervisor   Role = "supervisor"
	RoleAdmin        Role = "admin"
)

// Capability names an action a role may perform.
type Capability string

const (
	CapViewOwnRecords      Capability = "view_own_records"
	CapFileReclamation     Capability = "file_reclamation"
	CapApply               Capability = "apply"
	CapViewCitizens        Capability = "view_citizens"
	CapManagePossessions   Capability = "manage_possessions"
	CapInvestigate         Capability = "investigate"
	CapReviewApplications  Capability = "review_applications"
	CapManageAccounts      Capability = "manage_accounts"
	CapManageCatalog       Capability = "manage_catalog"
	CapManageThresholds    Capability = "manage_thresholds"
	CapAdministerDisputes  Capability = "administer_reclamations"
	CapViewAudit           Capability = "view_audit"
	CapViewStaffDashboard  Capability = "view_staff_dashboard"
	CapRecalculateOwnScore Capability = "recalculate_own_score"
	CapRecalculateAnyScore Capability = "recalculate_any_score"
)

var staffCommon = []Capability{CapViewCitizens, CapViewStaffDashboard}

var roleCapabilities = map[Role]map[Capability]bool{
	RoleCitizen: set(CapViewOwnRecords, CapFileReclamation, CapApply, CapRecalculateOwnScore),
	RoleDataEntry: set(append(staffCommon,
		CapManagePossessions, CapRecalculateAnyScore)...),
	RoleInvestigator: set(append(staffCommon, CapInvestigate)...),
	RoleSupervisor:   set(append(staffCommon, CapReviewApplications)...),
	RoleAdmin: set(append(staffCommon,
		CapManagePossessions, CapManageAccounts, CapManageCatalog, CapManageThresholds,
		CapAdministerDisputes, CapViewAudit, CapRecalculateAnyScore)...),
}

func set(caps ...Capability) map[Capability]bool {
	m := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return m
}

// ParseRole constructs a Role from external input.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported role: "+s)
	}
	return r, nil
}

func (r Role) IsValid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Can reports whether the role holds the capability. Unknown roles hold none.
func (r Role) Can(c Capability) bool {
	return roleCapabilities[r][c]
}

// IsStaff is true for every role except citizen.
func (r Role) IsStaff() bool {
	return r.IsValid() && r != RoleCitizen
}

func (r Role) String() string {
	return string(r)
}
