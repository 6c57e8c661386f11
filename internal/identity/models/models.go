package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
)

// phonePattern accepts Moroccan mobile numbers in international form.
var phonePattern = regexp.MustCompile(`^\+212[0-9]{9}$`)

// MaxMonthlyIncome is the largest value NUMERIC(12,2) holds.
var MaxMonthlyIncome = decimal.RequireFromString("9999999999.99")

const maxNationalIDLength = 20

// Account is a login identity. Citizens and staff share the table; the role
// decides what the account may do.
type Account struct {
	ID            domain.UserID `json:"id"`
	NationalID    string        `json:"national_id"`
	Phone         string        `json:"phone"`
	FirstName     string        `json:"first_name"`
	LastName      string        `json:"last_name"`
	Role          domain.Role   `json:"role"`
	IsVerified    bool          `json:"is_verified"`
	CodeHash      string        `json:"-"`
	CodeExpiresAt *time.Time    `json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
}

// FullName joins first and last name, falling back to the national ID.
func (a *Account) FullName() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.NationalID
	}
	return name
}

// SetCode stores a hashed one-time login code.
func (a *Account) SetCode(hash string, expiresAt time.Time) {
	a.CodeHash = hash
	a.CodeExpiresAt = &expiresAt
}

// ClearCode makes the current code unusable.
func (a *Account) ClearCode() {
	a.CodeHash = ""
	a.CodeExpiresAt = nil
}

// CodeExpired reports whether no usable code is pending at now.
func (a *Account) CodeExpired(now time.Time) bool {
	return a.CodeHash == "" || a.CodeExpiresAt == nil || !now.Before(*a.CodeExpiresAt)
}

// NewAccount is the admin's registration input.
type NewAccount struct {
	NationalID string
	Phone      string
	FirstName  string
	LastName   string
	Role       domain.Role
}

// Validate normalises and checks the registration input.
func (n *NewAccount) Validate() error {
	n.NationalID = strings.ToUpper(strings.TrimSpace(n.NationalID))
	n.Phone = strings.TrimSpace(n.Phone)
	n.FirstName = strings.TrimSpace(n.FirstName)
	n.LastName = strings.TrimSpace(n.LastName)
	if n.NationalID == "" || len(n.NationalID) > maxNationalIDLength {
		return dErrors.New(dErrors.CodeValidation, "national_id is required and at most 20 characters")
	}
	if !phonePattern.MatchString(n.Phone) {
		return dErrors.New(dErrors.CodeValidation, "phone must be in format +212xxxxxxxxx")
	}
	if !n.Role.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unsupported role")
	}
	return nil
}

// Profile holds the citizen facts the portal keeps besides possessions,
// including the cached score from the last calculation.
type Profile struct {
	UserID                domain.UserID   `json:"user_id"`
	FamilySize            int             `json:"family_size"`
	MonthlyIncome         decimal.Decimal `json:"monthly_income"`
	HasOtherInsurance     bool            `json:"has_other_insurance"`
	OtherInsuranceDetails string          `json:"other_insurance_details"`
	CurrentScore          decimal.Decimal `json:"current_score"`
	LastCalculated        *time.Time      `json:"last_calculated,omitempty"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// DefaultProfile is created alongside every citizen account.
func DefaultProfile(user domain.UserID, now time.Time) *Profile {
	return &Profile{
		UserID:        user,
		FamilySize:    1,
		MonthlyIncome: decimal.Zero,
		CurrentScore:  decimal.Zero,
		UpdatedAt:     now,
	}
}

// ProfileUpdate changes only the fields that are set.
type ProfileUpdate struct {
	FamilySize            *int
	MonthlyIncome         *decimal.Decimal
	HasOtherInsurance     *bool
	OtherInsuranceDetails *string
}

// Apply validates u and applies it to p.
func (u ProfileUpdate) Apply(p *Profile, now time.Time) error {
	if u.FamilySize != nil {
		if *u.FamilySize < 1 {
			return dErrors.New(dErrors.CodeInvariantViolation, "family size must be at least 1")
		}
		p.FamilySize = *u.FamilySize
	}
	if u.MonthlyIncome != nil {
		if u.MonthlyIncome.IsNegative() {
			return dErrors.New(dErrors.CodeInvariantViolation, "monthly income cannot be negative")
		}
		if u.MonthlyIncome.GreaterThan(MaxMonthlyIncome) {
			return dErrors.New(dErrors.CodeInvariantViolation, "monthly income is too large")
		}
		if !u.MonthlyIncome.Equal(u.MonthlyIncome.Truncate(2)) {
			return dErrors.New(dErrors.CodeInvariantViolation, "monthly income has more than 2 decimal places")
		}
		p.MonthlyIncome = *u.MonthlyIncome
	}
	if u.HasOtherInsurance != nil {
		p.HasOtherInsurance = *u.HasOtherInsurance
	}
	if u.OtherInsuranceDetails != nil {
		p.OtherInsuranceDetails = strings.TrimSpace(*u.OtherInsuranceDetails)
	}
	if !p.HasOtherInsurance {
		p.OtherInsuranceDetails = ""
	}
	p.UpdatedAt = now
	return nil
}

// Citizen is the staff view of a citizen: account plus profile.
type Citizen struct {
	Account Account  `json:"account"`
	Profile *Profile `json:"profile,omitempty"`
}

// CitizenFilter narrows the staff citizen listing. Query matches the national
// ID, phone or name, case-insensitively.
type CitizenFilter struct {
	Query string
	Limit int
}

// Matches applies the query to one account.
func (f CitizenFilter) Matches(a *Account) bool {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	for _, field := range []string{a.NationalID, a.Phone, a.FirstName, a.LastName} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Session is what a completed login returns.
type Session struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   time.Time     `json:"expires_at"`
	UserID      domain.UserID `json:"user_id"`
	Role        domain.Role   `json:"role"`
}

// LoginChallenge is returned when a one-time code has been sent. The code
// itself never leaves the service.
type LoginChallenge struct {
	AccountID domain.UserID `json:"account_id"`
	ExpiresAt time.Time     `json:"expires_at"`
}
