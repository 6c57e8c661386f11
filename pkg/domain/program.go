package domain

import dErrors "benefits/pkg/domain-errors"

// Program identifies a benefit program.
// Invariant: the value must be one of the supported programs.
//
// Usage: construct via ParseProgram at trust boundaries; direct casting
// bypasses validation.
type Program string

const (
	ProgramAMO       Program = "amo"
	ProgramSocialAid Program = "social_aid"
)

// Programs lists every supported program in display order.
var Programs = []Program{ProgramAMO, ProgramSocialAid}

// ParseProgram constructs a Program from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseProgram(s string) (Program, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "program cannot be empty")
	}
	p := Program(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported program: "+s)
	}
	return p, nil
}

func (p Program) IsValid() bool {
	return p == ProgramAMO || p == ProgramSocialAid
}

func (p Program) String() string {
	return string(p)
}

// DisplayName is the human label used in audit descriptions.
func (p Program) DisplayName() string {
	switch p {
	case ProgramAMO:
		return "AMO"
	case ProgramSocialAid:
		return "Social Aid"
	default:
		return string(p)
	}
}
