// Package domain holds the primitives shared across bounded contexts: typed
// identifiers, the program enum and the closed role enum with its capabilities.
package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	dErrors "benefits/pkg/domain-errors"
)

// Typed UUID identifiers. Distinct types keep a possession ID from being passed
// where a reclamation ID is expected.
type (
	UserID        uuid.UUID
	PossessionID  uuid.UUID
	ReclamationID uuid.UUID
	FineID        uuid.UUID
	ApplicationID uuid.UUID
	CalculationID uuid.UUID
	AuditEntryID  uuid.UUID
)

// Serial identifiers for administrative reference data.
type (
	CategoryID  int64
	TypeID      int64
	ThresholdID int64
)

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id PossessionID) String() string  { return uuid.UUID(id).String() }
func (id ReclamationID) String() string { return uuid.UUID(id).String() }
func (id FineID) String() string        { return uuid.UUID(id).String() }
func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id CalculationID) String() string { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id PossessionID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ReclamationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id PossessionID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id ReclamationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id FineID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id ApplicationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id CalculationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id AuditEntryID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error        { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *PossessionID) UnmarshalText(b []byte) error  { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *ReclamationID) UnmarshalText(b []byte) error { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *FineID) UnmarshalText(b []byte) error        { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *ApplicationID) UnmarshalText(b []byte) error { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *CalculationID) UnmarshalText(b []byte) error { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *AuditEntryID) UnmarshalText(b []byte) error  { return unmarshalUUID(b, (*uuid.UUID)(id)) }

// unmarshalUUID accepts the nil UUID so zero-valued optional IDs round-trip.
func unmarshalUUID(b []byte, dst *uuid.UUID) error {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid id format")
	}
	*dst = parsed
	return nil
}

// maxIDLength bounds input before it reaches uuid.Parse.
const maxIDLength = 64

// parseUUID enforces that IDs at trust boundaries are well-formed and non-nil.
func parseUUID(s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id too long")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid id format")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be nil")
	}
	return parsed, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	return UserID(u), err
}

func ParsePossessionID(s string) (PossessionID, error) {
	u, err := parseUUID(s)
	return PossessionID(u), err
}

func ParseReclamationID(s string) (ReclamationID, error) {
	u, err := parseUUID(s)
	return ReclamationID(u), err
}

func ParseFineID(s string) (FineID, error) {
	u, err := parseUUID(s)
	return FineID(u), err
}

func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s)
	return ApplicationID(u), err
}

// parseSerial parses a positive integer key.
func parseSerial(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid id")
	}
	return n, nil
}

func ParseCategoryID(s string) (CategoryID, error) {
	n, err := parseSerial(s)
	return CategoryID(n), err
}

func ParseTypeID(s string) (TypeID, error) {
	n, err := parseSerial(s)
	return TypeID(n), err
}

func ParseThresholdID(s string) (ThresholdID, error) {
	n, err := parseSerial(s)
	return ThresholdID(n), err
}
