// Package domain defines typed identifiers shared across modules.
//
// IDs are distinct named UUID types so the compiler rejects accidental
// cross-assignment (an OrgID can never be passed where an EmployeeID is
// expected). Parsing enforces the invariant that IDs are valid, non-nil
// UUIDs at trust boundaries.
package domain

import (
	"database/sql/driver"

	"github.com/google/uuid"

	dErrors "dossier/pkg/domain-errors"
)

// OrgID identifies an organization (tenant).
type OrgID uuid.UUID

// EmployeeID identifies an employee row within an organization.
type EmployeeID uuid.UUID

// ActorID identifies the user performing an action.
type ActorID uuid.UUID

// ActionID identifies a journal entry produced by a dispatched action.
type ActionID uuid.UUID

// RecordID identifies one temporal interval row.
type RecordID uuid.UUID

func (id OrgID) String() string      { return uuid.UUID(id).String() }
func (id EmployeeID) String() string { return uuid.UUID(id).String() }
func (id ActorID) String() string    { return uuid.UUID(id).String() }
func (id ActionID) String() string   { return uuid.UUID(id).String() }
func (id RecordID) String() string   { return uuid.UUID(id).String() }

func (id OrgID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id EmployeeID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ActionID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

func (id OrgID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id EmployeeID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ActorID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id ActionID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id RecordID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }

func (id *OrgID) UnmarshalText(b []byte) error {
	parsed, err := ParseOrgID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *EmployeeID) UnmarshalText(b []byte) error {
	parsed, err := ParseEmployeeID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ActorID) UnmarshalText(b []byte) error {
	parsed, err := ParseActorID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ActionID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b))
	if err != nil {
		return err
	}
	*id = ActionID(parsed)
	return nil
}

func (id *RecordID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b))
	if err != nil {
		return err
	}
	*id = RecordID(parsed)
	return nil
}

func (id OrgID) Value() (driver.Value, error)      { return uuid.UUID(id).Value() }
func (id EmployeeID) Value() (driver.Value, error) { return uuid.UUID(id).Value() }
func (id ActorID) Value() (driver.Value, error)    { return uuid.UUID(id).Value() }
func (id ActionID) Value() (driver.Value, error)   { return uuid.UUID(id).Value() }
func (id RecordID) Value() (driver.Value, error)   { return uuid.UUID(id).Value() }

func (id *OrgID) Scan(src any) error      { return (*uuid.UUID)(id).Scan(src) }
func (id *EmployeeID) Scan(src any) error { return (*uuid.UUID)(id).Scan(src) }
func (id *ActorID) Scan(src any) error    { return (*uuid.UUID)(id).Scan(src) }
func (id *ActionID) Scan(src any) error   { return (*uuid.UUID)(id).Scan(src) }
func (id *RecordID) Scan(src any) error   { return (*uuid.UUID)(id).Scan(src) }

// ParseOrgID validates and converts a string into an OrgID.
func ParseOrgID(s string) (OrgID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return OrgID{}, err
	}
	return OrgID(u), nil
}

// ParseEmployeeID validates and converts a string into an EmployeeID.
func ParseEmployeeID(s string) (EmployeeID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return EmployeeID{}, err
	}
	return EmployeeID(u), nil
}

// ParseActorID validates and converts a string into an ActorID.
func ParseActorID(s string) (ActorID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return ActorID{}, err
	}
	return ActorID(u), nil
}

// NewActionID returns a fresh random ActionID.
func NewActionID() ActionID { return ActionID(uuid.New()) }

// NewRecordID returns a fresh random RecordID.
func NewRecordID() RecordID { return RecordID(uuid.New()) }

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return u, nil
}
