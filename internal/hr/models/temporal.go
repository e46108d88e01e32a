package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "dossier/pkg/domain"
)

// Stream names one versioned facet of an employee. Each stream is an
// independent sequence of non-overlapping date intervals.
type Stream string

const (
	StreamAddress Stream = "address"
	StreamFamily  Stream = "family_member"
	StreamBank    Stream = "bank_detail"
	StreamRole    Stream = "role_assignment"
	StreamAsset   Stream = "asset"
)

// Streams lists every attribute stream in aggregation order.
func Streams() []Stream {
	return []Stream{StreamAddress, StreamFamily, StreamBank, StreamRole, StreamAsset}
}

// StreamValue is the stream-specific portion of a temporal record.
type StreamValue interface {
	Stream() Stream
}

// EmptyValue returns the zero value for a stream, used when decoding stored
// rows back into typed values.
func EmptyValue(s Stream) StreamValue {
	switch s {
	case StreamAddress:
		return AddressValue{}
	case StreamFamily:
		return FamilyMemberValue{}
	case StreamBank:
		return BankDetailValue{}
	case StreamRole:
		return RoleAssignmentValue{}
	case StreamAsset:
		return AssetValue{}
	default:
		return nil
	}
}

// TemporalRecord is the value of one attribute stream during one interval.
//
// Invariants (per organization, employee and stream):
//   - intervals are pairwise non-overlapping
//   - at most one interval has a nil ValidTo (the current value)
//   - ValidTo, when set, is on or after ValidFrom
//   - no two intervals share a ValidFrom
type TemporalRecord struct {
	ID         id.RecordID   `json:"id"`
	OrgID      id.OrgID      `json:"organization_id"`
	EmployeeID id.EmployeeID `json:"employee_id"`
	Stream     Stream        `json:"stream"`
	ValidFrom  Date          `json:"valid_from"`
	ValidTo    *Date         `json:"valid_to,omitempty"`
	Value      StreamValue   `json:"value"`
	ChangedBy  id.ActorID    `json:"changed_by"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Open reports whether the record is the stream's current value.
func (r *TemporalRecord) Open() bool { return r.ValidTo == nil }

// DecodeValue parses a stored value blob into the typed value for a stream.
func DecodeValue(s Stream, raw []byte) (StreamValue, error) {
	switch s {
	case StreamAddress:
		var v AddressValue
		err := json.Unmarshal(raw, &v)
		return v, err
	case StreamFamily:
		var v FamilyMemberValue
		err := json.Unmarshal(raw, &v)
		return v, err
	case StreamBank:
		var v BankDetailValue
		err := json.Unmarshal(raw, &v)
		return v, err
	case StreamRole:
		var v RoleAssignmentValue
		err := json.Unmarshal(raw, &v)
		return v, err
	case StreamAsset:
		var v AssetValue
		err := json.Unmarshal(raw, &v)
		return v, err
	default:
		return nil, fmt.Errorf("unknown stream %q", s)
	}
}

// UnmarshalJSON decodes the polymorphic Value field based on Stream. Needed
// wherever a serialized employee file is read back (cache, snapshot diffing).
func (r *TemporalRecord) UnmarshalJSON(b []byte) error {
	type alias TemporalRecord
	aux := struct {
		*alias
		Value json.RawMessage `json:"value"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if len(aux.Value) == 0 || string(aux.Value) == "null" {
		r.Value = nil
		return nil
	}
	value, err := DecodeValue(r.Stream, aux.Value)
	if err != nil {
		return err
	}
	r.Value = value
	return nil
}

// AddressValue is the employee's registered address and contact numbers.
type AddressValue struct {
	City            string `json:"city,omitempty"`
	CityCode        string `json:"city_code,omitempty"`
	Street          string `json:"street,omitempty"`
	HouseNumber     string `json:"house_number,omitempty"`
	Apartment       string `json:"apartment,omitempty"`
	Entrance        string `json:"entrance,omitempty"`
	PostalCode      string `json:"postal_code,omitempty"`
	Phone           string `json:"phone,omitempty"`
	PhoneAdditional string `json:"phone_additional,omitempty"`
}

func (AddressValue) Stream() Stream { return StreamAddress }

// Gender of a family member.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
	GenderOther  Gender = "Other"
)

// FamilyMemberValue is one dependent (spouse or child) on record.
type FamilyMemberValue struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IDNumber  string `json:"id_number,omitempty"`
	BirthDate *Date  `json:"birth_date,omitempty"`
	Gender    Gender `json:"gender"`
}

func (FamilyMemberValue) Stream() Stream { return StreamFamily }

// BankDetailValue is the employee's salary account.
type BankDetailValue struct {
	BankCode      string `json:"bank_code"`
	BranchCode    string `json:"branch_code"`
	AccountNumber string `json:"account_number"`
	AccountOwner  string `json:"account_owner"`
}

func (BankDetailValue) Stream() Stream { return StreamBank }

// RoleAssignmentValue is the employee's position, grade and scope.
type RoleAssignmentValue struct {
	OrgUnitID    *uuid.UUID `json:"org_unit_id,omitempty"`
	JobTitle     string     `json:"job_title"`
	JobGradeID   *uuid.UUID `json:"job_grade_id,omitempty"`
	Rank         string     `json:"rank"`
	ScopePercent float64    `json:"scope_percentage"`
}

func (RoleAssignmentValue) Stream() Stream { return StreamRole }

// AssetStatus tracks an issued asset's lifecycle.
const AssetStatusAssigned = "Assigned"

// AssetValue is one piece of equipment issued to the employee.
type AssetValue struct {
	Type         string `json:"type"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	SerialNumber string `json:"serial_number,omitempty"`
	IssuedAt     *Date  `json:"issued_date,omitempty"`
	ReturnedAt   *Date  `json:"return_date,omitempty"`
}

func (AssetValue) Stream() Stream { return StreamAsset }
