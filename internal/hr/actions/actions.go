// Package actions defines the closed set of action payloads.
//
// The source of record for which actions exist is the catalog; this package
// gives each catalog key a strongly-typed payload struct validated at the
// system boundary. Optional fields are pointers so "absent" and "zero" stay
// distinguishable when merging onto an existing interval value.
package actions

import (
	"encoding/json"

	"github.com/google/uuid"

	"dossier/internal/hr/models"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
)

// Payload is one decoded action payload.
type Payload interface {
	Key() models.ActionKey
	Validate() error
}

// TemporalPayload is implemented by payloads that mutate an attribute stream.
type TemporalPayload interface {
	Payload
	// Stream names the attribute stream the payload targets.
	Stream() models.Stream
	// RecordID optionally pins the change to one existing interval row.
	RecordID() *id.RecordID
	// RequestedEnd is the caller-supplied end date, if any.
	RequestedEnd() *models.Date
	// NewValue builds a fresh stream value with per-stream defaults applied.
	NewValue(effective models.Date) models.StreamValue
	// ApplyTo merges the submitted fields onto an existing stream value.
	ApplyTo(base models.StreamValue) models.StreamValue
}

// Decode parses raw into the payload variant for key. Unknown keys fail with
// CodeUnsupportedAction so the dispatcher has a single rejection point.
func Decode(key models.ActionKey, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch key {
	case models.ActionProfileCreated:
		p = &CreateProfile{}
	case models.ActionIdentityAmended:
		p = &AmendIdentity{}
	case models.ActionAddressChanged:
		p = &ChangeAddress{}
	case models.ActionFamilyChanged:
		p = &ChangeFamily{}
	case models.ActionBankChanged:
		p = &ChangeBank{}
	case models.ActionRoleChanged:
		p = &ChangeRole{}
	case models.ActionAssetChanged:
		p = &ChangeAsset{}
	case models.ActionStatusClosed:
		p = &CloseFile{}
	default:
		return nil, dErrors.Newf(dErrors.CodeUnsupportedAction, "unsupported action key: %s", key)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed action payload")
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateProfile opens (or reopens) an employee file. It is the only action
// that does not resolve identity: it upserts by national id within the org.
type CreateProfile struct {
	EmployeeNumber string       `json:"employee_number"`
	NationalID     string       `json:"national_id"`
	FirstName      *string      `json:"first_name,omitempty"`
	LastName       *string      `json:"last_name,omitempty"`
	FatherName     *string      `json:"father_name,omitempty"`
	BirthDate      *models.Date `json:"birth_date,omitempty"`
}

func (*CreateProfile) Key() models.ActionKey { return models.ActionProfileCreated }

func (p *CreateProfile) Validate() error {
	if p.EmployeeNumber == "" {
		return dErrors.New(dErrors.CodeValidation, "employee_number is required")
	}
	if p.NationalID == "" {
		return dErrors.New(dErrors.CodeValidation, "national_id is required")
	}
	return nil
}

// AmendIdentity updates the employee row's static identity fields.
type AmendIdentity struct {
	FirstName  *string      `json:"first_name,omitempty"`
	LastName   *string      `json:"last_name,omitempty"`
	FatherName *string      `json:"father_name,omitempty"`
	BirthDate  *models.Date `json:"birth_date,omitempty"`
}

func (*AmendIdentity) Key() models.ActionKey { return models.ActionIdentityAmended }

func (p *AmendIdentity) Validate() error { return nil }

// Apply copies the submitted fields onto the employee row.
func (p *AmendIdentity) Apply(e *models.Employee) {
	if p.FirstName != nil {
		e.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		e.LastName = *p.LastName
	}
	if p.FatherName != nil {
		e.FatherName = *p.FatherName
	}
	if p.BirthDate != nil {
		e.BirthDate = p.BirthDate
	}
}

// CloseFile soft-closes the employee file. No interval mutation.
type CloseFile struct {
	Reason string `json:"closed_reason,omitempty"`
}

func (*CloseFile) Key() models.ActionKey { return models.ActionStatusClosed }

func (p *CloseFile) Validate() error { return nil }

// temporalRef carries the interval-targeting fields shared by every
// stream-changing payload.
type temporalRef struct {
	ValidTo *models.Date `json:"valid_to,omitempty"`
	Record  *id.RecordID `json:"record_id,omitempty"`
}

func (t temporalRef) RecordID() *id.RecordID { return t.Record }
func (t temporalRef) RequestedEnd() *models.Date { return t.ValidTo }

// ChangeAddress replaces the current address from the effective date.
type ChangeAddress struct {
	temporalRef
	City            *string `json:"city,omitempty"`
	CityCode        *string `json:"city_code,omitempty"`
	Street          *string `json:"street,omitempty"`
	HouseNumber     *string `json:"house_number,omitempty"`
	Apartment       *string `json:"apartment,omitempty"`
	Entrance        *string `json:"entrance,omitempty"`
	PostalCode      *string `json:"postal_code,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	PhoneAdditional *string `json:"phone_additional,omitempty"`
}

func (*ChangeAddress) Key() models.ActionKey { return models.ActionAddressChanged }
func (*ChangeAddress) Stream() models.Stream { return models.StreamAddress }
func (p *ChangeAddress) Validate() error { return nil }

func (p *ChangeAddress) ApplyTo(base models.StreamValue) models.StreamValue {
	v, _ := base.(models.AddressValue)
	setString(&v.City, p.City)
	setString(&v.CityCode, p.CityCode)
	setString(&v.Street, p.Street)
	setString(&v.HouseNumber, p.HouseNumber)
	setString(&v.Apartment, p.Apartment)
	setString(&v.Entrance, p.Entrance)
	setString(&v.PostalCode, p.PostalCode)
	setString(&v.Phone, p.Phone)
	setString(&v.PhoneAdditional, p.PhoneAdditional)
	return v
}

func (p *ChangeAddress) NewValue(models.Date) models.StreamValue {
	return p.ApplyTo(models.AddressValue{})
}

// ChangeFamily records a dependent from the effective date.
type ChangeFamily struct {
	temporalRef
	FirstName *string        `json:"first_name,omitempty"`
	LastName  *string        `json:"last_name,omitempty"`
	IDNumber  *string        `json:"id_number,omitempty"`
	BirthDate *models.Date   `json:"birth_date,omitempty"`
	Gender    *models.Gender `json:"gender,omitempty"`
}

func (*ChangeFamily) Key() models.ActionKey { return models.ActionFamilyChanged }
func (*ChangeFamily) Stream() models.Stream { return models.StreamFamily }

func (p *ChangeFamily) Validate() error {
	if p.Gender != nil {
		switch *p.Gender {
		case models.GenderMale, models.GenderFemale, models.GenderOther:
		default:
			return dErrors.New(dErrors.CodeValidation, "gender must be M, F or Other")
		}
	}
	return nil
}

func (p *ChangeFamily) ApplyTo(base models.StreamValue) models.StreamValue {
	v, _ := base.(models.FamilyMemberValue)
	setString(&v.FirstName, p.FirstName)
	setString(&v.LastName, p.LastName)
	setString(&v.IDNumber, p.IDNumber)
	if p.BirthDate != nil {
		v.BirthDate = p.BirthDate
	}
	if p.Gender != nil {
		v.Gender = *p.Gender
	}
	return v
}

func (p *ChangeFamily) NewValue(models.Date) models.StreamValue {
	v := p.ApplyTo(models.FamilyMemberValue{}).(models.FamilyMemberValue)
	if v.Gender == "" {
		v.Gender = models.GenderMale
	}
	return v
}

// ChangeBank replaces the salary account from the effective date.
type ChangeBank struct {
	temporalRef
	BankCode      *string `json:"bank_code,omitempty"`
	BranchCode    *string `json:"branch_code,omitempty"`
	AccountNumber *string `json:"account_number,omitempty"`
	AccountOwner  *string `json:"account_owner,omitempty"`
}

func (*ChangeBank) Key() models.ActionKey { return models.ActionBankChanged }
func (*ChangeBank) Stream() models.Stream { return models.StreamBank }
func (p *ChangeBank) Validate() error { return nil }

func (p *ChangeBank) ApplyTo(base models.StreamValue) models.StreamValue {
	v, _ := base.(models.BankDetailValue)
	setString(&v.BankCode, p.BankCode)
	setString(&v.BranchCode, p.BranchCode)
	setString(&v.AccountNumber, p.AccountNumber)
	setString(&v.AccountOwner, p.AccountOwner)
	return v
}

func (p *ChangeBank) NewValue(models.Date) models.StreamValue {
	return p.ApplyTo(models.BankDetailValue{})
}

// ChangeRole records a role assignment from the effective date.
type ChangeRole struct {
	temporalRef
	OrgUnitID    *uuid.UUID `json:"org_unit_id,omitempty"`
	JobTitle     *string    `json:"job_title,omitempty"`
	JobGradeID   *uuid.UUID `json:"job_grade_id,omitempty"`
	Rank         *string    `json:"rank,omitempty"`
	ScopePercent *float64   `json:"scope_percentage,omitempty"`
}

func (*ChangeRole) Key() models.ActionKey { return models.ActionRoleChanged }
func (*ChangeRole) Stream() models.Stream { return models.StreamRole }

func (p *ChangeRole) Validate() error {
	if p.ScopePercent != nil && (*p.ScopePercent <= 0 || *p.ScopePercent > 100) {
		return dErrors.New(dErrors.CodeValidation, "scope_percentage must be within (0, 100]")
	}
	return nil
}

func (p *ChangeRole) ApplyTo(base models.StreamValue) models.StreamValue {
	v, _ := base.(models.RoleAssignmentValue)
	if p.OrgUnitID != nil {
		v.OrgUnitID = p.OrgUnitID
	}
	setString(&v.JobTitle, p.JobTitle)
	if p.JobGradeID != nil {
		v.JobGradeID = p.JobGradeID
	}
	setString(&v.Rank, p.Rank)
	if p.ScopePercent != nil {
		v.ScopePercent = *p.ScopePercent
	}
	return v
}

// NewValue defaults a fresh assignment to full scope when none is given.
func (p *ChangeRole) NewValue(models.Date) models.StreamValue {
	v := p.ApplyTo(models.RoleAssignmentValue{}).(models.RoleAssignmentValue)
	if p.ScopePercent == nil {
		v.ScopePercent = 100
	}
	return v
}

// ChangeAsset records an issued asset from the effective date.
type ChangeAsset struct {
	temporalRef
	Type         *string      `json:"type,omitempty"`
	Description  *string      `json:"description,omitempty"`
	Status       *string      `json:"status,omitempty"`
	SerialNumber *string      `json:"serial_number,omitempty"`
	IssuedAt     *models.Date `json:"issued_date,omitempty"`
	ReturnedAt   *models.Date `json:"return_date,omitempty"`
}

func (*ChangeAsset) Key() models.ActionKey { return models.ActionAssetChanged }
func (*ChangeAsset) Stream() models.Stream { return models.StreamAsset }
func (p *ChangeAsset) Validate() error { return nil }

// RequestedEnd treats an explicit return date as the interval end when no
// valid_to is supplied.
func (p *ChangeAsset) RequestedEnd() *models.Date {
	if p.ValidTo != nil {
		return p.ValidTo
	}
	return p.ReturnedAt
}

func (p *ChangeAsset) ApplyTo(base models.StreamValue) models.StreamValue {
	v, _ := base.(models.AssetValue)
	setString(&v.Type, p.Type)
	setString(&v.Description, p.Description)
	setString(&v.Status, p.Status)
	setString(&v.SerialNumber, p.SerialNumber)
	if p.IssuedAt != nil {
		v.IssuedAt = p.IssuedAt
	}
	if p.ReturnedAt != nil {
		v.ReturnedAt = p.ReturnedAt
	}
	return v
}

// NewValue defaults status to Assigned and the issue date to the effective
// date when the caller omits them.
func (p *ChangeAsset) NewValue(effective models.Date) models.StreamValue {
	v := p.ApplyTo(models.AssetValue{}).(models.AssetValue)
	if v.Status == "" {
		v.Status = models.AssetStatusAssigned
	}
	if v.IssuedAt == nil {
		v.IssuedAt = models.DatePtr(effective)
	}
	return v
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
