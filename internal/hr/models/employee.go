// Package models holds the core entities of the employee-record engine.
package models

import (
	"time"

	id "dossier/pkg/domain"
)

// Employee is one person within one organization.
//
// Invariants:
//   - EmployeeNumber is unique within the organization
//   - NationalID is the upsert key for profile creation within the organization
//   - Rows are never hard-deleted; closure sets IsActive=false and DeletedAt
type Employee struct {
	ID             id.EmployeeID `json:"id"`
	OrgID          id.OrgID      `json:"organization_id"`
	EmployeeNumber string        `json:"employee_number"`
	NationalID     string        `json:"national_id"`
	FirstName      string        `json:"first_name"`
	LastName       string        `json:"last_name"`
	FatherName     string        `json:"father_name,omitempty"`
	BirthDate      *Date         `json:"birth_date,omitempty"`
	IsActive       bool          `json:"is_active"`
	DeletedAt      *time.Time    `json:"deleted_at,omitempty"`
	CreatedBy      id.ActorID    `json:"created_by"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Reactivate reopens a soft-closed employee file.
func (e *Employee) Reactivate(now time.Time) {
	e.IsActive = true
	e.DeletedAt = nil
	e.UpdatedAt = now
}

// Close soft-deletes the employee file.
func (e *Employee) Close(now time.Time) {
	e.IsActive = false
	e.DeletedAt = &now
	e.UpdatedAt = now
}
