// Package catalog is the static registry of supported actions.
//
// The catalog is read-only and side-effect-free: it declares which action
// keys exist, what entity or stream each one targets, and the payload shape
// callers must submit. Dispatch rejects any key not listed here.
package catalog

import "dossier/internal/hr/models"

// Entity names what an action targets. Temporal actions name their stream;
// the remaining actions target the employee row itself.
type Entity string

const (
	EntityEmployeeProfile  Entity = "employee-profile"
	EntityEmployeeIdentity Entity = "employee-identity"
	EntityAddress          Entity = "address"
	EntityFamilyMember     Entity = "family-member"
	EntityBankDetail       Entity = "bank-detail"
	EntityRoleAssignment   Entity = "role-assignment"
	EntityAsset            Entity = "asset"
	EntityEmployeeStatus   Entity = "employee-status"
)

// FieldSpec documents one payload field for API clients.
type FieldSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// ActionDescriptor declares one supported action.
type ActionDescriptor struct {
	Key     models.ActionKey `json:"action_key"`
	Label   string           `json:"label"`
	Entity  Entity           `json:"entity"`
	Version int              `json:"action_version"`
	Payload []FieldSpec      `json:"payload_schema"`
}

var descriptors = []ActionDescriptor{
	{
		Key:     models.ActionProfileCreated,
		Label:   "Create employee file",
		Entity:  EntityEmployeeProfile,
		Version: 1,
		Payload: []FieldSpec{
			{Name: "employee_number", Type: "string", Required: true},
			{Name: "national_id", Type: "string", Required: true},
			{Name: "first_name", Type: "string", Required: false},
			{Name: "last_name", Type: "string", Required: false},
			{Name: "father_name", Type: "string", Required: false},
			{Name: "birth_date", Type: "date", Required: false},
		},
	},
	{
		Key:     models.ActionIdentityAmended,
		Label:   "Amend identity details",
		Entity:  EntityEmployeeIdentity,
		Version: 1,
		Payload: []FieldSpec{
			{Name: "first_name", Type: "string", Required: false},
			{Name: "last_name", Type: "string", Required: false},
			{Name: "father_name", Type: "string", Required: false},
			{Name: "birth_date", Type: "date", Required: false},
		},
	},
	{
		Key:     models.ActionAddressChanged,
		Label:   "Change address",
		Entity:  EntityAddress,
		Version: 1,
		Payload: []FieldSpec{
			{Name: "city", Type: "string", Required: false},
			{Name: "city_code", Type: "string", Required: false},
			{Name: "street", Type: "string", Required: false},
			{Name: "house_number", Type: "string", Required: false},
			{Name: "apartment", Type: "string", Required: false},
			{Name: "entrance", Type: "string", Required: false},
			{Name: "postal_code", Type: "string", Required: false},
			{Name: "phone", Type: "string", Required: false},
			{Name: "phone_additional", Type: "string", Required: false},
			{Name: "valid_to", Type: "date", Required: false},
			{Name: "record_id", Type: "uuid", Required: false},
		},
	},
	{
		Key:     models.ActionFamilyChanged,
		Label:   "Change family member",
		Entity:  EntityFamilyMember,
		Version: 1,
		Payload: []FieldSpec{
			{Name: "first_name", Type: "string", Required: false},
			{Name: "last_name", Type: "string", Required: false},
			{Name: "id_number", Type: "string", Required: false},
			{Name: "birth_date", Type: "date", Required: false},
			{Name: "gender", Type: "M|F|Other", Required: false},
			{Name: "valid_to", Type: "date", Required: false},
			{Name: "record_id", Type: "uuid", Required: false},
		},
	},
	{
		Key:     models.ActionBankChanged,
		Label:   "Change bank details",
		Entity:  EntityBankDetail,
		Version: 1,
		Payload: []FieldSpec{
			{Name: "bank_code", Type: "string", Required: false},
			{Name: "branch_code", Type: "string", Required: false},
			{Name: "account_number", Type: "string", Required: false},
			{Name: "account_owner", Type: "string", Required: false},
			{Name: "valid_to", Type: "date", Required: false},
			{Name: "record_id", Type: "uuid", Required: false},
		},
	},
	{
		Key:     models.ActionRoleChanged,
		Label:   "Change role and placement",
		Entity:  EntityRoleAssignment,
		Version: 1,
		Payload: []FieldSpec{
			{Name: "org_unit_id", Type: "uuid", Required: false},
			{Name: "job_title", Type: "string", Required: false},
			{Name: "job_grade_id", Type: "uuid", Required: false},
			{Name: "rank", Type: "string", Required: false},
			{Name: "scope_percentage", Type: "number", Required: false},
			{Name: "valid_to", Type: "date", Required: false},
			{Name: "record_id", Type: "uuid", Required: false},
		},
	},
	{
		Key:     models.ActionAssetChanged,
		Label:   "Change issued asset",
		Entity:  EntityAsset,
		Version: 1,
		Payload: []FieldSpec{
			{Name: "type", Type: "string", Required: false},
			{Name: "description", Type: "string", Required: false},
			{Name: "status", Type: "string", Required: false},
			{Name: "serial_number", Type: "string", Required: false},
			{Name: "issued_date", Type: "date", Required: false},
			{Name: "return_date", Type: "date", Required: false},
			{Name: "valid_to", Type: "date", Required: false},
			{Name: "record_id", Type: "uuid", Required: false},
		},
	},
	{
		Key:     models.ActionStatusClosed,
		Label:   "Close employee file",
		Entity:  EntityEmployeeStatus,
		Version: 1,
		Payload: []FieldSpec{
			{Name: "closed_reason", Type: "string", Required: false},
		},
	},
}

// All returns every descriptor. The slice is a copy; callers may not mutate
// the catalog.
func All() []ActionDescriptor {
	out := make([]ActionDescriptor, len(descriptors))
	copy(out, descriptors)
	return out
}

// Lookup returns the descriptor for key.
func Lookup(key models.ActionKey) (ActionDescriptor, bool) {
	for _, d := range descriptors {
		if d.Key == key {
			return d, true
		}
	}
	return ActionDescriptor{}, false
}
