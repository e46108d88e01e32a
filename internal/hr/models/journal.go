package models

import (
	"encoding/json"
	"time"

	id "dossier/pkg/domain"
)

// ActionKey identifies one supported action in the catalog.
type ActionKey string

const (
	ActionProfileCreated  ActionKey = "employee_profile.created"
	ActionIdentityAmended ActionKey = "employee_identity.amended"
	ActionAddressChanged  ActionKey = "employee_address.changed"
	ActionFamilyChanged   ActionKey = "employee_family.changed"
	ActionBankChanged     ActionKey = "employee_bank.changed"
	ActionRoleChanged     ActionKey = "employee_role.changed"
	ActionAssetChanged    ActionKey = "employee_asset.changed"
	ActionStatusClosed    ActionKey = "employee_status.closed"
)

// JournalEntry is one append-only audit record of a dispatched action.
//
// Invariant: (OrgID, EmployeeID, IdempotencyKey) is unique; a second dispatch
// with the same key replays the original entry instead of mutating state.
type JournalEntry struct {
	ID             id.ActionID     `json:"id"`
	OrgID          id.OrgID        `json:"organization_id"`
	EmployeeID     id.EmployeeID   `json:"employee_id"`
	ActionKey      ActionKey       `json:"action_key"`
	ActionVersion  int             `json:"action_version"`
	EffectiveAt    Date            `json:"effective_at"`
	Payload        json.RawMessage `json:"payload"`
	SnapshotBefore json.RawMessage `json:"snapshot_before,omitempty"`
	SnapshotAfter  json.RawMessage `json:"snapshot_after,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	CreatedBy      id.ActorID      `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

// EmployeeFile is the on-demand read model: the employee row, the full
// history of every attribute stream (newest first) and a recent slice of the
// action timeline. It doubles as the journal snapshot payload so snapshots
// and the public read API can never drift apart.
type EmployeeFile struct {
	Employee    *Employee        `json:"employee"`
	Addresses   []TemporalRecord `json:"addresses"`
	Family      []TemporalRecord `json:"family_members"`
	BankDetails []TemporalRecord `json:"bank_details"`
	RoleHistory []TemporalRecord `json:"role_history"`
	Assets      []TemporalRecord `json:"assets"`
	Timeline    []JournalEntry   `json:"timeline"`
}

// SetStream stores one stream's history on the file.
func (f *EmployeeFile) SetStream(s Stream, records []TemporalRecord) {
	switch s {
	case StreamAddress:
		f.Addresses = records
	case StreamFamily:
		f.Family = records
	case StreamBank:
		f.BankDetails = records
	case StreamRole:
		f.RoleHistory = records
	case StreamAsset:
		f.Assets = records
	}
}

// StreamRecords returns one stream's history from the file.
func (f *EmployeeFile) StreamRecords(s Stream) []TemporalRecord {
	switch s {
	case StreamAddress:
		return f.Addresses
	case StreamFamily:
		return f.Family
	case StreamBank:
		return f.BankDetails
	case StreamRole:
		return f.RoleHistory
	case StreamAsset:
		return f.Assets
	default:
		return nil
	}
}

// ActionResult is returned from every dispatch.
type ActionResult struct {
	ActionID         id.ActionID   `json:"action_id"`
	EmployeeID       id.EmployeeID `json:"employee_id"`
	Applied          bool          `json:"applied"`
	IdempotentReplay bool          `json:"idempotent_replay"`
	SnapshotVersion  time.Time     `json:"new_snapshot_version"`
}
