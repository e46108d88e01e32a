// Package store defines the persistence contract of the record engine.
//
// Stores are pure I/O: they return sentinel errors from pkg/platform/sentinel
// and never apply domain rules. Two implementations exist: store/memory for
// unit and property tests, store/postgres for production.
package store

import (
	"context"

	"dossier/internal/hr/models"
	id "dossier/pkg/domain"
)

// EmployeeStore persists employee rows.
type EmployeeStore interface {
	Insert(ctx context.Context, employee *models.Employee) error
	Update(ctx context.Context, employee *models.Employee) error
	FindByID(ctx context.Context, org id.OrgID, employee id.EmployeeID) (*models.Employee, error)
	// FindByIDAnyOrg looks an employee up without organization scoping; used
	// by the cross-org identity fallback.
	FindByIDAnyOrg(ctx context.Context, employee id.EmployeeID) (*models.Employee, error)
	FindByNumber(ctx context.Context, org id.OrgID, number string) (*models.Employee, error)
	// FindByNumberAnyOrg returns every employee carrying the number across
	// organizations, capped at two rows: the resolver only needs to know
	// whether the match is unique.
	FindByNumberAnyOrg(ctx context.Context, number string) ([]*models.Employee, error)
	FindByNationalID(ctx context.Context, org id.OrgID, nationalID string) (*models.Employee, error)
}

// TemporalStore persists attribute-stream intervals.
type TemporalStore interface {
	// ListStream returns the full interval history ordered by ValidFrom
	// ascending.
	ListStream(ctx context.Context, org id.OrgID, employee id.EmployeeID, stream models.Stream) ([]models.TemporalRecord, error)
	InsertRecord(ctx context.Context, record *models.TemporalRecord) error
	UpdateRecord(ctx context.Context, record *models.TemporalRecord) error
	// CloseInterval sets an interval's ValidTo without touching its fields.
	CloseInterval(ctx context.Context, stream models.Stream, record id.RecordID, validTo models.Date) error
}

// JournalStore persists the append-only action journal.
type JournalStore interface {
	Append(ctx context.Context, entry *models.JournalEntry) error
	// FindByIdempotencyKey returns the prior entry for the unique
	// (org, employee, key) triple, or sentinel.ErrNotFound.
	FindByIdempotencyKey(ctx context.Context, org id.OrgID, employee id.EmployeeID, key string) (*models.JournalEntry, error)
	// ListRecent returns up to limit entries ordered by creation time
	// descending.
	ListRecent(ctx context.Context, org id.OrgID, employee id.EmployeeID, limit int) ([]models.JournalEntry, error)
}

// TxRunner scopes a unit of work to one store transaction. Implementations
// guarantee that either every write inside fn commits or none do.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
