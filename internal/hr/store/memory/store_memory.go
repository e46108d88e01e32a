// Package memory is the in-memory store used by unit and property tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"dossier/internal/hr/models"
	id "dossier/pkg/domain"
	"dossier/pkg/platform/sentinel"
)

// Store implements every store interface over mutex-guarded maps. It mirrors
// the sentinel-error contract of the postgres store so services cannot tell
// the two apart.
type Store struct {
	mu        sync.RWMutex
	employees map[id.EmployeeID]models.Employee
	records   map[id.RecordID]models.TemporalRecord
	journal   []models.JournalEntry
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		employees: make(map[id.EmployeeID]models.Employee),
		records:   make(map[id.RecordID]models.TemporalRecord),
	}
}

// RunInTx snapshots the store, runs fn, and restores the snapshot when fn
// fails. Callers serialize mutating transactions per dispatch key, so the
// restore never clobbers a concurrent writer.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	employees := maps.Clone(s.employees)
	records := maps.Clone(s.records)
	journal := slices.Clone(s.journal)
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.employees = employees
		s.records = records
		s.journal = journal
		s.mu.Unlock()
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// EmployeeStore
// ---------------------------------------------------------------------------

func (s *Store) Insert(ctx context.Context, employee *models.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.employees[employee.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range s.employees {
		if existing.OrgID == employee.OrgID && existing.EmployeeNumber == employee.EmployeeNumber {
			return sentinel.ErrConflict
		}
	}
	s.employees[employee.ID] = *employee
	return nil
}

func (s *Store) Update(ctx context.Context, employee *models.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.employees[employee.ID]; !ok {
		return sentinel.ErrNotFound
	}
	for eid, existing := range s.employees {
		if eid != employee.ID && existing.OrgID == employee.OrgID && existing.EmployeeNumber == employee.EmployeeNumber {
			return sentinel.ErrConflict
		}
	}
	s.employees[employee.ID] = *employee
	return nil
}

func (s *Store) FindByID(ctx context.Context, org id.OrgID, employee id.EmployeeID) (*models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.employees[employee]
	if !ok || e.OrgID != org {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

func (s *Store) FindByIDAnyOrg(ctx context.Context, employee id.EmployeeID) (*models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.employees[employee]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

func (s *Store) FindByNumber(ctx context.Context, org id.OrgID, number string) (*models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.employees {
		if e.OrgID == org && e.EmployeeNumber == number {
			found := e
			return &found, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *Store) FindByNumberAnyOrg(ctx context.Context, number string) ([]*models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Employee
	for _, e := range s.employees {
		if e.EmployeeNumber == number {
			found := e
			out = append(out, &found)
			if len(out) == 2 {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) FindByNationalID(ctx context.Context, org id.OrgID, nationalID string) (*models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.employees {
		if e.OrgID == org && e.NationalID == nationalID {
			found := e
			return &found, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ---------------------------------------------------------------------------
// TemporalStore
// ---------------------------------------------------------------------------

func (s *Store) ListStream(ctx context.Context, org id.OrgID, employee id.EmployeeID, stream models.Stream) ([]models.TemporalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.TemporalRecord
	for _, r := range s.records {
		if r.OrgID == org && r.EmployeeID == employee && r.Stream == stream {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ValidFrom.Before(out[j].ValidFrom.Time)
	})
	return out, nil
}

func (s *Store) InsertRecord(ctx context.Context, record *models.TemporalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; ok {
		return sentinel.ErrConflict
	}
	s.records[record.ID] = *record
	return nil
}

func (s *Store) UpdateRecord(ctx context.Context, record *models.TemporalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.records[record.ID] = *record
	return nil
}

func (s *Store) CloseInterval(ctx context.Context, stream models.Stream, record id.RecordID, validTo models.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[record]
	if !ok || r.Stream != stream {
		return sentinel.ErrNotFound
	}
	r.ValidTo = models.DatePtr(validTo)
	s.records[record] = r
	return nil
}

// ---------------------------------------------------------------------------
// JournalStore
// ---------------------------------------------------------------------------

func (s *Store) Append(ctx context.Context, entry *models.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.journal {
		if existing.OrgID == entry.OrgID &&
			existing.EmployeeID == entry.EmployeeID &&
			existing.IdempotencyKey == entry.IdempotencyKey {
			return sentinel.ErrConflict
		}
	}
	s.journal = append(s.journal, *entry)
	return nil
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, org id.OrgID, employee id.EmployeeID, key string) (*models.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.journal {
		e := s.journal[i]
		if e.OrgID == org && e.EmployeeID == employee && e.IdempotencyKey == key {
			return &e, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *Store) ListRecent(ctx context.Context, org id.OrgID, employee id.EmployeeID, limit int) ([]models.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.JournalEntry
	// The journal slice is append-only, so reverse order is newest first.
	for i := len(s.journal) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.journal[i]
		if e.OrgID == org && e.EmployeeID == employee {
			out = append(out, e)
		}
	}
	return out, nil
}
