// Package postgres persists employees, interval records and the action
// journal in PostgreSQL. Writes issued inside Store.RunInTx share one
// transaction via the context.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"dossier/internal/hr/models"
	id "dossier/pkg/domain"
	"dossier/pkg/platform/sentinel"
	txcontext "dossier/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

// Store implements the employee, temporal and journal stores over one pool.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL-backed store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx executes fn inside a single transaction. Nested calls reuse the
// transaction already carried by the context.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const employeeColumns = `
	id, org_id, employee_number, national_id, first_name, last_name,
	father_name, birth_date, is_active, deleted_at, created_by,
	created_at, updated_at`

func (s *Store) Insert(ctx context.Context, employee *models.Employee) error {
	query := `
		INSERT INTO employees (` + employeeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		employee.ID, employee.OrgID, employee.EmployeeNumber, employee.NationalID,
		employee.FirstName, employee.LastName, employee.FatherName, employee.BirthDate,
		employee.IsActive, employee.DeletedAt, employee.CreatedBy,
		employee.CreatedAt, employee.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, employee *models.Employee) error {
	query := `
		UPDATE employees
		SET employee_number = $3, national_id = $4, first_name = $5,
		    last_name = $6, father_name = $7, birth_date = $8,
		    is_active = $9, deleted_at = $10, updated_at = $11
		WHERE id = $1 AND org_id = $2
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		employee.ID, employee.OrgID, employee.EmployeeNumber, employee.NationalID,
		employee.FirstName, employee.LastName, employee.FatherName, employee.BirthDate,
		employee.IsActive, employee.DeletedAt, employee.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update employee: %w", err)
	}
	return requireRow(result)
}

func (s *Store) FindByID(ctx context.Context, org id.OrgID, employee id.EmployeeID) (*models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1 AND org_id = $2`
	return s.scanEmployee(s.execer(ctx).QueryRowContext(ctx, query, employee, org))
}

func (s *Store) FindByIDAnyOrg(ctx context.Context, employee id.EmployeeID) (*models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1`
	return s.scanEmployee(s.execer(ctx).QueryRowContext(ctx, query, employee))
}

func (s *Store) FindByNumber(ctx context.Context, org id.OrgID, number string) (*models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE org_id = $1 AND employee_number = $2`
	return s.scanEmployee(s.execer(ctx).QueryRowContext(ctx, query, org, number))
}

// FindByNumberAnyOrg returns at most two matches; callers only need to know
// whether the number is globally unique.
func (s *Store) FindByNumberAnyOrg(ctx context.Context, number string) ([]*models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE employee_number = $1 LIMIT 2`
	rows, err := s.execer(ctx).QueryContext(ctx, query, number)
	if err != nil {
		return nil, fmt.Errorf("find employees by number: %w", err)
	}
	defer rows.Close()

	var employees []*models.Employee
	for rows.Next() {
		employee, err := scanEmployeeRow(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, employee)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find employees by number: %w", err)
	}
	return employees, nil
}

func (s *Store) FindByNationalID(ctx context.Context, org id.OrgID, nationalID string) (*models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE org_id = $1 AND national_id = $2`
	return s.scanEmployee(s.execer(ctx).QueryRowContext(ctx, query, org, nationalID))
}

const recordColumns = `
	id, org_id, employee_id, stream, valid_from, valid_to, value,
	changed_by, created_at, updated_at`

func (s *Store) ListStream(ctx context.Context, org id.OrgID, employee id.EmployeeID, stream models.Stream) ([]models.TemporalRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM temporal_records
		WHERE org_id = $1 AND employee_id = $2 AND stream = $3
		ORDER BY valid_from ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, org, employee, stream)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", stream, err)
	}
	defer rows.Close()

	var records []models.TemporalRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s records: %w", stream, err)
	}
	return records, nil
}

func (s *Store) InsertRecord(ctx context.Context, record *models.TemporalRecord) error {
	value, err := json.Marshal(record.Value)
	if err != nil {
		return fmt.Errorf("encode %s value: %w", record.Stream, err)
	}
	query := `
		INSERT INTO temporal_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		record.ID, record.OrgID, record.EmployeeID, record.Stream,
		record.ValidFrom, record.ValidTo, value,
		record.ChangedBy, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert %s record: %w", record.Stream, err)
	}
	return nil
}

func (s *Store) UpdateRecord(ctx context.Context, record *models.TemporalRecord) error {
	value, err := json.Marshal(record.Value)
	if err != nil {
		return fmt.Errorf("encode %s value: %w", record.Stream, err)
	}
	query := `
		UPDATE temporal_records
		SET valid_to = $2, value = $3, changed_by = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		record.ID, record.ValidTo, value, record.ChangedBy, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update %s record: %w", record.Stream, err)
	}
	return requireRow(result)
}

func (s *Store) CloseInterval(ctx context.Context, stream models.Stream, record id.RecordID, validTo models.Date) error {
	query := `UPDATE temporal_records SET valid_to = $2, updated_at = NOW() WHERE id = $1 AND stream = $3`
	result, err := s.execer(ctx).ExecContext(ctx, query, record, validTo, stream)
	if err != nil {
		return fmt.Errorf("close %s interval: %w", stream, err)
	}
	return requireRow(result)
}

const journalColumns = `
	id, org_id, employee_id, action_key, action_version, effective_at,
	payload, snapshot_before, snapshot_after, idempotency_key,
	created_by, created_at`

func (s *Store) Append(ctx context.Context, entry *models.JournalEntry) error {
	query := `
		INSERT INTO journal_entries (` + journalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		entry.ID, entry.OrgID, entry.EmployeeID, entry.ActionKey,
		entry.ActionVersion, entry.EffectiveAt,
		[]byte(entry.Payload), nullJSON(entry.SnapshotBefore), nullJSON(entry.SnapshotAfter),
		entry.IdempotencyKey, entry.CreatedBy, entry.CreatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, org id.OrgID, employee id.EmployeeID, key string) (*models.JournalEntry, error) {
	query := `
		SELECT ` + journalColumns + `
		FROM journal_entries
		WHERE org_id = $1 AND employee_id = $2 AND idempotency_key = $3
	`
	return scanEntry(s.execer(ctx).QueryRowContext(ctx, query, org, employee, key))
}

func (s *Store) ListRecent(ctx context.Context, org id.OrgID, employee id.EmployeeID, limit int) ([]models.JournalEntry, error) {
	query := `
		SELECT ` + journalColumns + `
		FROM journal_entries
		WHERE org_id = $1 AND employee_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, org, employee, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		entry, err := scanEntryRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	return entries, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
