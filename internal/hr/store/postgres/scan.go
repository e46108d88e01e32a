package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"dossier/internal/hr/models"
	"dossier/pkg/platform/sentinel"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanEmployee(row *sql.Row) (*models.Employee, error) {
	employee, err := scanEmployeeFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return employee, err
}

func scanEmployeeRow(rows *sql.Rows) (*models.Employee, error) {
	return scanEmployeeFrom(rows)
}

func scanEmployeeFrom(row rowScanner) (*models.Employee, error) {
	var (
		employee  models.Employee
		birthDate sql.NullTime
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&employee.ID, &employee.OrgID, &employee.EmployeeNumber, &employee.NationalID,
		&employee.FirstName, &employee.LastName, &employee.FatherName, &birthDate,
		&employee.IsActive, &deletedAt, &employee.CreatedBy,
		&employee.CreatedAt, &employee.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan employee: %w", err)
	}
	if birthDate.Valid {
		employee.BirthDate = models.DatePtr(models.DateOf(birthDate.Time))
	}
	if deletedAt.Valid {
		employee.DeletedAt = &deletedAt.Time
	}
	return &employee, nil
}

func scanRecord(rows *sql.Rows) (*models.TemporalRecord, error) {
	var (
		record  models.TemporalRecord
		validTo sql.NullTime
		value   []byte
	)
	err := rows.Scan(
		&record.ID, &record.OrgID, &record.EmployeeID, &record.Stream,
		&record.ValidFrom, &validTo, &value,
		&record.ChangedBy, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan temporal record: %w", err)
	}
	if validTo.Valid {
		record.ValidTo = models.DatePtr(models.DateOf(validTo.Time))
	}
	record.Value, err = models.DecodeValue(record.Stream, value)
	if err != nil {
		return nil, fmt.Errorf("decode %s value: %w", record.Stream, err)
	}
	return &record, nil
}

func scanEntry(row *sql.Row) (*models.JournalEntry, error) {
	entry, err := scanEntryFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return entry, err
}

func scanEntryRow(rows *sql.Rows) (*models.JournalEntry, error) {
	return scanEntryFrom(rows)
}

func scanEntryFrom(row rowScanner) (*models.JournalEntry, error) {
	var (
		entry          models.JournalEntry
		payload        []byte
		snapshotBefore []byte
		snapshotAfter  []byte
	)
	err := row.Scan(
		&entry.ID, &entry.OrgID, &entry.EmployeeID, &entry.ActionKey,
		&entry.ActionVersion, &entry.EffectiveAt,
		&payload, &snapshotBefore, &snapshotAfter,
		&entry.IdempotencyKey, &entry.CreatedBy, &entry.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan journal entry: %w", err)
	}
	entry.Payload = payload
	entry.SnapshotBefore = snapshotBefore
	entry.SnapshotAfter = snapshotAfter
	return &entry, nil
}
