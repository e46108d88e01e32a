//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dossier/internal/hr/models"
	"dossier/internal/hr/store/postgres"
	id "dossier/pkg/domain"
	"dossier/pkg/platform/sentinel"
	"dossier/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	ctx      context.Context
	org      id.OrgID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	// Truncate in dependency order
	err := s.postgres.TruncateTables(s.ctx, "journal_entries", "temporal_records", "employees")
	s.Require().NoError(err)
	s.org = id.OrgID(uuid.New())
}

func (s *PostgresStoreSuite) day(value string) models.Date {
	d, err := models.ParseDate(value)
	s.Require().NoError(err)
	return d
}

func (s *PostgresStoreSuite) seedEmployee() *models.Employee {
	now := time.Now().UTC().Truncate(time.Microsecond)
	e := &models.Employee{
		ID:             id.EmployeeID(uuid.New()),
		OrgID:          s.org,
		EmployeeNumber: uuid.NewString()[:8],
		NationalID:     uuid.NewString(),
		FirstName:      "Dana",
		LastName:       "Levi",
		IsActive:       true,
		CreatedBy:      id.ActorID(uuid.New()),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.Require().NoError(s.store.Insert(s.ctx, e))
	return e
}

func (s *PostgresStoreSuite) TestEmployeeRoundTrip() {
	e := s.seedEmployee()

	found, err := s.store.FindByID(s.ctx, s.org, e.ID)
	s.Require().NoError(err)
	s.Equal(e.EmployeeNumber, found.EmployeeNumber)
	s.Equal(e.NationalID, found.NationalID)
	s.True(found.IsActive)

	found.LastName = "Cohen"
	found.UpdatedAt = time.Now().UTC()
	s.Require().NoError(s.store.Update(s.ctx, found))

	byNumber, err := s.store.FindByNumber(s.ctx, s.org, e.EmployeeNumber)
	s.Require().NoError(err)
	s.Equal("Cohen", byNumber.LastName)

	_, err = s.store.FindByID(s.ctx, id.OrgID(uuid.New()), e.ID)
	s.ErrorIs(err, sentinel.ErrNotFound, "lookups are org-scoped")
}

func (s *PostgresStoreSuite) TestNationalIDUniquePerOrg() {
	e := s.seedEmployee()

	dup := *e
	dup.ID = id.EmployeeID(uuid.New())
	dup.EmployeeNumber = "other"
	err := s.store.Insert(s.ctx, &dup)
	s.ErrorIs(err, sentinel.ErrConflict)

	// same national id in another org is fine
	other := dup
	other.OrgID = id.OrgID(uuid.New())
	s.Require().NoError(s.store.Insert(s.ctx, &other))
}

func (s *PostgresStoreSuite) TestEmployeeNumberUniquePerOrg() {
	e := s.seedEmployee()

	dup := *e
	dup.ID = id.EmployeeID(uuid.New())
	dup.NationalID = uuid.NewString()
	s.ErrorIs(s.store.Insert(s.ctx, &dup), sentinel.ErrConflict)

	// same number in another org is fine
	other := dup
	other.OrgID = id.OrgID(uuid.New())
	s.Require().NoError(s.store.Insert(s.ctx, &other))

	// updating onto a taken number conflicts too
	second := s.seedEmployee()
	second.EmployeeNumber = e.EmployeeNumber
	second.UpdatedAt = time.Now().UTC()
	s.ErrorIs(s.store.Update(s.ctx, second), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestTemporalRecordRoundTrip() {
	e := s.seedEmployee()
	now := time.Now().UTC().Truncate(time.Microsecond)

	record := &models.TemporalRecord{
		ID:         id.NewRecordID(),
		OrgID:      s.org,
		EmployeeID: e.ID,
		Stream:     models.StreamAddress,
		ValidFrom:  s.day("2024-01-01"),
		Value:      models.AddressValue{City: "Haifa", Street: "Herzl"},
		ChangedBy:  id.ActorID(uuid.New()),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.Require().NoError(s.store.InsertRecord(s.ctx, record))

	records, err := s.store.ListStream(s.ctx, s.org, e.ID, models.StreamAddress)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.True(records[0].Open())
	s.Equal(s.day("2024-01-01"), records[0].ValidFrom)

	value, ok := records[0].Value.(models.AddressValue)
	s.Require().True(ok, "jsonb value decodes into the stream's type")
	s.Equal("Haifa", value.City)

	s.Require().NoError(s.store.CloseInterval(s.ctx, models.StreamAddress, record.ID, s.day("2024-06-30")))

	records, err = s.store.ListStream(s.ctx, s.org, e.ID, models.StreamAddress)
	s.Require().NoError(err)
	s.Require().NotNil(records[0].ValidTo)
	s.Equal(s.day("2024-06-30"), *records[0].ValidTo)
}

func (s *PostgresStoreSuite) TestListStreamOrdering() {
	e := s.seedEmployee()
	now := time.Now().UTC()

	for _, from := range []string{"2024-05-01", "2024-01-01", "2024-09-01"} {
		record := &models.TemporalRecord{
			ID:         id.NewRecordID(),
			OrgID:      s.org,
			EmployeeID: e.ID,
			Stream:     models.StreamBank,
			ValidFrom:  s.day(from),
			Value:      models.BankDetailValue{BankCode: from},
			ChangedBy:  id.ActorID(uuid.New()),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.Require().NoError(s.store.InsertRecord(s.ctx, record))
	}

	records, err := s.store.ListStream(s.ctx, s.org, e.ID, models.StreamBank)
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	for i := 1; i < len(records); i++ {
		s.True(records[i].ValidFrom.OnOrAfter(records[i-1].ValidFrom), "ascending by valid_from")
	}
}

func (s *PostgresStoreSuite) TestJournalIdempotencyKeyUnique() {
	e := s.seedEmployee()
	key := uuid.NewString()
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount atomic.Int32
	var conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			entry := &models.JournalEntry{
				ID:             id.NewActionID(),
				OrgID:          s.org,
				EmployeeID:     e.ID,
				ActionKey:      models.ActionAddressChanged,
				ActionVersion:  1,
				EffectiveAt:    s.day("2024-01-01"),
				Payload:        []byte(`{"city":"Haifa"}`),
				IdempotencyKey: key,
				CreatedBy:      id.ActorID(uuid.New()),
				CreatedAt:      time.Now().UTC(),
			}
			err := s.store.Append(s.ctx, entry)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrConflict) {
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one append should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load())

	entry, err := s.store.FindByIdempotencyKey(s.ctx, s.org, e.ID, key)
	s.Require().NoError(err)
	s.Equal(models.ActionAddressChanged, entry.ActionKey)
}

func (s *PostgresStoreSuite) TestRunInTxRollback() {
	e := s.seedEmployee()
	boom := errors.New("boom")

	err := s.store.RunInTx(s.ctx, func(ctx context.Context) error {
		record := &models.TemporalRecord{
			ID:         id.NewRecordID(),
			OrgID:      s.org,
			EmployeeID: e.ID,
			Stream:     models.StreamAsset,
			ValidFrom:  s.day("2024-01-01"),
			Value:      models.AssetValue{Type: "laptop", Status: models.AssetStatusAssigned},
			ChangedBy:  id.ActorID(uuid.New()),
			CreatedAt:  time.Now().UTC(),
			UpdatedAt:  time.Now().UTC(),
		}
		if err := s.store.InsertRecord(ctx, record); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	records, err := s.store.ListStream(s.ctx, s.org, e.ID, models.StreamAsset)
	s.Require().NoError(err)
	s.Empty(records, "rolled-back writes must not be visible")
}
