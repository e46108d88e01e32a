package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dossier/internal/hr/models"
	"dossier/internal/hr/store/memory"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
	"dossier/pkg/platform/sentinel"
	txcontext "dossier/pkg/platform/tx"
)

type ServiceSuite struct {
	suite.Suite
	store   *memory.Store
	service *Service
	ctx     context.Context
	org     id.OrgID
	actor   id.ActorID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = memory.New()
	s.service = New(s.store, s.store, s.store, s.store)
	s.ctx = context.Background()
	s.org = id.OrgID(uuid.New())
	s.actor = id.ActorID(uuid.New())
}

func (s *ServiceSuite) day(value string) models.Date {
	d, err := models.ParseDate(value)
	s.Require().NoError(err)
	return d
}

func (s *ServiceSuite) dispatch(key models.ActionKey, ref string, effective string, payload map[string]any, idemKey string) (*models.ActionResult, error) {
	raw, err := json.Marshal(payload)
	s.Require().NoError(err)
	return s.service.Dispatch(s.ctx, s.org, ref, key, s.day(effective), raw, idemKey, s.actor)
}

func (s *ServiceSuite) mustDispatch(key models.ActionKey, ref string, effective string, payload map[string]any) *models.ActionResult {
	result, err := s.dispatch(key, ref, effective, payload, uuid.NewString())
	s.Require().NoError(err)
	s.Require().True(result.Applied)
	return result
}

func (s *ServiceSuite) createEmployee(number, nationalID string) id.EmployeeID {
	result := s.mustDispatch(models.ActionProfileCreated, "", "2024-01-01", map[string]any{
		"employee_number": number,
		"national_id":     nationalID,
		"first_name":      "Dana",
		"last_name":       "Levi",
	})
	return result.EmployeeID
}

func (s *ServiceSuite) history(employee id.EmployeeID, stream models.Stream) []models.TemporalRecord {
	records, err := s.store.ListStream(s.ctx, s.org, employee, stream)
	s.Require().NoError(err)
	return records
}

func (s *ServiceSuite) TestCreateProfile() {
	s.Run("creates an active employee", func() {
		empID := s.createEmployee("1001", "300111222")
		emp, err := s.store.FindByID(s.ctx, s.org, empID)
		s.Require().NoError(err)
		s.True(emp.IsActive)
		s.Equal("1001", emp.EmployeeNumber)
		s.Equal("Dana", emp.FirstName)
	})

	s.Run("upserts by national id", func() {
		first := s.createEmployee("1002", "300111333")
		again := s.mustDispatch(models.ActionProfileCreated, "", "2024-02-01", map[string]any{
			"employee_number": "1002-new",
			"national_id":     "300111333",
			"first_name":      "Noa",
		})
		s.Equal(first, again.EmployeeID)

		emp, err := s.store.FindByID(s.ctx, s.org, first)
		s.Require().NoError(err)
		s.Equal("1002-new", emp.EmployeeNumber)
		s.Equal("Noa", emp.FirstName)
		s.Equal("Levi", emp.LastName, "unsubmitted fields stay")
	})

	s.Run("reactivates a closed employee", func() {
		empID := s.createEmployee("1003", "300111444")
		s.mustDispatch(models.ActionStatusClosed, empID.String(), "2024-06-30", map[string]any{
			"closed_reason": "resigned",
		})
		closed, err := s.store.FindByID(s.ctx, s.org, empID)
		s.Require().NoError(err)
		s.False(closed.IsActive)

		reopened := s.mustDispatch(models.ActionProfileCreated, "", "2024-09-01", map[string]any{
			"employee_number": "1003",
			"national_id":     "300111444",
		})
		s.Equal(empID, reopened.EmployeeID)

		emp, err := s.store.FindByID(s.ctx, s.org, empID)
		s.Require().NoError(err)
		s.True(emp.IsActive)
		s.Nil(emp.DeletedAt)
	})
}

func (s *ServiceSuite) TestIdempotentReplay() {
	empID := s.createEmployee("2001", "300222111")
	idemKey := uuid.NewString()

	first, err := s.dispatch(models.ActionAddressChanged, empID.String(), "2024-03-01", map[string]any{
		"city": "Haifa",
	}, idemKey)
	s.Require().NoError(err)
	s.True(first.Applied)
	s.False(first.IdempotentReplay)

	second, err := s.dispatch(models.ActionAddressChanged, empID.String(), "2024-03-01", map[string]any{
		"city": "Haifa",
	}, idemKey)
	s.Require().NoError(err)
	s.False(second.Applied)
	s.True(second.IdempotentReplay)
	s.Equal(first.ActionID, second.ActionID)

	s.Len(s.history(empID, models.StreamAddress), 1, "replay must not add intervals")
}

func (s *ServiceSuite) TestIntervalInvariants() {
	empID := s.createEmployee("3001", "300333111")
	change := func(effective, city string) {
		s.mustDispatch(models.ActionAddressChanged, empID.String(), effective, map[string]any{
			"city": city,
		})
	}

	change("2024-01-01", "Haifa")
	change("2024-04-01", "Tel Aviv")
	change("2024-02-15", "Jerusalem") // lands inside the first interval

	records := s.history(empID, models.StreamAddress)
	s.Require().Len(records, 3)

	open := 0
	for i, r := range records {
		if r.Open() {
			open++
			continue
		}
		// closed intervals must end before the next one starts
		s.Require().Less(i+1, len(records))
		s.Equal(records[i+1].ValidFrom.AddDays(-1), *r.ValidTo)
	}
	s.Equal(1, open, "exactly one open interval per stream")

	s.Equal(s.day("2024-02-14"), *records[0].ValidTo, "covering interval closed the day before")
	s.Equal(s.day("2024-02-15"), records[1].ValidFrom)
	s.Equal(s.day("2024-03-31"), *records[1].ValidTo, "mid-history interval capped by the next start")
	s.True(records[2].Open())
}

func (s *ServiceSuite) TestExactDateReapply() {
	empID := s.createEmployee("3002", "300333222")

	s.mustDispatch(models.ActionBankChanged, empID.String(), "2024-05-01", map[string]any{
		"bank_code": "10", "account_number": "111",
	})
	s.mustDispatch(models.ActionBankChanged, empID.String(), "2024-05-01", map[string]any{
		"account_number": "222",
	})

	records := s.history(empID, models.StreamBank)
	s.Require().Len(records, 1, "same effective date updates in place")
	s.True(records[0].Open(), "open state preserved")

	value := records[0].Value.(models.BankDetailValue)
	s.Equal("222", value.AccountNumber)
	s.Equal("10", value.BankCode, "unsubmitted fields carried over")
}

func (s *ServiceSuite) TestRequestedEndCapping() {
	empID := s.createEmployee("3003", "300333333")

	s.Run("explicit end is honored", func() {
		s.mustDispatch(models.ActionFamilyChanged, empID.String(), "2024-01-01", map[string]any{
			"first_name": "Amit", "valid_to": "2024-03-31",
		})
		records := s.history(empID, models.StreamFamily)
		s.Require().Len(records, 1)
		s.Equal(s.day("2024-03-31"), *records[0].ValidTo)
	})

	s.Run("end before effective date is rejected", func() {
		_, err := s.dispatch(models.ActionFamilyChanged, empID.String(), "2024-06-01", map[string]any{
			"first_name": "Amit", "valid_to": "2024-05-01",
		}, uuid.NewString())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInterval))
	})
}

func (s *ServiceSuite) TestRoleDefaults() {
	empID := s.createEmployee("4001", "300444111")
	s.mustDispatch(models.ActionRoleChanged, empID.String(), "2024-01-01", map[string]any{
		"job_title": "Engineer",
	})

	records := s.history(empID, models.StreamRole)
	s.Require().Len(records, 1)
	value := records[0].Value.(models.RoleAssignmentValue)
	s.Equal("Engineer", value.JobTitle)
	s.Equal(float64(100), value.ScopePercent, "scope defaults to full")
}

func (s *ServiceSuite) TestAssetReturnMirrorsInterval() {
	empID := s.createEmployee("4002", "300444222")
	s.mustDispatch(models.ActionAssetChanged, empID.String(), "2024-02-01", map[string]any{
		"type": "laptop", "serial_number": "SN-1", "return_date": "2024-08-31",
	})

	records := s.history(empID, models.StreamAsset)
	s.Require().Len(records, 1)
	s.Equal(s.day("2024-08-31"), *records[0].ValidTo)

	value := records[0].Value.(models.AssetValue)
	s.Equal(models.AssetStatusAssigned, value.Status)
	s.Require().NotNil(value.IssuedAt)
	s.Equal(s.day("2024-02-01"), *value.IssuedAt, "issue date defaults to the effective date")
	s.Require().NotNil(value.ReturnedAt)
	s.Equal(s.day("2024-08-31"), *value.ReturnedAt)
}

func (s *ServiceSuite) TestAmendIdentity() {
	empID := s.createEmployee("5001", "300555111")
	s.mustDispatch(models.ActionIdentityAmended, empID.String(), "2024-04-01", map[string]any{
		"last_name": "Cohen",
	})

	emp, err := s.store.FindByID(s.ctx, s.org, empID)
	s.Require().NoError(err)
	s.Equal("Cohen", emp.LastName)
	s.Equal("Dana", emp.FirstName)
}

func (s *ServiceSuite) TestDispatchRejections() {
	empID := s.createEmployee("6001", "300666111")

	s.Run("unknown action key", func() {
		_, err := s.dispatch("employee_salary.changed", empID.String(), "2024-01-01", nil, uuid.NewString())
		s.True(dErrors.HasCode(err, dErrors.CodeUnsupportedAction))
	})

	s.Run("missing idempotency key", func() {
		_, err := s.dispatch(models.ActionAddressChanged, empID.String(), "2024-01-01", map[string]any{"city": "Haifa"}, "")
		s.True(dErrors.HasCode(err, dErrors.CodeMissingIdempotencyKey))
	})

	s.Run("unknown employee", func() {
		_, err := s.dispatch(models.ActionAddressChanged, uuid.NewString(), "2024-01-01", map[string]any{"city": "Haifa"}, uuid.NewString())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("invalid payload field", func() {
		_, err := s.dispatch(models.ActionRoleChanged, empID.String(), "2024-01-01", map[string]any{
			"scope_percentage": 150,
		}, uuid.NewString())
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestJournalSnapshots() {
	create := s.mustDispatch(models.ActionProfileCreated, "", "2024-01-01", map[string]any{
		"employee_number": "7001", "national_id": "300777111",
	})
	empID := create.EmployeeID

	entries, err := s.store.ListRecent(s.ctx, s.org, empID, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Nil(entries[0].SnapshotBefore, "no before state for a creation")
	s.NotEmpty(entries[0].SnapshotAfter)

	s.mustDispatch(models.ActionAddressChanged, empID.String(), "2024-02-01", map[string]any{
		"city": "Haifa",
	})
	entries, err = s.store.ListRecent(s.ctx, s.org, empID, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)

	latest := entries[0]
	s.Equal(models.ActionAddressChanged, latest.ActionKey)
	s.NotEmpty(latest.SnapshotBefore)

	var before, after models.EmployeeFile
	s.Require().NoError(json.Unmarshal(latest.SnapshotBefore, &before))
	s.Require().NoError(json.Unmarshal(latest.SnapshotAfter, &after))
	s.Empty(before.StreamRecords(models.StreamAddress))
	s.Len(after.StreamRecords(models.StreamAddress), 1)
}

func (s *ServiceSuite) TestEmployeeFile() {
	empID := s.createEmployee("8001", "300888111")
	s.mustDispatch(models.ActionAddressChanged, empID.String(), "2024-01-01", map[string]any{"city": "Haifa"})
	s.mustDispatch(models.ActionAddressChanged, empID.String(), "2024-05-01", map[string]any{"city": "Tel Aviv"})
	s.mustDispatch(models.ActionBankChanged, empID.String(), "2024-01-01", map[string]any{"bank_code": "10"})

	s.Run("resolves by business number", func() {
		file, err := s.service.EmployeeFile(s.ctx, s.org, "8001", 0)
		s.Require().NoError(err)
		s.Equal(empID, file.Employee.ID)

		s.Require().Len(file.Addresses, 2)
		s.True(file.Addresses[0].ValidFrom.OnOrAfter(file.Addresses[1].ValidFrom), "newest interval first")
		s.Len(file.BankDetails, 1)
		s.Len(file.Timeline, 4)
	})

	s.Run("timeline limit is applied", func() {
		file, err := s.service.EmployeeFile(s.ctx, s.org, empID.String(), 2)
		s.Require().NoError(err)
		s.Len(file.Timeline, 2)
		s.Equal(models.ActionBankChanged, file.Timeline[0].ActionKey, "newest entry first")
	})

	s.Run("unknown reference", func() {
		_, err := s.service.EmployeeFile(s.ctx, s.org, "no-such-employee", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// faultyJournal fails Append on demand while the rest of the store works.
type faultyJournal struct {
	*memory.Store
	failAppend bool
}

func (f *faultyJournal) Append(ctx context.Context, entry *models.JournalEntry) error {
	if f.failAppend {
		return errors.New("journal unavailable")
	}
	return f.Store.Append(ctx, entry)
}

func (s *ServiceSuite) TestFailedDispatchLeavesNoState() {
	journal := &faultyJournal{Store: s.store, failAppend: true}
	svc := New(s.store, s.store, journal, s.store)

	dispatch := func(key models.ActionKey, ref string, payload map[string]any) error {
		raw, err := json.Marshal(payload)
		s.Require().NoError(err)
		_, err = svc.Dispatch(s.ctx, s.org, ref, key, s.day("2024-01-01"), raw, uuid.NewString(), s.actor)
		return err
	}

	s.Run("creation rolls back the employee row", func() {
		err := dispatch(models.ActionProfileCreated, "", map[string]any{
			"employee_number": "9001", "national_id": "300999111",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

		_, err = s.store.FindByNationalID(s.ctx, s.org, "300999111")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	var empID id.EmployeeID
	s.Run("succeeds once the journal recovers", func() {
		journal.failAppend = false
		s.Require().NoError(dispatch(models.ActionProfileCreated, "", map[string]any{
			"employee_number": "9001", "national_id": "300999111",
		}))
		emp, err := s.store.FindByNationalID(s.ctx, s.org, "300999111")
		s.Require().NoError(err)
		empID = emp.ID
	})

	s.Run("interval mutation rolls back too", func() {
		journal.failAppend = true
		err := dispatch(models.ActionAddressChanged, empID.String(), map[string]any{
			"city": "Haifa",
		})
		s.Require().Error(err)
		s.Empty(s.history(empID, models.StreamAddress))
	})
}

// txTrackingStore records the highest number of overlapping store reads
// observed while a transaction is carried in context. A real transaction is
// a single database connection and cannot serve overlapping queries.
type txTrackingStore struct {
	*memory.Store
	inFlight atomic.Int32
	maxInTx  atomic.Int32
}

func (t *txTrackingStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.Store.RunInTx(ctx, func(ctx context.Context) error {
		return fn(txcontext.WithTx(ctx, new(sql.Tx)))
	})
}

func (t *txTrackingStore) enter(ctx context.Context) func() {
	if _, ok := txcontext.From(ctx); !ok {
		return func() {}
	}
	n := t.inFlight.Add(1)
	for {
		max := t.maxInTx.Load()
		if n <= max || t.maxInTx.CompareAndSwap(max, n) {
			break
		}
	}
	// widen the window so overlapping reads would actually be observed
	time.Sleep(time.Millisecond)
	return func() { t.inFlight.Add(-1) }
}

func (t *txTrackingStore) ListStream(ctx context.Context, org id.OrgID, employee id.EmployeeID, stream models.Stream) ([]models.TemporalRecord, error) {
	defer t.enter(ctx)()
	return t.Store.ListStream(ctx, org, employee, stream)
}

func (t *txTrackingStore) ListRecent(ctx context.Context, org id.OrgID, employee id.EmployeeID, limit int) ([]models.JournalEntry, error) {
	defer t.enter(ctx)()
	return t.Store.ListRecent(ctx, org, employee, limit)
}

func (s *ServiceSuite) TestSnapshotReadsSequentialInTx() {
	st := &txTrackingStore{Store: s.store}
	svc := New(st, st, st, st)

	dispatch := func(key models.ActionKey, ref string, effective string, payload map[string]any) *models.ActionResult {
		raw, err := json.Marshal(payload)
		s.Require().NoError(err)
		result, err := svc.Dispatch(s.ctx, s.org, ref, key, s.day(effective), raw, uuid.NewString(), s.actor)
		s.Require().NoError(err)
		return result
	}

	created := dispatch(models.ActionProfileCreated, "", "2024-01-01", map[string]any{
		"employee_number": "9101", "national_id": "300991101",
	})
	dispatch(models.ActionAddressChanged, created.EmployeeID.String(), "2024-02-01", map[string]any{
		"city": "Haifa",
	})

	s.Equal(int32(1), st.maxInTx.Load(), "in-tx snapshot reads must not overlap")
}

func (s *ServiceSuite) TestCatalog() {
	descriptors := s.service.Catalog()
	s.Len(descriptors, 8)

	keys := make(map[models.ActionKey]bool, len(descriptors))
	for _, d := range descriptors {
		keys[d.Key] = true
		s.NotEmpty(d.Label)
		s.NotEmpty(d.Entity)
	}
	s.True(keys[models.ActionProfileCreated])
	s.True(keys[models.ActionStatusClosed])
}
