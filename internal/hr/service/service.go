// Package service orchestrates action dispatch over the record stores.
//
// A dispatch is one short-lived unit of work: validate against the catalog,
// resolve identity, replay-check the journal, snapshot, mutate, snapshot
// again, journal. Concurrent dispatches against the same employee stream are
// serialized with a per-key lock because interval reconciliation is a
// read-modify-write sequence; without the lock the non-overlap invariant
// does not hold under load.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dossier/internal/hr/actions"
	"dossier/internal/hr/catalog"
	"dossier/internal/hr/filecache"
	"dossier/internal/hr/identity"
	hrmetrics "dossier/internal/hr/metrics"
	"dossier/internal/hr/models"
	"dossier/internal/hr/store"
	"dossier/internal/hr/temporal"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
	"dossier/pkg/platform/audit"
	"dossier/pkg/platform/keymutex"
	"dossier/pkg/platform/sentinel"
	"dossier/pkg/requestcontext"
)

// snapshotTimelineLimit is how many journal entries are embedded in the
// before/after snapshots stored with each journal entry.
const snapshotTimelineLimit = 20

// actionVersion is the schema revision stamped on journal entries.
const actionVersion = 1

// Service is the action dispatch engine.
type Service struct {
	employees store.EmployeeStore
	temporal  store.TemporalStore
	journal   store.JournalStore
	tx        store.TxRunner
	resolver  *identity.Resolver
	locks     *keymutex.KeyMutex
	cache     *filecache.Cache
	metrics   *hrmetrics.Metrics
	audit     audit.Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures optional collaborators.
type Option func(*Service)

// WithCache attaches a read-path employee file cache.
func WithCache(cache *filecache.Cache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithMetrics attaches prometheus metrics.
func WithMetrics(m *hrmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAudit attaches an audit event publisher.
func WithAudit(p audit.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New wires a Service over the given stores. The same object may back all
// four interfaces (the in-memory store does).
func New(employees store.EmployeeStore, temporalStore store.TemporalStore, journal store.JournalStore, tx store.TxRunner, opts ...Option) *Service {
	s := &Service{
		employees: employees,
		temporal:  temporalStore,
		journal:   journal,
		tx:        tx,
		resolver:  identity.NewResolver(employees),
		locks:     keymutex.New(),
		audit:     audit.Nop{},
		logger:    slog.Default(),
		tracer:    otel.Tracer("dossier/hr"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the static action catalog.
func (s *Service) Catalog() []catalog.ActionDescriptor {
	return catalog.All()
}

// Dispatch applies one action to one employee, exactly once per
// (org, employee, idempotency key).
func (s *Service) Dispatch(ctx context.Context, org id.OrgID, employeeRef string, key models.ActionKey, effective models.Date, rawPayload json.RawMessage, idempotencyKey string, actor id.ActorID) (*models.ActionResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "hr.dispatch",
		trace.WithAttributes(attribute.String("action_key", string(key))))
	defer span.End()

	result, err := s.dispatch(ctx, org, employeeRef, key, effective, rawPayload, idempotencyKey, actor)
	s.metrics.ObserveDispatch(start)
	switch {
	case err != nil:
		s.metrics.IncrementDispatch(string(key), hrmetrics.OutcomeError)
	case result.IdempotentReplay:
		s.metrics.IncrementDispatch(string(key), hrmetrics.OutcomeReplay)
	default:
		s.metrics.IncrementDispatch(string(key), hrmetrics.OutcomeApplied)
	}
	return result, err
}

func (s *Service) dispatch(ctx context.Context, org id.OrgID, employeeRef string, key models.ActionKey, effective models.Date, rawPayload json.RawMessage, idempotencyKey string, actor id.ActorID) (*models.ActionResult, error) {
	if _, ok := catalog.Lookup(key); !ok {
		return nil, dErrors.Newf(dErrors.CodeUnsupportedAction, "unsupported action key: %s", key)
	}
	if idempotencyKey == "" {
		return nil, dErrors.New(dErrors.CodeMissingIdempotencyKey, "idempotency key is required")
	}

	payload, err := actions.Decode(key, rawPayload)
	if err != nil {
		return nil, err
	}

	if create, ok := payload.(*actions.CreateProfile); ok {
		return s.createProfile(ctx, org, create, effective, rawPayload, idempotencyKey, actor)
	}

	org, employeeID, err := s.resolver.Resolve(ctx, org, employeeRef)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(dispatchLockKey(org, employeeID, payload))
	defer unlock()

	if prior, err := s.priorDispatch(ctx, org, employeeID, idempotencyKey); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	before, err := s.assemble(ctx, org, employeeID, snapshotTimelineLimit)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	entry := &models.JournalEntry{
		ID:             id.NewActionID(),
		OrgID:          org,
		EmployeeID:     employeeID,
		ActionKey:      key,
		ActionVersion:  actionVersion,
		EffectiveAt:    effective,
		Payload:        normalizePayload(rawPayload),
		IdempotencyKey: idempotencyKey,
		CreatedBy:      actor,
		CreatedAt:      now,
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.applyMutation(ctx, org, employeeID, payload, effective, actor, now); err != nil {
			return err
		}

		after, err := s.assemble(ctx, org, employeeID, snapshotTimelineLimit)
		if err != nil {
			return err
		}
		if entry.SnapshotBefore, err = marshalSnapshot(before); err != nil {
			return err
		}
		if entry.SnapshotAfter, err = marshalSnapshot(after); err != nil {
			return err
		}

		if err := s.journal.Append(ctx, entry); err != nil {
			return storeFailure(err, "append journal entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.finishDispatch(ctx, entry)

	return &models.ActionResult{
		ActionID:        entry.ID,
		EmployeeID:      employeeID,
		Applied:         true,
		SnapshotVersion: now,
	}, nil
}

// createProfile upserts an employee by national id within the organization.
// Identity resolution is skipped: the employee may not exist yet.
func (s *Service) createProfile(ctx context.Context, org id.OrgID, payload *actions.CreateProfile, effective models.Date, rawPayload json.RawMessage, idempotencyKey string, actor id.ActorID) (*models.ActionResult, error) {
	unlock := s.locks.Lock(createLockKey(org, payload.NationalID))
	defer unlock()

	now := requestcontext.Now(ctx)

	entry := &models.JournalEntry{
		ID:             id.NewActionID(),
		OrgID:          org,
		ActionKey:      models.ActionProfileCreated,
		ActionVersion:  actionVersion,
		EffectiveAt:    effective,
		Payload:        normalizePayload(rawPayload),
		IdempotencyKey: idempotencyKey,
		CreatedBy:      actor,
		CreatedAt:      now,
	}

	var employee *models.Employee
	var replayed *models.ActionResult
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.employees.FindByNationalID(ctx, org, payload.NationalID)
		switch {
		case err == nil:
			employee = existing
		case errors.Is(err, sentinel.ErrNotFound):
			employee = nil
		default:
			return storeFailure(err, "look up employee by national id")
		}

		if employee != nil {
			applyProfile(employee, payload)
			employee.Reactivate(now)
			if err := s.employees.Update(ctx, employee); err != nil {
				return storeFailure(err, "reactivate employee")
			}
		} else {
			employee = newEmployee(org, payload, actor, now)
			if err := s.employees.Insert(ctx, employee); err != nil {
				return storeFailure(err, "insert employee")
			}
		}

		// The employee id is only known after the upsert, so the replay
		// check happens here, inside the same transaction. The upsert
		// itself is idempotent: re-applying the same profile fields
		// converges on the same row.
		prior, err := s.priorDispatch(ctx, org, employee.ID, idempotencyKey)
		if err != nil {
			return err
		}
		if prior != nil {
			replayed = prior
			return nil
		}

		after, err := s.assemble(ctx, org, employee.ID, snapshotTimelineLimit)
		if err != nil {
			return err
		}
		if entry.SnapshotAfter, err = marshalSnapshot(after); err != nil {
			return err
		}
		entry.EmployeeID = employee.ID

		if err := s.journal.Append(ctx, entry); err != nil {
			return storeFailure(err, "append journal entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if replayed != nil {
		return replayed, nil
	}

	s.finishDispatch(ctx, entry)

	return &models.ActionResult{
		ActionID:        entry.ID,
		EmployeeID:      employee.ID,
		Applied:         true,
		SnapshotVersion: now,
	}, nil
}

// priorDispatch returns the replayed result when the idempotency key has
// already been journaled.
func (s *Service) priorDispatch(ctx context.Context, org id.OrgID, employee id.EmployeeID, key string) (*models.ActionResult, error) {
	entry, err := s.journal.FindByIdempotencyKey(ctx, org, employee, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, storeFailure(err, "check idempotency key")
	}

	s.logger.InfoContext(ctx, "idempotent replay",
		"action_key", string(entry.ActionKey),
		"action_id", entry.ID.String(),
		"idempotency_key", key,
	)
	return &models.ActionResult{
		ActionID:         entry.ID,
		EmployeeID:       employee,
		Applied:          false,
		IdempotentReplay: true,
		SnapshotVersion:  entry.CreatedAt,
	}, nil
}

// applyMutation routes the decoded payload to the right mutation path.
func (s *Service) applyMutation(ctx context.Context, org id.OrgID, employeeID id.EmployeeID, payload actions.Payload, effective models.Date, actor id.ActorID, now time.Time) error {
	switch p := payload.(type) {
	case *actions.AmendIdentity:
		return s.updateEmployee(ctx, org, employeeID, func(e *models.Employee) {
			p.Apply(e)
			e.UpdatedAt = now
		})
	case *actions.CloseFile:
		return s.updateEmployee(ctx, org, employeeID, func(e *models.Employee) {
			e.Close(now)
		})
	case actions.TemporalPayload:
		return s.applyTemporal(ctx, org, employeeID, p, effective, actor, now)
	default:
		return dErrors.Newf(dErrors.CodeUnsupportedAction, "no handler for action key: %s", payload.Key())
	}
}

func (s *Service) updateEmployee(ctx context.Context, org id.OrgID, employeeID id.EmployeeID, mutate func(*models.Employee)) error {
	employee, err := s.employees.FindByID(ctx, org, employeeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "employee not found")
		}
		return storeFailure(err, "load employee")
	}
	mutate(employee)
	if err := s.employees.Update(ctx, employee); err != nil {
		return storeFailure(err, "update employee")
	}
	return nil
}

// applyTemporal reconciles the stream's interval history and commits the
// resulting plan.
func (s *Service) applyTemporal(ctx context.Context, org id.OrgID, employeeID id.EmployeeID, payload actions.TemporalPayload, effective models.Date, actor id.ActorID, now time.Time) error {
	stream := payload.Stream()

	history, err := s.temporal.ListStream(ctx, org, employeeID, stream)
	if err != nil {
		return storeFailure(err, "list stream intervals")
	}

	plan, err := temporal.Reconcile(history, effective, payload.RequestedEnd(), payload.RecordID())
	if err != nil {
		return err
	}

	switch plan.Op {
	case temporal.OpUpdate:
		target := findRecord(history, plan.Target)
		if target == nil {
			return dErrors.New(dErrors.CodeInternal, "reconcile target vanished from history")
		}
		target.Value = mirrorAssetReturn(payload.ApplyTo(target.Value), plan.ValidTo)
		target.ValidTo = plan.ValidTo
		target.ChangedBy = actor
		target.UpdatedAt = now
		if err := s.temporal.UpdateRecord(ctx, target); err != nil {
			return storeFailure(err, "update interval")
		}
		return nil

	case temporal.OpInsert:
		if plan.Close != nil {
			if err := s.temporal.CloseInterval(ctx, stream, plan.Close.Record, plan.Close.ValidTo); err != nil {
				return storeFailure(err, "close covering interval")
			}
		}
		record := &models.TemporalRecord{
			ID:         id.NewRecordID(),
			OrgID:      org,
			EmployeeID: employeeID,
			Stream:     stream,
			ValidFrom:  plan.ValidFrom,
			ValidTo:    plan.ValidTo,
			Value:      mirrorAssetReturn(payload.NewValue(effective), plan.ValidTo),
			ChangedBy:  actor,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.temporal.InsertRecord(ctx, record); err != nil {
			return storeFailure(err, "insert interval")
		}
		return nil

	default:
		return dErrors.Newf(dErrors.CodeInternal, "unknown reconcile op %q", plan.Op)
	}
}

// finishDispatch handles the post-commit side effects: cache invalidation
// and audit emission. Neither may fail the dispatch.
func (s *Service) finishDispatch(ctx context.Context, entry *models.JournalEntry) {
	s.cache.Invalidate(ctx, entry.OrgID, entry.EmployeeID)

	if err := s.audit.Emit(ctx, audit.Event{
		ActionID:       entry.ID,
		OrgID:          entry.OrgID,
		EmployeeID:     entry.EmployeeID,
		ActorID:        entry.CreatedBy,
		ActionKey:      string(entry.ActionKey),
		EffectiveAt:    entry.EffectiveAt.String(),
		IdempotencyKey: entry.IdempotencyKey,
		RequestID:      requestcontext.RequestID(ctx),
		Timestamp:      entry.CreatedAt,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"action_id", entry.ID.String(),
			"error", err.Error(),
		)
	}

	s.logger.InfoContext(ctx, "action applied",
		"action_key", string(entry.ActionKey),
		"action_id", entry.ID.String(),
		"organization_id", entry.OrgID.String(),
		"employee_id", entry.EmployeeID.String(),
		"effective_at", entry.EffectiveAt.String(),
	)
}

func applyProfile(e *models.Employee, p *actions.CreateProfile) {
	e.EmployeeNumber = p.EmployeeNumber
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

func newEmployee(org id.OrgID, p *actions.CreateProfile, actor id.ActorID, now time.Time) *models.Employee {
	e := &models.Employee{
		ID:         id.EmployeeID(uuid.New()),
		OrgID:      org,
		NationalID: p.NationalID,
		IsActive:   true,
		CreatedBy:  actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	applyProfile(e, p)
	return e
}

// mirrorAssetReturn keeps an asset's return date aligned with its interval
// end; other streams pass through untouched.
func mirrorAssetReturn(value models.StreamValue, validTo *models.Date) models.StreamValue {
	asset, ok := value.(models.AssetValue)
	if !ok {
		return value
	}
	asset.ReturnedAt = validTo
	return asset
}

func findRecord(history []models.TemporalRecord, recordID id.RecordID) *models.TemporalRecord {
	for i := range history {
		if history[i].ID == recordID {
			return &history[i]
		}
	}
	return nil
}

func dispatchLockKey(org id.OrgID, employee id.EmployeeID, payload actions.Payload) string {
	key := org.String() + "|" + employee.String()
	if tp, ok := payload.(actions.TemporalPayload); ok {
		key += "|" + string(tp.Stream())
	}
	return key
}

func createLockKey(org id.OrgID, nationalID string) string {
	return org.String() + "|national|" + nationalID
}

func normalizePayload(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}

func marshalSnapshot(file *models.EmployeeFile) (json.RawMessage, error) {
	if file == nil {
		return nil, nil
	}
	raw, err := json.Marshal(file)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode snapshot")
	}
	return raw, nil
}

func storeFailure(err error, op string) error {
	return dErrors.Wrap(err, dErrors.CodeUnavailable, op+" failed")
}
