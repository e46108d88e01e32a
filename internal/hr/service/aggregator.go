package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"dossier/internal/hr/models"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
	"dossier/pkg/platform/sentinel"
	txcontext "dossier/pkg/platform/tx"
)

const (
	defaultTimelineLimit = 20
	maxTimelineLimit     = 100
)

// EmployeeFile assembles the full read model for one employee, resolving
// the reference first. Cached copies are served when a cache is configured;
// dispatch invalidates them.
func (s *Service) EmployeeFile(ctx context.Context, org id.OrgID, employeeRef string, timelineLimit int) (*models.EmployeeFile, error) {
	if timelineLimit <= 0 {
		timelineLimit = defaultTimelineLimit
	}
	if timelineLimit > maxTimelineLimit {
		timelineLimit = maxTimelineLimit
	}

	org, employeeID, err := s.resolver.Resolve(ctx, org, employeeRef)
	if err != nil {
		return nil, err
	}

	if file := s.cache.Get(ctx, org, employeeID, timelineLimit); file != nil {
		return file, nil
	}

	file, err := s.assemble(ctx, org, employeeID, timelineLimit)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, org, employeeID, timelineLimit, file)
	return file, nil
}

// assemble builds the employee file from the stores. The five stream
// histories and the timeline are independent reads, so they run
// concurrently on the read path. Inside a transaction every read shares
// one database connection, which cannot serve overlapping queries, so the
// snapshot path reads sequentially. Interval histories come back ascending
// from the store and are presented newest first.
func (s *Service) assemble(ctx context.Context, org id.OrgID, employeeID id.EmployeeID, timelineLimit int) (*models.EmployeeFile, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveAssemble(start) }()

	employee, err := s.employees.FindByID(ctx, org, employeeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "employee not found")
		}
		return nil, storeFailure(err, "load employee")
	}

	file := &models.EmployeeFile{Employee: employee}

	if _, inTx := txcontext.From(ctx); inTx {
		for _, stream := range models.Streams() {
			if err := s.loadStream(ctx, file, org, employeeID, stream); err != nil {
				return nil, err
			}
		}
		if err := s.loadTimeline(ctx, file, org, employeeID, timelineLimit); err != nil {
			return nil, err
		}
		return file, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, stream := range models.Streams() {
		g.Go(func() error {
			return s.loadStream(gctx, file, org, employeeID, stream)
		})
	}
	g.Go(func() error {
		return s.loadTimeline(gctx, file, org, employeeID, timelineLimit)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return file, nil
}

func (s *Service) loadStream(ctx context.Context, file *models.EmployeeFile, org id.OrgID, employeeID id.EmployeeID, stream models.Stream) error {
	records, err := s.temporal.ListStream(ctx, org, employeeID, stream)
	if err != nil {
		return storeFailure(err, "list "+string(stream)+" history")
	}
	reverse(records)
	file.SetStream(stream, records)
	return nil
}

func (s *Service) loadTimeline(ctx context.Context, file *models.EmployeeFile, org id.OrgID, employeeID id.EmployeeID, limit int) error {
	entries, err := s.journal.ListRecent(ctx, org, employeeID, limit)
	if err != nil {
		return storeFailure(err, "list timeline")
	}
	file.Timeline = entries
	return nil
}

func reverse(records []models.TemporalRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
