// Package temporal computes interval reconciliation plans.
//
// Reconcile is pure: given one stream's interval history it decides which
// rows must change to admit a new effective date, without touching storage.
// The dispatcher commits the resulting plan inside a transaction, holding the
// per-stream lock, which is what actually upholds the non-overlap invariant
// under concurrency.
package temporal

import (
	"dossier/internal/hr/models"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
)

// Op says how the stream is mutated.
type Op string

const (
	// OpInsert creates a new interval, possibly closing a covering one.
	OpInsert Op = "insert"
	// OpUpdate rewrites an existing interval in place (exact-date re-apply).
	OpUpdate Op = "update"
)

// CloseOp closes one existing interval.
type CloseOp struct {
	Record  id.RecordID
	ValidTo models.Date
}

// Plan is the decided mutation set: either one in-place update, or one
// insert plus at most one close.
type Plan struct {
	Op        Op
	Target    id.RecordID // interval updated in place, when Op == OpUpdate
	Close     *CloseOp    // covering interval to close, when Op == OpInsert
	ValidFrom models.Date
	ValidTo   *models.Date
}

// Reconcile decides how a stream's history admits a change at effective.
//
// existing must be the stream's full interval list for one employee. target,
// when set, pins the change to a specific row; it only short-circuits into
// the in-place path if that row actually starts at effective.
//
// Rules, in order:
//  1. An interval starting exactly at effective is updated in place. Its
//     open/closed state is preserved unless requestedEnd is supplied, in
//     which case the end is re-capped and re-validated like an insert.
//  2. An interval covering effective (starts before, ends on/after or open)
//     is closed at effective minus one day.
//  3. The new end is requestedEnd capped to the day before the next future
//     start, or that cap alone when no end was requested.
//  4. An end date before effective fails with CodeInvalidInterval.
func Reconcile(existing []models.TemporalRecord, effective models.Date, requestedEnd *models.Date, target *id.RecordID) (Plan, error) {
	exact := findExact(existing, effective, target)
	next := nextFutureStart(existing, effective)

	if exact != nil {
		validTo := exact.ValidTo
		if requestedEnd != nil {
			capped, err := capEnd(requestedEnd, next, effective)
			if err != nil {
				return Plan{}, err
			}
			validTo = capped
		}
		return Plan{
			Op:        OpUpdate,
			Target:    exact.ID,
			ValidFrom: effective,
			ValidTo:   validTo,
		}, nil
	}

	validTo, err := capEnd(requestedEnd, next, effective)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{
		Op:        OpInsert,
		ValidFrom: effective,
		ValidTo:   validTo,
	}
	if covering := findCovering(existing, effective); covering != nil {
		plan.Close = &CloseOp{
			Record:  covering.ID,
			ValidTo: effective.AddDays(-1),
		}
	}
	return plan, nil
}

// capEnd applies future capping and the end-before-start validation.
func capEnd(requested *models.Date, nextStart *models.Date, effective models.Date) (*models.Date, error) {
	end := requested
	if nextStart != nil && (end == nil || end.OnOrAfter(*nextStart)) {
		end = models.DatePtr(nextStart.AddDays(-1))
	}
	if end != nil && end.Before(effective.Time) {
		return nil, dErrors.Newf(dErrors.CodeInvalidInterval,
			"end date %s precedes effective date %s", end, effective)
	}
	return end, nil
}

// findExact returns the interval starting at effective, if any. A pinned
// target row wins only when its start actually matches.
func findExact(existing []models.TemporalRecord, effective models.Date, target *id.RecordID) *models.TemporalRecord {
	var exact *models.TemporalRecord
	for i := range existing {
		row := &existing[i]
		if !row.ValidFrom.Equal(effective.Time) {
			continue
		}
		if exact == nil {
			exact = row
		}
		if target != nil && row.ID == *target {
			return row
		}
	}
	return exact
}

// findCovering returns the interval that is in force at effective but
// started strictly before it.
func findCovering(existing []models.TemporalRecord, effective models.Date) *models.TemporalRecord {
	for i := range existing {
		row := &existing[i]
		if row.ValidFrom.Before(effective.Time) &&
			(row.ValidTo == nil || row.ValidTo.OnOrAfter(effective)) {
			return row
		}
	}
	return nil
}

// nextFutureStart returns the earliest start strictly after effective.
func nextFutureStart(existing []models.TemporalRecord, effective models.Date) *models.Date {
	var next *models.Date
	for i := range existing {
		start := existing[i].ValidFrom
		if !start.After(effective.Time) {
			continue
		}
		if next == nil || start.Before(next.Time) {
			next = models.DatePtr(start)
		}
	}
	return next
}
