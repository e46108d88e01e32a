// Package identity resolves loose employee references.
//
// Callers pass whatever they have: an internal UUID or a business employee
// number, sometimes scoped to the wrong organization. Resolution tries the
// scoped interpretations first and only then falls back to global lookups,
// because a business number is only trustworthy without org context when it
// is globally unique. Ambiguity is never silently resolved.
package identity

import (
	"context"
	"errors"
	"strings"

	"dossier/internal/hr/models"
	"dossier/internal/hr/store"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
	"dossier/pkg/platform/sentinel"
)

// Resolver maps (org, reference) pairs onto canonical employee identities.
type Resolver struct {
	employees store.EmployeeStore
}

func NewResolver(employees store.EmployeeStore) *Resolver {
	return &Resolver{employees: employees}
}

// Resolve returns the canonical (org, employee) pair for ref.
//
// Order: internal id within org, business number within org, internal id
// globally, business number globally when unique. A business number present
// in more than one organization fails as not found.
func (r *Resolver) Resolve(ctx context.Context, org id.OrgID, ref string) (id.OrgID, id.EmployeeID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return id.OrgID{}, id.EmployeeID{}, dErrors.New(dErrors.CodeNotFound, "employee reference is empty")
	}

	employeeID, isUUID := parseEmployeeRef(ref)

	if isUUID {
		if e, err := r.find(ctx, func(ctx context.Context) (*models.Employee, error) {
			return r.employees.FindByID(ctx, org, employeeID)
		}); err != nil {
			return id.OrgID{}, id.EmployeeID{}, err
		} else if e != nil {
			return e.OrgID, e.ID, nil
		}
	}

	if e, err := r.find(ctx, func(ctx context.Context) (*models.Employee, error) {
		return r.employees.FindByNumber(ctx, org, ref)
	}); err != nil {
		return id.OrgID{}, id.EmployeeID{}, err
	} else if e != nil {
		return e.OrgID, e.ID, nil
	}

	if isUUID {
		if e, err := r.find(ctx, func(ctx context.Context) (*models.Employee, error) {
			return r.employees.FindByIDAnyOrg(ctx, employeeID)
		}); err != nil {
			return id.OrgID{}, id.EmployeeID{}, err
		} else if e != nil {
			return e.OrgID, e.ID, nil
		}
	}

	matches, err := r.employees.FindByNumberAnyOrg(ctx, ref)
	if err != nil {
		return id.OrgID{}, id.EmployeeID{}, storeFailure(err)
	}
	if len(matches) == 1 {
		return matches[0].OrgID, matches[0].ID, nil
	}

	// Zero matches and ambiguous matches read the same to callers: the
	// reference did not identify one employee.
	return id.OrgID{}, id.EmployeeID{}, dErrors.Newf(dErrors.CodeNotFound, "employee not found: %s", ref)
}

// find runs one lookup, treating ErrNotFound as "keep trying".
func (r *Resolver) find(ctx context.Context, lookup func(ctx context.Context) (*models.Employee, error)) (*models.Employee, error) {
	e, err := lookup(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, storeFailure(err)
	}
	return e, nil
}

func storeFailure(err error) error {
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "employee lookup failed")
}

func parseEmployeeRef(ref string) (id.EmployeeID, bool) {
	employeeID, err := id.ParseEmployeeID(ref)
	if err != nil {
		return id.EmployeeID{}, false
	}
	return employeeID, true
}
