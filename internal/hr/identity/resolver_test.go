package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dossier/internal/hr/models"
	"dossier/internal/hr/store/memory"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
)

type ResolverSuite struct {
	suite.Suite
	store    *memory.Store
	resolver *Resolver
	ctx      context.Context
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.store = memory.New()
	s.resolver = NewResolver(s.store)
	s.ctx = context.Background()
}

func (s *ResolverSuite) seed(org id.OrgID, number string) *models.Employee {
	e := &models.Employee{
		ID:             id.EmployeeID(uuid.New()),
		OrgID:          org,
		EmployeeNumber: number,
		NationalID:     uuid.NewString(),
		IsActive:       true,
	}
	s.Require().NoError(s.store.Insert(s.ctx, e))
	return e
}

func (s *ResolverSuite) TestResolutionOrder() {
	org := id.OrgID(uuid.New())

	s.Run("internal id within org", func() {
		e := s.seed(org, "1001")
		gotOrg, gotID, err := s.resolver.Resolve(s.ctx, org, e.ID.String())
		s.Require().NoError(err)
		s.Equal(org, gotOrg)
		s.Equal(e.ID, gotID)
	})

	s.Run("business number within org", func() {
		e := s.seed(org, "1002")
		gotOrg, gotID, err := s.resolver.Resolve(s.ctx, org, "1002")
		s.Require().NoError(err)
		s.Equal(org, gotOrg)
		s.Equal(e.ID, gotID)
	})

	s.Run("internal id adopts the employee's actual org", func() {
		otherOrg := id.OrgID(uuid.New())
		e := s.seed(otherOrg, "1003")

		gotOrg, gotID, err := s.resolver.Resolve(s.ctx, org, e.ID.String())
		s.Require().NoError(err)
		s.Equal(otherOrg, gotOrg, "resolution must adopt the owning org")
		s.Equal(e.ID, gotID)
	})

	s.Run("globally unique business number adopts its org", func() {
		otherOrg := id.OrgID(uuid.New())
		e := s.seed(otherOrg, "9001")

		gotOrg, gotID, err := s.resolver.Resolve(s.ctx, org, "9001")
		s.Require().NoError(err)
		s.Equal(otherOrg, gotOrg)
		s.Equal(e.ID, gotID)
	})
}

func (s *ResolverSuite) TestFailure() {
	org := id.OrgID(uuid.New())

	s.Run("unknown reference", func() {
		_, _, err := s.resolver.Resolve(s.ctx, org, "no-such-employee")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("empty reference", func() {
		_, _, err := s.resolver.Resolve(s.ctx, org, "  ")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("business number ambiguous across orgs", func() {
		s.seed(id.OrgID(uuid.New()), "7777")
		s.seed(id.OrgID(uuid.New()), "7777")

		_, _, err := s.resolver.Resolve(s.ctx, org, "7777")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound),
			"ambiguity must surface as not found, never a silent pick")
	})

	s.Run("org-scoped match beats global ambiguity", func() {
		e := s.seed(org, "8888")
		s.seed(id.OrgID(uuid.New()), "8888")

		gotOrg, gotID, err := s.resolver.Resolve(s.ctx, org, "8888")
		s.Require().NoError(err)
		s.Equal(org, gotOrg)
		s.Equal(e.ID, gotID)
	})
}
