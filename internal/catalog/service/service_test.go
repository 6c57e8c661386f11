package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	auditmodels "benefits/internal/audit/models"
	auditservice "benefits/internal/audit/service"
	auditstore "benefits/internal/audit/store"
	"benefits/internal/catalog/store"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/tx"
)

type CatalogSuite struct {
	suite.Suite
	audit   *auditstore.InMemory
	service *Service
	ctx     context.Context
}

func TestCatalogSuite(t *testing.T) {
	suite.Run(t, new(CatalogSuite))
}

func (s *CatalogSuite) SetupTest() {
	s.audit = auditstore.NewInMemory()
	s.service = New(store.NewInMemory(), tx.NewMemory(), auditservice.New(s.audit))
	s.ctx = context.Background()
}

func (s *CatalogSuite) TestCreateCategory() {
	s.Run("records category_created", func() {
		c, err := s.service.CreateCategory(s.ctx, "Vehicles", "cars and bikes")
		s.Require().NoError(err)
		s.NotZero(c.ID)

		entries, err := s.audit.List(s.ctx, auditmodels.Filter{Action: auditmodels.ActionCategoryCreated})
		s.Require().NoError(err)
		s.Len(entries, 1)
	})

	s.Run("duplicate name is a conflict", func() {
		_, err := s.service.CreateCategory(s.ctx, "Vehicles", "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *CatalogSuite) TestCreateType() {
	c, err := s.service.CreateCategory(s.ctx, "Real estate", "")
	s.Require().NoError(err)

	s.Run("unknown category is not found", func() {
		_, err := s.service.CreateType(s.ctx, c.ID+100, "Flat", "", decimal.RequireFromString("0.30"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("invalid point value writes nothing", func() {
		before, _ := s.audit.Count(s.ctx)
		_, err := s.service.CreateType(s.ctx, c.ID, "Flat", "", decimal.RequireFromString("-1"))
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		after, _ := s.audit.Count(s.ctx)
		s.Equal(before, after)
	})

	s.Run("lists active types of a category", func() {
		typ, err := s.service.CreateType(s.ctx, c.ID, "Flat", "", decimal.RequireFromString("0.30"))
		s.Require().NoError(err)

		types, err := s.service.TypesByCategory(s.ctx, c.ID, true)
		s.Require().NoError(err)
		s.Require().Len(types, 1)
		s.Equal(typ.ID, types[0].ID)
		s.True(decimal.RequireFromString("0.3").Equal(types[0].PointValue))
	})

	s.Run("unknown category listing is not found", func() {
		_, err := s.service.TypesByCategory(s.ctx, c.ID+100, false)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *CatalogSuite) TestUpdateType() {
	c, err := s.service.CreateCategory(s.ctx, "Electronics", "")
	s.Require().NoError(err)
	typ, err := s.service.CreateType(s.ctx, c.ID, "Television", "", decimal.RequireFromString("0.02"))
	s.Require().NoError(err)

	s.Run("changes point value and deactivates", func() {
		points := decimal.RequireFromString("0.05")
		inactive := false
		updated, err := s.service.UpdateType(s.ctx, typ.ID, TypeUpdate{PointValue: &points, IsActive: &inactive})
		s.Require().NoError(err)
		s.True(points.Equal(updated.PointValue))
		s.False(updated.IsActive)

		active, err := s.service.TypesByCategory(s.ctx, c.ID, true)
		s.Require().NoError(err)
		s.Empty(active)

		entries, err := s.audit.List(s.ctx, auditmodels.Filter{Action: auditmodels.ActionPossessionTypeUpdated})
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal("0.02", entries[0].Metadata["previous_point_value"])
	})

	s.Run("unknown type", func() {
		_, err := s.service.UpdateType(s.ctx, typ.ID+100, TypeUpdate{})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
