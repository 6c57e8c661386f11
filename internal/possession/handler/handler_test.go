package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"benefits/internal/possession/handler/mocks"
	"benefits/internal/possession/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/possession-mocks.go -package=mocks Service
type PossessionHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestPossessionHandlerSuite(t *testing.T) {
	suite.Run(t, new(PossessionHandlerSuite))
}

func (s *PossessionHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *PossessionHandlerSuite) TestAdd() {
	citizen := domain.UserID(uuid.New())
	path := "/staff/citizens/" + citizen.String() + "/possessions"

	s.Run("decodes details", func() {
		want := models.Details{
			TypeID:          4,
			Description:     "flat in Rabat",
			AcquisitionDate: time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
			EstimatedValue:  decimal.RequireFromString("450000.00"),
		}
		s.service.EXPECT().Add(gomock.Any(), citizen, want).
			Return(&models.Possession{ID: domain.PossessionID(uuid.New()), CitizenID: citizen, Status: models.StatusActive}, nil)

		req := testutil.AsRole(testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{
			"type_id": 4, "description": "flat in Rabat", "acquisition_date": "2020-02-01", "estimated_value": "450000.00",
		}), domain.RoleDataEntry)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		testutil.AssertJSONContains(s.T(), rr, "status", "active")
	})

	s.Run("investigators cannot add", func() {
		req := testutil.AsRole(testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{
			"type_id": 4, "acquisition_date": "2020-02-01", "estimated_value": "1",
		}), domain.RoleInvestigator)
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusForbidden)
	})

	s.Run("bad date", func() {
		req := testutil.AsRole(testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{
			"type_id": 4, "acquisition_date": "yesterday", "estimated_value": "1",
		}), domain.RoleAdmin)
		testutil.AssertStatusAndError(s.T(), testutil.DoRequest(s.router, req), http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("estimated value must fit the money column", func() {
		for _, value := range []string{"1e20000000", "1e15", "12345678901.00", "1.005"} {
			req := testutil.AsRole(testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{
				"type_id": 4, "acquisition_date": "2020-02-01", "estimated_value": value,
			}), domain.RoleAdmin)
			testutil.AssertStatusAndError(s.T(), testutil.DoRequest(s.router, req), http.StatusBadRequest, string(dErrors.CodeValidation))
		}
	})

	s.Run("invariant violations are unprocessable", func() {
		s.service.EXPECT().Add(gomock.Any(), citizen, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInvariantViolation, "acquisition date cannot be in the future"))
		req := testutil.AsRole(testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{
			"type_id": 4, "acquisition_date": "2099-01-01", "estimated_value": "1",
		}), domain.RoleAdmin)
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusUnprocessableEntity)
	})
}

func (s *PossessionHandlerSuite) TestListOwn() {
	citizen := domain.UserID(uuid.New())
	s.service.EXPECT().
		ListByCitizen(gomock.Any(), citizen, models.Filter{Statuses: []models.Status{models.StatusActive}}).
		Return([]models.Possession{}, nil)

	req := testutil.AsUser(testutil.NewRequest(s.T(), http.MethodGet, "/citizen/possessions?status=active"), citizen, domain.RoleCitizen)
	testutil.AssertStatusOK(s.T(), testutil.DoRequest(s.router, req))
}

func (s *PossessionHandlerSuite) TestDelete() {
	id := domain.PossessionID(uuid.New())
	s.service.EXPECT().Delete(gomock.Any(), id).Return(dErrors.New(dErrors.CodeConflict, "possession has an open reclamation"))

	req := testutil.AsRole(testutil.NewRequest(s.T(), http.MethodDelete, "/staff/possessions/"+id.String()), domain.RoleDataEntry)
	testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusConflict)
}
