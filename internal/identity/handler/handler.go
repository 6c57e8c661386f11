package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"benefits/internal/identity/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/httputil"
	"benefits/pkg/platform/middleware/capability"
	"benefits/pkg/requestcontext"
)

type Service interface {
	StartLogin(ctx context.Context, nationalID, phone string) (*models.LoginChallenge, error)
	CompleteLogin(ctx context.Context, accountID domain.UserID, code string) (*models.Session, error)
	Logout(ctx context.Context) error
	RegisterAccount(ctx context.Context, in models.NewAccount) (*models.Account, error)
	VerifyAccount(ctx context.Context, id domain.UserID) (*models.Account, error)
	UpdateProfile(ctx context.Context, citizen domain.UserID, update models.ProfileUpdate) (*models.Profile, error)
	GetCitizen(ctx context.Context, id domain.UserID) (*models.Citizen, error)
	Me(ctx context.Context) (*models.Citizen, error)
	ListCitizens(ctx context.Context, filter models.CitizenFilter) ([]models.Account, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the login routes, which run without a token.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/verify", h.HandleVerify)
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/logout", h.HandleLogout)
	r.Group(func(r chi.Router) {
		r.Use(capability.Require(domain.CapViewOwnRecords, h.logger))
		r.Get("/citizen/profile", h.HandleMe)
	})
	r.Group(func(r chi.Router) {
		r.Use(capability.Require(domain.CapViewCitizens, h.logger))
		r.Get("/staff/citizens", h.HandleListCitizens)
		r.Get("/staff/citizens/{id}", h.HandleGetCitizen)
	})
	r.Group(func(r chi.Router) {
		r.Use(capability.Require(domain.CapManageAccounts, h.logger))
		r.Post("/admin/accounts", h.HandleRegister)
		r.Post("/admin/accounts/{id}/verify", h.HandleVerifyAccount)
		r.Put("/admin/citizens/{id}/profile", h.HandleUpdateProfile)
	})
}

type loginRequest struct {
	NationalID string `json:"national_id"`
	Phone      string `json:"phone"`
}

func (r *loginRequest) Validate() error {
	r.NationalID = strings.TrimSpace(r.NationalID)
	r.Phone = strings.TrimSpace(r.Phone)
	if r.NationalID == "" || r.Phone == "" {
		return dErrors.New(dErrors.CodeValidation, "national_id and phone are required")
	}
	return nil
}

type verifyRequest struct {
	AccountID string `json:"account_id"`
	Code      string `json:"code"`

	accountID domain.UserID
}

func (r *verifyRequest) Validate() error {
	id, err := domain.ParseUserID(r.AccountID)
	if err != nil {
		return err
	}
	r.accountID = id
	r.Code = strings.TrimSpace(r.Code)
	if r.Code == "" {
		return dErrors.New(dErrors.CodeValidation, "code is required")
	}
	return nil
}

type registerRequest struct {
	NationalID string `json:"national_id"`
	Phone      string `json:"phone"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Role       string `json:"role"`

	role domain.Role
}

// Validate defaults the role to citizen; the service checks the rest.
func (r *registerRequest) Validate() error {
	if strings.TrimSpace(r.Role) == "" {
		r.role = domain.RoleCitizen
		return nil
	}
	role, err := domain.ParseRole(strings.TrimSpace(r.Role))
	if err != nil {
		return err
	}
	r.role = role
	return nil
}

type profileRequest struct {
	FamilySize            *int    `json:"family_size"`
	MonthlyIncome         *string `json:"monthly_income"`
	HasOtherInsurance     *bool   `json:"has_other_insurance"`
	OtherInsuranceDetails *string `json:"other_insurance_details"`

	income *decimal.Decimal
}

func (r *profileRequest) Validate() error {
	if r.FamilySize == nil && r.MonthlyIncome == nil && r.HasOtherInsurance == nil && r.OtherInsuranceDetails == nil {
		return dErrors.New(dErrors.CodeValidation, "no profile fields to update")
	}
	if r.MonthlyIncome != nil {
		income, err := httputil.ParseDecimal("monthly_income", *r.MonthlyIncome, httputil.Money)
		if err != nil {
			return err
		}
		r.income = &income
	}
	return nil
}

type citizensResponse struct {
	Citizens []models.Account `json:"citizens"`
}

const maxCitizenPage = 200

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (domain.UserID, bool) {
	id, err := domain.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.UserID{}, false
	}
	return id, true
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[loginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	challenge, err := h.service.StartLogin(ctx, req.NationalID, req.Phone)
	if err != nil {
		h.logger.WarnContext(ctx, "login refused",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, challenge)
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[verifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	session, err := h.service.CompleteLogin(ctx, req.accountID, req.Code)
	if err != nil {
		h.logger.WarnContext(ctx, "login verification failed",
			"request_id", requestID,
			"user_id", req.accountID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Logout(ctx); err != nil {
		h.logger.ErrorContext(ctx, "failed to logout",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", requestcontext.UserID(ctx).String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	me, err := h.service.Me(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, me)
}

// HandleListCitizens searches citizens by ?q= (national ID, phone or name).
func (h *Handler) HandleListCitizens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := models.CitizenFilter{Query: r.URL.Query().Get("q"), Limit: maxCitizenPage}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		filter.Limit = min(n, maxCitizenPage)
	}
	out, err := h.service.ListCitizens(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list citizens",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, citizensResponse{Citizens: out})
}

func (h *Handler) HandleGetCitizen(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	c, err := h.service.GetCitizen(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[registerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	account, err := h.service.RegisterAccount(ctx, models.NewAccount{
		NationalID: req.NationalID,
		Phone:      req.Phone,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Role:       req.role,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "failed to register account",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, account)
}

func (h *Handler) HandleVerifyAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	account, err := h.service.VerifyAccount(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[profileRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	p, err := h.service.UpdateProfile(ctx, id, models.ProfileUpdate{
		FamilySize:            req.FamilySize,
		MonthlyIncome:         req.income,
		HasOtherInsurance:     req.HasOtherInsurance,
		OtherInsuranceDetails: req.OtherInsuranceDetails,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "failed to update profile",
			"request_id", requestID,
			"user_id", id.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}
