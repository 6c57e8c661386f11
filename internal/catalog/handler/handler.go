package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"benefits/internal/catalog/models"
	"benefits/internal/catalog/service"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/httputil"
	"benefits/pkg/platform/middleware/capability"
	"benefits/pkg/requestcontext"
)

type Service interface {
	CreateCategory(ctx context.Context, name, description string) (*models.Category, error)
	CreateType(ctx context.Context, category domain.CategoryID, name, description string, points decimal.Decimal) (*models.Type, error)
	UpdateType(ctx context.Context, id domain.TypeID, update service.TypeUpdate) (*models.Type, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	TypesByCategory(ctx context.Context, category domain.CategoryID, activeOnly bool) ([]models.Type, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the lookup endpoints and the admin catalog endpoints. The
// caller mounts it behind authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/categories", h.HandleListCategories)
	r.Get("/api/possession-types/{categoryID}", h.handleTypes(false))
	r.With(capability.Require(domain.CapViewCitizens, h.logger)).
		Get("/api/possession-types-by-category/{categoryID}", h.handleTypes(true))

	r.Group(func(r chi.Router) {
		r.Use(capability.Require(domain.CapManageCatalog, h.logger))
		r.Post("/admin/categories", h.HandleCreateCategory)
		r.Post("/admin/possession-types", h.HandleCreateType)
		r.Patch("/admin/possession-types/{id}", h.HandleUpdateType)
	})
}

type createCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (r *createCategoryRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

type createTypeRequest struct {
	CategoryID  int64  `json:"category_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PointValue  string `json:"point_value"`

	points decimal.Decimal
}

func (r *createTypeRequest) Validate() error {
	if r.CategoryID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "category_id is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	points, err := httputil.ParseDecimal("point_value", r.PointValue, httputil.Points)
	if err != nil {
		return err
	}
	r.points = points
	return nil
}

type updateTypeRequest struct {
	Description *string `json:"description"`
	PointValue  *string `json:"point_value"`
	IsActive    *bool   `json:"is_active"`

	update service.TypeUpdate
}

func (r *updateTypeRequest) Validate() error {
	if r.Description == nil && r.PointValue == nil && r.IsActive == nil {
		return dErrors.New(dErrors.CodeValidation, "nothing to update")
	}
	r.update = service.TypeUpdate{Description: r.Description, IsActive: r.IsActive}
	if r.PointValue != nil {
		points, err := httputil.ParseDecimal("point_value", *r.PointValue, httputil.Points)
		if err != nil {
			return err
		}
		r.update.PointValue = &points
	}
	return nil
}

type typesResponse struct {
	Types []models.Type `json:"types"`
}

func (h *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	categories, err := h.service.ListCategories(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list categories",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

// handleTypes serves the type lookups used while entering possessions. The
// staff variant only offers active types.
func (h *Handler) handleTypes(activeOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		category, err := domain.ParseCategoryID(chi.URLParam(r, "categoryID"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		types, err := h.service.TypesByCategory(ctx, category, activeOnly)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, typesResponse{Types: types})
	}
}

func (h *Handler) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[createCategoryRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	category, err := h.service.CreateCategory(ctx, req.Name, req.Description)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to create category",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, category)
}

func (h *Handler) HandleCreateType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[createTypeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	typ, err := h.service.CreateType(ctx, domain.CategoryID(req.CategoryID), req.Name, req.Description, req.points)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to create possession type",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, typ)
}

func (h *Handler) HandleUpdateType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := domain.ParseTypeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[updateTypeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	typ, err := h.service.UpdateType(ctx, id, req.update)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to update possession type",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, typ)
}
