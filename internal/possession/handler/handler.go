package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"benefits/internal/possession/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/httputil"
	"benefits/pkg/platform/middleware/capability"
	"benefits/pkg/requestcontext"
)

type Service interface {
	Add(ctx context.Context, citizen domain.UserID, details models.Details) (*models.Possession, error)
	Edit(ctx context.Context, id domain.PossessionID, details models.Details) (*models.Possession, error)
	SetStatus(ctx context.Context, id domain.PossessionID, status models.Status) (*models.Possession, error)
	Delete(ctx context.Context, id domain.PossessionID) error
	ListByCitizen(ctx context.Context, citizen domain.UserID, filter models.Filter) ([]models.Possession, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.With(capability.Require(domain.CapViewOwnRecords, h.logger)).Get("/citizen/possessions", h.HandleListOwn)
	r.With(capability.Require(domain.CapViewCitizens, h.logger)).Get("/staff/citizens/{id}/possessions", h.HandleListForCitizen)

	r.Group(func(r chi.Router) {
		r.Use(capability.Require(domain.CapManagePossessions, h.logger))
		r.Post("/staff/citizens/{id}/possessions", h.HandleAdd)
		r.Put("/staff/possessions/{id}", h.HandleEdit)
		r.Put("/staff/possessions/{id}/status", h.HandleSetStatus)
		r.Delete("/staff/possessions/{id}", h.HandleDelete)
	})
}

type detailsRequest struct {
	TypeID          int64  `json:"type_id"`
	Description     string `json:"description"`
	AcquisitionDate string `json:"acquisition_date"`
	EstimatedValue  string `json:"estimated_value"`

	details models.Details
}

func (r *detailsRequest) Validate() error {
	if r.TypeID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "type_id is required")
	}
	acquired, err := time.Parse("2006-01-02", strings.TrimSpace(r.AcquisitionDate))
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "acquisition_date must be YYYY-MM-DD")
	}
	value, err := httputil.ParseDecimal("estimated_value", r.EstimatedValue, httputil.Money)
	if err != nil {
		return err
	}
	r.details = models.Details{
		TypeID:          domain.TypeID(r.TypeID),
		Description:     r.Description,
		AcquisitionDate: acquired,
		EstimatedValue:  value,
	}
	return nil
}

type statusRequest struct {
	Status string `json:"status"`

	status models.Status
}

func (r *statusRequest) Validate() error {
	status, err := models.ParseStatus(strings.TrimSpace(r.Status))
	if err != nil {
		return err
	}
	r.status = status
	return nil
}

type listResponse struct {
	Possessions []models.Possession `json:"possessions"`
}

func (h *Handler) HandleListOwn(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, requestcontext.UserID(r.Context()))
}

func (h *Handler) HandleListForCitizen(w http.ResponseWriter, r *http.Request) {
	citizen, err := domain.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.list(w, r, citizen)
}

// list serves ?status=active,removed filters.
func (h *Handler) list(w http.ResponseWriter, r *http.Request, citizen domain.UserID) {
	ctx := r.Context()
	var filter models.Filter
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := models.ParseStatus(strings.TrimSpace(part))
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	out, err := h.service.ListByCitizen(ctx, citizen, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list possessions",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Possessions: out})
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	citizen, err := domain.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[detailsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	p, err := h.service.Add(ctx, citizen, req.details)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to add possession",
			"request_id", requestID,
			"citizen_id", citizen.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := domain.ParsePossessionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[detailsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	p, err := h.service.Edit(ctx, id, req.details)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := domain.ParsePossessionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[statusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	p, err := h.service.SetStatus(ctx, id, req.status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParsePossessionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(ctx, id); err != nil {
		h.logger.WarnContext(ctx, "failed to delete possession",
			"request_id", requestcontext.RequestID(ctx),
			"possession_id", id.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
