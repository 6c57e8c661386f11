package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"benefits/internal/threshold/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/httputil"
	"benefits/pkg/platform/middleware/capability"
	"benefits/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, program domain.Program, maxScore decimal.Decimal, effective time.Time) (*models.Threshold, error)
	Deactivate(ctx context.Context, id domain.ThresholdID) (*models.Threshold, error)
	List(ctx context.Context, program domain.Program) ([]models.Threshold, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(capability.Require(domain.CapManageThresholds, h.logger))
		r.Get("/admin/thresholds", h.HandleList)
		r.Post("/admin/thresholds", h.HandleCreate)
		r.Post("/admin/thresholds/{id}/deactivate", h.HandleDeactivate)
	})
}

type createRequest struct {
	Program       string `json:"program"`
	MaxScore      string `json:"max_score"`
	EffectiveDate string `json:"effective_date"`

	program   domain.Program
	maxScore  decimal.Decimal
	effective time.Time
}

func (r *createRequest) Validate() error {
	program, err := domain.ParseProgram(strings.TrimSpace(r.Program))
	if err != nil {
		return err
	}
	maxScore, err := httputil.ParseDecimal("max_score", r.MaxScore, httputil.Points)
	if err != nil {
		return err
	}
	effective, err := time.Parse(models.DateLayout, strings.TrimSpace(r.EffectiveDate))
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "effective_date must be YYYY-MM-DD")
	}
	r.program, r.maxScore, r.effective = program, maxScore, effective
	return nil
}

type listResponse struct {
	Thresholds []models.Threshold `json:"thresholds"`
}

// HandleList serves GET /admin/thresholds?program=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var program domain.Program
	if raw := r.URL.Query().Get("program"); raw != "" {
		p, err := domain.ParseProgram(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		program = p
	}
	rows, err := h.service.List(ctx, program)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list thresholds",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Thresholds: rows})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[createRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	t, err := h.service.Create(ctx, req.program, req.maxScore, req.effective)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to create threshold",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseThresholdID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.service.Deactivate(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}
