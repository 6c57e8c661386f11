package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"benefits/internal/scoring/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/httputil"
	"benefits/pkg/platform/middleware/capability"
	"benefits/pkg/requestcontext"
)

type Service interface {
	ComputeScore(ctx context.Context, citizen domain.UserID) (decimal.Decimal, error)
	Recalculate(ctx context.Context, citizen domain.UserID, notes string) (*models.Calculation, error)
	Breakdown(ctx context.Context, citizen domain.UserID) (*models.Breakdown, error)
	History(ctx context.Context, citizen domain.UserID, limit int) ([]models.Calculation, error)
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
		r.Use(capability.Require(domain.CapViewOwnRecords, h.logger))
		r.Get("/citizen/calculator", h.HandleCalculator)
		r.Get("/citizen/calculations", h.HandleOwnHistory)
		r.Post("/api/calculate-score", h.HandleCalculateScore)
	})
	r.With(capability.Require(domain.CapRecalculateOwnScore, h.logger)).
		Post("/citizen/score/recalculate", h.HandleRecalculateOwn)

	r.With(capability.Require(domain.CapViewCitizens, h.logger)).
		Get("/staff/citizens/{id}/calculations", h.HandleCitizenHistory)
	r.With(capability.Require(domain.CapRecalculateAnyScore, h.logger)).
		Post("/staff/citizens/{id}/score/recalculate", h.HandleRecalculateCitizen)
}

type recalculateRequest struct {
	Notes string `json:"notes"`
}

func (r *recalculateRequest) Validate() error {
	r.Notes = strings.TrimSpace(r.Notes)
	if len(r.Notes) > 1000 {
		return dErrors.New(dErrors.CodeValidation, "notes must be at most 1000 characters")
	}
	return nil
}

type scoreResponse struct {
	Score decimal.Decimal `json:"score"`
}

type historyResponse struct {
	Calculations []models.Calculation `json:"calculations"`
}

func (h *Handler) HandleCalculator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, err := h.service.Breakdown(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build score breakdown",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

// HandleCalculateScore returns the live score without persisting anything.
func (h *Handler) HandleCalculateScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	score, err := h.service.ComputeScore(ctx, requestcontext.UserID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, scoreResponse{Score: score})
}

func (h *Handler) HandleRecalculateOwn(w http.ResponseWriter, r *http.Request) {
	h.recalculate(w, r, requestcontext.UserID(r.Context()))
}

func (h *Handler) HandleRecalculateCitizen(w http.ResponseWriter, r *http.Request) {
	citizen, err := domain.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.recalculate(w, r, citizen)
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request, citizen domain.UserID) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[recalculateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	calc, err := h.service.Recalculate(ctx, citizen, req.Notes)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to recalculate score",
			"request_id", requestID,
			"citizen_id", citizen.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, calc)
}

func (h *Handler) HandleOwnHistory(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, requestcontext.UserID(r.Context()))
}

func (h *Handler) HandleCitizenHistory(w http.ResponseWriter, r *http.Request) {
	citizen, err := domain.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.history(w, r, citizen)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request, citizen domain.UserID) {
	ctx := r.Context()
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	out, err := h.service.History(ctx, citizen, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, historyResponse{Calculations: out})
}
