package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"benefits/internal/application/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/httputil"
	"benefits/pkg/platform/middleware/capability"
	"benefits/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, program domain.Program, submit bool) (*models.Application, error)
	SubmitDraft(ctx context.Context, id domain.ApplicationID) (*models.Application, error)
	Review(ctx context.Context, id domain.ApplicationID, decision models.Decision, notes string) (*models.Application, error)
	Get(ctx context.Context, id domain.ApplicationID) (*models.Application, error)
	List(ctx context.Context, filter models.Filter) ([]models.Application, error)
	ListOwn(ctx context.Context) ([]models.Application, error)
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
		r.Use(capability.Require(domain.CapApply, h.logger))
		r.Post("/citizen/applications/{program}", h.HandleCreate)
		r.Post("/citizen/applications/{id}/submit", h.HandleSubmit)
	})
	r.Group(func(r chi.Router) {
		r.Use(capability.Require(domain.CapViewOwnRecords, h.logger))
		r.Get("/citizen/applications", h.HandleListOwn)
		r.Get("/citizen/applications/{id}", h.HandleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(capability.Require(domain.CapReviewApplications, h.logger))
		r.Get("/staff/applications", h.HandleList)
		r.Get("/staff/applications/{id}", h.HandleGet)
		r.Post("/staff/applications/{id}/review", h.HandleReview)
	})
}

const (
	actionDraft  = "draft"
	actionSubmit = "submit"
)

// createRequest picks between saving a draft and submitting. An empty
// action submits.
type createRequest struct {
	Action string `json:"action"`

	submit bool
}

func (r *createRequest) Validate() error {
	switch strings.TrimSpace(r.Action) {
	case "", actionSubmit:
		r.submit = true
	case actionDraft:
		r.submit = false
	default:
		return dErrors.New(dErrors.CodeValidation, "action must be draft or submit")
	}
	return nil
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes"`

	decision models.Decision
}

func (r *reviewRequest) Validate() error {
	d, err := models.ParseDecision(strings.TrimSpace(r.Decision))
	if err != nil {
		return err
	}
	r.decision = d
	return nil
}

type listResponse struct {
	Applications []models.Application `json:"applications"`
}

func (h *Handler) applicationID(w http.ResponseWriter, r *http.Request) (domain.ApplicationID, bool) {
	id, err := domain.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.ApplicationID{}, false
	}
	return id, true
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	program, err := domain.ParseProgram(chi.URLParam(r, "program"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[createRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	a, err := h.service.Create(ctx, program, req.submit)
	if err != nil {
		h.logger.WarnContext(ctx, "application refused",
			"request_id", requestID,
			"program", string(program),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	a, err := h.service.SubmitDraft(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) HandleListOwn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out, err := h.service.ListOwn(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list applications",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Applications: out})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	a, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

// HandleList serves the review queue. Without ?status= it lists submitted
// applications; ?program= narrows to one program.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	filter := models.Filter{Statuses: []models.Status{models.StatusSubmitted}}
	if raw := q.Get("status"); raw != "" {
		filter.Statuses = nil
		for _, part := range strings.Split(raw, ",") {
			st, err := models.ParseStatus(strings.TrimSpace(part))
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if raw := q.Get("program"); raw != "" {
		program, err := domain.ParseProgram(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.Program = program
	}
	out, err := h.service.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list applications",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Applications: out})
}

func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[reviewRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	a, err := h.service.Review(ctx, id, req.decision, req.Notes)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to review application",
			"request_id", requestID,
			"application_id", id.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}
