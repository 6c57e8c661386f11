package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"benefits/internal/reclamation/models"
	"benefits/internal/reclamation/service"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/httputil"
	"benefits/pkg/platform/middleware/capability"
	"benefits/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Reclamation, error)
	Assign(ctx context.Context, id domain.ReclamationID) (*models.Reclamation, error)
	Investigate(ctx context.Context, id domain.ReclamationID, req service.InvestigateRequest) (*service.Outcome, error)
	Close(ctx context.Context, id domain.ReclamationID) (*models.Reclamation, error)
	PayFine(ctx context.Context, id domain.FineID) (*models.Fine, error)
	Get(ctx context.Context, id domain.ReclamationID) (*service.Outcome, error)
	List(ctx context.Context, filter models.Filter) ([]models.Reclamation, error)
	ListOwn(ctx context.Context) ([]models.Reclamation, error)
	Queue(ctx context.Context, limit int) ([]models.Reclamation, error)
	Caseload(ctx context.Context) ([]models.Reclamation, error)
	ListFines(ctx context.Context, citizen domain.UserID) ([]models.Fine, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.With(capability.Require(domain.CapFileReclamation, h.logger)).Post("/citizen/possessions/{id}/reclamations", h.HandleCreate)
	r.Group(func(r chi.Router) {
		r.Use(capability.Require(domain.CapViewOwnRecords, h.logger))
		r.Get("/citizen/reclamations", h.HandleListOwn)
		r.Get("/citizen/reclamations/{id}", h.HandleGet)
		r.Get("/citizen/fines", h.HandleListOwnFines)
	})

	r.Group(func(r chi.Router) {
		r.Use(capability.Require(domain.CapInvestigate, h.logger))
		r.Get("/staff/reclamations/queue", h.HandleQueue)
		r.Get("/staff/reclamations/caseload", h.HandleCaseload)
		r.Get("/staff/reclamations/{id}", h.HandleGet)
		r.Post("/staff/reclamations/{id}/assign", h.HandleAssign)
		r.Post("/staff/reclamations/{id}/investigate", h.HandleInvestigate)
	})

	r.Group(func(r chi.Router) {
		r.Use(capability.Require(domain.CapAdministerDisputes, h.logger))
		r.Get("/admin/reclamations", h.HandleList)
		r.Post("/admin/reclamations/{id}/close", h.HandleClose)
		r.Get("/admin/fines", h.HandleListFines)
		r.Post("/admin/fines/{id}/pay", h.HandlePayFine)
	})
}

type createRequest struct {
	Reason              string `json:"reason"`
	EvidenceDescription string `json:"evidence_description"`
}

func (r *createRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

type investigateRequest struct {
	Decision   string `json:"decision"`
	Notes      string `json:"investigation_notes"`
	FineAmount string `json:"fine_amount"`

	decision models.Decision
	amount   decimal.Decimal
}

func (r *investigateRequest) Validate() error {
	d, err := models.ParseDecision(r.Decision)
	if err != nil {
		return err
	}
	r.decision = d
	if d == models.DecisionReject {
		amount, err := httputil.ParseDecimal("fine_amount", r.FineAmount, httputil.Money)
		if err != nil {
			return err
		}
		r.amount = amount
	}
	return nil
}

type listResponse struct {
	Reclamations []models.Reclamation `json:"reclamations"`
}

type finesResponse struct {
	Fines []models.Fine `json:"fines"`
}

func (h *Handler) reclamationID(w http.ResponseWriter, r *http.Request) (domain.ReclamationID, bool) {
	id, err := domain.ParseReclamationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.ReclamationID{}, false
	}
	return id, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	possession, err := domain.ParsePossessionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[createRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	out, err := h.service.Create(ctx, service.CreateRequest{
		PossessionID:        possession,
		Reason:              req.Reason,
		EvidenceDescription: req.EvidenceDescription,
	})
	if err != nil {
		h.fail(ctx, w, "failed to file reclamation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, out)
}

func (h *Handler) HandleListOwn(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListOwn(r.Context())
	if err != nil {
		h.fail(r.Context(), w, "failed to list reclamations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Reclamations: out})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reclamationID(w, r)
	if !ok {
		return
	}
	out, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleListOwnFines(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListFines(r.Context(), requestcontext.UserID(r.Context()))
	if err != nil {
		h.fail(r.Context(), w, "failed to list fines", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, finesResponse{Fines: out})
}

func (h *Handler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	out, err := h.service.Queue(r.Context(), limit)
	if err != nil {
		h.fail(r.Context(), w, "failed to load queue", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Reclamations: out})
}

func (h *Handler) HandleCaseload(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Caseload(r.Context())
	if err != nil {
		h.fail(r.Context(), w, "failed to load caseload", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Reclamations: out})
}

func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reclamationID(w, r)
	if !ok {
		return
	}
	out, err := h.service.Assign(r.Context(), id)
	if err != nil {
		h.fail(r.Context(), w, "failed to assign reclamation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleInvestigate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.reclamationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[investigateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	out, err := h.service.Investigate(ctx, id, service.InvestigateRequest{
		Decision:   req.decision,
		Notes:      req.Notes,
		FineAmount: req.amount,
	})
	if err != nil {
		h.fail(ctx, w, "failed to resolve reclamation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleList serves ?status=pending,approved&citizen_id=...
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var filter models.Filter
	q := r.URL.Query()
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := models.ParseStatus(strings.TrimSpace(part))
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if raw := q.Get("citizen_id"); raw != "" {
		citizen, err := domain.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.CitizenID = citizen
	}
	out, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(r.Context(), w, "failed to list reclamations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Reclamations: out})
}

func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reclamationID(w, r)
	if !ok {
		return
	}
	out, err := h.service.Close(r.Context(), id)
	if err != nil {
		h.fail(r.Context(), w, "failed to close reclamation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleListFines(w http.ResponseWriter, r *http.Request) {
	var citizen domain.UserID
	if raw := r.URL.Query().Get("citizen_id"); raw != "" {
		id, err := domain.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		citizen = id
	}
	out, err := h.service.ListFines(r.Context(), citizen)
	if err != nil {
		h.fail(r.Context(), w, "failed to list fines", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, finesResponse{Fines: out})
}

func (h *Handler) HandlePayFine(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseFineID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := h.service.PayFine(r.Context(), id)
	if err != nil {
		h.fail(r.Context(), w, "failed to record fine payment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
