package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"donorlink/internal/donor/models"
	id "donorlink/pkg/domain"
	dErrors "donorlink/pkg/domain-errors"
	"donorlink/pkg/platform/httputil"
	"donorlink/pkg/requestcontext"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

// Service is the donor directory as seen by HTTP.
type Service interface {
	Register(ctx context.Context, reg models.Registration) (*models.Donor, error)
	Search(ctx context.Context, q models.Query, page models.PageRequest) ([]*models.Donor, int, error)
	SearchAvailable(ctx context.Context, q models.Query, page models.PageRequest) (*models.SearchResult, error)
	RecordContact(ctx context.Context, donorID id.DonorID, outcome models.ContactOutcome) (*models.Donor, error)
}

// Handler wires donor endpoints to the directory service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts donor routes, including the availability-biased search
// that lives under /blood-requests.
func (h *Handler) Register(r chi.Router) {
	r.Post("/donors/register", h.HandleRegister)
	r.Get("/donors/search", h.HandleSearch)
	r.Post("/donors/{id}/contact", h.HandleContact)
	r.Get("/blood-requests/search/available", h.HandleSearchAvailable)
}

// HandleRegister handles POST /donors/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	donor, err := h.service.Register(ctx, req.ToRegistration())
	if err != nil {
		h.logFailure(ctx, "donor registration failed", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, RegisterResponse{
		Message: "Donor registered successfully",
		Donor:   FromDonor(donor),
	})
}

// HandleSearch handles GET /donors/search.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q, page, err := parseSearch(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	donors, total, err := h.service.Search(ctx, q, page)
	if err != nil {
		h.logFailure(ctx, "donor search failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSearch(donors, total, page, requestcontext.Now(ctx)))
}

// HandleSearchAvailable handles GET /blood-requests/search/available.
func (h *Handler) HandleSearchAvailable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q, page, err := parseSearch(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.SearchAvailable(ctx, q, page)
	if err != nil {
		h.logFailure(ctx, "available donor search failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAvailable(res, page))
}

// HandleContact handles POST /donors/{id}/contact.
func (h *Handler) HandleContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	// An id that does not parse names no donor.
	donorID, err := id.ParseDonorID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "Donor not found"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[ContactRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	outcome := models.ContactOutcome(req.Status)
	donor, err := h.service.RecordContact(ctx, donorID, outcome)
	if err != nil {
		h.logFailure(ctx, "donor contact update failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromContact(donor, outcome))
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

func parseSearch(r *http.Request) (models.Query, models.PageRequest, error) {
	query := r.URL.Query()
	q := models.Query{
		District:   models.District(strings.TrimSpace(query.Get("district"))),
		BloodGroup: models.BloodGroupFromQuery(query.Get("bloodGroup")),
	}
	if err := q.Validate(); err != nil {
		return q, models.PageRequest{}, err
	}
	page, err := httputil.QueryInt(r, "page", 1)
	if err != nil {
		return q, models.PageRequest{}, err
	}
	limit, err := httputil.QueryInt(r, "limit", defaultSearchLimit)
	if err != nil {
		return q, models.PageRequest{}, err
	}
	return q, models.PageRequest{Page: page, Limit: min(limit, maxSearchLimit)}, nil
}
