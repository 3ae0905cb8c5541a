package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	donormodels "donorlink/internal/donor/models"
	"donorlink/internal/request/models"
	"donorlink/internal/request/service"
	id "donorlink/pkg/domain"
	dErrors "donorlink/pkg/domain-errors"
	"donorlink/pkg/platform/httputil"
	"donorlink/pkg/requestcontext"
)

// Service is the request engine as seen by HTTP.
type Service interface {
	Create(ctx context.Context, sub models.Submission) (*service.PageResult, error)
	GetPage(ctx context.Context, requestID id.RequestID, pageNum int) (*service.PageResult, error)
	UpdateStatus(ctx context.Context, requestID id.RequestID, change service.StatusChange) error
	UpdateStatusBatch(ctx context.Context, requestID id.RequestID, changes []service.StatusChange) (int, error)
	Complete(ctx context.Context, requestID id.RequestID, status models.Status, notes string) (*models.BloodRequest, error)
	Get(ctx context.Context, requestID id.RequestID) (*service.Detail, error)
	List(ctx context.Context, filter models.ListFilter, page int) (*service.ListResult, error)
	LatestByPhone(ctx context.Context, phone string) (*models.BloodRequest, error)
}

// Handler wires blood request endpoints to the request service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts blood request routes. The available-donor search under the
// same prefix belongs to the donor handler and must be mounted alongside.
func (h *Handler) Register(r chi.Router) {
	r.Post("/blood-requests/create", h.HandleCreate)
	r.Get("/blood-requests", h.HandleList)
	r.Get("/blood-requests/phone/{phoneNumber}", h.HandleLatestByPhone)
	r.Get("/blood-requests/{requestId}", h.HandleGet)
	r.Get("/blood-requests/{requestId}/donors/{page}", h.HandleGetPage)
	r.Post("/blood-requests/{requestId}/update-donor-status", h.HandleUpdateStatus)
	r.Post("/blood-requests/{requestId}/batch-update-status", h.HandleBatchUpdate)
	r.Post("/blood-requests/{requestId}/complete", h.HandleComplete)
}

// HandleCreate handles POST /blood-requests/create.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.Create(ctx, req.ToSubmission())
	if err != nil {
		h.logFailure(ctx, "blood request creation failed", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "blood request created",
		"request_id", requestID,
		"blood_request_id", res.Request.ID.String(),
		"request_number", res.Request.RequestNumber,
		"matched", len(res.Request.Contacts),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromCreate(res))
}

// HandleGetPage handles GET /blood-requests/{requestId}/donors/{page}.
func (h *Handler) HandleGetPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reqID, err := id.ParseRequestID(chi.URLParam(r, "requestId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := pathPage(chi.URLParam(r, "page"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.GetPage(ctx, reqID, page)
	if err != nil {
		h.logFailure(ctx, "blood request page fetch failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPage(res))
}

// HandleUpdateStatus handles POST /blood-requests/{requestId}/update-donor-status.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	reqID, err := id.ParseRequestID(chi.URLParam(r, "requestId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[StatusUpdateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.UpdateStatus(ctx, reqID, req.ToChange()); err != nil {
		h.logFailure(ctx, "donor status update failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Donor status updated successfully"})
}

// HandleBatchUpdate handles POST /blood-requests/{requestId}/batch-update-status.
func (h *Handler) HandleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	reqID, err := id.ParseRequestID(chi.URLParam(r, "requestId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[BatchUpdateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	n, err := h.service.UpdateStatusBatch(ctx, reqID, req.ToChanges())
	if err != nil {
		h.logFailure(ctx, "batch status update failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BatchResponse{
		Message:      "Batch update completed successfully",
		UpdatedCount: n,
	})
}

// HandleComplete handles POST /blood-requests/{requestId}/complete. The body
// is optional.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	reqID, err := id.ParseRequestID(chi.URLParam(r, "requestId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeOptionalAndPrepare[CompleteRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	completed, err := h.service.Complete(ctx, reqID, models.Status(req.Status), req.Notes)
	if err != nil {
		h.logFailure(ctx, "blood request completion failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromComplete(completed))
}

// HandleGet handles GET /blood-requests/{requestId}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reqID, err := id.ParseRequestID(chi.URLParam(r, "requestId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	detail, err := h.service.Get(ctx, reqID)
	if err != nil {
		h.logFailure(ctx, "blood request fetch failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDetail(detail))
}

// HandleList handles GET /blood-requests.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := models.ListFilter{
		Status:     models.Status(strings.TrimSpace(query.Get("status"))),
		District:   donormodels.District(strings.TrimSpace(query.Get("district"))),
		BloodGroup: donormodels.BloodGroupFromQuery(query.Get("bloodGroup")),
	}
	page, err := httputil.QueryInt(r, "page", 1)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.List(ctx, filter, page)
	if err != nil {
		h.logFailure(ctx, "blood request listing failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromList(res))
}

// HandleLatestByPhone handles GET /blood-requests/phone/{phoneNumber}.
func (h *Handler) HandleLatestByPhone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	phone := strings.TrimSpace(chi.URLParam(r, "phoneNumber"))
	if phone == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "phone number is required"))
		return
	}
	req, err := h.service.LatestByPhone(ctx, phone)
	if err != nil {
		h.logFailure(ctx, "blood request phone lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSummary(req))
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

func pathPage(raw string) (int, error) {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "page must be a positive integer")
	}
	return page, nil
}
