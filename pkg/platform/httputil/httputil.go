// Package httputil holds the JSON plumbing shared by every handler: decoding
// request bodies, encoding responses, and mapping coded errors to HTTP.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	dErrors "donorlink/pkg/domain-errors"
)

// maxBodyBytes bounds request bodies; batch ledger updates are the largest payloads.
const maxBodyBytes = 1 << 20

var diagnosticMode atomic.Bool

// SetDiagnosticMode controls whether internal error details are written to clients.
func SetDiagnosticMode(enabled bool) {
	diagnosticMode.Store(enabled)
}

// Validatable is implemented by request bodies that check themselves after decoding.
type Validatable interface {
	Validate() error
}

// Normalizable is implemented by request bodies that trim or default fields before validation.
type Normalizable interface {
	Normalize()
}

// ErrorResponse is the error envelope for every non-2xx response.
type ErrorResponse struct {
	Error            string   `json:"error"`
	ErrorDescription string   `json:"error_description,omitempty"`
	Errors           []string `json:"errors,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a coded error onto an HTTP status and error envelope.
// Internal errors never leak their message unless diagnostic mode is on.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		code = dErrors.CodeUnavailable
	}
	status := StatusFor(code)

	resp := ErrorResponse{Error: string(code)}
	var de *dErrors.Error
	if errors.As(err, &de) {
		resp.Errors = de.Details
	}
	switch {
	case status < http.StatusInternalServerError:
		if de != nil {
			resp.ErrorDescription = de.Message
		}
	case diagnosticMode.Load():
		resp.ErrorDescription = err.Error()
	case code == dErrors.CodeUnavailable:
		resp.ErrorDescription = "service temporarily unavailable, retry later"
	}
	WriteJSON(w, status, resp)
}

// StatusFor returns the HTTP status used for an error code.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeConflict:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DecodeAndPrepare decodes a JSON body into T, normalizes and validates it.
// On failure it writes the error response itself and returns false.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	return decodeAndPrepare[T](w, r, logger, ctx, requestID, false)
}

// DecodeOptionalAndPrepare is DecodeAndPrepare for routes whose body may be
// omitted. An empty body, chunked or not, prepares the zero T.
func DecodeOptionalAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	return decodeAndPrepare[T](w, r, logger, ctx, requestID, true)
}

func decodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string, optional bool) (*T, bool) {
	var req T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !(optional && errors.Is(err, io.EOF)) {
		logger.WarnContext(ctx, "invalid request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	if n, ok := any(&req).(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := any(&req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			logger.WarnContext(ctx, "request validation failed",
				"request_id", requestID,
				"error", err,
			)
			WriteError(w, err)
			return nil, false
		}
	}
	return &req, true
}

// QueryInt reads a positive integer query parameter, falling back to def when
// the parameter is absent. Malformed or non-positive values are a bad request.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be a positive integer")
	}
	return v, nil
}
