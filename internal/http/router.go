package httpapi

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"donorlink/internal/platform/metrics"
	"donorlink/pkg/platform/httputil"
	"donorlink/pkg/platform/middleware/metadata"
	"donorlink/pkg/platform/middleware/request"
	"donorlink/pkg/platform/middleware/requesttime"
)

// healthTimeout bounds a single dependency ping.
const healthTimeout = 2 * time.Second

// Registrar mounts a handler's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck pings one backend.
type HealthCheck func(ctx context.Context) error

// Options configures the router.
type Options struct {
	Logger         *slog.Logger
	RequestTimeout time.Duration
	// Checks are reported by /health, keyed by backend name.
	Checks map[string]HealthCheck
}

// NewRouter wires the middleware chain, operational endpoints and every
// domain handler.
func NewRouter(opts Options, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(opts.Logger))
	r.Use(request.Recovery(opts.Logger))

	r.Get("/health", healthHandler(opts.Checks))
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(request.Timeout(opts.RequestTimeout))
		}
		for _, h := range handlers {
			h.Register(r)
		}
	})
	return r
}

// HealthResponse reports overall status and one entry per backend.
type HealthResponse struct {
	Status   string            `json:"status"`
	Backends map[string]string `json:"backends,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := slices.Sorted(maps.Keys(checks))
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}
		status := http.StatusOK
		if len(names) > 0 {
			resp.Backends = make(map[string]string, len(names))
		}
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			err := checks[name](ctx)
			cancel()
			if err != nil {
				resp.Backends[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Backends[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
