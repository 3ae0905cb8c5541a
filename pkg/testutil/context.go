package testutil

import (
	"context"
	"net/http"
	"time"

	"donorlink/pkg/requestcontext"
)

// FixedTime is the clock every service test pins requests to.
var FixedTime = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

// Context returns a background context pinned to at and carrying a request ID,
// the way the middleware chain would prepare it.
func Context(at time.Time) context.Context {
	ctx := requestcontext.WithTime(context.Background(), at)
	return requestcontext.WithRequestID(ctx, "test-request")
}

// WithClient attaches caller metadata to a request as the metadata middleware would.
func WithClient(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}
