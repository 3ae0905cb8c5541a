package metadata

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"donorlink/pkg/requestcontext"
)

// ClientMetadata captures the caller's IP address and User-Agent into the
// request context so services can stamp submissions without touching net/http.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest resolves the originating client address, preferring
// proxy headers over the socket peer.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}

// DescribeUserAgent renders a User-Agent header as "Browser on OS".
// Unknown parts fall back to "Unknown".
func DescribeUserAgent(header string) string {
	if strings.TrimSpace(header) == "" {
		return "Unknown on Unknown"
	}
	ua := useragent.New(header)
	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown"
	}
	platform := ua.OS()
	if platform == "" {
		platform = "Unknown"
	}
	return browser + " on " + platform
}
