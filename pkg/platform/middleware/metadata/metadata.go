package metadata

import (
	"context"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"vitalis/pkg/requestcontext"
)

type contextKeyClientIP struct{}

// ClientMetadata stores the caller's IP and a short user agent description on
// the context. Audit entries for exports and deletion requests include both.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), contextKeyClientIP{}, ClientIPFromRequest(r))
		ctx = requestcontext.WithClient(ctx, DescribeUserAgent(r.Header.Get("User-Agent")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientIP retrieves the client IP address from the context.
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(contextKeyClientIP{}).(string); ok {
		return ip
	}
	return ""
}

// DescribeUserAgent condenses a User-Agent header to "Browser Version / OS".
func DescribeUserAgent(header string) string {
	if header == "" {
		return ""
	}
	ua := useragent.New(header)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot: " + name
	}
	name, version := ua.Browser()
	if major, _, ok := strings.Cut(version, "."); ok {
		version = major
	}
	desc := strings.TrimSpace(name + " " + version)
	if osName := ua.OSInfo().Name; osName != "" {
		desc += " / " + osName
	}
	return desc
}

// ClientIPFromRequest extracts the client IP, preferring proxy headers.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}
	return "unknown"
}
