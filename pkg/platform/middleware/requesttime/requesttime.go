// Package requesttime pins one "now" per request so flags, reviews and audit
// entries written by the same request share a timestamp.
package requesttime

import (
	"net/http"
	"time"

	"vitalis/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
