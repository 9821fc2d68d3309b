package admin

import (
	"log/slog"
	"net/http"

	dErrors "vitalis/pkg/domain-errors"
	"vitalis/pkg/platform/httputil"
	"vitalis/pkg/requestcontext"
)

// RequireAdmin rejects callers whose role is not admin. It must run after
// auth.RequireAuth.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !requestcontext.Role(ctx).IsAdmin() {
				logger.WarnContext(ctx, "admin route denied",
					"request_id", requestcontext.RequestID(ctx),
					"user_id", requestcontext.UserID(ctx).String(),
					"role", requestcontext.Role(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
