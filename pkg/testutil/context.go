package testutil

import (
	"net/http"

	id "vitalis/pkg/domain"
	"vitalis/pkg/requestcontext"
)

// WithUserID adds an authenticated patient to the request context, as the auth
// middleware would. Invalid ids are ignored so tests can exercise the
// unauthenticated path.
func WithUserID(req *http.Request, userID string) *http.Request {
	return WithActor(req, userID, id.RolePatient)
}

// WithAdmin adds an authenticated administrator to the request context.
func WithAdmin(req *http.Request, userID string) *http.Request {
	return WithActor(req, userID, id.RoleAdmin)
}

// WithActor adds a user id and role to the request context.
func WithActor(req *http.Request, userID string, role id.Role) *http.Request {
	parsed, err := id.ParseUserID(userID)
	if err != nil {
		return req
	}
	ctx := requestcontext.WithUserID(req.Context(), parsed)
	ctx = requestcontext.WithRole(ctx, role)
	return req.WithContext(ctx)
}
