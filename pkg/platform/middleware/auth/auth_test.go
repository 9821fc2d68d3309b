package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "vitalis/pkg/domain"
	"vitalis/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return s.claims, s.err
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	userID := uuid.New()

	var (
		gotUser id.UserID
		gotRole id.Role
	)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = requestcontext.UserID(r.Context())
		gotRole = requestcontext.Role(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid token populates context", func(t *testing.T) {
		mw := RequireAuth(stubValidator{claims: &JWTClaims{UserID: userID.String(), Role: "admin"}}, logger)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer token")
		w := httptest.NewRecorder()

		mw(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, id.UserID(userID), gotUser)
		assert.Equal(t, id.RoleAdmin, gotRole)
	})

	t.Run("unknown role defaults to patient", func(t *testing.T) {
		mw := RequireAuth(stubValidator{claims: &JWTClaims{UserID: userID.String(), Role: "superuser"}}, logger)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer token")
		mw(next).ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, id.RolePatient, gotRole)
	})

	t.Run("missing header", func(t *testing.T) {
		mw := RequireAuth(stubValidator{}, logger)
		w := httptest.NewRecorder()
		mw(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"error":"unauthorized"`)
	})

	t.Run("invalid token", func(t *testing.T) {
		mw := RequireAuth(stubValidator{err: errors.New("bad signature")}, logger)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer forged")
		w := httptest.NewRecorder()
		mw(next).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("non-uuid subject", func(t *testing.T) {
		mw := RequireAuth(stubValidator{claims: &JWTClaims{UserID: "alice"}}, logger)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer token")
		w := httptest.NewRecorder()
		mw(next).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
