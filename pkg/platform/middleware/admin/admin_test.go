package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	id "vitalis/pkg/domain"
	"vitalis/pkg/requestcontext"
)

func TestRequireAdmin(t *testing.T) {
	mw := RequireAdmin(slog.New(slog.NewTextHandler(io.Discard, nil)))
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for role, want := range map[id.Role]int{
		id.RoleAdmin:     http.StatusOK,
		id.RoleClinician: http.StatusForbidden,
		id.RolePatient:   http.StatusForbidden,
		"":               http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin/retention/stats", nil)
		req = req.WithContext(requestcontext.WithRole(req.Context(), role))
		w := httptest.NewRecorder()
		mw(next).ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, "role %q", role)
	}
}
