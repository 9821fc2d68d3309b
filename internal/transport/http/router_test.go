package httptransport

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"vitalis/pkg/platform/httputil"
	authmw "vitalis/pkg/platform/middleware/auth"
	"vitalis/pkg/requestcontext"
	"vitalis/pkg/testutil"
)

// staticValidator accepts the tokens "patient" and "admin".
type staticValidator struct {
	userID string
}

func (v staticValidator) ValidateToken(token string) (*authmw.JWTClaims, error) {
	switch token {
	case "patient", "admin":
		return &authmw.JWTClaims{UserID: v.userID, Role: token}, nil
	default:
		return nil, errors.New("bad token")
	}
}

type latencyRecorder struct {
	routes []string
}

func (l *latencyRecorder) ObserveEndpointLatency(_, route string, _ int, _ time.Duration) {
	l.routes = append(l.routes, route)
}

func echoRoute(path string) Registrar {
	return RegistrarFunc(func(r chi.Router) {
		r.Get(path, func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()
			httputil.WriteJSON(w, http.StatusOK, map[string]string{
				"user_id": requestcontext.UserID(ctx).String(),
				"role":    string(requestcontext.Role(ctx)),
			})
		})
	})
}

func newTestRouter(latency *latencyRecorder, health func(*http.Request) error) (http.Handler, string) {
	userID := uuid.NewString()
	cfg := Config{
		AllowedOrigins: []string{"*"},
		JWTValidator:   staticValidator{userID: userID},
		Latency:        latency,
		Health:         health,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(cfg, logger, []Registrar{echoRoute("/me/ping")}, []Registrar{echoRoute("/admin/ping")}), userID
}

func authed(t *testing.T, path, token string) *http.Request {
	req := testutil.NewRequest(t, http.MethodGet, path)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestRouterAccessControl(t *testing.T) {
	router, userID := newTestRouter(&latencyRecorder{}, nil)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"user route without token", "/me/ping", "", http.StatusUnauthorized},
		{"user route with bad token", "/me/ping", "forged", http.StatusUnauthorized},
		{"user route as patient", "/me/ping", "patient", http.StatusOK},
		{"admin route as patient", "/admin/ping", "patient", http.StatusForbidden},
		{"admin route as admin", "/admin/ping", "admin", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.DoRequest(router, authed(t, tt.path, tt.token))
			testutil.AssertStatus(t, rec, tt.status)
		})
	}

	rec := testutil.DoRequest(router, authed(t, "/admin/ping", "admin"))
	resp := testutil.UnmarshalResponse[map[string]string](t, rec)
	assert.Equal(t, userID, (*resp)["user_id"])
	assert.Equal(t, "admin", (*resp)["role"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouterHealth(t *testing.T) {
	router, _ := newTestRouter(&latencyRecorder{}, nil)
	testutil.AssertStatusOK(t, testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz")))

	down, _ := newTestRouter(&latencyRecorder{}, func(*http.Request) error { return errors.New("db down") })
	testutil.AssertStatus(t, testutil.DoRequest(down, testutil.NewRequest(t, http.MethodGet, "/healthz")), http.StatusServiceUnavailable)
}

func TestRouterLatencyUsesRoutePattern(t *testing.T) {
	latency := &latencyRecorder{}
	router, _ := newTestRouter(latency, nil)
	testutil.DoRequest(router, authed(t, "/me/ping", "patient"))
	assert.Equal(t, []string{"/me/ping"}, latency.routes)
}

func TestRouterCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(&latencyRecorder{}, nil)
	req := testutil.NewRequest(t, http.MethodOptions, "/me/ping")
	req.Header.Set("Origin", "https://dashboard.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	rec := testutil.DoRequest(router, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWithScopesMiddlewareToRegistrar(t *testing.T) {
	tag := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Tagged", "yes")
			next.ServeHTTP(w, r)
		})
	}
	cfg := Config{AllowedOrigins: []string{"*"}, JWTValidator: staticValidator{userID: uuid.NewString()}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(cfg, logger,
		[]Registrar{With(echoRoute("/me/tagged"), tag), echoRoute("/me/plain")},
		nil,
	)

	rec := testutil.DoRequest(router, authed(t, "/me/tagged", "patient"))
	testutil.AssertStatusOK(t, rec)
	assert.Equal(t, "yes", rec.Header().Get("X-Tagged"))

	rec = testutil.DoRequest(router, authed(t, "/me/plain", "patient"))
	testutil.AssertStatusOK(t, rec)
	assert.Empty(t, rec.Header().Get("X-Tagged"))
}
