package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"vitalis/pkg/platform/circuit"
	"vitalis/pkg/platform/httputil"
	"vitalis/pkg/platform/middleware/metadata"
	"vitalis/pkg/requestcontext"
)

const headerStatus = "X-RateLimit-Status"

// Middleware enforces per-caller limits. When the primary store keeps
// failing the breaker opens and the in-memory fallback takes over, so limits
// still apply per instance.
type Middleware struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
	now      func() time.Time
}

func NewMiddleware(primary Store, logger *slog.Logger) *Middleware {
	return &Middleware{
		primary:  primary,
		fallback: NewMemoryStore(),
		breaker:  circuit.New("ratelimit-store", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(3)),
		logger:   logger,
		now:      time.Now,
	}
}

// PerUser limits each authenticated user, or each client IP when there is
// no user, to limit within name's bucket. A disabled limit is a no-op.
func (m *Middleware) PerUser(name string, limit Limit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !limit.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := name + ":" + callerKey(r)

			var (
				result *Result
				err    error
			)
			if m.breaker.Allow() {
				result, err = m.primary.Allow(ctx, key, limit)
				if err != nil {
					if _, change := m.breaker.RecordFailure(); change.Opened {
						m.logger.WarnContext(ctx, "rate limit store failing, using in-memory fallback", "error", err)
					}
				} else if _, change := m.breaker.RecordSuccess(); change.Closed {
					m.logger.InfoContext(ctx, "rate limit store recovered")
				}
			}
			if result == nil {
				w.Header().Set(headerStatus, "degraded")
				result, err = m.fallback.Allow(ctx, key, limit)
			}
			if err != nil && result == nil {
				m.logger.ErrorContext(ctx, "rate limit check failed", "request_id", requestcontext.RequestID(ctx), "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
			if !result.Allowed {
				retry := result.RetryAfter(m.now())
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"request_id", requestcontext.RequestID(ctx),
					"bucket", name,
					"user_id", requestcontext.UserID(ctx),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":             "rate_limit_exceeded",
					"error_description": "Too many requests for this operation. Please try again later.",
					"retry_after":       retry,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PerUserWrites is PerUser restricted to state-changing methods.
func (m *Middleware) PerUserWrites(name string, limit Limit) func(http.Handler) http.Handler {
	limited := m.PerUser(name, limit)
	return func(next http.Handler) http.Handler {
		guarded := limited(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
			default:
				guarded.ServeHTTP(w, r)
			}
		})
	}
}

func callerKey(r *http.Request) string {
	if userID := requestcontext.UserID(r.Context()); !userID.IsNil() {
		return "user:" + userID.String()
	}
	return "ip:" + metadata.ClientIPFromRequest(r)
}
