// Package handler exposes the retention workflows to administrators over HTTP.
// Routes assume the caller already passed authentication and the admin check.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vitalis/internal/retention/models"
	id "vitalis/pkg/domain"
	dErrors "vitalis/pkg/domain-errors"
	"vitalis/pkg/platform/changefeed"
	"vitalis/pkg/platform/httputil"
	"vitalis/pkg/requestcontext"
)

type PolicyService interface {
	List(ctx context.Context) ([]*models.Policy, error)
	Update(ctx context.Context, policyID id.PolicyID, field string, value any) (*models.Policy, error)
}

type Scanner interface {
	RunScan(ctx context.Context) (*models.ScanResult, error)
}

type ReviewService interface {
	ListPending(ctx context.Context) ([]*models.Flag, error)
	Review(ctx context.Context, flagID id.FlagID, decision string, notes *string, reviewer id.UserID) (*models.ReviewOutcome, error)
}

type StatsService interface {
	ComputeStats(ctx context.Context) (*models.Stats, error)
}

// ChangeSource feeds the dashboard event stream.
type ChangeSource interface {
	Subscribe(ctx context.Context) (<-chan changefeed.Change, func())
}

type Handler struct {
	policies PolicyService
	scanner  Scanner
	reviews  ReviewService
	stats    StatsService
	changes  ChangeSource
	logger   *slog.Logger
	events   eventStream
}

type Option func(*Handler)

// WithAllowedOrigin restricts which browser origins may open the event
// stream. "*" allows any.
func WithAllowedOrigin(origin string) Option {
	return func(h *Handler) {
		h.events.allowedOrigin = origin
	}
}

func New(policies PolicyService, scanner Scanner, reviews ReviewService, stats StatsService, changes ChangeSource, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		policies: policies,
		scanner:  scanner,
		reviews:  reviews,
		stats:    stats,
		changes:  changes,
		logger:   logger,
		events:   defaultEventStream(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the retention routes under /admin/retention.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin/retention", func(r chi.Router) {
		r.Get("/policies", h.handleListPolicies)
		r.Patch("/policies/{id}", h.handleUpdatePolicy)
		r.Post("/scan", h.handleRunScan)
		r.Get("/flags", h.handleListPending)
		r.Post("/flags/{id}/review", h.handleReview)
		r.Get("/stats", h.handleStats)
		r.Get("/events", h.handleEvents)
	})
}

func (h *Handler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.policies.List(r.Context())
	if err != nil {
		h.fail(w, r, "failed to list retention policies", err)
		return
	}
	if policies == nil {
		policies = []*models.Policy{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"policies": policies})
}

func (h *Handler) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID, err := id.ParsePolicyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req UpdatePolicyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	policy, err := h.policies.Update(ctx, policyID, req.Field, req.Value)
	if err != nil {
		h.fail(w, r, "failed to update retention policy", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, policy)
}

func (h *Handler) handleRunScan(w http.ResponseWriter, r *http.Request) {
	result, err := h.scanner.RunScan(r.Context())
	if err != nil {
		h.fail(w, r, "retention scan failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toScanResponse(result))
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	flags, err := h.reviews.ListPending(r.Context())
	if err != nil {
		h.fail(w, r, "failed to list pending flags", err)
		return
	}
	if flags == nil {
		flags = []*models.Flag{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"flags": flags})
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flagID, err := id.ParseFlagID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req ReviewRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	outcome, err := h.reviews.Review(ctx, flagID, req.Decision, req.Notes, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(w, r, "failed to review retention flag", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, outcome)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.ComputeStats(r.Context())
	if err != nil {
		h.fail(w, r, "failed to compute compliance stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// fail logs server-side failures at error level and client mistakes at warn.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal || code == "" {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"code", code,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

func scanMessage(result *models.ScanResult) string {
	if result.Partial() {
		return fmt.Sprintf("Flagged %d records for review; %d policies failed", result.TotalFlagged, len(result.Failures))
	}
	return fmt.Sprintf("Successfully flagged %d records for review", result.TotalFlagged)
}
