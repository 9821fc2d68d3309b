// Package handler exposes deletion requests over HTTP: the user routes under
// /me and the review queue under /admin.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vitalis/internal/deletion/models"
	id "vitalis/pkg/domain"
	dErrors "vitalis/pkg/domain-errors"
	"vitalis/pkg/platform/httputil"
	"vitalis/pkg/requestcontext"
)

type Service interface {
	Submit(ctx context.Context, userID id.UserID, requestType string, reason *string) (*models.Request, error)
	Review(ctx context.Context, requestID id.DeletionRequestID, decision string, adminNotes *string) (*models.Request, error)
	Complete(ctx context.Context, requestID id.DeletionRequestID) (*models.Request, error)
	ListForUser(ctx context.Context, userID id.UserID) ([]*models.Request, error)
	ListPending(ctx context.Context) ([]*models.Request, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterUser mounts the routes any authenticated user may call.
func (h *Handler) RegisterUser(r chi.Router) {
	r.Post("/me/deletion-requests", h.handleSubmit)
	r.Get("/me/deletion-requests", h.handleListMine)
}

// RegisterAdmin mounts the review queue. The caller is expected to have
// applied the admin check already.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Route("/admin/deletion-requests", func(r chi.Router) {
		r.Get("/", h.handleListPending)
		r.Post("/{id}/review", h.handleReview)
		r.Post("/{id}/complete", h.handleComplete)
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SubmitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	created, err := h.service.Submit(ctx, requestcontext.UserID(ctx), req.RequestType, req.Reason)
	if err != nil {
		h.fail(w, r, "failed to submit deletion request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqs, err := h.service.ListForUser(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(w, r, "failed to list deletion requests", err)
		return
	}
	writeList(w, reqs)
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.service.ListPending(r.Context())
	if err != nil {
		h.fail(w, r, "failed to list pending deletion requests", err)
		return
	}
	writeList(w, reqs)
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseDeletionRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req ReviewRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	reviewed, err := h.service.Review(r.Context(), requestID, req.Decision, req.AdminNotes)
	if err != nil {
		h.fail(w, r, "failed to review deletion request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reviewed)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseDeletionRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	completed, err := h.service.Complete(r.Context(), requestID)
	if err != nil {
		h.fail(w, r, "failed to complete deletion request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, completed)
}

func writeList(w http.ResponseWriter, reqs []*models.Request) {
	if reqs == nil {
		reqs = []*models.Request{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	if code := dErrors.CodeOf(err); code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "code", code)
	}
	httputil.WriteError(w, err)
}
