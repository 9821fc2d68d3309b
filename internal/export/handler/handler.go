// Package handler serves the self-service export download.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"vitalis/internal/export"
	id "vitalis/pkg/domain"
	dErrors "vitalis/pkg/domain-errors"
	"vitalis/pkg/platform/httputil"
	"vitalis/pkg/requestcontext"
)

type Service interface {
	ExportUser(ctx context.Context, userID id.UserID, format string) (*export.Export, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/me/export", h.handleExport)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exp, err := h.service.ExportUser(ctx, requestcontext.UserID(ctx), r.URL.Query().Get("format"))
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "export failed", "request_id", requestcontext.RequestID(ctx), "error", err)
		}
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", exp.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+exp.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(exp.Body)))
	w.Header().Set("X-Content-Checksum", "blake2b-256="+exp.Checksum)
	w.Header().Set("X-Export-Complete", strconv.FormatBool(exp.Complete))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(exp.Body); err != nil {
		h.logger.WarnContext(ctx, "export download interrupted", "request_id", requestcontext.RequestID(ctx), "error", err)
	}
}
