// Package audit serves the read side of the audit trail to administrators.
package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	id "vitalis/pkg/domain"
	dErrors "vitalis/pkg/domain-errors"
	"vitalis/pkg/platform/audit"
	"vitalis/pkg/platform/httputil"
	"vitalis/pkg/requestcontext"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

type Lister interface {
	List(ctx context.Context, filter audit.ListFilter) ([]audit.Entry, error)
}

type Handler struct {
	trail  Lister
	logger *slog.Logger
}

func NewHandler(trail Lister, logger *slog.Logger) *Handler {
	return &Handler{trail: trail, logger: logger}
}

// Register mounts GET /admin/audit-logs. Callers apply the admin check.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/audit-logs", h.handleList)
}

type entryResponse struct {
	ID           string         `json:"id"`
	ActorID      *string        `json:"actor_id"`
	ActorRole    string         `json:"actor_role"`
	Action       string         `json:"action"`
	TargetEntity string         `json:"target_entity"`
	TargetID     *string        `json:"target_id"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    string         `json:"created_at"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.trail.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit trail",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit trail"))
		return
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func parseFilter(r *http.Request) (audit.ListFilter, error) {
	q := r.URL.Query()
	filter := audit.ListFilter{
		Action:       audit.Action(q.Get("action")),
		TargetEntity: q.Get("target_entity"),
		TargetID:     q.Get("target_id"),
		Limit:        defaultLimit,
	}
	if filter.Action != "" && !filter.Action.IsKnown() {
		return filter, dErrors.New(dErrors.CodeValidation, "unknown audit action")
	}
	if raw := q.Get("actor_id"); raw != "" {
		actor, err := id.ParseUserID(raw)
		if err != nil {
			return filter, err
		}
		filter.ActorID = actor
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return filter, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer")
		}
		filter.Limit = min(n, maxLimit)
	}
	return filter, nil
}

func toResponse(e audit.Entry) entryResponse {
	resp := entryResponse{
		ID:           e.ID.String(),
		ActorRole:    string(e.ActorRole),
		Action:       string(e.Action),
		TargetEntity: e.TargetEntity,
		Metadata:     e.Metadata,
		CreatedAt:    e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if !e.ActorID.IsNil() {
		actor := e.ActorID.String()
		resp.ActorID = &actor
	}
	if e.TargetID != "" {
		target := e.TargetID
		resp.TargetID = &target
	}
	if resp.Metadata == nil {
		resp.Metadata = map[string]any{}
	}
	return resp
}
