// Package service implements the deletion request workflow: users submit,
// administrators review and mark approved requests completed.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"vitalis/internal/deletion/models"
	"vitalis/internal/platform/metrics"
	id "vitalis/pkg/domain"
	dErrors "vitalis/pkg/domain-errors"
	"vitalis/pkg/platform/audit"
	"vitalis/pkg/platform/changefeed"
	"vitalis/pkg/platform/sentinel"
	"vitalis/pkg/requestcontext"
)

const maxTextLength = 2000

type Store interface {
	Create(ctx context.Context, req *models.Request) error
	FindByID(ctx context.Context, requestID id.DeletionRequestID) (*models.Request, error)
	ListForUser(ctx context.Context, userID id.UserID) ([]*models.Request, error)
	ListPending(ctx context.Context) ([]*models.Request, error)
	Execute(ctx context.Context, requestID id.DeletionRequestID, validate func(*models.Request) error, mutate func(*models.Request)) (*models.Request, error)
}

type AuditPublisher interface {
	Record(ctx context.Context, actorID id.UserID, role id.Role, action audit.Action, targetEntity, targetID string, metadata map[string]any)
}

type Service struct {
	store    Store
	logger   *slog.Logger
	audit    AuditPublisher
	notifier changefeed.Notifier
	metrics  *metrics.Metrics
	hook     models.ApprovalHook
	newID    func() id.DeletionRequestID
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithNotifier(n changefeed.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithApprovalHook installs the action taken when an account deletion is
// approved.
func WithApprovalHook(hook models.ApprovalHook) Option {
	return func(s *Service) {
		s.hook = hook
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("deletion request store is required")
	}
	s := &Service{
		store:    store,
		logger:   slog.Default(),
		notifier: changefeed.Nop{},
		newID:    func() id.DeletionRequestID { return id.DeletionRequestID(uuid.New()) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit opens a pending request for the user. A user with a pending request
// gets a conflict.
func (s *Service) Submit(ctx context.Context, userID id.UserID, requestType string, reason *string) (*models.Request, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	rt, err := models.ParseRequestType(requestType)
	if err != nil {
		return nil, err
	}
	reason, err = normalizeText(reason, "reason")
	if err != nil {
		return nil, err
	}

	req, err := models.NewRequest(s.newID(), userID, rt, reason, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if err := s.store.Create(ctx, req); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "a deletion request is already pending")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to submit deletion request")
	}

	s.metrics.IncrementDeletionRequest(string(rt))
	s.logger.InfoContext(ctx, "deletion request submitted",
		"request_id", req.ID,
		"user_id", userID,
		"request_type", rt,
	)
	action := audit.ActionRequestDataDeletion
	if rt == models.RequestTypeAccount {
		action = audit.ActionRequestAccountDeletion
	}
	metadata := map[string]any{"request_type": string(rt)}
	if reason != nil {
		metadata["reason"] = *reason
	}
	if client := requestcontext.Client(ctx); client != "" {
		metadata["client"] = client
	}
	s.record(ctx, userID, action, req.ID.String(), metadata)
	s.notify(ctx, "submitted", req.ID.String())
	return req, nil
}

// Review approves or rejects a pending request. It never deletes anything
// itself; approved account deletions are handed to the approval hook.
func (s *Service) Review(ctx context.Context, requestID id.DeletionRequestID, decision string, adminNotes *string) (*models.Request, error) {
	admin, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	status, err := models.ParseDecision(decision)
	if err != nil {
		return nil, err
	}
	adminNotes, err = normalizeText(adminNotes, "admin_notes")
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	req, err := s.store.Execute(ctx, requestID,
		func(r *models.Request) error {
			if err := r.CanReview(); err != nil {
				return dErrors.New(dErrors.CodeConflict, err.Error())
			}
			return nil
		},
		func(r *models.Request) {
			r.ApplyReview(status, admin, adminNotes, now)
		},
	)
	if err != nil {
		return nil, translate(err, "failed to review deletion request")
	}

	s.metrics.IncrementDeletionTransition(string(status))
	s.logger.InfoContext(ctx, "deletion request reviewed",
		"request_id", req.ID,
		"status", status,
		"request_type", req.RequestType,
	)
	var notesValue any
	if adminNotes != nil {
		notesValue = *adminNotes
	}
	s.record(ctx, admin, audit.ActionReviewDeletionRequest, req.ID.String(), map[string]any{
		"decision":     string(status),
		"request_type": string(req.RequestType),
		"admin_notes":  notesValue,
	})
	s.notify(ctx, "reviewed", req.ID.String())

	if status == models.StatusApproved && req.RequestType == models.RequestTypeAccount && s.hook != nil {
		if err := s.hook.AccountDeletionApproved(ctx, req); err != nil {
			// The approval stands; the purge is retried out of band.
			s.logger.ErrorContext(ctx, "account deletion hook failed",
				"request_id", req.ID,
				"error", err,
			)
		}
	}
	return req, nil
}

// Complete records that an approved request has been carried out.
func (s *Service) Complete(ctx context.Context, requestID id.DeletionRequestID) (*models.Request, error) {
	admin, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	req, err := s.store.Execute(ctx, requestID,
		func(r *models.Request) error {
			if err := r.CanComplete(); err != nil {
				return dErrors.New(dErrors.CodeConflict, err.Error())
			}
			return nil
		},
		func(r *models.Request) {
			r.ApplyCompletion(now)
		},
	)
	if err != nil {
		return nil, translate(err, "failed to complete deletion request")
	}

	s.metrics.IncrementDeletionTransition(string(models.StatusCompleted))
	s.logger.InfoContext(ctx, "deletion request completed", "request_id", req.ID)
	s.record(ctx, admin, audit.ActionCompleteDeletionRequest, req.ID.String(), map[string]any{
		"request_type": string(req.RequestType),
	})
	s.notify(ctx, "completed", req.ID.String())
	return req, nil
}

// ListForUser returns the user's requests, newest first.
func (s *Service) ListForUser(ctx context.Context, userID id.UserID) ([]*models.Request, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	reqs, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list deletion requests")
	}
	return reqs, nil
}

// ListPending is the administrator review queue.
func (s *Service) ListPending(ctx context.Context) ([]*models.Request, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	reqs, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending deletion requests")
	}
	return reqs, nil
}

func (s *Service) record(ctx context.Context, actorID id.UserID, action audit.Action, targetID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	role := requestcontext.Role(ctx)
	if role == "" {
		role = id.RolePatient
	}
	s.audit.Record(ctx, actorID, role, action, audit.EntityDeletionRequest, targetID, metadata)
}

func (s *Service) notify(ctx context.Context, kind, entityID string) {
	s.notifier.Notify(ctx, changefeed.Change{
		Topic:    changefeed.TopicDeletionRequests,
		Kind:     kind,
		EntityID: entityID,
		At:       requestcontext.Now(ctx),
	})
}

func requireAdmin(ctx context.Context) (id.UserID, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !requestcontext.Role(ctx).IsAdmin() {
		return id.UserID{}, dErrors.New(dErrors.CodeForbidden, "administrator role required")
	}
	return userID, nil
}

func normalizeText(v *string, field string) (*string, error) {
	if v == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil, nil
	}
	if len(trimmed) > maxTextLength {
		return nil, dErrors.New(dErrors.CodeValidation, field+" is too long")
	}
	return &trimmed, nil
}

func translate(err error, action string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "deletion request not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, action)
	}
}
