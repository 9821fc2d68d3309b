// Package service implements the retention workflows: policy administration,
// the retention scan, flag review and the compliance dashboard statistics.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"

	"vitalis/internal/platform/metrics"
	"vitalis/internal/retention/domains"
	"vitalis/internal/retention/models"
	id "vitalis/pkg/domain"
	dErrors "vitalis/pkg/domain-errors"
	"vitalis/pkg/platform/audit"
	"vitalis/pkg/platform/changefeed"
	"vitalis/pkg/platform/sentinel"
	"vitalis/pkg/requestcontext"
)

var tracer = otel.Tracer("vitalis/internal/retention/service")

type PolicyStore interface {
	List(ctx context.Context) ([]*models.Policy, error)
	FindByID(ctx context.Context, policyID id.PolicyID) (*models.Policy, error)
	Execute(ctx context.Context, policyID id.PolicyID, validate func(*models.Policy) error, mutate func(*models.Policy)) (*models.Policy, error)
}

type FlagStore interface {
	// CreatePending reports false when the record already has a pending flag.
	CreatePending(ctx context.Context, flag *models.Flag) (bool, error)
	FindByID(ctx context.Context, flagID id.FlagID) (*models.Flag, error)
	ListPending(ctx context.Context) ([]*models.Flag, error)
	ListAll(ctx context.Context) ([]*models.Flag, error)
	Execute(ctx context.Context, flagID id.FlagID, validate func(*models.Flag) error, mutate func(*models.Flag)) (*models.Flag, error)
}

type AuditPublisher interface {
	Record(ctx context.Context, actorID id.UserID, role id.Role, action audit.Action, targetEntity, targetID string, metadata map[string]any)
}

// AdapterRegistry resolves the domain adapter for a data type.
type AdapterRegistry interface {
	Lookup(dataType models.DataType) (domains.Adapter, bool)
}

// deps is shared by the retention services.
type deps struct {
	logger   *slog.Logger
	audit    AuditPublisher
	notifier changefeed.Notifier
	metrics  *metrics.Metrics

	// cascadeDelete makes a "deleted" review erase the referenced record.
	cascadeDelete bool
}

type Option func(*deps)

func WithLogger(logger *slog.Logger) Option {
	return func(d *deps) {
		d.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(d *deps) {
		d.audit = publisher
	}
}

func WithNotifier(n changefeed.Notifier) Option {
	return func(d *deps) {
		d.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *deps) {
		d.metrics = m
	}
}

// WithCascadeDelete controls whether reviewing a flag as deleted also deletes
// the underlying record. Only ReviewService reads it.
func WithCascadeDelete(enabled bool) Option {
	return func(d *deps) {
		d.cascadeDelete = enabled
	}
}

func newDeps(opts []Option) deps {
	d := deps{
		logger:   slog.Default(),
		notifier: changefeed.Nop{},
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func (d deps) record(ctx context.Context, action audit.Action, entity, targetID string, metadata map[string]any) {
	if d.audit == nil {
		return
	}
	actorID, role := actor(ctx)
	d.audit.Record(ctx, actorID, role, action, entity, targetID, metadata)
}

func (d deps) notify(ctx context.Context, topic, kind, entityID string) {
	d.notifier.Notify(ctx, changefeed.Change{
		Topic:    topic,
		Kind:     kind,
		EntityID: entityID,
		At:       requestcontext.Now(ctx),
	})
}

// actor is the authenticated caller, or the system when the call did not
// come through an authenticated request.
func actor(ctx context.Context) (id.UserID, id.Role) {
	role := requestcontext.Role(ctx)
	if role == "" {
		role = id.RoleSystem
	}
	return requestcontext.UserID(ctx), role
}

// storeErr translates store failures into coded errors. Coded errors pass
// through so validate callbacks can choose their own code.
func storeErr(err error, notFound, action string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, action)
	}
}
