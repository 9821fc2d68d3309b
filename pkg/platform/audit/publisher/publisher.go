// Package publisher records audit entries on a best-effort basis.
//
// Record never returns an error and never blocks on the store: in async mode
// entries go onto a bounded channel drained by a single writer goroutine, and
// a full buffer drops the entry with a warning. Auditing is a traceability
// mechanism only and must not be relied on for correctness decisions.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	id "vitalis/pkg/domain"
	audit "vitalis/pkg/platform/audit"
	"vitalis/pkg/platform/circuit"
)

type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	breaker *circuit.Breaker
	// writers[0] is the primary sink; the rest are secondary. Each has its
	// own breaker so a dead secondary never drops primary writes.
	writers []*writer

	bufferSize int
	inbox      chan audit.Entry
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous recording with a buffer of n entries.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithBreaker replaces the primary sink's circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Publisher) {
		if b != nil {
			p.breaker = b
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPublisher records into store. An audit.Tee is split into its sinks:
// the first is the primary trail and decides whether an entry counts as
// recorded, the others are written independently and only logged on failure.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	sinks := []audit.Store{store}
	if tee, ok := store.(audit.Tee); ok && len(tee) > 0 {
		sinks = tee
	}
	for i, sink := range sinks {
		breaker := newBreaker(fmt.Sprintf("audit-sink-%d", i))
		if i == 0 && p.breaker != nil {
			breaker = p.breaker
		}
		p.writers = append(p.writers, &writer{
			store:   sink,
			primary: i == 0,
			logger:  p.logger.With("audit_sink", i),
			metrics: p.metrics,
			breaker: breaker,
			timeout: defaultWriteTimeout,
		})
	}

	if p.bufferSize > 0 {
		p.inbox = make(chan audit.Entry, p.bufferSize)
		p.done = make(chan struct{})
		go p.run()
	}
	return p
}

func newBreaker(name string) *circuit.Breaker {
	return circuit.New(name, circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second))
}

func (p *Publisher) write(ctx context.Context, entry audit.Entry) {
	for _, w := range p.writers {
		w.write(ctx, entry)
	}
}

// run drains inbox until it is closed.
func (p *Publisher) run() {
	defer close(p.done)
	for entry := range p.inbox {
		p.write(context.Background(), entry)
	}
}

// Record appends a compliance-relevant action to the audit trail. targetID
// may be empty and metadata may be nil.
func (p *Publisher) Record(ctx context.Context, actorID id.UserID, role id.Role, action audit.Action, targetEntity, targetID string, metadata map[string]any) {
	p.Emit(ctx, audit.Entry{
		ActorID:      actorID,
		ActorRole:    role,
		Action:       action,
		TargetEntity: targetEntity,
		TargetID:     targetID,
		Metadata:     metadata,
	})
}

// Emit records a prepared entry, filling in the id and timestamp when unset.
func (p *Publisher) Emit(ctx context.Context, entry audit.Entry) {
	if entry.ID.IsNil() {
		entry.ID = id.AuditEntryID(uuid.New())
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = p.now()
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	if !entry.Action.IsKnown() {
		p.logger.WarnContext(ctx, "recording audit action outside the known vocabulary",
			"action", entry.Action,
		)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.metrics.incDropped("closed")
		p.logger.WarnContext(ctx, "audit publisher closed, dropping entry", "action", entry.Action)
		return
	}

	if p.inbox == nil {
		p.write(ctx, entry)
		return
	}

	select {
	case p.inbox <- entry:
	default:
		p.metrics.incDropped("buffer_full")
		p.logger.WarnContext(ctx, "audit buffer full, dropping entry",
			"action", entry.Action,
			"target_entity", entry.TargetEntity,
		)
	}
}

// List reads the audit trail when the underlying store supports it.
func (p *Publisher) List(ctx context.Context, filter audit.ListFilter) ([]audit.Entry, error) {
	r, ok := p.store.(audit.Reader)
	if !ok {
		return nil, errors.New("audit store is write-only")
	}
	return r.List(ctx, filter)
}

// Close stops accepting entries and drains the buffer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.inbox != nil {
		close(p.inbox)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
	}
	return nil
}
