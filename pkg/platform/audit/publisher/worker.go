package publisher

import (
	"context"
	"log/slog"
	"time"

	audit "vitalis/pkg/platform/audit"
	"vitalis/pkg/platform/circuit"
)

const defaultWriteTimeout = 5 * time.Second

// writer persists entries to one sink. Failures are logged and counted,
// never returned; an open breaker drops entries until the sink recovers.
// Only the primary sink moves the recorded counter and breaker gauge.
type writer struct {
	store   audit.Store
	primary bool
	logger  *slog.Logger
	metrics *Metrics
	breaker *circuit.Breaker
	timeout time.Duration
}

func (w *writer) write(ctx context.Context, entry audit.Entry) {
	if !w.breaker.Allow() {
		if w.primary {
			w.metrics.incDropped("circuit_open")
		}
		w.logger.WarnContext(ctx, "audit store circuit open, dropping entry",
			"action", entry.Action,
			"target_entity", entry.TargetEntity,
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	if err := w.store.Append(ctx, entry); err != nil {
		w.metrics.incPersistFailures()
		_, change := w.breaker.RecordFailure()
		if change.Opened && w.primary {
			w.metrics.setBreakerOpen(true)
		}
		w.logger.ErrorContext(ctx, "failed to persist audit entry",
			"action", entry.Action,
			"target_entity", entry.TargetEntity,
			"target_id", entry.TargetID,
			"error", err,
		)
		return
	}

	_, change := w.breaker.RecordSuccess()
	if !w.primary {
		return
	}
	if change.Closed {
		w.metrics.setBreakerOpen(false)
	}
	w.metrics.incRecorded()
}
