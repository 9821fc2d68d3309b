package audit

import (
	"context"
	"errors"
)

// Store persists audit entries. Implementations only append; nothing in the
// application layer updates or deletes an entry.
type Store interface {
	Append(ctx context.Context, entry Entry) error
}

// Reader lists the audit trail newest-first.
type Reader interface {
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
}

// Tee fans an entry out to several stores, e.g. the database and a Kafka topic.
// The first store is the primary trail. Every store is attempted and failures
// are joined; the publisher splits a Tee so each sink fails independently.
type Tee []Store

func (t Tee) Append(ctx context.Context, entry Entry) error {
	var errs []error
	for _, s := range t {
		if err := s.Append(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// List delegates to the first store that can be read.
func (t Tee) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	for _, s := range t {
		if r, ok := s.(Reader); ok {
			return r.List(ctx, filter)
		}
	}
	return nil, errors.New("no readable audit store configured")
}
