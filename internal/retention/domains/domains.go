// Package domains holds the registry of retained record tables. Each data
// type is served by one Adapter; adding a retained domain means registering
// an adapter, not editing the scanner.
package domains

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vitalis/internal/retention/models"
	id "vitalis/pkg/domain"
)

// Record identifies one stored row and its owner. OwnerID is nil when the
// row has no owning user.
type Record struct {
	ID      string
	OwnerID id.UserID
}

// Adapter exposes the retention capabilities of one domain table.
type Adapter interface {
	DataType() models.DataType
	// FetchRecordsOlderThan returns records created strictly before cutoff.
	FetchRecordsOlderThan(ctx context.Context, cutoff time.Time) ([]Record, error)
	// DeleteRecord removes a record. Deleting a missing record is not an error.
	DeleteRecord(ctx context.Context, recordID string) error
}

// Registry maps data types to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.DataType]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.DataType]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register installs a, replacing any adapter for the same data type.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.DataType()] = a
}

func (r *Registry) Lookup(dataType models.DataType) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[dataType]
	return a, ok
}

// DataTypes returns the registered data types, sorted.
func (r *Registry) DataTypes() []models.DataType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.DataType, 0, len(r.adapters))
	for dt := range r.adapters {
		out = append(out, dt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MustLookup is Lookup for wiring code that registered the adapter itself.
func (r *Registry) MustLookup(dataType models.DataType) Adapter {
	a, ok := r.Lookup(dataType)
	if !ok {
		panic(fmt.Sprintf("no adapter registered for %s", dataType))
	}
	return a
}
