package domains

import (
	"context"
	"sort"
	"sync"
	"time"

	"vitalis/internal/retention/models"
	id "vitalis/pkg/domain"
)

// MemoryTable is an in-process adapter used in development mode and tests.
type MemoryTable struct {
	mu       sync.RWMutex
	dataType models.DataType
	rows     map[string]memoryRow
}

type memoryRow struct {
	owner     id.UserID
	createdAt time.Time
}

func NewMemoryTable(dataType models.DataType) *MemoryTable {
	return &MemoryTable{dataType: dataType, rows: make(map[string]memoryRow)}
}

// Put inserts or replaces a record.
func (t *MemoryTable) Put(recordID string, owner id.UserID, createdAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[recordID] = memoryRow{owner: owner, createdAt: createdAt}
}

func (t *MemoryTable) Has(recordID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.rows[recordID]
	return ok
}

func (t *MemoryTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

func (t *MemoryTable) DataType() models.DataType { return t.dataType }

func (t *MemoryTable) FetchRecordsOlderThan(_ context.Context, cutoff time.Time) ([]Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	type aged struct {
		rec Record
		at  time.Time
	}
	var matches []aged
	for recordID, row := range t.rows {
		if row.createdAt.Before(cutoff) {
			matches = append(matches, aged{Record{ID: recordID, OwnerID: row.owner}, row.createdAt})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].at.Equal(matches[j].at) {
			return matches[i].rec.ID < matches[j].rec.ID
		}
		return matches[i].at.Before(matches[j].at)
	})
	out := make([]Record, len(matches))
	for i, m := range matches {
		out[i] = m.rec
	}
	return out, nil
}

func (t *MemoryTable) DeleteRecord(_ context.Context, recordID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, recordID)
	return nil
}

// NewMemoryRegistry registers an empty MemoryTable for every known data type.
func NewMemoryRegistry() (*Registry, map[models.DataType]*MemoryTable) {
	tables := make(map[models.DataType]*MemoryTable, len(models.KnownDataTypes))
	r := NewRegistry()
	for _, dt := range models.KnownDataTypes {
		tables[dt] = NewMemoryTable(dt)
		r.Register(tables[dt])
	}
	return r, tables
}
