package export

import (
	"context"
	"fmt"
	"sort"
	"sync"

	id "vitalis/pkg/domain"
)

// MemorySource holds rows per owner for development mode and tests. Rows are
// returned newest first by the order column, like SQLSource.
type MemorySource struct {
	mu          sync.RWMutex
	orderColumn string
	rows        map[id.UserID][]Row
}

func NewMemorySource(orderColumn string) *MemorySource {
	return &MemorySource{orderColumn: orderColumn, rows: make(map[id.UserID][]Row)}
}

func (s *MemorySource) Put(owner id.UserID, row Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(Row, len(row))
	for k, v := range row {
		cp[k] = v
	}
	s.rows[owner] = append(s.rows[owner], cp)
}

func (s *MemorySource) FetchByOwner(ctx context.Context, userID id.UserID) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Row, 0, len(s.rows[userID]))
	for _, row := range s.rows[userID] {
		cp := make(Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out = append(out, cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return fmt.Sprint(out[i][s.orderColumn]) > fmt.Sprint(out[j][s.orderColumn])
	})
	return out, nil
}
