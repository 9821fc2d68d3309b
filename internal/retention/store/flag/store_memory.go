package flag

import (
	"context"
	"sort"
	"sync"

	"vitalis/internal/retention/models"
	id "vitalis/pkg/domain"
	"vitalis/pkg/platform/sentinel"
)

type pendingKey struct {
	dataType models.DataType
	recordID string
}

// InMemory keeps flags keyed by id and indexes pending flags by record.
type InMemory struct {
	mu      sync.RWMutex
	flags   map[id.FlagID]*models.Flag
	pending map[pendingKey]id.FlagID
}

func NewInMemory() *InMemory {
	return &InMemory{
		flags:   make(map[id.FlagID]*models.Flag),
		pending: make(map[pendingKey]id.FlagID),
	}
}

// CreatePending stores f unless the record already has a pending flag.
// It reports whether f was stored.
func (s *InMemory) CreatePending(_ context.Context, f *models.Flag) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pendingKey{f.DataType, f.RecordID}
	if _, exists := s.pending[key]; exists {
		return false, nil
	}
	s.flags[f.ID] = copyFlag(f)
	s.pending[key] = f.ID
	return true, nil
}

func (s *InMemory) FindByID(_ context.Context, flagID id.FlagID) (*models.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flags[flagID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyFlag(f), nil
}

// ListPending returns pending flags, newest first.
func (s *InMemory) ListPending(_ context.Context) ([]*models.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Flag, 0, len(s.pending))
	for _, flagID := range s.pending {
		out = append(out, copyFlag(s.flags[flagID]))
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemory) ListAll(_ context.Context) ([]*models.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Flag, 0, len(s.flags))
	for _, f := range s.flags {
		out = append(out, copyFlag(f))
	}
	sortNewestFirst(out)
	return out, nil
}

// Execute runs validate then mutate under the write lock.
func (s *InMemory) Execute(_ context.Context, flagID id.FlagID, validate func(*models.Flag) error, mutate func(*models.Flag)) (*models.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flags[flagID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := copyFlag(f)
	if err := validate(cp); err != nil {
		return nil, err
	}
	mutate(cp)
	s.flags[flagID] = cp
	key := pendingKey{cp.DataType, cp.RecordID}
	if !cp.IsPending() && s.pending[key] == flagID {
		delete(s.pending, key)
	}
	return copyFlag(cp), nil
}

func copyFlag(f *models.Flag) *models.Flag {
	cp := *f
	if f.ReviewedAt != nil {
		at := *f.ReviewedAt
		cp.ReviewedAt = &at
	}
	if f.ReviewedBy != nil {
		by := *f.ReviewedBy
		cp.ReviewedBy = &by
	}
	if f.Notes != nil {
		notes := *f.Notes
		cp.Notes = &notes
	}
	return &cp
}

func sortNewestFirst(flags []*models.Flag) {
	sort.Slice(flags, func(i, j int) bool {
		if flags[i].FlaggedAt.Equal(flags[j].FlaggedAt) {
			return flags[i].ID.String() < flags[j].ID.String()
		}
		return flags[i].FlaggedAt.After(flags[j].FlaggedAt)
	})
}
