package policy

import (
	"context"
	"sort"
	"sync"

	"vitalis/internal/retention/models"
	id "vitalis/pkg/domain"
	"vitalis/pkg/platform/sentinel"
)

// InMemory keeps policies keyed by id with a secondary data type index.
type InMemory struct {
	mu       sync.RWMutex
	policies map[id.PolicyID]*models.Policy
	byType   map[models.DataType]id.PolicyID
}

func NewInMemory() *InMemory {
	return &InMemory{
		policies: make(map[id.PolicyID]*models.Policy),
		byType:   make(map[models.DataType]id.PolicyID),
	}
}

func (s *InMemory) List(_ context.Context) ([]*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DataType < out[j].DataType })
	return out, nil
}

func (s *InMemory) FindByID(_ context.Context, policyID id.PolicyID) (*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[policyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// Execute runs validate then mutate under the write lock.
func (s *InMemory) Execute(_ context.Context, policyID id.PolicyID, validate func(*models.Policy) error, mutate func(*models.Policy)) (*models.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[policyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	if err := validate(&cp); err != nil {
		return nil, err
	}
	mutate(&cp)
	s.policies[policyID] = &cp
	out := cp
	return &out, nil
}

// Seed inserts policies whose data type has none yet and returns how many
// were inserted.
func (s *InMemory) Seed(_ context.Context, policies []*models.Policy) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, p := range policies {
		if _, exists := s.byType[p.DataType]; exists {
			continue
		}
		cp := *p
		s.policies[p.ID] = &cp
		s.byType[p.DataType] = p.ID
		inserted++
	}
	return inserted, nil
}
