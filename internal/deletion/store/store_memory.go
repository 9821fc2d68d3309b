// Package store persists deletion requests.
package store

import (
	"context"
	"sort"
	"sync"

	"vitalis/internal/deletion/models"
	id "vitalis/pkg/domain"
	"vitalis/pkg/platform/sentinel"
)

// InMemory guards the one-pending-per-user rule with its write lock.
type InMemory struct {
	mu       sync.RWMutex
	requests map[id.DeletionRequestID]*models.Request
	pending  map[id.UserID]id.DeletionRequestID
}

func NewInMemory() *InMemory {
	return &InMemory{
		requests: make(map[id.DeletionRequestID]*models.Request),
		pending:  make(map[id.UserID]id.DeletionRequestID),
	}
}

// Create stores req, or returns sentinel.ErrAlreadyUsed when the user
// already has a pending request.
func (s *InMemory) Create(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.IsPending() {
		if _, exists := s.pending[req.UserID]; exists {
			return sentinel.ErrAlreadyUsed
		}
		s.pending[req.UserID] = req.ID
	}
	s.requests[req.ID] = copyRequest(req)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, requestID id.DeletionRequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyRequest(req), nil
}

func (s *InMemory) ListForUser(_ context.Context, userID id.UserID) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Request
	for _, req := range s.requests {
		if req.UserID == userID {
			out = append(out, copyRequest(req))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemory) ListPending(_ context.Context) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Request, 0, len(s.pending))
	for _, requestID := range s.pending {
		out = append(out, copyRequest(s.requests[requestID]))
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemory) Execute(_ context.Context, requestID id.DeletionRequestID, validate func(*models.Request) error, mutate func(*models.Request)) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := copyRequest(req)
	if err := validate(cp); err != nil {
		return nil, err
	}
	mutate(cp)
	s.requests[requestID] = cp
	if !cp.IsPending() && s.pending[cp.UserID] == requestID {
		delete(s.pending, cp.UserID)
	}
	return copyRequest(cp), nil
}

func copyRequest(r *models.Request) *models.Request {
	cp := *r
	if r.Reason != nil {
		v := *r.Reason
		cp.Reason = &v
	}
	if r.AdminNotes != nil {
		v := *r.AdminNotes
		cp.AdminNotes = &v
	}
	if r.ReviewedAt != nil {
		v := *r.ReviewedAt
		cp.ReviewedAt = &v
	}
	if r.ReviewedBy != nil {
		v := *r.ReviewedBy
		cp.ReviewedBy = &v
	}
	if r.CompletedAt != nil {
		v := *r.CompletedAt
		cp.CompletedAt = &v
	}
	return &cp
}

func sortNewestFirst(reqs []*models.Request) {
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].RequestedAt.Equal(reqs[j].RequestedAt) {
			return reqs[i].ID.String() < reqs[j].ID.String()
		}
		return reqs[i].RequestedAt.After(reqs[j].RequestedAt)
	})
}
