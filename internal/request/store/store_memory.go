package store

import (
	"bytes"
	"context"
	"slices"
	"sync"

	donormodels "donorlink/internal/donor/models"
	"donorlink/internal/request/models"
	id "donorlink/pkg/domain"
	"donorlink/pkg/platform/sentinel"
)

// InMemoryStore holds requests keyed by id with a unique request number index.
// Returned aggregates are copies.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.BloodRequest
	byNumber map[string]id.RequestID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		requests: make(map[id.RequestID]*models.BloodRequest),
		byNumber: make(map[string]id.RequestID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, r *models.BloodRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byNumber[r.RequestNumber]; ok {
		return sentinel.ErrAlreadyUsed
	}
	if _, ok := s.requests[r.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.requests[r.ID] = r.Clone()
	s.byNumber[r.RequestNumber] = r.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, requestID id.RequestID) (*models.BloodRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// Execute applies fn to a working copy under the write lock. The copy replaces
// the stored aggregate only when fn succeeds.
func (s *InMemoryStore) Execute(_ context.Context, requestID id.RequestID, fn func(*models.BloodRequest) error) (*models.BloodRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	s.requests[requestID] = working
	return working.Clone(), nil
}

// List returns one page of requests matching filter, newest first.
func (s *InMemoryStore) List(_ context.Context, filter models.ListFilter, page donormodels.PageRequest) ([]*models.BloodRequest, int, error) {
	s.mu.RLock()
	var matches []*models.BloodRequest
	for _, r := range s.requests {
		if filter.Matches(r) {
			matches = append(matches, r)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matches)
	window := models.Window(matches, page.Page, page.Limit)
	out := make([]*models.BloodRequest, len(window))
	for i, r := range window {
		out[i] = r.Clone()
	}
	return out, len(matches), nil
}

// LatestByContactNumber returns the most recently submitted request for phone.
func (s *InMemoryStore) LatestByContactNumber(_ context.Context, phone string) (*models.BloodRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.BloodRequest
	for _, r := range s.requests {
		if r.ContactNumber != phone {
			continue
		}
		if latest == nil || r.RequestedAt.After(latest.RequestedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return latest.Clone(), nil
}

func sortNewestFirst(rs []*models.BloodRequest) {
	slices.SortFunc(rs, func(a, b *models.BloodRequest) int {
		if c := b.RequestedAt.Compare(a.RequestedAt); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
}
