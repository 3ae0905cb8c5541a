package store

import (
	"context"
	"sync"

	"donorlink/internal/donor/models"
	id "donorlink/pkg/domain"
	"donorlink/pkg/platform/sentinel"
)

// InMemoryStore keeps donors in maps guarded by a single RWMutex. Email and
// phone indexes enforce uniqueness the way the SQL unique indexes do.
type InMemoryStore struct {
	mu      sync.RWMutex
	donors  map[id.DonorID]*models.Donor
	byEmail map[string]id.DonorID
	byPhone map[string]id.DonorID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		donors:  make(map[id.DonorID]*models.Donor),
		byEmail: make(map[string]id.DonorID),
		byPhone: make(map[string]id.DonorID),
	}
}

// Create inserts a donor, returning sentinel.ErrAlreadyUsed when email or phone is taken.
func (s *InMemoryStore) Create(_ context.Context, donor *models.Donor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.donors[donor.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	if _, ok := s.byEmail[donor.Email]; ok {
		return sentinel.ErrAlreadyUsed
	}
	if _, ok := s.byPhone[donor.Phone]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.donors[donor.ID] = clone(donor)
	s.byEmail[donor.Email] = donor.ID
	s.byPhone[donor.Phone] = donor.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, donorID id.DonorID) (*models.Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.donors[donorID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(d), nil
}

// FindByEmailOrPhone returns the first donor holding either contact.
func (s *InMemoryStore) FindByEmailOrPhone(_ context.Context, email, phone string) (*models.Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if donorID, ok := s.byEmail[email]; ok {
		return clone(s.donors[donorID]), nil
	}
	if donorID, ok := s.byPhone[phone]; ok {
		return clone(s.donors[donorID]), nil
	}
	return nil, sentinel.ErrNotFound
}

// FindByIDs returns the donors that exist among ids, keyed by id.
func (s *InMemoryStore) FindByIDs(_ context.Context, ids []id.DonorID) (map[id.DonorID]*models.Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.DonorID]*models.Donor, len(ids))
	for _, donorID := range ids {
		if d, ok := s.donors[donorID]; ok {
			out[donorID] = clone(d)
		}
	}
	return out, nil
}

// FindMatching returns up to limit matchable donors in matching order.
func (s *InMemoryStore) FindMatching(_ context.Context, q models.Query, limit int) ([]*models.Donor, error) {
	matches := s.matching(q)
	models.SortForMatching(matches)
	if limit >= 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Search returns one page in search order plus the total match count.
func (s *InMemoryStore) Search(_ context.Context, q models.Query, page models.PageRequest) ([]*models.Donor, int, error) {
	matches := s.matching(q)
	models.SortForSearch(matches)
	return window(matches, page), len(matches), nil
}

// SearchAvailable returns one page in matching order with total and available counts.
func (s *InMemoryStore) SearchAvailable(_ context.Context, q models.Query, page models.PageRequest) (*models.SearchResult, error) {
	matches := s.matching(q)
	models.SortForMatching(matches)
	available := 0
	for _, d := range matches {
		if d.Availability == models.AvailabilityAvailable {
			available++
		}
	}
	return &models.SearchResult{
		Donors:         window(matches, page),
		Total:          len(matches),
		AvailableCount: available,
	}, nil
}

// Execute atomically validates and mutates a donor under the write lock.
// The mutation is discarded when fn returns an error.
func (s *InMemoryStore) Execute(_ context.Context, donorID id.DonorID, fn func(*models.Donor) error) (*models.Donor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.donors[donorID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := clone(current)
	if err := fn(working); err != nil {
		return nil, err
	}
	s.donors[donorID] = working
	return clone(working), nil
}

func (s *InMemoryStore) matching(q models.Query) []*models.Donor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Donor
	for _, d := range s.donors {
		if d.District == q.District && d.BloodGroup == q.BloodGroup && d.Matchable() {
			out = append(out, clone(d))
		}
	}
	return out
}

func window(donors []*models.Donor, page models.PageRequest) []*models.Donor {
	start := page.Offset()
	if start >= len(donors) {
		return []*models.Donor{}
	}
	end := min(start+page.Limit, len(donors))
	return donors[start:end]
}

func clone(d *models.Donor) *models.Donor {
	c := *d
	if d.LastDonationDate != nil {
		t := *d.LastDonationDate
		c.LastDonationDate = &t
	}
	return &c
}
