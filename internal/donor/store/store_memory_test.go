package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"donorlink/internal/donor/models"
	id "donorlink/pkg/domain"
	"donorlink/pkg/platform/sentinel"
)

var base = time.Date(2025, time.January, 1, 8, 0, 0, 0, time.UTC)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	seq   int
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
	s.seq = 0
}

func (s *InMemoryStoreSuite) newDonor(district models.District, group models.BloodGroup) *models.Donor {
	s.seq++
	return &models.Donor{
		ID:              id.NewDonorID(),
		FullName:        fmt.Sprintf("Donor %d", s.seq),
		Email:           fmt.Sprintf("donor%d@example.com", s.seq),
		Phone:           fmt.Sprintf("90000000%02d", s.seq),
		Age:             30,
		Gender:          models.GenderMale,
		BloodGroup:      group,
		District:        district,
		WillingToDonate: true,
		IsActive:        true,
		Availability:    models.AvailabilityAvailable,
		LastUpdated:     base.Add(time.Duration(s.seq) * time.Minute),
	}
}

func (s *InMemoryStoreSuite) TestCreateEnforcesUniqueContacts() {
	first := s.newDonor("Chennai", models.BloodGroupOPos)
	s.Require().NoError(s.store.Create(s.ctx, first))

	s.Run("duplicate email", func() {
		dup := s.newDonor("Chennai", models.BloodGroupOPos)
		dup.Email = first.Email
		s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrAlreadyUsed)
	})

	s.Run("duplicate phone", func() {
		dup := s.newDonor("Chennai", models.BloodGroupOPos)
		dup.Phone = first.Phone
		s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrAlreadyUsed)
	})

	s.Run("lookup by either contact", func() {
		found, err := s.store.FindByEmailOrPhone(s.ctx, "nobody@example.com", first.Phone)
		s.Require().NoError(err)
		s.Equal(first.ID, found.ID)

		_, err = s.store.FindByEmailOrPhone(s.ctx, "nobody@example.com", "0000000000")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestReturnedDonorsAreCopies() {
	d := s.newDonor("Chennai", models.BloodGroupOPos)
	s.Require().NoError(s.store.Create(s.ctx, d))

	found, err := s.store.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	found.Availability = models.AvailabilityUnavailable

	again, err := s.store.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(models.AvailabilityAvailable, again.Availability)
}

func (s *InMemoryStoreSuite) TestFindMatchingFiltersAndOrders() {
	inactive := s.newDonor("Chennai", models.BloodGroupOPos)
	inactive.IsActive = false
	unwilling := s.newDonor("Chennai", models.BloodGroupOPos)
	unwilling.WillingToDonate = false
	otherDistrict := s.newDonor("Madurai", models.BloodGroupOPos)
	otherGroup := s.newDonor("Chennai", models.BloodGroupANeg)
	busy := s.newDonor("Chennai", models.BloodGroupOPos)
	busy.Availability = models.AvailabilityUnavailable
	older := s.newDonor("Chennai", models.BloodGroupOPos)
	newer := s.newDonor("Chennai", models.BloodGroupOPos)

	for _, d := range []*models.Donor{inactive, unwilling, otherDistrict, otherGroup, busy, older, newer} {
		s.Require().NoError(s.store.Create(s.ctx, d))
	}

	got, err := s.store.FindMatching(s.ctx, models.Query{District: "Chennai", BloodGroup: models.BloodGroupOPos}, 50)
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Equal(newer.ID, got[0].ID)
	s.Equal(older.ID, got[1].ID)
	s.Equal(busy.ID, got[2].ID)

	capped, err := s.store.FindMatching(s.ctx, models.Query{District: "Chennai", BloodGroup: models.BloodGroupOPos}, 2)
	s.Require().NoError(err)
	s.Len(capped, 2)
}

func (s *InMemoryStoreSuite) TestSearchPaginates() {
	q := models.Query{District: "Chennai", BloodGroup: models.BloodGroupBPos}
	for range 7 {
		s.Require().NoError(s.store.Create(s.ctx, s.newDonor(q.District, q.BloodGroup)))
	}

	page1, total, err := s.store.Search(s.ctx, q, models.PageRequest{Page: 1, Limit: 5})
	s.Require().NoError(err)
	s.Equal(7, total)
	s.Len(page1, 5)

	page2, _, err := s.store.Search(s.ctx, q, models.PageRequest{Page: 2, Limit: 5})
	s.Require().NoError(err)
	s.Len(page2, 2)

	page3, _, err := s.store.Search(s.ctx, q, models.PageRequest{Page: 3, Limit: 5})
	s.Require().NoError(err)
	s.Empty(page3)
}

func (s *InMemoryStoreSuite) TestSearchAvailableCounts() {
	q := models.Query{District: "Salem", BloodGroup: models.BloodGroupABNeg}
	for i := range 4 {
		d := s.newDonor(q.District, q.BloodGroup)
		if i%2 == 0 {
			d.Availability = models.AvailabilityOther
		}
		s.Require().NoError(s.store.Create(s.ctx, d))
	}

	res, err := s.store.SearchAvailable(s.ctx, q, models.PageRequest{Page: 1, Limit: 3})
	s.Require().NoError(err)
	s.Equal(4, res.Total)
	s.Equal(2, res.AvailableCount)
	s.Len(res.Donors, 3)
	s.Equal(models.AvailabilityAvailable, res.Donors[0].Availability)
}

func (s *InMemoryStoreSuite) TestExecute() {
	d := s.newDonor("Chennai", models.BloodGroupOPos)
	s.Require().NoError(s.store.Create(s.ctx, d))

	s.Run("applies mutation", func() {
		updated, err := s.store.Execute(s.ctx, d.ID, func(d *models.Donor) error {
			d.ApplyAvailability(models.AvailabilityUnavailable, base.Add(time.Hour))
			return nil
		})
		s.Require().NoError(err)
		s.Equal(models.AvailabilityUnavailable, updated.Availability)
	})

	s.Run("discards mutation on error", func() {
		boom := errors.New("boom")
		_, err := s.store.Execute(s.ctx, d.ID, func(d *models.Donor) error {
			d.Availability = models.AvailabilityOther
			return boom
		})
		s.ErrorIs(err, boom)

		found, err := s.store.FindByID(s.ctx, d.ID)
		s.Require().NoError(err)
		s.Equal(models.AvailabilityUnavailable, found.Availability)
	})

	s.Run("unknown donor", func() {
		_, err := s.store.Execute(s.ctx, id.NewDonorID(), func(*models.Donor) error { return nil })
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestFindByIDsSkipsUnknown() {
	d := s.newDonor("Chennai", models.BloodGroupOPos)
	s.Require().NoError(s.store.Create(s.ctx, d))

	found, err := s.store.FindByIDs(s.ctx, []id.DonorID{d.ID, id.NewDonorID()})
	s.Require().NoError(err)
	s.Len(found, 1)
	s.Equal(d.FullName, found[d.ID].FullName)
}
