//go:build integration

package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"donorlink/internal/donor/models"
	"donorlink/internal/donor/store"
	id "donorlink/pkg/domain"
	"donorlink/pkg/platform/sentinel"
	"donorlink/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "blood_requests", "donors"))
}

func newDonor(n int, district models.District, group models.BloodGroup) *models.Donor {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Donor{
		ID:               id.NewDonorID(),
		FullName:         fmt.Sprintf("Donor %d", n),
		Email:            fmt.Sprintf("donor%d@example.com", n),
		Phone:            fmt.Sprintf("98%08d", n),
		Age:              30,
		Gender:           models.GenderOther,
		BloodGroup:       group,
		District:         district,
		WillingToDonate:  true,
		IsActive:         true,
		Availability:     models.AvailabilityAvailable,
		RegistrationDate: now,
		LastUpdated:      now.Add(time.Duration(n) * time.Second),
	}
}

// TestConcurrentDuplicatePhone verifies the unique index backstops racing registrations.
func (s *PostgresStoreSuite) TestConcurrentDuplicatePhone() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var created, conflicts atomic.Int32
	for i := range goroutines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := newDonor(1000+i, "Chennai", models.BloodGroupOPos)
			d.Phone = "9999999999"
			err := s.store.Create(ctx, d)
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestMatchingOrderAndSearch() {
	ctx := context.Background()
	var ids []id.DonorID
	for i := range 7 {
		d := newDonor(i, "Chennai", models.BloodGroupOPos)
		if i == 6 {
			d.Availability = models.AvailabilityUnavailable
		}
		s.Require().NoError(s.store.Create(ctx, d))
		ids = append(ids, d.ID)
	}
	s.Require().NoError(s.store.Create(ctx, newDonor(50, "Madurai", models.BloodGroupOPos)))

	q := models.Query{District: "Chennai", BloodGroup: models.BloodGroupOPos}
	matches, err := s.store.FindMatching(ctx, q, 50)
	s.Require().NoError(err)
	s.Require().Len(matches, 7)
	s.Equal(ids[5], matches[0].ID, "most recently updated available donor first")
	s.Equal(ids[6], matches[6].ID, "unavailable donors last")

	page, total, err := s.store.Search(ctx, q, models.PageRequest{Page: 2, Limit: 5})
	s.Require().NoError(err)
	s.Equal(7, total)
	s.Len(page, 2)

	found, err := s.store.FindByIDs(ctx, ids[:3])
	s.Require().NoError(err)
	s.Len(found, 3)
}

func (s *PostgresStoreSuite) TestExecuteWritesBack() {
	ctx := context.Background()
	d := newDonor(1, "Erode", models.BloodGroupBNeg)
	s.Require().NoError(s.store.Create(ctx, d))

	now := time.Now().UTC().Truncate(time.Microsecond)
	_, err := s.store.Execute(ctx, d.ID, func(d *models.Donor) error {
		d.ApplyContact(models.ContactOutcomeDonatedRecently, now)
		return nil
	})
	s.Require().NoError(err)

	found, err := s.store.FindByID(ctx, d.ID)
	s.Require().NoError(err)
	s.Require().NotNil(found.LastDonationDate)
	s.True(now.Equal(*found.LastDonationDate))
}
