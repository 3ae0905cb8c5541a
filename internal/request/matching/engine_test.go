package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	donormodels "donorlink/internal/donor/models"
	"donorlink/internal/donor/store"
	id "donorlink/pkg/domain"
	dErrors "donorlink/pkg/domain-errors"
	"donorlink/pkg/requestcontext"
)

type storeDirectory struct {
	store *store.InMemoryStore
}

func (d storeDirectory) FindEligibleDonors(ctx context.Context, district donormodels.District, group donormodels.BloodGroup, limit int) ([]*donormodels.Donor, error) {
	return d.store.FindMatching(ctx, donormodels.Query{District: district, BloodGroup: group}, limit)
}

type failingDirectory struct{}

func (failingDirectory) FindEligibleDonors(context.Context, donormodels.District, donormodels.BloodGroup, int) ([]*donormodels.Donor, error) {
	return nil, errors.New("connection reset")
}

var now = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *store.InMemoryStore, n int, group donormodels.BloodGroup, district donormodels.District) []*donormodels.Donor {
	t.Helper()
	out := make([]*donormodels.Donor, 0, n)
	for i := range n {
		d := &donormodels.Donor{
			ID:               id.NewDonorID(),
			FullName:         "Donor",
			Email:            id.NewDonorID().String() + "@example.com",
			Phone:            id.NewDonorID().String()[:10],
			Age:              30,
			BloodGroup:       group,
			District:         district,
			WillingToDonate:  true,
			IsActive:         true,
			Availability:     donormodels.AvailabilityAvailable,
			RegistrationDate: now,
			LastUpdated:      now.Add(-time.Duration(i) * time.Hour),
		}
		require.NoError(t, s.Create(context.Background(), d))
		out = append(out, d)
	}
	return out
}

func TestMatch(t *testing.T) {
	ctx := requestcontext.WithTime(context.Background(), now)

	t.Run("returns eligible donors in matching order", func(t *testing.T) {
		s := store.NewInMemoryStore()
		seeded := seed(t, s, 7, donormodels.BloodGroupOPos, "Chennai")
		seed(t, s, 3, donormodels.BloodGroupONeg, "Chennai")
		seed(t, s, 2, donormodels.BloodGroupOPos, "Madurai")

		donors, err := New(storeDirectory{s}).Match(ctx, "Chennai", donormodels.BloodGroupOPos)
		require.NoError(t, err)
		require.Len(t, donors, 7)
		for i, d := range donors {
			assert.Equal(t, seeded[i].ID, d.ID)
		}
	})

	t.Run("bounds the snapshot by the cap", func(t *testing.T) {
		s := store.NewInMemoryStore()
		seed(t, s, 8, donormodels.BloodGroupBPos, "Coimbatore")

		e := New(storeDirectory{s}, WithCap(3))
		donors, err := e.Match(ctx, "Coimbatore", donormodels.BloodGroupBPos)
		require.NoError(t, err)
		assert.Len(t, donors, 3)
		assert.Equal(t, 3, e.Cap())
	})

	t.Run("empty match is not an error", func(t *testing.T) {
		donors, err := New(storeDirectory{store.NewInMemoryStore()}).Match(ctx, "Chennai", donormodels.BloodGroupABNeg)
		require.NoError(t, err)
		assert.Empty(t, donors)
	})

	t.Run("rejects unknown filters", func(t *testing.T) {
		_, err := New(storeDirectory{store.NewInMemoryStore()}).Match(ctx, "Atlantis", donormodels.BloodGroupOPos)
		assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
	})

	t.Run("propagates directory failures", func(t *testing.T) {
		_, err := New(failingDirectory{}).Match(ctx, "Chennai", donormodels.BloodGroupOPos)
		assert.EqualError(t, err, "connection reset")
	})
}
