package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "donorlink/pkg/domain"
	dErrors "donorlink/pkg/domain-errors"
)

var now = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func validRegistration() Registration {
	return Registration{
		FullName:   "  Priya Raman ",
		Email:      "Priya@Example.COM",
		Phone:      "9876543210",
		Age:        29,
		Gender:     GenderFemale,
		BloodGroup: BloodGroupOPos,
		District:   "Chennai",
	}
}

func TestNewDonor(t *testing.T) {
	t.Run("applies defaults and normalization", func(t *testing.T) {
		d, err := NewDonor(id.NewDonorID(), validRegistration(), now)
		require.NoError(t, err)

		assert.Equal(t, "Priya Raman", d.FullName)
		assert.Equal(t, "priya@example.com", d.Email)
		assert.True(t, d.WillingToDonate)
		assert.True(t, d.IsActive)
		assert.Equal(t, AvailabilityAvailable, d.Availability)
		assert.Equal(t, now, d.RegistrationDate)
		assert.Equal(t, now, d.LastUpdated)
		assert.Nil(t, d.LastDonationDate)
	})

	t.Run("honours explicit unwillingness", func(t *testing.T) {
		reg := validRegistration()
		no := false
		reg.WillingToDonate = &no
		d, err := NewDonor(id.NewDonorID(), reg, now)
		require.NoError(t, err)
		assert.False(t, d.WillingToDonate)
		assert.False(t, d.Matchable())
	})

	t.Run("reports every failing field", func(t *testing.T) {
		reg := Registration{
			Email:            "not-an-email",
			Phone:            "12345",
			Age:              70,
			Gender:           "robot",
			BloodGroup:       "C+",
			District:         "Atlantis",
			EmergencyContact: "abc",
		}
		_, err := NewDonor(id.NewDonorID(), reg, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Equal(t, []string{
			"Full name is required",
			"Please enter a valid email",
			"Phone number must be 10 digits",
			"Age must be at most 65",
			`"robot" is not a valid gender`,
			`"C+" is not a valid blood group`,
			`"Atlantis" is not a valid district`,
			"Emergency contact must be 10 digits",
		}, dErrors.DetailsOf(err))
	})

	t.Run("age boundaries", func(t *testing.T) {
		for age, ok := range map[int]bool{17: false, 18: true, 65: true, 66: false} {
			reg := validRegistration()
			reg.Age = age
			_, err := NewDonor(id.NewDonorID(), reg, now)
			assert.Equal(t, ok, err == nil, "age %d", age)
		}
	})

	t.Run("missing age is reported as required", func(t *testing.T) {
		reg := validRegistration()
		reg.Age = 0
		_, err := NewDonor(id.NewDonorID(), reg, now)
		assert.Contains(t, dErrors.DetailsOf(err), "Age is required")
	})
}

func TestIsEligible(t *testing.T) {
	daysAgo := func(d int) *time.Time {
		ts := now.Add(-time.Duration(d) * 24 * time.Hour)
		return &ts
	}
	exactly := now.Add(-DonationInterval)

	tests := []struct {
		name string
		last *time.Time
		want bool
	}{
		{"never donated", nil, true},
		{"donated 10 days ago", daysAgo(10), false},
		{"exactly 90 days ago is not yet eligible", &exactly, false},
		{"91 days ago", daysAgo(91), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEligible(&Donor{LastDonationDate: tt.last}, now))
		})
	}

	assert.Equal(t, time.Time{}, NextEligibleAt(&Donor{}, now))
	assert.Equal(t, daysAgo(10).Add(DonationInterval), NextEligibleAt(&Donor{LastDonationDate: daysAgo(10)}, now))
}

func TestApplyContact(t *testing.T) {
	d := &Donor{LastUpdated: now.Add(-time.Hour)}

	d.ApplyContact(ContactOutcomeContacted, now)
	assert.Nil(t, d.LastDonationDate)
	assert.Equal(t, now, d.LastUpdated)

	later := now.Add(time.Minute)
	d.ApplyContact(ContactOutcomeDonatedRecently, later)
	require.NotNil(t, d.LastDonationDate)
	assert.Equal(t, later, *d.LastDonationDate)
	assert.False(t, IsEligible(d, later))
}

func TestSortForMatching(t *testing.T) {
	mk := func(n byte, a Availability, updated time.Time) *Donor {
		var u uuid.UUID
		u[15] = n
		return &Donor{ID: id.DonorID(u), Availability: a, LastUpdated: updated}
	}
	older := now.Add(-time.Hour)
	d1 := mk(1, AvailabilityUnavailable, now)
	d2 := mk(2, AvailabilityAvailable, older)
	d3 := mk(3, AvailabilityAvailable, now)
	d4 := mk(4, AvailabilityOther, now)
	d5 := mk(5, AvailabilityAvailable, now)

	donors := []*Donor{d1, d2, d3, d4, d5}
	SortForMatching(donors)

	assert.Equal(t, []*Donor{d3, d5, d2, d4, d1}, donors)
}

func TestSortForSearch(t *testing.T) {
	mk := func(n byte, last *time.Time) *Donor {
		var u uuid.UUID
		u[15] = n
		return &Donor{ID: id.DonorID(u), LastDonationDate: last}
	}
	early := now.Add(-200 * 24 * time.Hour)
	late := now.Add(-5 * 24 * time.Hour)
	d1 := mk(1, &late)
	d2 := mk(2, nil)
	d3 := mk(3, &early)
	d4 := mk(4, nil)

	donors := []*Donor{d1, d2, d3, d4}
	SortForSearch(donors)

	assert.Equal(t, []*Donor{d2, d4, d3, d1}, donors)
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 5))
	assert.Equal(t, 1, TotalPages(5, 5))
	assert.Equal(t, 2, TotalPages(7, 5))
	assert.Equal(t, 0, TotalPages(7, 0))
}

func TestBloodGroupFromQuery(t *testing.T) {
	assert.Equal(t, BloodGroupOPos, BloodGroupFromQuery("O "))
	assert.Equal(t, BloodGroupABPos, BloodGroupFromQuery("AB+"))
	assert.Equal(t, BloodGroupBNeg, BloodGroupFromQuery(" B-"))
	assert.Equal(t, BloodGroup(""), BloodGroupFromQuery(""))
}
