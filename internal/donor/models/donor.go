package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	id "donorlink/pkg/domain"
	dErrors "donorlink/pkg/domain-errors"
)

const (
	MinAge = 18
	MaxAge = 65
)

var (
	emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	phonePattern = regexp.MustCompile(`^\d{10}$`)
)

// Donor is a registered blood donor.
//
// Invariants:
//   - Email (lowercased) and Phone are unique across all donors
//   - Age is within [MinAge, MaxAge]
//   - BloodGroup, District and Gender are enumerated values
//   - Donors are never deleted; IsActive=false removes them from matching
type Donor struct {
	ID                id.DonorID
	FullName          string
	Email             string
	Phone             string
	Age               int
	Gender            Gender
	BloodGroup        BloodGroup
	District          District
	Address           string
	LastDonationDate  *time.Time
	WillingToDonate   bool
	EmergencyContact  string
	MedicalConditions string
	IsActive          bool
	Availability      Availability
	RegistrationDate  time.Time
	LastUpdated       time.Time
}

// Registration carries the caller-supplied fields for a new donor.
// Age zero means the caller omitted it.
type Registration struct {
	FullName          string
	Email             string
	Phone             string
	Age               int
	Gender            Gender
	BloodGroup        BloodGroup
	District          District
	Address           string
	LastDonationDate  *time.Time
	WillingToDonate   *bool
	EmergencyContact  string
	MedicalConditions string
}

// Normalize trims free text and lowercases the email.
func (r *Registration) Normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.Address = strings.TrimSpace(r.Address)
	r.EmergencyContact = strings.TrimSpace(r.EmergencyContact)
	r.MedicalConditions = strings.TrimSpace(r.MedicalConditions)
}

// Problems lists one message per failing field, in field order.
func (r *Registration) Problems() []string {
	var problems []string
	if r.FullName == "" {
		problems = append(problems, "Full name is required")
	}
	switch {
	case r.Email == "":
		problems = append(problems, "Email is required")
	case !emailPattern.MatchString(r.Email):
		problems = append(problems, "Please enter a valid email")
	}
	switch {
	case r.Phone == "":
		problems = append(problems, "Phone number is required")
	case !phonePattern.MatchString(r.Phone):
		problems = append(problems, "Phone number must be 10 digits")
	}
	switch {
	case r.Age == 0:
		problems = append(problems, "Age is required")
	case r.Age < MinAge:
		problems = append(problems, fmt.Sprintf("Age must be at least %d", MinAge))
	case r.Age > MaxAge:
		problems = append(problems, fmt.Sprintf("Age must be at most %d", MaxAge))
	}
	switch {
	case r.Gender == "":
		problems = append(problems, "Gender is required")
	case !r.Gender.IsValid():
		problems = append(problems, fmt.Sprintf("%q is not a valid gender", r.Gender))
	}
	switch {
	case r.BloodGroup == "":
		problems = append(problems, "Blood group is required")
	case !r.BloodGroup.IsValid():
		problems = append(problems, fmt.Sprintf("%q is not a valid blood group", r.BloodGroup))
	}
	switch {
	case r.District == "":
		problems = append(problems, "District is required")
	case !r.District.IsValid():
		problems = append(problems, fmt.Sprintf("%q is not a valid district", r.District))
	}
	if r.EmergencyContact != "" && !phonePattern.MatchString(r.EmergencyContact) {
		problems = append(problems, "Emergency contact must be 10 digits")
	}
	return problems
}

// NewDonor validates a registration and builds an active, available donor.
func NewDonor(donorID id.DonorID, reg Registration, now time.Time) (*Donor, error) {
	reg.Normalize()
	if problems := reg.Problems(); len(problems) > 0 {
		return nil, dErrors.Validation("Validation failed", problems...)
	}
	if donorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "donor id is required")
	}
	willing := true
	if reg.WillingToDonate != nil {
		willing = *reg.WillingToDonate
	}
	return &Donor{
		ID:                donorID,
		FullName:          reg.FullName,
		Email:             reg.Email,
		Phone:             reg.Phone,
		Age:               reg.Age,
		Gender:            reg.Gender,
		BloodGroup:        reg.BloodGroup,
		District:          reg.District,
		Address:           reg.Address,
		LastDonationDate:  reg.LastDonationDate,
		WillingToDonate:   willing,
		EmergencyContact:  reg.EmergencyContact,
		MedicalConditions: reg.MedicalConditions,
		IsActive:          true,
		Availability:      AvailabilityAvailable,
		RegistrationDate:  now,
		LastUpdated:       now,
	}, nil
}

// Matchable reports whether the donor may appear in directory queries.
func (d *Donor) Matchable() bool {
	return d.IsActive && d.WillingToDonate
}

// ApplyAvailability sets the directory availability tag.
func (d *Donor) ApplyAvailability(a Availability, now time.Time) {
	d.Availability = a
	d.LastUpdated = now
}

// ApplyContact records a request-independent outreach outcome. A recent
// donation stamps LastDonationDate; every outcome bumps LastUpdated.
func (d *Donor) ApplyContact(outcome ContactOutcome, now time.Time) {
	if outcome == ContactOutcomeDonatedRecently {
		t := now
		d.LastDonationDate = &t
	}
	d.LastUpdated = now
}

// Query selects matchable donors by exact district and blood group.
type Query struct {
	District   District
	BloodGroup BloodGroup
}

// Validate requires both filters.
func (q Query) Validate() error {
	if q.District == "" || q.BloodGroup == "" {
		return dErrors.New(dErrors.CodeBadRequest, "District and blood group are required")
	}
	return nil
}

// PageRequest is a 1-indexed page with a bounded size.
type PageRequest struct {
	Page  int
	Limit int
}

// Offset is the number of rows skipped before the page.
func (p PageRequest) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// TotalPages is ceil(total/size), zero when size is not positive.
func TotalPages(total, size int) int {
	if size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// SearchResult is one page of an availability-biased search.
type SearchResult struct {
	Donors         []*Donor
	Total          int
	AvailableCount int
}
