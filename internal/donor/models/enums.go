package models

import (
	"slices"
	"strings"
)

// BloodGroup is one of the eight ABO/Rh combinations.
type BloodGroup string

const (
	BloodGroupAPos  BloodGroup = "A+"
	BloodGroupANeg  BloodGroup = "A-"
	BloodGroupBPos  BloodGroup = "B+"
	BloodGroupBNeg  BloodGroup = "B-"
	BloodGroupOPos  BloodGroup = "O+"
	BloodGroupONeg  BloodGroup = "O-"
	BloodGroupABPos BloodGroup = "AB+"
	BloodGroupABNeg BloodGroup = "AB-"
)

var bloodGroups = []BloodGroup{
	BloodGroupAPos, BloodGroupANeg, BloodGroupBPos, BloodGroupBNeg,
	BloodGroupOPos, BloodGroupONeg, BloodGroupABPos, BloodGroupABNeg,
}

func (b BloodGroup) IsValid() bool {
	return slices.Contains(bloodGroups, b)
}

func (b BloodGroup) String() string { return string(b) }

// BloodGroupFromQuery restores a "+" that arrived unescaped in a query string
// and was decoded to a space ("O+" -> "O ").
func BloodGroupFromQuery(raw string) BloodGroup {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && strings.HasSuffix(raw, " ") && !strings.HasSuffix(trimmed, "+") && !strings.HasSuffix(trimmed, "-") {
		trimmed += "+"
	}
	return BloodGroup(trimmed)
}

// District is one of the fixed administrative regions donors and requests are matched on.
type District string

var districts = []District{
	"Ariyalur", "Chengalpattu", "Chennai", "Coimbatore", "Cuddalore",
	"Dharmapuri", "Dindigul", "Erode", "Kallakurichi", "Kanchipuram",
	"Kanyakumari", "Karur", "Krishnagiri", "Madurai", "Mayiladuthurai",
	"Nagapattinam", "Namakkal", "Nilgiris", "Perambalur", "Pudukkottai",
	"Ramanathapuram", "Ranipet", "Salem", "Sivaganga", "Tenkasi",
	"Thanjavur", "Theni", "Thoothukudi", "Tiruchirappalli", "Tirunelveli",
	"Tirupathur", "Tiruppur", "Tiruvallur", "Tiruvannamalai", "Tiruvarur",
	"Vellore", "Viluppuram", "Virudhunagar",
}

func (d District) IsValid() bool {
	return slices.Contains(districts, d)
}

func (d District) String() string { return string(d) }

// Districts returns the enumerated districts in alphabetical order.
func Districts() []District {
	return slices.Clone(districts)
}

type Gender string

const (
	GenderMale           Gender = "Male"
	GenderFemale         Gender = "Female"
	GenderOther          Gender = "Other"
	GenderPreferNotToSay Gender = "Prefer not to say"
)

func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther, GenderPreferNotToSay:
		return true
	}
	return false
}

// Availability is the directory-wide outreach tag, overwritten by the most
// recent ledger transition on any request.
type Availability string

const (
	AvailabilityAvailable   Availability = "available"
	AvailabilityUnavailable Availability = "unavailable"
	AvailabilityOther       Availability = "other"
)

func (a Availability) IsValid() bool {
	switch a {
	case AvailabilityAvailable, AvailabilityUnavailable, AvailabilityOther:
		return true
	}
	return false
}

// ContactOutcome is a request-independent outreach result recorded on a donor.
type ContactOutcome string

const (
	ContactOutcomeContacted       ContactOutcome = "contacted"
	ContactOutcomeUnavailable     ContactOutcome = "unavailable"
	ContactOutcomeDonatedRecently ContactOutcome = "donated_recently"
)

func (c ContactOutcome) IsValid() bool {
	switch c {
	case ContactOutcomeContacted, ContactOutcomeUnavailable, ContactOutcomeDonatedRecently:
		return true
	}
	return false
}
