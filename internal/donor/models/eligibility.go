package models

import "time"

// DonationInterval is the minimum gap between donations.
const DonationInterval = 90 * 24 * time.Hour

// IsEligible reports whether the donor may donate at now: never donated, or
// the last donation is strictly more than DonationInterval ago. Advisory only;
// directory queries never filter on it.
func IsEligible(d *Donor, now time.Time) bool {
	if d == nil || d.LastDonationDate == nil {
		return true
	}
	return now.Sub(*d.LastDonationDate) > DonationInterval
}

// NextEligibleAt returns when the donor becomes eligible, or the zero time when already eligible.
func NextEligibleAt(d *Donor, now time.Time) time.Time {
	if IsEligible(d, now) {
		return time.Time{}
	}
	return d.LastDonationDate.Add(DonationInterval)
}
