package models

import (
	"bytes"
	"cmp"
	"slices"
)

// SortForMatching orders donors the way candidate snapshots are taken:
// availability ascending ("available" first), then most recently updated,
// then id for a stable tie-break.
func SortForMatching(donors []*Donor) {
	slices.SortStableFunc(donors, func(a, b *Donor) int {
		if c := cmp.Compare(a.Availability, b.Availability); c != 0 {
			return c
		}
		if c := b.LastUpdated.Compare(a.LastUpdated); c != 0 {
			return c
		}
		return compareIDs(a, b)
	})
}

// SortForSearch orders donors by last donation ascending with never-donated
// donors first, then id.
func SortForSearch(donors []*Donor) {
	slices.SortStableFunc(donors, func(a, b *Donor) int {
		switch {
		case a.LastDonationDate == nil && b.LastDonationDate != nil:
			return -1
		case a.LastDonationDate != nil && b.LastDonationDate == nil:
			return 1
		case a.LastDonationDate != nil && b.LastDonationDate != nil:
			if c := a.LastDonationDate.Compare(*b.LastDonationDate); c != 0 {
				return c
			}
		}
		return compareIDs(a, b)
	})
}

func compareIDs(a, b *Donor) int {
	return bytes.Compare(a.ID[:], b.ID[:])
}
