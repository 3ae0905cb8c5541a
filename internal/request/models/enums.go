package models

import donormodels "donorlink/internal/donor/models"

// Status is the request lifecycle status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusFulfilled  Status = "fulfilled"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusFulfilled, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyEmergency:
		return true
	}
	return false
}

// ContactStatus is the per-donor, per-request outreach outcome.
type ContactStatus string

const (
	ContactNotContacted ContactStatus = "not_contacted"
	ContactContacted    ContactStatus = "contacted"
	ContactConfirmed    ContactStatus = "confirmed"
	ContactDeclined     ContactStatus = "declined"
	ContactUnavailable  ContactStatus = "unavailable"
)

func (c ContactStatus) IsValid() bool {
	switch c {
	case ContactNotContacted, ContactContacted, ContactConfirmed, ContactDeclined, ContactUnavailable:
		return true
	}
	return false
}

// AvailabilityFor maps a ledger transition onto the directory availability tag.
func AvailabilityFor(c ContactStatus) donormodels.Availability {
	switch c {
	case ContactConfirmed:
		return donormodels.AvailabilityAvailable
	case ContactDeclined, ContactUnavailable:
		return donormodels.AvailabilityUnavailable
	default:
		return donormodels.AvailabilityOther
	}
}
