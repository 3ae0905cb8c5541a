package service

import (
	"time"

	"donorlink/internal/request/models"
)

type requestCreatedPayload struct {
	RequestID     string    `json:"requestId"`
	RequestNumber string    `json:"requestNumber"`
	BloodGroup    string    `json:"bloodGroup"`
	District      string    `json:"district"`
	Urgency       string    `json:"urgency"`
	UnitsRequired int       `json:"unitsRequired"`
	MatchedDonors int       `json:"matchedDonors"`
	RequestedAt   time.Time `json:"requestedAt"`
}

type donorStatusPayload struct {
	RequestID string    `json:"requestId"`
	DonorID   string    `json:"donorId"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type requestCompletedPayload struct {
	RequestID   string     `json:"requestId"`
	Status      string     `json:"status"`
	FulfilledAt *time.Time `json:"fulfilledAt,omitempty"`
	CompletedAt time.Time  `json:"completedAt"`
}

func createdPayload(r *models.BloodRequest) requestCreatedPayload {
	return requestCreatedPayload{
		RequestID:     r.ID.String(),
		RequestNumber: r.RequestNumber,
		BloodGroup:    r.BloodGroup.String(),
		District:      r.District.String(),
		Urgency:       string(r.Urgency),
		UnitsRequired: r.UnitsRequired,
		MatchedDonors: len(r.Contacts),
		RequestedAt:   r.RequestedAt,
	}
}

func statusPayload(r *models.BloodRequest, u models.StatusUpdate) donorStatusPayload {
	return donorStatusPayload{
		RequestID: r.ID.String(),
		DonorID:   u.DonorID.String(),
		OldStatus: string(u.OldStatus),
		NewStatus: string(u.NewStatus),
		UpdatedAt: u.UpdatedAt,
	}
}

func completedPayload(r *models.BloodRequest) requestCompletedPayload {
	return requestCompletedPayload{
		RequestID:   r.ID.String(),
		Status:      string(r.Status),
		FulfilledAt: r.FulfilledAt,
		CompletedAt: r.LastUpdated,
	}
}
