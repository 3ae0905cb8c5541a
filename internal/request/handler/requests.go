package handler

import (
	"strings"

	donormodels "donorlink/internal/donor/models"
	"donorlink/internal/request/models"
	"donorlink/internal/request/service"
	id "donorlink/pkg/domain"
	dErrors "donorlink/pkg/domain-errors"
)

// CreateRequest is the body of POST /blood-requests/create.
type CreateRequest struct {
	PatientName     string `json:"patientName"`
	HospitalName    string `json:"hospitalName"`
	ContactNumber   string `json:"contactNumber"`
	BloodGroup      string `json:"bloodGroup"`
	UnitsRequired   *int   `json:"unitsRequired"`
	Urgency         string `json:"urgency"`
	District        string `json:"district"`
	AdditionalNotes string `json:"additionalNotes"`
	SessionID       string `json:"sessionId"`
	CurrentPage     *int   `json:"currentPage"`
}

// Validate rejects explicit non-positive counts that the defaults would
// otherwise mask. Field rules live on models.Submission.
func (r *CreateRequest) Validate() error {
	var problems []string
	if r.UnitsRequired != nil && *r.UnitsRequired < models.MinUnits {
		problems = append(problems, "At least 1 unit is required")
	}
	if r.CurrentPage != nil && *r.CurrentPage < 1 {
		problems = append(problems, "currentPage must be a positive integer")
	}
	if len(problems) > 0 {
		return dErrors.Validation("Validation failed", problems...)
	}
	return nil
}

func (r *CreateRequest) ToSubmission() models.Submission {
	sub := models.Submission{
		PatientName:     r.PatientName,
		HospitalName:    r.HospitalName,
		ContactNumber:   r.ContactNumber,
		BloodGroup:      donormodels.BloodGroup(strings.TrimSpace(r.BloodGroup)),
		Urgency:         models.Urgency(strings.TrimSpace(r.Urgency)),
		District:        donormodels.District(strings.TrimSpace(r.District)),
		AdditionalNotes: r.AdditionalNotes,
		SessionID:       r.SessionID,
	}
	if r.UnitsRequired != nil {
		sub.UnitsRequired = *r.UnitsRequired
	}
	if r.CurrentPage != nil {
		sub.CurrentPage = *r.CurrentPage
	}
	return sub
}

// StatusUpdateRequest is one ledger transition.
type StatusUpdateRequest struct {
	DonorID string `json:"donorId"`
	Status  string `json:"status"`
	Notes   string `json:"notes"`

	donorID id.DonorID
}

func (r *StatusUpdateRequest) Normalize() {
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	r.Notes = strings.TrimSpace(r.Notes)
}

// Validate requires a status. A donor id that does not parse cannot be in any
// snapshot, so it is kept as the zero id and treated as a non-member: 404 on
// the single route, skipped in a batch.
func (r *StatusUpdateRequest) Validate() error {
	if r.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	if donorID, err := id.ParseDonorID(r.DonorID); err == nil {
		r.donorID = donorID
	}
	return nil
}

func (r *StatusUpdateRequest) ToChange() service.StatusChange {
	return service.StatusChange{
		DonorID: r.donorID,
		Status:  models.ContactStatus(r.Status),
		Notes:   r.Notes,
	}
}

// BatchUpdateRequest is the body of POST /blood-requests/{requestId}/batch-update-status.
type BatchUpdateRequest struct {
	Updates []StatusUpdateRequest `json:"updates"`
}

func (r *BatchUpdateRequest) Normalize() {
	for i := range r.Updates {
		r.Updates[i].Normalize()
	}
}

func (r *BatchUpdateRequest) Validate() error {
	if len(r.Updates) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "Updates array is required")
	}
	for i := range r.Updates {
		if err := r.Updates[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *BatchUpdateRequest) ToChanges() []service.StatusChange {
	out := make([]service.StatusChange, len(r.Updates))
	for i := range r.Updates {
		out[i] = r.Updates[i].ToChange()
	}
	return out
}

// CompleteRequest is the body of POST /blood-requests/{requestId}/complete.
// An empty status means fulfilled.
type CompleteRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (r *CompleteRequest) Normalize() {
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	r.Notes = strings.TrimSpace(r.Notes)
}
