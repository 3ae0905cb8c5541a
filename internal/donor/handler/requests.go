package handler

import (
	"strings"
	"time"

	"donorlink/internal/donor/models"
	dErrors "donorlink/pkg/domain-errors"
)

// dateLayouts are accepted for lastDonationDate: full timestamps and plain dates.
var dateLayouts = []string{time.RFC3339Nano, time.DateOnly}

// RegisterRequest is the HTTP body for POST /donors/register.
type RegisterRequest struct {
	FullName          string `json:"fullName"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Age               *int   `json:"age"`
	Gender            string `json:"gender"`
	BloodGroup        string `json:"bloodGroup"`
	District          string `json:"district"`
	Address           string `json:"address"`
	LastDonationDate  string `json:"lastDonationDate"`
	WillingToDonate   *bool  `json:"willingToDonate"`
	EmergencyContact  string `json:"emergencyContact"`
	MedicalConditions string `json:"medicalConditions"`

	lastDonation *time.Time
}

// Validate parses the optional donation date. Field rules live on models.Registration.
func (r *RegisterRequest) Validate() error {
	raw := strings.TrimSpace(r.LastDonationDate)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			r.lastDonation = &t
			return nil
		}
	}
	return dErrors.Validation("Validation failed", "lastDonationDate must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
}

// ToRegistration converts the body into the model input.
func (r *RegisterRequest) ToRegistration() models.Registration {
	age := 0
	if r.Age != nil {
		age = *r.Age
	}
	return models.Registration{
		FullName:          r.FullName,
		Email:             r.Email,
		Phone:             r.Phone,
		Age:               age,
		Gender:            models.Gender(strings.TrimSpace(r.Gender)),
		BloodGroup:        models.BloodGroup(strings.TrimSpace(r.BloodGroup)),
		District:          models.District(strings.TrimSpace(r.District)),
		Address:           r.Address,
		LastDonationDate:  r.lastDonation,
		WillingToDonate:   r.WillingToDonate,
		EmergencyContact:  r.EmergencyContact,
		MedicalConditions: r.MedicalConditions,
	}
}

// ContactRequest is the HTTP body for POST /donors/{id}/contact.
type ContactRequest struct {
	Status string `json:"status"`
}

func (r *ContactRequest) Normalize() {
	r.Status = strings.TrimSpace(r.Status)
}

func (r *ContactRequest) Validate() error {
	if r.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	if !models.ContactOutcome(r.Status).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "status must be one of contacted, unavailable, donated_recently")
	}
	return nil
}
