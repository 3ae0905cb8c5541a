package handler

import (
	"time"

	"donorlink/internal/donor/models"
)

// DonorResponse is the full donor record returned on registration.
type DonorResponse struct {
	ID                string     `json:"id"`
	FullName          string     `json:"fullName"`
	Email             string     `json:"email"`
	Phone             string     `json:"phone"`
	Age               int        `json:"age"`
	Gender            string     `json:"gender"`
	BloodGroup        string     `json:"bloodGroup"`
	District          string     `json:"district"`
	Address           string     `json:"address,omitempty"`
	LastDonationDate  *time.Time `json:"lastDonationDate"`
	WillingToDonate   bool       `json:"willingToDonate"`
	EmergencyContact  string     `json:"emergencyContact,omitempty"`
	MedicalConditions string     `json:"medicalConditions"`
	IsActive          bool       `json:"isActive"`
	Availability      string     `json:"availability"`
	RegistrationDate  time.Time  `json:"registrationDate"`
	LastUpdated       time.Time  `json:"lastUpdated"`
}

type RegisterResponse struct {
	Message string        `json:"message"`
	Donor   DonorResponse `json:"donor"`
}

func FromDonor(d *models.Donor) DonorResponse {
	return DonorResponse{
		ID:                d.ID.String(),
		FullName:          d.FullName,
		Email:             d.Email,
		Phone:             d.Phone,
		Age:               d.Age,
		Gender:            string(d.Gender),
		BloodGroup:        string(d.BloodGroup),
		District:          string(d.District),
		Address:           d.Address,
		LastDonationDate:  d.LastDonationDate,
		WillingToDonate:   d.WillingToDonate,
		EmergencyContact:  d.EmergencyContact,
		MedicalConditions: d.MedicalConditions,
		IsActive:          d.IsActive,
		Availability:      string(d.Availability),
		RegistrationDate:  d.RegistrationDate,
		LastUpdated:       d.LastUpdated,
	}
}

// SearchDonor is one row of GET /donors/search.
type SearchDonor struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Phone            string     `json:"phone"`
	BloodGroup       string     `json:"bloodGroup"`
	District         string     `json:"district"`
	LastDonationDate *time.Time `json:"lastDonationDate"`
	IsEligible       bool       `json:"isEligible"`
}

type SearchResponse struct {
	Page        int           `json:"page"`
	TotalPages  int           `json:"totalPages"`
	TotalDonors int           `json:"totalDonors"`
	Donors      []SearchDonor `json:"donors"`
}

func FromSearch(donors []*models.Donor, total int, page models.PageRequest, now time.Time) SearchResponse {
	rows := make([]SearchDonor, 0, len(donors))
	for _, d := range donors {
		rows = append(rows, SearchDonor{
			ID:               d.ID.String(),
			Name:             d.FullName,
			Phone:            d.Phone,
			BloodGroup:       string(d.BloodGroup),
			District:         string(d.District),
			LastDonationDate: d.LastDonationDate,
			IsEligible:       models.IsEligible(d, now),
		})
	}
	return SearchResponse{
		Page:        page.Page,
		TotalPages:  models.TotalPages(total, page.Limit),
		TotalDonors: total,
		Donors:      rows,
	}
}

// AvailableDonor is one row of GET /blood-requests/search/available.
type AvailableDonor struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	BloodGroup   string    `json:"bloodGroup"`
	District     string    `json:"district"`
	Availability string    `json:"availability"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

type AvailableResponse struct {
	Donors         []AvailableDonor `json:"donors"`
	AvailableCount int              `json:"availableCount"`
	CurrentPage    int              `json:"currentPage"`
	TotalPages     int              `json:"totalPages"`
}

func FromAvailable(res *models.SearchResult, page models.PageRequest) AvailableResponse {
	rows := make([]AvailableDonor, 0, len(res.Donors))
	for _, d := range res.Donors {
		rows = append(rows, AvailableDonor{
			ID:           d.ID.String(),
			Name:         d.FullName,
			Phone:        d.Phone,
			BloodGroup:   string(d.BloodGroup),
			District:     string(d.District),
			Availability: string(d.Availability),
			LastUpdated:  d.LastUpdated,
		})
	}
	return AvailableResponse{
		Donors:         rows,
		AvailableCount: res.AvailableCount,
		CurrentPage:    page.Page,
		TotalPages:     models.TotalPages(res.Total, page.Limit),
	}
}

// ContactedDonor is the trimmed donor returned after recording a contact.
type ContactedDonor struct {
	ID               string     `json:"id"`
	FullName         string     `json:"fullName"`
	Phone            string     `json:"phone"`
	LastDonationDate *time.Time `json:"lastDonationDate"`
}

type ContactResponse struct {
	Message string         `json:"message"`
	Donor   ContactedDonor `json:"donor"`
}

func FromContact(d *models.Donor, outcome models.ContactOutcome) ContactResponse {
	return ContactResponse{
		Message: "Donor marked as " + string(outcome),
		Donor: ContactedDonor{
			ID:               d.ID.String(),
			FullName:         d.FullName,
			Phone:            d.Phone,
			LastDonationDate: d.LastDonationDate,
		},
	}
}
