package handler

import (
	"fmt"
	"time"

	donormodels "donorlink/internal/donor/models"
	"donorlink/internal/request/models"
	"donorlink/internal/request/service"
	id "donorlink/pkg/domain"
)

// MatchedDonor is one snapshot row on a display page. ContactStatus is
// omitted at creation, where every entry is not_contacted.
type MatchedDonor struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone"`
	BloodGroup    string     `json:"bloodGroup"`
	Availability  string     `json:"availability"`
	LastUpdated   *time.Time `json:"lastUpdated"`
	ContactStatus string     `json:"contactStatus,omitempty"`
}

type PaginationResponse struct {
	CurrentPage     int  `json:"currentPage"`
	TotalPages      int  `json:"totalPages"`
	TotalDonors     int  `json:"totalDonors"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

type CreateResponse struct {
	Message       string             `json:"message"`
	RequestID     string             `json:"requestId"`
	RequestNumber string             `json:"requestNumber"`
	Donors        []MatchedDonor     `json:"donors"`
	Pagination    PaginationResponse `json:"pagination"`
}

type PageResponse struct {
	Donors     []MatchedDonor     `json:"donors"`
	Pagination PaginationResponse `json:"pagination"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type BatchResponse struct {
	Message      string `json:"message"`
	UpdatedCount int    `json:"updatedCount"`
}

type CompleteResponse struct {
	Message       string `json:"message"`
	RequestNumber string `json:"requestNumber"`
}

// DonorRef is a ledger donor populated from the directory. It is null when
// the directory no longer has the donor.
type DonorRef struct {
	ID         string `json:"id"`
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	BloodGroup string `json:"bloodGroup"`
}

type ContactedDonor struct {
	DonorID       string     `json:"donorId"`
	Donor         *DonorRef  `json:"donor"`
	ContactStatus string     `json:"contactStatus"`
	ContactTime   *time.Time `json:"contactTime"`
	Notes         string     `json:"notes"`
}

type StatusUpdateResponse struct {
	DonorID   string    `json:"donorId"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type SearchSessionResponse struct {
	SessionID     string                 `json:"sessionId"`
	CurrentPage   int                    `json:"currentPage"`
	DonorsPerPage int                    `json:"donorsPerPage"`
	TotalPages    int                    `json:"totalPages"`
	StatusUpdates []StatusUpdateResponse `json:"statusUpdates,omitempty"`
}

// RequestResponse is the full request document.
type RequestResponse struct {
	ID                   string                `json:"id"`
	RequestNumber        string                `json:"requestNumber"`
	PatientName          string                `json:"patientName"`
	HospitalName         string                `json:"hospitalName"`
	ContactNumber        string                `json:"contactNumber"`
	BloodGroup           string                `json:"bloodGroup"`
	UnitsRequired        int                   `json:"unitsRequired"`
	Urgency              string                `json:"urgency"`
	District             string                `json:"district"`
	AdditionalNotes      string                `json:"additionalNotes"`
	Status               string                `json:"status"`
	RequestedAt          time.Time             `json:"requestedAt"`
	FulfilledAt          *time.Time            `json:"fulfilledAt"`
	SubmittedByIP        string                `json:"submittedByIp"`
	SubmittedByUserAgent string                `json:"submittedByUserAgent"`
	SubmittedFrom        string                `json:"submittedFrom"`
	LastUpdated          time.Time             `json:"lastUpdated"`
	ContactedDonors      []ContactedDonor      `json:"contactedDonors"`
	SearchSession        SearchSessionResponse `json:"searchSession"`
}

type DetailResponse struct {
	Request RequestResponse `json:"request"`
}

type ListResponse struct {
	Count       int               `json:"count"`
	Total       int               `json:"total"`
	TotalPages  int               `json:"totalPages"`
	CurrentPage int               `json:"currentPage"`
	Requests    []RequestResponse `json:"requests"`
}

// RequestSummary is the phone lookup view, without ledger or audit trail.
type RequestSummary struct {
	ID              string    `json:"id"`
	RequestNumber   string    `json:"requestNumber"`
	PatientName     string    `json:"patientName"`
	HospitalName    string    `json:"hospitalName"`
	BloodGroup      string    `json:"bloodGroup"`
	UnitsRequired   int       `json:"unitsRequired"`
	District        string    `json:"district"`
	Urgency         string    `json:"urgency"`
	ContactNumber   string    `json:"contactNumber"`
	AdditionalNotes string    `json:"additionalNotes"`
	RequestedAt     time.Time `json:"requestedAt"`
	Status          string    `json:"status"`
}

type SummaryResponse struct {
	Request RequestSummary `json:"request"`
}

func FromCreate(res *service.PageResult) CreateResponse {
	return CreateResponse{
		Message:       "Blood request created successfully",
		RequestID:     res.Request.ID.String(),
		RequestNumber: res.Request.RequestNumber,
		Donors:        matchedDonors(res.Donors, false),
		Pagination:    fromPagination(res.Pagination),
	}
}

func FromPage(res *service.PageResult) PageResponse {
	return PageResponse{
		Donors:     matchedDonors(res.Donors, true),
		Pagination: fromPagination(res.Pagination),
	}
}

func FromComplete(r *models.BloodRequest) CompleteResponse {
	return CompleteResponse{
		Message:       fmt.Sprintf("Blood request marked as %s", r.Status),
		RequestNumber: r.RequestNumber,
	}
}

func FromDetail(d *service.Detail) DetailResponse {
	return DetailResponse{Request: fromRequest(d.Request, d.Donors, true)}
}

func FromList(res *service.ListResult) ListResponse {
	requests := make([]RequestResponse, len(res.Requests))
	for i, r := range res.Requests {
		requests[i] = fromRequest(r, nil, false)
	}
	return ListResponse{
		Count:       len(requests),
		Total:       res.Total,
		TotalPages:  res.TotalPages,
		CurrentPage: res.CurrentPage,
		Requests:    requests,
	}
}

func FromSummary(r *models.BloodRequest) SummaryResponse {
	return SummaryResponse{Request: RequestSummary{
		ID:              r.ID.String(),
		RequestNumber:   r.RequestNumber,
		PatientName:     r.PatientName,
		HospitalName:    r.HospitalName,
		BloodGroup:      string(r.BloodGroup),
		UnitsRequired:   r.UnitsRequired,
		District:        string(r.District),
		Urgency:         string(r.Urgency),
		ContactNumber:   r.ContactNumber,
		AdditionalNotes: r.AdditionalNotes,
		RequestedAt:     r.RequestedAt,
		Status:          string(r.Status),
	}}
}

func matchedDonors(rows []service.PageDonor, withStatus bool) []MatchedDonor {
	out := make([]MatchedDonor, 0, len(rows))
	for _, row := range rows {
		m := MatchedDonor{ID: row.Entry.DonorID.String()}
		if d := row.Donor; d != nil {
			lastUpdated := d.LastUpdated
			m.Name = d.FullName
			m.Phone = d.Phone
			m.BloodGroup = string(d.BloodGroup)
			m.Availability = string(d.Availability)
			m.LastUpdated = &lastUpdated
		}
		if withStatus {
			m.ContactStatus = string(row.Entry.Status)
		}
		out = append(out, m)
	}
	return out
}

func fromPagination(p models.Pagination) PaginationResponse {
	return PaginationResponse{
		CurrentPage:     p.CurrentPage,
		TotalPages:      p.TotalPages,
		TotalDonors:     p.TotalDonors,
		HasNextPage:     p.HasNextPage,
		HasPreviousPage: p.HasPreviousPage,
	}
}

func fromRequest(r *models.BloodRequest, donors map[id.DonorID]*donormodels.Donor, withAudit bool) RequestResponse {
	contacted := make([]ContactedDonor, len(r.Contacts))
	for i, c := range r.Contacts {
		contacted[i] = ContactedDonor{
			DonorID:       c.DonorID.String(),
			ContactStatus: string(c.Status),
			ContactTime:   c.ContactTime,
			Notes:         c.Notes,
		}
		if d, ok := donors[c.DonorID]; ok {
			contacted[i].Donor = &DonorRef{
				ID:         d.ID.String(),
				FullName:   d.FullName,
				Phone:      d.Phone,
				BloodGroup: string(d.BloodGroup),
			}
		}
	}
	session := SearchSessionResponse{
		SessionID:     r.Session.SessionID,
		CurrentPage:   r.Session.CurrentPage,
		DonorsPerPage: r.Session.DonorsPerPage,
		TotalPages:    r.Session.TotalPages,
	}
	if withAudit {
		session.StatusUpdates = make([]StatusUpdateResponse, len(r.Session.StatusUpdates))
		for i, u := range r.Session.StatusUpdates {
			session.StatusUpdates[i] = StatusUpdateResponse{
				DonorID:   u.DonorID.String(),
				OldStatus: string(u.OldStatus),
				NewStatus: string(u.NewStatus),
				UpdatedAt: u.UpdatedAt,
			}
		}
	}
	return RequestResponse{
		ID:                   r.ID.String(),
		RequestNumber:        r.RequestNumber,
		PatientName:          r.PatientName,
		HospitalName:         r.HospitalName,
		ContactNumber:        r.ContactNumber,
		BloodGroup:           string(r.BloodGroup),
		UnitsRequired:        r.UnitsRequired,
		Urgency:              string(r.Urgency),
		District:             string(r.District),
		AdditionalNotes:      r.AdditionalNotes,
		Status:               string(r.Status),
		RequestedAt:          r.RequestedAt,
		FulfilledAt:          r.FulfilledAt,
		SubmittedByIP:        r.SubmittedByIP,
		SubmittedByUserAgent: r.SubmittedByUserAgent,
		SubmittedFrom:        r.SubmittedFrom,
		LastUpdated:          r.LastUpdated,
		ContactedDonors:      contacted,
		SearchSession:        session,
	}
}
