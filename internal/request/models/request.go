package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	donormodels "donorlink/internal/donor/models"
	id "donorlink/pkg/domain"
	dErrors "donorlink/pkg/domain-errors"
)

const (
	// PageSize is the fixed number of snapshot entries per display page.
	PageSize = 5

	MinUnits = 1
	MaxUnits = 10

	completionMarker = "[Completion Notes]: "
)

var phonePattern = regexp.MustCompile(`^\d{10}$`)

// BloodRequest is the aggregate root for a need for blood in a district.
//
// Invariants:
//   - RequestNumber is assigned once at creation and never changes
//   - Contacts membership and order are fixed at creation; only entry status mutates
//   - Session.StatusUpdates is append-only
type BloodRequest struct {
	ID                   id.RequestID
	RequestNumber        string
	PatientName          string
	HospitalName         string
	ContactNumber        string
	BloodGroup           donormodels.BloodGroup
	UnitsRequired        int
	Urgency              Urgency
	District             donormodels.District
	AdditionalNotes      string
	Status               Status
	RequestedAt          time.Time
	FulfilledAt          *time.Time
	SubmittedByIP        string
	SubmittedByUserAgent string
	SubmittedFrom        string
	LastUpdated          time.Time

	Contacts []ContactEntry
	Session  SearchSession
}

// ContactEntry is one matched donor in the frozen snapshot.
type ContactEntry struct {
	DonorID     id.DonorID
	Status      ContactStatus
	ContactTime *time.Time
	Notes       string
}

// SearchSession tracks the last viewed page and the ledger audit trail.
type SearchSession struct {
	SessionID     string
	CurrentPage   int
	DonorsPerPage int
	TotalPages    int
	StatusUpdates []StatusUpdate
}

// StatusUpdate is one append-only audit entry. OldStatus is the entry status
// before the transition.
type StatusUpdate struct {
	DonorID   id.DonorID
	OldStatus ContactStatus
	NewStatus ContactStatus
	UpdatedAt time.Time
	Notes     string
}

// Submission carries the caller-supplied request fields.
type Submission struct {
	PatientName     string
	HospitalName    string
	ContactNumber   string
	BloodGroup      donormodels.BloodGroup
	UnitsRequired   int
	Urgency         Urgency
	District        donormodels.District
	AdditionalNotes string
	SessionID       string
	CurrentPage     int

	SubmittedByIP        string
	SubmittedByUserAgent string
	SubmittedFrom        string
}

// Normalize trims text, uppercases the patient name, and applies defaults.
func (s *Submission) Normalize() {
	s.PatientName = strings.ToUpper(strings.TrimSpace(s.PatientName))
	s.HospitalName = strings.TrimSpace(s.HospitalName)
	s.ContactNumber = strings.TrimSpace(s.ContactNumber)
	s.AdditionalNotes = strings.TrimSpace(s.AdditionalNotes)
	s.SessionID = strings.TrimSpace(s.SessionID)
	if s.UnitsRequired == 0 {
		s.UnitsRequired = MinUnits
	}
	if s.Urgency == "" {
		s.Urgency = UrgencyMedium
	}
	if s.CurrentPage < 1 {
		s.CurrentPage = 1
	}
}

// Problems lists one message per failing field.
func (s *Submission) Problems() []string {
	var problems []string
	if s.PatientName == "" {
		problems = append(problems, "Patient name is required")
	}
	if s.HospitalName == "" {
		problems = append(problems, "Hospital name is required")
	}
	switch {
	case s.ContactNumber == "":
		problems = append(problems, "Contact number is required")
	case !phonePattern.MatchString(s.ContactNumber):
		problems = append(problems, "Phone number must be 10 digits")
	}
	switch {
	case s.BloodGroup == "":
		problems = append(problems, "Blood group is required")
	case !s.BloodGroup.IsValid():
		problems = append(problems, fmt.Sprintf("%q is not a valid blood group", s.BloodGroup))
	}
	switch {
	case s.UnitsRequired < MinUnits:
		problems = append(problems, "At least 1 unit is required")
	case s.UnitsRequired > MaxUnits:
		problems = append(problems, "Maximum 10 units per request")
	}
	if !s.Urgency.IsValid() {
		problems = append(problems, fmt.Sprintf("%q is not a valid urgency", s.Urgency))
	}
	switch {
	case s.District == "":
		problems = append(problems, "District is required")
	case !s.District.IsValid():
		problems = append(problems, fmt.Sprintf("%q is not a valid district", s.District))
	}
	return problems
}

// Validate normalizes and reports every failing field as one validation error.
func (s *Submission) Validate() error {
	s.Normalize()
	if problems := s.Problems(); len(problems) > 0 {
		return dErrors.Validation("Validation failed", problems...)
	}
	return nil
}

// NewBloodRequest builds a pending request whose ledger is the frozen snapshot
// of matched donors, each not yet contacted.
func NewBloodRequest(requestID id.RequestID, number string, sub Submission, snapshot []id.DonorID, now time.Time) (*BloodRequest, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if requestID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "request id is required")
	}
	if number == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "request number is required")
	}
	contacts := make([]ContactEntry, len(snapshot))
	for i, donorID := range snapshot {
		contacts[i] = ContactEntry{DonorID: donorID, Status: ContactNotContacted}
	}
	return &BloodRequest{
		ID:                   requestID,
		RequestNumber:        number,
		PatientName:          sub.PatientName,
		HospitalName:         sub.HospitalName,
		ContactNumber:        sub.ContactNumber,
		BloodGroup:           sub.BloodGroup,
		UnitsRequired:        sub.UnitsRequired,
		Urgency:              sub.Urgency,
		District:             sub.District,
		AdditionalNotes:      sub.AdditionalNotes,
		Status:               StatusPending,
		RequestedAt:          now,
		SubmittedByIP:        sub.SubmittedByIP,
		SubmittedByUserAgent: sub.SubmittedByUserAgent,
		SubmittedFrom:        sub.SubmittedFrom,
		LastUpdated:          now,
		Contacts:             contacts,
		Session: SearchSession{
			SessionID:     sub.SessionID,
			CurrentPage:   sub.CurrentPage,
			DonorsPerPage: PageSize,
			TotalPages:    donormodels.TotalPages(len(contacts), PageSize),
			StatusUpdates: []StatusUpdate{},
		},
	}, nil
}

// DonorIDs returns the snapshot membership in order.
func (r *BloodRequest) DonorIDs() []id.DonorID {
	out := make([]id.DonorID, len(r.Contacts))
	for i, c := range r.Contacts {
		out[i] = c.DonorID
	}
	return out
}

// IndexOf returns the snapshot position of donorID, or -1.
func (r *BloodRequest) IndexOf(donorID id.DonorID) int {
	for i, c := range r.Contacts {
		if c.DonorID == donorID {
			return i
		}
	}
	return -1
}

// ApplyContactStatus records an outreach outcome for a snapshot member and
// appends the audit entry. Notes overwrite previous notes only when non-empty.
func (r *BloodRequest) ApplyContactStatus(donorID id.DonorID, status ContactStatus, notes string, now time.Time) (StatusUpdate, error) {
	if !status.IsValid() {
		return StatusUpdate{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%q is not a valid contact status", status))
	}
	i := r.IndexOf(donorID)
	if i < 0 {
		return StatusUpdate{}, dErrors.New(dErrors.CodeNotFound, "Donor not found in this request")
	}
	entry := &r.Contacts[i]
	update := StatusUpdate{
		DonorID:   donorID,
		OldStatus: entry.Status,
		NewStatus: status,
		UpdatedAt: now,
		Notes:     notes,
	}
	entry.Status = status
	t := now
	entry.ContactTime = &t
	if notes != "" {
		entry.Notes = notes
	}
	r.Session.StatusUpdates = append(r.Session.StatusUpdates, update)
	r.LastUpdated = now
	return update, nil
}

// Complete closes the request with a caller-asserted status. Fulfilment is not
// checked against the ledger. Notes are appended after a completion marker.
func (r *BloodRequest) Complete(status Status, notes string, now time.Time) error {
	if !status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%q is not a valid request status", status))
	}
	r.Status = status
	if status == StatusFulfilled {
		t := now
		r.FulfilledAt = &t
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		r.AdditionalNotes += "\n" + completionMarker + notes
	}
	r.LastUpdated = now
	return nil
}

// ViewPage records pageNum as the last viewed page, in range or not.
func (r *BloodRequest) ViewPage(pageNum int, now time.Time) {
	r.Session.CurrentPage = pageNum
	r.LastUpdated = now
}

// Page is one display page of the frozen snapshot.
type Page struct {
	Entries    []ContactEntry
	Pagination Pagination
}

type Pagination struct {
	CurrentPage     int
	TotalPages      int
	TotalDonors     int
	HasNextPage     bool
	HasPreviousPage bool
}

// PageOf slices the snapshot into [(p-1)*PageSize, p*PageSize). Pages past the
// end are empty, not an error.
func (r *BloodRequest) PageOf(pageNum int) Page {
	total := len(r.Contacts)
	return Page{
		Entries:    Window(r.Contacts, pageNum, PageSize),
		Pagination: NewPagination(pageNum, total, PageSize),
	}
}

// Window returns the 1-indexed page of items, empty when out of range.
func Window[T any](items []T, pageNum, size int) []T {
	if pageNum < 1 || size <= 0 {
		return []T{}
	}
	start := (pageNum - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := min(start+size, len(items))
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out
}

func NewPagination(pageNum, total, size int) Pagination {
	totalPages := donormodels.TotalPages(total, size)
	return Pagination{
		CurrentPage:     pageNum,
		TotalPages:      totalPages,
		TotalDonors:     total,
		HasNextPage:     pageNum < totalPages,
		HasPreviousPage: pageNum > 1,
	}
}

// Clone deep-copies the aggregate so stores never share slices with callers.
func (r *BloodRequest) Clone() *BloodRequest {
	c := *r
	if r.FulfilledAt != nil {
		t := *r.FulfilledAt
		c.FulfilledAt = &t
	}
	c.Contacts = make([]ContactEntry, len(r.Contacts))
	for i, e := range r.Contacts {
		c.Contacts[i] = e
		if e.ContactTime != nil {
			t := *e.ContactTime
			c.Contacts[i].ContactTime = &t
		}
	}
	c.Session.StatusUpdates = append([]StatusUpdate{}, r.Session.StatusUpdates...)
	return &c
}

// ListFilter narrows the admin listing. Empty fields match everything.
type ListFilter struct {
	Status     Status
	District   donormodels.District
	BloodGroup donormodels.BloodGroup
}

// Matches reports whether r passes the filter.
func (f ListFilter) Matches(r *BloodRequest) bool {
	return (f.Status == "" || r.Status == f.Status) &&
		(f.District == "" || r.District == f.District) &&
		(f.BloodGroup == "" || r.BloodGroup == f.BloodGroup)
}
