package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	donormodels "donorlink/internal/donor/models"
	"donorlink/internal/platform/postgres"
	"donorlink/internal/request/models"
	id "donorlink/pkg/domain"
	"donorlink/pkg/platform/sentinel"
	txcontext "donorlink/pkg/platform/tx"
)

const requestColumns = `id, request_number, patient_name, hospital_name, contact_number, blood_group,
	units_required, urgency, district, additional_notes, status, requested_at, fulfilled_at,
	submitted_by_ip, submitted_by_user_agent, submitted_from,
	session_id, current_page, donors_per_page, total_pages, last_updated`

// PostgresStore persists the request aggregate across blood_requests and its
// ledger tables. Writes join an ambient transaction when one is carried in ctx.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) conn(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Create inserts the request and its snapshot. It joins the ambient
// transaction or opens its own so the snapshot is never partially written.
func (s *PostgresStore) Create(ctx context.Context, r *models.BloodRequest) error {
	if tx, ok := txcontext.From(ctx); ok {
		return s.create(ctx, tx, r)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin request insert: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := s.create(ctx, tx, r); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit request insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) create(ctx context.Context, tx *sql.Tx, r *models.BloodRequest) error {
	query := `INSERT INTO blood_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	_, err := tx.ExecContext(ctx, query,
		uuid.UUID(r.ID), r.RequestNumber, r.PatientName, r.HospitalName, r.ContactNumber, string(r.BloodGroup),
		r.UnitsRequired, string(r.Urgency), string(r.District), r.AdditionalNotes, string(r.Status), r.RequestedAt, nullTime(r.FulfilledAt),
		r.SubmittedByIP, r.SubmittedByUserAgent, r.SubmittedFrom,
		r.Session.SessionID, r.Session.CurrentPage, r.Session.DonorsPerPage, r.Session.TotalPages, r.LastUpdated,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert request: %w", err)
	}
	if len(r.Contacts) == 0 {
		return nil
	}

	var (
		sb   strings.Builder
		args = make([]any, 0, len(r.Contacts)*4)
	)
	sb.WriteString(`INSERT INTO blood_request_contacts (request_id, position, donor_id, status) VALUES `)
	for i, c := range r.Contacts {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := len(args)
		sb.WriteString("($" + strconv.Itoa(n+1) + ", $" + strconv.Itoa(n+2) + ", $" + strconv.Itoa(n+3) + ", $" + strconv.Itoa(n+4) + ")")
		args = append(args, uuid.UUID(r.ID), i, uuid.UUID(c.DonorID), string(c.Status))
	}
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert request snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error) {
	q := s.conn(ctx)
	r, err := scanRequest(q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM blood_requests WHERE id = $1`, uuid.UUID(requestID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find request by id: %w", err)
	}
	if err := s.loadLedger(ctx, q, []*models.BloodRequest{r}); err != nil {
		return nil, err
	}
	return r, nil
}

// Execute locks the request row, applies fn, and writes back the mutable
// columns, the changed ledger entries, and the appended audit entries.
func (s *PostgresStore) Execute(ctx context.Context, requestID id.RequestID, fn func(*models.BloodRequest) error) (*models.BloodRequest, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.execute(ctx, tx, requestID, fn)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin request update: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	r, err := s.execute(ctx, tx, requestID, fn)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit request update: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) execute(ctx context.Context, tx *sql.Tx, requestID id.RequestID, fn func(*models.BloodRequest) error) (*models.BloodRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM blood_requests WHERE id = $1 FOR UPDATE`
	r, err := scanRequest(tx.QueryRowContext(ctx, query, uuid.UUID(requestID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock request: %w", err)
	}
	if err := s.loadLedger(ctx, tx, []*models.BloodRequest{r}); err != nil {
		return nil, err
	}
	before := r.Clone()
	if err := fn(r); err != nil {
		return nil, err
	}

	update := `UPDATE blood_requests
		SET status = $2, fulfilled_at = $3, additional_notes = $4, current_page = $5, total_pages = $6, last_updated = $7
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update,
		uuid.UUID(r.ID), string(r.Status), nullTime(r.FulfilledAt), r.AdditionalNotes,
		r.Session.CurrentPage, r.Session.TotalPages, r.LastUpdated,
	); err != nil {
		return nil, fmt.Errorf("update request: %w", err)
	}

	for i, c := range r.Contacts {
		if i < len(before.Contacts) && sameEntry(before.Contacts[i], c) {
			continue
		}
		contact := `UPDATE blood_request_contacts
			SET status = $3, contact_time = $4, notes = $5
			WHERE request_id = $1 AND position = $2`
		if _, err := tx.ExecContext(ctx, contact,
			uuid.UUID(r.ID), i, string(c.Status), nullTime(c.ContactTime), c.Notes,
		); err != nil {
			return nil, fmt.Errorf("update request contact: %w", err)
		}
	}

	for seq := len(before.Session.StatusUpdates); seq < len(r.Session.StatusUpdates); seq++ {
		u := r.Session.StatusUpdates[seq]
		audit := `INSERT INTO blood_request_status_updates (request_id, seq, donor_id, old_status, new_status, updated_at, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
		if _, err := tx.ExecContext(ctx, audit,
			uuid.UUID(r.ID), seq, uuid.UUID(u.DonorID), string(u.OldStatus), string(u.NewStatus), u.UpdatedAt, u.Notes,
		); err != nil {
			return nil, fmt.Errorf("append status update: %w", err)
		}
	}
	return r, nil
}

// List returns one page of requests matching filter, newest first, with
// their ledgers and without the audit trail.
func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter, page donormodels.PageRequest) ([]*models.BloodRequest, int, error) {
	where, args := listConditions(filter)
	q := s.conn(ctx)

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM blood_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	n := len(args)
	query := `SELECT ` + requestColumns + ` FROM blood_requests` + where +
		` ORDER BY requested_at DESC, id ASC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := q.QueryContext(ctx, query, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	requests := []*models.BloodRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate requests: %w", err)
	}
	if err := s.loadContacts(ctx, q, requests); err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

// LatestByContactNumber returns the newest request for phone without its ledger.
func (s *PostgresStore) LatestByContactNumber(ctx context.Context, phone string) (*models.BloodRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM blood_requests
		WHERE contact_number = $1
		ORDER BY requested_at DESC, id ASC
		LIMIT 1`
	r, err := scanRequest(s.conn(ctx).QueryRowContext(ctx, query, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find latest request: %w", err)
	}
	return r, nil
}

func listConditions(filter models.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, column+" = $"+strconv.Itoa(len(args)))
	}
	add("status", string(filter.Status))
	add("district", string(filter.District))
	add("blood_group", string(filter.BloodGroup))
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) loadLedger(ctx context.Context, q queryer, requests []*models.BloodRequest) error {
	if err := s.loadContacts(ctx, q, requests); err != nil {
		return err
	}
	return s.loadStatusUpdates(ctx, q, requests)
}

func (s *PostgresStore) loadContacts(ctx context.Context, q queryer, requests []*models.BloodRequest) error {
	if len(requests) == 0 {
		return nil
	}
	index, raw := indexRequests(requests)
	query := `SELECT request_id, donor_id, status, contact_time, notes
		FROM blood_request_contacts
		WHERE request_id = ANY($1::uuid[])
		ORDER BY request_id, position`
	rows, err := q.QueryContext(ctx, query, pq.Array(raw))
	if err != nil {
		return fmt.Errorf("load request contacts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			requestID, donorID uuid.UUID
			status             string
			contactTime        sql.NullTime
			entry              models.ContactEntry
		)
		if err := rows.Scan(&requestID, &donorID, &status, &contactTime, &entry.Notes); err != nil {
			return fmt.Errorf("scan request contact: %w", err)
		}
		entry.DonorID = id.DonorID(donorID)
		entry.Status = models.ContactStatus(status)
		entry.ContactTime = timePtr(contactTime)
		if r, ok := index[id.RequestID(requestID)]; ok {
			r.Contacts = append(r.Contacts, entry)
		}
	}
	return rows.Err()
}

func (s *PostgresStore) loadStatusUpdates(ctx context.Context, q queryer, requests []*models.BloodRequest) error {
	index, raw := indexRequests(requests)
	query := `SELECT request_id, donor_id, old_status, new_status, updated_at, notes
		FROM blood_request_status_updates
		WHERE request_id = ANY($1::uuid[])
		ORDER BY request_id, seq`
	rows, err := q.QueryContext(ctx, query, pq.Array(raw))
	if err != nil {
		return fmt.Errorf("load status updates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			requestID, donorID   uuid.UUID
			oldStatus, newStatus string
			u                    models.StatusUpdate
		)
		if err := rows.Scan(&requestID, &donorID, &oldStatus, &newStatus, &u.UpdatedAt, &u.Notes); err != nil {
			return fmt.Errorf("scan status update: %w", err)
		}
		u.DonorID = id.DonorID(donorID)
		u.OldStatus = models.ContactStatus(oldStatus)
		u.NewStatus = models.ContactStatus(newStatus)
		if r, ok := index[id.RequestID(requestID)]; ok {
			r.Session.StatusUpdates = append(r.Session.StatusUpdates, u)
		}
	}
	return rows.Err()
}

func indexRequests(requests []*models.BloodRequest) (map[id.RequestID]*models.BloodRequest, []string) {
	index := make(map[id.RequestID]*models.BloodRequest, len(requests))
	raw := make([]string, len(requests))
	for i, r := range requests {
		index[r.ID] = r
		raw[i] = r.ID.String()
	}
	return index, raw
}

type requestRow interface {
	Scan(dest ...any) error
}

func scanRequest(row requestRow) (*models.BloodRequest, error) {
	var (
		r                                    models.BloodRequest
		requestID                            uuid.UUID
		bloodGroup, urgency, district, state string
		fulfilledAt                          sql.NullTime
	)
	if err := row.Scan(
		&requestID, &r.RequestNumber, &r.PatientName, &r.HospitalName, &r.ContactNumber, &bloodGroup,
		&r.UnitsRequired, &urgency, &district, &r.AdditionalNotes, &state, &r.RequestedAt, &fulfilledAt,
		&r.SubmittedByIP, &r.SubmittedByUserAgent, &r.SubmittedFrom,
		&r.Session.SessionID, &r.Session.CurrentPage, &r.Session.DonorsPerPage, &r.Session.TotalPages, &r.LastUpdated,
	); err != nil {
		return nil, err
	}
	r.ID = id.RequestID(requestID)
	r.BloodGroup = donormodels.BloodGroup(bloodGroup)
	r.Urgency = models.Urgency(urgency)
	r.District = donormodels.District(district)
	r.Status = models.Status(state)
	r.FulfilledAt = timePtr(fulfilledAt)
	r.Contacts = []models.ContactEntry{}
	r.Session.StatusUpdates = []models.StatusUpdate{}
	return &r, nil
}

func sameEntry(a, b models.ContactEntry) bool {
	if a.Status != b.Status || a.Notes != b.Notes {
		return false
	}
	switch {
	case a.ContactTime == nil && b.ContactTime == nil:
		return true
	case a.ContactTime == nil || b.ContactTime == nil:
		return false
	default:
		return a.ContactTime.Equal(*b.ContactTime)
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
