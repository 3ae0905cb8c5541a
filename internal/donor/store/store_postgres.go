package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"donorlink/internal/donor/models"
	"donorlink/internal/platform/postgres"
	id "donorlink/pkg/domain"
	"donorlink/pkg/platform/sentinel"
	txcontext "donorlink/pkg/platform/tx"
)

const donorColumns = `id, full_name, email, phone, age, gender, blood_group, district, address,
	last_donation_date, willing_to_donate, emergency_contact, medical_conditions,
	is_active, availability, registration_date, last_updated`

// PostgresStore persists donors in PostgreSQL. Queries join an ambient
// transaction when one is carried in the context.
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

func (s *PostgresStore) Create(ctx context.Context, donor *models.Donor) error {
	query := `INSERT INTO donors (` + donorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(donor.ID), donor.FullName, donor.Email, donor.Phone, donor.Age,
		string(donor.Gender), string(donor.BloodGroup), string(donor.District), donor.Address,
		nullTime(donor), donor.WillingToDonate, donor.EmergencyContact, donor.MedicalConditions,
		donor.IsActive, string(donor.Availability), donor.RegistrationDate, donor.LastUpdated,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert donor: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, donorID id.DonorID) (*models.Donor, error) {
	query := `SELECT ` + donorColumns + ` FROM donors WHERE id = $1`
	d, err := scanDonor(s.conn(ctx).QueryRowContext(ctx, query, uuid.UUID(donorID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find donor by id: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) FindByEmailOrPhone(ctx context.Context, email, phone string) (*models.Donor, error) {
	query := `SELECT ` + donorColumns + ` FROM donors WHERE email = $1 OR phone = $2 LIMIT 1`
	d, err := scanDonor(s.conn(ctx).QueryRowContext(ctx, query, email, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find donor by contact: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) FindByIDs(ctx context.Context, ids []id.DonorID) (map[id.DonorID]*models.Donor, error) {
	out := make(map[id.DonorID]*models.Donor, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]string, len(ids))
	for i, donorID := range ids {
		raw[i] = donorID.String()
	}
	query := `SELECT ` + donorColumns + ` FROM donors WHERE id = ANY($1::uuid[])`
	donors, err := s.list(ctx, query, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("find donors by ids: %w", err)
	}
	for _, d := range donors {
		out[d.ID] = d
	}
	return out, nil
}

func (s *PostgresStore) FindMatching(ctx context.Context, q models.Query, limit int) ([]*models.Donor, error) {
	query := `SELECT ` + donorColumns + ` FROM donors
		WHERE district = $1 AND blood_group = $2 AND is_active AND willing_to_donate
		ORDER BY availability ASC, last_updated DESC, id ASC
		LIMIT $3`
	donors, err := s.list(ctx, query, string(q.District), string(q.BloodGroup), limit)
	if err != nil {
		return nil, fmt.Errorf("find matching donors: %w", err)
	}
	return donors, nil
}

func (s *PostgresStore) Search(ctx context.Context, q models.Query, page models.PageRequest) ([]*models.Donor, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM donors
		WHERE district = $1 AND blood_group = $2 AND is_active AND willing_to_donate`
	if err := s.conn(ctx).QueryRowContext(ctx, countQuery, string(q.District), string(q.BloodGroup)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count donors: %w", err)
	}
	query := `SELECT ` + donorColumns + ` FROM donors
		WHERE district = $1 AND blood_group = $2 AND is_active AND willing_to_donate
		ORDER BY last_donation_date ASC NULLS FIRST, id ASC
		LIMIT $3 OFFSET $4`
	donors, err := s.list(ctx, query, string(q.District), string(q.BloodGroup), page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("search donors: %w", err)
	}
	return donors, total, nil
}

func (s *PostgresStore) SearchAvailable(ctx context.Context, q models.Query, page models.PageRequest) (*models.SearchResult, error) {
	result := &models.SearchResult{}
	countQuery := `SELECT COUNT(*), COUNT(*) FILTER (WHERE availability = 'available') FROM donors
		WHERE district = $1 AND blood_group = $2 AND is_active AND willing_to_donate`
	if err := s.conn(ctx).QueryRowContext(ctx, countQuery, string(q.District), string(q.BloodGroup)).
		Scan(&result.Total, &result.AvailableCount); err != nil {
		return nil, fmt.Errorf("count available donors: %w", err)
	}
	query := `SELECT ` + donorColumns + ` FROM donors
		WHERE district = $1 AND blood_group = $2 AND is_active AND willing_to_donate
		ORDER BY availability ASC, last_updated DESC, id ASC
		LIMIT $3 OFFSET $4`
	donors, err := s.list(ctx, query, string(q.District), string(q.BloodGroup), page.Limit, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("search available donors: %w", err)
	}
	result.Donors = donors
	return result, nil
}

// Execute locks the donor row, applies fn, and writes the mutable columns back.
// It joins the ambient transaction or opens its own.
func (s *PostgresStore) Execute(ctx context.Context, donorID id.DonorID, fn func(*models.Donor) error) (*models.Donor, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.execute(ctx, tx, donorID, fn)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin donor update: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	d, err := s.execute(ctx, tx, donorID, fn)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit donor update: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) execute(ctx context.Context, tx *sql.Tx, donorID id.DonorID, fn func(*models.Donor) error) (*models.Donor, error) {
	query := `SELECT ` + donorColumns + ` FROM donors WHERE id = $1 FOR UPDATE`
	d, err := scanDonor(tx.QueryRowContext(ctx, query, uuid.UUID(donorID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock donor: %w", err)
	}
	if err := fn(d); err != nil {
		return nil, err
	}
	update := `UPDATE donors
		SET last_donation_date = $2, availability = $3, is_active = $4, willing_to_donate = $5, last_updated = $6
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update,
		uuid.UUID(d.ID), nullTime(d), string(d.Availability), d.IsActive, d.WillingToDonate, d.LastUpdated,
	); err != nil {
		return nil, fmt.Errorf("update donor: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Donor, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	donors := []*models.Donor{}
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, err
		}
		donors = append(donors, d)
	}
	return donors, rows.Err()
}

type donorRow interface {
	Scan(dest ...any) error
}

func scanDonor(row donorRow) (*models.Donor, error) {
	var (
		d                            models.Donor
		donorID                      uuid.UUID
		gender, bloodGroup, district string
		availability                 string
		lastDonation                 sql.NullTime
	)
	if err := row.Scan(
		&donorID, &d.FullName, &d.Email, &d.Phone, &d.Age, &gender, &bloodGroup, &district, &d.Address,
		&lastDonation, &d.WillingToDonate, &d.EmergencyContact, &d.MedicalConditions,
		&d.IsActive, &availability, &d.RegistrationDate, &d.LastUpdated,
	); err != nil {
		return nil, err
	}
	d.ID = id.DonorID(donorID)
	d.Gender = models.Gender(gender)
	d.BloodGroup = models.BloodGroup(bloodGroup)
	d.District = models.District(district)
	d.Availability = models.Availability(availability)
	if lastDonation.Valid {
		t := lastDonation.Time
		d.LastDonationDate = &t
	}
	return &d, nil
}

func nullTime(d *models.Donor) sql.NullTime {
	if d.LastDonationDate == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *d.LastDonationDate, Valid: true}
}
