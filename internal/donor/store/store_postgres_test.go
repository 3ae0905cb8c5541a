package store

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donorlink/internal/donor/models"
	id "donorlink/pkg/domain"
	"donorlink/pkg/platform/sentinel"
)

var donorColumnNames = []string{
	"id", "full_name", "email", "phone", "age", "gender", "blood_group", "district", "address",
	"last_donation_date", "willing_to_donate", "emergency_contact", "medical_conditions",
	"is_active", "availability", "registration_date", "last_updated",
}

func donorRowValues(donorID uuid.UUID, lastDonation any, availability string, updated time.Time) []driver.Value {
	return []driver.Value{
		donorID.String(), "Kavin", "kavin@example.com", "9876500000", int64(34), "Male", "O+", "Chennai", "",
		lastDonation, true, "", "", true, availability, base, updated,
	}
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func TestPostgresStore_CreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO donors").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "donors_email_key"})

	err := store.Create(context.Background(), &models.Donor{ID: id.NewDonorID()})
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByIDScansRow(t *testing.T) {
	store, mock := newMockStore(t)
	donorID := uuid.New()
	lastDonation := base.Add(-100 * 24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM donors WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows(donorColumnNames).
			AddRow(donorRowValues(donorID, lastDonation, "other", base)...))

	d, err := store.FindByID(context.Background(), id.DonorID(donorID))
	require.NoError(t, err)
	assert.Equal(t, id.DonorID(donorID), d.ID)
	assert.Equal(t, models.BloodGroupOPos, d.BloodGroup)
	assert.Equal(t, models.District("Chennai"), d.District)
	assert.Equal(t, models.AvailabilityOther, d.Availability)
	require.NotNil(t, d.LastDonationDate)
	assert.True(t, lastDonation.Equal(*d.LastDonationDate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM donors").WillReturnRows(sqlmock.NewRows(donorColumnNames))

	_, err := store.FindByID(context.Background(), id.NewDonorID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresStore_FindMatchingQueryShape(t *testing.T) {
	store, mock := newMockStore(t)
	first, second := uuid.New(), uuid.New()

	mock.ExpectQuery(`ORDER BY availability ASC, last_updated DESC, id ASC\s+LIMIT \$3`).
		WithArgs("Chennai", "O+", 50).
		WillReturnRows(sqlmock.NewRows(donorColumnNames).
			AddRow(donorRowValues(first, nil, "available", base)...).
			AddRow(donorRowValues(second, nil, "unavailable", base)...))

	got, err := store.FindMatching(context.Background(), models.Query{District: "Chennai", BloodGroup: models.BloodGroupOPos}, 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, id.DonorID(first), got[0].ID)
	assert.Nil(t, got[0].LastDonationDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SearchAvailableCounts(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE availability = 'available')")).
		WithArgs("Chennai", "O+").
		WillReturnRows(sqlmock.NewRows([]string{"count", "available"}).AddRow(12, 9))
	mock.ExpectQuery(`LIMIT \$3 OFFSET \$4`).
		WithArgs("Chennai", "O+", 5, 5).
		WillReturnRows(sqlmock.NewRows(donorColumnNames).
			AddRow(donorRowValues(uuid.New(), nil, "available", base)...))

	res, err := store.SearchAvailable(context.Background(),
		models.Query{District: "Chennai", BloodGroup: models.BloodGroupOPos},
		models.PageRequest{Page: 2, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 12, res.Total)
	assert.Equal(t, 9, res.AvailableCount)
	assert.Len(t, res.Donors, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByIDsUsesArray(t *testing.T) {
	store, mock := newMockStore(t)
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ANY($1::uuid[])")).
		WithArgs("{\"" + a.String() + "\",\"" + b.String() + "\"}").
		WillReturnRows(sqlmock.NewRows(donorColumnNames).
			AddRow(donorRowValues(a, nil, "available", base)...))

	found, err := store.FindByIDs(context.Background(), []id.DonorID{id.DonorID(a), id.DonorID(b)})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Contains(t, found, id.DonorID(a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExecuteLocksAndWritesBack(t *testing.T) {
	store, mock := newMockStore(t)
	donorID := uuid.New()
	now := base.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows(donorColumnNames).
			AddRow(donorRowValues(donorID, nil, "available", base)...))
	mock.ExpectExec("UPDATE donors").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "unavailable", true, true, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	d, err := store.Execute(context.Background(), id.DonorID(donorID), func(d *models.Donor) error {
		d.ApplyAvailability(models.AvailabilityUnavailable, now)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityUnavailable, d.Availability)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExecuteUnknownDonorRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(sqlmock.NewRows(donorColumnNames))
	mock.ExpectRollback()

	_, err := store.Execute(context.Background(), id.NewDonorID(), func(*models.Donor) error { return nil })
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
