package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "donorlink/pkg/domain-errors"
	txcontext "donorlink/pkg/platform/tx"
)

func TestTxManager_CommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE donors").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = NewTxManager(db).RunInTx(context.Background(), func(ctx context.Context) error {
		tx, ok := txcontext.From(ctx)
		require.True(t, ok, "transaction should be carried in context")
		_, execErr := tx.ExecContext(ctx, "UPDATE donors SET availability = 'available'")
		return execErr
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = NewTxManager(db).RunInTx(context.Background(), func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_NestedCallReusesTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	m := NewTxManager(db)
	err = m.RunInTx(context.Background(), func(ctx context.Context) error {
		return m.RunInTx(ctx, func(context.Context) error { return nil })
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_CancelledContext(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewTxManager(db).RunInTx(ctx, func(context.Context) error { return nil })
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestIsUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert donor: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, IsUniqueViolation(wrapped))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
}
