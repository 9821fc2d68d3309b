package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalis/internal/deletion/models"
	id "vitalis/pkg/domain"
	"vitalis/pkg/platform/sentinel"
)

var requestRowColumns = []string{"id", "user_id", "request_type", "reason", "status", "admin_notes", "requested_at", "reviewed_at", "reviewed_by", "completed_at"}

func newPendingRequest(t *testing.T) *models.Request {
	reason := "moving providers"
	req, err := models.NewRequest(id.DeletionRequestID(uuid.New()), id.UserID(uuid.New()), models.RequestTypeAccount, &reason, time.Now().UTC())
	require.NoError(t, err)
	return req
}

func TestPostgresStore_CreateMapsPendingViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	req := newPendingRequest(t)
	mock.ExpectExec(`INSERT INTO deletion_requests`).
		WithArgs(uuid.UUID(req.ID), uuid.UUID(req.UserID), "account", "moving providers", "pending", req.RequestedAt).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "deletion_requests_pending_uniq"})

	err = NewPostgres(db).Create(context.Background(), req)
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateOtherFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO deletion_requests`).WillReturnError(errors.New("disk full"))
	err = NewPostgres(db).Create(context.Background(), newPendingRequest(t))
	require.Error(t, err)
	assert.NotErrorIs(t, err, sentinel.ErrAlreadyUsed)
}

func TestPostgresStore_ListForUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	user := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery(`FROM deletion_requests WHERE user_id = \$1 ORDER BY requested_at DESC`).
		WithArgs(user).
		WillReturnRows(sqlmock.NewRows(requestRowColumns).
			AddRow(uuid.NewString(), user.String(), "data", nil, "pending", nil, now, nil, nil, nil).
			AddRow(uuid.NewString(), user.String(), "account", "closing", "completed", "done", now.Add(-time.Hour), now, uuid.NewString(), now))

	reqs, err := NewPostgres(db).ListForUser(context.Background(), id.UserID(user))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Nil(t, reqs[0].Reason)
	assert.Equal(t, models.StatusCompleted, reqs[1].Status)
	require.NotNil(t, reqs[1].CompletedAt)
	assert.Equal(t, "done", *reqs[1].AdminNotes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExecuteNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows(requestRowColumns))
	mock.ExpectRollback()

	_, err = NewPostgres(db).Execute(context.Background(), id.DeletionRequestID(uuid.New()),
		func(*models.Request) error { return nil },
		func(*models.Request) {},
	)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
