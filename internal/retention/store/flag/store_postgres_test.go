package flag

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalis/internal/retention/models"
	id "vitalis/pkg/domain"
)

var flagRowColumns = []string{"id", "data_type", "record_id", "user_id", "flagged_at", "action_taken", "reviewed_at", "reviewed_by", "notes"}

func TestPostgresStore_CreatePending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	f, err := models.NewPendingFlag(id.FlagID(uuid.New()), models.DataTypeAuditLogs, "a-1", id.UserID{}, now)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO data_retention_flags .* ON CONFLICT \(data_type, record_id\) WHERE action_taken = 'pending' DO NOTHING`).
		WithArgs(uuid.UUID(f.ID), "audit_logs", "a-1", nil, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := NewPostgres(db).CreatePending(context.Background(), f)
	require.NoError(t, err)
	assert.False(t, created, "conflicting insert reports not created")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPendingScansNullableColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	owner := uuid.New()
	mock.ExpectQuery(`WHERE action_taken = 'pending' ORDER BY flagged_at DESC`).
		WillReturnRows(sqlmock.NewRows(flagRowColumns).
			AddRow(uuid.NewString(), "meal_logs", "m-1", owner.String(), now, "pending", nil, nil, nil).
			AddRow(uuid.NewString(), "audit_logs", "a-1", nil, now.Add(-time.Minute), "pending", nil, nil, nil))

	flags, err := NewPostgres(db).ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, flags, 2)
	assert.Equal(t, id.UserID(owner), flags[0].UserID)
	assert.True(t, flags[1].UserID.IsNil())
	assert.Nil(t, flags[0].ReviewedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExecuteReview(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	flagID := uuid.New()
	reviewer := id.UserID(uuid.New())
	now := time.Now().UTC()
	notes := "expired"

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM data_retention_flags WHERE id = \$1 FOR UPDATE`).
		WithArgs(flagID).
		WillReturnRows(sqlmock.NewRows(flagRowColumns).
			AddRow(flagID.String(), "meal_logs", "m-1", nil, now.Add(-time.Hour), "pending", nil, nil, nil))
	mock.ExpectExec(`UPDATE data_retention_flags`).
		WithArgs(flagID, "deleted", now, uuid.UUID(reviewer), notes).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	f, err := NewPostgres(db).Execute(context.Background(), id.FlagID(flagID),
		func(f *models.Flag) error { return f.CanReview() },
		func(f *models.Flag) { f.ApplyReview(models.FlagActionDeleted, reviewer, &notes, now) },
	)
	require.NoError(t, err)
	assert.Equal(t, models.FlagActionDeleted, f.ActionTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExecuteRejectsReviewed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	flagID := uuid.New()
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(flagRowColumns).
			AddRow(flagID.String(), "meal_logs", "m-1", nil, now, "retained", now, uuid.NewString(), nil))
	mock.ExpectRollback()

	_, err = NewPostgres(db).Execute(context.Background(), id.FlagID(flagID),
		func(f *models.Flag) error { return f.CanReview() },
		func(*models.Flag) {},
	)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
