package flag

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"vitalis/internal/retention/models"
	id "vitalis/pkg/domain"
	"vitalis/pkg/platform/sentinel"
	txcontext "vitalis/pkg/platform/tx"
)

const flagColumns = `id, data_type, record_id, user_id, flagged_at, action_taken, reviewed_at, reviewed_by, notes`

// PostgresStore persists flags in data_retention_flags. The partial unique
// index data_retention_flags_pending_uniq keeps one pending flag per record.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreatePending(ctx context.Context, f *models.Flag) (bool, error) {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO data_retention_flags (id, data_type, record_id, user_id, flagged_at, action_taken)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		ON CONFLICT (data_type, record_id) WHERE action_taken = 'pending' DO NOTHING
	`, uuid.UUID(f.ID), string(f.DataType), f.RecordID, nullableUser(f.UserID), f.FlaggedAt)
	if err != nil {
		return false, fmt.Errorf("insert flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert flag: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, flagID id.FlagID) (*models.Flag, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+flagColumns+` FROM data_retention_flags WHERE id = $1`, uuid.UUID(flagID))
	f, err := scanFlag(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find flag: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]*models.Flag, error) {
	return s.list(ctx, `SELECT `+flagColumns+` FROM data_retention_flags
		WHERE action_taken = 'pending' ORDER BY flagged_at DESC, id`)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Flag, error) {
	return s.list(ctx, `SELECT `+flagColumns+` FROM data_retention_flags ORDER BY flagged_at DESC, id`)
}

func (s *PostgresStore) list(ctx context.Context, query string) ([]*models.Flag, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	defer rows.Close()

	var out []*models.Flag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flag: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flags: %w", err)
	}
	return out, nil
}

// Execute locks the flag row with FOR UPDATE so concurrent reviews serialize.
func (s *PostgresStore) Execute(ctx context.Context, flagID id.FlagID, validate func(*models.Flag) error, mutate func(*models.Flag)) (*models.Flag, error) {
	var result *models.Flag
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.Exec(ctx, s.db)
		row := exec.QueryRowContext(ctx,
			`SELECT `+flagColumns+` FROM data_retention_flags WHERE id = $1 FOR UPDATE`, uuid.UUID(flagID))
		f, err := scanFlag(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock flag: %w", err)
		}
		if err := validate(f); err != nil {
			return err
		}
		mutate(f)
		var reviewedBy any
		if f.ReviewedBy != nil {
			reviewedBy = uuid.UUID(*f.ReviewedBy)
		}
		_, err = exec.ExecContext(ctx, `
			UPDATE data_retention_flags
			SET action_taken = $2, reviewed_at = $3, reviewed_by = $4, notes = $5
			WHERE id = $1
		`, uuid.UUID(f.ID), string(f.ActionTaken), f.ReviewedAt, reviewedBy, f.Notes)
		if err != nil {
			return fmt.Errorf("update flag: %w", err)
		}
		result = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func nullableUser(u id.UserID) any {
	if u.IsNil() {
		return nil
	}
	return uuid.UUID(u)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlag(row rowScanner) (*models.Flag, error) {
	var (
		f          models.Flag
		flagID     uuid.UUID
		dataType   string
		userID     uuid.NullUUID
		action     string
		reviewedAt sql.NullTime
		reviewedBy uuid.NullUUID
		notes      sql.NullString
	)
	if err := row.Scan(&flagID, &dataType, &f.RecordID, &userID, &f.FlaggedAt, &action, &reviewedAt, &reviewedBy, &notes); err != nil {
		return nil, err
	}
	f.ID = id.FlagID(flagID)
	f.DataType = models.DataType(dataType)
	f.ActionTaken = models.FlagAction(action)
	if userID.Valid {
		f.UserID = id.UserID(userID.UUID)
	}
	if reviewedAt.Valid {
		at := reviewedAt.Time
		f.ReviewedAt = &at
	}
	if reviewedBy.Valid {
		by := id.UserID(reviewedBy.UUID)
		f.ReviewedBy = &by
	}
	if notes.Valid {
		n := notes.String
		f.Notes = &n
	}
	return &f, nil
}
