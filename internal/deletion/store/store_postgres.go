package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"vitalis/internal/deletion/models"
	"vitalis/internal/platform/postgres"
	id "vitalis/pkg/domain"
	"vitalis/pkg/platform/sentinel"
	txcontext "vitalis/pkg/platform/tx"
)

// pendingIndex is the partial unique index allowing one pending request per user.
const pendingIndex = "deletion_requests_pending_uniq"

const requestColumns = `id, user_id, request_type, reason, status, admin_notes, requested_at, reviewed_at, reviewed_by, completed_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, req *models.Request) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO deletion_requests (id, user_id, request_type, reason, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(req.ID), uuid.UUID(req.UserID), string(req.RequestType), req.Reason, string(req.Status), req.RequestedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, pendingIndex) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert deletion request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.DeletionRequestID) (*models.Request, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM deletion_requests WHERE id = $1`, uuid.UUID(requestID))
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find deletion request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) ListForUser(ctx context.Context, userID id.UserID) ([]*models.Request, error) {
	return s.list(ctx, `SELECT `+requestColumns+` FROM deletion_requests
		WHERE user_id = $1 ORDER BY requested_at DESC, id`, uuid.UUID(userID))
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]*models.Request, error) {
	return s.list(ctx, `SELECT `+requestColumns+` FROM deletion_requests
		WHERE status = 'pending' ORDER BY requested_at DESC, id`)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Request, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deletion requests: %w", err)
	}
	defer rows.Close()

	var out []*models.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deletion request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deletion requests: %w", err)
	}
	return out, nil
}

// Execute locks the request row with FOR UPDATE while validate and mutate run.
func (s *PostgresStore) Execute(ctx context.Context, requestID id.DeletionRequestID, validate func(*models.Request) error, mutate func(*models.Request)) (*models.Request, error) {
	var result *models.Request
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.Exec(ctx, s.db)
		row := exec.QueryRowContext(ctx,
			`SELECT `+requestColumns+` FROM deletion_requests WHERE id = $1 FOR UPDATE`, uuid.UUID(requestID))
		req, err := scanRequest(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock deletion request: %w", err)
		}
		if err := validate(req); err != nil {
			return err
		}
		mutate(req)
		var reviewedBy any
		if req.ReviewedBy != nil {
			reviewedBy = uuid.UUID(*req.ReviewedBy)
		}
		_, err = exec.ExecContext(ctx, `
			UPDATE deletion_requests
			SET status = $2, admin_notes = $3, reviewed_at = $4, reviewed_by = $5, completed_at = $6
			WHERE id = $1
		`, uuid.UUID(req.ID), string(req.Status), req.AdminNotes, req.ReviewedAt, reviewedBy, req.CompletedAt)
		if err != nil {
			return fmt.Errorf("update deletion request: %w", err)
		}
		result = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var (
		req         models.Request
		requestID   uuid.UUID
		userID      uuid.UUID
		requestType string
		status      string
		reason      sql.NullString
		adminNotes  sql.NullString
		reviewedAt  sql.NullTime
		reviewedBy  uuid.NullUUID
		completedAt sql.NullTime
	)
	if err := row.Scan(&requestID, &userID, &requestType, &reason, &status, &adminNotes,
		&req.RequestedAt, &reviewedAt, &reviewedBy, &completedAt); err != nil {
		return nil, err
	}
	req.ID = id.DeletionRequestID(requestID)
	req.UserID = id.UserID(userID)
	req.RequestType = models.RequestType(requestType)
	req.Status = models.Status(status)
	if reason.Valid {
		v := reason.String
		req.Reason = &v
	}
	if adminNotes.Valid {
		v := adminNotes.String
		req.AdminNotes = &v
	}
	if reviewedAt.Valid {
		v := reviewedAt.Time
		req.ReviewedAt = &v
	}
	if reviewedBy.Valid {
		v := id.UserID(reviewedBy.UUID)
		req.ReviewedBy = &v
	}
	if completedAt.Valid {
		v := completedAt.Time
		req.CompletedAt = &v
	}
	return &req, nil
}
