package policy

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

const policyColumns = `id, data_type, retention_days, is_active, created_at, updated_at`

// PostgresStore persists policies in data_retention_policies.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Policy, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+policyColumns+` FROM data_retention_policies ORDER BY data_type`)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var out []*models.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policies: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, policyID id.PolicyID) (*models.Policy, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM data_retention_policies WHERE id = $1`, uuid.UUID(policyID))
	p, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find policy: %w", err)
	}
	return p, nil
}

// Execute locks the row with FOR UPDATE for the duration of validate and mutate.
func (s *PostgresStore) Execute(ctx context.Context, policyID id.PolicyID, validate func(*models.Policy) error, mutate func(*models.Policy)) (*models.Policy, error) {
	var result *models.Policy
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.Exec(ctx, s.db)
		row := exec.QueryRowContext(ctx,
			`SELECT `+policyColumns+` FROM data_retention_policies WHERE id = $1 FOR UPDATE`, uuid.UUID(policyID))
		p, err := scanPolicy(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock policy: %w", err)
		}
		if err := validate(p); err != nil {
			return err
		}
		mutate(p)
		_, err = exec.ExecContext(ctx, `
			UPDATE data_retention_policies
			SET retention_days = $2, is_active = $3, updated_at = $4
			WHERE id = $1
		`, uuid.UUID(p.ID), p.RetentionDays, p.IsActive, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update policy: %w", err)
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Seed inserts policies for data types that have none. Existing rows win.
func (s *PostgresStore) Seed(ctx context.Context, policies []*models.Policy) (int, error) {
	inserted := 0
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.Exec(ctx, s.db)
		for _, p := range policies {
			res, err := exec.ExecContext(ctx, `
				INSERT INTO data_retention_policies (`+policyColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (data_type) DO NOTHING
			`, uuid.UUID(p.ID), string(p.DataType), p.RetentionDays, p.IsActive, p.CreatedAt, p.UpdatedAt)
			if err != nil {
				return fmt.Errorf("seed policy %s: %w", p.DataType, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("seed policy %s: %w", p.DataType, err)
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*models.Policy, error) {
	var (
		p        models.Policy
		policyID uuid.UUID
		dataType string
	)
	if err := row.Scan(&policyID, &dataType, &p.RetentionDays, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ID = id.PolicyID(policyID)
	p.DataType = models.DataType(dataType)
	return &p, nil
}
