package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	id "vitalis/pkg/domain"
	audit "vitalis/pkg/platform/audit"
	txcontext "vitalis/pkg/platform/tx"
)

// Store appends audit entries to the audit_logs table. The table has no
// UPDATE or DELETE path in the application.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_logs (id, actor_id, actor_role, action, target_entity, target_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		nullableUser(entry.ActorID),
		string(entry.ActorRole),
		string(entry.Action),
		entry.TargetEntity,
		nullableString(entry.TargetID),
		metadata,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns matching entries newest-first.
func (s *Store) List(ctx context.Context, filter audit.ListFilter) ([]audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if !filter.ActorID.IsNil() {
		add("actor_id = $%d", uuid.UUID(filter.ActorID))
	}
	if filter.Action != "" {
		add("action = $%d", string(filter.Action))
	}
	if filter.TargetEntity != "" {
		add("target_entity = $%d", filter.TargetEntity)
	}
	if filter.TargetID != "" {
		add("target_id = $%d", filter.TargetID)
	}

	query := `SELECT id, actor_id, actor_role, action, target_entity, target_id, metadata, created_at FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			entry    audit.Entry
			entryID  uuid.UUID
			actorID  uuid.NullUUID
			role     string
			action   string
			targetID sql.NullString
			metadata []byte
		)
		if err := rows.Scan(&entryID, &actorID, &role, &action, &entry.TargetEntity, &targetID, &metadata, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.ID = id.AuditEntryID(entryID)
		if actorID.Valid {
			entry.ActorID = id.UserID(actorID.UUID)
		}
		entry.ActorRole = id.Role(role)
		entry.Action = audit.Action(action)
		entry.TargetID = targetID.String
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullableUser(u id.UserID) uuid.NullUUID {
	if u.IsNil() {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(u), Valid: true}
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
