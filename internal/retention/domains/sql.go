package domains

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"vitalis/internal/retention/models"
	id "vitalis/pkg/domain"
	txcontext "vitalis/pkg/platform/tx"
)

// SQLTable adapts any relation with a primary key, an owner column and a
// creation timestamp.
type SQLTable struct {
	db          *sql.DB
	dataType    models.DataType
	table       string
	ownerColumn string
	ageColumn   string
}

type SQLOption func(*SQLTable)

func WithAgeColumn(column string) SQLOption {
	return func(t *SQLTable) { t.ageColumn = column }
}

func NewSQLTable(db *sql.DB, dataType models.DataType, table, ownerColumn string, opts ...SQLOption) *SQLTable {
	t := &SQLTable{
		db:          db,
		dataType:    dataType,
		table:       table,
		ownerColumn: ownerColumn,
		ageColumn:   "created_at",
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// DefaultSQLTables covers every known data type. Audit rows are owned by
// their actor; the append-only trigger rejects any delete against them.
func DefaultSQLTables(db *sql.DB) []Adapter {
	return []Adapter{
		NewSQLTable(db, models.DataTypeGlucoseReadings, "glucose_readings", "patient_id"),
		NewSQLTable(db, models.DataTypeMealLogs, "meal_logs", "patient_id"),
		NewSQLTable(db, models.DataTypeExerciseLogs, "exercise_logs", "patient_id"),
		NewSQLTable(db, models.DataTypeMedicationLogs, "medication_logs", "patient_id"),
		NewSQLTable(db, models.DataTypeAppointments, "appointments", "patient_id"),
		NewSQLTable(db, models.DataTypePrescriptions, "prescriptions", "patient_id"),
		NewSQLTable(db, models.DataTypeAuditLogs, "audit_logs", "actor_id"),
	}
}

func (t *SQLTable) DataType() models.DataType { return t.dataType }

func (t *SQLTable) FetchRecordsOlderThan(ctx context.Context, cutoff time.Time) ([]Record, error) {
	query := fmt.Sprintf(`SELECT id::text, %s FROM %s WHERE %s < $1 ORDER BY %s`,
		pq.QuoteIdentifier(t.ownerColumn),
		pq.QuoteIdentifier(t.table),
		pq.QuoteIdentifier(t.ageColumn),
		pq.QuoteIdentifier(t.ageColumn),
	)
	rows, err := txcontext.Exec(ctx, t.db).QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.table, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			recordID string
			owner    uuid.NullUUID
		)
		if err := rows.Scan(&recordID, &owner); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.table, err)
		}
		rec := Record{ID: recordID}
		if owner.Valid {
			rec.OwnerID = id.UserID(owner.UUID)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.table, err)
	}
	return records, nil
}

func (t *SQLTable) DeleteRecord(ctx context.Context, recordID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id::text = $1`, pq.QuoteIdentifier(t.table))
	if _, err := txcontext.Exec(ctx, t.db).ExecContext(ctx, query, recordID); err != nil {
		return fmt.Errorf("delete from %s: %w", t.table, err)
	}
	return nil
}
