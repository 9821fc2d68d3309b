package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "vitalis/pkg/domain"
)

// SQLSource reads a user's rows from one table. Rows are serialized by
// Postgres with row_to_json so any column set round-trips without a struct.
type SQLSource struct {
	db          *sql.DB
	table       string
	ownerColumn string
	orderColumn string
}

func NewSQLSource(db *sql.DB, table, ownerColumn, orderColumn string) *SQLSource {
	return &SQLSource{db: db, table: table, ownerColumn: ownerColumn, orderColumn: orderColumn}
}

func (s *SQLSource) FetchByOwner(ctx context.Context, userID id.UserID) ([]Row, error) {
	query := fmt.Sprintf(`SELECT row_to_json(t)::text FROM %s t WHERE t.%s = $1 ORDER BY t.%s DESC`,
		pq.QuoteIdentifier(s.table), pq.QuoteIdentifier(s.ownerColumn), pq.QuoteIdentifier(s.orderColumn))
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		var row Row
		if err := dec.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", s.table, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.table, err)
	}
	return out, nil
}
