package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/finbourne-labs/fathom/pkg/models"
)

// PostgresIndex stores session metadata in the fathom_sessions table.
// The schema is applied by the database package's embedded migrations.
type PostgresIndex struct {
	db *sql.DB
}

// NewPostgresIndex wraps an already-migrated connection pool.
func NewPostgresIndex(db *sql.DB) *PostgresIndex {
	return &PostgresIndex{db: db}
}

func (i *PostgresIndex) Ensure(ctx context.Context, record models.SessionRecord) error {
	_, err := i.db.ExecContext(ctx,
		`INSERT INTO fathom_sessions (session_id, agent_id, title, message_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (session_id) DO NOTHING`,
		record.SessionID, record.AgentID, record.Title, record.MessageCount,
		time.Unix(record.CreatedAt, 0).UTC())
	if err != nil {
		return fmt.Errorf("inserting session index entry: %w", err)
	}
	return nil
}

func (i *PostgresIndex) Touch(ctx context.Context, sessionID string, messageCount int, updatedAt int64) error {
	_, err := i.db.ExecContext(ctx,
		`UPDATE fathom_sessions SET message_count = $2, updated_at = $3 WHERE session_id = $1`,
		sessionID, messageCount, time.Unix(updatedAt, 0).UTC())
	if err != nil {
		return fmt.Errorf("updating session index entry: %w", err)
	}
	return nil
}

func (i *PostgresIndex) List(ctx context.Context, agentID string, window time.Duration, limit int) ([]models.SessionRecord, error) {
	window, limit = normalizeListBounds(window, limit)

	query := `SELECT session_id, agent_id, title, message_count, created_at, updated_at
		  FROM fathom_sessions
		  WHERE created_at >= $1`
	args := []any{time.Now().Add(-window).UTC()}
	if agentID != "" {
		query += ` AND agent_id = $2`
		args = append(args, agentID)
	}
	query += fmt.Sprintf(` ORDER BY updated_at DESC, session_id LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionRecord
	for rows.Next() {
		var record models.SessionRecord
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&record.SessionID, &record.AgentID, &record.Title,
			&record.MessageCount, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		record.CreatedAt = createdAt.Unix()
		record.UpdatedAt = updatedAt.Unix()
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return out, nil
}

func (i *PostgresIndex) Delete(ctx context.Context, sessionID string) error {
	_, err := i.db.ExecContext(ctx,
		`DELETE FROM fathom_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting session index entry: %w", err)
	}
	return nil
}
