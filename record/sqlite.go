package record

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id             TEXT PRIMARY KEY,
	agent_type     TEXT NOT NULL,
	execution_type TEXT NOT NULL,
	model          TEXT NOT NULL,
	status         TEXT NOT NULL,
	input_tokens   INTEGER NOT NULL DEFAULT 0,
	output_tokens  INTEGER NOT NULL DEFAULT 0,
	total_cost_usd REAL NOT NULL DEFAULT 0,
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	started_at     TIMESTAMP NOT NULL,
	completed_at   TIMESTAMP NOT NULL,
	tenant_id      TEXT NOT NULL DEFAULT '',
	cache_hit      INTEGER NOT NULL DEFAULT 0,
	error_class    TEXT NOT NULL DEFAULT '',
	error_message  TEXT NOT NULL DEFAULT '',
	metadata       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_executions_agent_started
	ON executions (agent_type, started_at);
CREATE INDEX IF NOT EXISTS idx_executions_tenant_started
	ON executions (tenant_id, started_at);
`

// SQLiteStore persists execution records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and ensures
// the schema. Use ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("record: open sqlite at %s: %w", path, err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent recording.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("record: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (
			id, agent_type, execution_type, model, status,
			input_tokens, output_tokens, total_cost_usd, duration_ms,
			started_at, completed_at, tenant_id, cache_hit,
			error_class, error_message, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AgentType, string(rec.ExecutionType), rec.Model, string(rec.Status),
		rec.InputTokens, rec.OutputTokens, rec.TotalCostUSD, rec.DurationMs,
		rec.StartedAt, rec.CompletedAt, rec.TenantID, rec.CacheHit,
		rec.ErrorClass, rec.ErrorMessage, rec.Metadata,
	)
	if err != nil {
		return fmt.Errorf("record: insert execution %s: %w", rec.ID, err)
	}
	return nil
}

// StatsFor implements Store.
func (s *SQLiteStore) StatsFor(ctx context.Context, agentType string, f Filters) (*Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN ('error', 'timeout') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(cache_hit), 0),
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(total_cost_usd), 0),
			COALESCE(AVG(duration_ms), 0)
		FROM executions
		WHERE agent_type = ?`
	args := []any{agentType}

	if f.TenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, f.TenantID)
	}
	if !f.Since.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		query += " AND started_at <= ?"
		args = append(args, f.Until)
	}

	stats := &Stats{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Count, &stats.SuccessCount, &stats.ErrorCount, &stats.CacheHits,
		&stats.InputTokens, &stats.OutputTokens, &stats.TotalCostUSD, &stats.AvgDurationMs,
	)
	if err != nil {
		return nil, fmt.Errorf("record: stats for %s: %w", agentType, err)
	}
	return stats, nil
}
