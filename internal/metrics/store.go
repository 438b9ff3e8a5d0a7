package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS metrics (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	scan_id           TEXT NOT NULL DEFAULT '',
	stage             TEXT NOT NULL DEFAULT '',
	item_key          TEXT NOT NULL DEFAULT '',
	provider          TEXT NOT NULL DEFAULT '',
	model             TEXT NOT NULL DEFAULT '',
	cost_usd          REAL NOT NULL DEFAULT 0,
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens      INTEGER NOT NULL DEFAULT 0,
	execution_seconds REAL NOT NULL DEFAULT 0,
	success           INTEGER NOT NULL DEFAULT 0,
	error_type        TEXT NOT NULL DEFAULT '',
	request_id        TEXT NOT NULL DEFAULT '',
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_scan_stage ON metrics (scan_id, stage);
`

// Store persists metrics to SQLite. Safe for concurrent use; database/sql
// serializes access to the single connection pool.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the metrics database at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metrics database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping metrics database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create metrics schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one metric. A zero CreatedAt is stamped with the current
// time.
func (s *Store) Record(ctx context.Context, m Metric) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metrics (
			scan_id, stage, item_key, provider, model,
			cost_usd, prompt_tokens, completion_tokens, total_tokens,
			execution_seconds, success, error_type, request_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ScanID, m.Stage, m.ItemKey, m.Provider, m.Model,
		m.CostUSD, m.PromptTokens, m.CompletionTokens, m.TotalTokens,
		m.ExecutionSeconds, boolToInt(m.Success), m.ErrorType, m.RequestID,
		m.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeFromUnix(sec int64) time.Time {
	return time.Unix(sec, 0)
}
