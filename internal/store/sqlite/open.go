// Package sqlite implements the store contracts on a local SQLite file for
// standalone deployments without Postgres.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS scheduled_prompt (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	cron_expression TEXT NOT NULL,
	timezone TEXT NOT NULL DEFAULT 'UTC',
	enabled INTEGER NOT NULL DEFAULT 1,
	model_id TEXT NOT NULL,
	system_prompt TEXT,
	prompt TEXT NOT NULL,
	chat_id TEXT,
	create_new_chat INTEGER NOT NULL DEFAULT 1,
	run_once INTEGER NOT NULL DEFAULT 0,
	tool_ids TEXT,
	function_calling_mode TEXT NOT NULL DEFAULT 'default',
	last_run_at INTEGER,
	next_run_at INTEGER,
	last_status TEXT,
	last_error TEXT,
	run_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS scheduled_prompt_user_id_idx ON scheduled_prompt (user_id);
CREATE INDEX IF NOT EXISTS scheduled_prompt_enabled_next_run_idx ON scheduled_prompt (enabled, next_run_at);

CREATE TABLE IF NOT EXISTS chat (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	chat TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS chat_user_id_idx ON chat (user_id);

CREATE TABLE IF NOT EXISTS app_user (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT,
	settings TEXT
);
`

// OpenDB opens (creating if needed) the SQLite database at path and ensures
// the schema exists. The single-writer limit is enforced via the pool since
// modernc's driver serializes writes per connection.
func OpenDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	slog.Info("sqlite ready", "path", path)
	return db, nil
}
