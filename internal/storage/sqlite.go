package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Every pooled connection gets the same pragmas; write transactions take the
// RESERVED lock up front so concurrent instances serialize on BEGIN instead of
// failing mid-transaction.
const dsnParams = "?_txlock=immediate" +
	"&_pragma=foreign_keys(1)" +
	"&_pragma=busy_timeout(5000)" +
	"&_pragma=journal_mode(WAL)"

// OpenSQLite opens (and creates if needed) the shared execution store at path
// and ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	if _, err := CheckLocalFilesystem(path); errors.Is(err, ErrNetworkFilesystem) {
		return nil, err
	}

	db, err := sql.Open("sqlite", path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS job_instance (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  job_name    TEXT NOT NULL,
  created_at  TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS job_execution (
  id             INTEGER PRIMARY KEY AUTOINCREMENT,
  instance_id    INTEGER NOT NULL REFERENCES job_instance(id),
  job_name       TEXT NOT NULL,
  owner          TEXT NOT NULL,
  fencing_token  INTEGER NOT NULL DEFAULT 0,
  status         TEXT NOT NULL,
  created_at     TEXT NOT NULL,
  start_time     TEXT,
  end_time       TEXT,
  exit_message   TEXT NOT NULL DEFAULT ''
);`,
		`CREATE TABLE IF NOT EXISTS step_execution (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  execution_id  INTEGER NOT NULL REFERENCES job_execution(id),
  step_name     TEXT NOT NULL,
  status        TEXT NOT NULL,
  start_time    TEXT,
  end_time      TEXT,
  chunk_count   INTEGER NOT NULL DEFAULT 0,
  exit_message  TEXT NOT NULL DEFAULT ''
);`,
		`CREATE TABLE IF NOT EXISTS staged_record (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  source        TEXT NOT NULL,
  payload       JSON NOT NULL,
  staged_at     TEXT NOT NULL,
  published_at  TEXT
);`,
		`CREATE INDEX IF NOT EXISTS job_instance_name_idx ON job_instance(job_name, id);`,
		`CREATE INDEX IF NOT EXISTS job_execution_instance_idx ON job_execution(instance_id);`,
		`CREATE INDEX IF NOT EXISTS job_execution_name_status_idx ON job_execution(job_name, status);`,
		`CREATE INDEX IF NOT EXISTS step_execution_execution_idx ON step_execution(execution_id);`,
		`CREATE INDEX IF NOT EXISTS staged_record_unpublished_idx ON staged_record(published_at, id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
