package store

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaVersion is written to the metadata table by Migrate.
const SchemaVersion = 1

// Store is the SQLite data access layer for pipeline runs and their
// snapshots, live-line sets and diffs.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes and records the schema version.
// Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := s.SetMeta("schema_version", strconv.Itoa(SchemaVersion)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
  id              INTEGER PRIMARY KEY,
  uuid            TEXT NOT NULL UNIQUE,
  label           TEXT NOT NULL,
  language        TEXT,
  compiler        TEXT,
  source_hash     TEXT,
  created_at      TIMESTAMP
);

CREATE TABLE IF NOT EXISTS snapshots (
  id              INTEGER PRIMARY KEY,
  run_id          INTEGER NOT NULL REFERENCES runs(id),
  stage           INTEGER NOT NULL,
  passes          TEXT,
  content_hash    TEXT,
  record_count    INTEGER NOT NULL DEFAULT 0,
  truncated       BOOLEAN DEFAULT FALSE,
  cycles          TEXT
);

CREATE TABLE IF NOT EXISTS snapshot_lines (
  id              INTEGER PRIMARY KEY,
  snapshot_id     INTEGER NOT NULL REFERENCES snapshots(id),
  ordinal         INTEGER NOT NULL,
  text            TEXT NOT NULL,
  scope_id        TEXT,
  resolved        BOOLEAN DEFAULT FALSE,
  file            TEXT,
  line            INTEGER,
  col             INTEGER
);

CREATE TABLE IF NOT EXISTS live_lines (
  id              INTEGER PRIMARY KEY,
  snapshot_id     INTEGER NOT NULL REFERENCES snapshots(id),
  ordinal         INTEGER NOT NULL,
  line            INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS diffs (
  id                 INTEGER PRIMARY KEY,
  run_id             INTEGER NOT NULL REFERENCES runs(id),
  before_snapshot_id INTEGER NOT NULL REFERENCES snapshots(id),
  after_snapshot_id  INTEGER NOT NULL REFERENCES snapshots(id),
  kind               TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS diff_lines (
  id              INTEGER PRIMARY KEY,
  diff_id         INTEGER NOT NULL REFERENCES diffs(id),
  ordinal         INTEGER NOT NULL,
  line            INTEGER NOT NULL,
  status          TEXT NOT NULL,
  function        TEXT
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_run ON snapshots(run_id);
CREATE INDEX IF NOT EXISTS idx_snapshot_lines_snapshot ON snapshot_lines(snapshot_id, ordinal);
CREATE INDEX IF NOT EXISTS idx_snapshot_lines_line ON snapshot_lines(snapshot_id, line);
CREATE INDEX IF NOT EXISTS idx_live_lines_snapshot ON live_lines(snapshot_id, ordinal);
CREATE INDEX IF NOT EXISTS idx_diffs_run ON diffs(run_id);
CREATE INDEX IF NOT EXISTS idx_diff_lines_diff ON diff_lines(diff_id, ordinal);
`

// SetMeta upserts a metadata key.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set meta %q: %w", key, err)
	}
	return nil
}

// Meta returns a metadata value. A missing key yields ok=false.
func (s *Store) Meta(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("meta %q: %w", key, err)
	}
	return value, true, nil
}

// DeleteRun transactionally removes a run with its snapshots, lines and
// diffs. Deletes in reverse-dependency order to respect FK constraints.
func (s *Store) DeleteRun(runID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM diff_lines WHERE diff_id IN (SELECT id FROM diffs WHERE run_id = ?)",
		"DELETE FROM diffs WHERE run_id = ?",
		"DELETE FROM live_lines WHERE snapshot_id IN (SELECT id FROM snapshots WHERE run_id = ?)",
		"DELETE FROM snapshot_lines WHERE snapshot_id IN (SELECT id FROM snapshots WHERE run_id = ?)",
		"DELETE FROM snapshots WHERE run_id = ?",
		"DELETE FROM runs WHERE id = ?",
	} {
		if _, err := tx.Exec(q, runID); err != nil {
			return fmt.Errorf("delete run %d: %w", runID, err)
		}
	}
	return tx.Commit()
}
