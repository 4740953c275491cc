package store

import (
	"database/sql"
	"strings"
)

// execer is satisfied by both *sql.DB and *sql.Tx so insert helpers are
// shared between Store methods and CommitBatch.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// joinCycles stores a cycle list as comma-separated metadata IDs.
func joinCycles(ids []string) string {
	return strings.Join(ids, ",")
}

func splitCycles(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
