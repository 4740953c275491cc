package passlens

import (
	"fmt"

	"github.com/jward/passlens/internal/store"
)

// QueryBuilder provides read access to persisted runs.
type QueryBuilder struct {
	store *store.Store
}

// Location is a resolved source position of one IR record.
type Location struct {
	File string `json:"file,omitempty" yaml:"file,omitempty"`
	Line int    `json:"line" yaml:"line"`
	Col  int    `json:"col,omitempty" yaml:"col,omitempty"`
}

// RecordRange is an inclusive range of 0-based record indexes within one
// snapshot.
type RecordRange struct {
	First int `json:"first" yaml:"first"`
	Last  int `json:"last" yaml:"last"`
}

// Runs returns the most recent runs first. limit <= 0 returns all of them.
func (q *QueryBuilder) Runs(limit int) ([]*Run, error) {
	return q.store.Runs(limit)
}

// RunByUUID returns nil, nil when the run does not exist.
func (q *QueryBuilder) RunByUUID(id string) (*Run, error) {
	return q.store.RunByUUID(id)
}

// Snapshot returns nil, nil when the snapshot does not exist.
func (q *QueryBuilder) Snapshot(id int64) (*SnapshotRow, error) {
	return q.store.SnapshotByID(id)
}

// Snapshots returns a run's snapshots in stage order.
func (q *QueryBuilder) Snapshots(runID int64) ([]*SnapshotRow, error) {
	return q.store.SnapshotsByRun(runID)
}

// Lines returns a snapshot's classified records in output order.
func (q *QueryBuilder) Lines(snapshotID int64) ([]*SnapshotLine, error) {
	return q.store.SnapshotLines(snapshotID)
}

// LiveLines returns a snapshot's live-line set in first-reference order.
func (q *QueryBuilder) LiveLines(snapshotID int64) ([]int, error) {
	return q.store.LiveLines(snapshotID)
}

// Diffs returns a run's diffs, overall first.
func (q *QueryBuilder) Diffs(runID int64) ([]*DiffRow, error) {
	return q.store.DiffsByRun(runID)
}

// DiffLines returns a diff's lines in the before snapshot's order.
func (q *QueryBuilder) DiffLines(diffID int64) ([]*DiffLine, error) {
	return q.store.DiffLines(diffID)
}

// RecordRange finds the block of records generated for a 1-based source
// line: the first record resolved to that line plus every record directly
// after it that resolves to the same line. Returns nil when no record maps
// to the line. The search does not stop at records with a later line, since
// optimized IR is not ordered by source line.
func (q *QueryBuilder) RecordRange(snapshotID int64, sourceLine int) (*RecordRange, error) {
	rows, err := q.store.DB().Query(
		`SELECT ordinal, resolved, line FROM snapshot_lines
		 WHERE snapshot_id = ? AND ordinal >= (
		   SELECT MIN(ordinal) FROM snapshot_lines
		   WHERE snapshot_id = ? AND resolved AND line = ?)
		 ORDER BY ordinal`,
		snapshotID, snapshotID, sourceLine,
	)
	if err != nil {
		return nil, fmt.Errorf("record range: %w", err)
	}
	defer rows.Close()

	var rr *RecordRange
	for rows.Next() {
		var ordinal, line int
		var resolved bool
		if err := rows.Scan(&ordinal, &resolved, &line); err != nil {
			return nil, fmt.Errorf("record range: scan: %w", err)
		}
		if !resolved || line != sourceLine {
			break
		}
		if rr == nil {
			rr = &RecordRange{First: ordinal}
		}
		rr.Last = ordinal
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("record range: rows: %w", err)
	}
	return rr, nil
}

// SourceLineAt returns the source location of the record at a 0-based
// index, or nil when the record does not exist or has no location.
func (q *QueryBuilder) SourceLineAt(snapshotID int64, record int) (*Location, error) {
	l, err := q.store.SnapshotLineAt(snapshotID, record)
	if err != nil {
		return nil, fmt.Errorf("source line at: %w", err)
	}
	if l == nil || !l.Resolved || l.Line == 0 {
		return nil, nil
	}
	return &Location{File: l.File, Line: l.Line, Col: l.Col}, nil
}
