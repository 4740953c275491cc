package store

import (
	"database/sql"
	"fmt"
)

// --- Insert helpers shared by Store and CommitBatch ---

func lastID(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertRun(db execer, run *Run) (int64, error) {
	return lastID(db.Exec(
		`INSERT INTO runs (uuid, label, language, compiler, source_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.UUID, run.Label, run.Language, run.Compiler, run.SourceHash, run.CreatedAt,
	))
}

func insertSnapshot(db execer, snap *Snapshot) (int64, error) {
	return lastID(db.Exec(
		`INSERT INTO snapshots (run_id, stage, passes, content_hash, record_count, truncated, cycles)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.RunID, snap.Stage, snap.Passes, snap.ContentHash, snap.RecordCount, snap.Truncated,
		joinCycles(snap.Cycles),
	))
}

func insertSnapshotLine(db execer, l *SnapshotLine) (int64, error) {
	return lastID(db.Exec(
		`INSERT INTO snapshot_lines (snapshot_id, ordinal, text, scope_id, resolved, file, line, col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.SnapshotID, l.Ordinal, l.Text, nullString(l.ScopeID), l.Resolved, l.File, l.Line, l.Col,
	))
}

func insertLiveLine(db execer, ll *LiveLine) (int64, error) {
	return lastID(db.Exec(
		"INSERT INTO live_lines (snapshot_id, ordinal, line) VALUES (?, ?, ?)",
		ll.SnapshotID, ll.Ordinal, ll.Line,
	))
}

func insertDiff(db execer, d *Diff) (int64, error) {
	return lastID(db.Exec(
		"INSERT INTO diffs (run_id, before_snapshot_id, after_snapshot_id, kind) VALUES (?, ?, ?, ?)",
		d.RunID, d.BeforeSnapshotID, d.AfterSnapshotID, d.Kind,
	))
}

func insertDiffLine(db execer, dl *DiffLine) (int64, error) {
	return lastID(db.Exec(
		"INSERT INTO diff_lines (diff_id, ordinal, line, status, function) VALUES (?, ?, ?, ?, ?)",
		dl.DiffID, dl.Ordinal, dl.Line, dl.Status, nullString(dl.Function),
	))
}

// --- Run operations ---

func (s *Store) InsertRun(run *Run) (int64, error) {
	id, err := insertRun(s.db, run)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	run.ID = id
	return id, nil
}

const runCols = "id, uuid, label, language, compiler, source_hash, created_at"

func scanRun(sc scanner) (*Run, error) {
	r := &Run{}
	var lang, compiler, hash sql.NullString
	var created sql.NullTime
	if err := sc.Scan(&r.ID, &r.UUID, &r.Label, &lang, &compiler, &hash, &created); err != nil {
		return nil, err
	}
	r.Language = lang.String
	r.Compiler = compiler.String
	r.SourceHash = hash.String
	r.CreatedAt = created.Time
	return r, nil
}

func (s *Store) RunByUUID(uuid string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow("SELECT "+runCols+" FROM runs WHERE uuid = ?", uuid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run by uuid: %w", err)
	}
	return r, nil
}

// Runs returns the most recent runs first. limit <= 0 returns all runs.
func (s *Store) Runs(limit int) ([]*Run, error) {
	query := "SELECT " + runCols + " FROM runs ORDER BY created_at DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Snapshot operations ---

func (s *Store) InsertSnapshot(snap *Snapshot) (int64, error) {
	id, err := insertSnapshot(s.db, snap)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	snap.ID = id
	return id, nil
}

const snapshotCols = "id, run_id, stage, passes, content_hash, record_count, truncated, cycles"

func scanSnapshot(sc scanner) (*Snapshot, error) {
	snap := &Snapshot{}
	var passes, hash, cycles sql.NullString
	if err := sc.Scan(&snap.ID, &snap.RunID, &snap.Stage, &passes, &hash,
		&snap.RecordCount, &snap.Truncated, &cycles); err != nil {
		return nil, err
	}
	snap.Passes = passes.String
	snap.ContentHash = hash.String
	snap.Cycles = splitCycles(cycles.String)
	return snap, nil
}

func (s *Store) SnapshotByID(id int64) (*Snapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRow("SELECT "+snapshotCols+" FROM snapshots WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot by id: %w", err)
	}
	return snap, nil
}

// SnapshotsByRun returns a run's snapshots ordered by stage.
func (s *Store) SnapshotsByRun(runID int64) ([]*Snapshot, error) {
	rows, err := s.db.Query("SELECT "+snapshotCols+" FROM snapshots WHERE run_id = ? ORDER BY stage", runID)
	if err != nil {
		return nil, fmt.Errorf("snapshots by run: %w", err)
	}
	defer rows.Close()
	var snaps []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// --- Snapshot line operations ---

func (s *Store) InsertSnapshotLine(line *SnapshotLine) (int64, error) {
	id, err := insertSnapshotLine(s.db, line)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot line: %w", err)
	}
	line.ID = id
	return id, nil
}

const snapshotLineCols = "id, snapshot_id, ordinal, text, scope_id, resolved, file, line, col"

func scanSnapshotLine(sc scanner) (*SnapshotLine, error) {
	l := &SnapshotLine{}
	var scope, file sql.NullString
	var line, col sql.NullInt64
	if err := sc.Scan(&l.ID, &l.SnapshotID, &l.Ordinal, &l.Text, &scope, &l.Resolved, &file, &line, &col); err != nil {
		return nil, err
	}
	l.ScopeID = scope.String
	l.File = file.String
	l.Line = int(line.Int64)
	l.Col = int(col.Int64)
	return l, nil
}

// SnapshotLines returns a snapshot's records in output order.
func (s *Store) SnapshotLines(snapshotID int64) ([]*SnapshotLine, error) {
	rows, err := s.db.Query(
		"SELECT "+snapshotLineCols+" FROM snapshot_lines WHERE snapshot_id = ? ORDER BY ordinal", snapshotID,
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot lines: %w", err)
	}
	defer rows.Close()
	var lines []*SnapshotLine
	for rows.Next() {
		l, err := scanSnapshotLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// SnapshotLineAt returns the record at ordinal, or nil, nil when out of range.
func (s *Store) SnapshotLineAt(snapshotID int64, ordinal int) (*SnapshotLine, error) {
	l, err := scanSnapshotLine(s.db.QueryRow(
		"SELECT "+snapshotLineCols+" FROM snapshot_lines WHERE snapshot_id = ? AND ordinal = ?",
		snapshotID, ordinal,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot line at: %w", err)
	}
	return l, nil
}

// --- Live line operations ---

func (s *Store) InsertLiveLine(ll *LiveLine) (int64, error) {
	id, err := insertLiveLine(s.db, ll)
	if err != nil {
		return 0, fmt.Errorf("insert live line: %w", err)
	}
	ll.ID = id
	return id, nil
}

// LiveLines returns a snapshot's live-line set in first-reference order.
func (s *Store) LiveLines(snapshotID int64) ([]int, error) {
	rows, err := s.db.Query("SELECT line FROM live_lines WHERE snapshot_id = ? ORDER BY ordinal", snapshotID)
	if err != nil {
		return nil, fmt.Errorf("live lines: %w", err)
	}
	defer rows.Close()
	lines := []int{}
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan live line: %w", err)
		}
		lines = append(lines, n)
	}
	return lines, rows.Err()
}

// --- Diff operations ---

func (s *Store) InsertDiff(d *Diff) (int64, error) {
	id, err := insertDiff(s.db, d)
	if err != nil {
		return 0, fmt.Errorf("insert diff: %w", err)
	}
	d.ID = id
	return id, nil
}

// DiffsByRun returns a run's diffs, the overall diff first and then the
// step diffs in stage order.
func (s *Store) DiffsByRun(runID int64) ([]*Diff, error) {
	rows, err := s.db.Query(
		`SELECT d.id, d.run_id, d.before_snapshot_id, d.after_snapshot_id, d.kind
		 FROM diffs d JOIN snapshots b ON b.id = d.before_snapshot_id
		 WHERE d.run_id = ?
		 ORDER BY CASE d.kind WHEN 'overall' THEN 0 ELSE 1 END, b.stage, d.id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("diffs by run: %w", err)
	}
	defer rows.Close()
	var diffs []*Diff
	for rows.Next() {
		d := &Diff{}
		if err := rows.Scan(&d.ID, &d.RunID, &d.BeforeSnapshotID, &d.AfterSnapshotID, &d.Kind); err != nil {
			return nil, fmt.Errorf("scan diff: %w", err)
		}
		diffs = append(diffs, d)
	}
	return diffs, rows.Err()
}

func (s *Store) InsertDiffLine(dl *DiffLine) (int64, error) {
	id, err := insertDiffLine(s.db, dl)
	if err != nil {
		return 0, fmt.Errorf("insert diff line: %w", err)
	}
	dl.ID = id
	return id, nil
}

// DiffLines returns a diff's lines in the before set's order.
func (s *Store) DiffLines(diffID int64) ([]*DiffLine, error) {
	rows, err := s.db.Query(
		"SELECT id, diff_id, ordinal, line, status, function FROM diff_lines WHERE diff_id = ? ORDER BY ordinal",
		diffID,
	)
	if err != nil {
		return nil, fmt.Errorf("diff lines: %w", err)
	}
	defer rows.Close()
	var lines []*DiffLine
	for rows.Next() {
		dl := &DiffLine{}
		var fn sql.NullString
		if err := rows.Scan(&dl.ID, &dl.DiffID, &dl.Ordinal, &dl.Line, &dl.Status, &fn); err != nil {
			return nil, fmt.Errorf("scan diff line: %w", err)
		}
		dl.Function = fn.String
		lines = append(lines, dl)
	}
	return lines, rows.Err()
}
