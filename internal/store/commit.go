package store

import "fmt"

// CommitBatch inserts all buffered data from a BatchedStore into SQLite
// within a single transaction. Fake (negative) IDs are remapped to real
// IDs, and all FK references within the batch are rewritten using the
// fakeToReal mapping.
//
// Insert order respects FK dependencies:
//  1. Runs
//  2. Snapshots (depend on run_id)
//  3. SnapshotLines (depend on snapshot_id)
//  4. LiveLines (depend on snapshot_id)
//  5. Diffs (depend on run_id and both snapshot ids)
//  6. DiffLines (depend on diff_id)
func (s *Store) CommitBatch(batch *BatchedStore) error {
	batch.mu.Lock()
	defer batch.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	fakeToReal := make(map[int64]int64)
	remap := func(id int64) int64 {
		if id < 0 {
			return fakeToReal[id]
		}
		return id
	}

	// 1. Runs
	for _, run := range batch.Runs {
		realID, err := insertRun(tx, &run)
		if err != nil {
			return fmt.Errorf("commit batch: run %s: %w", run.UUID, err)
		}
		fakeToReal[run.ID] = realID
	}

	// 2. Snapshots
	for _, snap := range batch.Snapshots {
		snap.RunID = remap(snap.RunID)
		realID, err := insertSnapshot(tx, &snap)
		if err != nil {
			return fmt.Errorf("commit batch: snapshot stage %d: %w", snap.Stage, err)
		}
		fakeToReal[snap.ID] = realID
	}

	// 3. SnapshotLines
	for _, l := range batch.SnapshotLines {
		l.SnapshotID = remap(l.SnapshotID)
		if _, err := insertSnapshotLine(tx, &l); err != nil {
			return fmt.Errorf("commit batch: snapshot line %d: %w", l.Ordinal, err)
		}
	}

	// 4. LiveLines
	for _, ll := range batch.LiveLines {
		ll.SnapshotID = remap(ll.SnapshotID)
		if _, err := insertLiveLine(tx, &ll); err != nil {
			return fmt.Errorf("commit batch: live line %d: %w", ll.Line, err)
		}
	}

	// 5. Diffs
	for _, d := range batch.Diffs {
		d.RunID = remap(d.RunID)
		d.BeforeSnapshotID = remap(d.BeforeSnapshotID)
		d.AfterSnapshotID = remap(d.AfterSnapshotID)
		realID, err := insertDiff(tx, &d)
		if err != nil {
			return fmt.Errorf("commit batch: diff: %w", err)
		}
		fakeToReal[d.ID] = realID
	}

	// 6. DiffLines
	for _, dl := range batch.DiffLines {
		dl.DiffID = remap(dl.DiffID)
		if _, err := insertDiffLine(tx, &dl); err != nil {
			return fmt.Errorf("commit batch: diff line %d: %w", dl.Line, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}
