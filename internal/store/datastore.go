package store

// DataStore is the write-side interface used by the pipeline. Both Store
// (direct SQLite) and BatchedStore (in-memory buffering so a run lands in
// one transaction) implement it.
type DataStore interface {
	// Inserts return the assigned ID.
	InsertRun(run *Run) (int64, error)
	InsertSnapshot(snap *Snapshot) (int64, error)
	InsertSnapshotLine(line *SnapshotLine) (int64, error)
	InsertLiveLine(ll *LiveLine) (int64, error)
	InsertDiff(d *Diff) (int64, error)
	InsertDiffLine(dl *DiffLine) (int64, error)

	// RunByUUID returns nil, nil when no run has the UUID.
	RunByUUID(uuid string) (*Run, error)
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
