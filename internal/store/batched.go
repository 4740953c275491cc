package store

import "sync"

// BatchedStore buffers a run's inserts in memory using fake (negative) IDs.
// It implements DataStore so the pipeline can write to it without knowing
// whether it is hitting SQLite or an in-memory buffer. CommitBatch later
// writes everything in one transaction.
//
// Thread safety: the mutex protects fake ID allocation and slice appends.
// RunByUUID checks the buffer first and then passes through to the
// underlying Store, which is safe for concurrent reads.
type BatchedStore struct {
	store *Store // for read passthrough; may be nil
	mu    sync.Mutex

	Runs          []Run
	Snapshots     []Snapshot
	SnapshotLines []SnapshotLine
	LiveLines     []LiveLine
	Diffs         []Diff
	DiffLines     []DiffLine

	nextFakeID int64 // starts at -1, decrements
}

// Compile-time check: *BatchedStore satisfies DataStore.
var _ DataStore = (*BatchedStore)(nil)

// NewBatchedStore creates a BatchedStore backed by s for read queries. s
// may be nil when the batch is never committed.
func NewBatchedStore(s *Store) *BatchedStore {
	return &BatchedStore{
		store:      s,
		nextFakeID: -1,
	}
}

func (b *BatchedStore) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

func (b *BatchedStore) InsertRun(run *Run) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	run.ID = fakeID
	b.Runs = append(b.Runs, *run)
	return fakeID, nil
}

func (b *BatchedStore) InsertSnapshot(snap *Snapshot) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	snap.ID = fakeID
	b.Snapshots = append(b.Snapshots, *snap)
	return fakeID, nil
}

func (b *BatchedStore) InsertSnapshotLine(line *SnapshotLine) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	line.ID = fakeID
	b.SnapshotLines = append(b.SnapshotLines, *line)
	return fakeID, nil
}

func (b *BatchedStore) InsertLiveLine(ll *LiveLine) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	ll.ID = fakeID
	b.LiveLines = append(b.LiveLines, *ll)
	return fakeID, nil
}

func (b *BatchedStore) InsertDiff(d *Diff) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	d.ID = fakeID
	b.Diffs = append(b.Diffs, *d)
	return fakeID, nil
}

func (b *BatchedStore) InsertDiffLine(dl *DiffLine) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	dl.ID = fakeID
	b.DiffLines = append(b.DiffLines, *dl)
	return fakeID, nil
}

// RunByUUID merges buffered runs with committed ones. Buffered runs win.
func (b *BatchedStore) RunByUUID(uuid string) (*Run, error) {
	b.mu.Lock()
	for i := range b.Runs {
		if b.Runs[i].UUID == uuid {
			r := b.Runs[i]
			b.mu.Unlock()
			return &r, nil
		}
	}
	b.mu.Unlock()

	if b.store == nil {
		return nil, nil
	}
	return b.store.RunByUUID(uuid)
}

// Len returns the number of buffered rows across all tables.
func (b *BatchedStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Runs) + len(b.Snapshots) + len(b.SnapshotLines) +
		len(b.LiveLines) + len(b.Diffs) + len(b.DiffLines)
}
