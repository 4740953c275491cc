package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTestRun inserts a run and returns it with ID set.
func insertTestRun(t *testing.T, s *Store, uuid string, created time.Time) *Run {
	t.Helper()
	r := &Run{UUID: uuid, Label: "example.cpp", Language: "c++", Compiler: "clang1600", SourceHash: "abc", CreatedAt: created}
	id, err := s.InsertRun(r)
	require.NoError(t, err)
	require.Positive(t, id)
	return r
}

func insertTestSnapshot(t *testing.T, s *Store, runID int64, stage int, passes string) *Snapshot {
	t.Helper()
	snap := &Snapshot{RunID: runID, Stage: stage, Passes: passes, ContentHash: "h", RecordCount: 3}
	_, err := s.InsertSnapshot(snap)
	require.NoError(t, err)
	return snap
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"runs", "snapshots", "snapshot_lines", "live_lines", "diffs", "diff_lines", "metadata"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())

	v, ok, err := s.Meta("schema_version")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestMeta_MissingKey(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, ok, err := s.Meta("nope")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMeta("k", "a"))
	require.NoError(t, s.SetMeta("k", "b"))
	v, ok, err := s.Meta("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

// =============================================================================
// Runs
// =============================================================================

func TestRun_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := insertTestRun(t, s, "u-1", created)

	got, err := s.RunByUUID("u-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, "example.cpp", got.Label)
	assert.Equal(t, "c++", got.Language)
	assert.Equal(t, "clang1600", got.Compiler)
	assert.True(t, created.Equal(got.CreatedAt))
}

func TestRun_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	r, err := s.RunByUUID("missing")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestRun_DuplicateUUIDRejected(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestRun(t, s, "dup", time.Now())

	_, err := s.InsertRun(&Run{UUID: "dup", Label: "x"})
	assert.Error(t, err)
}

func TestRuns_NewestFirstWithLimit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	insertTestRun(t, s, "old", base)
	insertTestRun(t, s, "mid", base.Add(time.Hour))
	insertTestRun(t, s, "new", base.Add(2*time.Hour))

	runs, err := s.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "new", runs[0].UUID)
	assert.Equal(t, "old", runs[2].UUID)

	runs, err = s.Runs(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "mid", runs[1].UUID)
}

// =============================================================================
// Snapshots & lines
// =============================================================================

func TestSnapshots_OrderedByStage(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	r := insertTestRun(t, s, "u", time.Now())
	insertTestSnapshot(t, s, r.ID, 1, "instcombine")
	insertTestSnapshot(t, s, r.ID, 0, "")

	snaps, err := s.SnapshotsByRun(r.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 0, snaps[0].Stage)
	assert.Equal(t, "", snaps[0].Passes)
	assert.Equal(t, "instcombine", snaps[1].Passes)
}

func TestSnapshot_CyclesAndTruncated(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	r := insertTestRun(t, s, "u", time.Now())
	snap := &Snapshot{RunID: r.ID, Truncated: true, Cycles: []string{"!3", "!9"}}
	_, err := s.InsertSnapshot(snap)
	require.NoError(t, err)

	got, err := s.SnapshotByID(snap.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Truncated)
	assert.Equal(t, []string{"!3", "!9"}, got.Cycles)

	missing, err := s.SnapshotByID(999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSnapshotLines_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	r := insertTestRun(t, s, "u", time.Now())
	snap := insertTestSnapshot(t, s, r.ID, 0, "")

	lines := []*SnapshotLine{
		{SnapshotID: snap.ID, Ordinal: 1, Text: "  ret i32 0, !dbg !7", ScopeID: "!7", Resolved: true, File: "a.c", Line: 3, Col: 5},
		{SnapshotID: snap.ID, Ordinal: 0, Text: "define i32 @main() {"},
	}
	for _, l := range lines {
		_, err := s.InsertSnapshotLine(l)
		require.NoError(t, err)
	}

	got, err := s.SnapshotLines(snap.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "define i32 @main() {", got[0].Text)
	assert.Equal(t, "", got[0].ScopeID)
	assert.False(t, got[0].Resolved)

	assert.Equal(t, "!7", got[1].ScopeID)
	assert.True(t, got[1].Resolved)
	assert.Equal(t, "a.c", got[1].File)
	assert.Equal(t, 3, got[1].Line)
	assert.Equal(t, 5, got[1].Col)

	at, err := s.SnapshotLineAt(snap.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.Equal(t, "!7", at.ScopeID)

	at, err = s.SnapshotLineAt(snap.ID, 7)
	require.NoError(t, err)
	assert.Nil(t, at)
}

func TestLiveLines_FirstReferenceOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	r := insertTestRun(t, s, "u", time.Now())
	snap := insertTestSnapshot(t, s, r.ID, 0, "")

	for i, n := range []int{9, 2, 5} {
		_, err := s.InsertLiveLine(&LiveLine{SnapshotID: snap.ID, Ordinal: i, Line: n})
		require.NoError(t, err)
	}

	got, err := s.LiveLines(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{9, 2, 5}, got)

	empty, err := s.LiveLines(snap.ID + 100)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

// =============================================================================
// Diffs
// =============================================================================

func TestDiffs_OverallFirstThenStageOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	r := insertTestRun(t, s, "u", time.Now())
	s0 := insertTestSnapshot(t, s, r.ID, 0, "")
	s1 := insertTestSnapshot(t, s, r.ID, 1, "a")
	s2 := insertTestSnapshot(t, s, r.ID, 2, "b")

	for _, d := range []*Diff{
		{RunID: r.ID, BeforeSnapshotID: s1.ID, AfterSnapshotID: s2.ID, Kind: DiffStep},
		{RunID: r.ID, BeforeSnapshotID: s0.ID, AfterSnapshotID: s1.ID, Kind: DiffStep},
		{RunID: r.ID, BeforeSnapshotID: s0.ID, AfterSnapshotID: s2.ID, Kind: DiffOverall},
	} {
		_, err := s.InsertDiff(d)
		require.NoError(t, err)
	}

	diffs, err := s.DiffsByRun(r.ID)
	require.NoError(t, err)
	require.Len(t, diffs, 3)
	assert.Equal(t, DiffOverall, diffs[0].Kind)
	assert.Equal(t, s0.ID, diffs[1].BeforeSnapshotID)
	assert.Equal(t, s1.ID, diffs[2].BeforeSnapshotID)
}

func TestDiffLines_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	r := insertTestRun(t, s, "u", time.Now())
	s0 := insertTestSnapshot(t, s, r.ID, 0, "")
	s1 := insertTestSnapshot(t, s, r.ID, 1, "a")
	d := &Diff{RunID: r.ID, BeforeSnapshotID: s0.ID, AfterSnapshotID: s1.ID, Kind: DiffOverall}
	_, err := s.InsertDiff(d)
	require.NoError(t, err)

	_, err = s.InsertDiffLine(&DiffLine{DiffID: d.ID, Ordinal: 1, Line: 2, Status: StatusRemoved})
	require.NoError(t, err)
	_, err = s.InsertDiffLine(&DiffLine{DiffID: d.ID, Ordinal: 0, Line: 1, Status: StatusRetained, Function: "main"})
	require.NoError(t, err)

	lines, err := s.DiffLines(d.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].Line)
	assert.Equal(t, StatusRetained, lines[0].Status)
	assert.Equal(t, "main", lines[0].Function)
	assert.Equal(t, StatusRemoved, lines[1].Status)
	assert.Equal(t, "", lines[1].Function)
}

func TestDeleteRun_RemovesEverything(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	r := insertTestRun(t, s, "gone", time.Now())
	keep := insertTestRun(t, s, "kept", time.Now())
	s0 := insertTestSnapshot(t, s, r.ID, 0, "")
	s1 := insertTestSnapshot(t, s, r.ID, 1, "a")
	k0 := insertTestSnapshot(t, s, keep.ID, 0, "")
	_, err := s.InsertSnapshotLine(&SnapshotLine{SnapshotID: s0.ID, Text: "x"})
	require.NoError(t, err)
	_, err = s.InsertLiveLine(&LiveLine{SnapshotID: s0.ID, Line: 1})
	require.NoError(t, err)
	d := &Diff{RunID: r.ID, BeforeSnapshotID: s0.ID, AfterSnapshotID: s1.ID, Kind: DiffOverall}
	_, err = s.InsertDiff(d)
	require.NoError(t, err)
	_, err = s.InsertDiffLine(&DiffLine{DiffID: d.ID, Line: 1, Status: StatusRetained})
	require.NoError(t, err)

	require.NoError(t, s.DeleteRun(r.ID))

	for _, table := range []string{"diff_lines", "diffs", "live_lines", "snapshot_lines"} {
		var n int
		require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		assert.Zero(t, n, table)
	}
	got, err := s.RunByUUID("gone")
	require.NoError(t, err)
	assert.Nil(t, got)

	snaps, err := s.SnapshotsByRun(keep.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, k0.ID, snaps[0].ID)
}

// =============================================================================
// Content hash
// =============================================================================

func TestContentHash(t *testing.T) {
	t.Parallel()
	a := ContentHash([]string{"ab", "c"})
	assert.Len(t, a, 16)
	assert.Equal(t, a, ContentHash([]string{"ab", "c"}))
	assert.NotEqual(t, a, ContentHash([]string{"a", "bc"}))
	assert.NotEqual(t, a, ContentHash([]string{"c", "ab"}))
	assert.NotEqual(t, ContentHash(nil), ContentHash([]string{""}))
}
