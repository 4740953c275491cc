package store

import "time"

// Run is one analysis of a source file through a chain of stages.
type Run struct {
	ID         int64
	UUID       string
	Label      string
	Language   string
	Compiler   string
	SourceHash string
	CreatedAt  time.Time
}

// Snapshot is the classified output of one stage. Stage 0 is the initial
// compile; Passes is empty for it.
type Snapshot struct {
	ID          int64
	RunID       int64
	Stage       int
	Passes      string
	ContentHash string
	RecordCount int
	Truncated   bool
	Cycles      []string
}

// SnapshotLine is one output record of a snapshot. File, Line and Col are
// only meaningful when Resolved is set.
type SnapshotLine struct {
	ID         int64
	SnapshotID int64
	Ordinal    int
	Text       string
	ScopeID    string
	Resolved   bool
	File       string
	Line       int
	Col        int
}

// LiveLine is one member of a snapshot's live-line set, in first-reference
// order.
type LiveLine struct {
	ID         int64
	SnapshotID int64
	Ordinal    int
	Line       int
}

// Diff kinds.
const (
	DiffOverall = "overall"
	DiffStep    = "step"
)

// Diff compares the live-line sets of two snapshots of the same run.
type Diff struct {
	ID               int64
	RunID            int64
	BeforeSnapshotID int64
	AfterSnapshotID  int64
	Kind             string
}

// Diff line statuses.
const (
	StatusRetained = "retained"
	StatusRemoved  = "removed"
)

// DiffLine is one source line of a diff's before set. Function names the
// enclosing source function when an outline was available.
type DiffLine struct {
	ID       int64
	DiffID   int64
	Ordinal  int
	Line     int
	Status   string
	Function string
}
