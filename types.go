package passlens

import (
	"github.com/jward/passlens/internal/llvmir"
	"github.com/jward/passlens/internal/runtime"
	"github.com/jward/passlens/internal/store"
)

// Public type aliases for internal types used in the Engine and
// QueryBuilder APIs.

type Store = store.Store
type Run = store.Run
type SnapshotRow = store.Snapshot
type SnapshotLine = store.SnapshotLine
type DiffRow = store.Diff
type DiffLine = store.DiffLine
type Outline = runtime.Outline
type FunctionSpan = runtime.FunctionSpan

// AnalyzeRequest describes one source file to push through a pass chain.
type AnalyzeRequest struct {
	// Path labels the run and, when Source is nil, is loaded as the source.
	// It may be a local path or any URL the afs service understands.
	Path   string
	Source []byte
	// Language is the Compiler Explorer language id. Empty means derive it
	// from Path's extension.
	Language    string
	Compiler    string
	UserOptions string
	Includes    []string
	// Passes lists one pass group per opt stage.
	Passes [][]string
}

// Stage is one classified snapshot of a run. Stage 0 is the initial
// compile; stage i > 0 ran Passes on stage i-1.
type Stage struct {
	Index     int              `json:"stage" yaml:"stage"`
	Passes    []string         `json:"passes,omitempty" yaml:"passes,omitempty"`
	Snapshot  *llvmir.Snapshot `json:"-" yaml:"-"`
	Live      llvmir.LineSet   `json:"live_lines" yaml:"live_lines"`
	Records   int              `json:"records" yaml:"records"`
	Truncated bool             `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	Cycles    []llvmir.RefID   `json:"cycles,omitempty" yaml:"cycles,omitempty"`
}

// DiffReport partitions one snapshot's live lines by whether they survive
// into a later snapshot.
type DiffReport struct {
	Kind     string `json:"kind" yaml:"kind"`
	Before   int    `json:"before" yaml:"before"`
	After    int    `json:"after" yaml:"after"`
	Retained []int  `json:"retained" yaml:"retained"`
	Removed  []int  `json:"removed" yaml:"removed"`
	// Functions maps source lines to their enclosing function when an
	// outline of the source was available.
	Functions map[int]string `json:"functions,omitempty" yaml:"functions,omitempty"`
}

// Result is everything one run produced.
type Result struct {
	RunUUID string        `json:"run" yaml:"run"`
	Label   string        `json:"label" yaml:"label"`
	Stages  []*Stage      `json:"stages" yaml:"stages"`
	Overall *DiffReport   `json:"overall,omitempty" yaml:"overall,omitempty"`
	Steps   []*DiffReport `json:"steps,omitempty" yaml:"steps,omitempty"`
}
