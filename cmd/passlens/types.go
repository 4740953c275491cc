package main

import (
	"time"

	"github.com/jward/passlens"
	"github.com/jward/passlens/internal/llvmir"
)

// CLIResult is the top-level envelope for every command's output.
type CLIResult struct {
	Command string `json:"command" yaml:"command"`
	Results any    `json:"results" yaml:"results"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// CLIRun is a persisted run without its snapshots.
type CLIRun struct {
	ID         int64     `json:"id" yaml:"id"`
	UUID       string    `json:"uuid" yaml:"uuid"`
	Label      string    `json:"label" yaml:"label"`
	Language   string    `json:"language,omitempty" yaml:"language,omitempty"`
	Compiler   string    `json:"compiler,omitempty" yaml:"compiler,omitempty"`
	SourceHash string    `json:"source_hash" yaml:"source_hash"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// CLISnapshot is one stage of a persisted run.
type CLISnapshot struct {
	ID          int64    `json:"id" yaml:"id"`
	Stage       int      `json:"stage" yaml:"stage"`
	Passes      []string `json:"passes,omitempty" yaml:"passes,omitempty"`
	Records     int      `json:"records" yaml:"records"`
	Truncated   bool     `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	Cycles      []string `json:"cycles,omitempty" yaml:"cycles,omitempty"`
	ContentHash string   `json:"content_hash" yaml:"content_hash"`
	LiveLines   []int    `json:"live_lines" yaml:"live_lines"`
}

// CLIDiff is a persisted retained/removed partition.
type CLIDiff struct {
	Kind      string         `json:"kind" yaml:"kind"`
	Before    int64          `json:"before_snapshot" yaml:"before_snapshot"`
	After     int64          `json:"after_snapshot" yaml:"after_snapshot"`
	Retained  []int          `json:"retained" yaml:"retained"`
	Removed   []int          `json:"removed" yaml:"removed"`
	Functions map[int]string `json:"functions,omitempty" yaml:"functions,omitempty"`
}

// CLIRunDetail is the output of `show`.
type CLIRunDetail struct {
	Run       CLIRun        `json:"run" yaml:"run"`
	Snapshots []CLISnapshot `json:"snapshots" yaml:"snapshots"`
	Diffs     []CLIDiff     `json:"diffs" yaml:"diffs"`
}

// CLIRecord is one classified record.
type CLIRecord struct {
	Index  int                    `json:"index" yaml:"index"`
	Text   string                 `json:"text" yaml:"text"`
	Scope  string                 `json:"scope,omitempty" yaml:"scope,omitempty"`
	Source *llvmir.SourceLocation `json:"source,omitempty" yaml:"source,omitempty"`
}

// CLIClassification is the output of `classify`.
type CLIClassification struct {
	File      string      `json:"file" yaml:"file"`
	Records   []CLIRecord `json:"records" yaml:"records"`
	LiveLines []int       `json:"live_lines" yaml:"live_lines"`
	Truncated bool        `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	Cycles    []string    `json:"cycles,omitempty" yaml:"cycles,omitempty"`
}

// CLIRange is the output of `range`: the records a source line produced.
type CLIRange struct {
	SnapshotID int64       `json:"snapshot_id" yaml:"snapshot_id"`
	Line       int         `json:"line" yaml:"line"`
	First      int         `json:"first" yaml:"first"`
	Last       int         `json:"last" yaml:"last"`
	Records    []CLIRecord `json:"records" yaml:"records"`
}

func runToCLI(r *passlens.Run) CLIRun {
	return CLIRun{
		ID:         r.ID,
		UUID:       r.UUID,
		Label:      r.Label,
		Language:   r.Language,
		Compiler:   r.Compiler,
		SourceHash: r.SourceHash,
		CreatedAt:  r.CreatedAt,
	}
}

func snapshotLineToCLI(l *passlens.SnapshotLine) CLIRecord {
	rec := CLIRecord{Index: l.Ordinal, Text: l.Text, Scope: l.ScopeID}
	if l.Resolved {
		rec.Source = &llvmir.SourceLocation{File: l.File, Line: l.Line, Column: l.Col}
	}
	return rec
}

func snapshotToCLIRecords(snap *llvmir.Snapshot) []CLIRecord {
	recs := make([]CLIRecord, len(snap.Lines))
	for i, l := range snap.Lines {
		recs[i] = CLIRecord{Index: i, Text: l.Text, Scope: string(l.ScopeID), Source: l.Source}
	}
	return recs
}

func refIDsToStrings(ids []llvmir.RefID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
