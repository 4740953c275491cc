package passlens

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"

	"github.com/jward/passlens/internal/explorer"
	"github.com/jward/passlens/internal/llvmir"
	plrt "github.com/jward/passlens/internal/runtime"
	"github.com/jward/passlens/internal/store"
)

// ErrNoStages is returned when a run would have no snapshots.
var ErrNoStages = errors.New("passlens: no stages")

// Dialect names the cleanup script applied to a stage before it is fed to
// the next one.
const Dialect = "llvm"

// Compiler produces IR for the first stage and runs pass groups for the
// rest. *explorer.Client implements it.
type Compiler interface {
	CompileSource(ctx context.Context, compiler, language, source, userArgs string) (string, error)
	RunPasses(ctx context.Context, ir string, passes []string) (string, error)
}

var _ Compiler = (*explorer.Client)(nil)

// Engine orchestrates the passlens pipeline: compile, run pass stages,
// classify every snapshot, diff live-line sets, and persist the run.
type Engine struct {
	store      *store.Store
	runtime    *plrt.Runtime
	compiler   Compiler
	fs         afs.Service
	scriptsDir string
	scriptsFS  fs.FS
	classify   llvmir.Options
	logger     *slog.Logger

	workers     int
	useParallel bool
	now         func() time.Time
	newID       func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxLines caps the number of records per snapshot. n <= 0 means
// llvmir.DefaultMaxLines.
func WithMaxLines(n int) Option {
	return func(e *Engine) {
		e.classify.MaxLines = n
	}
}

// WithDropComments drops comment-only lines while classifying.
func WithDropComments(drop bool) Option {
	return func(e *Engine) {
		e.classify.DropComments = drop
	}
}

// WithSquashWhitespace collapses whitespace runs in non-definition records.
func WithSquashWhitespace(squash bool) Option {
	return func(e *Engine) {
		e.classify.SquashWhitespace = squash
	}
}

// WithCompiler sets the service used by Analyze and AnalyzeFiles.
func WithCompiler(c Compiler) Option {
	return func(e *Engine) {
		e.compiler = c
	}
}

// WithScriptsFS configures the Engine to load Risor scripts from the given
// filesystem instead of from the scriptsDir path on disk. This enables
// embedding scripts via go:embed.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithLogger routes pipeline and script logs to l.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithWorkers bounds how many files AnalyzeFiles processes at once.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithParallel controls parallel batch analysis. When true (default),
// AnalyzeFiles runs files concurrently and commits them serially. Set to
// false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// withClock is used by tests to pin run timestamps.
func withClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// withRunIDs is used by tests to control run UUIDs.
func withRunIDs(next func() string) Option {
	return func(e *Engine) {
		e.newID = next
	}
}

// New creates an Engine backed by a SQLite database at dbPath.
// Script loading priority:
//  1. If WithScriptsFS is set, use the provided fs.FS
//  2. Otherwise, use scriptsDir on disk
//
// The scriptsDir parameter may be empty when WithScriptsFS is used.
func New(dbPath string, scriptsDir string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("passlens: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("passlens: migrate: %w", err)
	}

	e := &Engine{
		store:       s,
		fs:          afs.New(),
		scriptsDir:  scriptsDir,
		logger:      slog.New(slog.DiscardHandler),
		workers:     runtime.NumCPU(),
		useParallel: true,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.runtime = e.newRuntime()
	return e, nil
}

func (e *Engine) newRuntime() *plrt.Runtime {
	rtOpts := []plrt.RuntimeOption{plrt.WithRuntimeLogger(e.logger)}
	if e.scriptsFS != nil {
		rtOpts = append(rtOpts, plrt.WithRuntimeFS(e.scriptsFS))
	}
	return plrt.NewRuntime(e.scriptsDir, rtOpts...)
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// Analyze compiles req's source, runs every pass group in order on the
// cleaned output of the previous stage, and persists the run. A failing
// stage aborts the chain and nothing is persisted.
func (e *Engine) Analyze(ctx context.Context, req AnalyzeRequest) (*Result, error) {
	batch := store.NewBatchedStore(e.store)
	res, err := e.analyze(ctx, e.runtime, req, batch)
	if err != nil {
		return nil, err
	}
	if err := e.store.CommitBatch(batch); err != nil {
		return nil, fmt.Errorf("passlens: %w", err)
	}
	return res, nil
}

// AnalyzeIR classifies and diffs already produced stage texts without
// contacting a compiler. stages[0] is the baseline.
func (e *Engine) AnalyzeIR(ctx context.Context, label string, stages []string) (*Result, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	inputs := make([]stageInput, len(stages))
	for i, text := range stages {
		inputs[i] = stageInput{text: text}
	}

	batch := store.NewBatchedStore(e.store)
	run := &store.Run{Label: label, SourceHash: store.ContentHash(stages)}
	res, err := e.record(ctx, run, inputs, nil, batch)
	if err != nil {
		return nil, err
	}
	if err := e.store.CommitBatch(batch); err != nil {
		return nil, fmt.Errorf("passlens: %w", err)
	}
	return res, nil
}

// stageInput is one stage's raw output and the passes that produced it.
type stageInput struct {
	passes []string
	text   string
}

func (e *Engine) analyze(ctx context.Context, rt *plrt.Runtime, req AnalyzeRequest, ds store.DataStore) (*Result, error) {
	if e.compiler == nil {
		return nil, errors.New("passlens: no compiler configured")
	}
	if req.Compiler == "" {
		return nil, errors.New("passlens: no compiler id")
	}

	src := req.Source
	if src == nil {
		if req.Path == "" {
			return nil, errors.New("passlens: request has neither source nor path")
		}
		data, err := e.fs.DownloadWithURL(ctx, req.Path)
		if err != nil {
			return nil, fmt.Errorf("passlens: load %s: %w", req.Path, err)
		}
		src = data
	}

	lang := req.Language
	if lang == "" {
		l, ok := plrt.LanguageForFile(req.Path)
		if !ok {
			return nil, fmt.Errorf("passlens: cannot infer language of %q", req.Path)
		}
		lang = l
	}

	inputs, err := e.runChain(ctx, rt, req, lang, string(src))
	if err != nil {
		return nil, err
	}

	outline, err := rt.Outline(ctx, src, lang)
	if err != nil {
		// An outline only labels diff lines; the run is still useful without it.
		e.logger.Warn("outline failed", "path", req.Path, "language", lang, "error", err)
		outline = nil
	}

	label := req.Path
	if label == "" {
		label = "<inline>"
	}
	run := &store.Run{
		Label:      label,
		Language:   lang,
		Compiler:   req.Compiler,
		SourceHash: store.ContentHash([]string{string(src)}),
	}
	return e.record(ctx, run, inputs, outline, ds)
}

// runChain produces the raw output of every stage. Stages run strictly in
// order since each consumes the previous one's cleaned text.
func (e *Engine) runChain(ctx context.Context, rt *plrt.Runtime, req AnalyzeRequest, lang, src string) ([]stageInput, error) {
	args := explorer.UserArguments(req.UserOptions, req.Includes)
	start := time.Now()
	text, err := e.compiler.CompileSource(ctx, req.Compiler, lang, src, args)
	if err != nil {
		e.logger.Error("compile failed", "stage", 0, "compiler", req.Compiler, "error", err)
		return nil, fmt.Errorf("passlens: stage 0: %w", err)
	}
	e.logger.Debug("stage complete", "stage", 0, "compiler", req.Compiler, "elapsed", time.Since(start))

	inputs := []stageInput{{text: text}}
	for i, passes := range req.Passes {
		stage := i + 1
		cleaned, err := rt.Cleanup(ctx, Dialect, inputs[i].text)
		if err != nil {
			return nil, fmt.Errorf("passlens: stage %d: cleanup: %w", stage, err)
		}
		start := time.Now()
		out, err := e.compiler.RunPasses(ctx, cleaned, passes)
		if err != nil {
			e.logger.Error("opt failed", "stage", stage, "passes", strings.Join(passes, ","), "error", err)
			return nil, fmt.Errorf("passlens: stage %d (%s): %w", stage, strings.Join(passes, ","), err)
		}
		e.logger.Debug("stage complete", "stage", stage, "passes", strings.Join(passes, ","), "elapsed", time.Since(start))
		inputs = append(inputs, stageInput{passes: passes, text: out})
	}
	return inputs, nil
}

// maxIDAttempts bounds freshRunID against a generator that keeps colliding.
const maxIDAttempts = 8

// freshRunID draws run UUIDs until one is unused in ds, which sees both
// committed runs and runs still buffered in a batch.
func (e *Engine) freshRunID(ds store.DataStore) (string, error) {
	for range maxIDAttempts {
		id := e.newID()
		existing, err := ds.RunByUUID(id)
		if err != nil {
			return "", fmt.Errorf("passlens: check run id: %w", err)
		}
		if existing == nil {
			return id, nil
		}
		e.logger.Debug("run id collision", "uuid", id)
	}
	return "", fmt.Errorf("passlens: no unused run id after %d attempts", maxIDAttempts)
}

// record classifies every stage, diffs first-vs-last and each adjacent
// pair, and writes the run through ds.
func (e *Engine) record(ctx context.Context, run *store.Run, inputs []stageInput, outline *plrt.Outline, ds store.DataStore) (*Result, error) {
	id, err := e.freshRunID(ds)
	if err != nil {
		return nil, err
	}
	run.UUID = id
	run.CreatedAt = e.now()
	runID, err := ds.InsertRun(run)
	if err != nil {
		return nil, fmt.Errorf("passlens: %w", err)
	}

	res := &Result{RunUUID: run.UUID, Label: run.Label}
	snapIDs := make([]int64, len(inputs))
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stage, snapID, err := e.recordStage(runID, i, in, ds)
		if err != nil {
			return nil, fmt.Errorf("passlens: stage %d: %w", i, err)
		}
		res.Stages = append(res.Stages, stage)
		snapIDs[i] = snapID
	}

	if len(inputs) < 2 {
		return res, nil
	}

	last := len(inputs) - 1
	res.Overall, err = e.recordDiff(runID, store.DiffOverall, res.Stages[0], res.Stages[last], snapIDs[0], snapIDs[last], outline, ds)
	if err != nil {
		return nil, err
	}
	for i := 0; i < last; i++ {
		step, err := e.recordDiff(runID, store.DiffStep, res.Stages[i], res.Stages[i+1], snapIDs[i], snapIDs[i+1], outline, ds)
		if err != nil {
			return nil, err
		}
		res.Steps = append(res.Steps, step)
	}
	return res, nil
}

func (e *Engine) recordStage(runID int64, index int, in stageInput, ds store.DataStore) (*Stage, int64, error) {
	if !llvmir.LooksLikeIR(in.text) {
		e.logger.Warn("stage output has no debug info", "stage", index)
	}

	snap := llvmir.Classify(in.text, e.classify)
	live := llvmir.ExtractLineSet(snap.Lines)
	for _, id := range snap.Cycles {
		e.logger.Warn("scope cycle", "stage", index, "ref", string(id))
	}
	e.logger.Debug("classified",
		"stage", index, "passes", strings.Join(in.passes, ","),
		"records", len(snap.Lines), "live_lines", len(live))

	texts := make([]string, len(snap.Lines))
	for i, l := range snap.Lines {
		texts[i] = l.Text
	}
	cycles := make([]string, len(snap.Cycles))
	for i, id := range snap.Cycles {
		cycles[i] = string(id)
	}

	row := &store.Snapshot{
		RunID:       runID,
		Stage:       index,
		Passes:      strings.Join(in.passes, ","),
		ContentHash: store.ContentHash(texts),
		RecordCount: len(snap.Lines),
		Truncated:   snap.Truncated,
		Cycles:      cycles,
	}
	snapID, err := ds.InsertSnapshot(row)
	if err != nil {
		return nil, 0, err
	}

	for i, l := range snap.Lines {
		sl := &store.SnapshotLine{SnapshotID: snapID, Ordinal: i, Text: l.Text, ScopeID: string(l.ScopeID)}
		if l.Source != nil {
			sl.Resolved = true
			sl.File = l.Source.File
			sl.Line = l.Source.Line
			sl.Col = l.Source.Column
		}
		if _, err := ds.InsertSnapshotLine(sl); err != nil {
			return nil, 0, err
		}
	}
	for i, n := range live {
		if _, err := ds.InsertLiveLine(&store.LiveLine{SnapshotID: snapID, Ordinal: i, Line: n}); err != nil {
			return nil, 0, err
		}
	}

	return &Stage{
		Index:     index,
		Passes:    in.passes,
		Snapshot:  snap,
		Live:      live,
		Records:   len(snap.Lines),
		Truncated: snap.Truncated,
		Cycles:    snap.Cycles,
	}, snapID, nil
}

func (e *Engine) recordDiff(runID int64, kind string, before, after *Stage, beforeID, afterID int64, outline *plrt.Outline, ds store.DataStore) (*DiffReport, error) {
	d := llvmir.Diff(before.Live, after.Live)
	report := &DiffReport{
		Kind:     kind,
		Before:   before.Index,
		After:    after.Index,
		Retained: d.Retained,
		Removed:  d.Removed,
	}

	diffID, err := ds.InsertDiff(&store.Diff{
		RunID:            runID,
		BeforeSnapshotID: beforeID,
		AfterSnapshotID:  afterID,
		Kind:             kind,
	})
	if err != nil {
		return nil, fmt.Errorf("passlens: %s diff: %w", kind, err)
	}

	retained := after.Live
	for i, n := range before.Live {
		status := store.StatusRemoved
		if retained.Contains(n) {
			status = store.StatusRetained
		}
		fn, ok := outline.FunctionAt(n)
		if ok {
			if report.Functions == nil {
				report.Functions = make(map[int]string)
			}
			report.Functions[n] = fn
		}
		dl := &store.DiffLine{DiffID: diffID, Ordinal: i, Line: n, Status: status, Function: fn}
		if _, err := ds.InsertDiffLine(dl); err != nil {
			return nil, fmt.Errorf("passlens: %s diff: %w", kind, err)
		}
	}
	return report, nil
}
