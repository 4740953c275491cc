package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/passlens"
	"github.com/jward/passlens/internal/store"
)

var flagLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

var showCmd = &cobra.Command{
	Use:   "show <run-uuid>",
	Short: "Show the snapshots and diffs of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var rangeCmd = &cobra.Command{
	Use:   "range <snapshot-id> <line>",
	Short: "List the IR records generated for a source line",
	Long:  "Prints the contiguous block of records that starts at the first record mapped to the 1-based source line.",
	Args:  cobra.ExactArgs(2),
	RunE:  runRange,
}

var sourceCmd = &cobra.Command{
	Use:   "source <snapshot-id> <record>",
	Short: "Print the source location of a 0-based IR record",
	Args:  cobra.ExactArgs(2),
	RunE:  runSource,
}

var rmCmd = &cobra.Command{
	Use:   "rm <run-uuid>",
	Short: "Delete a run and everything recorded for it",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

func init() {
	runsCmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum runs to list (0 for all)")
}

// parseIntArg parses a positional argument as a non-negative integer.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

// requireSnapshot returns an error when the snapshot does not exist.
func requireSnapshot(q *passlens.QueryBuilder, id int64) error {
	snap, err := q.Snapshot(id)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("snapshot not found: %d", id)
	}
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	engine, err := openExisting()
	if err != nil {
		return outputError(cmd, err)
	}
	defer engine.Close()

	runs, err := engine.Query().Runs(flagLimit)
	if err != nil {
		return outputError(cmd, err)
	}
	out := make([]CLIRun, len(runs))
	for i, r := range runs {
		out[i] = runToCLI(r)
	}
	return outputResult(cmd, CLIResult{Command: "runs", Results: out})
}

func runShow(cmd *cobra.Command, args []string) error {
	engine, err := openExisting()
	if err != nil {
		return outputError(cmd, err)
	}
	defer engine.Close()

	detail, err := loadRunDetail(engine.Query(), args[0])
	if err != nil {
		return outputError(cmd, err)
	}
	return outputResult(cmd, CLIResult{Command: "show", Results: *detail})
}

// loadRunDetail reads a run with its snapshots, live lines and diffs.
func loadRunDetail(q *passlens.QueryBuilder, runUUID string) (*CLIRunDetail, error) {
	run, err := q.RunByUUID(runUUID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run not found: %s", runUUID)
	}

	detail := &CLIRunDetail{Run: runToCLI(run)}
	snaps, err := q.Snapshots(run.ID)
	if err != nil {
		return nil, err
	}
	for _, s := range snaps {
		live, err := q.LiveLines(s.ID)
		if err != nil {
			return nil, err
		}
		var passes []string
		if s.Passes != "" {
			passes = strings.Split(s.Passes, ",")
		}
		detail.Snapshots = append(detail.Snapshots, CLISnapshot{
			ID:          s.ID,
			Stage:       s.Stage,
			Passes:      passes,
			Records:     s.RecordCount,
			Truncated:   s.Truncated,
			Cycles:      s.Cycles,
			ContentHash: s.ContentHash,
			LiveLines:   live,
		})
	}

	diffs, err := q.Diffs(run.ID)
	if err != nil {
		return nil, err
	}
	for _, d := range diffs {
		lines, err := q.DiffLines(d.ID)
		if err != nil {
			return nil, err
		}
		cd := CLIDiff{Kind: d.Kind, Before: d.BeforeSnapshotID, After: d.AfterSnapshotID}
		for _, l := range lines {
			if l.Status == store.StatusRetained {
				cd.Retained = append(cd.Retained, l.Line)
			} else {
				cd.Removed = append(cd.Removed, l.Line)
			}
			if l.Function != "" {
				if cd.Functions == nil {
					cd.Functions = make(map[int]string)
				}
				cd.Functions[l.Line] = l.Function
			}
		}
		detail.Diffs = append(detail.Diffs, cd)
	}
	return detail, nil
}

func runRange(cmd *cobra.Command, args []string) error {
	snapshotID, err := parseIntArg(args[0], "snapshot-id")
	if err != nil {
		return outputError(cmd, err)
	}
	line, err := parseIntArg(args[1], "line")
	if err != nil {
		return outputError(cmd, err)
	}

	engine, err := openExisting()
	if err != nil {
		return outputError(cmd, err)
	}
	defer engine.Close()

	q := engine.Query()
	if err := requireSnapshot(q, int64(snapshotID)); err != nil {
		return outputError(cmd, err)
	}
	rr, err := q.RecordRange(int64(snapshotID), line)
	if err != nil {
		return outputError(cmd, err)
	}
	if rr == nil {
		return outputResult(cmd, CLIResult{Command: "range", Results: nil})
	}

	lines, err := q.Lines(int64(snapshotID))
	if err != nil {
		return outputError(cmd, err)
	}
	out := &CLIRange{SnapshotID: int64(snapshotID), Line: line, First: rr.First, Last: rr.Last}
	for _, l := range lines {
		if l.Ordinal >= rr.First && l.Ordinal <= rr.Last {
			out.Records = append(out.Records, snapshotLineToCLI(l))
		}
	}
	return outputResult(cmd, CLIResult{Command: "range", Results: out})
}

func runSource(cmd *cobra.Command, args []string) error {
	snapshotID, err := parseIntArg(args[0], "snapshot-id")
	if err != nil {
		return outputError(cmd, err)
	}
	record, err := parseIntArg(args[1], "record")
	if err != nil {
		return outputError(cmd, err)
	}

	engine, err := openExisting()
	if err != nil {
		return outputError(cmd, err)
	}
	defer engine.Close()

	q := engine.Query()
	if err := requireSnapshot(q, int64(snapshotID)); err != nil {
		return outputError(cmd, err)
	}
	loc, err := q.SourceLineAt(int64(snapshotID), record)
	if err != nil {
		return outputError(cmd, err)
	}
	if loc == nil {
		return outputResult(cmd, CLIResult{Command: "source", Results: nil})
	}
	return outputResult(cmd, CLIResult{Command: "source", Results: loc})
}

func runRm(cmd *cobra.Command, args []string) error {
	engine, err := openExisting()
	if err != nil {
		return outputError(cmd, err)
	}
	defer engine.Close()

	run, err := engine.Query().RunByUUID(args[0])
	if err != nil {
		return outputError(cmd, err)
	}
	if run == nil {
		return outputError(cmd, fmt.Errorf("run not found: %s", args[0]))
	}
	if err := engine.Store().DeleteRun(run.ID); err != nil {
		return outputError(cmd, err)
	}
	return outputResult(cmd, CLIResult{Command: "rm", Results: "deleted run " + run.UUID})
}
