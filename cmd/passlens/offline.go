package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/viant/afs"

	"github.com/jward/passlens/internal/llvmir"
)

var flagLabel string

var diffCmd = &cobra.Command{
	Use:   "diff <before.ll> <after.ll> [more.ll...]",
	Short: "Diff stages that were already compiled to IR",
	Long: "Classifies every IR file as one stage of a chain, the first being the baseline, " +
		"and records the run without contacting a compiler. Files may be local paths or URLs.",
	Args: cobra.MinimumNArgs(2),
	RunE: runDiff,
}

var classifyCmd = &cobra.Command{
	Use:   "classify <file.ll>",
	Short: "Print the annotated records and live lines of one IR file",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassify,
}

func init() {
	diffCmd.Flags().StringVar(&flagLabel, "label", "", "run label (default: first file name)")
	for _, c := range []*cobra.Command{diffCmd, classifyCmd} {
		c.Flags().IntVar(&flagMaxLines, "max-lines", 0, "record cap per snapshot (default from config)")
	}
}

// inputURL turns a local path into an absolute one. URLs pass through.
func inputURL(path string) (string, error) {
	if strings.Contains(path, "://") {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", path, err)
	}
	return abs, nil
}

// loadInputs downloads every path with afs, in order.
func loadInputs(ctx context.Context, paths []string) ([]string, error) {
	fs := afs.New()
	texts := make([]string, len(paths))
	for i, p := range paths {
		u, err := inputURL(p)
		if err != nil {
			return nil, err
		}
		data, err := fs.DownloadWithURL(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", p, err)
		}
		texts[i] = string(data)
	}
	return texts, nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig(".")
	if err != nil {
		return outputError(cmd, err)
	}
	if flagMaxLines > 0 {
		cfg.Filters.MaxLines = flagMaxLines
	}

	stages, err := loadInputs(ctx, args)
	if err != nil {
		return outputError(cmd, err)
	}

	engine, err := openEngine(cfg)
	if err != nil {
		return outputError(cmd, err)
	}
	defer engine.Close()

	label := flagLabel
	if label == "" {
		label = filepath.Base(args[0])
	}
	res, err := engine.AnalyzeIR(ctx, label, stages)
	if err != nil {
		return outputError(cmd, err)
	}
	return outputResult(cmd, CLIResult{Command: "diff", Results: res})
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig(".")
	if err != nil {
		return outputError(cmd, err)
	}
	if flagMaxLines > 0 {
		cfg.Filters.MaxLines = flagMaxLines
	}

	texts, err := loadInputs(ctx, args)
	if err != nil {
		return outputError(cmd, err)
	}

	snap := llvmir.Classify(texts[0], llvmir.Options{
		DropComments:     cfg.Filters.DropComments,
		SquashWhitespace: cfg.Filters.SquashWhitespace,
		MaxLines:         cfg.Filters.MaxLines,
	})
	if !llvmir.LooksLikeIR(texts[0]) {
		newLogger().Warn("input does not look like LLVM IR", "file", args[0])
	}
	return outputResult(cmd, CLIResult{
		Command: "classify",
		Results: CLIClassification{
			File:      args[0],
			Records:   snapshotToCLIRecords(snap),
			LiveLines: llvmir.ExtractLineSet(snap.Lines),
			Truncated: snap.Truncated,
			Cycles:    refIDsToStrings(snap.Cycles),
		},
	})
}
