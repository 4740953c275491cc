package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/passlens"
	"github.com/jward/passlens/scripts"
)

var (
	flagDB         string
	flagFormat     string
	flagColor      string
	flagVerbose    bool
	flagScriptsDir string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "passlens",
	Short: "Track which source lines survive LLVM optimization passes",
	Long: "Passlens compiles a source file to LLVM IR, runs opt pass groups over it, and reports " +
		"which source lines still have instructions after each stage. Runs are kept in a SQLite database.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		return setupColor(flagColor)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .passlens/runs.db next to passlens.toml)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: json|text|yaml")
	rootCmd.PersistentFlags().StringVar(&flagColor, "color", "auto", "colorize text output (auto|on|off)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log pipeline progress to stderr")
	rootCmd.PersistentFlags().StringVar(&flagScriptsDir, "scripts-dir", "", "load scripts from disk path instead of embedded")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(rangeCmd)
	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(cacheCmd)
}

// newLogger returns the stderr logger; --verbose lowers it to Debug.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// resolveDBPath returns the database path from the --db flag or the default
// under the config root.
func resolveDBPath(root string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(root, flagDB)
	}
	return filepath.Join(root, ".passlens", "runs.db")
}

// openEngine creates the engine for cfg, creating the database directory
// if needed.
func openEngine(cfg *Config, opts ...passlens.Option) (*passlens.Engine, error) {
	dbPath := resolveDBPath(cfg.Root)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}

	base := []passlens.Option{
		passlens.WithLogger(newLogger()),
		passlens.WithMaxLines(cfg.Filters.MaxLines),
		passlens.WithDropComments(cfg.Filters.DropComments),
		passlens.WithSquashWhitespace(cfg.Filters.SquashWhitespace),
	}
	if flagScriptsDir == "" {
		base = append(base, passlens.WithScriptsFS(scripts.FS))
	}

	engine, err := passlens.New(dbPath, flagScriptsDir, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return engine, nil
}

// openExisting opens the engine for read commands. The database must
// already exist.
func openExisting() (*passlens.Engine, error) {
	cfg, err := loadConfig(".")
	if err != nil {
		return nil, err
	}
	dbPath := resolveDBPath(cfg.Root)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'passlens analyze' or 'passlens diff' first)", dbPath)
	}
	return openEngine(cfg)
}

// outputResult writes a CLIResult to the command's stdout in the selected
// format.
func outputResult(cmd *cobra.Command, result CLIResult) error {
	return writeResult(cmd.OutOrStdout(), flagFormat, result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In json and yaml modes the error is written to
// stdout as a CLIResult envelope. In text mode it goes to stderr.
func outputError(cmd *cobra.Command, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	_ = writeResult(cmd.OutOrStdout(), flagFormat, CLIResult{
		Command: cmd.Name(),
		Error:   err.Error(),
	})
	return err
}
