package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/passlens"
	"github.com/jward/passlens/internal/cache"
	"github.com/jward/passlens/internal/explorer"
	plrt "github.com/jward/passlens/internal/runtime"
)

var (
	flagPasses   []string
	flagLanguage string
	flagCompiler string
	flagOptions  string
	flagMaxLines int
	flagNoCache  bool
	flagWorkers  int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Compile a source file, run pass groups over it and diff the stages",
	Long: "Compiles the file to LLVM IR through Compiler Explorer, runs every pass group with opt, " +
		"classifies each stage and records which source lines were retained or removed.",
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var batchCmd = &cobra.Command{
	Use:   "batch <file>...",
	Short: "Analyze several source files concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBatch,
}

func init() {
	for _, c := range []*cobra.Command{analyzeCmd, batchCmd} {
		c.Flags().StringArrayVar(&flagPasses, "passes", nil, "pass group, comma separated (repeat for more stages)")
		c.Flags().StringVar(&flagLanguage, "language", "", "Compiler Explorer language id (default: from file extension)")
		c.Flags().StringVar(&flagCompiler, "compiler", "", "compiler id for the first stage")
		c.Flags().StringVar(&flagOptions, "options", "", "compiler options for the first stage")
		c.Flags().IntVar(&flagMaxLines, "max-lines", 0, "record cap per snapshot (default from config)")
		c.Flags().BoolVar(&flagNoCache, "no-cache", false, "always contact the service")
	}
	batchCmd.Flags().IntVar(&flagWorkers, "workers", 0, "concurrent files (default: number of CPUs)")
}

// newCompiler builds the explorer client with the disk cache unless the
// cache is disabled.
func newCompiler(cfg *Config) (*explorer.Client, error) {
	opts := []explorer.ClientOption{explorer.WithLogger(newLogger())}
	if !flagNoCache && !cfg.Cache.Disabled {
		dc, err := cache.Open(cfg.Cache.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		opts = append(opts, explorer.WithCache(dc))
	}
	return explorer.NewClient(cfg.Explorer.Host, opts...), nil
}

// buildRequest fills an AnalyzeRequest for path from flags and config.
func buildRequest(cfg *Config, path string) (passlens.AnalyzeRequest, error) {
	lang := flagLanguage
	if lang == "" {
		lang = cfg.Compile.Language
	}
	if lang == "" {
		l, ok := plrt.LanguageForFile(path)
		if !ok {
			return passlens.AnalyzeRequest{}, fmt.Errorf("cannot infer language of %q: use --language", path)
		}
		lang = l
	}

	compiler, options := cfg.compilerFor(lang)
	if flagCompiler != "" {
		compiler = flagCompiler
	}
	if flagOptions != "" {
		options = flagOptions
	}

	passes := cfg.passList()
	if len(flagPasses) > 0 {
		p, err := parsePassFlags(flagPasses)
		if err != nil {
			return passlens.AnalyzeRequest{}, err
		}
		passes = p
	}

	u, err := inputURL(path)
	if err != nil {
		return passlens.AnalyzeRequest{}, err
	}
	return passlens.AnalyzeRequest{
		Path:        u,
		Language:    lang,
		Compiler:    compiler,
		UserOptions: options,
		Includes:    cfg.Compile.Includes,
		Passes:      passes,
	}, nil
}

// engineForCompile loads config and opens an engine wired to the service.
func engineForCompile(extra ...passlens.Option) (*Config, *passlens.Engine, error) {
	cfg, err := loadConfig(".")
	if err != nil {
		return nil, nil, err
	}
	if flagMaxLines > 0 {
		cfg.Filters.MaxLines = flagMaxLines
	}
	client, err := newCompiler(cfg)
	if err != nil {
		return nil, nil, err
	}
	engine, err := openEngine(cfg, append(extra, passlens.WithCompiler(client))...)
	if err != nil {
		return nil, nil, err
	}
	return cfg, engine, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	start := time.Now()
	cfg, engine, err := engineForCompile()
	if err != nil {
		return outputError(cmd, err)
	}
	defer engine.Close()

	req, err := buildRequest(cfg, args[0])
	if err != nil {
		return outputError(cmd, err)
	}

	res, err := engine.Analyze(context.Background(), req)
	if err != nil {
		return outputError(cmd, fmt.Errorf("analyzing %s: %w", args[0], err))
	}

	fmt.Fprintf(os.Stderr, "Analyzed %s in %s (%d stages, run %s)\n",
		args[0], time.Since(start).Round(time.Millisecond), len(res.Stages), res.RunUUID)
	return outputResult(cmd, CLIResult{Command: "analyze", Results: res})
}

func runBatch(cmd *cobra.Command, args []string) error {
	start := time.Now()
	var extra []passlens.Option
	if flagWorkers > 0 {
		extra = append(extra, passlens.WithWorkers(flagWorkers))
	}
	cfg, engine, err := engineForCompile(extra...)
	if err != nil {
		return outputError(cmd, err)
	}
	defer engine.Close()

	reqs := make([]passlens.AnalyzeRequest, len(args))
	for i, path := range args {
		req, err := buildRequest(cfg, path)
		if err != nil {
			return outputError(cmd, err)
		}
		reqs[i] = req
	}

	results, batchErr := engine.AnalyzeFiles(context.Background(), reqs)
	done := make([]*passlens.Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			done = append(done, r)
		}
	}

	fmt.Fprintf(os.Stderr, "Analyzed %d of %d files in %s\n",
		len(done), len(args), time.Since(start).Round(time.Millisecond))
	if batchErr != nil {
		if len(done) > 0 {
			if err := outputResult(cmd, CLIResult{Command: "batch", Results: done}); err != nil {
				return err
			}
		}
		return outputError(cmd, batchErr)
	}
	return outputResult(cmd, CLIResult{Command: "batch", Results: done})
}
