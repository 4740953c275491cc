package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jward/passlens/internal/explorer"
	"github.com/jward/passlens/internal/llvmir"
)

const (
	configFileName = "passlens.toml"
	envFileName    = ".env.local"
	hostEnvVar     = "PASSLENS_HOST"
)

// Config is the contents of passlens.toml. Fields left out of the file keep
// the values from defaultConfig.
type Config struct {
	Explorer explorerConfig `toml:"explorer"`
	Compile  compileConfig  `toml:"compile"`
	Filters  filtersConfig  `toml:"filters"`
	Cache    cacheConfig    `toml:"cache"`
	Passes   []passGroup    `toml:"passes"`

	// Root is the directory holding passlens.toml, or the working
	// directory when no file was found.
	Root string `toml:"-"`
	// Path is the config file that was loaded, empty if none.
	Path string `toml:"-"`
}

type explorerConfig struct {
	Host string `toml:"host"`
}

type compileConfig struct {
	Language string   `toml:"language"`
	Compiler string   `toml:"compiler"`
	Options  string   `toml:"options"`
	Includes []string `toml:"includes"`
	// Languages overrides compiler and options per language id.
	Languages map[string]languageConfig `toml:"languages"`
}

type languageConfig struct {
	Compiler string `toml:"compiler"`
	Options  string `toml:"options"`
}

type filtersConfig struct {
	MaxLines         int  `toml:"max_lines"`
	DropComments     bool `toml:"drop_comments"`
	SquashWhitespace bool `toml:"squash_whitespace"`
}

type cacheConfig struct {
	Dir      string `toml:"dir"`
	Disabled bool   `toml:"disabled"`
}

type passGroup struct {
	Names []string `toml:"names"`
}

func defaultConfig() *Config {
	return &Config{
		Explorer: explorerConfig{Host: explorer.DefaultHost},
		Compile: compileConfig{
			Compiler: "clang1600",
			Options:  "-O0 -g -emit-llvm",
		},
		Filters: filtersConfig{MaxLines: llvmir.DefaultMaxLines, DropComments: true},
		Passes: []passGroup{
			{Names: []string{"loop-deletion", "indvars"}},
			{Names: []string{"instcombine", "mem2reg", "jump-threading"}},
		},
	}
}

// findConfig walks up from startDir looking for passlens.toml.
func findConfig(startDir string) (string, bool, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("resolving %q: %w", startDir, err)
	}
	for {
		candidate := filepath.Join(dir, configFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// loadConfig finds and decodes passlens.toml starting at startDir, then
// applies .env.local and environment overrides.
func loadConfig(startDir string) (*Config, error) {
	cfg := defaultConfig()
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", startDir, err)
	}
	cfg.Root = abs

	path, ok, err := findConfig(abs)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := decodeConfig(path, cfg); err != nil {
			return nil, err
		}
		cfg.Path = path
		cfg.Root = filepath.Dir(path)
	}

	// A missing .env.local is the common case.
	_ = godotenv.Load(filepath.Join(cfg.Root, envFileName))
	if host := strings.TrimSpace(os.Getenv(hostEnvVar)); host != "" {
		cfg.Explorer.Host = host
	}
	return cfg, nil
}

func decodeConfig(path string, cfg *Config) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	for i, g := range cfg.Passes {
		if len(g.Names) == 0 {
			return fmt.Errorf("%s: [[passes]] #%d has no names", path, i+1)
		}
	}
	if cfg.Filters.MaxLines < 0 {
		return fmt.Errorf("%s: [filters].max_lines must not be negative", path)
	}
	return nil
}

// compilerFor returns the compiler id and options for a language, applying
// any per-language override.
func (c *Config) compilerFor(lang string) (compiler, options string) {
	compiler, options = c.Compile.Compiler, c.Compile.Options
	if o, ok := c.Compile.Languages[lang]; ok {
		if o.Compiler != "" {
			compiler = o.Compiler
		}
		if o.Options != "" {
			options = o.Options
		}
	}
	return compiler, options
}

// passList flattens the configured pass groups.
func (c *Config) passList() [][]string {
	out := make([][]string, len(c.Passes))
	for i, g := range c.Passes {
		out[i] = g.Names
	}
	return out
}

// parsePassFlags turns repeated --passes values into pass groups. Each
// value is one group; names inside it are comma separated.
func parsePassFlags(values []string) ([][]string, error) {
	groups := make([][]string, 0, len(values))
	for _, v := range values {
		var names []string
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("invalid --passes %q: no pass names", v)
		}
		groups = append(groups, names)
	}
	return groups, nil
}
