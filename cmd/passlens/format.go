package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/jward/passlens"
)

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text", "yaml"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be one of %s", format, strings.Join(validFormats, ", "))
}

// palette colors text output according to --color.
type palette struct {
	retained *color.Color
	removed  *color.Color
	header   *color.Color
	dim      *color.Color
}

var colors = newPalette()

func newPalette() *palette {
	return &palette{
		retained: color.New(color.FgGreen),
		removed:  color.New(color.FgRed, color.Bold),
		header:   color.New(color.Bold),
		dim:      color.New(color.Faint),
	}
}

func (p *palette) enable(on bool) {
	for _, c := range []*color.Color{p.retained, p.removed, p.header, p.dim} {
		if on {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// setupColor applies --color. "auto" colors only when stdout is a terminal.
func setupColor(mode string) error {
	switch mode {
	case "on":
		colors.enable(true)
	case "off":
		colors.enable(false)
	case "auto":
		colors.enable(isTerminal(os.Stdout) && os.Getenv("NO_COLOR") == "")
	default:
		return fmt.Errorf("invalid color mode %q: must be auto, on or off", mode)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// writeResult writes result to w in the given format.
func writeResult(w io.Writer, format string, result CLIResult) error {
	switch format {
	case "text":
		return writeResultText(w, result)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
}

// writeResultText dispatches to the text formatter for the result type.
func writeResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case *passlens.Result:
		formatAnalysisText(w, v)
	case []*passlens.Result:
		for i, r := range v {
			if i > 0 {
				fmt.Fprintln(w)
			}
			formatAnalysisText(w, r)
		}
	case CLIClassification:
		formatClassificationText(w, v)
	case []CLIRun:
		formatRunsText(w, v)
	case CLIRunDetail:
		formatRunDetailText(w, v)
	case *CLIRange:
		formatRangeText(w, v)
	case *passlens.Location:
		file := v.File
		if file == "" {
			file = "?"
		}
		fmt.Fprintf(w, "%s:%d:%d\n", file, v.Line, v.Col)
	case string:
		fmt.Fprintln(w, v)
	case nil:
		// Nothing matched, e.g. a source line with no records.
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

func formatAnalysisText(w io.Writer, r *passlens.Result) {
	colors.header.Fprintf(w, "Run %s (%s)\n", r.RunUUID, r.Label)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tPASSES\tRECORDS\tLIVE LINES")
	for _, s := range r.Stages {
		passes := strings.Join(s.Passes, ",")
		if passes == "" {
			passes = "-"
		}
		records := fmt.Sprintf("%d", s.Records)
		if s.Truncated {
			records += " (truncated)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Index, passes, records, joinInts(s.Live))
	}
	tw.Flush()

	if r.Overall == nil {
		return
	}
	fmt.Fprintln(w)
	formatDiffText(w, fmt.Sprintf("Overall (stage %d -> %d)", r.Overall.Before, r.Overall.After),
		r.Overall.Retained, r.Overall.Removed, r.Overall.Functions)
	for _, d := range r.Steps {
		formatDiffText(w, fmt.Sprintf("Step %d -> %d", d.Before, d.After),
			d.Retained, d.Removed, d.Functions)
	}
}

func formatDiffText(w io.Writer, title string, retained, removed []int, functions map[int]string) {
	colors.header.Fprintln(w, title)
	lines := make([]int, 0, len(retained)+len(removed))
	status := make(map[int]bool, len(retained)+len(removed))
	for _, n := range retained {
		lines = append(lines, n)
		status[n] = true
	}
	for _, n := range removed {
		lines = append(lines, n)
		status[n] = false
	}
	sort.Ints(lines)

	for _, n := range lines {
		fn := ""
		if name, ok := functions[n]; ok {
			fn = colors.dim.Sprintf("  (%s)", name)
		}
		if status[n] {
			colors.retained.Fprintf(w, "  + %d", n)
		} else {
			colors.removed.Fprintf(w, "  - %d", n)
		}
		fmt.Fprintln(w, fn)
	}
}

func formatClassificationText(w io.Writer, c CLIClassification) {
	formatRecordsText(w, c.Records)
	fmt.Fprintf(w, "\nLive lines: %s\n", joinInts(c.LiveLines))
	if c.Truncated {
		fmt.Fprintln(w, "Truncated: yes")
	}
	if len(c.Cycles) > 0 {
		colors.removed.Fprintf(w, "Scope cycles: %s\n", strings.Join(c.Cycles, ", "))
	}
}

func formatRecordsText(w io.Writer, recs []CLIRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tLOCATION\tTEXT")
	for _, r := range recs {
		loc := "-"
		if r.Source != nil {
			file := r.Source.File
			if file == "" {
				file = "?"
			}
			loc = fmt.Sprintf("%s:%d:%d", file, r.Source.Line, r.Source.Column)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Index, loc, r.Text)
	}
	tw.Flush()
}

func formatRunsText(w io.Writer, runs []CLIRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUUID\tLABEL\tLANGUAGE\tCOMPILER\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.UUID, r.Label, dash(r.Language), dash(r.Compiler),
			r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
}

func formatRunDetailText(w io.Writer, d CLIRunDetail) {
	colors.header.Fprintf(w, "Run %s (%s)\n", d.Run.UUID, d.Run.Label)
	fmt.Fprintf(w, "Created: %s\n", d.Run.CreatedAt.Format("2006-01-02 15:04:05"))
	if d.Run.Compiler != "" {
		fmt.Fprintf(w, "Compiler: %s (%s)\n", d.Run.Compiler, d.Run.Language)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SNAPSHOT\tSTAGE\tPASSES\tRECORDS\tLIVE LINES")
	for _, s := range d.Snapshots {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%s\n",
			s.ID, s.Stage, dash(strings.Join(s.Passes, ",")), s.Records, joinInts(s.LiveLines))
	}
	tw.Flush()

	for _, diff := range d.Diffs {
		fmt.Fprintln(w)
		title := fmt.Sprintf("%s: snapshot %d -> %d", diff.Kind, diff.Before, diff.After)
		formatDiffText(w, title, diff.Retained, diff.Removed, diff.Functions)
	}
}

func formatRangeText(w io.Writer, r *CLIRange) {
	fmt.Fprintf(w, "Source line %d -> records %d..%d\n", r.Line, r.First, r.Last)
	formatRecordsText(w, r.Records)
}

func joinInts(ns []int) string {
	if len(ns) == 0 {
		return "-"
	}
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ",")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
