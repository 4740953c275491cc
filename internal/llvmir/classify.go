package llvmir

import (
	"errors"
	"regexp"
	"strings"
)

// DefaultMaxLines caps the number of records a snapshot keeps.
const DefaultMaxLines = 5000

// TruncationMarker is the text of the record appended after truncation.
const TruncationMarker = "[truncated; too many lines]"

// Options controls how Classify filters and rewrites lines.
type Options struct {
	// DropComments discards lines that hold only a `;` comment.
	DropComments bool
	// SquashWhitespace collapses runs of spaces and tabs on code and plain
	// lines. Metadata definitions are always kept verbatim.
	SquashWhitespace bool
	// MaxLines is the record cap; zero or negative means DefaultMaxLines.
	MaxLines int
}

func (o Options) maxLines() int {
	if o.MaxLines <= 0 {
		return DefaultMaxLines
	}
	return o.MaxLines
}

// SourceLocation is a resolved position in the original source. Zero values
// mean the coordinate could not be resolved.
type SourceLocation struct {
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
	Line   int    `json:"line,omitempty" yaml:"line,omitempty"`
	Column int    `json:"column,omitempty" yaml:"column,omitempty"`
}

// Line is one classified output record.
type Line struct {
	Text    string          `json:"text" yaml:"text"`
	ScopeID RefID           `json:"scope,omitempty" yaml:"scope,omitempty"`
	Source  *SourceLocation `json:"source,omitempty" yaml:"source,omitempty"`
}

// Snapshot is the classified form of one IR text.
type Snapshot struct {
	Lines     []Line
	Truncated bool
	// Cycles lists debug references whose scope chain loops back on itself.
	// Their lines carry whatever coordinates resolved before the loop.
	Cycles []RefID
}

// Text joins the records back into IR text, one record per line.
func (s *Snapshot) Text() string {
	texts := make([]string, len(s.Lines))
	for i, l := range s.Lines {
		texts[i] = l.Text
	}
	return strings.Join(texts, "\n")
}

var (
	debugRefRe    = regexp.MustCompile(`!dbg (!\d+)`)
	commentOnlyRe = regexp.MustCompile(`^\s*(;.*)$`)
	hspaceRunRe   = regexp.MustCompile(`[ \t\v\f]+`)
)

// SquashWhitespace collapses every run of horizontal whitespace to a single
// space. Line boundaries are never touched.
func SquashWhitespace(line string) string {
	return hspaceRunRe.ReplaceAllString(line, " ")
}

// SplitLines splits text on \n or \r\n, dropping the empty element that a
// trailing newline would otherwise produce.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Classify streams text once, classifying each line and building the
// snapshot's metadata table, then annotates every debug-referencing record
// with its resolved source location.
func Classify(text string, opts Options) *Snapshot {
	var (
		out       []Line
		table     = make(Table)
		prevBlank bool
	)

	for _, raw := range SplitLines(text) {
		if strings.TrimSpace(raw) == "" {
			if !prevBlank {
				out = append(out, Line{})
			}
			prevBlank = true
			continue
		}

		// A dropped comment does not end a blank run.
		if opts.DropComments && commentOnlyRe.MatchString(raw) {
			continue
		}
		prevBlank = false

		if m := debugRefRe.FindStringSubmatch(raw); m != nil {
			out = append(out, Line{Text: squashIf(raw, opts.SquashWhitespace), ScopeID: RefID(m[1])})
			continue
		}

		if node, ok := ParseMetadataNode(raw); ok {
			table[node.ID] = node
			out = append(out, Line{Text: raw})
			continue
		}

		out = append(out, Line{Text: squashIf(raw, opts.SquashWhitespace)})
	}

	snap := &Snapshot{}
	if limit := opts.maxLines(); len(out) >= limit {
		out = append(out[:limit], Line{Text: TruncationMarker})
		snap.Truncated = true
	}
	snap.Lines = out

	annotate(snap, table)
	return snap
}

func squashIf(line string, squash bool) string {
	if !squash {
		return line
	}
	return SquashWhitespace(line)
}

// annotate is the second pass: it resolves each record's scope against the
// finished table. Cyclic chains are recorded once per reference.
func annotate(snap *Snapshot, table Table) {
	seenCycle := make(map[RefID]bool)
	for i := range snap.Lines {
		l := &snap.Lines[i]
		if l.ScopeID == "" {
			continue
		}
		loc, err := table.Locate(l.ScopeID)
		if errors.Is(err, ErrScopeCycle) && !seenCycle[l.ScopeID] {
			seenCycle[l.ScopeID] = true
			snap.Cycles = append(snap.Cycles, l.ScopeID)
		}
		l.Source = &loc
	}
}
