package explorer

// Filters selects which parts of the compiler output the service keeps.
type Filters struct {
	Binary      bool `json:"binary"`
	Execute     bool `json:"execute"`
	Intel       bool `json:"intel"`
	Demangle    bool `json:"demangle"`
	Labels      bool `json:"labels"`
	LibraryCode bool `json:"libraryCode"`
	Directives  bool `json:"directives"`
	CommentOnly bool `json:"commentOnly"`
	Trim        bool `json:"trim"`
}

// DefaultFilters keeps IR directives and metadata so debug locations survive.
func DefaultFilters() Filters {
	return Filters{
		Intel:       true,
		Demangle:    true,
		Labels:      true,
		Directives:  true,
		CommentOnly: true,
	}
}

// CompilerOptions asks for extra artifacts. Only the defaults are used.
type CompilerOptions struct {
	ProduceGccDump map[string]any `json:"produceGccDump"`
	ProduceCfg     bool           `json:"produceCfg"`
}

// Options is the "options" object of a compile request.
type Options struct {
	UserArguments   string          `json:"userArguments"`
	Filters         Filters         `json:"filters"`
	CompilerOptions CompilerOptions `json:"compilerOptions"`
	Tools           []any           `json:"tools"`
	Libraries       []any           `json:"libraries"`
}

// NewOptions returns request options with the default filters and the
// given user arguments.
func NewOptions(userArguments string) Options {
	return Options{
		UserArguments:   userArguments,
		Filters:         DefaultFilters(),
		CompilerOptions: CompilerOptions{ProduceGccDump: map[string]any{}},
		Tools:           []any{},
		Libraries:       []any{},
	}
}

// CompileRequest is the JSON body posted to /api/compiler/{id}/compile.
type CompileRequest struct {
	Source              string  `json:"source"`
	Lang                string  `json:"lang"`
	Options             Options `json:"options"`
	AllowStoreCodeDebug bool    `json:"allowStoreCodeDebug"`
	Compiler            string  `json:"compiler"`
}

// OutputLine is one line of compiler output.
type OutputLine struct {
	Text string `json:"text" msgpack:"text"`
}

// CompileResponse is the subset of the service's reply that passlens reads.
type CompileResponse struct {
	Code               int          `json:"code" msgpack:"code"`
	Asm                []OutputLine `json:"asm" msgpack:"asm"`
	Stdout             []OutputLine `json:"stdout" msgpack:"stdout"`
	Stderr             []OutputLine `json:"stderr" msgpack:"stderr"`
	CompilationOptions []string     `json:"compilationOptions" msgpack:"compilation_options"`
}

// Text joins the asm lines into one IR text.
func (r *CompileResponse) Text() string {
	return joinLines(r.Asm)
}

// StderrText joins the stderr lines.
func (r *CompileResponse) StderrText() string {
	return joinLines(r.Stderr)
}

func joinLines(lines []OutputLine) string {
	n := 0
	for _, l := range lines {
		n += len(l.Text) + 1
	}
	buf := make([]byte, 0, n)
	for i, l := range lines {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, l.Text...)
	}
	return string(buf)
}
