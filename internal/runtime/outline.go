package runtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"fortio.org/safecast"
	"github.com/risor-io/risor/object"
)

// FunctionSpan is one function definition in a source file. Lines are
// 1-based and inclusive.
type FunctionSpan struct {
	Name      string `json:"name" yaml:"name"`
	StartLine int    `json:"start_line" yaml:"start_line"`
	EndLine   int    `json:"end_line" yaml:"end_line"`
}

// Outline lists the functions of one source file ordered by start line.
type Outline struct {
	Functions []FunctionSpan
}

// FunctionAt returns the innermost function whose span contains line.
func (o *Outline) FunctionAt(line int) (string, bool) {
	if o == nil {
		return "", false
	}
	best := -1
	for i, fn := range o.Functions {
		if line < fn.StartLine || line > fn.EndLine {
			continue
		}
		if best < 0 || fn.EndLine-fn.StartLine < o.Functions[best].EndLine-o.Functions[best].StartLine {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return o.Functions[best].Name, true
}

// Outline runs the outline script for language over src. The script sees
// the globals `source` and `language` and evaluates to a list of maps with
// "name", "start" and "end" keys. Without a script the outline is empty.
func (r *Runtime) Outline(ctx context.Context, src []byte, language string) (*Outline, error) {
	path := OutlineScriptPath(language)
	script, err := r.LoadScript(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Outline{}, nil
	}
	if err != nil {
		return nil, err
	}

	result, err := r.eval(ctx, script, path, map[string]any{
		"source":   string(src),
		"language": language,
	})
	if err != nil {
		return nil, err
	}

	spans, err := toFunctionSpans(result)
	if err != nil {
		return nil, fmt.Errorf("runtime: outline script %s: %w", path, err)
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].StartLine < spans[j].StartLine })
	return &Outline{Functions: spans}, nil
}

func toFunctionSpans(result object.Object) ([]FunctionSpan, error) {
	list, ok := result.(*object.List)
	if !ok {
		return nil, errors.New("result is not a list")
	}
	var spans []FunctionSpan
	for i, item := range list.Value() {
		m, ok := item.(*object.Map)
		if !ok {
			return nil, fmt.Errorf("item %d is not a map", i)
		}
		fields := m.Value()
		name, ok := fields["name"].(*object.String)
		if !ok {
			return nil, fmt.Errorf("item %d: name is not a string", i)
		}
		start, err := intField(fields, "start")
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		end, err := intField(fields, "end")
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		spans = append(spans, FunctionSpan{Name: name.Value(), StartLine: start, EndLine: end})
	}
	return spans, nil
}

func intField(fields map[string]object.Object, key string) (int, error) {
	v, ok := fields[key].(*object.Int)
	if !ok {
		return 0, fmt.Errorf("%s is not an int", key)
	}
	return safecast.Conv[int](v.Value())
}
