package llvmir

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrScopeCycle is returned when bubbling up file/scope links revisits a node.
var ErrScopeCycle = errors.New("llvmir: scope cycle detected")

// Table maps metadata ids to their parsed definitions for one snapshot.
// It is built by a single Classify call and never shared between snapshots.
type Table map[RefID]*MetadataNode

// syntheticFileRe matches filenames the compiler invents for stdin, REPL and
// playground inputs.
var syntheticFileRe = regexp.MustCompile(`.*<stdin>|^-$|example\.[^/]+$|<source>`)

// IsSyntheticFile reports whether name denotes a compiler-synthesized input
// rather than a real file on disk.
func IsSyntheticFile(name string) bool {
	return syntheticFileRe.MatchString(name)
}

// File resolves the filename for a node, following its `file` link first and
// then its `scope` chain. Synthetic filenames resolve to not found.
func (t Table) File(id RefID) (string, bool, error) {
	v, ok, err := t.bubble(id, "filename", true)
	if err != nil || !ok {
		return "", false, err
	}
	if IsSyntheticFile(v.Raw) {
		return "", false, nil
	}
	return v.Raw, true, nil
}

// Line resolves the source line for a node through its scope chain.
func (t Table) Line(id RefID) (int, bool, error) {
	return t.bubbleInt(id, "line")
}

// Column resolves the source column for a node through its scope chain.
func (t Table) Column(id RefID) (int, bool, error) {
	return t.bubbleInt(id, "column")
}

// Locate resolves all three coordinates for a node. A cycle found by any of
// the lookups is returned after the others have been attempted.
func (t Table) Locate(id RefID) (SourceLocation, error) {
	var loc SourceLocation
	var errs []error

	file, ok, err := t.File(id)
	if err != nil {
		errs = append(errs, err)
	} else if ok {
		loc.File = file
	}
	line, ok, err := t.Line(id)
	if err != nil {
		errs = append(errs, err)
	} else if ok {
		loc.Line = line
	}
	col, ok, err := t.Column(id)
	if err != nil {
		errs = append(errs, err)
	} else if ok {
		loc.Column = col
	}
	return loc, errors.Join(errs...)
}

func (t Table) bubbleInt(id RefID, attr string) (int, bool, error) {
	v, ok, err := t.bubble(id, attr, false)
	if err != nil || !ok {
		return 0, false, err
	}
	n, ok := v.Int()
	if !ok || n <= 0 {
		// Line 0 marks compiler-generated code; treat it as no location.
		return 0, false, nil
	}
	return n, true, nil
}

// bubble walks from id towards the root looking for attr. The first node
// that carries attr ends the walk. Otherwise file lookups follow `file`
// before `scope`; every lookup follows `scope`. A link that is not a
// reference, or that points at a missing node, ends the walk with not found.
func (t Table) bubble(id RefID, attr string, followFile bool) (AttrValue, bool, error) {
	visited := make(map[RefID]bool)
	cur := id
	for {
		if visited[cur] {
			return AttrValue{}, false, fmt.Errorf("%w: %s revisited from %s", ErrScopeCycle, cur, id)
		}
		visited[cur] = true

		node, ok := t[cur]
		if !ok {
			return AttrValue{}, false, nil
		}
		if v, ok := node.Attr(attr); ok && v.present() {
			return v, true, nil
		}

		next, ok := t.parentOf(node, followFile)
		if !ok {
			return AttrValue{}, false, nil
		}
		cur = next
	}
}

func (t Table) parentOf(node *MetadataNode, followFile bool) (RefID, bool) {
	if followFile {
		if v, ok := node.Attr("file"); ok && v.present() {
			return v.Ref(), v.IsRef()
		}
	}
	if v, ok := node.Attr("scope"); ok && v.present() {
		return v.Ref(), v.IsRef()
	}
	return "", false
}
