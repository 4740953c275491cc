package llvmir

import (
	"regexp"
	"strconv"
	"strings"
)

// RefID is a metadata reference as it appears in IR text, e.g. "!17".
type RefID string

// AttrKind tags the lexical form of a metadata attribute value.
type AttrKind uint8

const (
	// AttrWord is a bare word or number: `line: 7`, `tag: DW_TAG_member`.
	AttrWord AttrKind = iota + 1
	// AttrString is a quoted string with the quotes removed.
	AttrString
	// AttrRef is a reference to another node: `scope: !11`.
	AttrRef
)

// AttrValue is one parsed `key: value` pair value.
type AttrValue struct {
	Kind AttrKind
	Raw  string
}

// IsRef reports whether the value points at another metadata node.
func (v AttrValue) IsRef() bool { return v.Kind == AttrRef }

// Ref returns the referenced node id, or "" when the value is not a reference.
func (v AttrValue) Ref() RefID {
	if v.Kind != AttrRef {
		return ""
	}
	return RefID(v.Raw)
}

// Int parses the value as a decimal integer.
func (v AttrValue) Int() (int, bool) {
	if v.Kind != AttrWord {
		return 0, false
	}
	n, err := strconv.Atoi(v.Raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// present mirrors how the location walk treats a value: empty strings count
// as missing.
func (v AttrValue) present() bool {
	return v.Kind != 0 && v.Raw != ""
}

// MetadataNode is one parsed `!N = [distinct ]!DIKind(...)` definition.
//
// Attributes listed for the node's kind in knownAttrs land in Attrs; any
// other key is kept in Extra so newer LLVM fields survive a round trip.
type MetadataNode struct {
	ID    RefID
	Kind  string
	Attrs map[string]AttrValue
	Extra map[string]AttrValue
}

// Attr looks a key up in both the typed and the fallback bucket.
func (n *MetadataNode) Attr(key string) (AttrValue, bool) {
	if v, ok := n.Attrs[key]; ok {
		return v, true
	}
	v, ok := n.Extra[key]
	return v, ok
}

// knownAttrs lists the attributes each DI kind is expected to carry.
// Location-bearing keys (file, scope, line, column, filename) are always
// typed regardless of kind.
var knownAttrs = map[string][]string{
	"Location":         {"line", "column", "scope", "inlinedAt", "isImplicitCode"},
	"File":             {"filename", "directory", "checksumkind", "checksum", "source"},
	"CompileUnit":      {"language", "file", "producer", "isOptimized", "runtimeVersion", "emissionKind", "enums", "retainedTypes", "globals", "imports", "splitDebugInlining", "nameTableKind"},
	"Subprogram":       {"name", "linkageName", "scope", "file", "line", "type", "scopeLine", "containingType", "unit", "spFlags", "flags", "retainedNodes", "declaration", "templateParams"},
	"LexicalBlock":     {"scope", "file", "line", "column"},
	"LexicalBlockFile": {"scope", "file", "discriminator"},
	"LocalVariable":    {"name", "arg", "scope", "file", "line", "type", "flags", "align"},
	"GlobalVariable":   {"name", "linkageName", "scope", "file", "line", "type", "isLocal", "isDefinition"},
	"Namespace":        {"name", "scope", "exportSymbols"},
	"Label":            {"name", "scope", "file", "line"},
	"BasicType":        {"name", "size", "encoding", "flags"},
	"DerivedType":      {"tag", "name", "scope", "file", "line", "baseType", "size", "align", "offset", "flags"},
	"CompositeType":    {"tag", "name", "scope", "file", "line", "baseType", "size", "align", "flags", "elements", "identifier", "templateParams"},
	"SubroutineType":   {"types", "flags", "cc"},
}

var locationAttrs = map[string]bool{
	"file": true, "scope": true, "line": true, "column": true, "filename": true,
}

func isKnownAttr(kind, key string) bool {
	if locationAttrs[key] {
		return true
	}
	for _, k := range knownAttrs[kind] {
		if k == key {
			return true
		}
	}
	return false
}

var (
	metaNodeRe    = regexp.MustCompile(`^(!\d+) = (?:distinct )?!DI([A-Za-z]+)\(([^)]+?)\)`)
	metaOptionsRe = regexp.MustCompile(`(\w+): (!?\d+|\w+|""|"(?:[^"]|\\")*[^\\]")`)
)

// ParseMetadataNode parses a debug-info definition line. It returns ok=false
// for anything that is not a `!N = !DIKind(...)` definition.
func ParseMetadataNode(line string) (*MetadataNode, bool) {
	m := metaNodeRe.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	node := &MetadataNode{
		ID:    RefID(m[1]),
		Kind:  m[2],
		Attrs: make(map[string]AttrValue),
	}

	for _, kv := range metaOptionsRe.FindAllStringSubmatch(m[3], -1) {
		key, raw := kv[1], kv[2]
		val := AttrValue{Kind: AttrWord, Raw: raw}
		switch {
		case strings.HasPrefix(raw, `"`):
			val = AttrValue{Kind: AttrString, Raw: raw[1 : len(raw)-1]}
		case strings.HasPrefix(raw, "!"):
			val.Kind = AttrRef
		}

		// Last occurrence wins; keep a key in exactly one bucket.
		if isKnownAttr(node.Kind, key) {
			node.Attrs[key] = val
			continue
		}
		if node.Extra == nil {
			node.Extra = make(map[string]AttrValue)
		}
		node.Extra[key] = val
	}
	return node, true
}
