package llvmir

import (
	"regexp"
	"strings"
)

var metaDirectiveRe = regexp.MustCompile(`^!\d+ = (distinct )?!(DI|\{)`)

// IsDirective reports whether a line is module-level bookkeeping rather than
// function code: metadata definitions, named `!llvm.*` metadata, and the
// source_filename / datalayout / triple header.
func IsDirective(line string) bool {
	return metaDirectiveRe.MatchString(line) ||
		strings.HasPrefix(line, "!llvm") ||
		strings.HasPrefix(line, "source_filename = ") ||
		strings.HasPrefix(line, "target datalayout = ") ||
		strings.HasPrefix(line, "target triple = ")
}

// LooksLikeIR reports whether text looks like LLVM IR compiled with debug
// info. Output without it cannot produce any live lines.
func LooksLikeIR(text string) bool {
	return strings.Contains(text, "@llvm") &&
		strings.Contains(text, "!DI") &&
		strings.Contains(text, "!dbg")
}
