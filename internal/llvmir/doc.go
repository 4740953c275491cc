// Package llvmir classifies textual LLVM IR line by line and recovers the
// source locations attached to instructions through debug metadata.
//
// A single call to [Classify] walks the text once, emitting one [Line] per
// kept input line and collecting every `!N = !DIKind(...)` definition into a
// [Table] that is private to that call. A second pass annotates each line
// carrying a `!dbg !N` reference with the file, line and column found by
// bubbling up the node's `file` and `scope` links.
//
// The diff path is deliberately narrower: [ExtractLineSet] maps debug
// references to line numbers only through definitions that spell out a
// `line:` attribute themselves, and [Diff] partitions one snapshot's live
// lines against another's.
//
// Nothing in this package performs I/O, and no input line ever produces an
// error: unmatched text is kept as plain text and unresolvable references
// are simply left without a location.
package llvmir
