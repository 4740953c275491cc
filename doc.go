// Package passlens tracks which source lines survive a chain of LLVM
// optimization passes by reading the debug metadata in each stage's IR.
//
// # Pipeline
//
// A run has one snapshot per stage:
//
//  1. Compile: stage 0 is the source compiled to IR with debug info through
//     a Compiler Explorer instance.
//
//  2. Passes: every pass group runs `opt -passes=...` on the previous
//     stage's output after it went through the dialect cleanup script.
//
//  3. Classify: each snapshot is classified on its own (see the
//     internal/llvmir package), giving annotated records and the set of
//     live source lines.
//
//  4. Diff: live lines are partitioned into retained and removed, first
//     snapshot against last and for every adjacent pair.
//
// Runs are written to SQLite in one transaction. Nothing is persisted for a
// run whose chain fails.
//
// # Usage
//
//	client := explorer.NewClient(explorer.DefaultHost)
//	e, err := passlens.New("passlens.db", "", passlens.WithScriptsFS(scripts.FS), passlens.WithCompiler(client))
//	if err != nil { ... }
//	defer e.Close()
//
//	res, err := e.Analyze(ctx, passlens.AnalyzeRequest{
//		Path:        "example.cpp",
//		Compiler:    "clang1600",
//		UserOptions: "-O0 -g -emit-llvm",
//		Passes:      [][]string{{"loop-deletion", "indvars"}, {"instcombine"}},
//	})
//	fmt.Println(res.Overall.Removed)
//
// [Engine.AnalyzeIR] does the same for stage texts that already exist, and
// [Engine.AnalyzeFiles] runs many source files concurrently.
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] reads persisted runs back:
//
//   - [QueryBuilder.RecordRange]: which records came from source line N.
//   - [QueryBuilder.SourceLineAt]: which source line record K maps to.
//   - [QueryBuilder.LiveLines] and [QueryBuilder.DiffLines]: the line sets
//     and partitions of a run.
package passlens
