package llvmir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDirective(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line string
		want bool
	}{
		{`!0 = distinct !DICompileUnit(language: DW_LANG_C99, file: !1)`, true},
		{`!5 = !{i32 7, !"Dwarf Version", i32 5}`, true},
		{`!llvm.module.flags = !{!0, !1}`, true},
		{`source_filename = "example.c"`, true},
		{`target datalayout = "e-m:e-i64:64"`, true},
		{`target triple = "x86_64-pc-linux-gnu"`, true},
		{`define i32 @main() !dbg !7 {`, false},
		{`  ret i32 0, !dbg !12`, false},
		{`attributes #0 = { noinline nounwind }`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsDirective(tt.line), "line %q", tt.line)
	}
}

func TestLooksLikeIR(t *testing.T) {
	t.Parallel()
	ir := "declare void @llvm.dbg.declare(metadata, metadata, metadata)\n  ret void, !dbg !3\n!3 = !DILocation(line: 1, scope: !2)"
	assert.True(t, LooksLikeIR(ir))
	assert.False(t, LooksLikeIR("main:\n  push rbp\n  ret"))
	assert.False(t, LooksLikeIR("define void @f() {\n  ret void\n}"))
}
