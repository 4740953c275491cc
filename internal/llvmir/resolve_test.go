package llvmir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTable parses definition lines into a Table, failing on any line that
// is not a metadata definition.
func buildTable(t *testing.T, defs ...string) Table {
	t.Helper()
	table := make(Table)
	for _, d := range defs {
		node, ok := ParseMetadataNode(d)
		require.True(t, ok, "not a metadata definition: %q", d)
		table[node.ID] = node
	}
	return table
}

func TestTable_DirectLine(t *testing.T) {
	t.Parallel()
	table := buildTable(t, `!10 = !DILocation(line: 42, column: 5, scope: !11)`)

	line, ok, err := table.Line("!10")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42, line)

	col, ok, err := table.Column("!10")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, col)
}

func TestTable_BubblesThroughScope(t *testing.T) {
	t.Parallel()
	table := buildTable(t,
		`!20 = !DILocation(scope: !21)`,
		`!21 = distinct !DILexicalBlock(scope: !22)`,
		`!22 = distinct !DISubprogram(name: "g", file: !23, line: 12)`,
		`!23 = !DIFile(filename: "lib/g.c", directory: "/src")`,
	)

	loc, err := table.Locate("!21")
	require.NoError(t, err)
	assert.Equal(t, SourceLocation{File: "lib/g.c", Line: 12}, loc)

	loc, err = table.Locate("!20")
	require.NoError(t, err)
	assert.Equal(t, SourceLocation{File: "lib/g.c", Line: 12}, loc)
}

func TestTable_FileFollowsFileBeforeScope(t *testing.T) {
	t.Parallel()
	table := buildTable(t,
		`!1 = distinct !DILexicalBlock(scope: !2, file: !3, line: 4, column: 2)`,
		`!2 = distinct !DISubprogram(name: "outer", file: !4, line: 1)`,
		`!3 = !DIFile(filename: "inc/header.h", directory: "/src")`,
		`!4 = !DIFile(filename: "main.c", directory: "/src")`,
	)

	file, ok, err := table.File("!1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "inc/header.h", file)
}

func TestTable_FileDoesNotFallBackToScopeAfterBrokenFileLink(t *testing.T) {
	t.Parallel()
	table := buildTable(t,
		`!1 = distinct !DILexicalBlock(scope: !2, file: !99, line: 4)`,
		`!2 = distinct !DISubprogram(name: "outer", file: !4, line: 1)`,
		`!4 = !DIFile(filename: "main.c", directory: "/src")`,
	)

	_, ok, err := table.File("!1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTable_SyntheticFilenames(t *testing.T) {
	t.Parallel()
	tests := []struct {
		filename string
		want     string
		found    bool
	}{
		{"<stdin>", "", false},
		{"/tmp/compiler-explorer-compiler2023/<stdin>", "", false},
		{"-", "", false},
		{"example.cpp", "", false},
		{"/app/example.rs", "", false},
		{"<source>", "", false},
		{"foo.cpp", "foo.cpp", true},
		{"examples/foo.c", "examples/foo.c", true},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			t.Parallel()
			table := buildTable(t, `!1 = !DIFile(filename: "`+tt.filename+`", directory: "x")`)
			got, ok, err := table.File("!1")
			require.NoError(t, err)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTable_MissingIDIsNotFound(t *testing.T) {
	t.Parallel()
	table := buildTable(t, `!1 = !DILocation(line: 3, scope: !2)`)

	_, ok, err := table.Line("!404")
	require.NoError(t, err)
	assert.False(t, ok)

	// The scope link dangles: column cannot be found, but it is not an error.
	_, ok, err = table.Column("!1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTable_LineZeroIsNotALocation(t *testing.T) {
	t.Parallel()
	table := buildTable(t,
		`!1 = !DILocation(line: 0, scope: !2)`,
		`!2 = distinct !DISubprogram(name: "f", line: 8)`,
	)

	_, ok, err := table.Line("!1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTable_CycleIsReported(t *testing.T) {
	t.Parallel()
	table := buildTable(t,
		`!1 = distinct !DILexicalBlock(scope: !2)`,
		`!2 = distinct !DILexicalBlock(scope: !1)`,
	)

	_, ok, err := table.Line("!1")
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrScopeCycle)

	loc, err := table.Locate("!2")
	require.ErrorIs(t, err, ErrScopeCycle)
	assert.Equal(t, SourceLocation{}, loc)
}

func TestTable_SelfReference(t *testing.T) {
	t.Parallel()
	table := buildTable(t, `!1 = distinct !DILexicalBlock(scope: !1, file: !1)`)

	_, _, err := table.File("!1")
	require.ErrorIs(t, err, ErrScopeCycle)
}
