package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with args and returns stdout. Flag
// variables are package globals, so they are reset before every run and
// these tests never run in parallel.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	flagDB, flagFormat, flagColor, flagVerbose, flagScriptsDir = "", "text", "off", false, ""
	flagPasses, flagLanguage, flagCompiler, flagOptions = nil, "", "", ""
	flagMaxLines, flagNoCache, flagWorkers, flagLimit, flagLabel = 0, false, 0, 20, ""
	errorHandled = false

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return stdout.String(), err
}

// testdataPath returns the absolute path of a file under the module's
// testdata directory.
func testdataPath(t *testing.T, name string) string {
	t.Helper()
	p, err := filepath.Abs(filepath.Join("..", "..", "testdata", name))
	require.NoError(t, err)
	return p
}

func deadCodeStages(t *testing.T) []string {
	t.Helper()
	return []string{
		testdataPath(t, "dead-code/stage0.ll"),
		testdataPath(t, "dead-code/stage1.ll"),
		testdataPath(t, "dead-code/stage2.ll"),
	}
}

// decodeEnvelope parses a JSON CLIResult, keeping Results raw.
func decodeEnvelope(t *testing.T, out string) (string, json.RawMessage, string) {
	t.Helper()
	var env struct {
		Command string          `json:"command"`
		Results json.RawMessage `json:"results"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env), "output: %s", out)
	return env.Command, env.Results, env.Error
}

func TestCLI_DiffShowRangeSource(t *testing.T) {
	stages := deadCodeStages(t)
	t.Chdir(t.TempDir())

	out, err := runCLI(t, append([]string{"diff", "--format", "json"}, stages...)...)
	require.NoError(t, err)
	cmdName, raw, _ := decodeEnvelope(t, out)
	assert.Equal(t, "diff", cmdName)

	var res struct {
		Run     string `json:"run"`
		Label   string `json:"label"`
		Overall struct {
			Retained []int `json:"retained"`
			Removed  []int `json:"removed"`
		} `json:"overall"`
	}
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, "stage0.ll", res.Label)
	assert.Equal(t, []int{1, 2, 5, 8}, res.Overall.Retained)
	assert.Equal(t, []int{6, 7}, res.Overall.Removed)
	require.NotEmpty(t, res.Run)

	_, err = os.Stat(filepath.Join(".passlens", "runs.db"))
	require.NoError(t, err, "default database should be created")

	out, err = runCLI(t, "show", res.Run, "--format", "json")
	require.NoError(t, err)
	_, raw, _ = decodeEnvelope(t, out)
	var detail CLIRunDetail
	require.NoError(t, json.Unmarshal(raw, &detail))
	require.Len(t, detail.Snapshots, 3)
	assert.Equal(t, []int{1, 2, 5, 6, 7, 8}, detail.Snapshots[0].LiveLines)
	require.Len(t, detail.Diffs, 3)
	assert.Equal(t, "overall", detail.Diffs[0].Kind)
	assert.Equal(t, []int{6, 7}, detail.Diffs[0].Removed)

	first := detail.Snapshots[0].ID
	out, err = runCLI(t, "range", fmt.Sprint(first), "2", "--format", "json")
	require.NoError(t, err)
	_, raw, _ = decodeEnvelope(t, out)
	var rr CLIRange
	require.NoError(t, json.Unmarshal(raw, &rr))
	require.NotEmpty(t, rr.Records)
	assert.Equal(t, rr.Last-rr.First+1, len(rr.Records))
	for _, rec := range rr.Records {
		require.NotNil(t, rec.Source)
		assert.Equal(t, 2, rec.Source.Line)
	}
	assert.Contains(t, rr.Records[0].Text, "mul nsw")

	out, err = runCLI(t, "source", fmt.Sprint(first), fmt.Sprint(rr.First))
	require.NoError(t, err)
	assert.Equal(t, "square.c:2:12\n", out)
}

func TestCLI_RangeWithoutRecordsPrintsNothing(t *testing.T) {
	stages := deadCodeStages(t)
	t.Chdir(t.TempDir())

	_, err := runCLI(t, append([]string{"diff"}, stages...)...)
	require.NoError(t, err)

	out, err := runCLI(t, "range", "3", "7")
	require.NoError(t, err)
	assert.Empty(t, out, "line 7 is gone from the last stage")

	_, err = runCLI(t, "range", "99", "7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot not found: 99")
}

func TestCLI_RunsAndRm(t *testing.T) {
	stages := deadCodeStages(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "custom.db")
	t.Chdir(dir)

	_, err := runCLI(t, "diff", "--db", db, "--label", "first", stages[0], stages[1])
	require.NoError(t, err)
	_, err = runCLI(t, "diff", "--db", db, "--label", "second", stages[1], stages[2])
	require.NoError(t, err)

	out, err := runCLI(t, "runs", "--db", db, "--format", "json")
	require.NoError(t, err)
	_, raw, _ := decodeEnvelope(t, out)
	var runs []CLIRun
	require.NoError(t, json.Unmarshal(raw, &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "second", runs[0].Label)

	out, err = runCLI(t, "rm", runs[0].UUID, "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "deleted run "+runs[0].UUID+"\n", out)

	out, err = runCLI(t, "runs", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "first")
	assert.NotContains(t, out, "second")

	_, err = runCLI(t, "show", runs[0].UUID, "--db", db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestCLI_Classify(t *testing.T) {
	stage0 := testdataPath(t, "dead-code/stage0.ll")
	t.Chdir(t.TempDir())

	out, err := runCLI(t, "classify", stage0)
	require.NoError(t, err)
	assert.Contains(t, out, "square.c:6:11")
	assert.Contains(t, out, "Live lines: 1,2,5,6,7,8")

	out, err = runCLI(t, "classify", stage0, "--format", "yaml")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "command: classify\n"), out)
	assert.Contains(t, out, "file: square.c")
}

func TestCLI_RunsWithoutDatabase(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := runCLI(t, "runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database not found")
}

func TestCLI_ErrorEnvelopeInJSON(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := runCLI(t, "range", "x", "1", "--format", "json")
	require.Error(t, err)
	cmdName, _, msg := decodeEnvelope(t, out)
	assert.Equal(t, "range", cmdName)
	assert.Contains(t, msg, `invalid snapshot-id "x"`)
	assert.True(t, errorHandled)
}

func TestCLI_InvalidFormat(t *testing.T) {
	_, err := runCLI(t, "runs", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestCLI_InvalidColor(t *testing.T) {
	_, err := runCLI(t, "runs", "--color", "sometimes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid color mode")
}

func TestParseIntArg(t *testing.T) {
	t.Parallel()
	n, err := parseIntArg("42", "line")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = parseIntArg("-1", "line")
	assert.Error(t, err)
	_, err = parseIntArg("abc", "line")
	assert.Error(t, err)
}

func TestResolveDBPath(t *testing.T) {
	flagDB = ""
	t.Cleanup(func() { flagDB = "" })
	assert.Equal(t, filepath.Join("/proj", ".passlens", "runs.db"), resolveDBPath("/proj"))

	flagDB = "other.db"
	assert.Equal(t, filepath.Join("/proj", "other.db"), resolveDBPath("/proj"))

	flagDB = "/abs/x.db"
	assert.Equal(t, "/abs/x.db", resolveDBPath("/proj"))
}
