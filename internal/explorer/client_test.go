package explorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService records requests and answers with a canned response per
// compiler id.
type fakeService struct {
	mu        sync.Mutex
	requests  []CompileRequest
	paths     []string
	responses map[string]CompileResponse
	status    int
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req CompileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.paths = append(f.paths, r.URL.Path)
	f.mu.Unlock()

	if f.status != 0 {
		http.Error(w, "service unavailable", f.status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(f.responses[req.Compiler])
}

func (f *fakeService) recorded() ([]CompileRequest, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CompileRequest(nil), f.requests...), append([]string(nil), f.paths...)
}

func newTestService(t *testing.T, responses map[string]CompileResponse) (*fakeService, *Client) {
	t.Helper()
	svc := &fakeService{responses: responses}
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)
	return svc, NewClient(srv.URL + "/")
}

func asm(lines ...string) []OutputLine {
	out := make([]OutputLine, len(lines))
	for i, l := range lines {
		out[i] = OutputLine{Text: l}
	}
	return out
}

func TestUserArguments(t *testing.T) {
	t.Parallel()
	got := UserArguments("-O0 -g -emit-llvm", []string{`C:\src\include`, "/usr/local/include"})
	assert.Equal(t, `-O0 -g -emit-llvm -I "C:/src/include" -I "/usr/local/include"`, got)
	assert.Equal(t, "-O2", UserArguments("-O2", nil))
}

func TestPassArguments(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "-passes=loop-deletion,indvars", PassArguments([]string{"loop-deletion", "indvars"}))
}

func TestCompileSource_PostsRequest(t *testing.T) {
	t.Parallel()
	svc, client := newTestService(t, map[string]CompileResponse{
		"clang1600": {Asm: asm("define void @f() {", "  ret void", "}")},
	})

	text, err := client.CompileSource(context.Background(), "clang1600", "c++", "void f() {}", "-O0 -g")
	require.NoError(t, err)
	assert.Equal(t, "define void @f() {\n  ret void\n}", text)

	requests, paths := svc.recorded()
	require.Len(t, requests, 1)
	assert.Equal(t, "/api/compiler/clang1600/compile", paths[0])
	req := requests[0]
	assert.Equal(t, "void f() {}", req.Source)
	assert.Equal(t, "c++", req.Lang)
	assert.Equal(t, "clang1600", req.Compiler)
	assert.True(t, req.AllowStoreCodeDebug)
	assert.Equal(t, "-O0 -g", req.Options.UserArguments)
	assert.Equal(t, DefaultFilters(), req.Options.Filters)
}

func TestCompileSource_WireFormat(t *testing.T) {
	t.Parallel()
	body, err := json.Marshal(CompileRequest{Options: NewOptions("-O1")})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	opts := raw["options"].(map[string]any)
	assert.Equal(t, []any{}, opts["tools"])
	assert.Equal(t, []any{}, opts["libraries"])
	filters := opts["filters"].(map[string]any)
	assert.Equal(t, false, filters["binary"])
	assert.Equal(t, true, filters["commentOnly"])
	assert.Equal(t, false, filters["trim"])
	co := opts["compilerOptions"].(map[string]any)
	assert.Equal(t, map[string]any{}, co["produceGccDump"])
}

func TestRunPasses(t *testing.T) {
	t.Parallel()
	svc, client := newTestService(t, map[string]CompileResponse{
		OptCompiler: {Asm: asm("optimized")},
	})

	text, err := client.RunPasses(context.Background(), "input ir", []string{"instcombine", "mem2reg"})
	require.NoError(t, err)
	assert.Equal(t, "optimized", text)

	requests, paths := svc.recorded()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, "/api/compiler/opt/compile", paths[0])
	assert.Equal(t, IRLanguage, req.Lang)
	assert.Equal(t, "input ir", req.Source)
	assert.Equal(t, "-passes=instcombine,mem2reg", req.Options.UserArguments)
}

func TestCompileSource_CompilationError(t *testing.T) {
	t.Parallel()
	_, client := newTestService(t, map[string]CompileResponse{
		"bad": {Asm: []OutputLine{}, Stderr: asm("<source>:1:1: error: unknown type name 'x'", "1 error generated.")},
	})

	_, err := client.CompileSource(context.Background(), "bad", "c", "x y;", "")
	require.ErrorIs(t, err, ErrCompilation)
	assert.Equal(t, "<Compilation Error>\n<source>:1:1: error: unknown type name 'x'\n1 error generated.", err.Error())
}

func TestCompileSource_MissingAsmIsError(t *testing.T) {
	t.Parallel()
	_, client := newTestService(t, map[string]CompileResponse{})

	_, err := client.CompileSource(context.Background(), "none", "c", "", "")
	require.ErrorIs(t, err, ErrCompilation)
}

func TestCompile_Non2xx(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(&fakeService{status: http.StatusServiceUnavailable})
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL)

	_, err := client.CompileSource(context.Background(), "clang1600", "c", "", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCompilation)
	assert.Contains(t, err.Error(), "status 503")
}

func TestCompile_ContextCanceled(t *testing.T) {
	t.Parallel()
	_, client := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.CompileSource(ctx, "clang1600", "c", "", "")
	require.ErrorIs(t, err, context.Canceled)
}

type memCache struct {
	mu    sync.Mutex
	items map[string]*CompileResponse
	puts  int
}

func (m *memCache) key(req *CompileRequest) string {
	return req.Compiler + "\x00" + req.Source + "\x00" + req.Options.UserArguments
}

func (m *memCache) Get(req *CompileRequest) (*CompileResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[m.key(req)]
	return r, ok, nil
}

func (m *memCache) Put(req *CompileRequest, resp *CompileResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[m.key(req)] = resp
	m.puts++
	return nil
}

func TestCompile_UsesCache(t *testing.T) {
	t.Parallel()
	svc := &fakeService{responses: map[string]CompileResponse{
		"clang1600": {Asm: asm("ir")},
		"bad":       {Asm: []OutputLine{}, Stderr: asm("error")},
	}}
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)
	cache := &memCache{items: map[string]*CompileResponse{}}
	client := NewClient(srv.URL, WithCache(cache))

	for range 3 {
		text, err := client.CompileSource(context.Background(), "clang1600", "c", "int x;", "-g")
		require.NoError(t, err)
		assert.Equal(t, "ir", text)
	}
	requests, _ := svc.recorded()
	assert.Len(t, requests, 1)

	// Failed compilations are not cached.
	for range 2 {
		_, err := client.CompileSource(context.Background(), "bad", "c", "", "")
		require.ErrorIs(t, err, ErrCompilation)
	}
	requests, _ = svc.recorded()
	assert.Len(t, requests, 3)
	assert.Equal(t, 1, cache.puts)
}
