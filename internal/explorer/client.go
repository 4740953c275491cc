package explorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultHost is a locally running Compiler Explorer instance.
const DefaultHost = "http://localhost:10240"

// OptCompiler and IRLanguage address the service's `opt` tool.
const (
	OptCompiler = "opt"
	IRLanguage  = "llvmir"
)

// ErrCompilation is returned when the service answered but produced no IR.
// The wrapping error's message continues with the compiler's stderr.
var ErrCompilation = errors.New("<Compilation Error>")

// Cache stores compile responses keyed by request. Implementations must be
// safe for concurrent use.
type Cache interface {
	Get(req *CompileRequest) (*CompileResponse, bool, error)
	Put(req *CompileRequest, resp *CompileResponse) error
}

// Client talks to the Compiler Explorer REST API.
type Client struct {
	host       string
	httpClient *http.Client
	cache      Cache
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithCache serves repeated requests from cache.
func WithCache(cache Cache) ClientOption {
	return func(c *Client) { c.cache = cache }
}

// WithLogger sets the logger for compiler output and cache traffic.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client for host. An empty host means DefaultHost.
func NewClient(host string, opts ...ClientOption) *Client {
	if host == "" {
		host = DefaultHost
	}
	c := &Client{
		host:       strings.TrimRight(host, "/"),
		httpClient: &http.Client{},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Host returns the base URL requests are sent to.
func (c *Client) Host() string { return c.host }

// UserArguments joins the compiler options with one `-I "<path>"` flag per
// include directory. Backslashes in paths become forward slashes.
func UserArguments(options string, includes []string) string {
	parts := []string{options}
	for _, inc := range includes {
		parts = append(parts, fmt.Sprintf(`-I "%s"`, strings.ReplaceAll(inc, `\`, "/")))
	}
	return strings.Join(parts, " ")
}

// PassArguments renders an opt pass list as `-passes=a,b`.
func PassArguments(passes []string) string {
	return "-passes=" + strings.Join(passes, ",")
}

// CompileSource compiles source with the given compiler and returns the IR
// text. An answer without IR is reported as ErrCompilation.
func (c *Client) CompileSource(ctx context.Context, compiler, language, source, userArgs string) (string, error) {
	req := &CompileRequest{
		Source:              source,
		Lang:                language,
		Options:             NewOptions(userArgs),
		AllowStoreCodeDebug: true,
		Compiler:            compiler,
	}
	resp, err := c.Compile(ctx, req)
	if err != nil {
		return "", err
	}
	if err := checkOutput(resp); err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// RunPasses feeds ir through `opt` with the given pass list.
func (c *Client) RunPasses(ctx context.Context, ir string, passes []string) (string, error) {
	return c.CompileSource(ctx, OptCompiler, IRLanguage, ir, PassArguments(passes))
}

// Compile posts req and decodes the reply. Cached replies are returned
// without contacting the service.
func (c *Client) Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error) {
	if c.cache != nil {
		resp, ok, err := c.cache.Get(req)
		if err != nil {
			c.logger.Warn("cache read failed", "compiler", req.Compiler, "err", err)
		} else if ok {
			c.logger.Debug("cache hit", "compiler", req.Compiler, "args", req.Options.UserArguments)
			return resp, nil
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	url := fmt.Sprintf("%s/api/compiler/%s/compile", c.host, req.Compiler)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("compile request to %s: %w", req.Compiler, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, fmt.Errorf("compile request to %s: status %d: %s", req.Compiler, httpResp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var resp CompileResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	c.logOutput(req.Compiler, &resp)

	if c.cache != nil && checkOutput(&resp) == nil {
		if err := c.cache.Put(req, &resp); err != nil {
			c.logger.Warn("cache write failed", "compiler", req.Compiler, "err", err)
		}
	}
	return &resp, nil
}

func (c *Client) logOutput(compiler string, resp *CompileResponse) {
	if len(resp.CompilationOptions) > 0 {
		c.logger.Debug("compilation options", "compiler", compiler, "options", strings.Join(resp.CompilationOptions, " "))
	}
	out := append(append([]OutputLine{}, resp.Stdout...), resp.Stderr...)
	if len(out) > 0 {
		c.logger.Debug("compiler output", "compiler", compiler, "text", joinLines(out))
	}
}

func checkOutput(resp *CompileResponse) error {
	if resp.Asm == nil || (len(resp.Asm) == 0 && len(resp.Stderr) > 0) {
		return fmt.Errorf("%w\n%s", ErrCompilation, resp.StderrText())
	}
	return nil
}
