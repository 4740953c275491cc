// Package cache keeps Compiler Explorer responses on disk so repeated
// analyses of unchanged sources skip the network.
package cache

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/minio/highwayhash"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/jward/passlens/internal/explorer"
)

// Current schema version - increment when Payload changes.
const schemaVersion uint16 = 1

var hashKey = []byte("passlens-response-cache-key-0001")

var _ explorer.Cache = (*DiskCache)(nil)

// DiskCache stores compile responses under <dir>/responses.
// Safe for concurrent use.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// Payload is the on-disk record.
type Payload struct {
	Schema   uint16
	Compiler string
	Args     string
	Response explorer.CompileResponse
}

// Open returns a cache rooted at dir, creating it if needed. An empty dir
// means $XDG_CACHE_HOME/passlens (or ~/.cache/passlens).
func Open(dir string) (*DiskCache, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, "passlens")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *DiskCache) Dir() string { return c.dir }

// Key hashes the parts of a request that determine its response.
func Key(req *explorer.CompileRequest) (uint64, error) {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		return 0, err
	}
	for _, part := range []string{req.Compiler, req.Lang, req.Options.UserArguments, req.Source} {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(part)))
		h.Write(n[:])
		h.Write([]byte(part))
	}
	return h.Sum64(), nil
}

func (c *DiskCache) pathFor(key uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], key)
	return filepath.Join(c.dir, "responses", hex.EncodeToString(b[:])+".msgpack")
}

// Get returns the cached response for req. Missing entries and entries
// written by another schema version are misses.
func (c *DiskCache) Get(req *explorer.CompileRequest) (*explorer.CompileResponse, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	key, err := Key(req)
	if err != nil {
		return nil, false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var p Payload
	if err := msgpack.NewDecoder(f).Decode(&p); err != nil {
		return nil, false, fmt.Errorf("decoding cache entry: %w", err)
	}
	if p.Schema != schemaVersion || p.Compiler != req.Compiler || p.Args != req.Options.UserArguments {
		return nil, false, nil
	}
	return &p.Response, true, nil
}

// Put writes resp for req, replacing any previous entry atomically.
func (c *DiskCache) Put(req *explorer.CompileRequest, resp *explorer.CompileResponse) error {
	if c == nil {
		return nil
	}
	key, err := Key(req)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	payload := Payload{
		Schema:   schemaVersion,
		Compiler: req.Compiler,
		Args:     req.Options.UserArguments,
		Response: *resp,
	}
	if err := msgpack.NewEncoder(f).Encode(&payload); err != nil {
		f.Close()
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Clear removes every cached response.
func (c *DiskCache) Clear() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(filepath.Join(c.dir, "responses"))
}
