package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eargollo/songhash/internal/hashdb"
)

// writeSong creates dir/rel with content and sets its mtime to mtimeNanos
// since the epoch. Returns the absolute path.
func writeSong(tb testing.TB, dir, rel, content string, mtimeNanos int64) string {
	tb.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		tb.Fatalf("mkdir %q: %v", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		tb.Fatalf("write %q: %v", p, err)
	}
	touch(tb, p, mtimeNanos)
	return p
}

// touch sets the modification time of path without changing its contents.
func touch(tb testing.TB, path string, mtimeNanos int64) {
	tb.Helper()
	ts := time.Unix(0, mtimeNanos)
	if err := os.Chtimes(path, ts, ts); err != nil {
		tb.Fatalf("chtimes %q: %v", path, err)
	}
}

func mustReadFile(tb testing.TB, path string) []byte {
	tb.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("read %q: %v", path, err)
	}
	return b
}

func mustLoadDB(tb testing.TB, path string) *hashdb.Database {
	tb.Helper()
	db, err := hashdb.LoadFile(path)
	if err != nil {
		tb.Fatalf("load database: %v", err)
	}
	return db
}

// noErrors is an ErrorReporter that fails the test if invoked.
func noErrors(tb testing.TB) ErrorReporter {
	return func(path, stage, errMsg string) {
		tb.Errorf("unexpected scan error: path=%q stage=%q err=%q", path, stage, errMsg)
	}
}

// countingReader wraps os.ReadFile, counting calls and optionally failing
// for one path.
type countingReader struct {
	reads  atomic.Int64
	failOn string
}

var errInjected = errors.New("injected read failure")

func (c *countingReader) read(path string) ([]byte, error) {
	c.reads.Add(1)
	if c.failOn != "" && path == c.failOn {
		return nil, errInjected
	}
	return os.ReadFile(path)
}

// testConfig returns a Config writing console output to out and reading
// files through r.
func testConfig(out *bytes.Buffer, r *countingReader) Config {
	cfg := DefaultConfig()
	cfg.Out = out
	cfg.Walkers = 2
	cfg.readFile = r.read
	return cfg
}

// fakeRecorder keeps runs in memory.
type fakeRecorder struct {
	mu       sync.Mutex
	begun    []Run
	finished []Status
	results  []Result
}

func (f *fakeRecorder) BeginRun(_ context.Context, run Run) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begun = append(f.begun, run)
	return int64(len(f.begun)), nil
}

func (f *fakeRecorder) FinishRun(_ context.Context, _ int64, status Status, _ time.Time, res Result, _ error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, status)
	f.results = append(f.results, res)
	return nil
}

// memFiles builds n FileRecords with in-memory contents, served by the
// returned read function.
func memFiles(n int) ([]FileRecord, func(string) ([]byte, error)) {
	contents := make(map[string][]byte, n)
	files := make([]FileRecord, n)
	for i := range files {
		p := fmt.Sprintf("/music/track%03d.mp3", i)
		contents[p] = []byte(fmt.Sprintf("song body %d", i))
		files[i] = FileRecord{Path: p, RelPath: fmt.Sprintf("track%03d.mp3", i), ModTimeNanos: int64(i)}
	}
	return files, func(path string) ([]byte, error) {
		b, ok := contents[path]
		if !ok {
			return nil, os.ErrNotExist
		}
		return b, nil
	}
}
