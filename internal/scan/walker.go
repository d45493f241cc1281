package scan

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/eargollo/songhash/internal/hashdb"
	"github.com/eargollo/songhash/internal/media"
)

// dirQueue is an unbounded, concurrency-safe queue of directory paths.
// It tracks a pending counter so that Walk knows when all work is done.
//
// Termination protocol:
//   - Push increments pending BEFORE enqueuing (caller must own the increment).
//   - Done decrements pending AFTER all children of a directory have been
//     pushed. When pending reaches 0, Done closes the queue and broadcasts.
type dirQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []string
	head    int // index of the next item to pop
	pending atomic.Int64
	closed  bool
}

func newDirQueue() *dirQueue {
	q := &dirQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a directory. Must be called after incrementing pending.
func (q *dirQueue) Push(dir string) {
	q.mu.Lock()
	q.items = append(q.items, dir)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until an item is available or the queue is closed.
// Returns ("", false) when the queue is closed and empty.
func (q *dirQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.head >= len(q.items) && !q.closed {
		q.cond.Wait()
	}
	if q.head >= len(q.items) {
		return "", false
	}
	item := q.items[q.head]
	q.items[q.head] = ""
	q.head++
	if q.head >= 1000 && q.head >= len(q.items)/2 {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return item, true
}

// Done must be called once per directory after all its sub-directories have
// been pushed. When pending reaches 0 the queue closes.
func (q *dirQueue) Done() {
	if q.pending.Add(-1) == 0 {
		q.close()
	}
}

func (q *dirQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// walkSpec describes one enumeration.
type walkSpec struct {
	root   string // directory to walk
	base   string // directory record paths are relative to
	filter media.Filter
	report ErrorReporter
}

// Walk traverses spec.root with numWorkers goroutines and sends every regular
// file accepted by the filter to out. Symlinks are not followed. Walk closes
// out when done.
func Walk(ctx context.Context, spec walkSpec, numWorkers int, out chan<- FileRecord) {
	defer close(out)
	if numWorkers <= 0 {
		numWorkers = 1
	}

	q := newDirQueue()
	q.pending.Add(1)
	q.Push(spec.root)

	// Unblock idle workers on cancellation.
	stop := context.AfterFunc(ctx, q.close)
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			walkerWorker(ctx, q, spec, out)
		}()
	}
	wg.Wait()
}

// walkerWorker pops directories from q, enqueues sub-directories, sends
// matching files to out, then calls q.Done().
func walkerWorker(ctx context.Context, q *dirQueue, spec walkSpec, out chan<- FileRecord) {
	for {
		if ctx.Err() != nil {
			return
		}

		dir, ok := q.Pop()
		if !ok {
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			spec.report(dir, "walk", err.Error())
			q.Done()
			continue
		}

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())

			if entry.IsDir() {
				q.pending.Add(1)
				q.Push(path)
				continue
			}
			if !entry.Type().IsRegular() {
				continue
			}
			if !spec.filter.Match(path) {
				if media.Detect(path) == media.FileTypeAudio {
					slog.Debug("skip audio file with unconfigured extension", "path", path)
				}
				continue
			}

			rel, err := hashdb.RelPath(spec.base, path)
			if err != nil {
				spec.report(path, "walk", err.Error())
				continue
			}
			if !hashdb.ValidPath(rel) {
				spec.report(path, "walk", hashdb.ErrUnencodablePath.Error())
				continue
			}

			info, err := entry.Info()
			if err != nil {
				spec.report(path, "walk", err.Error())
				continue
			}

			select {
			case <-ctx.Done():
				q.Done()
				return
			case out <- FileRecord{
				Path:         path,
				RelPath:      rel,
				ModTimeNanos: info.ModTime().UnixNano(),
				Size:         info.Size(),
			}:
			}
		}

		q.Done()
	}
}

// enumerate walks spec.root and returns the matching files ordered by
// relative path, the order the pipeline reads them in.
func enumerate(ctx context.Context, spec walkSpec, numWorkers int) ([]FileRecord, error) {
	out := make(chan FileRecord, 1000)
	go Walk(ctx, spec, numWorkers, out)

	var files []FileRecord
	for fr := range out {
		files = append(files, fr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return hashdb.ComparePaths(files[i].RelPath, files[j].RelPath) < 0
	})
	return files, nil
}

// skipReport logs an enumeration problem and counts it.
func skipReport(progress *Progress) ErrorReporter {
	return func(path, stage, errMsg string) {
		progress.Errors.Add(1)
		slog.Warn("scan: skipping path", "path", path, "stage", stage, "error", errMsg)
	}
}
