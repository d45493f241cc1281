package scan

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/eargollo/songhash/internal/hashdb"
	"github.com/eargollo/songhash/internal/metrics"
)

// DefaultQueueDepth is the number of whole files the reader may buffer ahead
// of the hasher.
const DefaultQueueDepth = 8

// FileReadError is returned when a file cannot be read between enumeration
// and hashing. It aborts the whole pipeline.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("read %q: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

// PipelineConfig tunes RunPipeline. The zero value is usable.
type PipelineConfig struct {
	QueueDepth int       // defaults to DefaultQueueDepth
	Out        io.Writer // receives one "[seq/total] path" line per file; nil discards
	Progress   *Progress

	readFile func(string) ([]byte, error)
}

// RunPipeline reads files in order on one goroutine and hashes them on
// another, connected by a queue of cfg.QueueDepth entries. Reading file N+1
// overlaps hashing of file N; a full queue blocks the reader.
//
// The returned records are in input order. Any read failure aborts the
// pipeline with a *FileReadError and no records are returned.
func RunPipeline(ctx context.Context, files []FileRecord, cfg PipelineConfig) ([]hashdb.DigestRecord, error) {
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	progress := cfg.Progress
	if progress == nil {
		progress = &Progress{}
	}
	read := cfg.readFile
	if read == nil {
		read = os.ReadFile
	}

	queue := make(chan HashedFile, depth)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return readFiles(gctx, files, read, queue)
	})

	var results []hashdb.DigestRecord
	g.Go(func() error {
		var err error
		results, err = hashFiles(gctx, queue, len(files), out, progress)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// readFiles is the producer. It closes queue when it returns so the consumer
// sees end of stream on success and on failure alike.
func readFiles(ctx context.Context, files []FileRecord, read func(string) ([]byte, error), queue chan<- HashedFile) error {
	defer close(queue)

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := read(f.Path)
		if err != nil {
			metrics.ReadErrorsTotal.Inc()
			return &FileReadError{Path: f.Path, Err: err}
		}
		select {
		case queue <- HashedFile{FileRecord: f, Contents: data, Seq: i + 1}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// hashFiles is the consumer. It runs until queue is closed.
func hashFiles(ctx context.Context, queue <-chan HashedFile, total int, out io.Writer, progress *Progress) ([]hashdb.DigestRecord, error) {
	results := make([]hashdb.DigestRecord, 0, total)
	for {
		select {
		case hf, ok := <-queue:
			if !ok {
				return results, nil
			}
			fmt.Fprintf(out, "[%d/%d] %s\n", hf.Seq, total, hf.Path)
			results = append(results, hashdb.DigestRecord{
				Path:         hf.RelPath,
				SHA256:       Digest(hf.Contents),
				ModTimeNanos: hf.ModTimeNanos,
			})

			n := int64(len(hf.Contents))
			progress.FilesHashed.Add(1)
			progress.BytesRead.Add(n)
			metrics.FilesHashedTotal.Inc()
			metrics.BytesReadTotal.Add(float64(n))
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
