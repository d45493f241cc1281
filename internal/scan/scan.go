package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/eargollo/songhash/internal/hashdb"
	"github.com/eargollo/songhash/internal/media"
	"github.com/eargollo/songhash/internal/metrics"
)

// FileRecord is a supported file discovered on disk, not yet hashed.
type FileRecord struct {
	Path         string // absolute
	RelPath      string // relative to the scan's base directory, slash separated
	ModTimeNanos int64
	Size         int64
}

// HashedFile is a FileRecord with its contents read, in flight between the
// pipeline reader and hasher. Seq is the 1-based position in read order.
type HashedFile struct {
	FileRecord
	Contents []byte
	Seq      int
}

// Job names one directory tree and the database file that fingerprints it.
type Job struct {
	Name          string
	Directory     string
	DatabaseFile  string
	BaseDirectory string // defaults to Directory
}

// Config holds scan tuning parameters shared by every job.
type Config struct {
	Extensions []string
	QueueDepth int
	Walkers    int
	Out        io.Writer // console output: progress lines and status messages
	Recorder   Recorder  // optional scan history

	readFile func(string) ([]byte, error)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Extensions: media.DefaultExtensions,
		QueueDepth: DefaultQueueDepth,
		Walkers:    4,
		Out:        io.Discard,
	}
}

// Result summarises one scan.
type Result struct {
	FilesDiscovered int
	FilesStale      int
	FilesHashed     int
	BytesRead       int64
	Records         int  // records in the database after the scan
	Written         bool // false when nothing was stale or the scan failed
}

// Scanner runs the incremental fingerprint scan for one Job.
type Scanner struct {
	job Job
	cfg Config
}

// New creates a Scanner.
func New(job Job, cfg Config) *Scanner {
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	return &Scanner{job: job, cfg: cfg}
}

// Run loads the job's database, hashes every stale file and writes the
// merged database back. The database file is written only when the whole
// pipeline succeeded.
func (s *Scanner) Run(ctx context.Context, triggeredBy string, progress *Progress) (Result, error) {
	if progress == nil {
		progress = &Progress{}
	}
	startedAt := time.Now()

	var runID int64
	if s.cfg.Recorder != nil {
		id, err := s.cfg.Recorder.BeginRun(ctx, Run{
			Library:      s.job.Name,
			Directory:    s.job.Directory,
			DatabaseFile: s.job.DatabaseFile,
			TriggeredBy:  triggeredBy,
			StartedAt:    startedAt,
		})
		if err != nil {
			slog.Warn("scan history: begin run", "error", err)
		}
		runID = id
	}

	slog.Info("scan started", "library", s.job.Name, "directory", s.job.Directory,
		"database", s.job.DatabaseFile, "triggered_by", triggeredBy)

	res, runErr := s.execute(ctx, progress)

	status := StatusCompleted
	switch {
	case runErr != nil && ctx.Err() != nil:
		status = StatusCancelled
	case runErr != nil:
		status = StatusFailed
	}

	finishedAt := time.Now()
	metrics.ScansTotal.WithLabelValues(string(status)).Inc()
	metrics.ScanDuration.Observe(finishedAt.Sub(startedAt).Seconds())
	metrics.ScanLastRunTimestamp.Set(float64(finishedAt.Unix()))
	if res.Written {
		metrics.DatabaseRecords.WithLabelValues(s.job.DatabaseFile).Set(float64(res.Records))
	}

	if runID != 0 {
		// Background so a cancelled scan is still recorded.
		if err := s.cfg.Recorder.FinishRun(context.Background(), runID, status, finishedAt, res, runErr); err != nil {
			slog.Warn("scan history: finish run", "id", runID, "error", err)
		}
	}

	slog.Info("scan finished", "library", s.job.Name, "status", status,
		"files_discovered", res.FilesDiscovered,
		"files_hashed", res.FilesHashed,
		"bytes_read", humanize.Bytes(uint64(res.BytesRead)),
		"duration", finishedAt.Sub(startedAt).Round(time.Millisecond))

	return res, runErr
}

// execute performs the scan steps in order: load, validate, enumerate,
// select stale, hash, merge, persist.
func (s *Scanner) execute(ctx context.Context, progress *Progress) (Result, error) {
	var res Result

	dir, base, err := resolveDirs(s.job.Directory, s.job.BaseDirectory)
	if err != nil {
		return res, err
	}

	db, err := hashdb.LoadFile(s.job.DatabaseFile)
	switch {
	case errors.Is(err, hashdb.ErrMissingDatabase):
		db = hashdb.New(base)
	case err != nil:
		return res, err
	default:
		fmt.Fprintln(s.cfg.Out, "Previous data exists. Updating...")
	}

	if err := db.CheckBaseDir(base); err != nil {
		return res, err
	}

	files, err := enumerate(ctx, walkSpec{
		root:   dir,
		base:   base,
		filter: media.NewFilter(s.cfg.Extensions),
		report: skipReport(progress),
	}, s.cfg.Walkers)
	if err != nil {
		return res, fmt.Errorf("enumerate %q: %w", dir, err)
	}
	res.FilesDiscovered = len(files)
	progress.FilesDiscovered.Store(int64(len(files)))
	metrics.FilesDiscoveredTotal.Add(float64(len(files)))

	stale := selectStale(db, files)
	res.FilesStale = len(stale)
	progress.FilesStale.Store(int64(len(stale)))
	metrics.FilesStaleTotal.Add(float64(len(stale)))

	if len(stale) == 0 {
		fmt.Fprintln(s.cfg.Out, "No new songs to update. Done!")
		res.Records = db.Len()
		return res, nil
	}

	records, err := RunPipeline(ctx, stale, PipelineConfig{
		QueueDepth: s.cfg.QueueDepth,
		Out:        s.cfg.Out,
		Progress:   progress,
		readFile:   s.cfg.readFile,
	})
	if err != nil {
		return res, fmt.Errorf("hash files: %w", err)
	}
	res.FilesHashed = len(records)
	res.BytesRead = progress.BytesRead.Load()

	db.MergeUpdate(records)
	if err := db.WriteFile(s.job.DatabaseFile); err != nil {
		return res, err
	}
	res.Records = db.Len()
	res.Written = true
	return res, nil
}

// selectStale keeps the files the database does not know or holds an older
// modification time for, preserving order.
func selectStale(db *hashdb.Database, files []FileRecord) []FileRecord {
	var stale []FileRecord
	for _, f := range files {
		if db.IsStale(f.RelPath, f.ModTimeNanos) {
			stale = append(stale, f)
		}
	}
	return stale
}

// resolveDirs makes directory and base absolute; base defaults to directory
// and must contain it.
func resolveDirs(directory, base string) (string, string, error) {
	dir, err := filepath.Abs(directory)
	if err != nil {
		return "", "", fmt.Errorf("resolve directory %q: %w", directory, err)
	}
	if base == "" {
		return dir, dir, nil
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", "", fmt.Errorf("resolve base directory %q: %w", base, err)
	}
	if absBase != dir {
		if _, err := hashdb.RelPath(absBase, dir); err != nil {
			return "", "", fmt.Errorf("scan directory: %w", err)
		}
	}
	return dir, absBase, nil
}
