package scan

import "sync/atomic"

// Progress holds live counters updated by the scan stages.
// All fields are atomic so they can be written from pipeline goroutines and
// read from the HTTP handler without locks.
type Progress struct {
	FilesDiscovered atomic.Int64
	FilesStale      atomic.Int64
	FilesHashed     atomic.Int64
	BytesRead       atomic.Int64
	Errors          atomic.Int64
}

// ErrorReporter records a per-path error that does not abort the scan
// (unreadable directories, paths that cannot be stored).
type ErrorReporter func(path, stage, errMsg string)
