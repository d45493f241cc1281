// Package hashdb holds the persisted fingerprint database: a mapping from
// base-relative path to content digest and modification time.
package hashdb

import (
	"sort"
)

// DigestRecord is the persisted fingerprint of one file.
type DigestRecord struct {
	Path         string // relative to the owning Database's base directory, slash separated
	SHA256       string // 64 lowercase hex characters
	ModTimeNanos int64
}

// WithModTime returns a copy of r with the modification time replaced.
func (r DigestRecord) WithModTime(nanos int64) DigestRecord {
	r.ModTimeNanos = nanos
	return r
}

// Database maps relative paths to their DigestRecord. It is anchored at an
// absolute base directory. MergeUpdate is the only mutating operation.
type Database struct {
	baseDir string
	records map[string]DigestRecord
}

// New returns an empty Database anchored at baseDir.
func New(baseDir string) *Database {
	return &Database{baseDir: baseDir, records: make(map[string]DigestRecord)}
}

// BaseDir returns the directory all record paths are relative to.
func (db *Database) BaseDir() string { return db.baseDir }

// Len returns the number of records.
func (db *Database) Len() int { return len(db.records) }

// Get returns the record stored for path.
func (db *Database) Get(path string) (DigestRecord, bool) {
	r, ok := db.records[path]
	return r, ok
}

// Has reports whether a record exists for path.
func (db *Database) Has(path string) bool {
	_, ok := db.records[path]
	return ok
}

// IsStale reports whether the file at relPath needs hashing: it has no
// record, or modTimeNanos is strictly newer than the stored time.
func (db *Database) IsStale(relPath string, modTimeNanos int64) bool {
	r, ok := db.records[relPath]
	if !ok {
		return true
	}
	return modTimeNanos > r.ModTimeNanos
}

// MatchesDigest reports whether the stored record for candidate.Path carries
// the same digest. A missing path never matches.
func (db *Database) MatchesDigest(candidate DigestRecord) bool {
	r, ok := db.records[candidate.Path]
	return ok && r.SHA256 == candidate.SHA256
}

// MergeUpdate inserts or replaces each record by path. Records for paths not
// present in records are left untouched.
func (db *Database) MergeUpdate(records []DigestRecord) {
	for _, r := range records {
		db.records[r.Path] = r
	}
}

// Paths returns every stored path in serialization order.
func (db *Database) Paths() []string {
	paths := make([]string, 0, len(db.records))
	for p := range db.records {
		paths = append(paths, p)
	}
	sortPaths(paths)
	return paths
}

// Records returns every record in serialization order.
func (db *Database) Records() []DigestRecord {
	paths := db.Paths()
	out := make([]DigestRecord, len(paths))
	for i, p := range paths {
		out[i] = db.records[p]
	}
	return out
}

// Equal reports whether db and other share a base directory and hold the
// same record set.
func (db *Database) Equal(other *Database) bool {
	if db.baseDir != other.baseDir || len(db.records) != len(other.records) {
		return false
	}
	for p, r := range db.records {
		if o, ok := other.records[p]; !ok || o != r {
			return false
		}
	}
	return true
}

func sortPaths(paths []string) {
	sort.Slice(paths, func(i, j int) bool { return ComparePaths(paths[i], paths[j]) < 0 })
}
