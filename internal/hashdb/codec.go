package hashdb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const maxLineBytes = 1 << 20

// ValidPath reports whether p can be written as a record path.
func ValidPath(p string) bool {
	return p != "" && !strings.ContainsAny(p, "\t\n\r")
}

// Load parses a database in the line format written by Serialize. The first
// line is the base directory; each following line is
// path<TAB>sha256<TAB>modTimeNanos. Any malformed line fails the whole load.
func Load(r io.Reader) (*Database, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read database: %w", err)
		}
		return nil, &ParseError{Line: 1, Reason: "missing base directory"}
	}
	base := sc.Text()
	if base == "" {
		return nil, &ParseError{Line: 1, Reason: "empty base directory"}
	}
	db := New(base)

	line := 1
	for sc.Scan() {
		line++
		rec, err := parseRecord(sc.Text())
		if err != nil {
			return nil, &ParseError{Line: line, Reason: err.Error()}
		}
		if db.Has(rec.Path) {
			return nil, &ParseError{Line: line, Reason: fmt.Sprintf("duplicate path %q", rec.Path)}
		}
		db.records[rec.Path] = rec
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read database: %w", err)
	}
	return db, nil
}

func parseRecord(text string) (DigestRecord, error) {
	fields := strings.Split(text, "\t")
	if len(fields) != 3 {
		return DigestRecord{}, fmt.Errorf("want 3 tab-separated fields, got %d", len(fields))
	}
	if fields[0] == "" {
		return DigestRecord{}, errors.New("empty path")
	}
	if !validDigest(fields[1]) {
		return DigestRecord{}, fmt.Errorf("malformed sha256 %q", fields[1])
	}
	ts, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return DigestRecord{}, fmt.Errorf("timestamp %q is not an integer", fields[2])
	}
	return DigestRecord{Path: fields[0], SHA256: fields[1], ModTimeNanos: ts}, nil
}

func validDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Serialize writes the base directory line followed by one line per record,
// sorted by path.
func (db *Database) Serialize(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, db.baseDir); err != nil {
		return err
	}
	for _, r := range db.Records() {
		if !ValidPath(r.Path) {
			return fmt.Errorf("serialize %q: %w", r.Path, ErrUnencodablePath)
		}
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%d\n", r.Path, r.SHA256, r.ModTimeNanos); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// LoadFile loads the database stored at path. A missing file yields an error
// wrapping ErrMissingDatabase.
func LoadFile(path string) (*Database, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("open database %q: %w", path, ErrMissingDatabase)
	}
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	defer f.Close()

	db, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load database %q: %w", path, err)
	}
	return db, nil
}

// WriteFile serializes db to a temporary file next to path and renames it
// over path, so readers see either the previous or the new database.
func (db *Database) WriteFile(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp database: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := db.Serialize(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write database %q: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync database %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close database %q: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod database %q: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace database %q: %w", path, err)
	}
	return nil
}
