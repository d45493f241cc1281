package hashdb

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RelPath converts an absolute file path into the slash-separated form stored
// in a Database anchored at base. Paths outside base are rejected.
func RelPath(base, abs string) (string, error) {
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", fmt.Errorf("relative path of %q: %w", abs, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q is not inside base directory %q", abs, base)
	}
	return filepath.ToSlash(rel), nil
}

// ComparePaths orders slash paths component by component, so "a/b" sorts
// before "a.b" even though '/' > '.' bytewise.
func ComparePaths(a, b string) int {
	for {
		ai := strings.IndexByte(a, '/')
		bi := strings.IndexByte(b, '/')
		ah, bh := a, b
		if ai >= 0 {
			ah = a[:ai]
		}
		if bi >= 0 {
			bh = b[:bi]
		}
		if c := strings.Compare(ah, bh); c != 0 {
			return c
		}
		switch {
		case ai < 0 && bi < 0:
			return 0
		case ai < 0:
			return -1
		case bi < 0:
			return 1
		}
		a, b = a[ai+1:], b[bi+1:]
	}
}
