package hashdb

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func digestOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func rec(path, content string, ts int64) DigestRecord {
	return DigestRecord{Path: path, SHA256: digestOf(content), ModTimeNanos: ts}
}

func TestIsStale(t *testing.T) {
	db := New("/music")
	db.MergeUpdate([]DigestRecord{rec("a.mp3", "X", 100)})

	cases := []struct {
		name string
		path string
		ts   int64
		want bool
	}{
		{"unknown path", "b.mp3", 1, true},
		{"same time", "a.mp3", 100, false},
		{"older time", "a.mp3", 50, false},
		{"newer time", "a.mp3", 101, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := db.IsStale(tc.path, tc.ts); got != tc.want {
				t.Errorf("IsStale(%q, %d) = %v, want %v", tc.path, tc.ts, got, tc.want)
			}
		})
	}
}

func TestEmptyDatabaseTreatsEverythingAsStale(t *testing.T) {
	db := New("/music")
	if !db.IsStale("x/y.m4a", 0) {
		t.Error("empty database should report every file stale")
	}
}

func TestMatchesDigest(t *testing.T) {
	db := New("/music")
	db.MergeUpdate([]DigestRecord{rec("a.mp3", "X", 100)})

	if !db.MatchesDigest(rec("a.mp3", "X", 999)) {
		t.Error("same digest with different timestamp should match")
	}
	if db.MatchesDigest(rec("a.mp3", "Z", 100)) {
		t.Error("different digest should not match")
	}
	if db.MatchesDigest(rec("missing.mp3", "X", 100)) {
		t.Error("absent path should not match")
	}
}

func TestMergeUpdatePreservesUntouchedEntries(t *testing.T) {
	db := New("/music")
	a, b := rec("A", "a", 1), rec("B", "b", 2)
	db.MergeUpdate([]DigestRecord{a, b})

	b2, c := rec("B", "b2", 3), rec("C", "c", 4)
	db.MergeUpdate([]DigestRecord{b2, c})

	want := map[string]DigestRecord{"A": a, "B": b2, "C": c}
	if db.Len() != len(want) {
		t.Fatalf("Len = %d, want %d", db.Len(), len(want))
	}
	for p, w := range want {
		got, ok := db.Get(p)
		if !ok || got != w {
			t.Errorf("Get(%q) = %+v, %v; want %+v", p, got, ok, w)
		}
	}
}

func TestPathsSortByComponent(t *testing.T) {
	db := New("/music")
	for _, p := range []string{"a.b", "a/b", "B", "a/a/z", "a"} {
		db.MergeUpdate([]DigestRecord{rec(p, p, 1)})
	}
	got := strings.Join(db.Paths(), ",")
	want := "B,a,a/a/z,a/b,a.b"
	if got != want {
		t.Errorf("Paths = %s, want %s", got, want)
	}
}

func TestRelPath(t *testing.T) {
	got, err := RelPath("/music", "/music/Artist/Album/01.mp3")
	if err != nil {
		t.Fatalf("RelPath: %v", err)
	}
	if got != "Artist/Album/01.mp3" {
		t.Errorf("RelPath = %q", got)
	}

	for _, outside := range []string{"/other/x.mp3", "/music"} {
		if _, err := RelPath("/music", outside); err == nil {
			t.Errorf("RelPath(%q): expected error", outside)
		}
	}
}

func TestWithModTimeLeavesOriginal(t *testing.T) {
	r := rec("a.mp3", "X", 100)
	r2 := r.WithModTime(300)
	if r.ModTimeNanos != 100 || r2.ModTimeNanos != 300 || r2.SHA256 != r.SHA256 {
		t.Errorf("WithModTime: got %+v from %+v", r2, r)
	}
}
