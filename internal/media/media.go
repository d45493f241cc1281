package media

import (
	"path/filepath"
	"strings"
)

// FileType classifies a file by extension.
type FileType string

const (
	FileTypeAudio FileType = "audio"
	FileTypeOther FileType = "other"
)

// DefaultExtensions are the song formats scanned when none are configured.
var DefaultExtensions = []string{".mp3", ".m4a"}

var audioExts = map[string]bool{
	".mp3": true, ".m4a": true, ".aac": true, ".flac": true,
	".ogg": true, ".opus": true, ".wav": true, ".wma": true,
	".aiff": true, ".aif": true, ".alac": true,
}

// Detect returns the FileType for the given file path based on extension.
func Detect(path string) FileType {
	if audioExts[strings.ToLower(filepath.Ext(path))] {
		return FileTypeAudio
	}
	return FileTypeOther
}

// Filter selects files by extension. Matching is exact and case sensitive,
// so "song.MP3" is not selected by ".mp3".
type Filter struct {
	exts map[string]struct{}
}

// NewFilter builds a Filter for exts. Entries without a leading dot get one.
// An empty list selects DefaultExtensions.
func NewFilter(exts []string) Filter {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	f := Filter{exts: make(map[string]struct{}, len(exts))}
	for _, e := range exts {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		f.exts[e] = struct{}{}
	}
	return f
}

// Match reports whether path carries one of the filter's extensions.
func (f Filter) Match(path string) bool {
	_, ok := f.exts[filepath.Ext(path)]
	return ok
}
