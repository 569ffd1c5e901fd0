package policy

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fabriziosalmi/rainroll/internal/models"
)

// ArchiveDir returns the directory part of a file-name pattern: everything
// before the last "/", whatever date or index tokens follow it. A pattern
// without a separator yields "", which selects nothing.
func ArchiveDir(pattern string) string {
	i := strings.LastIndex(pattern, "/")
	if i < 0 {
		return ""
	}
	if i == 0 {
		return "/"
	}
	return pattern[:i]
}

// LastModified returns the regular file in dir with the greatest modification
// time. ok is false when dir is empty, missing or unreadable.
//
// This is how the segment produced by a rollover is found: the engine does
// not report the archived name, and the freshest file in the archive
// directory is taken to be it.
func LastModified(dir string) (seg models.Segment, ok bool) {
	if dir == "" {
		return seg, false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return seg, false
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !ok || info.ModTime().After(seg.ModTime) {
			seg = models.Segment{Path: filepath.Join(dir, e.Name()), ModTime: info.ModTime()}
			ok = true
		}
	}
	return seg, ok
}
