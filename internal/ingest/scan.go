// Package ingest reads candidate files from the content directory.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ExtensionSet is a case-insensitive set of allowed file extensions
type ExtensionSet map[string]struct{}

// NewExtensionSet normalises extensions with or without a leading dot
func NewExtensionSet(exts []string) ExtensionSet {
	set := make(ExtensionSet, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}

// Allows reports whether name has an allowed extension
func (s ExtensionSet) Allows(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	_, ok := s[ext]
	return ok
}

// ScanDirectory lists the regular files directly under root whose extension
// is allowed. Hidden files and subdirectories are skipped. Names are
// returned sorted.
func ScanDirectory(root string, allowed ExtensionSet) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !e.Type().IsRegular() {
			// follow symlinks to regular files
			if e.Type()&os.ModeSymlink == 0 {
				continue
			}
			st, err := os.Stat(filepath.Join(root, name))
			if err != nil || !st.Mode().IsRegular() {
				continue
			}
		}
		if !allowed.Allows(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ResolvePath maps a queued filename to its location under root. Only the
// base name is used, so payloads cannot point outside the directory.
func ResolvePath(root, payload string) string {
	return filepath.Join(root, filepath.Base(filepath.Clean("/"+payload)))
}
