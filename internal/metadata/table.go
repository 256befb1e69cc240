// Package metadata loads the descriptive metadata table used by update jobs.
package metadata

import (
	"path/filepath"
	"strings"
)

// Record is one row of the metadata file
type Record struct {
	Filename string
	Name     string
	Lat      *float64
	Lng      *float64
}

// Table is the in-memory metadata, keyed by normalized filename
type Table struct {
	order     []string
	records   map[string]Record
	hasCoords bool
}

func newTable(hasCoords bool) *Table {
	return &Table{records: make(map[string]Record), hasCoords: hasCoords}
}

// add keeps the first occurrence of a filename in order and lets later rows
// overwrite its values
func (t *Table) add(r Record) {
	key := NormalizeKey(r.Filename)
	if key == "" {
		return
	}
	if _, seen := t.records[key]; !seen {
		t.order = append(t.order, r.Filename)
	}
	t.records[key] = r
}

// NormalizeKey reduces a filename or record id to the key used for lookups:
// the base name cut at the first dot, trimmed.
func NormalizeKey(payload string) string {
	base := filepath.Base(strings.TrimSpace(payload))
	if base == "." || base == "/" {
		return ""
	}
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return strings.TrimSpace(base)
}

// Filenames returns one entry per distinct record, in file order
func (t *Table) Filenames() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Lookup finds the record for a queued payload
func (t *Table) Lookup(payload string) (Record, bool) {
	if t == nil {
		return Record{}, false
	}
	r, ok := t.records[NormalizeKey(payload)]
	return r, ok
}

// Len returns the number of distinct records
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

// HasCoordinates reports whether the source file had lat/lng columns
func (t *Table) HasCoordinates() bool {
	return t != nil && t.hasCoords
}

// Empty returns a table with no records
func Empty() *Table {
	return newTable(false)
}
