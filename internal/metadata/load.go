package metadata

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// ErrMissingFilenameColumn is returned when the header has no filename column
var ErrMissingFilenameColumn = errors.New("metadata: header must contain a 'filename' column")

// Load reads a metadata file, dispatching on its extension
func Load(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return loadXLSX(path)
	case ".csv", ".txt", "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read metadata %s: %w", path, err)
		}
		return ParseCSV(data)
	default:
		return nil, fmt.Errorf("metadata: unsupported file type %q", filepath.Ext(path))
	}
}

const sampleSize = 2000

// delimiterSample returns at most sampleSize leading bytes of b, cut on a
// rune boundary
func delimiterSample(b []byte) []byte {
	if len(b) <= sampleSize {
		return b
	}
	cut := sampleSize
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return b[:cut]
}

// ParseCSV decodes data to UTF-8, detects the delimiter and builds the table
func ParseCSV(data []byte) (*Table, error) {
	decoded, err := Decode(data, DetectEncoding(data))
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	r := csv.NewReader(bytes.NewReader(decoded))
	r.Comma = DetectDelimiter(string(delimiterSample(decoded)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingFilenameColumn
		}
		return nil, fmt.Errorf("read metadata header: %w", err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	t := newTable(cols.lat >= 0 || cols.lng >= 0)
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read metadata row: %w", err)
		}
		if rec, ok := cols.record(row); ok {
			t.add(rec)
		}
	}
	return t, nil
}

func loadXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("metadata workbook %s has no sheets", path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrMissingFilenameColumn
	}

	cols, err := mapColumns(rows[0])
	if err != nil {
		return nil, err
	}

	t := newTable(cols.lat >= 0 || cols.lng >= 0)
	for _, row := range rows[1:] {
		if rec, ok := cols.record(row); ok {
			t.add(rec)
		}
	}
	return t, nil
}

type columns struct {
	filename, name, lat, lng int
}

func mapColumns(header []string) (columns, error) {
	c := columns{filename: -1, name: -1, lat: -1, lng: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "filename":
			c.filename = i
		case "name":
			c.name = i
		case "lat", "latitude":
			c.lat = i
		case "lng", "lon", "longitude":
			c.lng = i
		}
	}
	if c.filename < 0 {
		return c, ErrMissingFilenameColumn
	}
	return c, nil
}

func (c columns) record(row []string) (Record, bool) {
	filename := cell(row, c.filename)
	if filename == "" {
		return Record{}, false
	}
	return Record{
		Filename: filename,
		Name:     cell(row, c.name),
		Lat:      parseCoord(cell(row, c.lat)),
		Lng:      parseCoord(cell(row, c.lng)),
	}, true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseCoord returns nil for anything that is not a finite number
func parseCoord(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || v != v || v > 1e308 || v < -1e308 {
		return nil
	}
	return &v
}
