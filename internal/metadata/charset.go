package metadata

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Encoding is a text encoding a metadata file may use
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingWindows1252 Encoding = "windows-1252"
	EncodingISO88591    Encoding = "iso-8859-1"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectEncoding guesses the encoding of a metadata file. Anything that is
// not valid UTF-8 is assumed to be a Windows-1252 spreadsheet export, which
// covers the accented Latin letters seen in place names.
func DetectEncoding(data []byte) Encoding {
	if bytes.HasPrefix(data, utf8BOM) || utf8.Valid(data) {
		return EncodingUTF8
	}
	return EncodingWindows1252
}

// Decode converts data to UTF-8 and strips a leading BOM
func Decode(data []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingWindows1252:
		if utf8.Valid(data) {
			return bytes.TrimPrefix(data, utf8BOM), nil
		}
		return charmap.Windows1252.NewDecoder().Bytes(data)
	case EncodingISO88591:
		return charmap.ISO8859_1.NewDecoder().Bytes(data)
	default:
		return bytes.TrimPrefix(data, utf8BOM), nil
	}
}
