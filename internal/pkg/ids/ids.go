// Package ids generates short random identifiers for workers and log correlation.
package ids

import (
	crand "crypto/rand"
	"strconv"
	"strings"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Random returns a base62 string of the given length.
//
// Bytes are consumed 6 bits at a time and values >= 62 are rejected so every
// character is uniformly distributed.
func Random(length int) string {
	if length <= 0 {
		return ""
	}

	buf := make([]byte, length+length/4+4)
	if _, err := crand.Read(buf); err != nil {
		panic("ids: read random bytes: " + err.Error())
	}

	var out strings.Builder
	out.Grow(length)

	var bits uint64
	var nbits uint
	i := 0
	for out.Len() < length {
		if i >= len(buf) {
			if _, err := crand.Read(buf); err != nil {
				panic("ids: read random bytes: " + err.Error())
			}
			i = 0
		}
		for nbits < 6 && i < len(buf) {
			bits = bits<<8 | uint64(buf[i])
			nbits += 8
			i++
		}
		v := (bits >> (nbits - 6)) & 0x3f
		nbits -= 6
		if v < 62 {
			out.WriteByte(base62Alphabet[v])
		}
	}
	return out.String()
}

// Worker builds a worker id of the form <kind>-<job>-<random>
func Worker(kind string, jobID int64) string {
	return kind + "-" + strconv.FormatInt(jobID, 10) + "-" + Random(8)
}
