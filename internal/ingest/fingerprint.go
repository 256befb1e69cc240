package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

var (
	// ErrSlowFingerprint is returned when hashing exceeds the slow threshold.
	// The read may have been stalled, so the result is not trusted.
	ErrSlowFingerprint = errors.New("fingerprint exceeded slow threshold")
	// ErrShortFingerprint is returned when the digest is not a full SHA-256 hex string
	ErrShortFingerprint = errors.New("fingerprint too short")
)

// FingerprintLen is the length of a hex SHA-256 digest
const FingerprintLen = 64

const readChunk = 256 * 1024

// Fingerprinter computes content fingerprints with a time limit
type Fingerprinter struct {
	SlowThreshold time.Duration
}

// Fingerprint returns the hex SHA-256 of the file at path
func (f Fingerprinter) Fingerprint(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return f.FingerprintReader(ctx, file)
}

// FingerprintReader hashes r, checking the deadline between chunks
func (f Fingerprinter) FingerprintReader(ctx context.Context, r io.Reader) (string, error) {
	if f.SlowThreshold > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, f.SlowThreshold, ErrSlowFingerprint)
		defer cancel()
	}

	h := sha256.New()
	buf := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			if errors.Is(context.Cause(ctx), ErrSlowFingerprint) {
				return "", ErrSlowFingerprint
			}
			return "", err
		}
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read content: %w", err)
		}
	}

	if errors.Is(context.Cause(ctx), ErrSlowFingerprint) {
		return "", ErrSlowFingerprint
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if len(sum) < FingerprintLen {
		return "", ErrShortFingerprint
	}
	return sum, nil
}
