// Package catalog holds the image catalog operations used by the background
// jobs and the maintenance endpoints.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phototag/catalog-service/internal/database"
)

var (
	// ErrDuplicate is returned when an insert hits the filename or hash key
	ErrDuplicate = errors.New("image already catalogued")
	// ErrNotFound is returned when an image id does not exist
	ErrNotFound = errors.New("image not found")
)

// NewImage is what the import worker records for an accepted file
type NewImage struct {
	Filename     string
	OriginalName string
	Path         string
	Hash         string
}

// Descriptive holds the fields the metadata update may change. A nil Name
// keeps the current name. Coordinates are only written when SetCoords is
// true, and a nil coordinate is then stored as NULL.
type Descriptive struct {
	Name      *string
	Lat       *float64
	Lng       *float64
	SetCoords bool
}

// ExportRow is one line of the catalog export
type ExportRow struct {
	ID           int64     `json:"id"`
	OriginalName string    `json:"original_name"`
	Tags         string    `json:"tags"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// Store runs catalog queries against Postgres
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ExistsByFilename reports whether an image with this filename is catalogued
func (s *Store) ExistsByFilename(ctx context.Context, filename string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM images WHERE filename = $1)`, filename).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup filename %q: %w", filename, err)
	}
	return exists, nil
}

// ExistsByHash reports whether content with this fingerprint is catalogued
func (s *Store) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM images WHERE file_hash = $1)`, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup hash: %w", err)
	}
	return exists, nil
}

// Insert records a new image and returns its id
func (s *Store) Insert(ctx context.Context, img NewImage) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO images (filename, original_name, path, file_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, img.Filename, img.OriginalName, img.Path, img.Hash).Scan(&id)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("insert image %q: %w", img.Filename, err)
	}
	return id, nil
}

// UpdateDescriptive updates every image whose filename, cut at the first
// dot, equals baseName. Returns the number of rows changed; zero is not an
// error.
func (s *Store) UpdateDescriptive(ctx context.Context, baseName string, d Descriptive) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE images
		SET original_name = COALESCE($2, original_name),
		    lat = CASE WHEN $5 THEN $3 ELSE lat END,
		    lng = CASE WHEN $5 THEN $4 ELSE lng END
		WHERE split_part(filename, '.', 1) = $1
	`, baseName, d.Name, d.Lat, d.Lng, d.SetCoords)
	if err != nil {
		return 0, fmt.Errorf("update metadata for %q: %w", baseName, err)
	}
	return tag.RowsAffected(), nil
}

// Archive flags an image as archived
func (s *Store) Archive(ctx context.Context, imageID int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE images SET archived = TRUE WHERE id = $1`, imageID)
	if err != nil {
		return fmt.Errorf("archive image %d: %w", imageID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExportRows returns every image with its distinct tags, newest first
func (s *Store) ExportRows(ctx context.Context) ([]ExportRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.id,
		       i.original_name,
		       COALESCE(string_agg(DISTINCT t.name, ', ' ORDER BY t.name), ''),
		       i.uploaded_at
		FROM images i
		LEFT JOIN image_tags it ON it.image_id = i.id
		LEFT JOIN tags t ON t.id = it.tag_id
		GROUP BY i.id
		ORDER BY i.uploaded_at DESC, i.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("export images: %w", err)
	}
	defer rows.Close()

	var out []ExportRow
	for rows.Next() {
		var r ExportRow
		if err := rows.Scan(&r.ID, &r.OriginalName, &r.Tags, &r.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PurgeAll deletes all tag links, images and tags in one transaction and
// returns the filenames that were catalogued so the caller can remove the
// stored files.
func (s *Store) PurgeAll(ctx context.Context) ([]string, error) {
	var filenames []string
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT filename FROM images ORDER BY id`)
		if err != nil {
			return fmt.Errorf("list filenames: %w", err)
		}
		filenames, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("scan filenames: %w", err)
		}

		for _, stmt := range []string{
			`DELETE FROM image_tags`,
			`DELETE FROM images`,
			`DELETE FROM tags`,
		} {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("%s: %w", stmt, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return filenames, nil
}
