package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/phototag/catalog-service/internal/pkg/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashOf(c byte) string {
	return strings.Repeat(string(c), 64)
}

func TestStoreIntegration(t *testing.T) {
	pool := pgtest.Start(t)
	store := NewStore(pool)
	ctx := context.Background()

	t.Run("insert and duplicate checks", func(t *testing.T) {
		pgtest.Reset(t, pool)

		id, err := store.Insert(ctx, NewImage{Filename: "a.jpg", OriginalName: "a.jpg", Path: "/s/a.jpg", Hash: hashOf('a')})
		require.NoError(t, err)
		assert.NotZero(t, id)

		ok, err := store.ExistsByFilename(ctx, "a.jpg")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = store.ExistsByHash(ctx, hashOf('a'))
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = store.ExistsByHash(ctx, hashOf('b'))
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = store.Insert(ctx, NewImage{Filename: "a.jpg", OriginalName: "a.jpg", Path: "/s/a.jpg", Hash: hashOf('c')})
		assert.ErrorIs(t, err, ErrDuplicate)
		_, err = store.Insert(ctx, NewImage{Filename: "copy.jpg", OriginalName: "copy.jpg", Path: "/s/copy.jpg", Hash: hashOf('a')})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("update descriptive matches base name", func(t *testing.T) {
		pgtest.Reset(t, pool)
		for i, name := range []string{"IMG_1.jpg", "IMG_1.png", "IMG_10.jpg"} {
			_, err := store.Insert(ctx, NewImage{Filename: name, OriginalName: name, Path: "/s/" + name, Hash: hashOf('a' + byte(i))})
			require.NoError(t, err)
		}

		title := "Harbour at dusk"
		lat, lng := 45.81, 15.98
		n, err := store.UpdateDescriptive(ctx, "IMG_1", Descriptive{Name: &title, Lat: &lat, Lng: &lng, SetCoords: true})
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		var name string
		var gotLat *float64
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT original_name, lat FROM images WHERE filename = 'IMG_10.jpg'`).Scan(&name, &gotLat))
		assert.Equal(t, "IMG_10.jpg", name)
		assert.Nil(t, gotLat)

		// nil name keeps the current one; coordinates untouched without SetCoords
		n, err = store.UpdateDescriptive(ctx, "IMG_1", Descriptive{})
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT original_name, lat FROM images WHERE filename = 'IMG_1.jpg'`).Scan(&name, &gotLat))
		assert.Equal(t, title, name)
		require.NotNil(t, gotLat)
		assert.InDelta(t, lat, *gotLat, 1e-9)

		// SetCoords with nil coordinates clears them
		_, err = store.UpdateDescriptive(ctx, "IMG_1", Descriptive{SetCoords: true})
		require.NoError(t, err)
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT lat FROM images WHERE filename = 'IMG_1.png'`).Scan(&gotLat))
		assert.Nil(t, gotLat)

		n, err = store.UpdateDescriptive(ctx, "missing", Descriptive{Name: &title})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("archive", func(t *testing.T) {
		pgtest.Reset(t, pool)
		id, err := store.Insert(ctx, NewImage{Filename: "a.jpg", OriginalName: "a.jpg", Path: "/s/a.jpg", Hash: hashOf('a')})
		require.NoError(t, err)

		require.NoError(t, store.Archive(ctx, id))
		var archived bool
		require.NoError(t, pool.QueryRow(ctx, `SELECT archived FROM images WHERE id = $1`, id).Scan(&archived))
		assert.True(t, archived)

		assert.ErrorIs(t, store.Archive(ctx, id+1), ErrNotFound)
	})

	t.Run("export rows aggregate distinct tags", func(t *testing.T) {
		pgtest.Reset(t, pool)
		a, err := store.Insert(ctx, NewImage{Filename: "a.jpg", OriginalName: "Alpha", Path: "/s/a.jpg", Hash: hashOf('a')})
		require.NoError(t, err)
		_, err = store.Insert(ctx, NewImage{Filename: "b.jpg", OriginalName: "Beta", Path: "/s/b.jpg", Hash: hashOf('b')})
		require.NoError(t, err)

		_, err = pool.Exec(ctx, `INSERT INTO tags (name) VALUES ('sea'), ('boat')`)
		require.NoError(t, err)
		// two users tagged "sea"; it is listed once
		_, err = pool.Exec(ctx, `
			INSERT INTO image_tags (image_id, tag_id, user_id) VALUES
			($1, 1, 1), ($1, 1, 2), ($1, 2, 1)`, a)
		require.NoError(t, err)

		rows, err := store.ExportRows(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 2)

		byName := map[string]ExportRow{}
		for _, r := range rows {
			byName[r.OriginalName] = r
		}
		assert.Equal(t, "boat, sea", byName["Alpha"].Tags)
		assert.Equal(t, "", byName["Beta"].Tags)
	})

	t.Run("purge all", func(t *testing.T) {
		pgtest.Reset(t, pool)
		a, err := store.Insert(ctx, NewImage{Filename: "a.jpg", OriginalName: "a.jpg", Path: "/s/a.jpg", Hash: hashOf('a')})
		require.NoError(t, err)
		_, err = store.Insert(ctx, NewImage{Filename: "b.jpg", OriginalName: "b.jpg", Path: "/s/b.jpg", Hash: hashOf('b')})
		require.NoError(t, err)
		_, err = pool.Exec(ctx, `INSERT INTO tags (name) VALUES ('sea')`)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, `INSERT INTO image_tags (image_id, tag_id, user_id) VALUES ($1, 1, 1)`, a)
		require.NoError(t, err)

		names, err := store.PurgeAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.jpg", "b.jpg"}, names)

		var count int
		for _, table := range []string{"images", "tags", "image_tags"} {
			require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count))
			assert.Zero(t, count, table)
		}
	})
}
