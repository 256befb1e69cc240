package workers

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/phototag/catalog-service/internal/catalog"
	"github.com/phototag/catalog-service/internal/ingest"
	"github.com/phototag/catalog-service/internal/metrics"
	"github.com/phototag/catalog-service/internal/pkg/ids"
	"github.com/phototag/catalog-service/internal/storage"
	"github.com/phototag/catalog-service/internal/taskqueue"
)

// ImportCatalog is the catalog access the import processor needs
type ImportCatalog interface {
	ExistsByFilename(ctx context.Context, filename string) (bool, error)
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	Insert(ctx context.Context, img catalog.NewImage) (int64, error)
}

// ImportProcessor ingests one file from the content directory
type ImportProcessor struct {
	SourceDir     string
	Catalog       ImportCatalog
	Storage       storage.Storage
	Fingerprinter ingest.Fingerprinter
	Metrics       *metrics.Recorder
}

func done(reason string) Result   { return Result{Outcome: taskqueue.OutcomeDone, Reason: reason} }
func retry(reason string) Result  { return Result{Outcome: taskqueue.OutcomeRetry, Reason: reason} }
func failed(reason string) Result { return Result{Outcome: taskqueue.OutcomeFailed, Reason: reason} }

// Process checks for duplicates by filename then by content fingerprint,
// copies the file into storage and records it in the catalog
func (p *ImportProcessor) Process(ctx context.Context, item taskqueue.WorkItem) (Result, error) {
	path := ingest.ResolvePath(p.SourceDir, item.Payload)

	st, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return failed("source file missing"), nil
	case err != nil:
		return retry("stat source: " + err.Error()), nil
	case !st.Mode().IsRegular():
		return failed("source is not a regular file"), nil
	}

	filename := st.Name()
	exists, err := p.Catalog.ExistsByFilename(ctx, filename)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return done("filename already catalogued"), nil
	}

	start := time.Now()
	hash, err := p.Fingerprinter.Fingerprint(ctx, path)
	if p.Metrics != nil {
		p.Metrics.Fingerprinted(time.Since(start))
	}
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return Result{}, ctx.Err()
		case errors.Is(err, ingest.ErrSlowFingerprint):
			return retry("fingerprint too slow"), nil
		case errors.Is(err, ingest.ErrShortFingerprint):
			return failed("fingerprint invalid"), nil
		case errors.Is(err, fs.ErrNotExist):
			return failed("source file missing"), nil
		default:
			return retry("fingerprint: " + err.Error()), nil
		}
	}

	exists, err = p.Catalog.ExistsByHash(ctx, hash)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return done("content already catalogued"), nil
	}

	// stage under a hidden key so a concurrent import of the same filename
	// never has its stored file overwritten
	staged := ".upload-" + ids.Random(12)
	if res, ok := p.store(ctx, path, staged); !ok {
		return res, ctx.Err()
	}
	cleanup := func() { _ = p.Storage.Delete(context.WithoutCancel(ctx), staged) }

	_, err = p.Catalog.Insert(ctx, catalog.NewImage{
		Filename:     filename,
		OriginalName: filename,
		Path:         p.Storage.Path(filename),
		Hash:         hash,
	})
	switch {
	case err == nil:
	case errors.Is(err, catalog.ErrDuplicate):
		cleanup()
		return done("catalogued concurrently"), nil
	case ctx.Err() != nil:
		cleanup()
		return Result{}, ctx.Err()
	default:
		cleanup()
		return retry("insert: " + err.Error()), nil
	}

	if err := p.Storage.Rename(context.WithoutCancel(ctx), staged, filename); err != nil {
		cleanup()
		return failed("move into storage: " + err.Error()), nil
	}
	return done("ingested"), nil
}

// store copies the source file into storage under key
func (p *ImportProcessor) store(ctx context.Context, path, key string) (Result, bool) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return failed("source file missing"), false
		}
		return retry("open source: " + err.Error()), false
	}
	defer f.Close()

	if _, err := p.Storage.Put(ctx, key, f); err != nil {
		return retry("copy to storage: " + err.Error()), false
	}
	return Result{}, true
}
