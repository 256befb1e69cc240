package workers

import (
	"context"
	"errors"
	"io/fs"

	"github.com/phototag/catalog-service/internal/ingest"
	"github.com/phototag/catalog-service/internal/jobs"
	"github.com/phototag/catalog-service/internal/metadata"
	"github.com/phototag/catalog-service/internal/metrics"
	"github.com/phototag/catalog-service/internal/storage"
	"github.com/rs/zerolog"
)

// ImportFactory returns a factory for import processors reading from sourceDir
func ImportFactory(sourceDir string, cat ImportCatalog, store storage.Storage, fp ingest.Fingerprinter) ProcessorFactory {
	rec := metrics.NewRecorder()
	return func(ctx context.Context, job jobs.Job) (Processor, error) {
		return &ImportProcessor{
			SourceDir:     sourceDir,
			Catalog:       cat,
			Storage:       store,
			Fingerprinter: fp,
			Metrics:       rec,
		}, nil
	}
}

// UpdateFactory returns a factory for update processors. The metadata file is
// read once per worker run; if it is missing the worker runs with an empty
// table and every item resolves as done.
func UpdateFactory(metadataPath string, cat DescriptiveUpdater, logger zerolog.Logger) ProcessorFactory {
	return func(ctx context.Context, job jobs.Job) (Processor, error) {
		table, err := metadata.Load(metadataPath)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn().
				Int64("job_id", job.ID).
				Str("path", metadataPath).
				Msg("Metadata file missing, continuing with empty metadata")
			table = metadata.Empty()
		} else if err != nil {
			return nil, err
		}
		return &UpdateProcessor{Table: table, Catalog: cat}, nil
	}
}
