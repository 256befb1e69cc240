package launcher

import (
	"context"
	"fmt"

	"github.com/phototag/catalog-service/internal/ingest"
	"github.com/phototag/catalog-service/internal/jobs"
	"github.com/phototag/catalog-service/internal/metadata"
)

// Source enumerates the payloads a new job of its kind should queue
type Source interface {
	Kind() jobs.Kind
	Enumerate(ctx context.Context) ([]string, error)
}

// DirectorySource lists importable files in the content directory
type DirectorySource struct {
	Root    string
	Allowed ingest.ExtensionSet
}

func (s DirectorySource) Kind() jobs.Kind { return jobs.KindImport }

func (s DirectorySource) Enumerate(ctx context.Context) ([]string, error) {
	return ingest.ScanDirectory(s.Root, s.Allowed)
}

// MetadataSource lists the filenames named in the metadata file
type MetadataSource struct {
	Path string
}

func (s MetadataSource) Kind() jobs.Kind { return jobs.KindUpdate }

func (s MetadataSource) Enumerate(ctx context.Context) ([]string, error) {
	table, err := metadata.Load(s.Path)
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	return table.Filenames(), nil
}
