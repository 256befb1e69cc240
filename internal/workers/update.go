package workers

import (
	"context"
	"strconv"

	"github.com/phototag/catalog-service/internal/catalog"
	"github.com/phototag/catalog-service/internal/metadata"
	"github.com/phototag/catalog-service/internal/taskqueue"
)

// DescriptiveUpdater is the catalog access the update processor needs
type DescriptiveUpdater interface {
	UpdateDescriptive(ctx context.Context, baseName string, d catalog.Descriptive) (int64, error)
}

// UpdateProcessor merges metadata records into catalogued images
type UpdateProcessor struct {
	Table   *metadata.Table
	Catalog DescriptiveUpdater
}

// Process applies the item's metadata record. Items without a record and
// records matching no image are done; neither is an error.
func (p *UpdateProcessor) Process(ctx context.Context, item taskqueue.WorkItem) (Result, error) {
	rec, ok := p.Table.Lookup(item.Payload)
	if !ok {
		return done("no metadata record"), nil
	}

	d := catalog.Descriptive{
		Lat:       rec.Lat,
		Lng:       rec.Lng,
		SetCoords: p.Table.HasCoordinates(),
	}
	if rec.Name != "" {
		name := rec.Name
		d.Name = &name
	}

	n, err := p.Catalog.UpdateDescriptive(ctx, metadata.NormalizeKey(item.Payload), d)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return retry("update: " + err.Error()), nil
	}
	if n == 0 {
		return done("no matching image"), nil
	}
	return done("updated " + strconv.FormatInt(n, 10) + " image(s)"), nil
}
