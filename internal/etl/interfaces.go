package etl

import (
	"context"

	"github.com/BartekS5/sql2bq/pkg/models"
)

// Extractor dumps the rows of one table inside a window to dumpPath.
type Extractor interface {
	Extract(ctx context.Context, spec models.TableSpec, window models.ExtractionWindow, dumpPath string) (ExtractResult, error)
}

// Loader moves a serialized batch into the destination table.
type Loader interface {
	Load(ctx context.Context, spec models.TableSpec, mode models.Mode, batch Batch) (LoadResult, error)
}

type ExtractResult struct {
	Path    string
	Columns []string
	Rows    int
}

// Batch is a transformed load file and the schema it was written for.
type Batch struct {
	Path   string
	Rows   int
	Schema []models.Field
}

type LoadResult struct {
	Skipped    bool
	RowsLoaded int64
	TotalRows  int64
}
