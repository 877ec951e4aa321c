package etl

import (
	"context"
	"fmt"
	"os"

	"github.com/BartekS5/sql2bq/internal/warehouse"
	"github.com/BartekS5/sql2bq/pkg/logger"
	"github.com/BartekS5/sql2bq/pkg/models"
)

var _ Loader = (*WarehouseLoader)(nil)

// WarehouseLoader hands load files to a warehouse. Full mode replaces the
// destination table, incremental mode appends to it.
type WarehouseLoader struct {
	Warehouse warehouse.Warehouse
}

func (l *WarehouseLoader) Load(ctx context.Context, spec models.TableSpec, mode models.Mode, batch Batch) (LoadResult, error) {
	disposition := warehouse.Truncate
	if mode == models.ModeIncremental {
		disposition = warehouse.Append
		if batch.Rows == 0 {
			logger.Infof("No new rows for %s, skipping load", spec.DestinationTable)
			os.Remove(batch.Path)
			return LoadResult{Skipped: true}, nil
		}
	}

	res, err := l.Warehouse.Load(ctx, warehouse.LoadRequest{
		Table:          spec.DestinationTable,
		Schema:         batch.Schema,
		Path:           batch.Path,
		Disposition:    disposition,
		PartitionField: partitionFieldName(spec),
	})
	if err != nil {
		if ctx.Err() != nil {
			return LoadResult{}, fmt.Errorf("load %s: %w", spec.DestinationTable, ctx.Err())
		}
		logger.Errorf("Load of %s failed, keeping %s", spec.DestinationTable, batch.Path)
		return LoadResult{}, fmt.Errorf("%w: %s: %w", ErrLoad, spec.DestinationTable, err)
	}

	if err := os.Remove(batch.Path); err != nil && !os.IsNotExist(err) {
		logger.Warnf("Could not remove load file %s: %v", batch.Path, err)
	}
	return LoadResult{RowsLoaded: res.RowsLoaded, TotalRows: res.TotalRows}, nil
}

// partitionFieldName translates the configured source column into its
// destination name.
func partitionFieldName(spec models.TableSpec) string {
	if spec.PartitionField == "" {
		return ""
	}
	for _, c := range spec.Columns {
		if c.Source == spec.PartitionField || c.DestName() == spec.PartitionField {
			return c.DestName()
		}
	}
	return spec.PartitionField
}
