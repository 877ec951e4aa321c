// Package warehouse loads newline-delimited JSON files into a destination.
package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/BartekS5/sql2bq/pkg/models"
)

// Disposition says what happens to rows already in the destination table.
type Disposition string

const (
	// Truncate atomically replaces the table contents with the loaded rows.
	Truncate Disposition = "WRITE_TRUNCATE"
	// Append adds the loaded rows to the table.
	Append Disposition = "WRITE_APPEND"
)

// LoadRequest describes one load of a file into a table.
type LoadRequest struct {
	Table          string
	Schema         []models.Field
	Path           string
	Disposition    Disposition
	PartitionField string
}

// LoadResult reports what the destination accepted.
type LoadResult struct {
	RowsLoaded int64
	TotalRows  int64
}

// Warehouse is a destination that can load a file into a table.
type Warehouse interface {
	Load(ctx context.Context, req LoadRequest) (LoadResult, error)
	Close() error
}

// Options selects and configures a warehouse.
type Options struct {
	Kind            string
	ProjectID       string
	Dataset         string
	Location        string
	CredentialsFile string
	GCSBucket       string
	GCSPrefix       string
	Path            string
}

// Open builds the warehouse named by opts.Kind.
func Open(ctx context.Context, opts Options) (Warehouse, error) {
	switch strings.ToLower(opts.Kind) {
	case "", "bigquery":
		return NewBigQuery(ctx, opts)
	case "sqlite":
		return OpenSQLite(opts.Path)
	case "duckdb":
		return OpenDuckDB(opts.Path)
	default:
		return nil, fmt.Errorf("unsupported warehouse %q", opts.Kind)
	}
}
