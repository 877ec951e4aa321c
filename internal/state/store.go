// Package state persists the run-state record between invocations.
package state

import (
	"context"
	"strings"

	"github.com/BartekS5/sql2bq/pkg/models"
)

// Store loads and saves the run state.
type Store interface {
	Load(ctx context.Context) (models.RunState, error)
	Save(ctx context.Context, s models.RunState) error
	Close() error
}

// Open picks a backend from the URI scheme: mongodb:// and mongodb+srv://
// use MongoDB, sqlite:// a SQLite file, anything else a JSON file path
// (optionally prefixed with file://).
func Open(ctx context.Context, uri string) (Store, error) {
	switch {
	case strings.HasPrefix(uri, "mongodb://"), strings.HasPrefix(uri, "mongodb+srv://"):
		return OpenMongo(ctx, uri)
	case strings.HasPrefix(uri, "sqlite://"):
		return OpenSQLite(ctx, strings.TrimPrefix(uri, "sqlite://"))
	default:
		return NewFileStore(strings.TrimPrefix(uri, "file://")), nil
	}
}
