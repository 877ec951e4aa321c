package etl

import (
	"context"
	"errors"
	"fmt"

	"github.com/BartekS5/sql2bq/pkg/models"
)

// Per-table failure kinds. Each one fails the table it happened in and
// leaves sibling tables alone.
var (
	ErrConnection     = errors.New("connection error")
	ErrQuery          = errors.New("query error")
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrLoad           = errors.New("load error")
)

// StageError records which table failed, where, and why.
type StageError struct {
	Table string
	Stage models.Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("table %s: %v during %s: %v", e.Table, e.Kind, e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

var defaultKinds = map[models.Stage]error{
	models.StageExtracting:   ErrQuery,
	models.StageTransforming: ErrSchemaMismatch,
	models.StageLoading:      ErrLoad,
}

// newStageError classifies err, keeping a kind the callee already chose.
func newStageError(table string, stage models.Stage, err error) *StageError {
	kind := defaultKinds[stage]
	for _, k := range []error{ErrConnection, ErrQuery, ErrSchemaMismatch, ErrLoad, context.Canceled, context.DeadlineExceeded} {
		if errors.Is(err, k) {
			kind = k
			break
		}
	}
	return &StageError{Table: table, Stage: stage, Kind: kind, Err: err}
}
