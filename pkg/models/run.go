package models

import (
	"fmt"
	"time"
)

// Stage is a step of the per-table state machine.
type Stage string

const (
	StagePending      Stage = "PENDING"
	StageExtracting   Stage = "EXTRACTING"
	StageTransforming Stage = "TRANSFORMING"
	StageLoading      Stage = "LOADING"
	StageDone         Stage = "DONE"
	StageFailed       Stage = "FAILED"
)

// ExtractionWindow bounds the rows selected for one run. A nil Start means
// the window is unbounded below (full extraction).
type ExtractionWindow struct {
	Start *time.Time
	End   time.Time
}

// Bounded reports whether the window filters rows.
func (w ExtractionWindow) Bounded() bool {
	return w.Start != nil
}

func (w ExtractionWindow) String() string {
	if w.Start == nil {
		return fmt.Sprintf("(-inf, %s]", w.End.Format(time.RFC3339))
	}
	return fmt.Sprintf("(%s, %s]", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// RowRecord is one extracted row with its column order preserved.
type RowRecord struct {
	Columns []string
	Values  []any
}

// Get returns the value of the named column.
func (r RowRecord) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Field is one column of a destination schema.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
}

// TableState is what a run remembers about a destination table.
type TableState struct {
	LastSuccess time.Time `json:"last_success" bson:"last_success"`
	LastRunID   string    `json:"last_run_id" bson:"last_run_id"`
	Rows        int64     `json:"rows" bson:"rows"`
}

// RunState is keyed by destination table. It is passed into the orchestrator
// and a new value is returned; callers persist it between invocations.
type RunState struct {
	Tables map[string]TableState `json:"tables"`
}

func NewRunState() RunState {
	return RunState{Tables: map[string]TableState{}}
}

// LastSuccess returns the last successful run time for a table, or nil.
func (s RunState) LastSuccess(table string) *time.Time {
	ts, ok := s.Tables[table]
	if !ok || ts.LastSuccess.IsZero() {
		return nil
	}
	t := ts.LastSuccess
	return &t
}

// With returns a copy of s with the table entry replaced.
func (s RunState) With(table string, ts TableState) RunState {
	out := RunState{Tables: make(map[string]TableState, len(s.Tables)+1)}
	for k, v := range s.Tables {
		out.Tables[k] = v
	}
	out.Tables[table] = ts
	return out
}
