package etl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BartekS5/sql2bq/pkg/logger"
	"github.com/BartekS5/sql2bq/pkg/models"
)

// TableResult is the outcome of one table in one run.
type TableResult struct {
	Table      string
	Source     string
	Mode       models.Mode
	Window     models.ExtractionWindow
	Stage      models.Stage
	FailedAt   models.Stage
	Rows       int
	RowsLoaded int64
	TotalRows  int64
	DumpPath   string
	LoadPath   string
	Err        error
	Duration   time.Duration
}

// Report collects the results of a run in table order.
type Report struct {
	RunID   string
	RunTime time.Time
	Results []TableResult
}

// Failed returns the tables that did not reach DONE.
func (r Report) Failed() []TableResult {
	var failed []TableResult
	for _, res := range r.Results {
		if res.Stage != models.StageDone {
			failed = append(failed, res)
		}
	}
	return failed
}

func (r Report) OK() bool {
	return len(r.Failed()) == 0
}

// Orchestrator drives each table through extract, transform and load.
type Orchestrator struct {
	Extractor Extractor
	Loader    Loader
	DumpsDir  string
	RunID     string
	// OnTableDone is called after every table, whatever its outcome.
	OnTableDone func(TableResult)
}

// Run processes tables sequentially. A failing table never stops the
// others; only cancellation of ctx does. The returned state is a new value
// in which every DONE table's last success is runTime.
func (o *Orchestrator) Run(ctx context.Context, tables []models.TableSpec, state models.RunState, runTime time.Time, daily bool) (models.RunState, Report) {
	if state.Tables == nil {
		state = models.NewRunState()
	}
	report := Report{RunID: o.RunID, RunTime: runTime}

	logger.Infof("Starting run %s at %s (daily=%v, %d tables)", o.RunID, runTime.Format(time.RFC3339), daily, len(tables))
	for _, spec := range tables {
		var res TableResult
		if err := ctx.Err(); err != nil {
			res = TableResult{
				Table:    spec.DestinationTable,
				Source:   spec.SourceTable,
				Mode:     spec.EffectiveMode(daily),
				Stage:    models.StageFailed,
				FailedAt: models.StagePending,
				Err:      &StageError{Table: spec.DestinationTable, Stage: models.StagePending, Kind: err, Err: err},
			}
			logger.Warnf("Table %s not started: %v", spec.DestinationTable, err)
		} else {
			res = o.runTable(ctx, spec, state, runTime, daily)
		}

		if res.Stage == models.StageDone {
			state = state.With(spec.DestinationTable, models.TableState{
				LastSuccess: runTime,
				LastRunID:   o.RunID,
				Rows:        int64(res.Rows),
			})
		}
		report.Results = append(report.Results, res)
		if o.OnTableDone != nil {
			o.OnTableDone(res)
		}
	}

	failed := report.Failed()
	logger.Infof("Run %s finished: %d succeeded, %d failed", o.RunID, len(report.Results)-len(failed), len(failed))
	return state, report
}

func (o *Orchestrator) runTable(ctx context.Context, spec models.TableSpec, state models.RunState, runTime time.Time, daily bool) TableResult {
	started := time.Now()
	res := TableResult{
		Table:  spec.DestinationTable,
		Source: spec.SourceTable,
		Mode:   spec.EffectiveMode(daily),
		Stage:  models.StagePending,
	}
	fail := func(err error) TableResult {
		se := newStageError(spec.DestinationTable, res.Stage, err)
		res.FailedAt = res.Stage
		res.Stage = models.StageFailed
		res.Err = se
		res.Duration = time.Since(started)
		logger.Errorf("Table %s failed during %s (%v): %v", spec.DestinationTable, se.Stage, se.Kind, err)
		return res
	}

	window, err := ComputeWindow(res.Mode, state.LastSuccess(spec.DestinationTable), runTime)
	if err != nil {
		res.Stage = models.StageExtracting
		return fail(fmt.Errorf("%w: %w", ErrQuery, err))
	}
	res.Window = window

	res.Stage = models.StageExtracting
	logger.Infof("Extracting %s -> %s (%s, window %s)", spec.SourceTable, spec.DestinationTable, res.Mode, window)
	dumpPath := DumpPath(o.DumpsDir, spec.DestinationTable, runTime)
	extracted, err := o.Extractor.Extract(ctx, spec, window, dumpPath)
	if err != nil {
		return fail(err)
	}
	res.DumpPath = extracted.Path
	logger.Infof("Extracted %d rows from %s into %s", extracted.Rows, spec.SourceTable, extracted.Path)

	res.Stage = models.StageTransforming
	transformer, err := NewTransformer(spec)
	if err != nil {
		return fail(err)
	}
	loadPath := LoadPath(o.DumpsDir, spec.DestinationTable, runTime)
	rows, err := transformer.TransformFile(extracted.Path, loadPath)
	if err != nil {
		return fail(err)
	}
	res.Rows = rows
	res.LoadPath = loadPath

	if err := ctx.Err(); err != nil {
		os.Remove(loadPath)
		return fail(err)
	}

	res.Stage = models.StageLoading
	loaded, err := o.Loader.Load(ctx, spec, res.Mode, Batch{Path: loadPath, Rows: rows, Schema: transformer.Schema()})
	if err != nil {
		return fail(err)
	}
	res.RowsLoaded = loaded.RowsLoaded
	res.TotalRows = loaded.TotalRows

	res.Stage = models.StageDone
	res.Duration = time.Since(started)
	if loaded.Skipped {
		logger.Infof("Table %s done, nothing to load (%s)", spec.DestinationTable, res.Duration.Round(time.Millisecond))
	} else {
		logger.Infof("Table %s done: %d rows loaded (%s)", spec.DestinationTable, loaded.RowsLoaded, res.Duration.Round(time.Millisecond))
	}
	return res
}

// Err summarises a report as a single error, nil when every table is DONE.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, res.Err)
	}
	return errors.Join(errs...)
}
