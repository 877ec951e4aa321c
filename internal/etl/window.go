package etl

import (
	"fmt"
	"time"

	"github.com/BartekS5/sql2bq/pkg/models"
)

// Epoch is the lower bound of the first incremental window of a table.
var Epoch = time.Unix(0, 0).UTC()

// ComputeWindow returns the extraction window of one run. Incremental runs
// cover (lastSuccess, runTime]; full runs are unbounded below.
func ComputeWindow(mode models.Mode, lastSuccess *time.Time, runTime time.Time) (models.ExtractionWindow, error) {
	if mode != models.ModeIncremental {
		return models.ExtractionWindow{End: runTime}, nil
	}
	start := Epoch
	if lastSuccess != nil {
		start = *lastSuccess
	}
	if start.After(runTime) {
		return models.ExtractionWindow{}, fmt.Errorf("invalid extraction window: last success %s is after run time %s",
			start.Format(time.RFC3339), runTime.Format(time.RFC3339))
	}
	return models.ExtractionWindow{Start: &start, End: runTime}, nil
}
