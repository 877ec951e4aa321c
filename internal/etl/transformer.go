package etl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/BartekS5/sql2bq/pkg/logger"
	"github.com/BartekS5/sql2bq/pkg/models"
	"github.com/BartekS5/sql2bq/pkg/utils"
)

type mappedColumn struct {
	source string
	field  models.Field
}

// Transformer maps dumped source rows onto the destination schema of one table.
type Transformer struct {
	Table     string
	columns   []mappedColumn
	bySource  map[string]int
	validator *Validator
	warned    map[string]bool
}

// NewTransformer resolves every configured type tag up front, so a table
// with an unloadable column fails before any row is converted.
func NewTransformer(spec models.TableSpec) (*Transformer, error) {
	t := &Transformer{
		Table:    spec.SourceTable,
		bySource: make(map[string]int, len(spec.Columns)),
		warned:   map[string]bool{},
	}
	for _, c := range spec.Columns {
		ft, err := models.ParseFieldType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: column %s: %w", ErrSchemaMismatch, c.Source, err)
		}
		t.bySource[c.Source] = len(t.columns)
		t.columns = append(t.columns, mappedColumn{
			source: c.Source,
			field:  models.Field{Name: c.DestName(), Type: ft, Required: c.Required},
		})
	}
	t.validator = NewValidator(t.Schema())
	return t, nil
}

// Schema returns the destination fields in configured order.
func (t *Transformer) Schema() []models.Field {
	fields := make([]models.Field, len(t.columns))
	for i, c := range t.columns {
		fields[i] = c.field
	}
	return fields
}

// TransformRecord converts one row. Columns without a mapping are dropped,
// NULLs stay nil.
func (t *Transformer) TransformRecord(rec models.RowRecord) (map[string]any, error) {
	out := make(map[string]any, len(t.columns))
	for _, c := range t.columns {
		out[c.field.Name] = nil
	}

	for i, col := range rec.Columns {
		idx, ok := t.bySource[col]
		if !ok {
			if !t.warned[col] {
				t.warned[col] = true
				logger.Warnf("Column %s of table %s is not in the column map, dropping it", col, t.Table)
			}
			continue
		}
		c := t.columns[idx]
		val, err := utils.ConvertToBigQuery(rec.Values[i], c.field.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: column %s as %s: %w", ErrSchemaMismatch, col, c.field.Type, err)
		}
		out[c.field.Name] = val
	}

	if err := t.validator.ValidateRow(out); err != nil {
		return nil, err
	}
	return out, nil
}

// TransformFile converts a dump into a newline-delimited JSON load file and
// returns the number of rows written. On error no load file is left behind.
func (t *Transformer) TransformFile(dumpPath, loadPath string) (int, error) {
	in, err := OpenDump(dumpPath)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := createAtomic(loadPath)
	if err != nil {
		return 0, fmt.Errorf("create load file: %w", err)
	}
	enc := json.NewEncoder(out.w)

	rows := 0
	for {
		rec, err := in.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			out.Abort()
			return 0, err
		}
		doc, err := t.TransformRecord(rec)
		if err != nil {
			out.Abort()
			return 0, fmt.Errorf("row %d: %w", rows+1, err)
		}
		if err := enc.Encode(doc); err != nil {
			out.Abort()
			return 0, fmt.Errorf("write load row %d: %w", rows+1, err)
		}
		rows++
	}
	if err := out.Commit(); err != nil {
		return 0, fmt.Errorf("commit load file: %w", err)
	}
	return rows, nil
}
