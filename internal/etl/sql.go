package etl

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BartekS5/sql2bq/pkg/database"
	"github.com/BartekS5/sql2bq/pkg/models"
	"github.com/BartekS5/sql2bq/pkg/utils"
)

var _ Extractor = (*SQLExtractor)(nil)

// pingTimeout bounds the reachability check before each extraction.
var pingTimeout = 5 * time.Second

// SQLExtractor reads a table from the source database into a dump file.
type SQLExtractor struct {
	DB      *sql.DB
	Dialect database.Dialect
}

// BuildQuery returns the SELECT for a table and window, plus its arguments.
func (s *SQLExtractor) BuildQuery(spec models.TableSpec, window models.ExtractionWindow) (string, []any) {
	query := "SELECT * FROM " + s.Dialect.QuoteIdent(spec.SourceTable)
	if !window.Bounded() || spec.WindowColumn == "" {
		return query, nil
	}
	col := s.Dialect.QuoteIdent(spec.WindowColumn)
	query += fmt.Sprintf(" WHERE %s > %s AND %s <= %s",
		col, s.Dialect.Placeholder(1), col, s.Dialect.Placeholder(2))
	return query, []any{s.Dialect.BindTime(*window.Start), s.Dialect.BindTime(window.End)}
}

// Extract runs the query and writes every row to dumpPath. The dump only
// appears at dumpPath once all rows were read successfully.
func (s *SQLExtractor) Extract(ctx context.Context, spec models.TableSpec, window models.ExtractionWindow, dumpPath string) (ExtractResult, error) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := s.DB.PingContext(pingCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ExtractResult{}, ctx.Err()
		}
		return ExtractResult{}, fmt.Errorf("%w: source unreachable: %w", ErrConnection, err)
	}

	query, args := s.BuildQuery(spec, window)
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return ExtractResult{}, classifySourceErr(fmt.Errorf("run %q: %w", query, err))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return ExtractResult{}, fmt.Errorf("%w: read columns: %w", ErrQuery, err)
	}
	if missing := missingColumns(spec, cols); len(missing) > 0 {
		return ExtractResult{}, fmt.Errorf("%w: configured columns not found in %s: %s",
			ErrQuery, spec.SourceTable, strings.Join(missing, ", "))
	}

	binary := binaryColumns(spec, cols)

	dump, err := CreateDump(dumpPath, cols)
	if err != nil {
		return ExtractResult{}, err
	}

	values := make([]any, len(cols))
	pointers := make([]any, len(cols))
	for i := range values {
		pointers[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			dump.Abort()
			return ExtractResult{}, fmt.Errorf("%w: scan row %d: %w", ErrQuery, dump.Rows()+1, err)
		}
		row := make([]any, len(values))
		for i, v := range values {
			if binary[i] {
				row[i] = binaryValue(v)
			} else {
				row[i] = normalizeValue(v)
			}
		}
		if err := dump.Write(row); err != nil {
			dump.Abort()
			return ExtractResult{}, err
		}
	}
	if err := rows.Err(); err != nil {
		dump.Abort()
		return ExtractResult{}, classifySourceErr(fmt.Errorf("iterate rows: %w", err))
	}
	if err := dump.Commit(); err != nil {
		return ExtractResult{}, err
	}

	return ExtractResult{Path: dumpPath, Columns: cols, Rows: dump.Rows()}, nil
}

// ListTables returns the base tables visible in the source schema.
func (s *SQLExtractor) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, s.Dialect.ListTablesQuery())
	if err != nil {
		return nil, classifySourceErr(fmt.Errorf("list tables: %w", err))
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scan table name: %w", ErrQuery, err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func missingColumns(spec models.TableSpec, cols []string) []string {
	present := make(map[string]bool, len(cols))
	for _, c := range cols {
		present[c] = true
	}
	var missing []string
	for _, c := range spec.Columns {
		if !present[c.Source] {
			missing = append(missing, c.Source)
		}
	}
	if spec.WindowColumn != "" && !present[spec.WindowColumn] {
		missing = append(missing, spec.WindowColumn)
	}
	return missing
}

// binaryColumns marks the result columns mapped to BYTES. Their values are
// dumped as []byte, which encoding/json writes as base64.
func binaryColumns(spec models.TableSpec, cols []string) []bool {
	bytesCols := map[string]bool{}
	for _, c := range spec.Columns {
		if ft, err := models.ParseFieldType(c.Type); err == nil && ft == models.TypeBytes {
			bytesCols[c.Source] = true
		}
	}
	binary := make([]bool, len(cols))
	for i, c := range cols {
		binary[i] = bytesCols[c]
	}
	return binary
}

func binaryValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return bytes.Clone(val)
	case string:
		return []byte(val)
	default:
		return []byte(utils.ConvertToString(normalizeValue(v)))
	}
}

// normalizeValue makes driver values JSON friendly without losing NULLs.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return val
	}
}

func classifySourceErr(err error) error {
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrQuery, err)
}
