package warehouse

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"

	"github.com/BartekS5/sql2bq/pkg/logger"
	"github.com/BartekS5/sql2bq/pkg/models"
	"github.com/BartekS5/sql2bq/pkg/utils"
)

var _ Warehouse = (*SQLWarehouse)(nil)

// SQLWarehouse is a local destination backed by an embedded database. Full
// loads go into a staging table that replaces the target in one transaction.
type SQLWarehouse struct {
	db    *sql.DB
	types map[models.FieldType]string
}

var sqliteTypes = map[models.FieldType]string{
	models.TypeInteger:    "INTEGER",
	models.TypeFloat:      "REAL",
	models.TypeNumeric:    "TEXT",
	models.TypeBigNumeric: "TEXT",
	models.TypeBoolean:    "INTEGER",
	models.TypeString:     "TEXT",
	models.TypeBytes:      "TEXT",
	models.TypeDate:       "TEXT",
	models.TypeDateTime:   "TEXT",
	models.TypeTime:       "TEXT",
	models.TypeTimestamp:  "TEXT",
	models.TypeJSON:       "TEXT",
}

var duckdbTypes = map[models.FieldType]string{
	models.TypeInteger:    "BIGINT",
	models.TypeFloat:      "DOUBLE",
	models.TypeNumeric:    "VARCHAR",
	models.TypeBigNumeric: "VARCHAR",
	models.TypeBoolean:    "BOOLEAN",
	models.TypeString:     "VARCHAR",
	models.TypeBytes:      "VARCHAR",
	models.TypeDate:       "DATE",
	models.TypeDateTime:   "TIMESTAMP",
	models.TypeTime:       "TIME",
	models.TypeTimestamp:  "TIMESTAMPTZ",
	models.TypeJSON:       "VARCHAR",
}

// OpenSQLite opens (or creates) a SQLite warehouse file.
func OpenSQLite(path string) (*SQLWarehouse, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create warehouse directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite warehouse: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLWarehouse{db: db, types: sqliteTypes}, nil
}

// OpenDuckDB opens (or creates) a DuckDB warehouse file.
func OpenDuckDB(path string) (*SQLWarehouse, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create warehouse directory: %w", err)
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb warehouse: %w", err)
	}
	return &SQLWarehouse{db: db, types: duckdbTypes}, nil
}

// DB exposes the underlying handle for inspection.
func (w *SQLWarehouse) DB() *sql.DB {
	return w.db
}

func (w *SQLWarehouse) Close() error {
	return w.db.Close()
}

// Load reads the newline-delimited JSON file into req.Table.
func (w *SQLWarehouse) Load(ctx context.Context, req LoadRequest) (LoadResult, error) {
	if len(req.Schema) == 0 {
		return LoadResult{}, fmt.Errorf("load into %s: empty schema", req.Table)
	}
	f, err := os.Open(req.Path)
	if err != nil {
		return LoadResult{}, fmt.Errorf("open load file: %w", err)
	}
	defer f.Close()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return LoadResult{}, fmt.Errorf("begin load into %s: %w", req.Table, err)
	}
	defer tx.Rollback()

	target := quoteIdent(req.Table)
	into := target
	if req.Disposition == Truncate {
		staging := quoteIdent(req.Table + "__staging")
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
			return LoadResult{}, fmt.Errorf("drop staging table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, w.createTable(staging, req.Schema, false)); err != nil {
			return LoadResult{}, fmt.Errorf("create staging table: %w", err)
		}
		into = staging
	} else if _, err := tx.ExecContext(ctx, w.createTable(target, req.Schema, true)); err != nil {
		return LoadResult{}, fmt.Errorf("create table %s: %w", req.Table, err)
	}

	loaded, err := w.insertRows(ctx, tx, into, req.Schema, f)
	if err != nil {
		return LoadResult{}, fmt.Errorf("load into %s: %w", req.Table, err)
	}

	if req.Disposition == Truncate {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+target); err != nil {
			return LoadResult{}, fmt.Errorf("drop %s: %w", req.Table, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", into, target)); err != nil {
			return LoadResult{}, fmt.Errorf("swap staging into %s: %w", req.Table, err)
		}
	}

	var total int64
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+target).Scan(&total); err != nil {
		return LoadResult{}, fmt.Errorf("count %s: %w", req.Table, err)
	}
	if err := tx.Commit(); err != nil {
		return LoadResult{}, fmt.Errorf("commit load into %s: %w", req.Table, err)
	}

	logger.Infof("Total rows in table %s after load: %d", req.Table, total)
	return LoadResult{RowsLoaded: loaded, TotalRows: total}, nil
}

func (w *SQLWarehouse) createTable(name string, schema []models.Field, ifNotExists bool) string {
	cols := make([]string, 0, len(schema))
	for _, f := range schema {
		col := quoteIdent(f.Name) + " " + w.types[f.Type]
		if f.Required {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	clause := "CREATE TABLE "
	if ifNotExists {
		clause += "IF NOT EXISTS "
	}
	return clause + name + " (" + strings.Join(cols, ", ") + ")"
}

func (w *SQLWarehouse) insertRows(ctx context.Context, tx *sql.Tx, table string, schema []models.Field, r io.Reader) (int64, error) {
	names := make([]string, len(schema))
	marks := make([]string, len(schema))
	for i, f := range schema {
		names[i] = quoteIdent(f.Name)
		marks[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	dec := json.NewDecoder(bufio.NewReader(r))
	dec.UseNumber()
	var n int64
	for {
		var row map[string]any
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return n, fmt.Errorf("row %d: malformed JSON: %w", n+1, err)
		}
		args := make([]any, len(schema))
		for i, f := range schema {
			v, err := localValue(row[f.Name], f.Type)
			if err != nil {
				return n, fmt.Errorf("row %d field %s: %w", n+1, f.Name, err)
			}
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return n, fmt.Errorf("row %d rejected: %w", n+1, err)
		}
		n++
	}
	return n, nil
}

func localValue(v any, ft models.FieldType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch ft {
	case models.TypeInteger:
		return utils.ConvertToInt64(v)
	case models.TypeFloat:
		return utils.ConvertToFloat64(v)
	case models.TypeBoolean:
		return utils.ConvertToBool(v)
	case models.TypeJSON:
		if s, ok := v.(string); ok {
			return s, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return utils.ConvertToString(v), nil
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
