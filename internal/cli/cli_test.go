package cli

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/sql2bq/internal/config"
	"github.com/BartekS5/sql2bq/internal/state"
	"github.com/BartekS5/sql2bq/pkg/database"
	"github.com/BartekS5/sql2bq/pkg/models"
)

type fixture struct {
	home      string
	source    string
	warehouse string
	creds     string
	tables    string
}

func newFixture(t *testing.T, tables ...models.TableSpec) fixture {
	t.Helper()
	for _, key := range []string{
		"ETL_HOME", "CREDENTIALS_PATH", "TABLES_PATH", "DUMPS_DIR", "LOGS_DIR", "STATE_URI", "DUMP_RETENTION", "LOG_PREFIX",
		"DB_DRIVER", "DB_HOST", "DB_USR", "DB_NAME", "WAREHOUSE", "WAREHOUSE_PATH",
	} {
		t.Setenv(key, "")
	}

	home := t.TempDir()
	f := fixture{
		home:      home,
		source:    filepath.Join(home, "source.db"),
		warehouse: filepath.Join(home, "warehouse", "bq.db"),
		creds:     filepath.Join(home, "configs", "db_credentials.json"),
		tables:    filepath.Join(home, "configs", "MYSQL_to_BigQuery_tables.json"),
	}

	db, err := database.OpenSQL("sqlite", f.source)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, updated_at TEXT NOT NULL)`)
	require.NoError(t, err)
	for id := 1; id <= 3; id++ {
		_, err = db.Exec(`INSERT INTO users VALUES (?, ?, ?)`, id, gofakeit.Name(), "2024-01-01 00:00:00")
		require.NoError(t, err)
	}

	writeJSON(t, f.creds, map[string]any{
		"DB_DRIVER":      "sqlite",
		"DB_NAME":        f.source,
		"WAREHOUSE":      "sqlite",
		"WAREHOUSE_PATH": f.warehouse,
	})
	writeJSON(t, f.tables, models.TableConfig{Tables: tables})
	return f
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func usersTable(mode models.Mode) models.TableSpec {
	return models.TableSpec{
		SourceTable:  "users",
		Mode:         mode,
		WindowColumn: "updated_at",
		Columns: []models.ColumnSpec{
			{Source: "id", Type: "INTEGER", Required: true},
			{Source: "name", Type: "STRING"},
			{Source: "updated_at", Type: "TIMESTAMP"},
		},
	}
}

func (f fixture) exec(args ...string) (string, error) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--home", f.home))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (f fixture) warehouseRows(t *testing.T, table string) int {
	t.Helper()
	db, err := sql.Open("sqlite", f.warehouse)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %q`, table)).Scan(&n))
	return n
}

func TestRunSyncsAndRecordsState(t *testing.T) {
	f := newFixture(t, usersTable(models.ModeIncremental))

	out, err := f.exec("run")
	require.NoError(t, err)
	assert.Contains(t, out, "1 table(s) succeeded, 0 failed")
	assert.Equal(t, 3, f.warehouseRows(t, "users"))

	store := state.NewFileStore(filepath.Join(f.home, "state", "run_state.json"))
	st, err := store.Load(context.Background())
	require.NoError(t, err)
	first := st.LastSuccess("users")
	require.NotNil(t, first)
	assert.EqualValues(t, 3, st.Tables["users"].Rows)

	// Nothing changed since the first run: the daily run appends nothing.
	out, err = f.exec("--daily")
	require.NoError(t, err)
	assert.Contains(t, out, "incremental")
	assert.Equal(t, 3, f.warehouseRows(t, "users"))

	st, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, st.LastSuccess("users").Before(*first))

	matches, err := filepath.Glob(filepath.Join(f.home, "logs", "MYSQL_to_BQ_*.log"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRunReportsFailedTable(t *testing.T) {
	ghost := usersTable(models.ModeFull)
	ghost.SourceTable = "ghost"
	f := newFixture(t, usersTable(models.ModeFull), ghost)

	out, err := f.exec("run")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTablesFailed)
	assert.Equal(t, ExitTableFailed, ExitCode(err))
	assert.Contains(t, out, "FAILED at EXTRACTING")
	assert.Contains(t, out, "1 table(s) succeeded, 1 failed")
	assert.Equal(t, 3, f.warehouseRows(t, "users"))

	st, err := state.NewFileStore(filepath.Join(f.home, "state", "run_state.json")).Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, st.LastSuccess("users"))
	assert.Nil(t, st.LastSuccess("ghost"))
}

func TestConfigErrorsExitWithTwo(t *testing.T) {
	f := newFixture(t, usersTable(models.ModeFull))

	_, err := f.exec("run", "--only", "orders")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfig)
	assert.Equal(t, ExitConfig, ExitCode(err))

	require.NoError(t, os.Remove(f.tables))
	_, err = f.exec("run")
	assert.Equal(t, ExitConfig, ExitCode(err))

	_, err = os.Stat(f.warehouse)
	assert.True(t, errors.Is(err, os.ErrNotExist), "no table may be touched")
}

func TestConfigErrorStillSweepsOldDumps(t *testing.T) {
	f := newFixture(t, usersTable(models.ModeFull))
	dumps := filepath.Join(f.home, "dumps")
	require.NoError(t, os.MkdirAll(dumps, 0o755))
	old := filepath.Join(dumps, "users_20240101T000000Z.load.json")
	require.NoError(t, os.WriteFile(old, []byte("{}\n"), 0o644))
	aged := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, aged, aged))

	require.NoError(t, os.Remove(f.tables))
	_, err := f.exec("run")
	assert.Equal(t, ExitConfig, ExitCode(err))
	assert.NoFileExists(t, old)
}

func TestTablesAndCleanupCommands(t *testing.T) {
	missing := usersTable(models.ModeFull)
	missing.SourceTable = "orders"
	f := newFixture(t, usersTable(models.ModeIncremental), missing)

	out, err := f.exec("tables")
	require.NoError(t, err)
	assert.Contains(t, out, "DESTINATION")
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "MISSING")

	out, err = f.exec("cleanup", "--max-age", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 file(s)")
}

func TestSelectTables(t *testing.T) {
	all := []models.TableSpec{
		{SourceTable: "users", DestinationTable: "users"},
		{SourceTable: "orders", DestinationTable: "sales_orders"},
	}

	got, err := selectTables(all, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = selectTables(all, []string{" sales_orders "})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "orders", got[0].SourceTable)

	_, err = selectTables(all, []string{"users", "orders", "x"})
	assert.ErrorIs(t, err, config.ErrConfig)
	assert.ErrorContains(t, err, "orders, x")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitConfig, ExitCode(fmt.Errorf("wrap: %w", config.ErrConfig)))
	assert.Equal(t, ExitTableFailed, ExitCode(ErrTablesFailed))
	assert.Equal(t, ExitTableFailed, ExitCode(context.Canceled))
}
