package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/sql2bq/pkg/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ETL_HOME", home)
	t.Setenv("DUMP_RETENTION", "")
	t.Setenv("STATE_URI", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.Resolve()

	assert.Equal(t, filepath.Join(home, "configs", "db_credentials.json"), cfg.CredentialsPath)
	assert.Equal(t, filepath.Join(home, "configs", "MYSQL_to_BigQuery_tables.json"), cfg.TablesPath)
	assert.Equal(t, filepath.Join(home, "dumps"), cfg.DumpsDir)
	assert.Equal(t, filepath.Join(home, "state", "run_state.json"), cfg.StateURI)
	assert.Equal(t, 7*24*time.Hour, cfg.Retention)

	require.NoError(t, cfg.EnsureDirs())
	assert.DirExists(t, cfg.DumpsDir)
	assert.DirExists(t, cfg.LogsDir)
}

func TestLoadConfigRetention(t *testing.T) {
	t.Setenv("DUMP_RETENTION", "48h")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, cfg.Retention)

	t.Setenv("DUMP_RETENTION", "soon")
	_, err = LoadConfig()
	assert.ErrorIs(t, err, ErrConfig)

	t.Setenv("DUMP_RETENTION", "-1h")
	_, err = LoadConfig()
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLoadCredentials(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "creds.json", `{
		"DB_HOST": "db.internal",
		"DB_PORT": 3306,
		"DB_USR": "etl",
		"DB_PWD": "secret",
		"DB_NAME": "shop",
		"BQ_PROJECT_ID": "proj",
		"BQ_DATASET_ID": "raw"
	}`)
	t.Setenv("DB_PWD", "from-env")

	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "mysql", creds.DBDriver)
	assert.Equal(t, "bigquery", creds.Warehouse)
	assert.Equal(t, "db.internal", creds.DBHost)
	assert.Equal(t, 3306, creds.DBPort)
	assert.Equal(t, "from-env", creds.DBPassword)
	assert.Equal(t, "proj", creds.ProjectID)

	src := creds.Source()
	assert.Equal(t, "mysql", src.Driver)
	assert.Equal(t, "shop", src.Database)
}

func TestLoadCredentialsReportsAllMissingFields(t *testing.T) {
	path := writeFile(t, t.TempDir(), "creds.json", `{"DB_PORT": 3306}`)

	_, err := LoadCredentials(path)
	require.ErrorIs(t, err, ErrConfig)
	for _, field := range []string{"DB_HOST", "DB_USR", "DB_NAME", "BQ_PROJECT_ID", "BQ_DATASET_ID"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestLoadCredentialsFileErrors(t *testing.T) {
	_, err := LoadCredentials(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrConfig)

	path := writeFile(t, t.TempDir(), "creds.json", `{"DB_HOST": `)
	_, err = LoadCredentials(path)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLoadCredentialsLocalWarehouse(t *testing.T) {
	path := writeFile(t, t.TempDir(), "creds.json", `{
		"DB_DRIVER": "sqlite",
		"DB_NAME": "/tmp/src.db",
		"WAREHOUSE": "sqlite"
	}`)

	_, err := LoadCredentials(path)
	require.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "WAREHOUSE_PATH")

	t.Setenv("WAREHOUSE_PATH", "/tmp/wh.db")
	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/wh.db", creds.WarehousePath)
}

func TestLoadTables(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tables.json", `{"tables": [
		{"source_table": "users", "columns": [{"source": "id", "type": "INTEGER"}]},
		{"source_table": "orders", "destination_table": "fact_orders", "mode": "incremental",
		 "window_column": "updated_at", "partition_field": "created",
		 "columns": [{"source": "id", "type": "INT64"}, {"source": "created_at", "name": "created", "type": "TIMESTAMP"}]}
	]}`)

	cfg, err := LoadTables(path)
	require.NoError(t, err)
	require.Len(t, cfg.Tables, 2)
	assert.Equal(t, "users", cfg.Tables[0].DestinationTable)
	assert.Equal(t, models.ModeFull, cfg.Tables[0].Mode)
	assert.Equal(t, "fact_orders", cfg.Tables[1].DestinationTable)
	assert.Equal(t, models.ModeIncremental, cfg.Tables[1].Mode)
}

func TestValidateTablesAggregates(t *testing.T) {
	cfg := &models.TableConfig{Tables: []models.TableSpec{
		{SourceTable: "a", Mode: models.ModeIncremental, Columns: []models.ColumnSpec{{Source: "id", Type: "INTEGER"}}},
		{SourceTable: "b", Mode: "sometimes", Columns: []models.ColumnSpec{{Source: "id", Type: "INTEGER"}, {Source: "id", Type: "STRING"}}},
		{SourceTable: "c", Mode: models.ModeFull, PartitionField: "name", Columns: []models.ColumnSpec{{Source: "name", Type: "STRING"}}},
		{SourceTable: "d", Mode: models.ModeFull},
	}}
	ApplyTableDefaults(cfg)

	err := ValidateTables(cfg)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "window_column is required")
	assert.Contains(t, msg, `mode must be`)
	assert.Contains(t, msg, `column "id" mapped twice`)
	assert.Contains(t, msg, `partition_field "name" must be`)
	assert.Contains(t, msg, "columns must not be empty")
}

func TestValidateTablesPartitionFieldByEitherName(t *testing.T) {
	columns := []models.ColumnSpec{
		{Source: "id", Type: "INTEGER"},
		{Source: "created_at", Name: "created", Type: "TIMESTAMP"},
	}
	for _, field := range []string{"created", "created_at"} {
		cfg := &models.TableConfig{Tables: []models.TableSpec{
			{SourceTable: "orders", PartitionField: field, Columns: columns},
		}}
		ApplyTableDefaults(cfg)
		assert.NoError(t, ValidateTables(cfg), field)
	}

	cfg := &models.TableConfig{Tables: []models.TableSpec{
		{SourceTable: "orders", PartitionField: "shipped", Columns: columns},
	}}
	ApplyTableDefaults(cfg)
	assert.ErrorContains(t, ValidateTables(cfg), `partition_field "shipped" is not a configured column`)
}

func TestValidateTablesRejectsClashingFileNames(t *testing.T) {
	columns := []models.ColumnSpec{{Source: "id", Type: "INTEGER"}}
	cfg := &models.TableConfig{Tables: []models.TableSpec{
		{SourceTable: "a", DestinationTable: "ds users", Columns: columns},
		{SourceTable: "b", DestinationTable: "ds_users", Columns: columns},
		{SourceTable: "c", DestinationTable: "DS_Users", Columns: columns},
		{SourceTable: "d", DestinationTable: "ds.users", Columns: columns},
	}}
	ApplyTableDefaults(cfg)

	err := ValidateTables(cfg)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `destination_table "ds_users" clashes with tables[0] (ds users)`)
	assert.Contains(t, msg, `destination_table "DS_Users" clashes with tables[0] (ds users)`)
	assert.NotContains(t, msg, `"ds.users"`)
}

func TestValidateTablesLeavesTypeTagsToTransformer(t *testing.T) {
	cfg := &models.TableConfig{Tables: []models.TableSpec{
		{SourceTable: "geo", Columns: []models.ColumnSpec{{Source: "shape", Type: "GEOGRAPHY"}}},
	}}
	ApplyTableDefaults(cfg)
	assert.NoError(t, ValidateTables(cfg))
}

func TestLoadTablesDuplicateDestination(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tables.json", `{"tables": [
		{"source_table": "users", "columns": [{"source": "id", "type": "INTEGER"}]},
		{"source_table": "users_v2", "destination_table": "users", "columns": [{"source": "id", "type": "INTEGER"}]}
	]}`)

	_, err := LoadTables(path)
	require.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), `destination_table "users" already used`)
}
