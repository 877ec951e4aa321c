package etl

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/sql2bq/internal/warehouse"
	"github.com/BartekS5/sql2bq/pkg/database"
	"github.com/BartekS5/sql2bq/pkg/models"
)

var (
	t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = t0.Add(24 * time.Hour)
	t2 = t1.Add(24 * time.Hour)
)

const sqliteTime = "2006-01-02 15:04:05"

type user struct {
	ID        int64
	Name      sql.NullString
	Email     sql.NullString
	Score     float64
	Active    bool
	UpdatedAt time.Time
}

func newSource(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenSQL("sqlite", filepath.Join(t.TempDir(), "source.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE users (
		id            INTEGER PRIMARY KEY,
		name          TEXT,
		email         TEXT,
		score         REAL,
		active        INTEGER,
		updated_at    TEXT NOT NULL,
		internal_note TEXT
	)`)
	require.NoError(t, err)
	return db
}

func fakeUser(id int64, updated time.Time) user {
	return user{
		ID:        id,
		Name:      sql.NullString{String: gofakeit.Name(), Valid: true},
		Email:     sql.NullString{String: gofakeit.Email(), Valid: true},
		Score:     gofakeit.Float64Range(0, 100),
		Active:    gofakeit.Bool(),
		UpdatedAt: updated,
	}
}

func fakeUsers(from, n int64, updated time.Time) []user {
	users := make([]user, 0, n)
	for id := from; id < from+n; id++ {
		users = append(users, fakeUser(id, updated))
	}
	return users
}

func insertUsers(t *testing.T, db *sql.DB, users ...user) {
	t.Helper()
	for _, u := range users {
		_, err := db.Exec(`INSERT INTO users (id, name, email, score, active, updated_at, internal_note)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			u.ID, u.Name, u.Email, u.Score, u.Active, u.UpdatedAt.UTC().Format(sqliteTime), gofakeit.Sentence(4))
		require.NoError(t, err)
	}
}

func usersSpec(mode models.Mode) models.TableSpec {
	return models.TableSpec{
		SourceTable:      "users",
		DestinationTable: "users",
		Mode:             mode,
		WindowColumn:     "updated_at",
		Columns: []models.ColumnSpec{
			{Source: "id", Type: "INTEGER", Required: true},
			{Source: "name", Type: "STRING"},
			{Source: "email", Type: "STRING"},
			{Source: "score", Type: "FLOAT64"},
			{Source: "active", Type: "BOOL"},
			{Source: "updated_at", Type: "TIMESTAMP"},
		},
	}
}

func newWarehouse(t *testing.T) *warehouse.SQLWarehouse {
	t.Helper()
	wh, err := warehouse.OpenSQLite(filepath.Join(t.TempDir(), "warehouse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { wh.Close() })
	return wh
}

func readUsers(t *testing.T, wh *warehouse.SQLWarehouse) []user {
	t.Helper()
	rows, err := wh.DB().Query(`SELECT id, name, email, score, active, updated_at FROM "users" ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var users []user
	for rows.Next() {
		var (
			u       user
			active  int64
			updated string
		)
		require.NoError(t, rows.Scan(&u.ID, &u.Name, &u.Email, &u.Score, &active, &updated))
		u.Active = active != 0
		u.UpdatedAt, err = time.Parse(time.RFC3339, updated)
		require.NoError(t, err)
		users = append(users, u)
	}
	require.NoError(t, rows.Err())
	return users
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

// flakyWarehouse rejects the next fail loads, then delegates.
type flakyWarehouse struct {
	warehouse.Warehouse
	fail     int
	requests []warehouse.LoadRequest
}

func (f *flakyWarehouse) Load(ctx context.Context, req warehouse.LoadRequest) (warehouse.LoadResult, error) {
	f.requests = append(f.requests, req)
	if f.fail > 0 {
		f.fail--
		return warehouse.LoadResult{}, errors.New("quota exceeded")
	}
	if f.Warehouse == nil {
		return warehouse.LoadResult{}, nil
	}
	return f.Warehouse.Load(ctx, req)
}

func newOrchestrator(t *testing.T, src *sql.DB, wh warehouse.Warehouse) *Orchestrator {
	t.Helper()
	return &Orchestrator{
		Extractor: &SQLExtractor{DB: src, Dialect: database.SQLite{}},
		Loader:    &WarehouseLoader{Warehouse: wh},
		DumpsDir:  t.TempDir(),
		RunID:     "run-" + gofakeit.UUID(),
	}
}

// dumpIDs reads the id column back out of a dump file.
func dumpIDs(t *testing.T, path string) []int64 {
	t.Helper()
	r, err := OpenDump(path)
	require.NoError(t, err)
	defer r.Close()

	var ids []int64
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		v, ok := rec.Get("id")
		require.True(t, ok)
		n, err := v.(json.Number).Int64()
		require.NoError(t, err)
		ids = append(ids, n)
	}
	return ids
}

func userIDs(users []user) []int64 {
	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}
