package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/BartekS5/sql2bq/pkg/models"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps one row per destination table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the state database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite state: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS run_state (
		table_name   TEXT PRIMARY KEY,
		last_success TEXT NOT NULL,
		last_run_id  TEXT NOT NULL DEFAULT '',
		row_count    INTEGER NOT NULL DEFAULT 0,
		updated_at   TEXT NOT NULL
	)`)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context) (models.RunState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_name, last_success, last_run_id, row_count FROM run_state`)
	if err != nil {
		return models.RunState{}, fmt.Errorf("query run state: %w", err)
	}
	defer rows.Close()

	st := models.NewRunState()
	for rows.Next() {
		var (
			name, lastSuccess, runID string
			n                        int64
		)
		if err := rows.Scan(&name, &lastSuccess, &runID, &n); err != nil {
			return models.RunState{}, fmt.Errorf("scan run state: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, lastSuccess)
		if err != nil {
			return models.RunState{}, fmt.Errorf("run state for %s: %w", name, err)
		}
		st.Tables[name] = models.TableState{LastSuccess: ts, LastRunID: runID, Rows: n}
	}
	if err := rows.Err(); err != nil {
		return models.RunState{}, fmt.Errorf("iterate run state: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) Save(ctx context.Context, st models.RunState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for name, ts := range st.Tables {
		_, err := tx.ExecContext(ctx, `INSERT INTO run_state (table_name, last_success, last_run_id, row_count, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(table_name) DO UPDATE SET
				last_success = excluded.last_success,
				last_run_id  = excluded.last_run_id,
				row_count    = excluded.row_count,
				updated_at   = excluded.updated_at`,
			name, ts.LastSuccess.UTC().Format(time.RFC3339Nano), ts.LastRunID, ts.Rows, now)
		if err != nil {
			return fmt.Errorf("save run state for %s: %w", name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
