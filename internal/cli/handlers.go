package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gosuri/uiprogress"

	"github.com/BartekS5/sql2bq/internal/config"
	"github.com/BartekS5/sql2bq/internal/etl"
	"github.com/BartekS5/sql2bq/internal/janitor"
	"github.com/BartekS5/sql2bq/internal/state"
	"github.com/BartekS5/sql2bq/internal/warehouse"
	"github.com/BartekS5/sql2bq/pkg/database"
	"github.com/BartekS5/sql2bq/pkg/logger"
	"github.com/BartekS5/sql2bq/pkg/models"
)

// ErrTablesFailed is returned when a run finished with at least one table
// not DONE.
var ErrTablesFailed = errors.New("one or more tables failed")

type session struct {
	cfg    *config.Config
	creds  *config.Credentials
	tables []models.TableSpec
}

// loadSettings resolves runtime settings and starts the daily log file.
func loadSettings(opts *Options) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if opts.Home != "" {
		cfg.Home = opts.Home
	}
	if opts.CredentialsPath != "" {
		cfg.CredentialsPath = opts.CredentialsPath
	}
	if opts.TablesPath != "" {
		cfg.TablesPath = opts.TablesPath
	}
	cfg.Resolve()
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	logFile := logger.DailyFileName(cfg.LogsDir, cfg.LogPrefix, time.Now())
	if err := logger.InitLogger(logFile, logger.ParseLevel(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("%w: open log file: %w", config.ErrConfig, err)
	}
	return cfg, nil
}

// bootstrap loads everything a run needs. Any problem here is a
// configuration error and no table is touched.
func bootstrap(opts *Options) (*session, error) {
	cfg, err := loadSettings(opts)
	if err != nil {
		return nil, err
	}
	s, err := newSession(cfg, opts)
	if err != nil {
		logger.Close()
		return nil, err
	}
	return s, nil
}

func newSession(cfg *config.Config, opts *Options) (*session, error) {
	creds, err := config.LoadCredentials(cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}
	tc, err := config.LoadTables(cfg.TablesPath)
	if err != nil {
		return nil, err
	}
	tables, err := selectTables(tc.Tables, opts.Only)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, creds: creds, tables: tables}, nil
}

func selectTables(all []models.TableSpec, only []string) ([]models.TableSpec, error) {
	if len(only) == 0 {
		return all, nil
	}
	byName := make(map[string]models.TableSpec, len(all))
	for _, t := range all {
		byName[t.DestinationTable] = t
	}
	var (
		selected []models.TableSpec
		unknown  []string
	)
	for _, name := range only {
		name = strings.TrimSpace(name)
		t, ok := byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		selected = append(selected, t)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown table(s) in --only: %s", config.ErrConfig, strings.Join(unknown, ", "))
	}
	return selected, nil
}

func (s *session) openSource() (*sql.DB, database.Dialect, error) {
	params := s.creds.Source()
	dialect, err := database.GetDialect(params.Driver)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", config.ErrConfig, err)
	}
	dsn, err := database.BuildDSN(params)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", config.ErrConfig, err)
	}
	db, err := database.OpenSQL(dialect.DriverName(), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open source database: %w", err)
	}
	return db, dialect, nil
}

func (s *session) warehouseOptions() warehouse.Options {
	return warehouse.Options{
		Kind:            s.creds.Warehouse,
		ProjectID:       s.creds.ProjectID,
		Dataset:         s.creds.DatasetID,
		Location:        s.creds.Location,
		CredentialsFile: s.creds.GoogleCredentials,
		GCSBucket:       s.creds.GCSBucket,
		GCSPrefix:       s.creds.GCSPrefix,
		Path:            s.creds.WarehousePath,
	}
}

func sweep(cfg *config.Config) {
	removed, err := janitor.Sweep(cfg.DumpsDir, cfg.Retention, time.Now())
	if err != nil {
		logger.Errorf("Cleanup of %s: %v", cfg.DumpsDir, err)
	}
	logger.Infof("Cleanup removed %d file(s) older than %s", len(removed), cfg.Retention)
}

// runSync performs one invocation: every selected table is synced, the new
// run state is saved and old dump files are swept. The sweep also runs when
// credentials or tables fail to load.
func runSync(ctx context.Context, out io.Writer, opts *Options) error {
	cfg, err := loadSettings(opts)
	if err != nil {
		return err
	}
	defer logger.Close()
	defer sweep(cfg)

	s, err := newSession(cfg, opts)
	if err != nil {
		logger.Errorf("Run aborted: %v", err)
		return err
	}

	runTime := time.Now().UTC().Truncate(time.Second)
	runID := uuid.NewString()
	logger.Infof("Run %s: %d table(s), daily=%v", runID, len(s.tables), opts.Daily)

	db, dialect, err := s.openSource()
	if err != nil {
		return err
	}
	defer db.Close()

	wh, err := warehouse.Open(ctx, s.warehouseOptions())
	if err != nil {
		return fmt.Errorf("open warehouse: %w", err)
	}
	defer wh.Close()

	store, err := state.Open(ctx, s.cfg.StateURI)
	if err != nil {
		return fmt.Errorf("open run state: %w", err)
	}
	defer store.Close()

	prev, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load run state: %w", err)
	}

	orch := &etl.Orchestrator{
		Extractor: &etl.SQLExtractor{DB: db, Dialect: dialect},
		Loader:    &etl.WarehouseLoader{Warehouse: wh},
		DumpsDir:  s.cfg.DumpsDir,
		RunID:     runID,
	}
	if opts.Progress {
		stop := attachProgress(orch, s.tables)
		defer stop()
	}

	next, report := orch.Run(ctx, s.tables, prev, runTime, opts.Daily)

	// Tables that finished before a cancellation keep their progress.
	if err := store.Save(context.WithoutCancel(ctx), next); err != nil {
		return fmt.Errorf("save run state: %w", err)
	}

	printReport(out, report)
	if !report.OK() {
		return fmt.Errorf("%w: %w", ErrTablesFailed, report.Err())
	}
	return nil
}

func attachProgress(orch *etl.Orchestrator, tables []models.TableSpec) func() {
	var current atomic.Value
	current.Store("")
	if len(tables) > 0 {
		current.Store(tables[0].DestinationTable)
	}

	uiprogress.Start()
	bar := uiprogress.AddBar(len(tables)).AppendCompleted().PrependElapsed()
	bar.PrependFunc(func(b *uiprogress.Bar) string {
		return fmt.Sprintf("%-24s", current.Load())
	})
	done := 0
	orch.OnTableDone = func(res etl.TableResult) {
		done++
		if done < len(tables) {
			current.Store(tables[done].DestinationTable)
		}
		bar.Incr()
	}
	return uiprogress.Stop
}

func printReport(out io.Writer, report etl.Report) {
	fmt.Fprintf(out, "\nRun %s (%s)\n", report.RunID, report.RunTime.Format(time.RFC3339))
	for i, r := range report.Results {
		status := string(r.Stage)
		if r.Stage == models.StageFailed {
			status = fmt.Sprintf("FAILED at %s", r.FailedAt)
		}
		fmt.Fprintf(out, "[%02d] %-30s %-11s %-22s rows=%d\n", i+1, r.Table, r.Mode, status, r.Rows)
		if r.Err != nil {
			fmt.Fprintf(out, "     error: %v\n", r.Err)
		}
	}
	failed := len(report.Failed())
	fmt.Fprintf(out, "%d table(s) succeeded, %d failed\n", len(report.Results)-failed, failed)
}
