package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/BartekS5/sql2bq/internal/config"
	"github.com/BartekS5/sql2bq/internal/etl"
	"github.com/BartekS5/sql2bq/internal/janitor"
	"github.com/BartekS5/sql2bq/internal/state"
	"github.com/BartekS5/sql2bq/internal/warehouse"
	"github.com/BartekS5/sql2bq/pkg/logger"
	"github.com/BartekS5/sql2bq/pkg/models"
)

// newLoadCmd re-submits a load file kept after a failed load.
func newLoadCmd(opts *Options) *cobra.Command {
	var (
		table      string
		file       string
		appendMode bool
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a retained load file into its destination table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := bootstrap(opts)
			if err != nil {
				return err
			}
			defer logger.Close()

			spec, err := findTable(s.tables, table)
			if err != nil {
				return err
			}
			transformer, err := etl.NewTransformer(spec)
			if err != nil {
				return err
			}
			rows, err := countRows(file)
			if err != nil {
				return fmt.Errorf("read load file: %w", err)
			}

			wh, err := warehouse.Open(cmd.Context(), s.warehouseOptions())
			if err != nil {
				return fmt.Errorf("open warehouse: %w", err)
			}
			defer wh.Close()

			mode := models.ModeFull
			if appendMode {
				mode = models.ModeIncremental
			}
			loader := &etl.WarehouseLoader{Warehouse: wh}
			res, err := loader.Load(cmd.Context(), spec, mode, etl.Batch{Path: file, Rows: rows, Schema: transformer.Schema()})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d rows into %s (%d total)\n", res.RowsLoaded, spec.DestinationTable, res.TotalRows)
			return nil
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "Destination table the file belongs to")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the load file")
	cmd.Flags().BoolVar(&appendMode, "append", false, "Append instead of replacing the table contents")
	cmd.MarkFlagRequired("table")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newCleanupCmd(opts *Options) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete dump and load files older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(opts)
			if err != nil {
				return err
			}
			defer logger.Close()

			if maxAge <= 0 {
				maxAge = cfg.Retention
			}
			removed, err := janitor.Sweep(cfg.DumpsDir, maxAge, time.Now())
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d file(s) from %s\n", len(removed), cfg.DumpsDir)
			return err
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Retention period (default $DUMP_RETENTION or 168h)")
	return cmd
}

// newTablesCmd prints the configured tables with their run state.
func newTablesCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List configured tables, their modes and last successful run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := bootstrap(opts)
			if err != nil {
				return err
			}
			defer logger.Close()
			ctx := cmd.Context()

			st := models.NewRunState()
			if store, err := state.Open(ctx, s.cfg.StateURI); err != nil {
				logger.Warnf("Run state unavailable: %v", err)
			} else {
				defer store.Close()
				if st, err = store.Load(ctx); err != nil {
					return fmt.Errorf("load run state: %w", err)
				}
			}

			existing, err := s.sourceTables(ctx)
			if err != nil {
				logger.Warnf("Could not list source tables: %v", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tDESTINATION\tMODE\tTHIS RUN\tLAST SUCCESS\tSOURCE STATUS")
			for _, t := range s.tables {
				last := "never"
				if ts := st.LastSuccess(t.DestinationTable); ts != nil {
					last = ts.Format(time.RFC3339)
				}
				status := "unknown"
				if existing != nil {
					status = "ok"
					if !existing[strings.ToLower(t.SourceTable)] {
						status = "MISSING"
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					t.SourceTable, t.DestinationTable, t.Mode, t.EffectiveMode(opts.Daily), last, status)
			}
			return w.Flush()
		},
	}
}

func (s *session) sourceTables(ctx context.Context) (map[string]bool, error) {
	db, dialect, err := s.openSource()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	ex := &etl.SQLExtractor{DB: db, Dialect: dialect}
	names, err := ex.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	return set, nil
}

// newScheduleCmd runs the sync on a cron schedule until interrupted.
func newScheduleCmd(opts *Options) *cobra.Command {
	var expr string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the sync on a cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Fail fast on bad configuration instead of at the first tick.
			if _, err := bootstrap(opts); err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cronLogger := cron.PrintfLogger(logger.StdLogger())
			c := cron.New(
				cron.WithLogger(cronLogger),
				cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
			)
			if _, err := c.AddFunc(expr, func() {
				if err := runSync(ctx, out, opts); err != nil {
					logger.Errorf("Scheduled run failed: %v", err)
				}
			}); err != nil {
				return fmt.Errorf("%w: invalid cron expression %q: %w", config.ErrConfig, expr, err)
			}

			logger.Infof("Scheduler started with %q (daily=%v)", expr, opts.Daily)
			c.Start()
			<-ctx.Done()
			<-c.Stop().Done()
			logger.Info("Scheduler stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&expr, "cron", "", "Cron expression, e.g. \"0 2 * * *\"")
	cmd.MarkFlagRequired("cron")
	return cmd
}

func findTable(tables []models.TableSpec, name string) (models.TableSpec, error) {
	for _, t := range tables {
		if t.DestinationTable == name {
			return t, nil
		}
	}
	return models.TableSpec{}, fmt.Errorf("%w: table %q is not configured", config.ErrConfig, name)
}

func countRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	n := 0
	for sc.Scan() {
		if len(strings.TrimSpace(sc.Text())) > 0 {
			n++
		}
	}
	return n, sc.Err()
}
