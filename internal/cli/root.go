// Package cli wires the sql2bq commands together using the Cobra library.
package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/BartekS5/sql2bq/internal/config"
)

// Exit codes of the sql2bq binary.
const (
	ExitOK          = 0
	ExitTableFailed = 1
	ExitConfig      = 2
)

func NewRootCmd() *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:   "sql2bq",
		Short: "sql2bq - sync relational tables into BigQuery",
		Long: `sql2bq extracts the configured tables from a relational database, maps
their columns onto BigQuery types and loads them into a dataset.

Without --daily every table is fully reloaded. With --daily, tables configured
as incremental only load rows changed since their last successful run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	opts.bindFlags(rootCmd)
	rootCmd.AddCommand(
		newRunCmd(opts),
		newLoadCmd(opts),
		newCleanupCmd(opts),
		newTablesCmd(opts),
		newScheduleCmd(opts),
	)
	return rootCmd
}

// ExitCode maps the error returned by a command onto the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrConfig):
		return ExitConfig
	default:
		return ExitTableFailed
	}
}
