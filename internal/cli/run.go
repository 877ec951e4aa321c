package cli

import (
	"github.com/spf13/cobra"
)

// Options are the flags shared by every command.
type Options struct {
	Home            string
	CredentialsPath string
	TablesPath      string
	Only            []string
	Daily           bool
	Progress        bool
}

func (o *Options) bindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.Home, "home", "", "Base directory for configs, dumps, logs and state (default $ETL_HOME or .)")
	flags.StringVarP(&o.CredentialsPath, "credentials", "c", "", "Path to the credentials file")
	flags.StringVarP(&o.TablesPath, "tables", "t", "", "Path to the table schema file")
	flags.StringSliceVar(&o.Only, "only", nil, "Restrict the run to these destination tables")
	flags.BoolVar(&o.Daily, "daily", false, "Daily run: incremental tables only load rows changed since their last success")
	flags.BoolVar(&o.Progress, "progress", false, "Show a progress bar")
}

func newRunCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one sync of every configured table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
}
