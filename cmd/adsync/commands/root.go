// Package commands holds the adsync command tree.
package commands

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RootCmd is the adsync entry point. Without a subcommand it runs a daily
// sync.
var RootCmd = &cobra.Command{
	Use:   "adsync",
	Short: "Incrementally sync Facebook Ads insights into a warehouse table",
	Long: `adsync keeps a warehouse table of daily, ad-level Facebook Ads metrics up to date.

Each run reads which days the table already holds, plans the missing or stale
ranges, and reloads them in chunks of at most max_chunk_days, pausing between
upstream requests. Failed chunks are logged and skipped; the next run picks the
gaps up again.

Examples:
  adsync                              # same as "adsync daily"
  adsync daily                        # catch up the last lookback window
  adsync backfill --days 90           # fill every gap in the last 90 days
  adsync custom 2024-07-01 2024-07-31 # load missing days in July
  adsync custom 2024-07-01 2024-07-31 --force
  adsync status                       # summarise the table`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDaily,
}

var configPath string

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to the YAML config file (default $ADSYNC_CONFIG)")

	RootCmd.AddCommand(DailyCmd)
	RootCmd.AddCommand(BackfillCmd)
	RootCmd.AddCommand(CustomCmd)
	RootCmd.AddCommand(StatusCmd)
}

// Execute runs the command tree on args with every flag back at its default,
// so one run's flags never carry into the next.
func Execute(ctx context.Context, args []string) error {
	resetFlags(RootCmd)
	RootCmd.SetArgs(args)
	return RootCmd.ExecuteContext(ctx)
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
