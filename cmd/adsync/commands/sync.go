package commands

import (
	"github.com/spf13/cobra"

	"adsync/internal/gather"
)

// DailyCmd catches up the lookback window with the rewrite policy.
var DailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Sync the last default_lookback_days days, rewriting the newest ones",
	Args:  cobra.NoArgs,
	RunE:  runDaily,
}

// BackfillCmd fills every gap in a long range.
var BackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fill every missing day in the last N days",
	Long: `Backfill scans the whole range ending yesterday for missing days, not just
the monitoring window, and loads them. Days already present are not reloaded.`,
	Args: cobra.NoArgs,
	RunE: runBackfill,
}

// CustomCmd syncs an explicit date range.
var CustomCmd = &cobra.Command{
	Use:   "custom START END",
	Short: "Sync an explicit YYYY-MM-DD range",
	Long: `Custom loads the days of [START, END] the warehouse is missing. With --force
every day of the range is deleted and reloaded.`,
	Args: cobra.ExactArgs(2),
	RunE: runCustom,
}

func init() {
	BackfillCmd.Flags().Int("days", 0, "days to backfill (default sync.backfill_days)")
	CustomCmd.Flags().Bool("force", false, "delete and reload the whole range")
}

func runDaily(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.syncer.Daily(cmd.Context())
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

func runBackfill(cmd *cobra.Command, args []string) error {
	days, err := cmd.Flags().GetInt("days")
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if days == 0 {
		days = a.cfg.Sync.BackfillDays
	}
	report, err := a.syncer.Backfill(cmd.Context(), days)
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

func runCustom(cmd *cobra.Command, args []string) error {
	// Bad dates are reported before any config, warehouse or network work.
	requested, err := gather.ParseRange(args[0], args[1])
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.syncer.Custom(cmd.Context(), requested, force)
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}
