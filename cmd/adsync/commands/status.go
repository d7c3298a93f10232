package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// StatusCmd summarises the warehouse table without fetching anything.
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarise the warehouse table and list recent gaps",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.syncer.Status(cmd.Context())
	if err != nil {
		return err
	}

	pterm.DefaultSection.Printf("%s (%s)", a.cfg.Warehouse.Table, a.cfg.Warehouse.Driver)

	if st.Empty {
		pterm.Warning.Println("The warehouse table is empty")
	} else {
		s := st.Summary
		data := pterm.TableData{
			{"Metric", "Value"},
			{"Earliest date", s.Earliest.String()},
			{"Latest date", s.Latest.String()},
			{"Days loaded", formatCount(s.Days)},
			{"Rows", formatCount(s.Rows)},
			{"Total spend", formatMoney(s.TotalSpend)},
			{"Total impressions", formatCount(s.TotalImpressions)},
			{"Total clicks", formatCount(s.TotalClicks)},
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
	}

	if st.HasLastCompleted {
		pterm.Info.Printf("Last completed daily sync: %s\n", st.LastCompleted)
	} else {
		pterm.Info.Println("No daily sync has completed yet")
	}

	if len(st.Missing) == 0 {
		pterm.Success.Printf("No gaps in %s\n", st.Window)
		return nil
	}
	pterm.Warning.Printf("Missing in %s:\n", st.Window)
	for _, r := range st.Missing {
		pterm.Println("  " + r.String())
	}
	return nil
}
