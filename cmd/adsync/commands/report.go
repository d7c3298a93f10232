package commands

import (
	"github.com/pterm/pterm"

	"adsync/internal/gather"
)

func printReport(r *gather.Report) {
	if len(r.Plan) == 0 {
		pterm.Success.Printf("%s: %s is up to date\n", r.Mode, r.Requested)
		return
	}

	pterm.Info.Printf("%s: planned %d days in %d ranges for %s\n",
		r.Mode, r.PlannedDays(), len(r.Plan), r.Requested)

	if r.OK() {
		pterm.Success.Printf("%d chunks loaded: %d rows inserted, %d deleted, %d below min spend\n",
			r.Chunks, r.Rows.Inserted, r.Rows.Deleted, r.Rows.Filtered)
		return
	}

	pterm.Warning.Printf("%d chunks loaded, %d failed: %d rows inserted, %d deleted\n",
		r.Chunks, len(r.Failed), r.Rows.Inserted, r.Rows.Deleted)
	for _, f := range r.Failed {
		pterm.Error.Printf("%s: %v\n", f.Range, f.Err)
	}
	pterm.Info.Println("Failed ranges will be picked up by the next run")
}
