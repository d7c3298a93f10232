package gather

import (
	"cloud.google.com/go/civil"

	"adsync/internal/domain"
)

// PlanInput is everything the reconciliation planner looks at. Planning is a
// pure function of these values: no clock and no sink access.
type PlanInput struct {
	// Requested is the interval the caller wants loaded.
	Requested domain.DateRange

	// Existing holds the dates already loaded, as seen through the monitoring
	// window. Absence from it says nothing about days outside that window.
	Existing DateSet

	// Latest is the maximum date anywhere in the sink; HasLatest is false
	// when the sink is empty.
	Latest    civil.Date
	HasLatest bool

	// RewriteLastNDays forces the newest N loaded days to be fetched again.
	// Zero disables it.
	RewriteLastNDays int

	// MonitoringWindowDays bounds gap detection to the days ending at Latest.
	MonitoringWindowDays int

	// Today is the caller's current day in the account's zone.
	Today civil.Date
}

// Plan returns the ranges that must be fetched to bring the sink up to date
// for in.Requested: sorted ascending, disjoint and non-adjacent. An empty
// plan means nothing is missing.
func Plan(in PlanInput) []domain.DateRange {
	req := in.Requested
	if !in.HasLatest {
		return []domain.DateRange{req}
	}

	latest := in.Latest
	window := max(in.MonitoringWindowDays, 1)
	monitoringStart := latest.AddDays(-(window - 1))

	toFetch := make(DateSet)

	// Rewrite the newest days regardless of presence to pick up late
	// corrections from the platform.
	if n := in.RewriteLastNDays; n > 0 {
		from := maxDate(latest.AddDays(-(n - 1)), req.Start)
		to := minDate(latest, req.End)
		toFetch.AddRange(from, to)
	}

	// Holes inside the monitoring window.
	scanFrom := maxDate(monitoringStart, req.Start)
	scanTo := minDate(latest, req.End)
	for d := scanFrom; !d.After(scanTo); d = d.AddDays(1) {
		if !in.Existing.Has(d) {
			toFetch.Add(d)
		}
	}

	// Everything after the last loaded day up to yesterday is missing.
	if fresh := minDate(in.Today.AddDays(-1), req.End); latest.Before(fresh) {
		toFetch.AddRange(latest.AddDays(1), fresh)
	}

	// An explicit request past the data, possibly past today.
	if req.End.After(latest) {
		toFetch.AddRange(maxDate(latest.AddDays(1), req.Start), req.End)
	}

	if len(toFetch) == 0 {
		return nil
	}
	return toFetch.ToRanges()
}

// PlanFullRange returns every gap in requested given the complete set of
// loaded dates within it. There is no rewrite and no monitoring window; it is
// meant for backfills and audits that need to find holes anywhere.
func PlanFullRange(requested domain.DateRange, existing DateSet) []domain.DateRange {
	missing := make(DateSet)
	for d := requested.Start; !d.After(requested.End); d = d.AddDays(1) {
		if !existing.Has(d) {
			missing.Add(d)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return missing.ToRanges()
}
