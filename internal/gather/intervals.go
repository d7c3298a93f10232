package gather

import (
	"sort"

	"cloud.google.com/go/civil"

	"adsync/internal/domain"
)

// DateSet is a set of calendar days.
type DateSet map[civil.Date]struct{}

// NewDateSet returns a set holding dates.
func NewDateSet(dates ...civil.Date) DateSet {
	s := make(DateSet, len(dates))
	for _, d := range dates {
		s[d] = struct{}{}
	}
	return s
}

// Add inserts d.
func (s DateSet) Add(d civil.Date) { s[d] = struct{}{} }

// Has reports whether d is in the set.
func (s DateSet) Has(d civil.Date) bool {
	_, ok := s[d]
	return ok
}

// AddRange inserts every day of [from, to]. It is a no-op when from is after
// to.
func (s DateSet) AddRange(from, to civil.Date) {
	for d := from; !d.After(to); d = d.AddDays(1) {
		s[d] = struct{}{}
	}
}

// Sorted returns the members in ascending order.
func (s DateSet) Sorted() []civil.Date {
	out := make([]civil.Date, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// ToRanges collapses the set into maximal runs of consecutive days. The
// ranges come back sorted, disjoint and pairwise non-adjacent, and their
// union is exactly the set.
func (s DateSet) ToRanges() []domain.DateRange {
	var ranges []domain.DateRange
	for _, d := range s.Sorted() {
		if n := len(ranges); n > 0 && ranges[n-1].End.AddDays(1) == d {
			ranges[n-1].End = d
			continue
		}
		ranges = append(ranges, domain.DateRange{Start: d, End: d})
	}
	return ranges
}

func maxDate(a, b civil.Date) civil.Date {
	if a.After(b) {
		return a
	}
	return b
}

func minDate(a, b civil.Date) civil.Date {
	if a.Before(b) {
		return a
	}
	return b
}
