package gather

import (
	"iter"

	"adsync/internal/domain"
)

// Chunk splits r into consecutive sub-ranges of at most maxDays days each;
// only the last may be shorter. The sequence yields ceil(r.Days()/maxDays)
// ranges and can be iterated any number of times. A non-positive maxDays is
// treated as one day.
func Chunk(r domain.DateRange, maxDays int) iter.Seq[domain.DateRange] {
	maxDays = max(maxDays, 1)
	return func(yield func(domain.DateRange) bool) {
		for start := r.Start; !start.After(r.End); {
			end := minDate(start.AddDays(maxDays-1), r.End)
			if !yield(domain.DateRange{Start: start, End: end}) {
				return
			}
			start = end.AddDays(1)
		}
	}
}
