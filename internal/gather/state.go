package gather

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/cockroachdb/errors"

	"adsync/internal/domain"
	"adsync/internal/store"
)

// StateReader answers the read-only questions the planner needs about the
// sink. Errors wrap store.ErrTableNotFound when the table does not exist yet.
type StateReader struct {
	sink store.Sink
}

// NewStateReader creates a StateReader over sink.
func NewStateReader(sink store.Sink) *StateReader {
	return &StateReader{sink: sink}
}

// RecentDates returns up to limit most-recent distinct dates in the sink.
func (r *StateReader) RecentDates(ctx context.Context, limit int) (DateSet, error) {
	dates, err := r.sink.RecentDates(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "reading recent dates")
	}
	return NewDateSet(dates...), nil
}

// LatestDate returns the maximum date in the sink; ok is false when it is
// empty.
func (r *StateReader) LatestDate(ctx context.Context) (d civil.Date, ok bool, err error) {
	d, ok, err = r.sink.MaxDate(ctx)
	if err != nil {
		return civil.Date{}, false, errors.Wrap(err, "reading latest date")
	}
	return d, ok, nil
}

// DatesInRange returns every loaded date within rng.
func (r *StateReader) DatesInRange(ctx context.Context, rng domain.DateRange) (DateSet, error) {
	dates, err := r.sink.DatesInRange(ctx, rng)
	if err != nil {
		return nil, errors.Wrapf(err, "reading dates in %s", rng)
	}
	return NewDateSet(dates...), nil
}

// IsUnavailable reports whether err means the sink table does not exist.
func IsUnavailable(err error) bool {
	return errors.Is(err, store.ErrTableNotFound)
}
