package gather

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"adsync/internal/domain"
	"adsync/internal/store"
)

// LoadResult counts what happened to one chunk.
type LoadResult struct {
	Deleted  int64
	Fetched  int64
	Filtered int64
	Skipped  int64
	Inserted int64
}

// Add accumulates o into r.
func (r *LoadResult) Add(o LoadResult) {
	r.Deleted += o.Deleted
	r.Fetched += o.Fetched
	r.Filtered += o.Filtered
	r.Skipped += o.Skipped
	r.Inserted += o.Inserted
}

// Loader replaces the sink rows of one bounded date range with a fresh copy
// from the source.
type Loader struct {
	source       Source
	sink         store.Sink
	transform    *Transformer
	fetchTimeout time.Duration
	log          *zap.SugaredLogger
}

// NewLoader creates a Loader. fetchTimeout is the hard deadline applied to
// each upstream fetch; zero means no deadline beyond ctx.
func NewLoader(source Source, sink store.Sink, transform *Transformer, fetchTimeout time.Duration, log *zap.SugaredLogger) *Loader {
	return &Loader{
		source:       source,
		sink:         sink,
		transform:    transform,
		fetchTimeout: fetchTimeout,
		log:          log,
	}
}

// LoadChunk deletes the existing rows in r when deleteExisting is set, then
// fetches, transforms, filters and appends. It is not atomic: a failure after
// the delete leaves r empty until a later run refills it.
//
// Errors are marked with ErrUpstreamTimeout, ErrUpstreamRequest, ErrSinkWrite
// or ErrEmptyInsert. Cancellation of ctx is returned unmarked.
func (l *Loader) LoadChunk(ctx context.Context, r domain.DateRange, deleteExisting bool) (LoadResult, error) {
	var res LoadResult

	if deleteExisting {
		n, err := l.deleteRange(ctx, r)
		if err != nil {
			return res, err
		}
		res.Deleted = n
	}

	insights, err := l.fetch(ctx, r)
	if err != nil {
		return res, err
	}
	res.Fetched = int64(len(insights))

	rows, filtered, skipped := l.transform.Transform(insights)
	res.Filtered = int64(filtered)
	res.Skipped = int64(skipped)
	if skipped > 0 {
		l.log.Warnw("skipped records without a usable date", "start", r.Start, "end", r.End, "skipped", skipped)
	}
	if len(rows) == 0 {
		l.log.Infow("no rows to append", "start", r.Start, "end", r.End,
			"fetched", res.Fetched, "filtered", res.Filtered)
		return res, nil
	}

	n, err := l.sink.AppendRows(ctx, rows)
	if err != nil {
		return res, errors.Mark(errors.Wrapf(err, "appending %d rows for %s", len(rows), r), ErrSinkWrite)
	}
	if n == 0 {
		return res, errors.Mark(errors.Newf("append for %s inserted 0 of %d rows", r, len(rows)), ErrEmptyInsert)
	}
	res.Inserted = n
	return res, nil
}

func (l *Loader) deleteRange(ctx context.Context, r domain.DateRange) (int64, error) {
	count, err := l.sink.CountRows(ctx, r)
	if err != nil && !IsUnavailable(err) {
		return 0, errors.Mark(errors.Wrapf(err, "counting rows in %s", r), ErrSinkWrite)
	}
	if count == 0 {
		return 0, nil
	}

	n, err := l.sink.DeleteRows(ctx, r)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "deleting rows in %s", r), ErrSinkWrite)
	}
	l.log.Debugw("deleted existing rows", "start", r.Start, "end", r.End, "rows", n)
	return n, nil
}

// fetch calls the source under a hard deadline.
func (l *Loader) fetch(ctx context.Context, r domain.DateRange) ([]domain.Insight, error) {
	fctx := ctx
	if l.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, l.fetchTimeout)
		defer cancel()
	}

	insights, err := l.source.FetchDailyMetrics(fctx, r)
	if err == nil {
		return insights, nil
	}

	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(fctx.Err(), context.DeadlineExceeded):
		return nil, errors.Mark(
			errors.Wrapf(err, "fetching %s exceeded %s", r, l.fetchTimeout), ErrUpstreamTimeout)
	default:
		return nil, errors.Mark(errors.Wrapf(err, "fetching %s", r), ErrUpstreamRequest)
	}
}
