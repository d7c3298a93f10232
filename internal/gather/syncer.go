package gather

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"adsync/internal/config"
	"adsync/internal/domain"
	"adsync/internal/metrics"
	"adsync/internal/store"
	"adsync/internal/util"
)

// Sync modes, used in reports, logs and metric labels.
const (
	ModeDaily    = "daily"
	ModeBackfill = "backfill"
	ModeCustom   = "custom"
)

// Options are the reconciliation settings a Syncer runs with.
type Options struct {
	DefaultLookbackDays  int
	BackfillDays         int
	RewriteLastNDays     int
	MonitoringWindowDays int
	MaxChunkDays         int
}

// OptionsFromConfig extracts Options from the sync section of the config.
func OptionsFromConfig(s config.Sync) Options {
	return Options{
		DefaultLookbackDays:  s.DefaultLookbackDays,
		BackfillDays:         s.BackfillDays,
		RewriteLastNDays:     s.RewriteLastNDays,
		MonitoringWindowDays: s.MonitoringWindowDays,
		MaxChunkDays:         s.MaxChunkDays,
	}
}

// Clock supplies the current day in the account's reporting zone.
type Clock interface {
	Today() civil.Date
}

// Deps are the collaborators a Syncer drives. Progress may be nil.
type Deps struct {
	Sink     store.Sink
	Loader   *Loader
	Pacer    *util.Pacer
	Clock    Clock
	Progress *Progress
	Metrics  *metrics.Recorder
	Log      *zap.SugaredLogger
}

// ChunkFailure records a chunk that was abandoned.
type ChunkFailure struct {
	Range domain.DateRange
	Err   error
}

// Report summarises one sync run.
type Report struct {
	RunID     string
	Mode      string
	Requested domain.DateRange
	Plan      []domain.DateRange
	Chunks    int
	Failed    []ChunkFailure
	Rows      LoadResult
}

// PlannedDays returns the number of days in the plan.
func (r *Report) PlannedDays() int {
	n := 0
	for _, rng := range r.Plan {
		n += rng.Days()
	}
	return n
}

// OK reports whether every chunk succeeded.
func (r *Report) OK() bool { return len(r.Failed) == 0 }

// StatusReport describes the warehouse without changing it.
type StatusReport struct {
	Summary          domain.Summary
	Empty            bool
	LastCompleted    civil.Date
	HasLastCompleted bool
	Window           domain.DateRange
	Missing          []domain.DateRange
}

// Syncer runs the daily, backfill and custom reconciliations: it reads the
// sink state, plans the missing ranges, and loads them chunk by chunk in
// ascending date order. Chunk failures are logged and skipped; the next run
// picks the gaps up again.
type Syncer struct {
	sink     store.Sink
	state    *StateReader
	loader   *Loader
	pacer    *util.Pacer
	clock    Clock
	progress *Progress
	metrics  *metrics.Recorder
	opts     Options
	log      *zap.SugaredLogger
}

// NewSyncer creates a Syncer.
func NewSyncer(deps Deps, opts Options) *Syncer {
	return &Syncer{
		sink:     deps.Sink,
		state:    NewStateReader(deps.Sink),
		loader:   deps.Loader,
		pacer:    deps.Pacer,
		clock:    deps.Clock,
		progress: deps.Progress,
		metrics:  deps.Metrics,
		opts:     opts,
		log:      deps.Log,
	}
}

// Daily syncs [yesterday - lookback, yesterday] with the rewrite policy and
// records the day in the progress marker when no chunk failed.
func (s *Syncer) Daily(ctx context.Context) (*Report, error) {
	yesterday := s.clock.Today().AddDays(-1)
	requested := domain.DateRange{
		Start: yesterday.AddDays(-s.opts.DefaultLookbackDays),
		End:   yesterday,
	}

	report, err := s.runMonitored(ctx, ModeDaily, requested, s.opts.RewriteLastNDays)
	if err != nil {
		return report, err
	}
	if report.OK() && s.progress != nil {
		if err := s.progress.MarkCompleted(yesterday); err != nil {
			s.log.Warnw("recording progress", "error", err)
		}
	}
	return report, nil
}

// Backfill syncs the last days days before today, filling every gap in the
// range. There is no rewrite: days already loaded are left alone.
func (s *Syncer) Backfill(ctx context.Context, days int) (report *Report, err error) {
	if days <= 0 {
		return nil, errors.WithHint(
			errors.Mark(errors.Newf("backfill days must be positive, got %d", days), ErrInvalidArgument),
			"pass --days with a positive number")
	}
	yesterday := s.clock.Today().AddDays(-1)
	requested := domain.DateRange{Start: yesterday.AddDays(-days), End: yesterday}

	report, log, started := s.begin(ModeBackfill, requested)
	defer func() { s.finish(report, started, err) }()

	if err := s.sink.EnsureTable(ctx); err != nil {
		return report, errors.Wrap(err, "ensuring warehouse table")
	}

	existing, err := s.state.DatesInRange(ctx, requested)
	if err != nil {
		if !IsUnavailable(err) {
			return report, err
		}
		existing = NewDateSet()
	}
	report.Plan = PlanFullRange(requested, existing)

	return report, s.execute(ctx, report, log, true)
}

// Custom syncs an operator-chosen range. Without force it loads only the
// days the monitoring planner considers missing; with force every chunk of
// the range is deleted and reloaded.
func (s *Syncer) Custom(ctx context.Context, requested domain.DateRange, force bool) (report *Report, err error) {
	if requested.Start.After(requested.End) {
		return nil, errors.Mark(errors.Newf("start %s is after end %s", requested.Start, requested.End), ErrInvalidArgument)
	}
	if !force {
		return s.runMonitored(ctx, ModeCustom, requested, 0)
	}

	report, log, started := s.begin(ModeCustom, requested)
	defer func() { s.finish(report, started, err) }()

	if err := s.sink.EnsureTable(ctx); err != nil {
		return report, errors.Wrap(err, "ensuring warehouse table")
	}
	report.Plan = []domain.DateRange{requested}
	return report, s.execute(ctx, report, log, true)
}

// Status summarises the sink and lists the gaps in the monitoring window
// ending yesterday.
func (s *Syncer) Status(ctx context.Context) (*StatusReport, error) {
	today := s.clock.Today()
	yesterday := today.AddDays(-1)
	st := &StatusReport{
		Window: domain.DateRange{
			Start: yesterday.AddDays(-s.opts.MonitoringWindowDays),
			End:   yesterday,
		},
	}
	if s.progress != nil {
		st.LastCompleted, st.HasLastCompleted = s.progress.LastCompleted()
	}

	sum, err := s.sink.Summary(ctx)
	switch {
	case IsUnavailable(err):
		st.Empty = true
	case err != nil:
		return nil, errors.Wrap(err, "summarising warehouse")
	default:
		st.Summary = sum
		st.Empty = sum.Rows == 0
	}

	in, err := s.planInput(ctx, st.Window, 0, today)
	if err != nil {
		return nil, err
	}
	st.Missing = Plan(in)
	return st, nil
}

// runMonitored plans requested with the monitoring planner and executes the
// plan with delete-before-append.
func (s *Syncer) runMonitored(ctx context.Context, mode string, requested domain.DateRange, rewrite int) (report *Report, err error) {
	report, log, started := s.begin(mode, requested)
	defer func() { s.finish(report, started, err) }()

	if err := s.sink.EnsureTable(ctx); err != nil {
		return report, errors.Wrap(err, "ensuring warehouse table")
	}

	in, err := s.planInput(ctx, requested, rewrite, s.clock.Today())
	if err != nil {
		return report, err
	}
	report.Plan = Plan(in)

	return report, s.execute(ctx, report, log, true)
}

// planInput snapshots the sink for the monitoring planner. A missing table
// reads as an empty sink.
func (s *Syncer) planInput(ctx context.Context, requested domain.DateRange, rewrite int, today civil.Date) (PlanInput, error) {
	in := PlanInput{
		Requested:            requested,
		Existing:             NewDateSet(),
		RewriteLastNDays:     rewrite,
		MonitoringWindowDays: s.opts.MonitoringWindowDays,
		Today:                today,
	}

	latest, ok, err := s.state.LatestDate(ctx)
	if err != nil {
		if IsUnavailable(err) {
			return in, nil
		}
		return in, err
	}
	in.Latest, in.HasLatest = latest, ok
	if !ok {
		return in, nil
	}

	existing, err := s.state.RecentDates(ctx, s.opts.MonitoringWindowDays)
	if err != nil {
		if IsUnavailable(err) {
			return in, nil
		}
		return in, err
	}
	in.Existing = existing
	return in, nil
}

func (s *Syncer) begin(mode string, requested domain.DateRange) (*Report, *zap.SugaredLogger, time.Time) {
	report := &Report{
		RunID:     uuid.New().String(),
		Mode:      mode,
		Requested: requested,
	}
	log := s.log.With("run_id", report.RunID, "mode", mode)
	log.Infow("sync started", "start", requested.Start, "end", requested.End)
	return report, log, time.Now()
}

// finish records the run metrics. A run only counts as a success when it
// returned no error and no chunk failed.
func (s *Syncer) finish(report *Report, started time.Time, err error) {
	s.metrics.Planned(report.Mode, report.PlannedDays())
	s.metrics.Finished(report.Mode, started, err == nil && report.OK())
}

// execute loads the plan chunk by chunk in ascending order, pausing between
// upstream requests. Only cancellation of ctx stops it early.
func (s *Syncer) execute(ctx context.Context, report *Report, log *zap.SugaredLogger, deleteExisting bool) error {
	if len(report.Plan) == 0 {
		log.Infow("warehouse is up to date")
		return nil
	}
	log.Infow("plan ready", "ranges", len(report.Plan), "days", report.PlannedDays(),
		"pause", s.pacer.Delay())

	for _, rng := range report.Plan {
		for chunk := range Chunk(rng, s.opts.MaxChunkDays) {
			if err := s.pacer.Wait(ctx); err != nil {
				return errors.Wrap(err, "waiting for rate limiter")
			}

			res, err := s.loader.LoadChunk(ctx, chunk, deleteExisting)
			s.pacer.Done()
			report.Rows.Add(res)
			s.recordRows(res)

			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				report.Failed = append(report.Failed, ChunkFailure{Range: chunk, Err: err})
				s.metrics.Chunk(outcome(err))
				log.Errorw("chunk failed, skipping", "start", chunk.Start, "end", chunk.End, "error", err)
				continue
			}

			report.Chunks++
			s.metrics.Chunk(metrics.OutcomeOK)
			log.Infow("chunk loaded", "start", chunk.Start, "end", chunk.End,
				"fetched", res.Fetched, "filtered", res.Filtered,
				"deleted", res.Deleted, "inserted", res.Inserted)
		}
	}

	log.Infow("sync finished",
		"chunks", report.Chunks, "failed", len(report.Failed),
		"inserted", report.Rows.Inserted, "deleted", report.Rows.Deleted)
	return nil
}

func (s *Syncer) recordRows(res LoadResult) {
	s.metrics.Rows("fetched", res.Fetched)
	s.metrics.Rows("filtered", res.Filtered)
	s.metrics.Rows("skipped", res.Skipped)
	s.metrics.Rows("deleted", res.Deleted)
	s.metrics.Rows("inserted", res.Inserted)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrUpstreamTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, ErrUpstreamRequest):
		return metrics.OutcomeUpstreamError
	default:
		return metrics.OutcomeSinkError
	}
}

// ParseRange parses operator-supplied YYYY-MM-DD bounds.
func ParseRange(start, end string) (domain.DateRange, error) {
	s, err := civil.ParseDate(start)
	if err != nil {
		return domain.DateRange{}, errors.WithHint(
			errors.Mark(errors.Wrapf(err, "bad start date %q", start), ErrInvalidArgument),
			"dates use the YYYY-MM-DD format")
	}
	e, err := civil.ParseDate(end)
	if err != nil {
		return domain.DateRange{}, errors.WithHint(
			errors.Mark(errors.Wrapf(err, "bad end date %q", end), ErrInvalidArgument),
			"dates use the YYYY-MM-DD format")
	}
	r, err := domain.NewDateRange(s, e)
	if err != nil {
		return domain.DateRange{}, errors.Mark(err, ErrInvalidArgument)
	}
	return r, nil
}
