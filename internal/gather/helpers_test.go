package gather

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"adsync/internal/domain"
	"adsync/internal/store"
)

func day(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func rng(start, end string) domain.DateRange {
	return domain.DateRange{Start: day(start), End: day(end)}
}

// datesIn returns every day of [start, end] as a set.
func datesIn(start, end string) DateSet {
	s := NewDateSet()
	s.AddRange(day(start), day(end))
	return s
}

func insight(adID string, d civil.Date, spend string) domain.Insight {
	return domain.Insight{Fields: map[string]any{
		"account_id":  "42",
		"campaign_id": "c1",
		"adset_id":    "as1",
		"ad_id":       adID,
		"date_start":  d.String(),
		"impressions": "100",
		"clicks":      "5",
		"spend":       spend,
	}}
}

type fixedClock civil.Date

func (c fixedClock) Today() civil.Date { return civil.Date(c) }

// ---------------------------------------------------------------------------
// fakeSource
// ---------------------------------------------------------------------------

// fakeSource returns one insight per day of the requested range unless fn is
// set.
type fakeSource struct {
	mu    sync.Mutex
	calls []domain.DateRange
	fn    func(ctx context.Context, r domain.DateRange) ([]domain.Insight, error)
}

func (f *fakeSource) FetchDailyMetrics(ctx context.Context, r domain.DateRange) ([]domain.Insight, error) {
	f.mu.Lock()
	f.calls = append(f.calls, r)
	f.mu.Unlock()

	if f.fn != nil {
		return f.fn(ctx, r)
	}
	var out []domain.Insight
	for d := r.Start; !d.After(r.End); d = d.AddDays(1) {
		out = append(out, insight("ad-1", d, "1.50"))
	}
	return out, nil
}

// blockUntilDone simulates an upstream call that never answers.
func blockUntilDone(ctx context.Context, _ domain.DateRange) ([]domain.Insight, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, nil
	}
}

// ---------------------------------------------------------------------------
// memSink
// ---------------------------------------------------------------------------

var _ store.Sink = (*memSink)(nil)

type memSink struct {
	rows     []domain.MetricRow
	noTable  bool
	ensured  int
	deletes  []domain.DateRange
	appends  int
	failNext error // returned by the next AppendRows
	zeroAdd  bool
	ensure   error // returned by every EnsureTable
}

func newMemSink(dates ...civil.Date) *memSink {
	s := &memSink{}
	for _, d := range dates {
		s.rows = append(s.rows, domain.MetricRow{AdID: "seed", Date: d, Spend: decimal.NewFromInt(1)})
	}
	return s
}

func (s *memSink) EnsureTable(context.Context) error {
	s.ensured++
	if s.ensure != nil {
		return s.ensure
	}
	s.noTable = false
	return nil
}

func (s *memSink) distinct() []civil.Date {
	set := NewDateSet()
	for _, r := range s.rows {
		set.Add(r.Date)
	}
	return set.Sorted()
}

func (s *memSink) RecentDates(_ context.Context, limit int) ([]civil.Date, error) {
	if s.noTable {
		return nil, store.ErrTableNotFound
	}
	dates := s.distinct()
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	if len(dates) > limit {
		dates = dates[:limit]
	}
	return dates, nil
}

func (s *memSink) MaxDate(context.Context) (civil.Date, bool, error) {
	if s.noTable {
		return civil.Date{}, false, store.ErrTableNotFound
	}
	dates := s.distinct()
	if len(dates) == 0 {
		return civil.Date{}, false, nil
	}
	return dates[len(dates)-1], true, nil
}

func (s *memSink) DatesInRange(_ context.Context, r domain.DateRange) ([]civil.Date, error) {
	if s.noTable {
		return nil, store.ErrTableNotFound
	}
	var out []civil.Date
	for _, d := range s.distinct() {
		if r.Contains(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memSink) CountRows(_ context.Context, r domain.DateRange) (int64, error) {
	if s.noTable {
		return 0, store.ErrTableNotFound
	}
	var n int64
	for _, row := range s.rows {
		if r.Contains(row.Date) {
			n++
		}
	}
	return n, nil
}

func (s *memSink) DeleteRows(_ context.Context, r domain.DateRange) (int64, error) {
	s.deletes = append(s.deletes, r)
	kept := s.rows[:0]
	var n int64
	for _, row := range s.rows {
		if r.Contains(row.Date) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept
	return n, nil
}

func (s *memSink) AppendRows(_ context.Context, rows []domain.MetricRow) (int64, error) {
	s.appends++
	if err := s.failNext; err != nil {
		s.failNext = nil
		return 0, err
	}
	if s.zeroAdd {
		return 0, nil
	}
	s.rows = append(s.rows, rows...)
	return int64(len(rows)), nil
}

func (s *memSink) Summary(context.Context) (domain.Summary, error) {
	if s.noTable {
		return domain.Summary{}, store.ErrTableNotFound
	}
	var sum domain.Summary
	dates := s.distinct()
	if len(dates) > 0 {
		sum.Earliest, sum.Latest = dates[0], dates[len(dates)-1]
	}
	sum.Days = int64(len(dates))
	total := decimal.Zero
	for _, r := range s.rows {
		sum.Rows++
		sum.TotalImpressions += r.Impressions
		sum.TotalClicks += r.Clicks
		total = total.Add(r.Spend)
	}
	sum.TotalSpend = total.InexactFloat64()
	return sum, nil
}

func (s *memSink) Close() error { return nil }
