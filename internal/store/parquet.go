package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/cockroachdb/errors"
	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"adsync/internal/domain"
)

// Compile-time interface check.
var _ Sink = (*ParquetSink)(nil)

// ParquetSink implements Sink as a directory of daily-partitioned Parquet
// files:
//
//	<DataDir>/<table>/date=<YYYY-MM-DD>.parquet
//
// Each partition holds every row for one day, so deleting a date interval is a
// matter of removing files.
type ParquetSink struct {
	DataDir string
	Table   string
}

// NewParquetSink creates a ParquetSink rooted at dataDir.
func NewParquetSink(dataDir, table string) *ParquetSink {
	return &ParquetSink{DataDir: dataDir, Table: table}
}

// ---------------------------------------------------------------------------
// Parquet record type (on-disk schema)
// ---------------------------------------------------------------------------

// MetricRecord is the Parquet schema for one ad-day row.
type MetricRecord struct {
	AccountID         string  `parquet:"account_id"`
	AccountName       string  `parquet:"account_name"`
	CampaignID        string  `parquet:"campaign_id"`
	CampaignName      string  `parquet:"campaign_name"`
	AdsetID           string  `parquet:"adset_id"`
	AdsetName         string  `parquet:"adset_name"`
	AdID              string  `parquet:"ad_id"`
	AdName            string  `parquet:"ad_name"`
	Date              string  `parquet:"date"` // YYYY-MM-DD
	Impressions       int64   `parquet:"impressions"`
	Clicks            int64   `parquet:"clicks"`
	Reach             int64   `parquet:"reach"`
	Spend             float64 `parquet:"spend"`
	CPC               float64 `parquet:"cpc"`
	CPM               float64 `parquet:"cpm"`
	CTR               float64 `parquet:"ctr"`
	Frequency         float64 `parquet:"frequency"`
	UniqueCTR         float64 `parquet:"unique_ctr"`
	Conversions       int64   `parquet:"conversions"`
	ConversionValue   float64 `parquet:"conversion_value"`
	CostPerConversion float64 `parquet:"cost_per_conversion"`
}

func toRecord(r domain.MetricRow) MetricRecord {
	return MetricRecord{
		AccountID:         r.AccountID,
		AccountName:       r.AccountName,
		CampaignID:        r.CampaignID,
		CampaignName:      r.CampaignName,
		AdsetID:           r.AdsetID,
		AdsetName:         r.AdsetName,
		AdID:              r.AdID,
		AdName:            r.AdName,
		Date:              r.Date.String(),
		Impressions:       r.Impressions,
		Clicks:            r.Clicks,
		Reach:             r.Reach,
		Spend:             r.Spend.InexactFloat64(),
		CPC:               r.CPC,
		CPM:               r.CPM,
		CTR:               r.CTR,
		Frequency:         r.Frequency,
		UniqueCTR:         r.UniqueCTR,
		Conversions:       r.Conversions,
		ConversionValue:   r.ConversionValue.InexactFloat64(),
		CostPerConversion: r.CostPerConversion.InexactFloat64(),
	}
}

// ---------------------------------------------------------------------------
// Sink implementation
// ---------------------------------------------------------------------------

// EnsureTable creates the table directory.
func (s *ParquetSink) EnsureTable(_ context.Context) error {
	if err := os.MkdirAll(s.tableDir(), 0o755); err != nil {
		return errors.Wrapf(err, "creating table dir %s", s.tableDir())
	}
	return nil
}

// Close is a no-op; every operation opens and closes its own files.
func (s *ParquetSink) Close() error { return nil }

// RecentDates returns up to limit most-recent partition dates.
func (s *ParquetSink) RecentDates(_ context.Context, limit int) ([]civil.Date, error) {
	dates, err := s.partitions()
	if err != nil {
		return nil, err
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	if len(dates) > limit {
		dates = dates[:limit]
	}
	return dates, nil
}

// MaxDate returns the latest partition date.
func (s *ParquetSink) MaxDate(_ context.Context) (civil.Date, bool, error) {
	dates, err := s.partitions()
	if err != nil {
		return civil.Date{}, false, err
	}
	if len(dates) == 0 {
		return civil.Date{}, false, nil
	}
	latest := dates[0]
	for _, d := range dates[1:] {
		if d.After(latest) {
			latest = d
		}
	}
	return latest, true, nil
}

// DatesInRange returns the partition dates within r, ascending.
func (s *ParquetSink) DatesInRange(_ context.Context, r domain.DateRange) ([]civil.Date, error) {
	dates, err := s.partitions()
	if err != nil {
		return nil, err
	}
	var in []civil.Date
	for _, d := range dates {
		if r.Contains(d) {
			in = append(in, d)
		}
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Before(in[j]) })
	return in, nil
}

// CountRows counts the rows of every partition within r.
func (s *ParquetSink) CountRows(ctx context.Context, r domain.DateRange) (int64, error) {
	dates, err := s.DatesInRange(ctx, r)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, d := range dates {
		records, err := readParquetFile[MetricRecord](s.partitionPath(d))
		if err != nil {
			return 0, errors.Wrapf(err, "reading partition %s", d)
		}
		n += int64(len(records))
	}
	return n, nil
}

// DeleteRows removes every partition within r.
func (s *ParquetSink) DeleteRows(ctx context.Context, r domain.DateRange) (int64, error) {
	n, err := s.CountRows(ctx, r)
	if err != nil {
		return 0, err
	}
	dates, err := s.DatesInRange(ctx, r)
	if err != nil {
		return 0, err
	}
	for _, d := range dates {
		if err := os.Remove(s.partitionPath(d)); err != nil {
			return 0, errors.Wrapf(err, "removing partition %s", d)
		}
	}
	return n, nil
}

// AppendRows appends rows to their daily partitions, creating partitions as
// needed. Partitions are written in ascending date order, so a failed write
// leaves every earlier day complete and every later day untouched.
func (s *ParquetSink) AppendRows(_ context.Context, rows []domain.MetricRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if _, err := os.Stat(s.tableDir()); err != nil {
		return 0, s.statErr(err)
	}

	groups := make(map[civil.Date][]MetricRecord)
	var dates []civil.Date
	for _, r := range rows {
		if _, ok := groups[r.Date]; !ok {
			dates = append(dates, r.Date)
		}
		groups[r.Date] = append(groups[r.Date], toRecord(r))
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	var inserted int64
	for _, d := range dates {
		records := groups[d]
		path := s.partitionPath(d)

		var existing []MetricRecord
		if _, err := os.Stat(path); err == nil {
			if existing, err = readParquetFile[MetricRecord](path); err != nil {
				return inserted, errors.Wrapf(err, "reading partition %s", d)
			}
		}
		if err := writeParquetFile(path, append(existing, records...)); err != nil {
			return inserted, errors.Wrapf(err, "writing partition %s", d)
		}
		inserted += int64(len(records))
	}
	return inserted, nil
}

// Summary reads every partition and aggregates it.
func (s *ParquetSink) Summary(_ context.Context) (domain.Summary, error) {
	dates, err := s.partitions()
	if err != nil {
		return domain.Summary{}, err
	}

	var sum domain.Summary
	for _, d := range dates {
		records, err := readParquetFile[MetricRecord](s.partitionPath(d))
		if err != nil {
			return domain.Summary{}, errors.Wrapf(err, "reading partition %s", d)
		}
		if len(records) == 0 {
			continue
		}
		if sum.Days == 0 || d.Before(sum.Earliest) {
			sum.Earliest = d
		}
		if sum.Days == 0 || d.After(sum.Latest) {
			sum.Latest = d
		}
		sum.Days++
		for _, r := range records {
			sum.Rows++
			sum.TotalImpressions += r.Impressions
			sum.TotalClicks += r.Clicks
			sum.TotalSpend = decimal.NewFromFloat(sum.TotalSpend).
				Add(decimal.NewFromFloat(r.Spend)).InexactFloat64()
		}
	}
	return sum, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

const partitionPrefix = "date="

func (s *ParquetSink) tableDir() string {
	return filepath.Join(s.DataDir, s.Table)
}

// partitionPath returns the file holding day d.
// Layout: <dataDir>/<table>/date=<YYYY-MM-DD>.parquet
func (s *ParquetSink) partitionPath(d civil.Date) string {
	return filepath.Join(s.tableDir(), partitionPrefix+d.String()+".parquet")
}

// partitions lists the dates that have a partition file, in directory order.
func (s *ParquetSink) partitions() ([]civil.Date, error) {
	entries, err := os.ReadDir(s.tableDir())
	if err != nil {
		return nil, s.statErr(err)
	}

	var dates []civil.Date
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, partitionPrefix) || !strings.HasSuffix(name, ".parquet") {
			continue
		}
		d, err := civil.ParseDate(strings.TrimSuffix(strings.TrimPrefix(name, partitionPrefix), ".parquet"))
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

func (s *ParquetSink) statErr(err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return errors.Mark(errors.Wrapf(err, "table %s", s.Table), ErrTableNotFound)
	}
	return errors.Wrapf(err, "reading table dir %s", s.tableDir())
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Write to a sibling temp file first so a crash never leaves a truncated
	// partition behind.
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
