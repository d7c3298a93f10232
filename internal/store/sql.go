package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"             // Pure-Go SQLite driver.

	"adsync/internal/domain"
)

// Compile-time interface check.
var _ Sink = (*SQLSink)(nil)

// ---------------------------------------------------------------------------
// Dialects
// ---------------------------------------------------------------------------

type colKind int

const (
	kindText colKind = iota
	kindDate
	kindInt
	kindFloat
)

// Dialect captures the differences between the SQL warehouses adsync
// supports.
type Dialect struct {
	Name   string
	Driver string

	types          map[colKind]string
	placeholder    func(n int) string
	undefinedTable func(err error) bool
}

// SQLite stores dates as ISO-8601 TEXT, which sorts and compares correctly.
var SQLite = Dialect{
	Name:   "sqlite",
	Driver: "sqlite",
	types: map[colKind]string{
		kindText:  "TEXT",
		kindDate:  "TEXT",
		kindInt:   "INTEGER",
		kindFloat: "REAL",
	},
	placeholder: func(int) string { return "?" },
	undefinedTable: func(err error) bool {
		return strings.Contains(err.Error(), "no such table")
	},
}

// Postgres uses a native DATE column.
var Postgres = Dialect{
	Name:   "postgres",
	Driver: "pgx",
	types: map[colKind]string{
		kindText:  "TEXT",
		kindDate:  "DATE",
		kindInt:   "BIGINT",
		kindFloat: "DOUBLE PRECISION",
	},
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	undefinedTable: func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == "42P01"
	},
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

type column struct {
	name string
	kind colKind
}

var metricColumns = []column{
	{"account_id", kindText},
	{"account_name", kindText},
	{"campaign_id", kindText},
	{"campaign_name", kindText},
	{"adset_id", kindText},
	{"adset_name", kindText},
	{"ad_id", kindText},
	{"ad_name", kindText},
	{"date", kindDate},
	{"impressions", kindInt},
	{"clicks", kindInt},
	{"reach", kindInt},
	{"spend", kindFloat},
	{"cpc", kindFloat},
	{"cpm", kindFloat},
	{"ctr", kindFloat},
	{"frequency", kindFloat},
	{"unique_ctr", kindFloat},
	{"conversions", kindInt},
	{"conversion_value", kindFloat},
	{"cost_per_conversion", kindFloat},
}

func rowArgs(r domain.MetricRow) []any {
	return []any{
		r.AccountID,
		r.AccountName,
		r.CampaignID,
		r.CampaignName,
		r.AdsetID,
		r.AdsetName,
		r.AdID,
		r.AdName,
		r.Date,
		r.Impressions,
		r.Clicks,
		r.Reach,
		r.Spend.InexactFloat64(),
		r.CPC,
		r.CPM,
		r.CTR,
		r.Frequency,
		r.UniqueCTR,
		r.Conversions,
		r.ConversionValue.InexactFloat64(),
		r.CostPerConversion.InexactFloat64(),
	}
}

// ---------------------------------------------------------------------------
// SQLSink
// ---------------------------------------------------------------------------

// SQLSink implements Sink on a database/sql connection.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// OpenSQLSink opens a database with the dialect's driver and returns a sink
// on table. table must already be a validated identifier.
func OpenSQLSink(dialect Dialect, dsn, table string) (*SQLSink, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s warehouse", dialect.Name)
	}
	return NewSQLSink(db, dialect, table), nil
}

// NewSQLSink wraps an existing connection.
func NewSQLSink(db *sql.DB, dialect Dialect, table string) *SQLSink {
	return &SQLSink{db: db, dialect: dialect, table: table}
}

// Close closes the underlying database connection.
func (s *SQLSink) Close() error {
	return s.db.Close()
}

// EnsureTable creates the metrics table and its date index if absent.
func (s *SQLSink) EnsureTable(ctx context.Context) error {
	defs := make([]string, len(metricColumns))
	for i, c := range metricColumns {
		defs[i] = c.name + " " + s.dialect.types[c.kind]
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.table, strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrapf(err, "creating table %s", s.table)
	}

	idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_date_idx ON %s (date)", s.table, s.table)
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return errors.Wrapf(err, "creating date index on %s", s.table)
	}
	return nil
}

// RecentDates returns up to limit most-recent distinct dates.
func (s *SQLSink) RecentDates(ctx context.Context, limit int) ([]civil.Date, error) {
	q := fmt.Sprintf("SELECT DISTINCT date FROM %s ORDER BY date DESC LIMIT %s",
		s.table, s.dialect.placeholder(1))
	return s.queryDates(ctx, q, limit)
}

// DatesInRange returns the distinct dates present within r, ascending.
func (s *SQLSink) DatesInRange(ctx context.Context, r domain.DateRange) ([]civil.Date, error) {
	q := fmt.Sprintf("SELECT DISTINCT date FROM %s WHERE date BETWEEN %s AND %s ORDER BY date",
		s.table, s.dialect.placeholder(1), s.dialect.placeholder(2))
	return s.queryDates(ctx, q, r.Start, r.End)
}

func (s *SQLSink) queryDates(ctx context.Context, q string, args ...any) ([]civil.Date, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.readErr(err)
	}
	defer rows.Close()

	var dates []civil.Date
	for rows.Next() {
		var d civil.Date
		if err := rows.Scan(&d); err != nil {
			return nil, errors.Wrap(err, "scanning date")
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, s.readErr(err)
	}
	return dates, nil
}

// MaxDate returns the latest date in the table.
func (s *SQLSink) MaxDate(ctx context.Context) (civil.Date, bool, error) {
	var v any
	q := fmt.Sprintf("SELECT MAX(date) FROM %s", s.table)
	if err := s.db.QueryRowContext(ctx, q).Scan(&v); err != nil {
		return civil.Date{}, false, s.readErr(err)
	}
	return scanNullDate(v)
}

// CountRows returns the number of rows dated within r.
func (s *SQLSink) CountRows(ctx context.Context, r domain.DateRange) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE date BETWEEN %s AND %s",
		s.table, s.dialect.placeholder(1), s.dialect.placeholder(2))
	if err := s.db.QueryRowContext(ctx, q, r.Start, r.End).Scan(&n); err != nil {
		return 0, s.readErr(err)
	}
	return n, nil
}

// DeleteRows removes the rows dated within r.
func (s *SQLSink) DeleteRows(ctx context.Context, r domain.DateRange) (int64, error) {
	q := fmt.Sprintf("DELETE FROM %s WHERE date BETWEEN %s AND %s",
		s.table, s.dialect.placeholder(1), s.dialect.placeholder(2))
	res, err := s.db.ExecContext(ctx, q, r.Start, r.End)
	if err != nil {
		return 0, errors.Wrapf(s.readErr(err), "deleting %s", r)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "reading deleted row count")
	}
	return n, nil
}

// AppendRows inserts rows inside a single transaction.
func (s *SQLSink) AppendRows(ctx context.Context, rows []domain.MetricRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	names := make([]string, len(metricColumns))
	marks := make([]string, len(metricColumns))
	for i, c := range metricColumns {
		names[i] = c.name
		marks[i] = s.dialect.placeholder(i + 1)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table, strings.Join(names, ", "), strings.Join(marks, ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "beginning append transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return 0, errors.Wrap(s.readErr(err), "preparing insert")
	}
	defer stmt.Close()

	var inserted int64
	for _, r := range rows {
		res, err := stmt.ExecContext(ctx, rowArgs(r)...)
		if err != nil {
			return 0, errors.Wrapf(err, "inserting row for ad %s on %s", r.AdID, r.Date)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, errors.Wrap(err, "reading inserted row count")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "committing append")
	}
	return inserted, nil
}

// Summary aggregates the whole table.
func (s *SQLSink) Summary(ctx context.Context) (domain.Summary, error) {
	q := fmt.Sprintf(`SELECT MIN(date), MAX(date), COUNT(DISTINCT date), COUNT(*),
		COALESCE(SUM(spend), 0), COALESCE(SUM(impressions), 0), COALESCE(SUM(clicks), 0)
		FROM %s`, s.table)

	var (
		minV, maxV any
		sum        domain.Summary
	)
	err := s.db.QueryRowContext(ctx, q).Scan(&minV, &maxV, &sum.Days, &sum.Rows,
		&sum.TotalSpend, &sum.TotalImpressions, &sum.TotalClicks)
	if err != nil {
		return domain.Summary{}, s.readErr(err)
	}

	if sum.Earliest, _, err = scanNullDate(minV); err != nil {
		return domain.Summary{}, err
	}
	if sum.Latest, _, err = scanNullDate(maxV); err != nil {
		return domain.Summary{}, err
	}
	return sum, nil
}

// readErr maps the dialect's undefined-table error onto ErrTableNotFound.
func (s *SQLSink) readErr(err error) error {
	if s.dialect.undefinedTable(err) {
		return errors.Mark(errors.Wrapf(err, "table %s", s.table), ErrTableNotFound)
	}
	return errors.Wrapf(err, "querying %s", s.table)
}

func scanNullDate(v any) (civil.Date, bool, error) {
	if v == nil {
		return civil.Date{}, false, nil
	}
	var d civil.Date
	if s, ok := v.(string); ok && len(s) > len("2006-01-02") {
		// Some drivers render DATE as a full timestamp string.
		v = s[:len("2006-01-02")]
	}
	if err := d.Scan(v); err != nil {
		return civil.Date{}, false, errors.Wrap(err, "scanning date")
	}
	return d, true, nil
}
