// Package store defines the warehouse sink interface and its SQL and Parquet
// implementations.
package store

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/cockroachdb/errors"

	"adsync/internal/domain"
)

// ErrTableNotFound is returned by read operations when the sink table has not
// been created yet. Callers treat it as "no existing data".
var ErrTableNotFound = errors.New("warehouse table does not exist")

// Sink is the warehouse table ad metrics are loaded into.
type Sink interface {
	// EnsureTable creates the table if it does not exist. It is idempotent.
	EnsureTable(ctx context.Context) error

	// RecentDates returns up to limit most-recent distinct dates present.
	RecentDates(ctx context.Context, limit int) ([]civil.Date, error)

	// MaxDate returns the latest date present; ok is false when the table is
	// empty.
	MaxDate(ctx context.Context) (d civil.Date, ok bool, err error)

	// DatesInRange returns the distinct dates present within r.
	DatesInRange(ctx context.Context, r domain.DateRange) ([]civil.Date, error)

	// CountRows returns the number of rows dated within r.
	CountRows(ctx context.Context, r domain.DateRange) (int64, error)

	// DeleteRows removes every row dated within r and returns how many were
	// removed.
	DeleteRows(ctx context.Context, r domain.DateRange) (int64, error)

	// AppendRows appends rows in one bulk operation and returns how many were
	// inserted.
	AppendRows(ctx context.Context, rows []domain.MetricRow) (int64, error)

	// Summary aggregates the whole table for status reporting.
	Summary(ctx context.Context) (domain.Summary, error)

	// Close releases the sink's resources.
	Close() error
}
